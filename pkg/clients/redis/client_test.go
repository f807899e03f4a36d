package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	pluginerr "github.com/tcloud-dev/tcloud-mcp-platform/pkg/errors"
)

// ===========================================================================
// Mock Implementation
// ===========================================================================

// mockCmdable implements the Cmdable interface using testify/mock for unit
// testing. Each method delegates to mock.Called() and returns the appropriate
// go-redis command type.
type mockCmdable struct {
	mock.Mock
}

func (m *mockCmdable) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.StringCmd)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) TTL(ctx context.Context, key string) *redis.DurationCmd {
	args := m.Called(ctx, key)
	return args.Get(0).(*redis.DurationCmd)
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Close() error {
	args := m.Called()
	return args.Error(0)
}

// ===========================================================================
// Command Result Helpers
// ===========================================================================

// newStatusCmd creates a *redis.StatusCmd with the given value or error.
func newStatusCmd(val string, err error) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

// newStringCmd creates a *redis.StringCmd with the given value or error.
func newStringCmd(val string, err error) *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

// newIntCmd creates a *redis.IntCmd with the given value or error.
func newIntCmd(val int64, err error) *redis.IntCmd {
	cmd := redis.NewIntCmd(context.Background())
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

// newDurationCmd creates a *redis.DurationCmd with the given value or error.
func newDurationCmd(val time.Duration, err error) *redis.DurationCmd {
	cmd := redis.NewDurationCmd(context.Background(), time.Second)
	if err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(val)
	}
	return cmd
}

// ===========================================================================
// NewFromClient Tests
// ===========================================================================

// TestNewFromClient_WithConfig verifies that NewFromClient correctly initializes
// the client with the provided cmdable and config.
func TestNewFromClient_WithConfig(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)

	cfg := &Config{DB: 3}
	client := NewFromClient(m, cfg)

	assert.NotNil(t, client.cmdable)
	assert.Equal(t, cfg, client.config)
	assert.Equal(t, 3, client.dbIndex)
	assert.NotNil(t, client.tracer)
}

// TestNewFromClient_NilConfig verifies that NewFromClient handles a nil config
// gracefully by initializing a zero-value Config.
func TestNewFromClient_NilConfig(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)

	client := NewFromClient(m, nil)

	require.NotNil(t, client.config)
	assert.Equal(t, 0, client.dbIndex)
}

// ===========================================================================
// Set Tests
// ===========================================================================

// TestClient_Set_Success verifies that Set returns nil on a successful
// SET command.
func TestClient_Set_Success(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Set", mock.Anything, "key1", "value1", 10*time.Minute).
		Return(newStatusCmd("OK", nil))

	client := NewFromClient(m, &Config{DB: 0})
	err := client.Set(context.Background(), "key1", "value1", 10*time.Minute)
	require.NoError(t, err)

	m.AssertExpectations(t)
}

// TestClient_Set_Error verifies that Set returns a *pluginerr.Error with
// CodeCache when Redis returns an error.
func TestClient_Set_Error(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Set", mock.Anything, "key1", "value1", time.Duration(0)).
		Return(newStatusCmd("", errors.New("READONLY You can't write against a read only replica")))

	client := NewFromClient(m, &Config{DB: 0})
	err := client.Set(context.Background(), "key1", "value1", 0)
	require.Error(t, err)

	var pErr *pluginerr.Error
	require.True(t, errors.As(err, &pErr), "Set() error type = %T, want *pluginerr.Error", err)
	assert.Equal(t, pluginerr.CodeCache, pErr.Code)

	m.AssertExpectations(t)
}

// TestClient_Set_DeadlineExceeded verifies that a context deadline error
// stays reachable through the wrapped error chain.
func TestClient_Set_DeadlineExceeded(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Set", mock.Anything, "key1", "value1", time.Duration(0)).
		Return(newStatusCmd("", context.DeadlineExceeded))

	client := NewFromClient(m, &Config{DB: 0})
	err := client.Set(context.Background(), "key1", "value1", 0)
	require.Error(t, err)

	assert.True(t, errors.Is(err, context.DeadlineExceeded),
		"wrapped error should preserve context.DeadlineExceeded")
	assert.True(t, pluginerr.IsRetryable(err),
		"cache errors should be retryable")

	m.AssertExpectations(t)
}

// ===========================================================================
// Get Tests
// ===========================================================================

// TestClient_Get_Success verifies that Get returns the value on a
// successful GET command.
func TestClient_Get_Success(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Get", mock.Anything, "key1").
		Return(newStringCmd("value1", nil))

	client := NewFromClient(m, &Config{DB: 0})
	val, err := client.Get(context.Background(), "key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", val)

	m.AssertExpectations(t)
}

// TestClient_Get_Miss verifies that Get wraps redis.Nil for missing keys
// and that IsNotFound identifies the miss through the wrapped chain.
func TestClient_Get_Miss(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Get", mock.Anything, "nonexistent").
		Return(newStringCmd("", redis.Nil))

	client := NewFromClient(m, &Config{DB: 0})
	_, err := client.Get(context.Background(), "nonexistent")
	require.Error(t, err)

	assert.True(t, IsNotFound(err), "IsNotFound should be true for missing key")
	assert.True(t, pluginerr.HasCode(err, pluginerr.CodeCache))

	m.AssertExpectations(t)
}

// TestClient_Get_Error verifies that a non-miss Redis error is not
// classified as a miss.
func TestClient_Get_Error(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Get", mock.Anything, "key1").
		Return(newStringCmd("", errors.New("connection reset by peer")))

	client := NewFromClient(m, &Config{DB: 0})
	_, err := client.Get(context.Background(), "key1")
	require.Error(t, err)

	assert.False(t, IsNotFound(err), "connection error must not look like a miss")
	assert.True(t, pluginerr.HasCode(err, pluginerr.CodeCache))

	m.AssertExpectations(t)
}

// ===========================================================================
// Del Tests
// ===========================================================================

// TestClient_Del_Success verifies that Del returns the number of deleted
// keys on success.
func TestClient_Del_Success(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Del", mock.Anything, []string{"key1", "key2"}).
		Return(newIntCmd(2, nil))

	client := NewFromClient(m, &Config{DB: 0})
	deleted, err := client.Del(context.Background(), "key1", "key2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	m.AssertExpectations(t)
}

// TestClient_Del_Error verifies that Del wraps Redis errors.
func TestClient_Del_Error(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Del", mock.Anything, []string{"key1"}).
		Return(newIntCmd(0, errors.New("LOADING Redis is loading the dataset")))

	client := NewFromClient(m, &Config{DB: 0})
	_, err := client.Del(context.Background(), "key1")
	require.Error(t, err)
	assert.True(t, pluginerr.HasCode(err, pluginerr.CodeCache))

	m.AssertExpectations(t)
}

// ===========================================================================
// Exists / TTL Tests
// ===========================================================================

func TestClient_Exists_Success(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Exists", mock.Anything, []string{"key1", "key2"}).
		Return(newIntCmd(1, nil))

	client := NewFromClient(m, &Config{DB: 0})
	count, err := client.Exists(context.Background(), "key1", "key2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	m.AssertExpectations(t)
}

func TestClient_TTL_Success(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("TTL", mock.Anything, "key1").
		Return(newDurationCmd(42*time.Second, nil))

	client := NewFromClient(m, &Config{DB: 0})
	ttl, err := client.TTL(context.Background(), "key1")
	require.NoError(t, err)
	assert.Equal(t, 42*time.Second, ttl)

	m.AssertExpectations(t)
}

// ===========================================================================
// Health Tests
// ===========================================================================

// TestClient_Health_Success verifies that Health returns nil when the
// ping succeeds.
func TestClient_Health_Success(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.Anything).
		Return(newStatusCmd("PONG", nil))

	client := NewFromClient(m, &Config{DB: 0})
	err := client.Health(context.Background())
	require.NoError(t, err)

	m.AssertExpectations(t)
}

// TestClient_Health_Failure verifies that Health wraps ping failures with
// CodeCache.
func TestClient_Health_Failure(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Ping", mock.Anything).
		Return(newStatusCmd("", errors.New("connection refused")))

	client := NewFromClient(m, &Config{DB: 0})
	err := client.Health(context.Background())
	require.Error(t, err)
	assert.True(t, pluginerr.HasCode(err, pluginerr.CodeCache))

	m.AssertExpectations(t)
}

// ===========================================================================
// Close Tests
// ===========================================================================

func TestClient_Close_Delegates(t *testing.T) {
	t.Parallel()
	m := new(mockCmdable)
	m.On("Close").Return(nil)

	client := NewFromClient(m, nil)
	require.NoError(t, client.Close())

	m.AssertExpectations(t)
}
