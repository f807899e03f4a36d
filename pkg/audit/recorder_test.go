package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRecorder(t *testing.T) (*Recorder, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewFromPool(mock), mock
}

func TestRecorder_Record_InsertsDecision(t *testing.T) {
	t.Parallel()
	recorder, mock := newMockRecorder(t)

	eventID := uuid.New()
	occurredAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO auth_decisions").
		WithArgs(eventID, occurredAt, "jane@example.com", "sub-1234",
			"allowed", "", 2, "req-123", "trace-abc").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	recorder.Record(context.Background(), Event{
		ID:            eventID,
		OccurredAt:    occurredAt,
		Email:         "jane@example.com",
		Subject:       "sub-1234",
		Decision:      DecisionAllowed,
		CustomerCount: 2,
		RequestID:     "req-123",
		TraceID:       "trace-abc",
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_Record_AssignsDefaults(t *testing.T) {
	t.Parallel()
	recorder, mock := newMockRecorder(t)

	// Zero ID and OccurredAt are filled in before the insert.
	mock.ExpectExec("INSERT INTO auth_decisions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "jane@example.com", "",
			"denied", "TOKEN_EXPIRED", 0, "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	recorder.Record(context.Background(), Event{
		Email:     "jane@example.com",
		Decision:  DecisionDenied,
		ErrorCode: "TOKEN_EXPIRED",
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_Record_WriteFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	recorder, mock := newMockRecorder(t)

	mock.ExpectExec("INSERT INTO auth_decisions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "jane@example.com", "",
			"degraded", "TCLOUD_API_TIMEOUT", 0, "", "").
		WillReturnError(errors.New("connection refused"))

	// Must not panic or propagate the failure.
	recorder.Record(context.Background(), Event{
		Email:     "jane@example.com",
		Decision:  DecisionDegraded,
		ErrorCode: "TCLOUD_API_TIMEOUT",
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_NilRecorder_IsNoOp(t *testing.T) {
	t.Parallel()
	var recorder *Recorder

	assert.False(t, recorder.Enabled())
	recorder.Record(context.Background(), Event{Decision: DecisionAllowed})
	recorder.Close()
}

func TestRecorder_Enabled(t *testing.T) {
	t.Parallel()
	recorder, _ := newMockRecorder(t)
	assert.True(t, recorder.Enabled())
}

func TestNewRecorder_EmptyConnString_Disabled(t *testing.T) {
	t.Parallel()
	recorder, err := NewRecorder(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, recorder)
	assert.False(t, recorder.Enabled())
}

func TestRecorder_EnsureSchema(t *testing.T) {
	t.Parallel()
	recorder, mock := newMockRecorder(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS auth_decisions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, recorder.ensureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
