package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{"standard", "Bearer abc123", "abc123", true},
		{"lowercase_scheme", "bearer abc123", "abc123", true},
		{"mixed_case_scheme", "BeArEr abc123", "abc123", true},
		{"extra_whitespace", "Bearer   abc123", "abc123", true},
		{"empty", "", "", false},
		{"scheme_only", "Bearer", "", false},
		{"wrong_scheme", "Basic dXNlcjpwYXNz", "", false},
		{"three_parts", "Bearer abc 123", "", false},
		{"token_only", "abc123", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractBearerToken(tt.header)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPropagationHeaders(t *testing.T) {
	t.Parallel()
	user := &AuthenticatedUser{
		Email:     "jane@example.com",
		Customers: []string{"cust-a", "cust-b"},
	}

	headers, err := BuildPropagationHeaders(user, "req-123")
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", headers[HeaderUserEmail])
	assert.Equal(t, `["cust-a","cust-b"]`, headers[HeaderUserCustomers])
	assert.Equal(t, "req-123", headers[HeaderRequestID])
}

func TestBuildPropagationHeaders_NoRequestID(t *testing.T) {
	t.Parallel()
	user := &AuthenticatedUser{Email: "jane@example.com"}

	headers, err := BuildPropagationHeaders(user, "")
	require.NoError(t, err)

	_, present := headers[HeaderRequestID]
	assert.False(t, present, "X-Request-ID must be omitted when the gateway supplied none")
}

func TestBuildPropagationHeaders_EmptyCustomersIsJSONArray(t *testing.T) {
	t.Parallel()
	user := &AuthenticatedUser{Email: "jane@example.com"}

	headers, err := BuildPropagationHeaders(user, "")
	require.NoError(t, err)
	assert.Equal(t, "[]", headers[HeaderUserCustomers])
}

func TestBuildPropagationHeaders_RequiresUser(t *testing.T) {
	t.Parallel()
	_, err := BuildPropagationHeaders(nil, "req-123")
	require.Error(t, err)

	_, err = BuildPropagationHeaders(&AuthenticatedUser{}, "req-123")
	require.Error(t, err)
}

func TestMergeHeaders_InjectedWins(t *testing.T) {
	t.Parallel()
	existing := map[string]string{
		"Content-Type":  "application/json",
		HeaderUserEmail: "attacker@example.com",
	}
	injected := map[string]string{
		HeaderUserEmail: "jane@example.com",
	}

	merged := MergeHeaders(existing, injected)
	assert.Equal(t, "jane@example.com", merged[HeaderUserEmail],
		"client-supplied identity headers must be overwritten")
	assert.Equal(t, "application/json", merged["Content-Type"])

	// Inputs are not mutated.
	assert.Equal(t, "attacker@example.com", existing[HeaderUserEmail])
}

func TestMergeHeaders_NilInputs(t *testing.T) {
	t.Parallel()
	merged := MergeHeaders(nil, map[string]string{"a": "1"})
	assert.Equal(t, map[string]string{"a": "1"}, merged)

	merged = MergeHeaders(map[string]string{"b": "2"}, nil)
	assert.Equal(t, map[string]string{"b": "2"}, merged)
}
