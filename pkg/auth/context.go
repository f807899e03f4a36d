package auth

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is an unexported type for context keys in this package.
// A distinct type prevents collisions with keys from other packages.
type contextKey int

const (
	// userKey stores the resolved AuthenticatedUser in the context.
	userKey contextKey = iota

	// requestIDKey stores the gateway request id in the context.
	requestIDKey
)

// ContextWithUser returns a new context with the resolved user attached.
// The plugin's resolve-identity hook sets it so later hooks (header
// injection, audit) can read the identity without re-validating.
func ContextWithUser(ctx context.Context, user *AuthenticatedUser) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the resolved user from the context. Returns
// the user and true if present, or nil and false if no identity has been
// resolved on this request.
func UserFromContext(ctx context.Context) (*AuthenticatedUser, bool) {
	user, ok := ctx.Value(userKey).(*AuthenticatedUser)
	return user, ok
}

// ContextWithRequestID returns a new context carrying the gateway's
// request id, used for the X-Request-ID propagation header.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the gateway request id from the context.
// Returns the id and true if present, or an empty string and false.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// TraceIDFromContext extracts the OpenTelemetry trace id from the context.
// Returns the trace id as a hex string and true if a valid trace is
// active. This lets audit records link authentication decisions to
// distributed traces.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.HasTraceID() {
		return "", false
	}
	return spanCtx.TraceID().String(), true
}
