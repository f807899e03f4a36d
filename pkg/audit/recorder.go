// Package audit persists one record per identity-resolution decision to
// PostgreSQL, giving operators a queryable trail of who authenticated,
// when, and with what outcome.
//
// Auditing is strictly optional and strictly best-effort: when no
// database is configured the recorder is disabled, and when a write
// fails the failure is logged and swallowed. An audit outage must never
// decide an authentication request.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pluginerr "github.com/tcloud-dev/tcloud-mcp-platform/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/tcloud-dev/tcloud-mcp-platform/pkg/audit"

// recordTimeout bounds a single audit insert so a slow database cannot
// hold up request handling.
const recordTimeout = 5 * time.Second

// Decision is the outcome of an identity resolution.
type Decision string

const (
	// DecisionAllowed: the token validated and permissions resolved.
	DecisionAllowed Decision = "allowed"

	// DecisionDenied: the auth chain was aborted (token or key failure).
	DecisionDenied Decision = "denied"

	// DecisionDegraded: the identity resolved without permission data
	// because the downstream API failed and the plugin is fail-open.
	DecisionDegraded Decision = "degraded"
)

// Event is one identity-resolution decision.
type Event struct {
	// ID uniquely identifies the event. Zero value gets a fresh UUID.
	ID uuid.UUID

	// OccurredAt is when the decision was made. Zero value gets now.
	OccurredAt time.Time

	// Email is the resolved (or attempted) user email. May be empty for
	// denials before claims were parsed.
	Email string

	// Subject is the token's sub claim, when available.
	Subject string

	// Decision is the outcome.
	Decision Decision

	// ErrorCode is the plugin error code for denied/degraded decisions.
	ErrorCode string

	// CustomerCount is the number of customers resolved for the user.
	CustomerCount int

	// RequestID is the gateway request id, when available.
	RequestID string

	// TraceID links the event to the distributed trace, when available.
	TraceID string
}

// Pool is the subset of [*pgxpool.Pool] the recorder needs. It is
// satisfied by pgxmock for unit testing.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Compile-time interface compliance check against the real pool.
var _ Pool = (*pgxpool.Pool)(nil)

// createTableSQL creates the decision table on first use. Kept
// idempotent so multiple plugin replicas can initialize concurrently.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS auth_decisions (
	id             UUID PRIMARY KEY,
	occurred_at    TIMESTAMPTZ NOT NULL,
	user_email     TEXT NOT NULL,
	subject        TEXT NOT NULL,
	decision       TEXT NOT NULL,
	error_code     TEXT NOT NULL DEFAULT '',
	customer_count INT NOT NULL DEFAULT 0,
	request_id     TEXT NOT NULL DEFAULT '',
	trace_id       TEXT NOT NULL DEFAULT ''
)`

// insertEventSQL inserts one decision row.
const insertEventSQL = `
INSERT INTO auth_decisions
	(id, occurred_at, user_email, subject, decision, error_code, customer_count, request_id, trace_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Recorder writes decision events to PostgreSQL.
//
// A nil *Recorder is valid and records nothing, so callers never need
// to branch on whether auditing is configured.
type Recorder struct {
	pool   Pool
	tracer trace.Tracer
}

// NewRecorder connects to the audit database and ensures the decision
// table exists. An empty connString returns a nil recorder (auditing
// disabled), which is not an error.
func NewRecorder(ctx context.Context, connString string) (*Recorder, error) {
	if connString == "" {
		return nil, nil
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, pluginerr.Wrap(err, pluginerr.CodeConfig,
			"audit: invalid database connection string")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pluginerr.Wrap(err, pluginerr.CodeConfig,
			"audit: failed to connect to database")
	}

	r := NewFromPool(pool)
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// NewFromPool creates a Recorder with a pre-existing [Pool]. Intended
// for testing with pgxmock. The schema is not created; call ensureSchema
// via [NewRecorder] in production.
func NewFromPool(pool Pool) *Recorder {
	return &Recorder{
		pool:   pool,
		tracer: otel.Tracer(tracerName),
	}
}

// Enabled reports whether the recorder writes anywhere.
func (r *Recorder) Enabled() bool {
	return r != nil && r.pool != nil
}

// Record persists one decision event. It never fails: write errors are
// logged and dropped, and a disabled recorder is a no-op. Defaults are
// applied for a zero ID and OccurredAt.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if !r.Enabled() {
		return
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	ctx, span := r.tracer.Start(ctx, "audit.record",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("audit.decision", string(event.Decision)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, insertEventSQL,
		event.ID,
		event.OccurredAt,
		event.Email,
		event.Subject,
		string(event.Decision),
		event.ErrorCode,
		event.CustomerCount,
		event.RequestID,
		event.TraceID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "audit: failed to record decision",
			"error", err,
			"decision", event.Decision,
			"event_id", event.ID,
		)
		return
	}
	span.SetStatus(codes.Ok, "")
}

// Close releases the underlying pool. Safe on a nil or disabled recorder.
func (r *Recorder) Close() {
	if r.Enabled() {
		r.pool.Close()
	}
}

// ensureSchema creates the decision table if it does not exist.
func (r *Recorder) ensureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createTableSQL); err != nil {
		return pluginerr.Wrap(err, pluginerr.CodeConfig,
			"audit: failed to create decision table")
	}
	return nil
}
