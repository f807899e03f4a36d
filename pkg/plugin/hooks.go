package plugin

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/audit"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/auth"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/config"
	pluginerr "github.com/tcloud-dev/tcloud-mcp-platform/pkg/errors"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/tcloud"
)

// bearerScheme is the only credential scheme this plugin handles. Any
// other scheme is passed through to the next auth mechanism in the host
// chain.
const bearerScheme = "bearer"

// Credentials is the normalized credential pair extracted by the host
// from an Authorization header. Hosts pass credentials in varying shapes;
// normalization into this struct happens before any core logic runs.
type Credentials struct {
	// Scheme is the authorization scheme (e.g., "Bearer"), matched
	// case-insensitively.
	Scheme string

	// Credentials is the raw credential string (the token for bearer).
	Credentials string
}

// CredentialsFromHeader splits a raw Authorization header value into
// Credentials. A header that is not exactly "<scheme> <credentials>"
// yields an empty pair, which the hooks treat as pass-through.
func CredentialsFromHeader(header string) Credentials {
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return Credentials{}
	}
	return Credentials{Scheme: parts[0], Credentials: parts[1]}
}

// HookError is the structured error surfaced to the host when the auth
// chain is aborted.
type HookError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// HookResult is the outcome of a hook call, in the shape the hosting
// gateway consumes. ContinueProcessing false aborts the request; true
// lets the host's chain proceed, with or without an established identity.
type HookResult struct {
	ModifiedPayload    any            `json:"modified_payload,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Error              *HookError     `json:"error,omitempty"`
	ContinueProcessing bool           `json:"continue_processing"`
}

// InvokePayload is the host's invocation payload as seen by the header
// injection hooks.
type InvokePayload struct {
	Args    map[string]any    `json:"args,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// RequestContext carries the read-only request fields the host supplies
// to the header injection hooks.
type RequestContext struct {
	// Metadata is the metadata attached by an earlier ResolveIdentity
	// call, if any.
	Metadata map[string]any

	// UserEmail is the email of the established identity, if any.
	UserEmail string

	// RequestID is the gateway's request id, if any.
	RequestID string
}

// ResolveIdentity validates a bearer token and resolves the caller's
// identity and permissions. It never returns a Go error: every outcome is
// expressed through the [HookResult].
//
//   - No credentials or a non-bearer scheme: pass-through
//     (ContinueProcessing true, no identity).
//   - Token or signing-key failure: abort (ContinueProcessing false with
//     a structured error).
//   - Permission-fetch failure: governed by PERMISSION_FAILURE_MODE —
//     fail-open continues without an identity, fail-closed aborts.
//   - Unexpected failure: logged and passed through, so an internal fault
//     never takes down the host's request pipeline.
func (p *Plugin) ResolveIdentity(ctx context.Context, creds Credentials) *HookResult {
	if err := p.ready(); err != nil {
		return abortResult(err)
	}

	if creds.Credentials == "" || !strings.EqualFold(creds.Scheme, bearerScheme) {
		return &HookResult{ContinueProcessing: true}
	}
	token := creds.Credentials

	ctx, span := p.tracer.Start(ctx, "plugin.resolve_identity")
	defer span.End()

	// A cached negative verdict skips the signature work for tokens the
	// plugin already rejected. Positive verdicts never skip validation:
	// the claims are needed to build the identity.
	hash := auth.TokenHash(token)
	if valid, found := p.tokens.Verdict(ctx, hash); found && !valid {
		err := pluginerr.New(pluginerr.CodeTokenInvalid, "token was previously rejected")
		return p.deny(ctx, span, audit.Event{}, err)
	}

	claims, err := p.validator.ValidateToken(ctx, token)
	if err != nil {
		if pluginerr.IsTokenValidation(err) {
			p.tokens.Store(ctx, hash, false)
		}
		if pluginerr.IsTokenValidation(err) || pluginerr.IsKeyInfrastructure(err) {
			return p.deny(ctx, span, audit.Event{}, err)
		}
		// Unexpected failure: never take down the request pipeline.
		slog.ErrorContext(ctx, "plugin: unexpected error during token validation",
			"error", err)
		return p.degrade(ctx, span, audit.Event{}, err)
	}
	p.tokens.Store(ctx, hash, true)

	email := claims.ResolvedEmail()
	event := audit.Event{
		Email:   email,
		Subject: claims.Subject,
	}
	span.SetAttributes(attribute.String("auth.subject", claims.Subject))

	perms, err := p.permissions.GetOrFetch(ctx, email,
		func(ctx context.Context) (*tcloud.UserPermissions, error) {
			return p.tcloud.GetUserPermissions(ctx, email, token)
		})
	if err != nil {
		if p.settings.PermissionFailureMode == config.FailClosed {
			return p.deny(ctx, span, event, err)
		}
		slog.WarnContext(ctx, "plugin: permission fetch failed, continuing without identity",
			"error", err,
			"error_code", pluginerr.GetCode(err),
		)
		return p.degrade(ctx, span, event, err)
	}

	user := auth.NewAuthenticatedUser(claims, perms.Customers, perms.Roles, perms.Permissions)
	event.Decision = audit.DecisionAllowed
	event.CustomerCount = len(user.Customers)
	p.record(ctx, event)

	span.SetAttributes(attribute.Int("auth.customer_count", len(user.Customers)))
	span.SetStatus(codes.Ok, "")
	return &HookResult{
		ModifiedPayload:    user.GatewayUser(),
		Metadata:           user.Metadata(),
		ContinueProcessing: true,
	}
}

// InjectHeaders adds identity headers to an outgoing invocation payload.
// It always continues: when header propagation is disabled, the identity
// was not established by this plugin, or the payload cannot be built, the
// payload is passed through unchanged.
//
// Injected headers win over pre-existing same-named headers.
func (p *Plugin) InjectHeaders(ctx context.Context, payload *InvokePayload, rc RequestContext) *HookResult {
	if err := p.ready(); err != nil {
		return abortResult(err)
	}

	if !p.settings.EnableHeaderPropagation {
		return &HookResult{ContinueProcessing: true}
	}
	method, _ := rc.Metadata["auth_method"].(string)
	if method != auth.AuthMethodCognito || rc.UserEmail == "" {
		return &HookResult{ContinueProcessing: true}
	}

	user := &auth.AuthenticatedUser{
		Email:     rc.UserEmail,
		Customers: customersFromMetadata(rc.Metadata),
	}
	injected, err := auth.BuildPropagationHeaders(user, rc.RequestID)
	if err != nil {
		slog.WarnContext(ctx, "plugin: failed to build identity headers", "error", err)
		return &HookResult{ContinueProcessing: true}
	}

	var existing map[string]string
	var args map[string]any
	if payload != nil {
		existing = payload.Headers
		args = payload.Args
	}
	return &HookResult{
		ModifiedPayload: &InvokePayload{
			Args:    args,
			Headers: auth.MergeHeaders(existing, injected),
		},
		ContinueProcessing: true,
	}
}

// InjectToolHeaders is the tool-invocation variant of [Plugin.InjectHeaders].
// Tool calls carry the same identity headers as agent calls.
func (p *Plugin) InjectToolHeaders(ctx context.Context, payload *InvokePayload, rc RequestContext) *HookResult {
	return p.InjectHeaders(ctx, payload, rc)
}

// ready reports whether the plugin accepts hook calls.
func (p *Plugin) ready() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateReady {
		return pluginerr.Newf(pluginerr.CodePluginState,
			"plugin: hook called in state %q, must be %q", p.state, StateReady)
	}
	return nil
}

// deny aborts the auth chain with the error's message and code, and
// records a denied decision.
func (p *Plugin) deny(ctx context.Context, span trace.Span, event audit.Event, err error) *HookResult {
	pErr := pluginerr.FromError(err)
	span.RecordError(pErr)
	span.SetStatus(codes.Error, pErr.Message)
	span.SetAttributes(attribute.String("auth.error_code", string(pErr.Code)))

	event.Decision = audit.DecisionDenied
	event.ErrorCode = string(pErr.Code)
	p.record(ctx, event)

	return abortResult(pErr)
}

// degrade lets the request continue without an established identity and
// records a degraded decision.
func (p *Plugin) degrade(ctx context.Context, span trace.Span, event audit.Event, err error) *HookResult {
	pErr := pluginerr.FromError(err)
	span.RecordError(pErr)
	span.SetStatus(codes.Error, pErr.Message)
	span.SetAttributes(attribute.String("auth.error_code", string(pErr.Code)))

	event.Decision = audit.DecisionDegraded
	event.ErrorCode = string(pErr.Code)
	p.record(ctx, event)

	return &HookResult{ContinueProcessing: true}
}

// record fills the request correlation fields from the context and
// persists the decision. Best-effort: auditing never fails a request.
func (p *Plugin) record(ctx context.Context, event audit.Event) {
	if requestID, ok := auth.RequestIDFromContext(ctx); ok {
		event.RequestID = requestID
	}
	if traceID, ok := auth.TraceIDFromContext(ctx); ok {
		event.TraceID = traceID
	}
	p.recorder.Record(ctx, event)
}

// abortResult converts an error into a chain-aborting hook result.
func abortResult(err error) *HookResult {
	pErr := pluginerr.FromError(err)
	return &HookResult{
		Error: &HookError{
			Message: pErr.Message,
			Code:    string(pErr.Code),
		},
		ContinueProcessing: false,
	}
}

// customersFromMetadata extracts the customers list from hook metadata,
// tolerating both []string and the []any shape produced by JSON decoding.
func customersFromMetadata(md map[string]any) []string {
	switch v := md["customers"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
