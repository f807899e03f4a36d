// Package plugin wires token validation, permission resolution, caching,
// and header propagation into the two gateway hooks the host calls:
// identity resolution and header injection.
//
// # Lifecycle
//
// A plugin is constructed with [New], must complete [Plugin.Initialize]
// (including the first key-set fetch) before any hook call is accepted,
// and is torn down with [Plugin.Shutdown]. Both Initialize and Shutdown
// are idempotent, and Shutdown is safe to call on a plugin that was never
// initialized. Transitions between lifecycle states are validated by the
// state machine in state.go; a hook call in the wrong state is answered
// with a PLUGIN_STATE_ERROR rather than a panic.
//
// # Degradation posture
//
// Only the signing keys are a hard dependency: if the first key-set fetch
// fails, Initialize fails. Redis and the audit database are optional —
// when either is unreachable the plugin logs a warning and runs without
// caching or auditing rather than refusing to start.
package plugin

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/audit"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/auth"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/cache"
	redisclient "github.com/tcloud-dev/tcloud-mcp-platform/pkg/clients/redis"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/config"
	pluginerr "github.com/tcloud-dev/tcloud-mcp-platform/pkg/errors"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/tcloud"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/tcloud-dev/tcloud-mcp-platform/pkg/plugin"

// Plugin is the Cognito authentication plugin. It owns the key-set cache,
// the token validator, the permission and token-verdict caches, the
// permissions API client, and the optional audit recorder.
//
// All hook methods are safe for concurrent use once Initialize has
// returned successfully.
type Plugin struct {
	settings *config.Settings
	tracer   trace.Tracer

	mu    sync.Mutex
	state State

	keys        *auth.KeySetCache
	validator   *auth.Validator
	redis       *redisclient.Client
	permissions *cache.PermissionCache
	tokens      *cache.TokenCache
	tcloud      *tcloud.Client
	recorder    *audit.Recorder
}

// New constructs an unconfigured plugin from validated settings. Call
// [Plugin.Initialize] before invoking any hook.
func New(settings *config.Settings) *Plugin {
	return &Plugin{
		settings: settings,
		tracer:   otel.Tracer(tracerName),
		state:    StateUnconfigured,
	}
}

// NewFromComponents constructs a plugin with pre-built components.
// Intended for testing; Initialize still performs the first key-set fetch
// but skips client construction for any component that is non-nil.
func NewFromComponents(
	settings *config.Settings,
	validator *auth.Validator,
	keys *auth.KeySetCache,
	permissions *cache.PermissionCache,
	tokens *cache.TokenCache,
	tcloudClient *tcloud.Client,
	recorder *audit.Recorder,
) *Plugin {
	return &Plugin{
		settings:    settings,
		tracer:      otel.Tracer(tracerName),
		state:       StateUnconfigured,
		keys:        keys,
		validator:   validator,
		permissions: permissions,
		tokens:      tokens,
		tcloud:      tcloudClient,
		recorder:    recorder,
	}
}

// State returns the current lifecycle state.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Initialize builds the plugin's clients and completes the first key-set
// fetch. It is idempotent: calling it on a ready plugin is a no-op. A
// failed initialization may be retried; a closed plugin cannot be
// reinitialized.
func (p *Plugin) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateReady:
		return nil
	case StateClosed:
		return pluginerr.New(pluginerr.CodePluginState,
			"plugin: cannot initialize a closed plugin")
	}
	if err := p.transition(StateInitializing); err != nil {
		return err
	}

	if err := p.buildComponents(ctx); err != nil {
		p.state = StateFailed
		return err
	}

	// The first key-set fetch is the only hard gate: without signing
	// keys no token can be proven, so the plugin must not report ready.
	if err := p.keys.Refresh(ctx); err != nil {
		p.state = StateFailed
		return err
	}

	if err := p.transition(StateReady); err != nil {
		return err
	}
	slog.InfoContext(ctx, "plugin: initialized",
		"issuer", p.settings.CognitoIssuer(),
		"signing_keys", p.keys.Len(),
		"cache_available", p.permissions.Available(),
		"audit_enabled", p.recorder.Enabled(),
		"failure_mode", p.settings.PermissionFailureMode,
	)
	return nil
}

// Shutdown releases the plugin's network connections. It is idempotent
// and safe to call on a plugin that was never initialized.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateClosed {
		return nil
	}
	prev := p.state
	p.state = StateClosed

	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			slog.WarnContext(ctx, "plugin: failed to close redis client", "error", err)
		}
		p.redis = nil
	}
	p.recorder.Close()

	slog.InfoContext(ctx, "plugin: shut down", "previous_state", prev)
	return nil
}

// transition moves the plugin to the target state, enforcing the
// lifecycle state machine. Callers must hold p.mu.
func (p *Plugin) transition(to State) error {
	if !ValidTransition(p.state, to) {
		return pluginerr.Newf(pluginerr.CodePluginState,
			"plugin: invalid state transition %s -> %s", p.state, to)
	}
	p.state = to
	return nil
}

// buildComponents constructs any component not supplied via
// NewFromComponents. Redis and the audit database degrade to disabled on
// failure; the validator and permissions client are required.
func (p *Plugin) buildComponents(ctx context.Context) error {
	s := p.settings

	if p.keys == nil {
		p.keys = auth.NewKeySetCache(s.CognitoJWKSURL(),
			s.JWKSCacheTTL, s.JWKSFetchTimeout, nil)
	}

	if p.validator == nil {
		v, err := auth.NewValidator(auth.ValidatorConfig{
			Issuer:      s.CognitoIssuer(),
			AppClientID: s.CognitoAppClientID,
			ClockSkew:   s.ClockSkewTolerance,
		}, p.keys)
		if err != nil {
			return err
		}
		p.validator = v
	}

	if p.tcloud == nil {
		c, err := tcloud.NewClient(tcloud.Config{
			BaseURL:                s.TCloudAPIURL,
			APIKey:                 s.TCloudAPIKey,
			Timeout:                s.TCloudAPITimeout,
			DefaultReadPermissions: s.DefaultReadPermissions,
		}, nil)
		if err != nil {
			return err
		}
		p.tcloud = c
	}

	if p.permissions == nil || p.tokens == nil {
		rcfg := redisclient.DefaultConfig()
		rcfg.URI = s.RedisURL
		client, err := redisclient.NewClient(ctx, *rcfg)
		if err != nil {
			// Caches are a latency optimization, never a correctness
			// dependency. Run without them.
			slog.WarnContext(ctx, "plugin: redis unavailable, caching disabled",
				"error", err)
			client = nil
		}
		p.redis = client
		if p.permissions == nil {
			p.permissions = cache.NewPermissionCache(client, s.PermissionCacheTTL)
		}
		if p.tokens == nil {
			p.tokens = cache.NewTokenCache(client, s.TokenCacheTTL)
		}
	}

	if p.recorder == nil && s.AuditDatabaseURL != "" {
		r, err := audit.NewRecorder(ctx, s.AuditDatabaseURL.Value())
		if err != nil {
			slog.WarnContext(ctx, "plugin: audit database unavailable, auditing disabled",
				"error", err)
		}
		p.recorder = r
	}

	return nil
}
