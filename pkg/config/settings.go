package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	pluginerr "github.com/tcloud-dev/tcloud-mcp-platform/pkg/errors"
)

// Secret is a string type for sensitive configuration values (API keys,
// connection strings with embedded credentials). Its String method returns
// a redacted placeholder so secrets never leak through logs or %v
// formatting; call Value to read the actual secret.
type Secret string

// String implements fmt.Stringer with a redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Value returns the actual secret value.
func (s Secret) Value() string {
	return string(s)
}

// FailureMode controls how the plugin behaves when the permissions API is
// unreachable after a token has been validated.
type FailureMode string

const (
	// FailOpen lets the request continue without an established identity
	// when the permissions API fails. The gateway's own authorization
	// layer still applies, so this trades strictness for availability.
	FailOpen FailureMode = "open"

	// FailClosed rejects the request when the permissions API fails.
	FailClosed FailureMode = "closed"
)

// Settings holds the full configuration for the Cognito auth plugin.
// Values are resolved by [Loader.Load] from envDefault tags, an optional
// YAML/JSON file, and environment variables, in that priority order.
//
// Example:
//
//	settings, err := config.LoadSettings("")
//	if err != nil {
//	    return err
//	}
type Settings struct {
	// CognitoUserPoolID identifies the Cognito user pool whose tokens the
	// plugin accepts (e.g., "us-east-2_AbCdEfGhI").
	CognitoUserPoolID string `env:"COGNITO_USER_POOL_ID" yaml:"cognito_user_pool_id" json:"cognito_user_pool_id" required:"true"`

	// CognitoRegion is the AWS region hosting the user pool.
	CognitoRegion string `env:"COGNITO_REGION" envDefault:"us-east-2" yaml:"cognito_region" json:"cognito_region"`

	// CognitoAppClientID is the expected audience for access tokens
	// (matched against the "client_id" claim).
	CognitoAppClientID string `env:"COGNITO_APP_CLIENT_ID" yaml:"cognito_app_client_id" json:"cognito_app_client_id" required:"true"`

	// TCloudAPIURL is the base URL of the TCloud permissions API.
	TCloudAPIURL string `env:"TCLOUD_API_URL" yaml:"tcloud_api_url" json:"tcloud_api_url" required:"true"`

	// TCloudAPIKey authenticates the plugin to the permissions API via the
	// x-api-key header.
	TCloudAPIKey Secret `env:"TCLOUD_API_KEY" yaml:"tcloud_api_key" json:"tcloud_api_key" required:"true"`

	// RedisURL is the connection URL for the permission cache
	// (redis://[user:pass@]host:port/db).
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0" yaml:"redis_url" json:"redis_url"`

	// PermissionCacheTTL bounds how long resolved permissions are served
	// from cache before the permissions API is consulted again.
	PermissionCacheTTL time.Duration `env:"PERMISSION_CACHE_TTL" envDefault:"300s" yaml:"permission_cache_ttl" json:"permission_cache_ttl"`

	// TokenCacheTTL bounds how long a validated token's claims are served
	// from cache. Kept short so revocation takes effect quickly.
	TokenCacheTTL time.Duration `env:"TOKEN_CACHE_TTL" envDefault:"60s" yaml:"token_cache_ttl" json:"token_cache_ttl"`

	// JWKSCacheTTL bounds how long the in-process JWKS snapshot is
	// considered fresh.
	JWKSCacheTTL time.Duration `env:"JWKS_CACHE_TTL" envDefault:"3600s" yaml:"jwks_cache_ttl" json:"jwks_cache_ttl"`

	// JWKSFetchTimeout bounds a single JWKS HTTP fetch.
	JWKSFetchTimeout time.Duration `env:"JWKS_FETCH_TIMEOUT" envDefault:"10s" yaml:"jwks_fetch_timeout" json:"jwks_fetch_timeout"`

	// TCloudAPITimeout bounds a single permissions API call.
	TCloudAPITimeout time.Duration `env:"TCLOUD_API_TIMEOUT" envDefault:"30s" yaml:"tcloud_api_timeout" json:"tcloud_api_timeout"`

	// ClockSkewTolerance is the leeway applied to token time claims
	// (exp, iat, nbf) to absorb clock drift between Cognito and the
	// gateway host.
	ClockSkewTolerance time.Duration `env:"CLOCK_SKEW_TOLERANCE" envDefault:"300s" yaml:"clock_skew_tolerance" json:"clock_skew_tolerance"`

	// EnableHeaderPropagation controls whether identity headers
	// (X-User-Email, X-User-Customers, X-Request-ID) are injected into
	// upstream requests.
	EnableHeaderPropagation bool `env:"ENABLE_HEADER_PROPAGATION" envDefault:"true" yaml:"enable_header_propagation" json:"enable_header_propagation"`

	// PermissionFailureMode selects fail-open or fail-closed behavior
	// when the permissions API is down. See [FailureMode].
	PermissionFailureMode FailureMode `env:"PERMISSION_FAILURE_MODE" envDefault:"open" yaml:"permission_failure_mode" json:"permission_failure_mode"`

	// DefaultReadPermissions are granted to any user with at least one
	// customer association, on top of whatever the permissions API
	// returns.
	DefaultReadPermissions []string `env:"DEFAULT_READ_PERMISSIONS" envDefault:"read:metrics,read:logs" yaml:"default_read_permissions" json:"default_read_permissions"`

	// AuditDatabaseURL is the Postgres connection string for the auth
	// decision audit trail. Empty disables auditing.
	AuditDatabaseURL Secret `env:"AUDIT_DATABASE_URL" yaml:"audit_database_url" json:"audit_database_url"`
}

// LoadSettings loads Settings from the environment, optionally layered on
// top of a YAML/JSON file. Pass an empty path to load from environment
// variables and defaults only.
func LoadSettings(filePath string) (*Settings, error) {
	var s Settings
	loader := New()
	if filePath != "" {
		loader = loader.WithFile(filePath)
	}
	if err := loader.Load(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CognitoIssuer returns the expected "iss" claim value for tokens from
// the configured user pool.
func (s *Settings) CognitoIssuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s",
		s.CognitoRegion, s.CognitoUserPoolID)
}

// CognitoJWKSURL returns the well-known JWKS endpoint for the configured
// user pool.
func (s *Settings) CognitoJWKSURL() string {
	return s.CognitoIssuer() + "/.well-known/jwks.json"
}

// Validate implements [Validator]. It runs after required-tag validation,
// so all required fields are known to be non-empty here.
func (s *Settings) Validate() error {
	u, err := url.Parse(s.TCloudAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return pluginerr.Newf(pluginerr.CodeConfig,
			"config: TCLOUD_API_URL %q is not a valid absolute URL", s.TCloudAPIURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return pluginerr.Newf(pluginerr.CodeConfig,
			"config: TCLOUD_API_URL scheme %q must be http or https", u.Scheme)
	}

	if !strings.Contains(s.CognitoUserPoolID, "_") {
		return pluginerr.Newf(pluginerr.CodeConfig,
			"config: COGNITO_USER_POOL_ID %q must be of the form <region>_<id>",
			s.CognitoUserPoolID)
	}

	switch s.PermissionFailureMode {
	case FailOpen, FailClosed:
	default:
		return pluginerr.Newf(pluginerr.CodeConfig,
			"config: PERMISSION_FAILURE_MODE %q must be %q or %q",
			s.PermissionFailureMode, FailOpen, FailClosed)
	}

	for name, d := range map[string]time.Duration{
		"PERMISSION_CACHE_TTL": s.PermissionCacheTTL,
		"TOKEN_CACHE_TTL":      s.TokenCacheTTL,
		"JWKS_CACHE_TTL":       s.JWKSCacheTTL,
		"JWKS_FETCH_TIMEOUT":   s.JWKSFetchTimeout,
		"TCLOUD_API_TIMEOUT":   s.TCloudAPITimeout,
	} {
		if d <= 0 {
			return pluginerr.Newf(pluginerr.CodeConfig,
				"config: %s must be positive, got %v", name, d)
		}
	}

	if s.ClockSkewTolerance < 0 {
		return pluginerr.Newf(pluginerr.CodeConfig,
			"config: CLOCK_SKEW_TOLERANCE must not be negative, got %v",
			s.ClockSkewTolerance)
	}

	return nil
}
