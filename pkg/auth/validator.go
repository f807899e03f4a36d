package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pluginerr "github.com/tcloud-dev/tcloud-mcp-platform/pkg/errors"
)

// maxTokenSize is the maximum accepted token length in bytes. Cognito
// tokens are well under 4 KB; larger inputs are rejected before any
// cryptographic work.
const maxTokenSize = 8192

// DefaultClockSkew is the validation leeway applied when none is
// configured. It matches Cognito's own recommendation of five minutes.
const DefaultClockSkew = 5 * time.Minute

// ValidatorConfig holds the issuer-side parameters for token validation.
type ValidatorConfig struct {
	// Issuer is the expected iss claim, e.g.
	// "https://cognito-idp.us-east-2.amazonaws.com/us-east-2_AbCdEfGhI".
	Issuer string

	// AppClientID is the expected client_id claim on access tokens.
	// Id tokens are not checked against it (Cognito puts the client id
	// in aud for id tokens, which the gateway does not require).
	AppClientID string

	// ClockSkew is the leeway applied to exp/iat/nbf comparisons.
	// Zero falls back to [DefaultClockSkew].
	ClockSkew time.Duration
}

// Validator verifies Cognito-issued RS256 JWTs against a [KeySetCache].
//
// A Validator is safe for concurrent use by multiple goroutines.
type Validator struct {
	cfg    ValidatorConfig
	keys   *KeySetCache
	tracer trace.Tracer
}

// NewValidator creates a token validator. Returns CONFIG_ERROR if the
// issuer or app client id is empty, or if keys is nil.
func NewValidator(cfg ValidatorConfig, keys *KeySetCache) (*Validator, error) {
	if cfg.Issuer == "" {
		return nil, pluginerr.New(pluginerr.CodeConfig,
			"auth: validator issuer must not be empty")
	}
	if cfg.AppClientID == "" {
		return nil, pluginerr.New(pluginerr.CodeConfig,
			"auth: validator app client id must not be empty")
	}
	if keys == nil {
		return nil, pluginerr.New(pluginerr.CodeConfig,
			"auth: validator requires a key set cache")
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = DefaultClockSkew
	}
	return &Validator{
		cfg:    cfg,
		keys:   keys,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// ValidateToken verifies the token's signature, issuer, and expiry, and
// returns its claims. Access tokens additionally have their client_id
// checked against the configured app client id.
//
// All failures are returned as [*pluginerr.Error] values:
//
//	TOKEN_EXPIRED      exp is past the clock-skew leeway
//	INVALID_SIGNATURE  signature verification failed
//	INVALID_ISSUER     iss does not match the configured issuer
//	INVALID_AUDIENCE   access token client_id mismatch
//	KEY_NOT_FOUND      unknown kid after a forced key set refresh
//	JWKS_FETCH_ERROR   key set unavailable and no cached set
//	INVALID_TOKEN      anything else (malformed, missing kid, ...)
func (v *Validator) ValidateToken(ctx context.Context, tokenStr string) (*TokenClaims, error) {
	ctx, span := v.tracer.Start(ctx, "auth.validate_token")
	defer span.End()

	if tokenStr == "" {
		return nil, v.fail(span, pluginerr.TokenInvalid("auth: empty token"))
	}
	if len(tokenStr) > maxTokenSize {
		return nil, v.fail(span, pluginerr.Newf(pluginerr.CodeTokenInvalid,
			"auth: token size %d exceeds maximum %d bytes", len(tokenStr), maxTokenSize))
	}

	span.SetAttributes(attribute.String("auth.token_hash", TokenHash(tokenStr)))

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, v.keyFunc(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithLeeway(v.cfg.ClockSkew),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, v.fail(span, classifyError(err))
	}

	// Cognito access tokens carry the app client id in client_id rather
	// than aud, so the audience check is manual.
	if claims.TokenUse == TokenUseAccess && claims.ClientID != v.cfg.AppClientID {
		return nil, v.fail(span, pluginerr.InvalidAudience(
			"auth: access token client_id does not match the configured app client"))
	}

	span.SetAttributes(
		attribute.String("auth.token_use", claims.TokenUse),
		attribute.String("auth.subject", claims.Subject),
	)
	span.SetStatus(codes.Ok, "")
	return claims, nil
}

// keyFunc resolves the verification key for a parsed token header. The
// returned errors are *pluginerr.Error values that survive the jwt
// library's wrapping and are recovered in classifyError.
func (v *Validator) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, pluginerr.TokenInvalid("auth: token header missing key id")
		}
		return v.keys.SigningKey(ctx, kid)
	}
}

// fail records err on the span and returns it.
func (v *Validator) fail(span trace.Span, err *pluginerr.Error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("auth.error_code", err.Code.String()))
	return err
}

// classifyError maps a jwt parse error to the plugin error taxonomy.
// Errors that already carry a plugin code (raised from the keyfunc) pass
// through unchanged.
func classifyError(err error) *pluginerr.Error {
	var pe *pluginerr.Error
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return pluginerr.TokenExpired("auth: token has expired")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return pluginerr.InvalidIssuer("auth: token issuer does not match the configured user pool")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return pluginerr.InvalidSignature("auth: token signature verification failed")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return pluginerr.Wrap(err, pluginerr.CodeTokenInvalid, "auth: malformed token")
	case strings.Contains(err.Error(), "signature"):
		return pluginerr.InvalidSignature("auth: token signature verification failed")
	default:
		return pluginerr.Wrap(err, pluginerr.CodeTokenInvalid, "auth: token validation failed")
	}
}

// TokenHash returns the hex-encoded SHA-256 digest of a token. It is
// used as a cache key and a trace attribute so raw tokens never appear
// in logs, spans, or the cache.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
