// Package auth implements Cognito JWT validation and identity resolution
// for the TCloud gateway auth plugin.
//
// The package is organized around three pieces:
//
//   - [KeySetCache] holds the Cognito JWKS (JSON Web Key Set) in memory
//     with a TTL, surviving transient fetch failures by serving the last
//     good set and handling key rotation with a single forced refresh when
//     a token presents an unknown key id.
//   - [Validator] verifies RS256 tokens against the key set, enforcing
//     issuer, expiry (with clock-skew leeway), and — for access tokens —
//     the app client id.
//   - [AuthenticatedUser] and the propagation helpers carry the resolved
//     identity to downstream services over HTTP headers or gRPC metadata.
//
// All validation failures are returned as [*pluginerr.Error] values with
// machine-readable codes the gateway surfaces to callers.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	pluginerr "github.com/tcloud-dev/tcloud-mcp-platform/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/tcloud-dev/tcloud-mcp-platform/pkg/auth"

// maxJWKSResponseSize limits the JWKS response body to 1 MB. A legitimate
// Cognito key set is a few kilobytes; anything larger indicates a
// misconfigured URL or a hostile endpoint.
const maxJWKSResponseSize = 1 << 20

// DefaultJWKSCacheTTL is the key set time-to-live used when no TTL is
// configured. Cognito rotates signing keys rarely; one hour keeps fetches
// infrequent while still picking up rotations promptly.
const DefaultJWKSCacheTTL = time.Hour

// DefaultJWKSFetchTimeout bounds a single JWKS fetch when the caller's
// context carries no deadline.
const DefaultJWKSFetchTimeout = 10 * time.Second

// HTTPDoer is the subset of [*http.Client] the key set cache needs.
// It exists so tests can substitute transports without a live server.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// jwkKey is a single entry in a JWKS document. Only RSA keys are used for
// Cognito token verification; entries of other types are skipped.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// jwksDocument is the top-level JWKS response shape.
type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

// KeySetCache caches the Cognito JWKS in memory, keyed by key id (kid).
//
// Refresh semantics:
//
//   - The set is refetched when older than the configured TTL.
//   - A fetch failure while a previously fetched set exists keeps the
//     stale set and logs a warning; validation continues uninterrupted.
//   - A fetch failure with no cached set returns JWKS_FETCH_ERROR.
//   - An unknown kid triggers exactly one forced refresh (key rotation);
//     if the kid is still absent the lookup returns KEY_NOT_FOUND.
//
// The cached key map is replaced wholesale on refresh and never mutated
// in place, so readers always observe a consistent snapshot.
//
// A KeySetCache is safe for concurrent use by multiple goroutines.
type KeySetCache struct {
	url          string
	ttl          time.Duration
	fetchTimeout time.Duration
	httpClient   HTTPDoer
	tracer       trace.Tracer

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewKeySetCache creates a key set cache for the given JWKS URL. Zero
// ttl and fetchTimeout fall back to [DefaultJWKSCacheTTL] and
// [DefaultJWKSFetchTimeout]. A nil httpClient falls back to
// [http.DefaultClient].
//
// The cache starts empty; call [KeySetCache.Refresh] during plugin
// initialization so the first validation does not pay the fetch latency.
func NewKeySetCache(url string, ttl, fetchTimeout time.Duration, httpClient HTTPDoer) *KeySetCache {
	if ttl <= 0 {
		ttl = DefaultJWKSCacheTTL
	}
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultJWKSFetchTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &KeySetCache{
		url:          url,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		httpClient:   httpClient,
		tracer:       otel.Tracer(tracerName),
	}
}

// SigningKey returns the RSA public key for the given key id.
//
// The cached set is refreshed first if it is missing or expired. If the
// kid is not present after that, one forced refresh is performed to pick
// up a rotated key set; a kid that is still unknown yields KEY_NOT_FOUND.
func (c *KeySetCache) SigningKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if err := c.refresh(ctx, false); err != nil {
		return nil, err
	}
	if key := c.lookup(kid); key != nil {
		return key, nil
	}

	// Unknown kid: the pool may have rotated its keys since the last
	// fetch. Refetch once regardless of TTL.
	if err := c.refresh(ctx, true); err != nil {
		return nil, err
	}
	if key := c.lookup(kid); key != nil {
		return key, nil
	}

	return nil, pluginerr.Newf(pluginerr.CodeKeyNotFound,
		"auth: key id %q not found in key set", kid)
}

// Refresh forces an immediate key set fetch, bypassing the TTL. It is
// called during plugin initialization so the first token validation finds
// a warm cache.
func (c *KeySetCache) Refresh(ctx context.Context) error {
	return c.refresh(ctx, true)
}

// Len returns the number of keys currently cached.
func (c *KeySetCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

// lookup returns the cached key for kid, or nil.
func (c *KeySetCache) lookup(kid string) *rsa.PublicKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[kid]
}

// refresh fetches and replaces the cached key set. Unless force is set,
// it returns immediately when the cached set is still within its TTL.
// The lock is held across the fetch so concurrent callers do not stampede
// the JWKS endpoint.
func (c *KeySetCache) refresh(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && len(c.keys) > 0 && time.Since(c.fetchedAt) < c.ttl {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "auth.jwks_refresh",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("http.url", c.url),
		attribute.Bool("auth.jwks.forced", force),
	)
	defer span.End()

	keys, err := c.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		// A previously fetched set is better than no set: keep serving
		// it and let the next TTL expiry retry the fetch.
		if len(c.keys) > 0 {
			slog.WarnContext(ctx, "auth: key set refresh failed, serving stale set",
				"error", err,
				"cached_keys", len(c.keys),
				"fetched_at", c.fetchedAt,
			)
			return nil
		}
		return pluginerr.Wrap(err, pluginerr.CodeKeySetFetch,
			"auth: failed to fetch key set and no cached set is available")
	}

	c.keys = keys
	c.fetchedAt = time.Now()
	span.SetAttributes(attribute.Int("auth.jwks.key_count", len(keys)))
	span.SetStatus(codes.Ok, "")

	slog.DebugContext(ctx, "auth: key set refreshed",
		"key_count", len(keys),
		"forced", force,
	)
	return nil
}

// fetch downloads and parses the JWKS document. Non-RSA entries and
// entries without a kid are skipped.
func (c *KeySetCache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: JWKS request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSResponseSize))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to read JWKS response: %w", err)
	}

	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("auth: failed to parse JWKS document: %w", err)
	}
	if len(doc.Keys) == 0 {
		return nil, fmt.Errorf("auth: JWKS document contains no keys")
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			slog.Warn("auth: skipping unparseable JWKS entry",
				"kid", k.Kid,
				"error", err,
			)
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("auth: JWKS document contains no usable RSA keys")
	}
	return keys, nil
}

// parseRSAPublicKey builds an *rsa.PublicKey from the base64url-encoded
// modulus (n) and exponent (e) fields of a JWK entry.
func parseRSAPublicKey(nB64, eB64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus encoding: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent encoding: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, fmt.Errorf("empty modulus or exponent")
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, fmt.Errorf("exponent out of range")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
