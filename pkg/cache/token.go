package cache

import (
	"context"
	"log/slog"
	"time"

	redisclient "github.com/tcloud-dev/tcloud-mcp-platform/pkg/clients/redis"
)

// DefaultTokenTTL is the token-verdict time-to-live used when no TTL is
// configured. Verdicts are short-lived: a cached "valid" must not
// outlive the token by much, and sixty seconds already absorbs the
// hot-path burst of a client issuing many requests with one token.
const DefaultTokenTTL = time.Minute

// Token verdict values as stored in Redis.
const (
	tokenVerdictValid   = "1"
	tokenVerdictInvalid = "0"
)

// TokenCache remembers recent token validation verdicts, keyed by token
// hash. It is a pure accelerator: a hit lets the hot path skip signature
// verification, a miss (or any Redis failure) falls through to the full
// validation. The verdict is never authoritative for claims — callers
// still need the parsed claims, so only the boolean outcome is cached.
//
// A TokenCache with a nil client is valid and permanently misses.
type TokenCache struct {
	client *redisclient.Client
	ttl    time.Duration
}

// NewTokenCache creates a token-verdict cache backed by the given Redis
// client. A nil client disables caching. Zero ttl falls back to
// [DefaultTokenTTL].
func NewTokenCache(client *redisclient.Client, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCache{client: client, ttl: ttl}
}

// Available reports whether a cache store is configured.
func (c *TokenCache) Available() bool {
	return c.client != nil
}

// Verdict returns the cached validation verdict for a token hash.
// The second return value reports whether a verdict was cached at all;
// store failures are misses.
func (c *TokenCache) Verdict(ctx context.Context, tokenHash string) (valid, found bool) {
	if c.client == nil {
		return false, false
	}

	raw, err := c.client.Get(ctx, TokenKey(tokenHash))
	if err != nil {
		if !redisclient.IsNotFound(err) {
			slog.WarnContext(ctx, "cache: token verdict read failed, treating as miss",
				"error", err,
			)
		}
		return false, false
	}
	return raw == tokenVerdictValid, true
}

// Store caches a validation verdict for a token hash. Failures are
// logged and ignored.
func (c *TokenCache) Store(ctx context.Context, tokenHash string, valid bool) {
	if c.client == nil {
		return
	}

	verdict := tokenVerdictInvalid
	if valid {
		verdict = tokenVerdictValid
	}
	if err := c.client.Set(ctx, TokenKey(tokenHash), verdict, c.ttl); err != nil {
		slog.WarnContext(ctx, "cache: token verdict write failed", "error", err)
	}
}
