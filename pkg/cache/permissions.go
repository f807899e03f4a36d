package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	redisclient "github.com/tcloud-dev/tcloud-mcp-platform/pkg/clients/redis"
	"github.com/tcloud-dev/tcloud-mcp-platform/pkg/tcloud"
)

// DefaultPermissionTTL is the permission entry time-to-live used when no
// TTL is configured. Five minutes bounds how long a revoked permission
// can keep working.
const DefaultPermissionTTL = 5 * time.Minute

// FetchFunc produces fresh permissions on a cache miss. It is typically
// a closure over the TCloud client carrying the caller's bearer token.
type FetchFunc func(ctx context.Context) (*tcloud.UserPermissions, error)

// PermissionCache is a cache-aside front for user permission resolution.
//
// All store interactions are best-effort: a read failure or a corrupt
// entry is a miss, and a write failure is logged and ignored. The fetch
// path is the only operation whose errors propagate. There is no
// stampede protection; concurrent misses for the same user each fetch,
// which is acceptable at the plugin's request rates and keeps the miss
// path free of cross-request coupling.
//
// A PermissionCache with a nil client is valid and permanently misses,
// so the plugin degrades gracefully when Redis is unavailable at startup.
type PermissionCache struct {
	client *redisclient.Client
	ttl    time.Duration
}

// NewPermissionCache creates a permission cache backed by the given
// Redis client. A nil client disables caching. Zero ttl falls back to
// [DefaultPermissionTTL].
func NewPermissionCache(client *redisclient.Client, ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = DefaultPermissionTTL
	}
	return &PermissionCache{client: client, ttl: ttl}
}

// Available reports whether a cache store is configured.
func (c *PermissionCache) Available() bool {
	return c.client != nil
}

// Get returns the cached permissions for a user, or (nil, false) on a
// miss. Store failures and undecodable entries are logged and treated
// as misses.
func (c *PermissionCache) Get(ctx context.Context, email string) (*tcloud.UserPermissions, bool) {
	if c.client == nil {
		return nil, false
	}

	key := PermissionKey(email)
	raw, err := c.client.Get(ctx, key)
	if err != nil {
		if !redisclient.IsNotFound(err) {
			slog.WarnContext(ctx, "cache: permission read failed, treating as miss",
				"error", err,
			)
		}
		return nil, false
	}

	var perms tcloud.UserPermissions
	if err := json.Unmarshal([]byte(raw), &perms); err != nil {
		slog.WarnContext(ctx, "cache: corrupt permission entry, treating as miss",
			"error", err,
			"key", key,
		)
		return nil, false
	}
	return &perms, true
}

// Set caches the permissions for a user with the configured TTL.
// Returns true when the entry was stored; failures are logged and
// reported as false, never as errors.
func (c *PermissionCache) Set(ctx context.Context, email string, perms *tcloud.UserPermissions) bool {
	if c.client == nil || perms == nil {
		return false
	}

	data, err := json.Marshal(perms)
	if err != nil {
		slog.WarnContext(ctx, "cache: failed to encode permissions", "error", err)
		return false
	}
	if err := c.client.Set(ctx, PermissionKey(email), string(data), c.ttl); err != nil {
		slog.WarnContext(ctx, "cache: permission write failed", "error", err)
		return false
	}
	return true
}

// Invalidate removes the cached permissions for a user. Returns true
// when an entry was removed.
func (c *PermissionCache) Invalidate(ctx context.Context, email string) bool {
	if c.client == nil {
		return false
	}
	deleted, err := c.client.Del(ctx, PermissionKey(email))
	if err != nil {
		slog.WarnContext(ctx, "cache: permission invalidation failed", "error", err)
		return false
	}
	return deleted > 0
}

// GetOrFetch returns the cached permissions for a user, fetching and
// caching them on a miss. A cache hit never invokes fetch. The write
// after a fetch is best-effort; fetch errors propagate unchanged.
func (c *PermissionCache) GetOrFetch(ctx context.Context, email string, fetch FetchFunc) (*tcloud.UserPermissions, error) {
	if perms, ok := c.Get(ctx, email); ok {
		return perms, nil
	}

	perms, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.Set(ctx, email, perms)
	return perms, nil
}
