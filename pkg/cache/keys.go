// Package cache provides the Redis-backed caches the auth plugin keeps
// in front of its expensive operations: resolved user permissions and
// token validation verdicts.
//
// Both caches are strictly best-effort. A Redis failure is logged and
// treated as a miss; it never fails a request. Cache entries are keyed
// by SHA-256 digests so neither emails nor tokens appear in Redis keys.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key namespaces. Prefixes are part of the operational contract (runbook
// commands reference them), so they must remain stable.
const (
	// PermissionKeyPrefix namespaces permission entries.
	PermissionKeyPrefix = "tcloud:auth:permissions:"

	// TokenKeyPrefix namespaces token-verdict entries.
	TokenKeyPrefix = "tcloud:auth:token:"
)

// emailHashLen is the number of hex digits of the email digest kept in
// the key. 16 digits (64 bits) keeps keys short with no realistic
// collision risk at the plugin's user scale.
const emailHashLen = 16

// PermissionKey derives the Redis key for a user's permission entry.
// The email is lowercased before hashing so lookups are case-insensitive,
// and hashed so special characters and PII stay out of Redis keys.
func PermissionKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(email)))
	return PermissionKeyPrefix + hex.EncodeToString(sum[:])[:emailHashLen]
}

// TokenKey derives the Redis key for a token-verdict entry from the
// token's SHA-256 hash (see the auth package's TokenHash).
func TokenKey(tokenHash string) string {
	return TokenKeyPrefix + tokenHash
}
