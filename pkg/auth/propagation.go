package auth

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Header names for identity propagation to downstream agents and tools.
// Values are plain strings except X-User-Customers, which carries a JSON
// array so consumers never have to guess a delimiter.
const (
	// HeaderAuthorization is the standard authorization header carrying
	// the bearer token on incoming requests.
	HeaderAuthorization = "Authorization"

	// HeaderUserEmail carries the resolved user email.
	HeaderUserEmail = "X-User-Email"

	// HeaderUserCustomers carries the user's customer ids as a JSON array
	// (e.g. `["cust-a","cust-b"]`).
	HeaderUserCustomers = "X-User-Customers"

	// HeaderRequestID carries the gateway request id for correlation.
	// It is only injected when the gateway supplied one.
	HeaderRequestID = "X-Request-ID"
)

// ExtractBearerToken extracts the token from an authorization header
// value. The header must consist of exactly two whitespace-separated
// parts with a case-insensitive "bearer" scheme; anything else returns
// false so the caller can pass the request through to other resolvers.
//
//	ExtractBearerToken("Bearer abc")   -> "abc", true
//	ExtractBearerToken("bearer abc")   -> "abc", true
//	ExtractBearerToken("Basic dXNlcg") -> "", false
//	ExtractBearerToken("Bearer")       -> "", false
//	ExtractBearerToken("Bearer a b")   -> "", false
func ExtractBearerToken(authHeader string) (string, bool) {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// BuildPropagationHeaders returns the identity headers to inject for the
// given user. requestID is optional; when empty, X-Request-ID is omitted.
//
// The customer list is JSON-encoded, so an identity with no customers
// yields "[]" rather than an empty value.
func BuildPropagationHeaders(user *AuthenticatedUser, requestID string) (map[string]string, error) {
	if user == nil || user.Email == "" {
		return nil, fmt.Errorf("auth: cannot build propagation headers without a resolved user")
	}

	customers, err := json.Marshal(normalizeSlice(user.Customers))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to encode customers header: %w", err)
	}

	headers := map[string]string{
		HeaderUserEmail:     user.Email,
		HeaderUserCustomers: string(customers),
	}
	if requestID != "" {
		headers[HeaderRequestID] = requestID
	}
	return headers, nil
}

// MergeHeaders combines existing request headers with injected identity
// headers. Injected values win on conflict: a client-supplied
// X-User-Email must never survive past the gateway. Neither input map is
// modified.
func MergeHeaders(existing, injected map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(injected))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range injected {
		merged[k] = v
	}
	return merged
}
