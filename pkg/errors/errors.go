// Package errors provides the structured error types used throughout the
// TCloud Cognito auth plugin. Every failure the plugin can surface to the
// gateway carries a short machine-readable code alongside the human-readable
// message, so the host (and its clients) can branch on the code without
// parsing message text.
//
// # Error Classes
//
// The codes fall into four classes with different handling policies:
//
//   - Token validation errors (expired, bad signature, bad issuer, bad
//     audience, malformed): abort the auth chain.
//   - Key infrastructure errors (key set unreachable, key id unknown):
//     also abort the chain — a signature that cannot be proven is treated
//     as unproven.
//   - Downstream API errors (permissions fetch failed or timed out):
//     recovered at the orchestrator according to the configured failure
//     mode (fail-open by default).
//   - Cache errors: always recovered locally; the cache is an accelerator,
//     never a source of truth.
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeTokenExpired, "token has expired")
//
// Wrap an underlying cause:
//
//	err := errors.Wrap(err, errors.CodeKeySetFetch, "failed to fetch JWKS")
//
// Branch on classification:
//
//	if errors.IsTokenValidation(err) {
//	    // deny the request with the code from GetCode(err)
//	}
package errors
