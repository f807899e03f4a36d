package errors

import (
	"errors"
)

// AsError attempts to convert an error to an *Error by traversing the
// error chain. Returns the Error and true on success.
//
// Example:
//
//	if e, ok := errors.AsError(err); ok {
//	    slog.Warn("auth failed", "code", e.Code, "message", e.Message)
//	}
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the error code from an error, or an empty string if the
// error is nil or not an *Error.
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether the error carries the specified code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsTokenValidation reports whether the error is a token-validation
// failure (expired, malformed, bad signature, bad issuer, bad audience).
// These errors always abort the auth chain.
func IsTokenValidation(err error) bool {
	return tokenValidationCodes[GetCode(err)]
}

// IsTokenExpired reports whether the error is specifically TOKEN_EXPIRED.
// The orchestrator maps this to a distinct error payload so clients can
// trigger a token refresh instead of a full re-login.
func IsTokenExpired(err error) bool {
	return HasCode(err, CodeTokenExpired)
}

// IsKeyInfrastructure reports whether the error is a signing-key problem
// (JWKS unreachable with no cached set, or key id unknown after a forced
// refresh). Surfaced to callers as token-validation-class failures.
func IsKeyInfrastructure(err error) bool {
	return keyInfrastructureCodes[GetCode(err)]
}

// IsDownstreamAPI reports whether the error came from the TCloud
// permissions API (including timeouts).
func IsDownstreamAPI(err error) bool {
	return downstreamCodes[GetCode(err)]
}

// IsCache reports whether the error is a cache-store failure. Cache
// errors are always recovered locally and treated as a miss.
func IsCache(err error) bool {
	return HasCode(err, CodeCache)
}

// AbortsAuthChain reports whether the error must stop the gateway's auth
// chain (continue_processing=false). Token-validation and
// key-infrastructure failures abort; everything else degrades.
func AbortsAuthChain(err error) bool {
	code := GetCode(err)
	return tokenValidationCodes[code] || keyInfrastructureCodes[code] || code == CodeAuth
}

// IsRetryable reports whether retrying the operation might succeed.
// Downstream timeouts and key set fetch failures are transient by nature;
// token-validation failures are not.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeDownstreamTimeout, CodeKeySetFetch, CodeCache:
		return true
	default:
		return false
	}
}
