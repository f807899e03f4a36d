package errors

// Code is the machine-readable identifier attached to every plugin error.
// Codes are part of the wire contract with the hosting gateway: the
// resolve-identity hook surfaces them verbatim in its error payload, so
// they must remain stable once assigned.
type Code string

const (
	// CodeAuth is the generic authentication failure code. It is the base
	// classification for errors that do not fit a more specific code.
	CodeAuth Code = "AUTH_ERROR"

	// CodeTokenInvalid indicates the token is malformed or failed claims
	// validation for a reason without a dedicated code.
	CodeTokenInvalid Code = "INVALID_TOKEN"

	// CodeTokenExpired indicates the token's expiry (beyond the configured
	// clock-skew tolerance) has passed.
	CodeTokenExpired Code = "TOKEN_EXPIRED"

	// CodeInvalidSignature indicates signature verification failed.
	CodeInvalidSignature Code = "INVALID_SIGNATURE"

	// CodeInvalidIssuer indicates the token's iss claim does not match the
	// configured Cognito issuer URL.
	CodeInvalidIssuer Code = "INVALID_ISSUER"

	// CodeInvalidAudience indicates an access token's client_id does not
	// match the configured app client id.
	CodeInvalidAudience Code = "INVALID_AUDIENCE"

	// CodeKeySetFetch indicates the Cognito JWKS document could not be
	// fetched and no previously fetched key set is available.
	CodeKeySetFetch Code = "JWKS_FETCH_ERROR"

	// CodeKeyNotFound indicates the token's key id was not present in the
	// key set even after a forced refresh.
	CodeKeyNotFound Code = "KEY_NOT_FOUND"

	// CodeDownstreamAPI indicates the TCloud permissions API returned a
	// non-recoverable status. The HTTP status, when known, is attached as
	// the "status_code" detail.
	CodeDownstreamAPI Code = "TCLOUD_API_ERROR"

	// CodeDownstreamTimeout indicates the TCloud permissions API did not
	// respond within the configured timeout.
	CodeDownstreamTimeout Code = "TCLOUD_API_TIMEOUT"

	// CodeCache indicates a cache store operation failed. Callers treat
	// this as a cache miss; it never aborts a request.
	CodeCache Code = "CACHE_ERROR"

	// CodeConfig indicates the plugin configuration is missing or invalid.
	CodeConfig Code = "CONFIG_ERROR"

	// CodePluginState indicates a lifecycle violation, such as validating
	// a token before Initialize has completed.
	CodePluginState Code = "PLUGIN_STATE_ERROR"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// tokenValidationCodes are the codes that represent a failed proof of the
// presented token itself. They always abort the auth chain.
var tokenValidationCodes = map[Code]bool{
	CodeTokenInvalid:     true,
	CodeTokenExpired:     true,
	CodeInvalidSignature: true,
	CodeInvalidIssuer:    true,
	CodeInvalidAudience:  true,
}

// keyInfrastructureCodes are the codes for signing-key problems. They are
// not the caller's fault but still deny the request, since the signature
// cannot be proven without the key.
var keyInfrastructureCodes = map[Code]bool{
	CodeKeySetFetch: true,
	CodeKeyNotFound: true,
}

// downstreamCodes are the codes raised by the TCloud permissions API
// client. The orchestrator recovers them according to the configured
// failure mode.
var downstreamCodes = map[Code]bool{
	CodeDownstreamAPI:     true,
	CodeDownstreamTimeout: true,
}
