package errors

import (
	"fmt"
	"net/http"
)

// Error is a structured error with a machine-readable code, a
// human-readable message, and an optional wrapped cause. It implements the
// standard error interface and is the only error type the plugin's public
// surface returns.
//
// Error values are immutable after creation; WithDetail and WithDetails
// return copies.
type Error struct {
	// Code is the machine-readable error code (e.g., "TOKEN_EXPIRED").
	Code Code

	// Message is the human-readable error message. It may be surfaced to
	// gateway clients and must not contain secrets or raw tokens.
	Message string

	// Cause is the underlying error, if any. Use Unwrap to traverse it.
	Cause error

	// Details carries additional structured context, such as the
	// "status_code" of a failed downstream call.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, supporting errors.Is and errors.As
// from the standard library.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the HTTP status a gateway should respond with for
// this error. Token and key-infrastructure failures are 401 (the request
// is unauthenticated either way), downstream failures map to gateway-side
// 5xx codes, and everything else is a 500.
func (e *Error) HTTPStatus() int {
	switch {
	case tokenValidationCodes[e.Code], keyInfrastructureCodes[e.Code], e.Code == CodeAuth:
		return http.StatusUnauthorized
	case e.Code == CodeDownstreamTimeout:
		return http.StatusGatewayTimeout
	case e.Code == CodeDownstreamAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// StatusCode returns the downstream HTTP status recorded in the error's
// details, or 0 when none is present. Only errors created by the TCloud
// API client carry one.
func (e *Error) StatusCode() int {
	if v, ok := e.Details["status_code"].(int); ok {
		return v
	}
	return 0
}

// WithDetails returns a copy of the error with the given details merged
// in. The original error is not modified.
func (e *Error) WithDetails(details map[string]any) *Error {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: merged,
	}
}

// WithDetail returns a copy of the error with a single detail added.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// Format implements fmt.Formatter. Use %v for the standard rendering and
// %+v to include details and the full cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
