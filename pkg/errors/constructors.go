package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the specified code and message.
//
// Example:
//
//	err := errors.New(errors.CodeKeyNotFound, "key id 'abc' not found in key set")
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with the specified code and formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with a code and message. The wrapped error
// becomes the Cause of the new error. If err is nil, Wrap returns nil.
//
// Example:
//
//	if err := resp.Body.Close(); err != nil {
//	    return errors.Wrap(err, errors.CodeKeySetFetch, "failed to fetch JWKS")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a code and formatted message.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// TokenExpired creates a TOKEN_EXPIRED error.
func TokenExpired(message string) *Error {
	return New(CodeTokenExpired, message)
}

// TokenInvalid creates an INVALID_TOKEN error.
func TokenInvalid(message string) *Error {
	return New(CodeTokenInvalid, message)
}

// InvalidSignature creates an INVALID_SIGNATURE error.
func InvalidSignature(message string) *Error {
	return New(CodeInvalidSignature, message)
}

// InvalidIssuer creates an INVALID_ISSUER error.
func InvalidIssuer(message string) *Error {
	return New(CodeInvalidIssuer, message)
}

// InvalidAudience creates an INVALID_AUDIENCE error.
func InvalidAudience(message string) *Error {
	return New(CodeInvalidAudience, message)
}

// DownstreamAPI creates a TCLOUD_API_ERROR with the failing HTTP status
// attached as the "status_code" detail. Pass 0 when no HTTP response was
// received.
func DownstreamAPI(message string, statusCode int) *Error {
	err := New(CodeDownstreamAPI, message)
	if statusCode != 0 {
		return err.WithDetail("status_code", statusCode)
	}
	return err
}

// FromError converts any error to an *Error. If the error already is (or
// wraps) an *Error, that value is returned as-is; otherwise it is wrapped
// with CodeAuth.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeAuth, "authentication failed")
}
