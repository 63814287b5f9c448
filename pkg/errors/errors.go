package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable, client-facing error identifier.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeSignature     Code = "SIGNATURE_INVALID"
)

// Metadata is the transport contract for a code. ExposeMessage lets the
// error's own message through to clients; otherwise PublicMessage is sent.
// Details are only echoed when DetailsAllowed is set.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

var catalog = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed",
		ExposeMessage: true, DetailsAllowed: true,
	},
	CodeUnauthorized: {
		HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required",
		ExposeMessage: true,
	},
	CodeForbidden: {
		HTTPStatus: http.StatusForbidden, PublicMessage: "access denied",
		ExposeMessage: true,
	},
	CodeNotFound: {
		HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found",
		ExposeMessage: true,
	},
	CodeConflict: {
		HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected",
		ExposeMessage: true,
	},
	CodeStateConflict: {
		HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed",
		ExposeMessage: true, DetailsAllowed: true,
	},
	CodeIdempotency: {
		HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused",
		ExposeMessage: true, DetailsAllowed: true,
	},
	CodeRateLimit: {
		HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded",
		ExposeMessage: true,
	},
	CodeInternal: {
		HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error",
		Retryable: true,
	},
	CodeDependency: {
		HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable",
		Retryable: true, ExposeMessage: true, DetailsAllowed: true,
	},
	CodeSignature: {
		HTTPStatus: http.StatusBadRequest, PublicMessage: "signature verification failed",
	},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := catalog[code]; ok {
		return m
	}
	return catalog[CodeInternal]
}

// HTTPStatus maps any error to its response status. Untyped errors are 500.
func HTTPStatus(err error) int {
	return MetadataFor(As(err).Code()).HTTPStatus
}

// Retryable reports whether a client may retry the failed call unchanged.
// Untyped errors are treated as internal.
func Retryable(err error) bool {
	return MetadataFor(As(err).Code()).Retryable
}

// Error is a coded error with an optional cause and client-safe details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap keeps err as the cause; a nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Public returns what a client may see: the message and details filtered by
// the code's metadata.
func (e *Error) Public() (message string, details any) {
	m := MetadataFor(e.Code())
	message = m.PublicMessage
	if m.ExposeMessage && e.Message() != "" {
		message = e.Message()
	}
	if m.DetailsAllowed {
		details = e.Details()
	}
	return message, details
}

// Error includes the cause so wrapped driver errors reach the logs.
func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

// Is matches another *Error by code, so errors.Is(err, New(CodeNotFound, ""))
// works across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return As(err) != nil && As(err).Code() == code
}
