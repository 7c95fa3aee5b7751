// Package errors defines the coded error type shared by services and the HTTP
// layer. A Code decides the response status and what a caller may see.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

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

	CodePaymentRequired  Code = "PAYMENT_REQUIRED"
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
	CodeUnknownProduct   Code = "UNKNOWN_PRODUCT"
	CodeUnknownUser      Code = "UNKNOWN_USER"
)

// Policy is how a code is rendered to API callers. Public is the fallback
// message; when EchoMessage is set the error's own message replaces it.
type Policy struct {
	Status      int
	Retryable   bool
	Public      string
	ShowDetails bool
	EchoMessage bool
}

var policies = map[Code]Policy{
	CodeValidation:       {Status: http.StatusBadRequest, Public: "validation failed", ShowDetails: true, EchoMessage: true},
	CodeUnauthorized:     {Status: http.StatusUnauthorized, Public: "authentication required", EchoMessage: true},
	CodeForbidden:        {Status: http.StatusForbidden, Public: "access denied", EchoMessage: true},
	CodeNotFound:         {Status: http.StatusNotFound, Public: "resource not found", EchoMessage: true},
	CodeConflict:         {Status: http.StatusConflict, Public: "conflict detected", EchoMessage: true},
	CodeStateConflict:    {Status: http.StatusUnprocessableEntity, Public: "state transition disallowed", ShowDetails: true, EchoMessage: true},
	CodeIdempotency:      {Status: http.StatusConflict, Public: "idempotency key reused", ShowDetails: true, EchoMessage: true},
	CodeRateLimit:        {Status: http.StatusTooManyRequests, Public: "rate limit exceeded", EchoMessage: true},
	CodeInternal:         {Status: http.StatusInternalServerError, Retryable: true, Public: "internal server error"},
	CodeDependency:       {Status: http.StatusServiceUnavailable, Retryable: true, Public: "dependency unavailable", ShowDetails: true},
	CodePaymentRequired:  {Status: http.StatusPaymentRequired, Public: "not enough credits, buy more credits to continue", ShowDetails: true},
	CodeInvalidSignature: {Status: http.StatusUnauthorized, Public: "invalid signature"},
	CodeUnknownProduct:   {Status: http.StatusUnprocessableEntity, Public: "unknown product", ShowDetails: true, EchoMessage: true},
	CodeUnknownUser:      {Status: http.StatusUnprocessableEntity, Public: "unknown user", ShowDetails: true, EchoMessage: true},
}

// PolicyFor returns the rendering policy of code; unknown codes render as internal.
func PolicyFor(code Code) Policy {
	if p, ok := policies[code]; ok {
		return p
	}
	return policies[CodeInternal]
}

// Error is a coded error with an optional cause and caller-visible details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
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

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
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

// IsCode reports whether the outermost *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether err's code is marked retryable. Uncoded errors
// are treated as internal and therefore retryable.
func IsRetryable(err error) bool {
	if typed := As(err); typed != nil {
		return PolicyFor(typed.code).Retryable
	}
	return err != nil
}
