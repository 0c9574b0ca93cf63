package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable, client-visible error code.
type Code string

const (
	CodeAuthenticationRequired    Code = "AUTHENTICATION_REQUIRED"
	CodeNotFound                  Code = "NOT_FOUND"
	CodeInvalidAmount             Code = "INVALID_AMOUNT"
	CodeInsufficientBalance       Code = "INSUFFICIENT_BALANCE"
	CodeInsufficientLockedBalance Code = "INSUFFICIENT_LOCKED_BALANCE"
	CodeInvalidTarget             Code = "INVALID_TARGET"
	CodeUnknownModule             Code = "UNKNOWN_MODULE"
	CodeValidation                Code = "VALIDATION_ERROR"
	CodeConflict                  Code = "CONFLICT"
	CodeInternal                  Code = "INTERNAL_ERROR"
)

// Error is a classified failure carried from the services to the HTTP layer.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so the package-level values
// below work as sentinels with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

var (
	ErrAuthenticationRequired    = New(CodeAuthenticationRequired, "authentication required")
	ErrNotFound                  = New(CodeNotFound, "not found")
	ErrInvalidAmount             = New(CodeInvalidAmount, "amount must be greater than zero")
	ErrInsufficientBalance       = New(CodeInsufficientBalance, "insufficient balance")
	ErrInsufficientLockedBalance = New(CodeInsufficientLockedBalance, "insufficient locked balance")
	ErrInvalidTarget             = New(CodeInvalidTarget, "invalid target")
	ErrUnknownModule             = New(CodeUnknownModule, "unknown module")
	ErrValidation                = New(CodeValidation, "validation failed")
	ErrConflict                  = New(CodeConflict, "conflict")
	ErrInternal                  = New(CodeInternal, "internal error")
)

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal for unclassified errors.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error code onto a response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeAuthenticationRequired:
		return http.StatusUnauthorized
	case CodeNotFound, CodeUnknownModule:
		return http.StatusNotFound
	case CodeInvalidAmount, CodeInsufficientBalance, CodeInsufficientLockedBalance,
		CodeInvalidTarget, CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the failure may succeed on a later attempt.
func Retryable(err error) bool {
	return CodeOf(err) == CodeInternal
}
