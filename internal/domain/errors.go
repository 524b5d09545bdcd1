package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain failure so callers can react without string matching
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindInvalidTransition  ErrorKind = "INVALID_TRANSITION"
	KindExpiredWindow      ErrorKind = "EXPIRED_WINDOW"
	KindValidation         ErrorKind = "VALIDATION_ERROR"
	KindTransactionFailure ErrorKind = "TRANSACTION_FAILURE"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindUnauthorized       ErrorKind = "UNAUTHORIZED"
)

// Error represents a domain-specific error
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any domain error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is
var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrExpiredWindow      = &Error{Kind: KindExpiredWindow, Message: "submission window expired"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrTransactionFailure = &Error{Kind: KindTransactionFailure, Message: "transaction failed"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
)

func NewNotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func NewInvalidTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func NewExpiredWindow(message string) *Error {
	return &Error{Kind: KindExpiredWindow, Message: message}
}

func NewValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewTransactionFailure(cause error) *Error {
	return &Error{Kind: KindTransactionFailure, Message: "transaction failed", Cause: cause}
}

func NewForbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func NewUnauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// KindOf returns the kind of the first domain error in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
