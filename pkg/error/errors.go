package error

import (
	"errors"
	"net/http"

	"github.com/auditflow/auditflow/internal/domain"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest     = &AppError{Code: "BAD_REQUEST", Message: "Bad request", Status: http.StatusBadRequest}
	ErrUnauthorized   = &AppError{Code: "UNAUTHORIZED", Message: "Unauthorized", Status: http.StatusUnauthorized}
	ErrForbidden      = &AppError{Code: "FORBIDDEN", Message: "Forbidden", Status: http.StatusForbidden}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Not found", Status: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error", Status: http.StatusInternalServerError}
	ErrConflict       = &AppError{Code: "CONFLICT", Message: "Conflict", Status: http.StatusConflict}
	ErrTooManyRequest = &AppError{Code: "RATE_LIMITED", Message: "Too many requests", Status: http.StatusTooManyRequests}
)

func NewBadRequest(message string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: message, Status: http.StatusBadRequest}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: message, Status: http.StatusUnauthorized}
}

func NewForbidden(message string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: message, Status: http.StatusForbidden}
}

func NewNotFound(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, Status: http.StatusNotFound}
}

func NewInternalServer(message string) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError}
}

func NewConflict(message string) *AppError {
	return &AppError{Code: "CONFLICT", Message: message, Status: http.StatusConflict}
}

func NewGone(message string) *AppError {
	return &AppError{Code: "EXPIRED_WINDOW", Message: message, Status: http.StatusGone}
}

// MapError translates domain errors into HTTP-facing errors.
// Anything unrecognised, including transaction failures, becomes a generic 500.
func MapError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		return NewInternalServer("An unexpected error occurred")
	}

	switch de.Kind {
	case domain.KindNotFound:
		return NewNotFound(de.Message)
	case domain.KindInvalidTransition:
		return &AppError{Code: string(de.Kind), Message: de.Message, Status: http.StatusConflict}
	case domain.KindExpiredWindow:
		return NewGone(de.Message)
	case domain.KindValidation:
		return &AppError{Code: string(de.Kind), Message: de.Message, Status: http.StatusBadRequest}
	case domain.KindForbidden:
		return NewForbidden(de.Message)
	case domain.KindUnauthorized:
		return NewUnauthorized(de.Message)
	default:
		return NewInternalServer("An unexpected error occurred")
	}
}
