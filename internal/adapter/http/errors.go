package http

import (
	"errors"
	"net/http"

	"github.com/auditflow/auditflow/internal/usecase"
	apperror "github.com/auditflow/auditflow/pkg/error"
)

// mapError extends the shared mapping with errors that only the HTTP layer distinguishes
func mapError(err error) *apperror.AppError {
	if errors.Is(err, usecase.ErrAssistantBusy) {
		return &apperror.AppError{Code: "RATE_LIMITED", Message: usecase.ErrAssistantBusy.Error(), Status: http.StatusTooManyRequests}
	}
	return apperror.MapError(err)
}
