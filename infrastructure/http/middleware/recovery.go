package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/auditflow/auditflow/infrastructure/http/response"
	"github.com/auditflow/auditflow/infrastructure/service/logger"
)

// RecoveryMiddleware turns a handler panic into a 500 response
func RecoveryMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error(r.Context(), "panic recovered", fmt.Errorf("%v", rec), map[string]interface{}{
						"method": r.Method,
						"path":   r.URL.Path,
						"stack":  string(debug.Stack()),
					})
					response.InternalServerError(w, "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
