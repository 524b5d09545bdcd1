package middleware

import (
	"net/http"
	"time"

	"github.com/auditflow/auditflow/infrastructure/service/logger"
)

// LoggingMiddleware logs one line per request
func LoggingMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"bytes":       rec.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
				"user_agent":  r.UserAgent(),
			}
			if p, ok := PrincipalFrom(r.Context()); ok {
				fields["user_id"] = p.UserID
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				log.Warn(r.Context(), "request failed", fields)
			default:
				log.Info(r.Context(), "request completed", fields)
			}
		})
	}
}
