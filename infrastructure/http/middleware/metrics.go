package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// RequestObserver receives per-request measurements
type RequestObserver interface {
	ObserveRequest(method, route string, status int, seconds float64)
}

// MetricsMiddleware records request counts and latency labelled by route template
func MetricsMiddleware(observer RequestObserver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			observer.ObserveRequest(r.Method, routeTemplate(r), rec.status, time.Since(start).Seconds())
		})
	}
}

// routeTemplate keeps label cardinality bounded by using the mux path template
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
