package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, X-Correlation-ID"
	corsExposeHeaders = "X-Correlation-ID, Content-Disposition, Retry-After"
	corsMaxAge        = 600
)

type corsPolicy struct {
	origins     map[string]bool
	any         bool
	credentials bool
}

func newCORSPolicy(allowedOrigins []string, allowCredentials bool) corsPolicy {
	p := corsPolicy{origins: make(map[string]bool, len(allowedOrigins)), credentials: allowCredentials}
	for _, o := range allowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[strings.ToLower(o)] = true
		}
	}
	return p
}

func (p corsPolicy) allows(origin string) bool {
	return origin != "" && (p.any || p.origins[strings.ToLower(origin)])
}

// CORSMiddleware lets the configured browser origins call the API. "*" allows any origin;
// the request origin is echoed back so credentials keep working.
func CORSMiddleware(next http.Handler, allowedOrigins []string, allowCredentials bool) http.Handler {
	policy := newCORSPolicy(allowedOrigins, allowCredentials)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")

		origin := r.Header.Get("Origin")
		allowed := policy.allows(origin)
		if allowed {
			h.Set("Access-Control-Allow-Origin", origin)
			if policy.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		}

		// preflight
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if allowed {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
