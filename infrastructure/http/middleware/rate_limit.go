package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/auditflow/auditflow/infrastructure/http/response"
	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/ports"
)

// RateLimitHitCounter counts rejected requests
type RateLimitHitCounter interface {
	IncrementRateLimitHit(route string)
}

// RateLimitPolicy limits requests per caller within a window
type RateLimitPolicy struct {
	Name          string
	Limit         int
	Window        time.Duration
	BlockDuration time.Duration
}

type RateLimitMiddleware struct {
	limiter ports.AttemptLimiter
	hits    RateLimitHitCounter
	logger  logger.Logger
}

func NewRateLimitMiddleware(limiter ports.AttemptLimiter, hits RateLimitHitCounter, logger logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		hits:    hits,
		logger:  logger,
	}
}

// Limit applies policy per authenticated user, or per client IP for anonymous callers
func (m *RateLimitMiddleware) Limit(policy RateLimitPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if m.limiter == nil || policy.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("%s:ip:%s", policy.Name, getClientIP(r))
			if p, ok := PrincipalFrom(ctx); ok {
				key = fmt.Sprintf("%s:user:%d", policy.Name, p.UserID)
			}

			isBlocked, err := m.limiter.IsBlocked(ctx, key)
			if err != nil {
				// fail open when Redis is unavailable
				m.logger.Error(ctx, "Failed to check block status", err, map[string]interface{}{"key": key})
			}
			if isBlocked {
				m.reject(w, r, policy, key, "rate_limit_blocked")
				return
			}

			allowed, err := m.limiter.CheckLimit(ctx, key, policy.Limit, policy.Window)
			if err != nil {
				m.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"key": key})
				allowed = true
			}
			if !allowed {
				if policy.BlockDuration > 0 {
					if err := m.limiter.Block(ctx, key, policy.BlockDuration, "Rate limit exceeded"); err != nil {
						m.logger.Error(ctx, "Failed to block key", err, map[string]interface{}{"key": key})
					}
				}
				m.reject(w, r, policy, key, "rate_limit_exceeded")
				return
			}

			if err := m.limiter.Increment(ctx, key, policy.Window); err != nil {
				m.logger.Error(ctx, "Failed to increment rate limit", err, map[string]interface{}{"key": key})
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *RateLimitMiddleware) reject(w http.ResponseWriter, r *http.Request, policy RateLimitPolicy, key, event string) {
	logger.LogSecurityEvent(r.Context(), m.logger, event, "MEDIUM", map[string]interface{}{
		"path":      r.URL.Path,
		"key":       key,
		"userAgent": r.UserAgent(),
	})
	if m.hits != nil {
		m.hits.IncrementRateLimitHit(policy.Name)
	}

	retry := policy.BlockDuration
	if retry <= 0 {
		retry = policy.Window
	}
	w.Header().Set("Retry-After", fmt.Sprintf("%d", int(retry.Seconds())))
	response.TooManyRequests(w, "Too many requests. Please try again later.")
}
