package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/auditflow/auditflow/infrastructure/http/response"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

type principalKey struct{}

type AuthMiddleware struct {
	tokenService ports.TokenService
}

func NewAuthMiddleware(tokenService ports.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on a
// websocket handshake, so upgrades may pass the token as access_token instead.
func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, ""
			}
		}
		return "", "Authorization header required"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "Invalid authorization header format"
	}
	if parts[1] == "" {
		return "", "Token cannot be empty"
	}
	return parts[1], ""
}

// RequireAuth validates the bearer token and stores the principal in the request context
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, problem := bearerToken(r)
		if problem != "" {
			response.Unauthorized(w, problem)
			return
		}

		principal, err := m.tokenService.ValidateAccessToken(token)
		if err != nil {
			response.Unauthorized(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *principal)))
	})
}

// RequireRoles allows only principals holding one of roles. It must run after RequireAuth.
func RequireRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				response.Unauthorized(w, "User not authenticated")
				return
			}
			for _, role := range roles {
				if principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "Insufficient role for this action")
		})
	}
}

// WithPrincipal stores the authenticated caller in ctx
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom retrieves the authenticated caller from ctx
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}
