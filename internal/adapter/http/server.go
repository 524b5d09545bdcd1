package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/auditflow/auditflow/infrastructure/http/middleware"
	"github.com/auditflow/auditflow/infrastructure/http/response"
	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
)

// Realtime upgrades an authenticated request into an event stream for the caller's organization
type Realtime interface {
	Serve(w http.ResponseWriter, r *http.Request, orgID, userID int64) error
}

// MetricsExporter exposes collected metrics and observes requests
type MetricsExporter interface {
	middleware.RequestObserver
	Handler() http.Handler
}

// Server represents the HTTP server
type Server struct {
	addr   string
	server *http.Server
	logger logger.Logger
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
	LoginLimit   middleware.RateLimitPolicy
	SubmitLimit  middleware.RateLimitPolicy
}

// Handlers groups the route handlers of the API
type Handlers struct {
	Auth      *AuthHandler
	Admin     *AdminHandler
	Audit     *AuditHandler
	Template  *TemplateHandler
	Issue     *IssueHandler
	Comment   *CommentHandler
	Assistant *AssistantHandler
}

// Infrastructure groups the cross-cutting pieces the router is built from.
// Metrics, Realtime and Health are optional.
type Infrastructure struct {
	Auth      *middleware.AuthMiddleware
	RateLimit *middleware.RateLimitMiddleware
	Metrics   MetricsExporter
	Realtime  Realtime
	Health    func(ctx context.Context) error
	Logger    logger.Logger
}

// NewServer creates a new HTTP server
func NewServer(config ServerConfig, handlers Handlers, infra Infrastructure) *Server {
	if infra.Logger == nil {
		infra.Logger = logger.NewNopLogger()
	}

	router := NewRouter(config, handlers, infra)

	var handler http.Handler = router
	handler = middleware.CORSMiddleware(handler, config.CORSOrigins, true)
	handler = middleware.LoggingMiddleware(infra.Logger)(handler)
	handler = middleware.CorrelationIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(infra.Logger)(handler)

	return &Server{
		addr:   ":" + config.Port,
		logger: infra.Logger,
		server: &http.Server{
			Addr:         ":" + config.Port,
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

// NewRouter registers every route on a fresh router
func NewRouter(config ServerConfig, handlers Handlers, infra Infrastructure) *mux.Router {
	router := mux.NewRouter()
	if infra.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(infra.Metrics))
		router.Handle("/metrics", infra.Metrics.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/health", healthHandler(infra.Health)).Methods(http.MethodGet)

	passthrough := func(next http.Handler) http.Handler { return next }
	loginLimit, submitLimit := passthrough, passthrough
	if infra.RateLimit != nil {
		loginLimit = infra.RateLimit.Limit(config.LoginLimit)
		submitLimit = infra.RateLimit.Limit(config.SubmitLimit)
	}
	auditeeOnly := middleware.RequireRoles(domain.RoleAuditee)
	submit := func(next http.Handler) http.Handler {
		return auditeeOnly(submitLimit(next))
	}

	api := router.PathPrefix("/api").Subrouter()
	handlers.Auth.RegisterPublicRoutes(api, loginLimit)

	protected := api.NewRoute().Subrouter()
	protected.Use(infra.Auth.RequireAuth)
	handlers.Auth.RegisterRoutes(protected)
	handlers.Admin.RegisterRoutes(protected)
	handlers.Audit.RegisterRoutes(protected)
	handlers.Template.RegisterRoutes(protected)
	handlers.Issue.RegisterRoutes(protected)
	handlers.Comment.RegisterRoutes(protected, submit)
	handlers.Assistant.RegisterRoutes(protected)

	if infra.Realtime != nil {
		// events carry draft issue content, so auditees are not subscribed
		staffOnly := middleware.RequireRoles(domain.RoleHeadOfAudit, domain.RoleManager, domain.RoleAuditor)
		router.Handle("/ws", infra.Auth.RequireAuth(staffOnly(realtimeHandler(infra.Realtime, infra.Logger)))).Methods(http.MethodGet)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "Route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed", "METHOD_NOT_ALLOWED")
	})

	return router
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				response.Error(w, http.StatusServiceUnavailable, "Database unavailable", "UNAVAILABLE")
				return
			}
		}
		response.Success(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
	}
}

func realtimeHandler(rt Realtime, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFrom(r.Context())
		if !ok {
			response.Unauthorized(w, "User not authenticated")
			return
		}
		// the upgrader has already written an error response on failure
		if err := rt.Serve(w, r, principal.OrganizationID, principal.UserID); err != nil {
			log.Warn(r.Context(), "websocket upgrade failed", map[string]interface{}{
				"user_id": principal.UserID,
				"error":   err.Error(),
			})
		}
	}
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Starting HTTP server", map[string]interface{}{"addr": s.addr})
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down HTTP server", nil)
	return s.server.Shutdown(ctx)
}
