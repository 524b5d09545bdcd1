package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/auditflow/auditflow/infrastructure/http/response"
	"github.com/auditflow/auditflow/infrastructure/http/validator"
	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
	"github.com/auditflow/auditflow/internal/usecase"
)

// AuthUseCase defines the behavior the auth handler depends on
type AuthUseCase interface {
	Login(ctx context.Context, req usecase.LoginRequest, now time.Time) (*usecase.LoginResponse, error)
	Me(ctx context.Context, rc domain.RequestContext) (*domain.User, error)
	EnrollMFA(ctx context.Context, rc domain.RequestContext) (*usecase.MFAEnrollment, error)
	ConfirmMFA(ctx context.Context, rc domain.RequestContext, code string) error
}

// AuthHandler handles login and the caller's own account
type AuthHandler struct {
	base
	authUseCase AuthUseCase
}

func NewAuthHandler(authUseCase AuthUseCase, clock ports.Clock, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		base:        newBase(clock, log, 0),
		authUseCase: authUseCase,
	}
}

// RegisterPublicRoutes registers routes reachable without a token. limit guards the login endpoint.
func (h *AuthHandler) RegisterPublicRoutes(router *mux.Router, limit func(http.Handler) http.Handler) {
	router.Handle("/auth/login", limit(http.HandlerFunc(h.Login))).Methods(http.MethodPost)
}

// RegisterRoutes registers authenticated account routes
func (h *AuthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	router.HandleFunc("/me/mfa/enroll", h.EnrollMFA).Methods(http.MethodPost)
	router.HandleFunc("/me/mfa/confirm", h.ConfirmMFA).Methods(http.MethodPost)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req usecase.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		response.BadRequest(w, "Email and password are required")
		return
	}
	if !validator.ValidateEmail(req.Email) {
		response.BadRequest(w, "Invalid email format")
		return
	}
	if req.OTPCode != "" && !validator.ValidateOTPCode(req.OTPCode) {
		response.BadRequest(w, "Invalid authentication code")
		return
	}

	result, err := h.authUseCase.Login(r.Context(), req, h.clock.Now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Login successful", result)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	user, err := h.authUseCase.Me(r.Context(), rc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "User retrieved successfully", user)
}

func (h *AuthHandler) EnrollMFA(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	enrollment, err := h.authUseCase.EnrollMFA(r.Context(), rc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Scan the provisioning URL with an authenticator app", enrollment)
}

func (h *AuthHandler) ConfirmMFA(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !validator.ValidateOTPCode(req.Code) {
		response.BadRequest(w, "Invalid authentication code")
		return
	}
	if err := h.authUseCase.ConfirmMFA(r.Context(), rc, req.Code); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Two-factor authentication enabled", nil)
}
