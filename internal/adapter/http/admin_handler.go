package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
	"github.com/auditflow/auditflow/internal/usecase"
)

type AdminUseCase interface {
	CreateOrganization(ctx context.Context, rc domain.RequestContext, req usecase.CreateOrganizationRequest) (*domain.Organization, error)
	ListOrganizations(ctx context.Context, rc domain.RequestContext) ([]*domain.Organization, error)
	CreateUser(ctx context.Context, rc domain.RequestContext, req usecase.CreateUserRequest) (*domain.User, error)
	ListUsers(ctx context.Context, rc domain.RequestContext) ([]*domain.User, error)
	CreateAuditee(ctx context.Context, rc domain.RequestContext, req usecase.CreateAuditeeRequest) (*usecase.CreateAuditeeResult, error)
	UpdateAuditee(ctx context.Context, rc domain.RequestContext, id int64, req usecase.UpdateAuditeeRequest) (*domain.Auditee, error)
	DeleteAuditee(ctx context.Context, rc domain.RequestContext, id int64) error
	ListAuditees(ctx context.Context, rc domain.RequestContext) ([]*domain.Auditee, error)
	GetAuditee(ctx context.Context, rc domain.RequestContext, id int64) (*domain.Auditee, error)
}

type UniverseUseCase interface {
	Create(ctx context.Context, rc domain.RequestContext, req usecase.UniverseItemRequest) (*domain.AuditUniverseItem, error)
	Update(ctx context.Context, rc domain.RequestContext, id int64, req usecase.UniverseItemRequest) (*domain.AuditUniverseItem, error)
	Delete(ctx context.Context, rc domain.RequestContext, id int64) error
	Get(ctx context.Context, rc domain.RequestContext, id int64) (*domain.AuditUniverseItem, error)
	ListByAuditee(ctx context.Context, rc domain.RequestContext, auditeeID int64) ([]*domain.AuditUniverseItem, error)
}

// AdminHandler handles organizations, users, auditees and the audit universe
type AdminHandler struct {
	base
	adminUseCase    AdminUseCase
	universeUseCase UniverseUseCase
}

func NewAdminHandler(adminUseCase AdminUseCase, universeUseCase UniverseUseCase, clock ports.Clock, log logger.Logger) *AdminHandler {
	return &AdminHandler{
		base:            newBase(clock, log, 0),
		adminUseCase:    adminUseCase,
		universeUseCase: universeUseCase,
	}
}

func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/organizations", h.CreateOrganization).Methods(http.MethodPost)
	router.HandleFunc("/organizations", h.ListOrganizations).Methods(http.MethodGet)
	router.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	router.HandleFunc("/users", h.ListUsers).Methods(http.MethodGet)

	router.HandleFunc("/auditees", h.CreateAuditee).Methods(http.MethodPost)
	router.HandleFunc("/auditees", h.ListAuditees).Methods(http.MethodGet)
	router.HandleFunc("/auditees/{auditeeID}", h.GetAuditee).Methods(http.MethodGet)
	router.HandleFunc("/auditees/{auditeeID}", h.UpdateAuditee).Methods(http.MethodPut)
	router.HandleFunc("/auditees/{auditeeID}", h.DeleteAuditee).Methods(http.MethodDelete)
	router.HandleFunc("/auditees/{auditeeID}/universe", h.ListUniverse).Methods(http.MethodGet)

	router.HandleFunc("/universe", h.CreateUniverseItem).Methods(http.MethodPost)
	router.HandleFunc("/universe/{id}", h.GetUniverseItem).Methods(http.MethodGet)
	router.HandleFunc("/universe/{id}", h.UpdateUniverseItem).Methods(http.MethodPut)
	router.HandleFunc("/universe/{id}", h.DeleteUniverseItem).Methods(http.MethodDelete)
}

func (h *AdminHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req usecase.CreateOrganizationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	org, err := h.adminUseCase.CreateOrganization(r.Context(), rc, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "Organization created successfully", org)
}

func (h *AdminHandler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	orgs, err := h.adminUseCase.ListOrganizations(r.Context(), rc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Organizations retrieved successfully", orgs)
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req usecase.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.adminUseCase.CreateUser(r.Context(), rc, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "User created successfully", user)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	users, err := h.adminUseCase.ListUsers(r.Context(), rc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Users retrieved successfully", users)
}

func (h *AdminHandler) CreateAuditee(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req usecase.CreateAuditeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	auditee, err := h.adminUseCase.CreateAuditee(r.Context(), rc, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "Auditee created successfully", auditee)
}

func (h *AdminHandler) UpdateAuditee(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "auditeeID")
	if !ok {
		return
	}
	var req usecase.UpdateAuditeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	auditee, err := h.adminUseCase.UpdateAuditee(r.Context(), rc, id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Auditee updated successfully", auditee)
}

func (h *AdminHandler) DeleteAuditee(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "auditeeID")
	if !ok {
		return
	}
	if err := h.adminUseCase.DeleteAuditee(r.Context(), rc, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Auditee deleted successfully", nil)
}

func (h *AdminHandler) ListAuditees(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditees, err := h.adminUseCase.ListAuditees(r.Context(), rc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Auditees retrieved successfully", auditees)
}

func (h *AdminHandler) GetAuditee(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "auditeeID")
	if !ok {
		return
	}
	auditee, err := h.adminUseCase.GetAuditee(r.Context(), rc, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Auditee retrieved successfully", auditee)
}

func (h *AdminHandler) ListUniverse(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditeeID, ok := pathID(w, r, "auditeeID")
	if !ok {
		return
	}
	items, err := h.universeUseCase.ListByAuditee(r.Context(), rc, auditeeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Universe retrieved successfully", items)
}

func (h *AdminHandler) CreateUniverseItem(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req usecase.UniverseItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.universeUseCase.Create(r.Context(), rc, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "Universe item created successfully", item)
}

func (h *AdminHandler) GetUniverseItem(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := h.universeUseCase.Get(r.Context(), rc, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Universe item retrieved successfully", item)
}

func (h *AdminHandler) UpdateUniverseItem(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req usecase.UniverseItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := h.universeUseCase.Update(r.Context(), rc, id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Universe item updated successfully", item)
}

func (h *AdminHandler) DeleteUniverseItem(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.universeUseCase.Delete(r.Context(), rc, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Universe item deleted successfully", nil)
}
