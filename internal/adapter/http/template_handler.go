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

type WorkingPaperUseCase interface {
	CreateTemplate(ctx context.Context, rc domain.RequestContext, req usecase.TemplateRequest) (*domain.WorkingPaperTemplate, error)
	UpdateTemplate(ctx context.Context, rc domain.RequestContext, id int64, req usecase.TemplateRequest) (*domain.WorkingPaperTemplate, error)
	GetTemplate(ctx context.Context, rc domain.RequestContext, id int64) (*domain.WorkingPaperTemplate, error)
	ListTemplates(ctx context.Context, rc domain.RequestContext) ([]*domain.WorkingPaperTemplate, error)
	DeleteTemplate(ctx context.Context, rc domain.RequestContext, id int64) error
	TemplateSchema(ctx context.Context, rc domain.RequestContext, id int64) (map[string]interface{}, error)
}

// TemplateHandler handles working paper templates
type TemplateHandler struct {
	base
	wpUseCase WorkingPaperUseCase
}

func NewTemplateHandler(wpUseCase WorkingPaperUseCase, clock ports.Clock, log logger.Logger) *TemplateHandler {
	return &TemplateHandler{
		base:      newBase(clock, log, 0),
		wpUseCase: wpUseCase,
	}
}

func (h *TemplateHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/working-papers", h.CreateTemplate).Methods(http.MethodPost)
	router.HandleFunc("/working-papers", h.ListTemplates).Methods(http.MethodGet)
	router.HandleFunc("/working-papers/{id}", h.GetTemplate).Methods(http.MethodGet)
	router.HandleFunc("/working-papers/{id}", h.UpdateTemplate).Methods(http.MethodPut)
	router.HandleFunc("/working-papers/{id}", h.DeleteTemplate).Methods(http.MethodDelete)
	router.HandleFunc("/working-papers/{id}/schema", h.TemplateSchema).Methods(http.MethodGet)
}

func (h *TemplateHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req usecase.TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tmpl, err := h.wpUseCase.CreateTemplate(r.Context(), rc, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "Working paper created successfully", tmpl)
}

func (h *TemplateHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	templates, err := h.wpUseCase.ListTemplates(r.Context(), rc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Working papers retrieved successfully", templates)
}

func (h *TemplateHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tmpl, err := h.wpUseCase.GetTemplate(r.Context(), rc, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Working paper retrieved successfully", tmpl)
}

func (h *TemplateHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req usecase.TemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tmpl, err := h.wpUseCase.UpdateTemplate(r.Context(), rc, id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Working paper updated successfully", tmpl)
}

func (h *TemplateHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.wpUseCase.DeleteTemplate(r.Context(), rc, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Working paper deleted successfully", nil)
}

func (h *TemplateHandler) TemplateSchema(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	schema, err := h.wpUseCase.TemplateSchema(r.Context(), rc, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Row schema retrieved successfully", schema)
}
