package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

type AssistantUseCase interface {
	Rephrase(ctx context.Context, rc domain.RequestContext, text string) (string, error)
	GenerateConsequence(ctx context.Context, rc domain.RequestContext, criteria, condition string) (string, error)
}

// AssistantHandler handles writing help for issue drafting
type AssistantHandler struct {
	base
	assistantUseCase AssistantUseCase
}

func NewAssistantHandler(assistantUseCase AssistantUseCase, clock ports.Clock, log logger.Logger) *AssistantHandler {
	return &AssistantHandler{
		base:             newBase(clock, log, 0),
		assistantUseCase: assistantUseCase,
	}
}

func (h *AssistantHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/assistant/rephrase", h.Rephrase).Methods(http.MethodPost)
	router.HandleFunc("/assistant/consequence", h.GenerateConsequence).Methods(http.MethodPost)
}

func (h *AssistantHandler) Rephrase(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	text, err := h.assistantUseCase.Rephrase(r.Context(), rc, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Text rephrased", map[string]string{"text": text})
}

func (h *AssistantHandler) GenerateConsequence(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req struct {
		Criteria  string `json:"criteria"`
		Condition string `json:"condition"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	consequence, err := h.assistantUseCase.GenerateConsequence(r.Context(), rc, req.Criteria, req.Condition)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Consequence generated", map[string]string{"consequence": consequence})
}
