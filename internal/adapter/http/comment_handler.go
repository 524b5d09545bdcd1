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

// CommentUseCase defines the behavior the handler depends on.
// Using an interface here makes the handler easily testable with mocks.
type CommentUseCase interface {
	SendForCommenting(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate string) (*usecase.NotifyResult, error)
	ResendForComment(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate, note string) (*usecase.NotifyResult, error)
	SendEmailNotification(ctx context.Context, rc domain.RequestContext, issueID int64) (*usecase.NotifyResult, error)
	SubmitComment(ctx context.Context, rc domain.RequestContext, issueID int64, text string, attachment *usecase.Upload) (*domain.ManagementComment, error)
	Thread(ctx context.Context, rc domain.RequestContext, issueID int64) (*usecase.CommentThread, error)
	Overview(ctx context.Context, rc domain.RequestContext, auditID int64) ([]usecase.CommentOverview, error)
}

type FollowupUseCase interface {
	SendForFollowup(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate string) (*domain.AuditIssue, error)
	SubmitFollowup(ctx context.Context, rc domain.RequestContext, issueID int64, response string, evidence *usecase.Upload) (*domain.FollowupResponse, error)
	ResendFollowup(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate string) (*domain.AuditIssue, error)
	ResolveFollowup(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error)
	History(ctx context.Context, rc domain.RequestContext, issueID int64) (*usecase.FollowupHistory, error)
	ListFollowups(ctx context.Context, rc domain.RequestContext, auditID int64) ([]*domain.IssueView, error)
}

type DashboardUseCase interface {
	Auditee(ctx context.Context, rc domain.RequestContext) (*usecase.AuditeeDashboard, error)
}

// CommentHandler handles the management comment and follow-up threads between auditors and auditees
type CommentHandler struct {
	base
	commentUseCase   CommentUseCase
	followupUseCase  FollowupUseCase
	dashboardUseCase DashboardUseCase
}

func NewCommentHandler(
	commentUseCase CommentUseCase,
	followupUseCase FollowupUseCase,
	dashboardUseCase DashboardUseCase,
	clock ports.Clock,
	log logger.Logger,
	maxUploadSize int64,
) *CommentHandler {
	return &CommentHandler{
		base:             newBase(clock, log, maxUploadSize),
		commentUseCase:   commentUseCase,
		followupUseCase:  followupUseCase,
		dashboardUseCase: dashboardUseCase,
	}
}

// RegisterRoutes registers comment and follow-up routes. submit wraps the auditee submission endpoints.
func (h *CommentHandler) RegisterRoutes(router *mux.Router, submit func(http.Handler) http.Handler) {
	router.HandleFunc("/issues/{issueID}/send-for-comment", h.SendForCommenting).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/resend-for-comment", h.ResendForComment).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/notify", h.SendEmailNotification).Methods(http.MethodPost)
	router.Handle("/issues/{issueID}/comments", submit(http.HandlerFunc(h.SubmitComment))).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/comments", h.Thread).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}/comments", h.Overview).Methods(http.MethodGet)

	router.HandleFunc("/issues/{issueID}/send-for-followup", h.SendForFollowup).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/resend-followup", h.ResendFollowup).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/resolve-followup", h.ResolveFollowup).Methods(http.MethodPost)
	router.Handle("/issues/{issueID}/followups", submit(http.HandlerFunc(h.SubmitFollowup))).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/followups", h.FollowupHistory).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}/followups", h.ListFollowups).Methods(http.MethodGet)

	router.HandleFunc("/auditee/dashboard", h.Dashboard).Methods(http.MethodGet)
}

type dueDateRequest struct {
	DueDate string `json:"due_date"`
	Note    string `json:"note,omitempty"`
}

func (h *CommentHandler) SendForCommenting(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	var req dueDateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.commentUseCase.SendForCommenting(r.Context(), rc, issueID, req.DueDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issue sent for management comment", result)
}

func (h *CommentHandler) ResendForComment(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	var req dueDateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.commentUseCase.ResendForComment(r.Context(), rc, issueID, req.DueDate, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issue resent for management comment", result)
}

func (h *CommentHandler) SendEmailNotification(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	result, err := h.commentUseCase.SendEmailNotification(r.Context(), rc, issueID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Notification processed", result)
}

// SubmitComment accepts JSON or multipart with "comment_text" and an optional "attachment"
func (h *CommentHandler) SubmitComment(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}

	var text string
	var attachment *usecase.Upload
	if isMultipart(r) {
		f, ok := h.parseForm(w, r, "attachment")
		if !ok {
			return
		}
		defer f.close()
		text = f.value("comment_text")
		attachment = f.upload
	} else {
		var req struct {
			CommentText string `json:"comment_text"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		text = req.CommentText
	}

	comment, err := h.commentUseCase.SubmitComment(r.Context(), rc, issueID, text, attachment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "Comment submitted successfully", comment)
}

func (h *CommentHandler) Thread(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	thread, err := h.commentUseCase.Thread(r.Context(), rc, issueID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Comments retrieved successfully", thread)
}

func (h *CommentHandler) Overview(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	overview, err := h.commentUseCase.Overview(r.Context(), rc, auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Comment overview retrieved successfully", overview)
}

func (h *CommentHandler) SendForFollowup(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	var req dueDateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issue, err := h.followupUseCase.SendForFollowup(r.Context(), rc, issueID, req.DueDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issue sent for follow-up", issue)
}

// SubmitFollowup accepts JSON or multipart with "response" and an optional "evidence"
func (h *CommentHandler) SubmitFollowup(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}

	var text string
	var evidence *usecase.Upload
	if isMultipart(r) {
		f, ok := h.parseForm(w, r, "evidence")
		if !ok {
			return
		}
		defer f.close()
		text = f.value("response")
		evidence = f.upload
	} else {
		var req struct {
			Response string `json:"response"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		text = req.Response
	}

	resp, err := h.followupUseCase.SubmitFollowup(r.Context(), rc, issueID, text, evidence)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "Follow-up submitted successfully", resp)
}

func (h *CommentHandler) ResendFollowup(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	var req dueDateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issue, err := h.followupUseCase.ResendFollowup(r.Context(), rc, issueID, req.DueDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Follow-up resent", issue)
}

func (h *CommentHandler) ResolveFollowup(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	issue, err := h.followupUseCase.ResolveFollowup(r.Context(), rc, issueID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Follow-up resolved", issue)
}

func (h *CommentHandler) FollowupHistory(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	history, err := h.followupUseCase.History(r.Context(), rc, issueID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Follow-up history retrieved successfully", history)
}

func (h *CommentHandler) ListFollowups(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	issues, err := h.followupUseCase.ListFollowups(r.Context(), rc, auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Follow-ups retrieved successfully", issues)
}

func (h *CommentHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	dashboard, err := h.dashboardUseCase.Auditee(r.Context(), rc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Dashboard retrieved successfully", dashboard)
}
