package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/auditflow/auditflow/infrastructure/http/response"
	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
	"github.com/auditflow/auditflow/internal/usecase"
)

type IssueUseCase interface {
	SaveDraft(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64, req usecase.IssueRequest) (*domain.AuditIssue, error)
	SubmitForVerification(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64, req usecase.IssueRequest) (*domain.AuditIssue, error)
	GetDraft(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64) (*domain.AuditIssue, error)
	Approve(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error)
	SendForAmendment(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error)
	Remove(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error)
	ListForVerification(ctx context.Context, rc domain.RequestContext, filter string, auditID *int64) ([]*domain.IssueView, error)
	GetIssue(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.IssueView, error)
	ReportProcedures(ctx context.Context, rc domain.RequestContext, auditID int64) ([]usecase.ReportProcedure, error)
	SetIncludeInReport(ctx context.Context, rc domain.RequestContext, issueID int64, include bool) (*domain.AuditIssue, error)
	SetCorrectiveDate(ctx context.Context, rc domain.RequestContext, issueID int64, date string) (*domain.AuditIssue, error)
	AddReviewComment(ctx context.Context, rc domain.RequestContext, issueID int64, req usecase.ReviewCommentRequest) (*domain.IssueReviewComment, error)
	ListReviewComments(ctx context.Context, rc domain.RequestContext, issueID int64) ([]*domain.IssueReviewComment, error)
}

type ReportUseCase interface {
	FinalizeList(ctx context.Context, rc domain.RequestContext, auditID int64) ([]*domain.IssueView, error)
	Export(ctx context.Context, rc domain.RequestContext, auditID int64) (*usecase.ExportedReport, error)
	Register(ctx context.Context, rc domain.RequestContext) ([]usecase.RegisterEntry, error)
}

// IssueHandler handles the issue lifecycle, reviewer comments and reporting
type IssueHandler struct {
	base
	issueUseCase  IssueUseCase
	reportUseCase ReportUseCase
}

func NewIssueHandler(issueUseCase IssueUseCase, reportUseCase ReportUseCase, clock ports.Clock, log logger.Logger) *IssueHandler {
	return &IssueHandler{
		base:          newBase(clock, log, 0),
		issueUseCase:  issueUseCase,
		reportUseCase: reportUseCase,
	}
}

func (h *IssueHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audits/{auditID}/procedures/{procedureID}/issue", h.GetDraft).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}/procedures/{procedureID}/issue", h.SaveDraft).Methods(http.MethodPut)
	router.HandleFunc("/audits/{auditID}/procedures/{procedureID}/issue/submit", h.SubmitForVerification).Methods(http.MethodPost)
	router.HandleFunc("/audits/{auditID}/report-procedures", h.ReportProcedures).Methods(http.MethodGet)

	router.HandleFunc("/issues", h.ListForVerification).Methods(http.MethodGet)
	router.HandleFunc("/issues/{issueID}", h.GetIssue).Methods(http.MethodGet)
	router.HandleFunc("/issues/{issueID}/approve", h.Approve).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/amend", h.SendForAmendment).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/remove", h.Remove).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/include-in-report", h.SetIncludeInReport).Methods(http.MethodPatch)
	router.HandleFunc("/issues/{issueID}/corrective-date", h.SetCorrectiveDate).Methods(http.MethodPatch)
	router.HandleFunc("/issues/{issueID}/review-comments", h.AddReviewComment).Methods(http.MethodPost)
	router.HandleFunc("/issues/{issueID}/review-comments", h.ListReviewComments).Methods(http.MethodGet)

	router.HandleFunc("/audits/{auditID}/report", h.FinalizeList).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}/report/export", h.ExportReport).Methods(http.MethodGet)
	router.HandleFunc("/register", h.Register).Methods(http.MethodGet)
}

func procedureTarget(w http.ResponseWriter, r *http.Request) (auditID, procedureID int64, ok bool) {
	if auditID, ok = pathID(w, r, "auditID"); !ok {
		return
	}
	procedureID, ok = pathID(w, r, "procedureID")
	return
}

func (h *IssueHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, procedureID, ok := procedureTarget(w, r)
	if !ok {
		return
	}
	issue, err := h.issueUseCase.GetDraft(r.Context(), rc, auditID, procedureID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issue retrieved successfully", issue)
}

func (h *IssueHandler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, procedureID, ok := procedureTarget(w, r)
	if !ok {
		return
	}
	var req usecase.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issue, err := h.issueUseCase.SaveDraft(r.Context(), rc, auditID, procedureID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Draft saved successfully", issue)
}

func (h *IssueHandler) SubmitForVerification(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, procedureID, ok := procedureTarget(w, r)
	if !ok {
		return
	}
	var req usecase.IssueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issue, err := h.issueUseCase.SubmitForVerification(r.Context(), rc, auditID, procedureID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issue sent for verification", issue)
}

func (h *IssueHandler) ReportProcedures(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	items, err := h.issueUseCase.ReportProcedures(r.Context(), rc, auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Procedures retrieved successfully", items)
}

func (h *IssueHandler) ListForVerification(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := queryID(w, r, "audit_id")
	if !ok {
		return
	}
	issues, err := h.issueUseCase.ListForVerification(r.Context(), rc, r.URL.Query().Get("filter"), auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issues retrieved successfully", issues)
}

func (h *IssueHandler) GetIssue(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	issue, err := h.issueUseCase.GetIssue(r.Context(), rc, issueID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issue retrieved successfully", issue)
}

// transition runs a reviewer action that takes only the issue id
func (h *IssueHandler) transition(w http.ResponseWriter, r *http.Request, message string, action func(context.Context, domain.RequestContext, int64) (*domain.AuditIssue, error)) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	issue, err := action(r.Context(), rc, issueID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, message, issue)
}

func (h *IssueHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Issue approved", h.issueUseCase.Approve)
}

func (h *IssueHandler) SendForAmendment(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Issue sent for amendment", h.issueUseCase.SendForAmendment)
}

func (h *IssueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "Issue removed", h.issueUseCase.Remove)
}

func (h *IssueHandler) SetIncludeInReport(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	var req struct {
		IncludeInReport *bool `json:"include_in_report"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IncludeInReport == nil {
		response.BadRequest(w, "include_in_report is required")
		return
	}
	issue, err := h.issueUseCase.SetIncludeInReport(r.Context(), rc, issueID, *req.IncludeInReport)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issue updated successfully", issue)
}

func (h *IssueHandler) SetCorrectiveDate(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	var req struct {
		CorrectiveDate string `json:"corrective_date"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	issue, err := h.issueUseCase.SetCorrectiveDate(r.Context(), rc, issueID, req.CorrectiveDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issue updated successfully", issue)
}

func (h *IssueHandler) AddReviewComment(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	var req usecase.ReviewCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := h.issueUseCase.AddReviewComment(r.Context(), rc, issueID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "Review comment added", comment)
}

func (h *IssueHandler) ListReviewComments(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	issueID, ok := pathID(w, r, "issueID")
	if !ok {
		return
	}
	comments, err := h.issueUseCase.ListReviewComments(r.Context(), rc, issueID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Review comments retrieved successfully", comments)
}

func (h *IssueHandler) FinalizeList(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	issues, err := h.reportUseCase.FinalizeList(r.Context(), rc, auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Report issues retrieved successfully", issues)
}

// ExportReport streams the generated document as a download
func (h *IssueHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	report, err := h.reportUseCase.Export(r.Context(), rc, auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(report.Content); err != nil {
		h.logger.Warn(r.Context(), "report download interrupted", map[string]interface{}{
			"audit_id": auditID,
			"error":    err.Error(),
		})
	}
}

func (h *IssueHandler) Register(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	entries, err := h.reportUseCase.Register(r.Context(), rc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Issues register retrieved successfully", entries)
}
