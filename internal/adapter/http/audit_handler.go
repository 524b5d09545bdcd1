package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/auditflow/auditflow/infrastructure/http/response"
	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
	"github.com/auditflow/auditflow/internal/usecase"
)

type AuditUseCase interface {
	CreateAudit(ctx context.Context, rc domain.RequestContext, req usecase.CreateAuditRequest) (*domain.Audit, error)
	ListAudits(ctx context.Context, rc domain.RequestContext) ([]*domain.Audit, error)
	GetAudit(ctx context.Context, rc domain.RequestContext, id int64) (*domain.Audit, error)
	UpdateAudit(ctx context.Context, rc domain.RequestContext, id int64, req usecase.UpdateAuditRequest) (*domain.Audit, error)
	DeleteAudit(ctx context.Context, rc domain.RequestContext, id int64) error
}

type RiskAssessmentUseCase interface {
	SaveAssessments(ctx context.Context, rc domain.RequestContext, auditID int64, req usecase.SaveAssessmentsRequest) (*usecase.SaveAssessmentsResponse, error)
	ListAssessments(ctx context.Context, rc domain.RequestContext, auditID int64) ([]usecase.AssessmentView, error)
}

type FolderUseCase interface {
	ListFolders(ctx context.Context, rc domain.RequestContext, auditID int64) ([]domain.Folder, error)
	Attach(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID, workingPaperID int64) (*domain.Attachment, error)
	Detach(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID, workingPaperID int64) error
	SaveRows(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID, workingPaperID int64, req usecase.SaveRowsRequest) (*usecase.SaveRowsResponse, error)
	GetFolderView(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID int64) (*domain.FolderView, error)
}

type ProcedureUseCase interface {
	SaveProcedure(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID int64, fields domain.ProcedureFields, evidence *usecase.Upload) (*domain.AuditProcedure, error)
	SaveAll(ctx context.Context, rc domain.RequestContext, auditID int64, items []usecase.ProcedureItem) ([]*domain.AuditProcedure, error)
	ListProcedures(ctx context.Context, rc domain.RequestContext, auditID int64) ([]usecase.ProcedureSummary, error)
	GetProcedure(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64) (*domain.AuditProcedure, error)
	LinkWorkingPaper(ctx context.Context, rc domain.RequestContext, auditID, procedureID, workingPaperID int64) error
	UnlinkWorkingPaper(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64) error
}

// AuditHandler handles audits and the planning and fieldwork records under them
type AuditHandler struct {
	base
	auditUseCase      AuditUseCase
	assessmentUseCase RiskAssessmentUseCase
	folderUseCase     FolderUseCase
	procedureUseCase  ProcedureUseCase
}

func NewAuditHandler(
	auditUseCase AuditUseCase,
	assessmentUseCase RiskAssessmentUseCase,
	folderUseCase FolderUseCase,
	procedureUseCase ProcedureUseCase,
	clock ports.Clock,
	log logger.Logger,
	maxUploadSize int64,
) *AuditHandler {
	return &AuditHandler{
		base:              newBase(clock, log, maxUploadSize),
		auditUseCase:      auditUseCase,
		assessmentUseCase: assessmentUseCase,
		folderUseCase:     folderUseCase,
		procedureUseCase:  procedureUseCase,
	}
}

func (h *AuditHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audits", h.CreateAudit).Methods(http.MethodPost)
	router.HandleFunc("/audits", h.ListAudits).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}", h.GetAudit).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}", h.UpdateAudit).Methods(http.MethodPut)
	router.HandleFunc("/audits/{auditID}", h.DeleteAudit).Methods(http.MethodDelete)

	router.HandleFunc("/audits/{auditID}/risk-assessments", h.SaveAssessments).Methods(http.MethodPut)
	router.HandleFunc("/audits/{auditID}/risk-assessments", h.ListAssessments).Methods(http.MethodGet)

	// folders are addressed by any member risk assessment
	router.HandleFunc("/audits/{auditID}/folders", h.ListFolders).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}/folders/{raID}", h.GetFolderView).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}/folders/{raID}/working-papers/{wpID}", h.AttachWorkingPaper).Methods(http.MethodPost)
	router.HandleFunc("/audits/{auditID}/folders/{raID}/working-papers/{wpID}", h.DetachWorkingPaper).Methods(http.MethodDelete)
	router.HandleFunc("/audits/{auditID}/folders/{raID}/working-papers/{wpID}/rows", h.SaveRows).Methods(http.MethodPut)

	router.HandleFunc("/audits/{auditID}/procedures", h.ListProcedures).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}/procedures", h.SaveAllProcedures).Methods(http.MethodPut)
	router.HandleFunc("/audits/{auditID}/procedures/{procedureID}", h.GetProcedure).Methods(http.MethodGet)
	router.HandleFunc("/audits/{auditID}/procedures/{procedureID}/working-paper/{wpID}", h.LinkWorkingPaper).Methods(http.MethodPut)
	router.HandleFunc("/audits/{auditID}/procedures/{procedureID}/working-paper", h.UnlinkWorkingPaper).Methods(http.MethodDelete)
	router.HandleFunc("/audits/{auditID}/risk-assessments/{raID}/procedure", h.SaveProcedure).Methods(http.MethodPut)
}

func (h *AuditHandler) CreateAudit(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	var req usecase.CreateAuditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	audit, err := h.auditUseCase.CreateAudit(r.Context(), rc, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "Audit created successfully", audit)
}

func (h *AuditHandler) ListAudits(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	audits, err := h.auditUseCase.ListAudits(r.Context(), rc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Audits retrieved successfully", audits)
}

func (h *AuditHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	audit, err := h.auditUseCase.GetAudit(r.Context(), rc, auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Audit retrieved successfully", audit)
}

func (h *AuditHandler) UpdateAudit(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	var req usecase.UpdateAuditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	audit, err := h.auditUseCase.UpdateAudit(r.Context(), rc, auditID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Audit updated successfully", audit)
}

func (h *AuditHandler) DeleteAudit(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	if err := h.auditUseCase.DeleteAudit(r.Context(), rc, auditID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Audit deleted successfully", nil)
}

func (h *AuditHandler) SaveAssessments(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	var req usecase.SaveAssessmentsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.assessmentUseCase.SaveAssessments(r.Context(), rc, auditID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Risk assessments saved successfully", result)
}

func (h *AuditHandler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	views, err := h.assessmentUseCase.ListAssessments(r.Context(), rc, auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Risk assessments retrieved successfully", views)
}

func (h *AuditHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	folders, err := h.folderUseCase.ListFolders(r.Context(), rc, auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Folders retrieved successfully", folders)
}

func (h *AuditHandler) GetFolderView(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	raID, ok := pathID(w, r, "raID")
	if !ok {
		return
	}
	view, err := h.folderUseCase.GetFolderView(r.Context(), rc, auditID, raID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Folder retrieved successfully", view)
}

// folderTarget reads the audit, risk assessment and working paper ids of a folder route
func folderTarget(w http.ResponseWriter, r *http.Request) (auditID, raID, wpID int64, ok bool) {
	if auditID, ok = pathID(w, r, "auditID"); !ok {
		return
	}
	if raID, ok = pathID(w, r, "raID"); !ok {
		return
	}
	wpID, ok = pathID(w, r, "wpID")
	return
}

func (h *AuditHandler) AttachWorkingPaper(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, raID, wpID, ok := folderTarget(w, r)
	if !ok {
		return
	}
	attachment, err := h.folderUseCase.Attach(r.Context(), rc, auditID, raID, wpID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.created(w, "Working paper attached successfully", attachment)
}

func (h *AuditHandler) DetachWorkingPaper(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, raID, wpID, ok := folderTarget(w, r)
	if !ok {
		return
	}
	if err := h.folderUseCase.Detach(r.Context(), rc, auditID, raID, wpID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Working paper detached successfully", nil)
}

func (h *AuditHandler) SaveRows(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, raID, wpID, ok := folderTarget(w, r)
	if !ok {
		return
	}
	var req usecase.SaveRowsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.folderUseCase.SaveRows(r.Context(), rc, auditID, raID, wpID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Rows saved successfully", result)
}

func (h *AuditHandler) ListProcedures(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	summaries, err := h.procedureUseCase.ListProcedures(r.Context(), rc, auditID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Procedures retrieved successfully", summaries)
}

func (h *AuditHandler) SaveAllProcedures(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	var req struct {
		Items []usecase.ProcedureItem `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	procedures, err := h.procedureUseCase.SaveAll(r.Context(), rc, auditID, req.Items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Procedures saved successfully", procedures)
}

// SaveProcedure accepts JSON, or multipart with a "data" JSON field and an optional "evidence" file
func (h *AuditHandler) SaveProcedure(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	raID, ok := pathID(w, r, "raID")
	if !ok {
		return
	}

	var fields domain.ProcedureFields
	var evidence *usecase.Upload
	if isMultipart(r) {
		f, ok := h.parseForm(w, r, "evidence")
		if !ok {
			return
		}
		defer f.close()
		if data := f.value("data"); data != "" {
			if err := json.Unmarshal([]byte(data), &fields); err != nil {
				response.BadRequest(w, "Invalid procedure data")
				return
			}
		}
		evidence = f.upload
	} else if !decodeJSON(w, r, &fields) {
		return
	}

	procedure, err := h.procedureUseCase.SaveProcedure(r.Context(), rc, auditID, raID, fields, evidence)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Procedure saved successfully", procedure)
}

func (h *AuditHandler) GetProcedure(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	procedureID, ok := pathID(w, r, "procedureID")
	if !ok {
		return
	}
	procedure, err := h.procedureUseCase.GetProcedure(r.Context(), rc, auditID, procedureID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Procedure retrieved successfully", procedure)
}

func (h *AuditHandler) LinkWorkingPaper(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	procedureID, ok := pathID(w, r, "procedureID")
	if !ok {
		return
	}
	wpID, ok := pathID(w, r, "wpID")
	if !ok {
		return
	}
	if err := h.procedureUseCase.LinkWorkingPaper(r.Context(), rc, auditID, procedureID, wpID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Working paper linked successfully", nil)
}

func (h *AuditHandler) UnlinkWorkingPaper(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	auditID, ok := pathID(w, r, "auditID")
	if !ok {
		return
	}
	procedureID, ok := pathID(w, r, "procedureID")
	if !ok {
		return
	}
	if err := h.procedureUseCase.UnlinkWorkingPaper(r.Context(), rc, auditID, procedureID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.ok(w, "Working paper unlinked successfully", nil)
}
