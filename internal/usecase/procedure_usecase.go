package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

const evidenceCategory = "evidence"

// Upload is a file received with a request
type Upload struct {
	Filename string
	Content  io.Reader
}

// ProcedureItem is one entry of a bulk procedure save
type ProcedureItem struct {
	RiskAssessmentID int64                  `json:"risk_assessment_id"`
	Fields           domain.ProcedureFields `json:"fields"`
	Evidence         *Upload                `json:"-"`
}

// ProcedureSummary is a selected assessment with its procedure, if one exists yet
type ProcedureSummary struct {
	Assessment    AssessmentView         `json:"risk_assessment"`
	FolderKey     domain.FolderKey       `json:"folder_key"`
	Procedure     *domain.AuditProcedure `json:"procedure"`
	WorkingPapers []domain.Attachment    `json:"working_papers"`
}

// ProcedureUseCase handles field-work records
type ProcedureUseCase struct {
	tx             ports.Transactor
	auditRepo      ports.AuditRepository
	assessmentRepo ports.RiskAssessmentRepository
	procedureRepo  ports.ProcedureRepository
	folderRepo     ports.TestingProcedureRepository
	wpRepo         ports.WorkingPaperRepository
	storage        ports.FileStorage
}

// NewProcedureUseCase creates a new procedure use case
func NewProcedureUseCase(
	tx ports.Transactor,
	auditRepo ports.AuditRepository,
	assessmentRepo ports.RiskAssessmentRepository,
	procedureRepo ports.ProcedureRepository,
	folderRepo ports.TestingProcedureRepository,
	wpRepo ports.WorkingPaperRepository,
	storage ports.FileStorage,
) *ProcedureUseCase {
	return &ProcedureUseCase{
		tx:             tx,
		auditRepo:      auditRepo,
		assessmentRepo: assessmentRepo,
		procedureRepo:  procedureRepo,
		folderRepo:     folderRepo,
		wpRepo:         wpRepo,
		storage:        storage,
	}
}

func (uc *ProcedureUseCase) selectedAssessment(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID int64) (*domain.RiskAssessment, error) {
	ra, err := uc.assessmentRepo.FindByID(ctx, rc.OrgID(), auditID, riskAssessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find risk assessment: %w", err)
	}
	if !ra.IsSelected {
		return nil, domain.NewNotFound("selected risk assessment")
	}
	return ra, nil
}

func (uc *ProcedureUseCase) storeEvidence(ctx context.Context, upload *Upload) (string, error) {
	if upload == nil {
		return "", nil
	}
	if uc.storage == nil {
		return "", domain.NewValidation("file uploads are not configured")
	}
	path, err := uc.storage.Save(ctx, evidenceCategory, upload.Filename, upload.Content)
	if err != nil {
		return "", fmt.Errorf("failed to store evidence: %w", err)
	}
	return path, nil
}

func (uc *ProcedureUseCase) upsert(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID int64, fields domain.ProcedureFields, evidencePath string) (*domain.AuditProcedure, error) {
	p, err := uc.procedureRepo.FindByRiskAssessment(ctx, rc.OrgID(), auditID, riskAssessmentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &domain.AuditProcedure{AuditID: auditID, RiskAssessmentID: riskAssessmentID}
	}
	p.Apply(fields, rc.Principal.UserID, rc.Now)
	if evidencePath != "" {
		p.EvidencePath = evidencePath
	}
	if err := uc.procedureRepo.Upsert(ctx, rc.OrgID(), p); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveProcedure upserts the procedure of one selected assessment
func (uc *ProcedureUseCase) SaveProcedure(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID int64, fields domain.ProcedureFields, evidence *Upload) (*domain.AuditProcedure, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, err
	}
	if _, err := uc.selectedAssessment(ctx, rc, auditID, riskAssessmentID); err != nil {
		return nil, err
	}
	path, err := uc.storeEvidence(ctx, evidence)
	if err != nil {
		return nil, err
	}

	var saved *domain.AuditProcedure
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := uc.upsert(ctx, rc, auditID, riskAssessmentID, fields, path)
		saved = p
		return err
	})
	if err != nil {
		return nil, txFailed("save procedure", err)
	}
	return saved, nil
}

// SaveAll upserts several procedures in one transaction. Evidence is stored first;
// items without a new upload keep their existing evidence.
func (uc *ProcedureUseCase) SaveAll(ctx context.Context, rc domain.RequestContext, auditID int64, items []ProcedureItem) ([]*domain.AuditProcedure, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := item.Fields.Validate(); err != nil {
			return nil, fmt.Errorf("risk assessment %d: %w", item.RiskAssessmentID, err)
		}
		if _, err := uc.selectedAssessment(ctx, rc, auditID, item.RiskAssessmentID); err != nil {
			return nil, err
		}
	}

	paths := make([]string, len(items))
	for i, item := range items {
		path, err := uc.storeEvidence(ctx, item.Evidence)
		if err != nil {
			return nil, err
		}
		paths[i] = path
	}

	saved := make([]*domain.AuditProcedure, 0, len(items))
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		for i, item := range items {
			p, err := uc.upsert(ctx, rc, auditID, item.RiskAssessmentID, item.Fields, paths[i])
			if err != nil {
				return err
			}
			saved = append(saved, p)
		}
		return nil
	})
	if err != nil {
		return nil, txFailed("save procedures", err)
	}
	return saved, nil
}

// ListProcedures returns every selected assessment of the audit with its procedure and attached templates
func (uc *ProcedureUseCase) ListProcedures(ctx context.Context, rc domain.RequestContext, auditID int64) ([]ProcedureSummary, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, err
	}
	idx, selected, err := folderIndex(ctx, uc.assessmentRepo, rc, auditID)
	if err != nil {
		return nil, err
	}
	procedures, err := uc.procedureRepo.ListByAudit(ctx, rc.OrgID(), auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list procedures: %w", err)
	}
	attachments, err := uc.folderRepo.ListAttachments(ctx, rc.OrgID(), auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	byAssessment := make(map[int64]*domain.AuditProcedure, len(procedures))
	for _, p := range procedures {
		byAssessment[p.RiskAssessmentID] = p
	}

	out := make([]ProcedureSummary, 0, len(selected))
	for _, ra := range selected {
		key, err := idx.Resolve(ra.ID)
		if err != nil {
			return nil, err
		}
		summary := ProcedureSummary{
			Assessment:    AssessmentView{RiskAssessment: ra, Rating: ra.Rating(), Band: ra.Band()},
			FolderKey:     key,
			Procedure:     byAssessment[ra.ID],
			WorkingPapers: []domain.Attachment{},
		}
		for _, a := range attachments {
			if a.RiskAssessmentID == int64(key) {
				summary.WorkingPapers = append(summary.WorkingPapers, a)
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// GetProcedure returns one procedure of the audit
func (uc *ProcedureUseCase) GetProcedure(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64) (*domain.AuditProcedure, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	p, err := uc.procedureRepo.FindByID(ctx, rc.OrgID(), auditID, procedureID)
	if err != nil {
		return nil, fmt.Errorf("failed to find procedure: %w", err)
	}
	return p, nil
}

// LinkWorkingPaper records a template as supporting evidence of the procedure
func (uc *ProcedureUseCase) LinkWorkingPaper(ctx context.Context, rc domain.RequestContext, auditID, procedureID, workingPaperID int64) error {
	if err := rc.RequireAuditStaff(); err != nil {
		return err
	}
	if _, err := uc.GetProcedure(ctx, rc, auditID, procedureID); err != nil {
		return err
	}
	if _, err := uc.wpRepo.FindByID(ctx, rc.OrgID(), workingPaperID); err != nil {
		return fmt.Errorf("failed to find working paper: %w", err)
	}
	if err := uc.procedureRepo.SetWorkingPaper(ctx, rc.OrgID(), auditID, procedureID, &workingPaperID); err != nil {
		return fmt.Errorf("failed to link working paper: %w", err)
	}
	return nil
}

// UnlinkWorkingPaper clears the procedure's supporting template
func (uc *ProcedureUseCase) UnlinkWorkingPaper(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64) error {
	if err := rc.RequireAuditStaff(); err != nil {
		return err
	}
	if _, err := uc.GetProcedure(ctx, rc, auditID, procedureID); err != nil {
		return err
	}
	if err := uc.procedureRepo.SetWorkingPaper(ctx, rc.OrgID(), auditID, procedureID, nil); err != nil {
		return fmt.Errorf("failed to unlink working paper: %w", err)
	}
	return nil
}
