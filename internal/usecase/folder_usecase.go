package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// SaveRowsRequest carries the full row set of an attached working paper
type SaveRowsRequest struct {
	Rows []json.RawMessage `json:"rows"`
}

// SaveRowsResponse reports the stored rows
type SaveRowsResponse struct {
	FolderKey domain.FolderKey `json:"folder_key"`
	RowsSaved int              `json:"rows_saved"`
}

// FolderUseCase handles testing procedure folders: attaching working papers and filling their rows
type FolderUseCase struct {
	tx             ports.Transactor
	auditRepo      ports.AuditRepository
	assessmentRepo ports.RiskAssessmentRepository
	folderRepo     ports.TestingProcedureRepository
	wpRepo         ports.WorkingPaperRepository
	validator      ports.RowSchemaValidator
	eventPublisher ports.EventPublisher
}

// NewFolderUseCase creates a new folder use case
func NewFolderUseCase(
	tx ports.Transactor,
	auditRepo ports.AuditRepository,
	assessmentRepo ports.RiskAssessmentRepository,
	folderRepo ports.TestingProcedureRepository,
	wpRepo ports.WorkingPaperRepository,
	validator ports.RowSchemaValidator,
	eventPublisher ports.EventPublisher,
) *FolderUseCase {
	return &FolderUseCase{
		tx:             tx,
		auditRepo:      auditRepo,
		assessmentRepo: assessmentRepo,
		folderRepo:     folderRepo,
		wpRepo:         wpRepo,
		validator:      validator,
		eventPublisher: eventPublisher,
	}
}

type folderState struct {
	index       *domain.FolderIndex
	byID        map[int64]*domain.RiskAssessment
	attachments []domain.Attachment
}

func (uc *FolderUseCase) load(ctx context.Context, rc domain.RequestContext, auditID int64) (*folderState, error) {
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
	attachments, err := uc.folderRepo.ListAttachments(ctx, rc.OrgID(), auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	st := &folderState{index: idx, byID: make(map[int64]*domain.RiskAssessment, len(selected)), attachments: attachments}
	for _, ra := range selected {
		st.byID[ra.ID] = ra
	}
	return st, nil
}

func (st *folderState) folder(key domain.FolderKey) domain.Folder {
	f := domain.Folder{Key: key, AuditArea: st.index.Area(key), MemberIDs: st.index.Members(key)}
	for _, id := range f.MemberIDs {
		ra := st.byID[id]
		if rating := ra.Rating(); rating > f.Rating {
			f.Rating = rating
			f.Band = ra.Band()
		}
	}
	if lead := st.byID[int64(key)]; lead != nil && lead.AssignedAuditorID != nil {
		f.AssignedAuditorID = lead.AssignedAuditorID
	} else {
		for _, id := range f.MemberIDs {
			if st.byID[id].AssignedAuditorID != nil {
				f.AssignedAuditorID = st.byID[id].AssignedAuditorID
				break
			}
		}
	}
	for _, a := range st.attachments {
		if a.RiskAssessmentID == int64(key) {
			f.AttachedCount++
		}
	}
	return f
}

func (st *folderState) isAttached(key domain.FolderKey, wpID int64) bool {
	for _, a := range st.attachments {
		if a.RiskAssessmentID == int64(key) && a.WorkingPaperID == wpID {
			return true
		}
	}
	return false
}

// ListFolders returns one folder per distinct audit area of the selected assessments
func (uc *FolderUseCase) ListFolders(ctx context.Context, rc domain.RequestContext, auditID int64) ([]domain.Folder, error) {
	st, err := uc.load(ctx, rc, auditID)
	if err != nil {
		return nil, err
	}
	keys := st.index.Keys()
	folders := make([]domain.Folder, 0, len(keys))
	for _, key := range keys {
		folders = append(folders, st.folder(key))
	}
	return folders, nil
}

// Attach links a template to the folder of riskAssessmentID. Attaching twice is a no-op.
func (uc *FolderUseCase) Attach(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID, workingPaperID int64) (*domain.Attachment, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	st, err := uc.load(ctx, rc, auditID)
	if err != nil {
		return nil, err
	}
	key, err := st.index.Resolve(riskAssessmentID)
	if err != nil {
		return nil, err
	}
	wp, err := uc.wpRepo.FindByID(ctx, rc.OrgID(), workingPaperID)
	if err != nil {
		return nil, fmt.Errorf("failed to find working paper: %w", err)
	}

	a := domain.Attachment{
		AuditID:          auditID,
		RiskAssessmentID: int64(key),
		WorkingPaperID:   wp.ID,
		WorkingPaperName: wp.Name,
		AttachedBy:       rc.Principal.UserID,
		AttachedAt:       rc.Now,
	}
	if err := uc.folderRepo.Attach(ctx, rc.OrgID(), a); err != nil {
		return nil, fmt.Errorf("failed to attach working paper: %w", err)
	}
	return &a, nil
}

// Detach unlinks a template from the folder and drops its rows. Detaching twice is a no-op.
func (uc *FolderUseCase) Detach(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID, workingPaperID int64) error {
	if err := rc.RequireAuditStaff(); err != nil {
		return err
	}
	st, err := uc.load(ctx, rc, auditID)
	if err != nil {
		return err
	}
	key, err := st.index.Resolve(riskAssessmentID)
	if err != nil {
		return err
	}
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		return uc.folderRepo.Detach(ctx, rc.OrgID(), auditID, int64(key), workingPaperID)
	})
	if err != nil {
		return txFailed("detach working paper", err)
	}
	return nil
}

// SaveRows validates rows against the template and replaces the stored rows
func (uc *FolderUseCase) SaveRows(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID, workingPaperID int64, req SaveRowsRequest) (*SaveRowsResponse, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	st, err := uc.load(ctx, rc, auditID)
	if err != nil {
		return nil, err
	}
	key, err := st.index.Resolve(riskAssessmentID)
	if err != nil {
		return nil, err
	}
	if !st.isAttached(key, workingPaperID) {
		return nil, domain.NewInvalidTransition("working paper is not attached to this testing procedure")
	}
	t, err := uc.wpRepo.FindByID(ctx, rc.OrgID(), workingPaperID)
	if err != nil {
		return nil, fmt.Errorf("failed to find working paper: %w", err)
	}

	normalized := make([]json.RawMessage, 0, len(req.Rows))
	for i, raw := range req.Rows {
		if uc.validator != nil {
			if err := uc.validator.ValidateRow(t, raw); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
		}
		var cells map[string]json.RawMessage
		if err := json.Unmarshal(raw, &cells); err != nil {
			return nil, domain.NewValidation("row %d must be an object", i+1)
		}
		row, err := t.DecodeRow(cells)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		data, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("failed to encode row %d: %w", i+1, err)
		}
		normalized = append(normalized, data)
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if !t.AllowRowInsert {
			stored, err := uc.folderRepo.ListRows(ctx, rc.OrgID(), auditID, int64(key), workingPaperID)
			if err != nil {
				return err
			}
			if len(stored) > 0 && len(normalized) > len(stored) {
				return domain.NewValidation("working paper %q does not allow adding rows", t.Name)
			}
		}
		return uc.folderRepo.ReplaceRows(ctx, rc.OrgID(), auditID, int64(key), workingPaperID, normalized)
	})
	if err != nil {
		return nil, txFailed("save working paper rows", err)
	}

	publish(ctx, uc.eventPublisher, ports.NewEvent(
		ports.EventTypeWorkingPaperRowsSaved,
		"audit",
		rc.OrgID(),
		auditID,
		rc.Principal.UserID,
		map[string]interface{}{
			"folder_key":       key,
			"working_paper_id": workingPaperID,
			"rows":             len(normalized),
		},
		rc.Now,
	))

	return &SaveRowsResponse{FolderKey: key, RowsSaved: len(normalized)}, nil
}

// GetFolderView returns the folder with every attached template and its rows
func (uc *FolderUseCase) GetFolderView(ctx context.Context, rc domain.RequestContext, auditID, riskAssessmentID int64) (*domain.FolderView, error) {
	st, err := uc.load(ctx, rc, auditID)
	if err != nil {
		return nil, err
	}
	key, err := st.index.Resolve(riskAssessmentID)
	if err != nil {
		return nil, err
	}

	view := &domain.FolderView{Folder: st.folder(key), WorkingPapers: []domain.AttachedWorkingPaper{}}
	for _, a := range st.attachments {
		if a.RiskAssessmentID != int64(key) {
			continue
		}
		t, err := uc.wpRepo.FindByID(ctx, rc.OrgID(), a.WorkingPaperID)
		if err != nil {
			return nil, fmt.Errorf("failed to find working paper: %w", err)
		}
		rows, err := uc.folderRepo.ListRows(ctx, rc.OrgID(), auditID, int64(key), a.WorkingPaperID)
		if err != nil {
			return nil, fmt.Errorf("failed to list working paper rows: %w", err)
		}
		if rows == nil {
			rows = []domain.DataRow{}
		}
		view.WorkingPapers = append(view.WorkingPapers, domain.AttachedWorkingPaper{Template: *t, Rows: rows})
	}
	return view, nil
}
