package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// TemplateRequest represents the editable parts of a working paper template
type TemplateRequest struct {
	Name           string          `json:"name"`
	AllowRowInsert bool            `json:"allow_row_insert"`
	Columns        []domain.Column `json:"columns"`
}

// WorkingPaperUseCase manages organization working paper templates
type WorkingPaperUseCase struct {
	tx        ports.Transactor
	wpRepo    ports.WorkingPaperRepository
	validator ports.RowSchemaValidator
}

// NewWorkingPaperUseCase creates a new working paper use case
func NewWorkingPaperUseCase(tx ports.Transactor, wpRepo ports.WorkingPaperRepository, validator ports.RowSchemaValidator) *WorkingPaperUseCase {
	return &WorkingPaperUseCase{tx: tx, wpRepo: wpRepo, validator: validator}
}

func buildTemplate(t *domain.WorkingPaperTemplate, req TemplateRequest) error {
	cols := make([]domain.Column, len(req.Columns))
	for i, c := range req.Columns {
		c.Name = strings.TrimSpace(c.Name)
		cols[i] = c
	}
	normalized, err := domain.NormalizeColumnOrder(cols)
	if err != nil {
		return err
	}
	t.Name = strings.TrimSpace(req.Name)
	t.AllowRowInsert = req.AllowRowInsert
	t.Columns = normalized
	return t.Validate()
}

// CreateTemplate validates and stores a template with its columns
func (uc *WorkingPaperUseCase) CreateTemplate(ctx context.Context, rc domain.RequestContext, req TemplateRequest) (*domain.WorkingPaperTemplate, error) {
	if err := rc.RequireRole(domain.RoleHeadOfAudit, domain.RoleManager); err != nil {
		return nil, err
	}
	t := &domain.WorkingPaperTemplate{
		OrganizationID: rc.OrgID(),
		CreatedBy:      rc.Principal.UserID,
		CreatedAt:      rc.Now,
		UpdatedAt:      rc.Now,
	}
	if err := buildTemplate(t, req); err != nil {
		return nil, err
	}
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		return uc.wpRepo.Create(ctx, t)
	})
	if err != nil {
		return nil, txFailed("create working paper", err)
	}
	return t, nil
}

// UpdateTemplate replaces name, row-insert flag and columns in one transaction
func (uc *WorkingPaperUseCase) UpdateTemplate(ctx context.Context, rc domain.RequestContext, id int64, req TemplateRequest) (*domain.WorkingPaperTemplate, error) {
	if err := rc.RequireRole(domain.RoleHeadOfAudit, domain.RoleManager); err != nil {
		return nil, err
	}
	t, err := uc.wpRepo.FindByID(ctx, rc.OrgID(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to find working paper: %w", err)
	}
	if err := buildTemplate(t, req); err != nil {
		return nil, err
	}
	t.UpdatedAt = rc.Now
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		return uc.wpRepo.Update(ctx, t)
	})
	if err != nil {
		return nil, txFailed("update working paper", err)
	}
	return t, nil
}

// GetTemplate returns one template with its columns
func (uc *WorkingPaperUseCase) GetTemplate(ctx context.Context, rc domain.RequestContext, id int64) (*domain.WorkingPaperTemplate, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	t, err := uc.wpRepo.FindByID(ctx, rc.OrgID(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to find working paper: %w", err)
	}
	return t, nil
}

// ListTemplates returns the organization's templates
func (uc *WorkingPaperUseCase) ListTemplates(ctx context.Context, rc domain.RequestContext) ([]*domain.WorkingPaperTemplate, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	list, err := uc.wpRepo.List(ctx, rc.OrgID())
	if err != nil {
		return nil, fmt.Errorf("failed to list working papers: %w", err)
	}
	return list, nil
}

// DeleteTemplate removes a template that is not attached or linked anywhere
func (uc *WorkingPaperUseCase) DeleteTemplate(ctx context.Context, rc domain.RequestContext, id int64) error {
	if err := rc.RequireRole(domain.RoleHeadOfAudit, domain.RoleManager); err != nil {
		return err
	}
	if _, err := uc.wpRepo.FindByID(ctx, rc.OrgID(), id); err != nil {
		return fmt.Errorf("failed to find working paper: %w", err)
	}
	inUse, err := uc.wpRepo.InUse(ctx, rc.OrgID(), id)
	if err != nil {
		return fmt.Errorf("failed to check working paper usage: %w", err)
	}
	if inUse {
		return domain.NewInvalidTransition("working paper is attached to a testing procedure")
	}
	if err := uc.wpRepo.Delete(ctx, rc.OrgID(), id); err != nil {
		return fmt.Errorf("failed to delete working paper: %w", err)
	}
	return nil
}

// TemplateSchema returns the JSON Schema that rows of the template must satisfy
func (uc *WorkingPaperUseCase) TemplateSchema(ctx context.Context, rc domain.RequestContext, id int64) (map[string]interface{}, error) {
	t, err := uc.GetTemplate(ctx, rc, id)
	if err != nil {
		return nil, err
	}
	if uc.validator == nil {
		return nil, domain.NewNotFound("row schema")
	}
	schema, err := uc.validator.Schema(t)
	if err != nil {
		return nil, fmt.Errorf("failed to build row schema: %w", err)
	}
	return schema, nil
}
