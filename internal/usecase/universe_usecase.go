package usecase

import (
	"context"
	"fmt"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// UniverseItemRequest represents the editable fields of a universe item
type UniverseItemRequest struct {
	AuditeeID      int64  `json:"auditee_id"`
	Department     string `json:"department"`
	AuditArea      string `json:"audit_area"`
	Process        string `json:"process"`
	InherentRisk   string `json:"inherent_risk"`
	ControlMeasure string `json:"control_measure"`
	AuditProcedure string `json:"audit_procedure"`
}

// UniverseUseCase manages an organization's audit universe
type UniverseUseCase struct {
	universeRepo ports.UniverseRepository
	auditeeRepo  ports.AuditeeRepository
}

// NewUniverseUseCase creates a new universe use case
func NewUniverseUseCase(universeRepo ports.UniverseRepository, auditeeRepo ports.AuditeeRepository) *UniverseUseCase {
	return &UniverseUseCase{universeRepo: universeRepo, auditeeRepo: auditeeRepo}
}

func (uc *UniverseUseCase) apply(ctx context.Context, rc domain.RequestContext, item *domain.AuditUniverseItem, req UniverseItemRequest) error {
	item.AuditeeID = req.AuditeeID
	item.Department = req.Department
	item.AuditArea = req.AuditArea
	item.Process = req.Process
	item.InherentRisk = req.InherentRisk
	item.ControlMeasure = req.ControlMeasure
	item.AuditProcedure = req.AuditProcedure
	item.UpdatedAt = rc.Now
	if err := item.Validate(); err != nil {
		return err
	}

	auditee, err := uc.auditeeRepo.FindByID(ctx, rc.OrgID(), req.AuditeeID)
	if err != nil {
		return fmt.Errorf("failed to find auditee: %w", err)
	}
	if req.Department != "" && !containsDepartment(auditee.Departments, req.Department) {
		return domain.NewValidation("department %q does not belong to auditee", req.Department)
	}
	return nil
}

// Create adds an item to an auditee's universe
func (uc *UniverseUseCase) Create(ctx context.Context, rc domain.RequestContext, req UniverseItemRequest) (*domain.AuditUniverseItem, error) {
	if err := rc.RequireRole(domain.RoleHeadOfAudit); err != nil {
		return nil, err
	}
	item := &domain.AuditUniverseItem{OrganizationID: rc.OrgID(), CreatedAt: rc.Now}
	if err := uc.apply(ctx, rc, item, req); err != nil {
		return nil, err
	}
	if err := uc.universeRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create universe item: %w", err)
	}
	return item, nil
}

// Update edits an existing item
func (uc *UniverseUseCase) Update(ctx context.Context, rc domain.RequestContext, id int64, req UniverseItemRequest) (*domain.AuditUniverseItem, error) {
	if err := rc.RequireRole(domain.RoleHeadOfAudit); err != nil {
		return nil, err
	}
	item, err := uc.universeRepo.FindByID(ctx, rc.OrgID(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to find universe item: %w", err)
	}
	if err := uc.apply(ctx, rc, item, req); err != nil {
		return nil, err
	}
	if err := uc.universeRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update universe item: %w", err)
	}
	return item, nil
}

// Delete removes an item that no risk assessment uses
func (uc *UniverseUseCase) Delete(ctx context.Context, rc domain.RequestContext, id int64) error {
	if err := rc.RequireRole(domain.RoleHeadOfAudit); err != nil {
		return err
	}
	if _, err := uc.universeRepo.FindByID(ctx, rc.OrgID(), id); err != nil {
		return fmt.Errorf("failed to find universe item: %w", err)
	}
	referenced, err := uc.universeRepo.IsReferenced(ctx, rc.OrgID(), id)
	if err != nil {
		return fmt.Errorf("failed to check universe item usage: %w", err)
	}
	if referenced {
		return domain.NewInvalidTransition("universe item is used by a risk assessment")
	}
	if err := uc.universeRepo.Delete(ctx, rc.OrgID(), id); err != nil {
		return fmt.Errorf("failed to delete universe item: %w", err)
	}
	return nil
}

// Get returns one item
func (uc *UniverseUseCase) Get(ctx context.Context, rc domain.RequestContext, id int64) (*domain.AuditUniverseItem, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	item, err := uc.universeRepo.FindByID(ctx, rc.OrgID(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to find universe item: %w", err)
	}
	return item, nil
}

// ListByAuditee returns an auditee's universe
func (uc *UniverseUseCase) ListByAuditee(ctx context.Context, rc domain.RequestContext, auditeeID int64) ([]*domain.AuditUniverseItem, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := uc.auditeeRepo.FindByID(ctx, rc.OrgID(), auditeeID); err != nil {
		return nil, fmt.Errorf("failed to find auditee: %w", err)
	}
	items, err := uc.universeRepo.ListByAuditee(ctx, rc.OrgID(), auditeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list universe items: %w", err)
	}
	return items, nil
}

func containsDepartment(list []string, name string) bool {
	for _, d := range list {
		if d == name {
			return true
		}
	}
	return false
}
