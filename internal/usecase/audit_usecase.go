package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// CreateAuditRequest represents a new engagement
type CreateAuditRequest struct {
	AuditeeID int64               `json:"auditee_id"`
	Name      string              `json:"audit_name"`
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Team      []domain.TeamMember `json:"team"`
}

// UpdateAuditRequest replaces an engagement's fields and team. An empty status keeps the current one.
type UpdateAuditRequest struct {
	CreateAuditRequest
	Status domain.AuditStatus `json:"status"`
}

// AuditUseCase manages audit engagements
type AuditUseCase struct {
	tx          ports.Transactor
	auditRepo   ports.AuditRepository
	auditeeRepo ports.AuditeeRepository
	userRepo    ports.UserRepository
}

// NewAuditUseCase creates a new audit use case
func NewAuditUseCase(
	tx ports.Transactor,
	auditRepo ports.AuditRepository,
	auditeeRepo ports.AuditeeRepository,
	userRepo ports.UserRepository,
) *AuditUseCase {
	return &AuditUseCase{
		tx:          tx,
		auditRepo:   auditRepo,
		auditeeRepo: auditeeRepo,
		userRepo:    userRepo,
	}
}

// CreateAudit schedules an audit and assigns its team in one transaction
func (uc *AuditUseCase) CreateAudit(ctx context.Context, rc domain.RequestContext, req CreateAuditRequest) (*domain.Audit, error) {
	if err := rc.RequireRole(domain.RoleHeadOfAudit, domain.RoleManager); err != nil {
		return nil, err
	}

	start, err := parseDate("start date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end date", req.EndDate)
	if err != nil {
		return nil, err
	}

	audit := &domain.Audit{
		OrganizationID: rc.OrgID(),
		AuditeeID:      req.AuditeeID,
		Name:           req.Name,
		StartDate:      start,
		EndDate:        end,
		Status:         domain.AuditStatusPlanned,
		CreatedBy:      rc.Principal.UserID,
		Team:           req.Team,
		CreatedAt:      rc.Now,
	}
	if err := audit.Validate(); err != nil {
		return nil, err
	}

	if err := uc.checkParties(ctx, rc, audit); err != nil {
		return nil, err
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		return uc.auditRepo.Create(ctx, audit)
	})
	if err != nil {
		return nil, txFailed("create audit", err)
	}
	return audit, nil
}

// ListAudits returns the organization's audits in calendar order
func (uc *AuditUseCase) ListAudits(ctx context.Context, rc domain.RequestContext) ([]*domain.Audit, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	audits, err := uc.auditRepo.List(ctx, rc.OrgID())
	if err != nil {
		return nil, fmt.Errorf("failed to list audits: %w", err)
	}
	return audits, nil
}

// GetAudit returns one audit with its team
func (uc *AuditUseCase) GetAudit(ctx context.Context, rc domain.RequestContext, id int64) (*domain.Audit, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	return loadAudit(ctx, uc.auditRepo, rc, id)
}

// UpdateAudit edits an audit and replaces its team. The auditee cannot change once field work exists.
func (uc *AuditUseCase) UpdateAudit(ctx context.Context, rc domain.RequestContext, id int64, req UpdateAuditRequest) (*domain.Audit, error) {
	if err := rc.RequireRole(domain.RoleHeadOfAudit, domain.RoleManager); err != nil {
		return nil, err
	}
	audit, err := loadAudit(ctx, uc.auditRepo, rc, id)
	if err != nil {
		return nil, err
	}

	start, err := parseDate("start date", req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end date", req.EndDate)
	if err != nil {
		return nil, err
	}

	if req.AuditeeID != audit.AuditeeID {
		started, err := uc.auditRepo.HasFieldWork(ctx, rc.OrgID(), id)
		if err != nil {
			return nil, fmt.Errorf("failed to check field work: %w", err)
		}
		if started {
			return nil, domain.NewInvalidTransition("auditee cannot change after risk assessment has started")
		}
	}

	audit.AuditeeID = req.AuditeeID
	audit.Name = req.Name
	audit.StartDate = start
	audit.EndDate = end
	audit.Team = req.Team
	if req.Status != "" {
		audit.Status = req.Status
	}
	if err := audit.Validate(); err != nil {
		return nil, err
	}
	if err := uc.checkParties(ctx, rc, audit); err != nil {
		return nil, err
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		return uc.auditRepo.Update(ctx, audit)
	})
	if err != nil {
		return nil, txFailed("update audit", err)
	}
	return audit, nil
}

// DeleteAudit removes an audit that has no field work
func (uc *AuditUseCase) DeleteAudit(ctx context.Context, rc domain.RequestContext, id int64) error {
	if err := rc.RequireRole(domain.RoleHeadOfAudit); err != nil {
		return err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, id); err != nil {
		return err
	}
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		started, err := uc.auditRepo.HasFieldWork(ctx, rc.OrgID(), id)
		if err != nil {
			return err
		}
		if started {
			return domain.NewInvalidTransition("audit has risk assessments and cannot be deleted")
		}
		return uc.auditRepo.Delete(ctx, rc.OrgID(), id)
	})
	if err != nil {
		return txFailed("delete audit", err)
	}
	return nil
}

// checkParties resolves the auditee name and checks every team member is audit staff of the organization
func (uc *AuditUseCase) checkParties(ctx context.Context, rc domain.RequestContext, audit *domain.Audit) error {
	auditee, err := uc.auditeeRepo.FindByID(ctx, rc.OrgID(), audit.AuditeeID)
	if err != nil {
		return fmt.Errorf("failed to find auditee: %w", err)
	}
	audit.AuditeeName = auditee.Name

	for _, member := range audit.Team {
		user, err := uc.userRepo.FindByID(ctx, member.UserID)
		if err != nil {
			return fmt.Errorf("failed to find team member: %w", err)
		}
		if user.OrganizationID == nil || *user.OrganizationID != rc.OrgID() || !user.Role.IsAuditStaff() {
			return domain.NewValidation("user %d cannot join the audit team", member.UserID)
		}
	}
	return nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, domain.NewValidation("%s is required", field)
	}
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, domain.NewValidation("%s must be in YYYY-MM-DD form", field)
	}
	return d, nil
}
