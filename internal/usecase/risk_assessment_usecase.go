package usecase

import (
	"context"
	"fmt"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// SaveAssessmentsRequest represents a batch save of an audit's risk assessments
type SaveAssessmentsRequest struct {
	Items []domain.AssessmentItem `json:"items"`
}

// SaveAssessmentsResponse reports what a batch save did
type SaveAssessmentsResponse struct {
	Upserted int `json:"upserted"`
	Deleted  int `json:"deleted"`
	Retained int `json:"retained"`
	Skipped  int `json:"skipped"`
}

// AssessmentView is a risk assessment with its derived score
type AssessmentView struct {
	*domain.RiskAssessment
	Rating int         `json:"rating"`
	Band   domain.Band `json:"band"`
}

// RiskAssessmentUseCase handles selection and scoring of universe items for an audit
type RiskAssessmentUseCase struct {
	tx             ports.Transactor
	auditRepo      ports.AuditRepository
	assessmentRepo ports.RiskAssessmentRepository
	eventPublisher ports.EventPublisher
}

// NewRiskAssessmentUseCase creates a new risk assessment use case
func NewRiskAssessmentUseCase(
	tx ports.Transactor,
	auditRepo ports.AuditRepository,
	assessmentRepo ports.RiskAssessmentRepository,
	eventPublisher ports.EventPublisher,
) *RiskAssessmentUseCase {
	return &RiskAssessmentUseCase{
		tx:             tx,
		auditRepo:      auditRepo,
		assessmentRepo: assessmentRepo,
		eventPublisher: eventPublisher,
	}
}

// SaveAssessments upserts the batch and deletes omitted assessments that no procedure references
func (uc *RiskAssessmentUseCase) SaveAssessments(ctx context.Context, rc domain.RequestContext, auditID int64, req SaveAssessmentsRequest) (*SaveAssessmentsResponse, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, err
	}

	existing, err := uc.assessmentRepo.ListByAudit(ctx, rc.OrgID(), auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	existingIDs := make([]int64, 0, len(existing))
	for _, ra := range existing {
		existingIDs = append(existingIDs, ra.UniverseID)
	}

	plan := domain.PlanAssessments(existingIDs, req.Items)
	resp := &SaveAssessmentsResponse{Skipped: plan.Skipped}
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, item := range plan.Upserts {
			if err := uc.assessmentRepo.Upsert(ctx, rc.OrgID(), auditID, item, rc.Now); err != nil {
				return err
			}
		}
		for _, universeID := range plan.Omitted {
			deleted, err := uc.assessmentRepo.DeleteUnreferenced(ctx, rc.OrgID(), auditID, universeID)
			if err != nil {
				return err
			}
			if deleted {
				resp.Deleted++
			} else {
				resp.Retained++
			}
		}
		return nil
	})
	if err != nil {
		return nil, txFailed("save risk assessments", err)
	}
	resp.Upserted = len(plan.Upserts)

	publish(ctx, uc.eventPublisher, ports.NewEvent(
		ports.EventTypeRiskAssessmentsSaved,
		"audit",
		rc.OrgID(),
		auditID,
		rc.Principal.UserID,
		map[string]interface{}{
			"upserted": resp.Upserted,
			"deleted":  resp.Deleted,
			"retained": resp.Retained,
		},
		rc.Now,
	))

	return resp, nil
}

// ListAssessments returns the audit's assessments with rating and band
func (uc *RiskAssessmentUseCase) ListAssessments(ctx context.Context, rc domain.RequestContext, auditID int64) ([]AssessmentView, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, err
	}
	rows, err := uc.assessmentRepo.ListByAudit(ctx, rc.OrgID(), auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	views := make([]AssessmentView, 0, len(rows))
	for _, ra := range rows {
		views = append(views, AssessmentView{RiskAssessment: ra, Rating: ra.Rating(), Band: ra.Band()})
	}
	return views, nil
}
