package usecase

import (
	"context"
	"fmt"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// txFailed wraps an error returned from a transaction. Domain errors raised inside
// the unit of work keep their kind; anything else is a storage failure.
func txFailed(action string, err error) error {
	if domain.KindOf(err) != "" {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	return fmt.Errorf("failed to %s: %w", action, domain.NewTransactionFailure(err))
}

// loadAudit fetches an audit of the caller's organization
func loadAudit(ctx context.Context, audits ports.AuditRepository, rc domain.RequestContext, auditID int64) (*domain.Audit, error) {
	audit, err := audits.FindByID(ctx, rc.OrgID(), auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to find audit: %w", err)
	}
	return audit, nil
}

// folderIndex derives the folders of an audit from its selected assessments
func folderIndex(ctx context.Context, assessments ports.RiskAssessmentRepository, rc domain.RequestContext, auditID int64) (*domain.FolderIndex, []*domain.RiskAssessment, error) {
	all, err := assessments.ListByAudit(ctx, rc.OrgID(), auditID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	var selected []*domain.RiskAssessment
	refs := make([]domain.AssessmentRef, 0, len(all))
	for _, ra := range all {
		if !ra.IsSelected {
			continue
		}
		selected = append(selected, ra)
		refs = append(refs, domain.AssessmentRef{ID: ra.ID, AuditArea: ra.AuditArea})
	}
	return domain.FolderKeys(refs), selected, nil
}

func publish(ctx context.Context, publisher ports.EventPublisher, event *ports.Event) {
	if publisher == nil {
		return
	}
	_ = publisher.Publish(ctx, *event)
}
