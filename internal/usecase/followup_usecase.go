package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

const followupCategory = "followups"

// FollowupHistory is an issue's follow-up state with every response received
type FollowupHistory struct {
	Issue     *domain.AuditIssue         `json:"issue"`
	Responses []*domain.FollowupResponse `json:"responses"`
	Overdue   bool                       `json:"overdue"`
}

// FollowupUseCase handles corrective-action tracking on approved issues
type FollowupUseCase struct {
	auditeeAccess
	tx           ports.Transactor
	issueRepo    ports.IssueRepository
	followupRepo ports.FollowupRepository
	storage      ports.FileStorage
	eventPub     ports.EventPublisher
	settings     WorkflowSettings
}

// NewFollowupUseCase creates a new follow-up use case
func NewFollowupUseCase(
	tx ports.Transactor,
	auditRepo ports.AuditRepository,
	auditeeRepo ports.AuditeeRepository,
	issueRepo ports.IssueRepository,
	followupRepo ports.FollowupRepository,
	storage ports.FileStorage,
	eventPub ports.EventPublisher,
	settings WorkflowSettings,
) *FollowupUseCase {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &FollowupUseCase{
		auditeeAccess: auditeeAccess{auditRepo: auditRepo, auditeeRepo: auditeeRepo},
		tx:            tx,
		issueRepo:     issueRepo,
		followupRepo:  followupRepo,
		storage:       storage,
		eventPub:      eventPub,
		settings:      settings,
	}
}

func (uc *FollowupUseCase) update(ctx context.Context, rc domain.RequestContext, issueID int64, action string, apply func(ctx context.Context, i *domain.AuditIssue) error) (*domain.AuditIssue, error) {
	var issue *domain.AuditIssue
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := uc.issueRepo.FindByID(ctx, rc.OrgID(), issueID)
		if err != nil {
			return err
		}
		if err := apply(ctx, found); err != nil {
			return err
		}
		issue = found
		return uc.issueRepo.Update(ctx, found)
	})
	if err != nil {
		return nil, txFailed(action, err)
	}
	return issue, nil
}

// SendForFollowup opens the follow-up window on an approved issue
func (uc *FollowupUseCase) SendForFollowup(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate string) (*domain.AuditIssue, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	due, err := domain.ParseDueDate(dueDate, uc.settings.Location)
	if err != nil {
		return nil, err
	}
	issue, err := uc.update(ctx, rc, issueID, "send issue for follow-up", func(ctx context.Context, i *domain.AuditIssue) error {
		return i.SendForFollowup(due, rc.Now)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, uc.eventPub, ports.NewEvent(ports.EventTypeIssueSentForFollowup, "issue", rc.OrgID(), issue.ID, rc.Principal.UserID,
		map[string]interface{}{"audit_id": issue.AuditID, "followup_due_date": due.Format(domain.DateLayout)}, rc.Now))
	return issue, nil
}

// SubmitFollowup appends the auditee's response and mirrors it onto the issue in one transaction
func (uc *FollowupUseCase) SubmitFollowup(ctx context.Context, rc domain.RequestContext, issueID int64, response string, evidence *Upload) (*domain.FollowupResponse, error) {
	if err := rc.RequireRole(domain.RoleAuditee); err != nil {
		return nil, err
	}
	issue, err := uc.issueRepo.FindByID(ctx, rc.OrgID(), issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	if err := uc.checkOwner(ctx, rc, issue); err != nil {
		return nil, err
	}
	response = strings.TrimSpace(response)
	// Fail fast on the window before storing any upload; checked again under the transaction.
	probe := *issue
	if err := probe.RecordFollowupResponse(response, "", rc.Now, uc.settings.Location); err != nil {
		return nil, err
	}

	path := ""
	if evidence != nil {
		if uc.storage == nil {
			return nil, domain.NewValidation("file uploads are not configured")
		}
		path, err = uc.storage.Save(ctx, followupCategory, evidence.Filename, evidence.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to store evidence: %w", err)
		}
	}

	entry := &domain.FollowupResponse{
		IssueID:      issueID,
		RespondedBy:  rc.Principal.UserID,
		Response:     response,
		EvidencePath: path,
		CreatedAt:    rc.Now,
	}
	_, err = uc.update(ctx, rc, issueID, "submit follow-up", func(ctx context.Context, i *domain.AuditIssue) error {
		if err := i.RecordFollowupResponse(response, path, rc.Now, uc.settings.Location); err != nil {
			return err
		}
		return uc.followupRepo.Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, uc.eventPub, ports.NewEvent(ports.EventTypeFollowupSubmitted, "issue", rc.OrgID(), issueID, rc.Principal.UserID,
		map[string]interface{}{"audit_id": issue.AuditID, "followup_id": entry.ID}, rc.Now))
	return entry, nil
}

// ResendFollowup clears the mirrored response, re-opens the window and bumps the history's resend count
func (uc *FollowupUseCase) ResendFollowup(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate string) (*domain.AuditIssue, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	due, err := domain.ParseDueDate(dueDate, uc.settings.Location)
	if err != nil {
		return nil, err
	}
	issue, err := uc.update(ctx, rc, issueID, "resend follow-up", func(ctx context.Context, i *domain.AuditIssue) error {
		if err := i.ResendFollowup(due, rc.Now); err != nil {
			return err
		}
		return uc.followupRepo.IncrementResendCount(ctx, i.ID)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, uc.eventPub, ports.NewEvent(ports.EventTypeIssueSentForFollowup, "issue", rc.OrgID(), issue.ID, rc.Principal.UserID,
		map[string]interface{}{"audit_id": issue.AuditID, "followup_due_date": due.Format(domain.DateLayout), "resend": true}, rc.Now))
	return issue, nil
}

// ResolveFollowup marks the corrective action as resolved whether or not a response exists
func (uc *FollowupUseCase) ResolveFollowup(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	issue, err := uc.update(ctx, rc, issueID, "resolve follow-up", func(ctx context.Context, i *domain.AuditIssue) error {
		return i.ResolveFollowup(rc.Principal.UserID, rc.Now)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, uc.eventPub, ports.NewEvent(ports.EventTypeFollowupResolved, "issue", rc.OrgID(), issue.ID, rc.Principal.UserID,
		map[string]interface{}{"audit_id": issue.AuditID}, rc.Now))
	return issue, nil
}

// History returns the issue's follow-up state and responses newest first
func (uc *FollowupUseCase) History(ctx context.Context, rc domain.RequestContext, issueID int64) (*FollowupHistory, error) {
	issue, err := uc.issueRepo.FindByID(ctx, rc.OrgID(), issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	if err := uc.checkOwner(ctx, rc, issue); err != nil {
		return nil, err
	}
	responses, err := uc.followupRepo.ListByIssue(ctx, rc.OrgID(), issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list follow-up responses: %w", err)
	}
	if responses == nil {
		responses = []*domain.FollowupResponse{}
	}
	return &FollowupHistory{Issue: issue, Responses: responses, Overdue: followupOverdue(issue, rc.Now, uc.settings.Location)}, nil
}

func followupOverdue(i *domain.AuditIssue, now time.Time, loc *time.Location) bool {
	if !i.SentForFollowup || i.FollowupResponded || i.FollowupResolved || i.FollowupDueDate == nil {
		return false
	}
	return domain.Expired(*i.FollowupDueDate, now, loc)
}

// ListFollowups returns the approved issues of an audit that were sent for follow-up
func (uc *FollowupUseCase) ListFollowups(ctx context.Context, rc domain.RequestContext, auditID int64) ([]*domain.IssueView, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, err
	}
	sent := true
	issues, err := uc.issueRepo.ListViews(ctx, rc.OrgID(), ports.IssueQuery{
		AuditID:         &auditID,
		Statuses:        []domain.IssueStatus{domain.IssueStatusApproved},
		SentForFollowup: &sent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list follow-ups: %w", err)
	}
	return issues, nil
}
