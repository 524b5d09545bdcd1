package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// DashboardIssue is an issue shown to an auditee with its deadline state
type DashboardIssue struct {
	*domain.IssueView
	DaysRemaining int                 `json:"days_remaining"`
	Stats         domain.CommentStats `json:"stats"`
}

// AuditeeDashboard groups the issues awaiting the auditee
type AuditeeDashboard struct {
	PendingComments   []DashboardIssue `json:"pending_comments"`
	OverdueComments   []DashboardIssue `json:"overdue_comments"`
	Commented         []DashboardIssue `json:"commented"`
	PendingFollowups  []DashboardIssue `json:"pending_followups"`
	OverdueFollowups  []DashboardIssue `json:"overdue_followups"`
	RespondedFollowup []DashboardIssue `json:"responded_followups"`
}

// DashboardUseCase builds the auditee's landing view
type DashboardUseCase struct {
	issueRepo   ports.IssueRepository
	commentRepo ports.ManagementCommentRepository
	settings    WorkflowSettings
}

// NewDashboardUseCase creates a new dashboard use case
func NewDashboardUseCase(issueRepo ports.IssueRepository, commentRepo ports.ManagementCommentRepository, settings WorkflowSettings) *DashboardUseCase {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &DashboardUseCase{issueRepo: issueRepo, commentRepo: commentRepo, settings: settings}
}

// DaysRemaining counts calendar days from now until due in loc. Negative once past due.
func DaysRemaining(due, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := due.Date()
	ny, nm, nd := now.In(loc).Date()
	dueDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return int(dueDay.Sub(today).Hours() / 24)
}

// Auditee returns the comment and follow-up state of every approved issue on the auditee's audits
func (uc *DashboardUseCase) Auditee(ctx context.Context, rc domain.RequestContext) (*AuditeeDashboard, error) {
	if err := rc.RequireRole(domain.RoleAuditee); err != nil {
		return nil, err
	}
	userID := rc.Principal.UserID
	issues, err := uc.issueRepo.ListViews(ctx, rc.OrgID(), ports.IssueQuery{
		Statuses:      []domain.IssueStatus{domain.IssueStatusApproved},
		AuditeeUserID: &userID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	dash := &AuditeeDashboard{
		PendingComments:   []DashboardIssue{},
		OverdueComments:   []DashboardIssue{},
		Commented:         []DashboardIssue{},
		PendingFollowups:  []DashboardIssue{},
		OverdueFollowups:  []DashboardIssue{},
		RespondedFollowup: []DashboardIssue{},
	}
	loc := uc.settings.Location
	for _, iv := range issues {
		if iv.SentForCommenting && iv.CommentDueDate != nil {
			comments, err := uc.commentRepo.ListByIssue(ctx, rc.OrgID(), iv.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list comments: %w", err)
			}
			item := DashboardIssue{
				IssueView:     iv,
				DaysRemaining: DaysRemaining(*iv.CommentDueDate, rc.Now, loc),
				Stats:         domain.SummarizeComments(comments, iv.SentForCommentingAt),
			}
			switch {
			case item.Stats.HasResponded:
				dash.Commented = append(dash.Commented, item)
			case domain.Expired(*iv.CommentDueDate, rc.Now, loc):
				dash.OverdueComments = append(dash.OverdueComments, item)
			default:
				dash.PendingComments = append(dash.PendingComments, item)
			}
		}

		if iv.SentForFollowup && iv.FollowupDueDate != nil && !iv.FollowupResolved {
			item := DashboardIssue{IssueView: iv, DaysRemaining: DaysRemaining(*iv.FollowupDueDate, rc.Now, loc)}
			switch {
			case iv.FollowupResponded:
				dash.RespondedFollowup = append(dash.RespondedFollowup, item)
			case domain.Expired(*iv.FollowupDueDate, rc.Now, loc):
				dash.OverdueFollowups = append(dash.OverdueFollowups, item)
			default:
				dash.PendingFollowups = append(dash.PendingFollowups, item)
			}
		}
	}
	return dash, nil
}
