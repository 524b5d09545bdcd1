package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// IssueRequest represents the author-editable fields of an issue
type IssueRequest struct {
	Title            string `json:"issue_title"`
	Criteria         string `json:"criteria"`
	Condition        string `json:"condition"`
	Cause            string `json:"cause"`
	Consequence      string `json:"consequence"`
	CorrectiveAction string `json:"corrective_action"`
	CorrectiveDate   string `json:"corrective_date"`
}

func (r IssueRequest) fields() (domain.IssueFields, error) {
	f := domain.IssueFields{
		Title:            strings.TrimSpace(r.Title),
		Criteria:         r.Criteria,
		Condition:        r.Condition,
		Cause:            r.Cause,
		Consequence:      r.Consequence,
		CorrectiveAction: r.CorrectiveAction,
	}
	if strings.TrimSpace(r.CorrectiveDate) != "" {
		d, err := parseDate("corrective date", strings.TrimSpace(r.CorrectiveDate))
		if err != nil {
			return domain.IssueFields{}, err
		}
		f.CorrectiveDate = &d
	}
	return f, nil
}

// ReviewCommentRequest represents a reviewer note
type ReviewCommentRequest struct {
	Comment      string `json:"comment"`
	FieldName    string `json:"field_name"`
	SelectedText string `json:"selected_text"`
}

// ReportProcedure is a report-included procedure that still needs, or is drafting, its issue
type ReportProcedure struct {
	Procedure *domain.AuditProcedure `json:"procedure"`
	Issue     *domain.IssueView      `json:"issue"`
}

// Verification list filters
const (
	VerificationPending   = "pending"
	VerificationApproved  = "approved"
	VerificationAmendment = "amendment"
	VerificationRemoved   = "removed"
)

// IssueUseCase drives the issue lifecycle
type IssueUseCase struct {
	tx             ports.Transactor
	auditRepo      ports.AuditRepository
	assessmentRepo ports.RiskAssessmentRepository
	procedureRepo  ports.ProcedureRepository
	issueRepo      ports.IssueRepository
	reviewRepo     ports.ReviewCommentRepository
	eventPublisher ports.EventPublisher
	metrics        ports.WorkflowMetrics
}

// NewIssueUseCase creates a new issue use case
func NewIssueUseCase(
	tx ports.Transactor,
	auditRepo ports.AuditRepository,
	assessmentRepo ports.RiskAssessmentRepository,
	procedureRepo ports.ProcedureRepository,
	issueRepo ports.IssueRepository,
	reviewRepo ports.ReviewCommentRepository,
	eventPublisher ports.EventPublisher,
	metrics ports.WorkflowMetrics,
) *IssueUseCase {
	return &IssueUseCase{
		tx:             tx,
		auditRepo:      auditRepo,
		assessmentRepo: assessmentRepo,
		procedureRepo:  procedureRepo,
		issueRepo:      issueRepo,
		reviewRepo:     reviewRepo,
		eventPublisher: eventPublisher,
		metrics:        metrics,
	}
}

func (uc *IssueUseCase) transitioned(ctx context.Context, rc domain.RequestContext, issue *domain.AuditIssue, from domain.IssueStatus, eventType string) {
	if uc.metrics != nil {
		uc.metrics.IssueTransition(from, issue.Status)
	}
	publish(ctx, uc.eventPublisher, ports.NewEvent(
		eventType,
		"issue",
		rc.OrgID(),
		issue.ID,
		rc.Principal.UserID,
		map[string]interface{}{
			"audit_id":    issue.AuditID,
			"issue_title": issue.Title,
			"from":        from,
			"to":          issue.Status,
		},
		rc.Now,
	))
}

// write runs the author-side transitions against the procedure's active issue,
// creating the issue when none is active.
func (uc *IssueUseCase) write(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64, req IssueRequest, apply func(*domain.AuditIssue, domain.IssueFields) error) (*domain.AuditIssue, domain.IssueStatus, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, "", err
	}
	fields, err := req.fields()
	if err != nil {
		return nil, "", err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, "", err
	}
	if _, err := uc.procedureRepo.FindByID(ctx, rc.OrgID(), auditID, procedureID); err != nil {
		return nil, "", fmt.Errorf("failed to find procedure: %w", err)
	}

	var issue *domain.AuditIssue
	var from domain.IssueStatus
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := uc.issueRepo.FindActiveByProcedure(ctx, rc.OrgID(), procedureID)
		if err != nil {
			return err
		}
		isNew := existing == nil
		if isNew {
			existing = domain.NewIssue(auditID, procedureID, rc.Principal.UserID, rc.Now)
		}
		from = existing.Status
		if err := apply(existing, fields); err != nil {
			return err
		}
		issue = existing
		if isNew {
			from = ""
			return uc.issueRepo.Create(ctx, issue)
		}
		return uc.issueRepo.Update(ctx, issue)
	})
	if err != nil {
		return nil, "", txFailed("save issue", err)
	}
	return issue, from, nil
}

// SaveDraft creates or updates the procedure's draft issue
func (uc *IssueUseCase) SaveDraft(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64, req IssueRequest) (*domain.AuditIssue, error) {
	issue, from, err := uc.write(ctx, rc, auditID, procedureID, req, func(i *domain.AuditIssue, f domain.IssueFields) error {
		return i.SaveDraft(f, rc.Now)
	})
	if err != nil {
		return nil, err
	}
	uc.transitioned(ctx, rc, issue, from, ports.EventTypeIssueDrafted)
	return issue, nil
}

// SubmitForVerification saves the fields and hands the issue to a reviewer
func (uc *IssueUseCase) SubmitForVerification(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64, req IssueRequest) (*domain.AuditIssue, error) {
	issue, from, err := uc.write(ctx, rc, auditID, procedureID, req, func(i *domain.AuditIssue, f domain.IssueFields) error {
		return i.SubmitForVerification(f, rc.Principal.UserID, rc.Now)
	})
	if err != nil {
		return nil, err
	}
	uc.transitioned(ctx, rc, issue, from, ports.EventTypeIssueSubmitted)
	return issue, nil
}

func (uc *IssueUseCase) verify(ctx context.Context, rc domain.RequestContext, issueID int64, action string, eventType string, apply func(*domain.AuditIssue) error) (*domain.AuditIssue, error) {
	if err := rc.RequireRole(domain.RoleManager, domain.RoleHeadOfAudit); err != nil {
		return nil, err
	}
	var issue *domain.AuditIssue
	var from domain.IssueStatus
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := uc.issueRepo.FindByID(ctx, rc.OrgID(), issueID)
		if err != nil {
			return err
		}
		from = found.Status
		if err := apply(found); err != nil {
			return err
		}
		issue = found
		return uc.issueRepo.Update(ctx, found)
	})
	if err != nil {
		return nil, txFailed(action, err)
	}
	uc.transitioned(ctx, rc, issue, from, eventType)
	return issue, nil
}

// Approve accepts a submitted issue
func (uc *IssueUseCase) Approve(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error) {
	return uc.verify(ctx, rc, issueID, "approve issue", ports.EventTypeIssueApproved, func(i *domain.AuditIssue) error {
		return i.Approve(rc.Principal.UserID, rc.Now)
	})
}

// SendForAmendment returns a submitted issue to its author
func (uc *IssueUseCase) SendForAmendment(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error) {
	return uc.verify(ctx, rc, issueID, "send issue for amendment", ports.EventTypeIssueAmendment, func(i *domain.AuditIssue) error {
		return i.SendForAmendment(rc.Principal.UserID, rc.Now)
	})
}

// Remove discards a submitted issue
func (uc *IssueUseCase) Remove(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.AuditIssue, error) {
	return uc.verify(ctx, rc, issueID, "remove issue", ports.EventTypeIssueRemoved, func(i *domain.AuditIssue) error {
		return i.Remove(rc.Principal.UserID, rc.Now)
	})
}

// ListForVerification lists the organization's issues in a review queue
func (uc *IssueUseCase) ListForVerification(ctx context.Context, rc domain.RequestContext, filter string, auditID *int64) ([]*domain.IssueView, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	q := ports.IssueQuery{AuditID: auditID}
	switch filter {
	case VerificationPending, "":
		q.Statuses = []domain.IssueStatus{domain.IssueStatusSentForVerify}
	case VerificationApproved:
		q.Statuses = []domain.IssueStatus{domain.IssueStatusApproved}
	case VerificationAmendment:
		q.Statuses = []domain.IssueStatus{domain.IssueStatusSentForAmendment}
	case VerificationRemoved:
		q.Statuses = []domain.IssueStatus{domain.IssueStatusRemoved}
	default:
		return nil, domain.NewValidation("unknown filter %q", filter)
	}
	issues, err := uc.issueRepo.ListViews(ctx, rc.OrgID(), q)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

// GetIssue returns an issue with its procedure's severity
func (uc *IssueUseCase) GetIssue(ctx context.Context, rc domain.RequestContext, issueID int64) (*domain.IssueView, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	view, err := uc.issueRepo.FindView(ctx, rc.OrgID(), issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	return view, nil
}

// GetDraft returns the procedure's editable issue, or nil when there is none
func (uc *IssueUseCase) GetDraft(ctx context.Context, rc domain.RequestContext, auditID, procedureID int64) (*domain.AuditIssue, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := uc.procedureRepo.FindByID(ctx, rc.OrgID(), auditID, procedureID); err != nil {
		return nil, fmt.Errorf("failed to find procedure: %w", err)
	}
	issue, err := uc.issueRepo.FindActiveByProcedure(ctx, rc.OrgID(), procedureID)
	if err != nil {
		return nil, fmt.Errorf("failed to find draft: %w", err)
	}
	if issue == nil || !issue.Status.IsEditable() {
		return nil, nil
	}
	return issue, nil
}

// ReportProcedures lists report-included procedures of selected assessments whose
// issue is not yet raised or is still being drafted
func (uc *IssueUseCase) ReportProcedures(ctx context.Context, rc domain.RequestContext, auditID int64) ([]ReportProcedure, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, err
	}
	_, selected, err := folderIndex(ctx, uc.assessmentRepo, rc, auditID)
	if err != nil {
		return nil, err
	}
	isSelected := make(map[int64]bool, len(selected))
	for _, ra := range selected {
		isSelected[ra.ID] = true
	}

	procedures, err := uc.procedureRepo.ListByAudit(ctx, rc.OrgID(), auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list procedures: %w", err)
	}
	issues, err := uc.issueRepo.ListViews(ctx, rc.OrgID(), ports.IssueQuery{AuditID: &auditID})
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	byProcedure := make(map[int64][]*domain.IssueView)
	for _, iv := range issues {
		byProcedure[iv.AuditProcedureID] = append(byProcedure[iv.AuditProcedureID], iv)
	}

	var out []ReportProcedure
	for _, p := range procedures {
		if !p.IncludeInReport || !isSelected[p.RiskAssessmentID] {
			continue
		}
		related := byProcedure[p.ID]
		if len(related) == 0 {
			out = append(out, ReportProcedure{Procedure: p})
			continue
		}
		for _, iv := range related {
			if iv.Status.IsEditable() {
				out = append(out, ReportProcedure{Procedure: p, Issue: iv})
			}
		}
	}
	return out, nil
}

// SetIncludeInReport toggles whether an issue appears in the final report
func (uc *IssueUseCase) SetIncludeInReport(ctx context.Context, rc domain.RequestContext, issueID int64, include bool) (*domain.AuditIssue, error) {
	return uc.edit(ctx, rc, issueID, "update report inclusion", func(i *domain.AuditIssue) error {
		i.IncludeInReport = include
		return nil
	})
}

// SetCorrectiveDate sets the agreed corrective action date
func (uc *IssueUseCase) SetCorrectiveDate(ctx context.Context, rc domain.RequestContext, issueID int64, date string) (*domain.AuditIssue, error) {
	var d *time.Time
	if strings.TrimSpace(date) != "" {
		parsed, err := parseDate("corrective date", strings.TrimSpace(date))
		if err != nil {
			return nil, err
		}
		d = &parsed
	}
	return uc.edit(ctx, rc, issueID, "update corrective date", func(i *domain.AuditIssue) error {
		i.CorrectiveDate = d
		return nil
	})
}

func (uc *IssueUseCase) edit(ctx context.Context, rc domain.RequestContext, issueID int64, action string, apply func(*domain.AuditIssue) error) (*domain.AuditIssue, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	var issue *domain.AuditIssue
	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		found, err := uc.issueRepo.FindByID(ctx, rc.OrgID(), issueID)
		if err != nil {
			return err
		}
		if found.Status == domain.IssueStatusRemoved {
			return domain.NewInvalidTransition("issue has been removed")
		}
		if err := apply(found); err != nil {
			return err
		}
		found.UpdatedAt = rc.Now
		issue = found
		return uc.issueRepo.Update(ctx, found)
	})
	if err != nil {
		return nil, txFailed(action, err)
	}
	return issue, nil
}

// AddReviewComment records a reviewer note, optionally tied to a field and selected text
func (uc *IssueUseCase) AddReviewComment(ctx context.Context, rc domain.RequestContext, issueID int64, req ReviewCommentRequest) (*domain.IssueReviewComment, error) {
	if err := rc.RequireRole(domain.RoleManager, domain.RoleHeadOfAudit); err != nil {
		return nil, err
	}
	if _, err := uc.issueRepo.FindByID(ctx, rc.OrgID(), issueID); err != nil {
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	c := &domain.IssueReviewComment{
		IssueID:      issueID,
		UserID:       rc.Principal.UserID,
		Comment:      strings.TrimSpace(req.Comment),
		FieldName:    req.FieldName,
		SelectedText: req.SelectedText,
		CreatedAt:    rc.Now,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := uc.reviewRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create review comment: %w", err)
	}
	return c, nil
}

// ListReviewComments returns an issue's reviewer notes
func (uc *IssueUseCase) ListReviewComments(ctx context.Context, rc domain.RequestContext, issueID int64) ([]*domain.IssueReviewComment, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := uc.issueRepo.FindByID(ctx, rc.OrgID(), issueID); err != nil {
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	comments, err := uc.reviewRepo.ListByIssue(ctx, rc.OrgID(), issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review comments: %w", err)
	}
	return comments, nil
}
