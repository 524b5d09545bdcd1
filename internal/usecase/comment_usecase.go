package usecase

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

const attachmentCategory = "comments"

// WorkflowSettings carries deadline and notification settings shared by the comment and follow-up threads
type WorkflowSettings struct {
	// Location decides where a due date's calendar day ends
	Location  *time.Location
	PortalURL string
}

// NotifyResult is an issue change whose email side effect may have failed.
// A notification error never undoes the committed change.
type NotifyResult struct {
	Issue             *domain.AuditIssue `json:"issue"`
	NotificationError string             `json:"notification_error,omitempty"`
}

// CommentThread is an issue's management comments with their stats
type CommentThread struct {
	Comments []*domain.ManagementComment `json:"comments"`
	Stats    domain.CommentStats         `json:"stats"`
}

// CommentOverview summarises the comment state of one approved issue
type CommentOverview struct {
	Issue   *domain.IssueView   `json:"issue"`
	Stats   domain.CommentStats `json:"stats"`
	Overdue bool                `json:"overdue"`
}

// auditeeAccess resolves which auditee owns an issue
type auditeeAccess struct {
	auditRepo   ports.AuditRepository
	auditeeRepo ports.AuditeeRepository
}

func (a auditeeAccess) auditeeOf(ctx context.Context, rc domain.RequestContext, issue *domain.AuditIssue) (*domain.Auditee, *domain.Audit, error) {
	audit, err := a.auditRepo.FindByID(ctx, rc.OrgID(), issue.AuditID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find audit: %w", err)
	}
	auditee, err := a.auditeeRepo.FindByID(ctx, rc.OrgID(), audit.AuditeeID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find auditee: %w", err)
	}
	return auditee, audit, nil
}

// checkOwner allows audit staff, or the auditee user linked to the issue's audit.
// Other auditees get not-found so issue ids do not leak.
func (a auditeeAccess) checkOwner(ctx context.Context, rc domain.RequestContext, issue *domain.AuditIssue) error {
	if rc.Principal.Role.IsAuditStaff() {
		return nil
	}
	if rc.Principal.Role != domain.RoleAuditee {
		return domain.NewForbidden("auditee access required")
	}
	auditee, _, err := a.auditeeOf(ctx, rc, issue)
	if err != nil {
		return err
	}
	if auditee.UserID == nil || *auditee.UserID != rc.Principal.UserID {
		return domain.NewNotFound("issue")
	}
	return nil
}

var notificationTemplate = template.Must(template.New("notification").Parse(`<p>Dear {{.Recipient}},</p>
<p>{{.Intro}}</p>
<table>
<tr><td><strong>Audit</strong></td><td>{{.AuditName}}</td></tr>
<tr><td><strong>Issue</strong></td><td>{{.IssueTitle}}</td></tr>
<tr><td><strong>Due date</strong></td><td>{{.DueDate}}</td></tr>
</table>
{{if .Link}}<p><a href="{{.Link}}">Open the auditee portal</a></p>{{end}}
<p>Please respond on or before the due date.</p>`))

type notificationData struct {
	Recipient  string
	Intro      string
	AuditName  string
	IssueTitle string
	DueDate    string
	Link       string
}

func renderNotification(data notificationData) (string, error) {
	var buf bytes.Buffer
	if err := notificationTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CommentUseCase handles the management comment thread of approved issues
type CommentUseCase struct {
	auditeeAccess
	tx          ports.Transactor
	issueRepo   ports.IssueRepository
	commentRepo ports.ManagementCommentRepository
	storage     ports.FileStorage
	mailer      ports.Mailer
	eventPub    ports.EventPublisher
	settings    WorkflowSettings
}

// NewCommentUseCase creates a new comment use case
func NewCommentUseCase(
	tx ports.Transactor,
	auditRepo ports.AuditRepository,
	auditeeRepo ports.AuditeeRepository,
	issueRepo ports.IssueRepository,
	commentRepo ports.ManagementCommentRepository,
	storage ports.FileStorage,
	mailer ports.Mailer,
	eventPub ports.EventPublisher,
	settings WorkflowSettings,
) *CommentUseCase {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &CommentUseCase{
		auditeeAccess: auditeeAccess{auditRepo: auditRepo, auditeeRepo: auditeeRepo},
		tx:            tx,
		issueRepo:     issueRepo,
		commentRepo:   commentRepo,
		storage:       storage,
		mailer:        mailer,
		eventPub:      eventPub,
		settings:      settings,
	}
}

func (uc *CommentUseCase) update(ctx context.Context, rc domain.RequestContext, issueID int64, action string, apply func(ctx context.Context, i *domain.AuditIssue) error) (*domain.AuditIssue, error) {
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

// SendForCommenting opens the comment window and emails the auditee after commit
func (uc *CommentUseCase) SendForCommenting(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate string) (*NotifyResult, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	due, err := domain.ParseDueDate(dueDate, uc.settings.Location)
	if err != nil {
		return nil, err
	}
	issue, err := uc.update(ctx, rc, issueID, "send issue for commenting", func(ctx context.Context, i *domain.AuditIssue) error {
		return i.SendForCommenting(due, rc.Now)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, uc.eventPub, ports.NewEvent(ports.EventTypeIssueSentForComment, "issue", rc.OrgID(), issue.ID, rc.Principal.UserID,
		map[string]interface{}{"audit_id": issue.AuditID, "comment_due_date": due.Format(domain.DateLayout)}, rc.Now))

	return uc.notify(ctx, rc, issue, "An audit issue has been shared with you for management comments."), nil
}

// ResendForComment re-opens the comment window with a new due date and an optional auditor note
func (uc *CommentUseCase) ResendForComment(ctx context.Context, rc domain.RequestContext, issueID int64, dueDate, note string) (*NotifyResult, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	due, err := domain.ParseDueDate(dueDate, uc.settings.Location)
	if err != nil {
		return nil, err
	}
	issue, err := uc.update(ctx, rc, issueID, "resend issue for comment", func(ctx context.Context, i *domain.AuditIssue) error {
		if err := i.ResendForComment(due, rc.Now); err != nil {
			return err
		}
		if strings.TrimSpace(note) == "" {
			return nil
		}
		c, err := domain.NewManagementComment(i.ID, rc.Principal.UserID, strings.TrimSpace(note), "", true, rc.Now)
		if err != nil {
			return err
		}
		return uc.commentRepo.Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, uc.eventPub, ports.NewEvent(ports.EventTypeIssueSentForComment, "issue", rc.OrgID(), issue.ID, rc.Principal.UserID,
		map[string]interface{}{"audit_id": issue.AuditID, "comment_due_date": due.Format(domain.DateLayout), "resend": true}, rc.Now))

	return uc.notify(ctx, rc, issue, "An audit issue has been re-sent to you for management comments."), nil
}

// SendEmailNotification re-sends the comment request email without changing the issue
func (uc *CommentUseCase) SendEmailNotification(ctx context.Context, rc domain.RequestContext, issueID int64) (*NotifyResult, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	issue, err := uc.issueRepo.FindByID(ctx, rc.OrgID(), issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	if issue.Status != domain.IssueStatusApproved || !issue.SentForCommenting {
		return nil, domain.NewInvalidTransition("issue is not open for comments")
	}
	return uc.notify(ctx, rc, issue, "This is a reminder that an audit issue awaits your management comments."), nil
}

func (uc *CommentUseCase) notify(ctx context.Context, rc domain.RequestContext, issue *domain.AuditIssue, intro string) *NotifyResult {
	result := &NotifyResult{Issue: issue}
	if uc.mailer == nil {
		result.NotificationError = "email delivery is not configured"
		return result
	}
	auditee, audit, err := uc.auditeeOf(ctx, rc, issue)
	if err != nil {
		result.NotificationError = err.Error()
		return result
	}
	if auditee.Email == "" {
		result.NotificationError = "auditee has no email address"
		return result
	}
	due := ""
	if issue.CommentDueDate != nil {
		due = issue.CommentDueDate.Format(domain.DateLayout)
	}
	body, err := renderNotification(notificationData{
		Recipient:  auditee.Name,
		Intro:      intro,
		AuditName:  audit.Name,
		IssueTitle: issue.Title,
		DueDate:    due,
		Link:       uc.settings.PortalURL,
	})
	if err != nil {
		result.NotificationError = err.Error()
		return result
	}
	err = uc.mailer.Send(ctx, ports.Mail{
		To:      auditee.Email,
		Subject: fmt.Sprintf("Audit issue for comment: %s", issue.Title),
		HTML:    body,
	})
	if err != nil {
		result.NotificationError = fmt.Sprintf("failed to send email: %v", err)
	}
	return result
}

// SubmitComment appends an auditee comment while the window is open
func (uc *CommentUseCase) SubmitComment(ctx context.Context, rc domain.RequestContext, issueID int64, text string, attachment *Upload) (*domain.ManagementComment, error) {
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
	if err := issue.CheckCommentWindow(rc.Now, uc.settings.Location); err != nil {
		return nil, err
	}

	path := ""
	if attachment != nil {
		if uc.storage == nil {
			return nil, domain.NewValidation("file uploads are not configured")
		}
		path, err = uc.storage.Save(ctx, attachmentCategory, attachment.Filename, attachment.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}
	}

	c, err := domain.NewManagementComment(issue.ID, rc.Principal.UserID, strings.TrimSpace(text), path, false, rc.Now)
	if err != nil {
		return nil, err
	}
	if err := uc.commentRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	publish(ctx, uc.eventPub, ports.NewEvent(ports.EventTypeCommentAdded, "issue", rc.OrgID(), issue.ID, rc.Principal.UserID,
		map[string]interface{}{"audit_id": issue.AuditID, "comment_id": c.ID}, rc.Now))
	return c, nil
}

// Thread returns an issue's comments and their stats relative to the latest send
func (uc *CommentUseCase) Thread(ctx context.Context, rc domain.RequestContext, issueID int64) (*CommentThread, error) {
	issue, err := uc.issueRepo.FindByID(ctx, rc.OrgID(), issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	if err := uc.checkOwner(ctx, rc, issue); err != nil {
		return nil, err
	}
	comments, err := uc.commentRepo.ListByIssue(ctx, rc.OrgID(), issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	if comments == nil {
		comments = []*domain.ManagementComment{}
	}
	return &CommentThread{
		Comments: comments,
		Stats:    domain.SummarizeComments(comments, issue.SentForCommentingAt),
	}, nil
}

// Overview returns comment stats for every approved issue of an audit that was sent for commenting
func (uc *CommentUseCase) Overview(ctx context.Context, rc domain.RequestContext, auditID int64) ([]CommentOverview, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, err
	}
	sent := true
	issues, err := uc.issueRepo.ListViews(ctx, rc.OrgID(), ports.IssueQuery{
		AuditID:           &auditID,
		Statuses:          []domain.IssueStatus{domain.IssueStatusApproved},
		SentForCommenting: &sent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	comments, err := uc.commentRepo.ListByAudit(ctx, rc.OrgID(), auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	byIssue := make(map[int64][]*domain.ManagementComment)
	for _, c := range comments {
		byIssue[c.IssueID] = append(byIssue[c.IssueID], c)
	}

	out := make([]CommentOverview, 0, len(issues))
	for _, iv := range issues {
		stats := domain.SummarizeComments(byIssue[iv.ID], iv.SentForCommentingAt)
		overdue := !stats.HasResponded && iv.CommentDueDate != nil && domain.Expired(*iv.CommentDueDate, rc.Now, uc.settings.Location)
		out = append(out, CommentOverview{Issue: iv, Stats: stats, Overdue: overdue})
	}
	return out, nil
}
