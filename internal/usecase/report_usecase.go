package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// ExportedReport is a rendered report document
type ExportedReport struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Register statuses of the comment and follow-up threads
const (
	ThreadNotSent   = "not_sent"
	ThreadAwaiting  = "awaiting_response"
	ThreadOverdue   = "overdue"
	ThreadResponded = "responded"
	ThreadResolved  = "resolved"
)

// RegisterEntry is one approved issue of the organization with its thread statuses
type RegisterEntry struct {
	*domain.IssueView
	CommentStatus  string `json:"comment_status"`
	FollowupStatus string `json:"followup_status"`
}

// ReportUseCase builds finalized reports and the issues register
type ReportUseCase struct {
	auditRepo   ports.AuditRepository
	issueRepo   ports.IssueRepository
	commentRepo ports.ManagementCommentRepository
	exporter    ports.DocumentExporter
	settings    WorkflowSettings
}

// NewReportUseCase creates a new report use case
func NewReportUseCase(
	auditRepo ports.AuditRepository,
	issueRepo ports.IssueRepository,
	commentRepo ports.ManagementCommentRepository,
	exporter ports.DocumentExporter,
	settings WorkflowSettings,
) *ReportUseCase {
	return &ReportUseCase{
		auditRepo:   auditRepo,
		issueRepo:   issueRepo,
		commentRepo: commentRepo,
		exporter:    exporter,
		settings:    settings,
	}
}

func (uc *ReportUseCase) approved(ctx context.Context, rc domain.RequestContext, auditID *int64) ([]*domain.IssueView, error) {
	issues, err := uc.issueRepo.ListViews(ctx, rc.OrgID(), ports.IssueQuery{
		AuditID:  auditID,
		Statuses: []domain.IssueStatus{domain.IssueStatusApproved},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}

// FinalizeList returns the audit's approved, report-included issues ordered by area then title
func (uc *ReportUseCase) FinalizeList(ctx context.Context, rc domain.RequestContext, auditID int64) ([]*domain.IssueView, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if _, err := loadAudit(ctx, uc.auditRepo, rc, auditID); err != nil {
		return nil, err
	}
	issues, err := uc.approved(ctx, rc, &auditID)
	if err != nil {
		return nil, err
	}
	findings := domain.FinalizedFindings(issues)
	if findings == nil {
		findings = []*domain.IssueView{}
	}
	return findings, nil
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Export renders the finalized findings of an audit through the configured exporter
func (uc *ReportUseCase) Export(ctx context.Context, rc domain.RequestContext, auditID int64) (*ExportedReport, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	if uc.exporter == nil {
		return nil, fmt.Errorf("report export is not configured")
	}
	audit, err := loadAudit(ctx, uc.auditRepo, rc, auditID)
	if err != nil {
		return nil, err
	}
	issues, err := uc.approved(ctx, rc, &auditID)
	if err != nil {
		return nil, err
	}
	doc := domain.BuildReport(audit, issues, rc.Now)
	content, err := uc.exporter.ExportIssues(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to export report: %w", err)
	}

	name := strings.Trim(unsafeFilename.ReplaceAllString(audit.Name, "_"), "_")
	if name == "" {
		name = fmt.Sprintf("audit_%d", audit.ID)
	}
	return &ExportedReport{
		Filename:    fmt.Sprintf("%s_report_%s.docx", name, rc.Now.Format(domain.DateLayout)),
		ContentType: uc.exporter.ContentType(),
		Content:     content,
	}, nil
}

// Register lists every approved issue of the organization with its comment and follow-up status
func (uc *ReportUseCase) Register(ctx context.Context, rc domain.RequestContext) ([]RegisterEntry, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	issues, err := uc.approved(ctx, rc, nil)
	if err != nil {
		return nil, err
	}

	byAudit := make(map[int64]map[int64][]*domain.ManagementComment)
	out := make([]RegisterEntry, 0, len(issues))
	for _, iv := range issues {
		if iv.SentForCommenting {
			if _, ok := byAudit[iv.AuditID]; !ok {
				comments, err := uc.commentRepo.ListByAudit(ctx, rc.OrgID(), iv.AuditID)
				if err != nil {
					return nil, fmt.Errorf("failed to list comments: %w", err)
				}
				grouped := make(map[int64][]*domain.ManagementComment)
				for _, c := range comments {
					grouped[c.IssueID] = append(grouped[c.IssueID], c)
				}
				byAudit[iv.AuditID] = grouped
			}
		}
		out = append(out, RegisterEntry{
			IssueView:      iv,
			CommentStatus:  commentStatus(&iv.AuditIssue, byAudit[iv.AuditID][iv.ID], rc, uc.settings),
			FollowupStatus: followupStatus(&iv.AuditIssue, rc, uc.settings),
		})
	}
	return out, nil
}

func commentStatus(i *domain.AuditIssue, comments []*domain.ManagementComment, rc domain.RequestContext, settings WorkflowSettings) string {
	if !i.SentForCommenting || i.CommentDueDate == nil {
		return ThreadNotSent
	}
	if domain.SummarizeComments(comments, i.SentForCommentingAt).HasResponded {
		return ThreadResponded
	}
	if domain.Expired(*i.CommentDueDate, rc.Now, settings.Location) {
		return ThreadOverdue
	}
	return ThreadAwaiting
}

func followupStatus(i *domain.AuditIssue, rc domain.RequestContext, settings WorkflowSettings) string {
	switch {
	case !i.SentForFollowup:
		return ThreadNotSent
	case i.FollowupResolved:
		return ThreadResolved
	case i.FollowupResponded:
		return ThreadResponded
	case followupOverdue(i, rc.Now, settings.Location):
		return ThreadOverdue
	}
	return ThreadAwaiting
}
