package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresIssueRepository implements IssueRepository using PostgreSQL
type PostgresIssueRepository struct {
	db *sql.DB
}

// NewPostgresIssueRepository creates a new PostgreSQL issue repository
func NewPostgresIssueRepository(db *sql.DB) ports.IssueRepository {
	return &PostgresIssueRepository{db: db}
}

const issueColumns = `i.id, i.audit_id, i.audit_procedure_id, i.issue_title, i.criteria, i.condition, i.cause,
	i.consequence, i.corrective_action, i.corrective_date, i.status, i.submitted_by, i.submitted_at,
	i.verified_by, i.verified_at, i.include_in_report, i.sent_for_commenting, i.comment_due_date,
	i.sent_for_commenting_at, i.sent_for_followup, i.followup_due_date, i.sent_for_followup_at,
	i.followup_responded, i.followup_response, i.followup_evidence_path, i.followup_responded_at,
	i.followup_resolved, i.followup_resolved_at, i.followup_resolved_by, i.created_by, i.created_at,
	i.updated_at`

const issueViewSelect = `
	SELECT ` + issueColumns + `, p.rating, p.band, u.audit_area, a.audit_name, ae.name
	FROM audit_issues i
	JOIN audits a ON a.id = i.audit_id
	JOIN auditees ae ON ae.id = a.auditee_id
	JOIN audit_procedures p ON p.id = i.audit_procedure_id
	JOIN risk_assessment ra ON ra.id = p.risk_assessment_id
	JOIN audit_universe u ON u.id = ra.audit_universe_id
`

func issueDest(i *domain.AuditIssue) []interface{} {
	return []interface{}{
		&i.ID,
		&i.AuditID,
		&i.AuditProcedureID,
		&i.Title,
		&i.Criteria,
		&i.Condition,
		&i.Cause,
		&i.Consequence,
		&i.CorrectiveAction,
		&i.CorrectiveDate,
		&i.Status,
		&i.SubmittedBy,
		&i.SubmittedAt,
		&i.VerifiedBy,
		&i.VerifiedAt,
		&i.IncludeInReport,
		&i.SentForCommenting,
		&i.CommentDueDate,
		&i.SentForCommentingAt,
		&i.SentForFollowup,
		&i.FollowupDueDate,
		&i.SentForFollowupAt,
		&i.FollowupResponded,
		&i.FollowupResponse,
		&i.FollowupEvidence,
		&i.FollowupRespondedAt,
		&i.FollowupResolved,
		&i.FollowupResolvedAt,
		&i.FollowupResolvedBy,
		&i.CreatedBy,
		&i.CreatedAt,
		&i.UpdatedAt,
	}
}

// mutableIssueArgs lists the values written by both Create and Update, in column order
func mutableIssueArgs(i *domain.AuditIssue) []interface{} {
	return []interface{}{
		i.Title,
		i.Criteria,
		i.Condition,
		i.Cause,
		i.Consequence,
		i.CorrectiveAction,
		dateArg(i.CorrectiveDate),
		string(i.Status),
		i.SubmittedBy,
		i.SubmittedAt,
		i.VerifiedBy,
		i.VerifiedAt,
		i.IncludeInReport,
		i.SentForCommenting,
		dateArg(i.CommentDueDate),
		i.SentForCommentingAt,
		i.SentForFollowup,
		dateArg(i.FollowupDueDate),
		i.SentForFollowupAt,
		i.FollowupResponded,
		i.FollowupResponse,
		i.FollowupEvidence,
		i.FollowupRespondedAt,
		i.FollowupResolved,
		i.FollowupResolvedAt,
		i.FollowupResolvedBy,
		i.UpdatedAt,
	}
}

const mutableIssueColumns = `issue_title, criteria, condition, cause, consequence, corrective_action,
	corrective_date, status, submitted_by, submitted_at, verified_by, verified_at, include_in_report,
	sent_for_commenting, comment_due_date, sent_for_commenting_at, sent_for_followup, followup_due_date,
	sent_for_followup_at, followup_responded, followup_response, followup_evidence_path,
	followup_responded_at, followup_resolved, followup_resolved_at, followup_resolved_by, updated_at`

// placeholders returns "$from, ..., $to"
func placeholders(from, to int) string {
	parts := make([]string, 0, to-from+1)
	for n := from; n <= to; n++ {
		parts = append(parts, fmt.Sprintf("$%d", n))
	}
	return strings.Join(parts, ", ")
}

var (
	insertIssueQuery = `
		INSERT INTO audit_issues (audit_id, audit_procedure_id, created_by, created_at, ` + mutableIssueColumns + `)
		VALUES (` + placeholders(1, 31) + `)
		RETURNING id
	`
	updateIssueQuery = `
		UPDATE audit_issues
		SET (` + mutableIssueColumns + `) = (` + placeholders(2, 28) + `)
		WHERE id = $1
	`
)

func errActiveIssueExists() error {
	return domain.NewInvalidTransition("procedure already has an active issue")
}

// Create saves a new issue and sets its ID
func (r *PostgresIssueRepository) Create(ctx context.Context, issue *domain.AuditIssue) error {
	args := append([]interface{}{
		issue.AuditID,
		issue.AuditProcedureID,
		issue.CreatedBy,
		issue.CreatedAt,
	}, mutableIssueArgs(issue)...)

	if err := conn(ctx, r.db).QueryRowContext(ctx, insertIssueQuery, args...).Scan(&issue.ID); err != nil {
		if isUniqueViolation(err) {
			return errActiveIssueExists()
		}
		return fmt.Errorf("failed to create issue: %w", err)
	}
	return nil
}

// Update writes every mutable field of the issue
func (r *PostgresIssueRepository) Update(ctx context.Context, issue *domain.AuditIssue) error {
	args := append([]interface{}{issue.ID}, mutableIssueArgs(issue)...)

	result, err := conn(ctx, r.db).ExecContext(ctx, updateIssueQuery, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return errActiveIssueExists()
		}
		return fmt.Errorf("failed to update issue: %w", err)
	}
	return checkAffected(result, "issue")
}

// FindByID retrieves an issue of the organization
func (r *PostgresIssueRepository) FindByID(ctx context.Context, orgID, id int64) (*domain.AuditIssue, error) {
	query := `
		SELECT ` + issueColumns + `
		FROM audit_issues i
		JOIN audits a ON a.id = i.audit_id
		WHERE i.id = $1 AND a.organization_id = $2
	`

	var issue domain.AuditIssue
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID).Scan(issueDest(&issue)...); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("issue")
		}
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	return &issue, nil
}

// FindActiveByProcedure returns the draft, submitted or amendment issue of a procedure
func (r *PostgresIssueRepository) FindActiveByProcedure(ctx context.Context, orgID, procedureID int64) (*domain.AuditIssue, error) {
	query := `
		SELECT ` + issueColumns + `
		FROM audit_issues i
		JOIN audits a ON a.id = i.audit_id
		WHERE i.audit_procedure_id = $1 AND a.organization_id = $2
			AND i.status IN ('draft', 'sent_for_verify', 'sent_for_amendment')
	`

	var issue domain.AuditIssue
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, procedureID, orgID).Scan(issueDest(&issue)...); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active issue: %w", err)
	}
	return &issue, nil
}

func scanIssueView(row interface{ Scan(...interface{}) error }) (*domain.IssueView, error) {
	var v domain.IssueView
	dest := append(issueDest(&v.AuditIssue), &v.Rating, &v.Band, &v.AuditArea, &v.AuditName, &v.AuditeeName)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &v, nil
}

// FindView retrieves an issue with its procedure's severity
func (r *PostgresIssueRepository) FindView(ctx context.Context, orgID, id int64) (*domain.IssueView, error) {
	query := issueViewSelect + ` WHERE i.id = $1 AND a.organization_id = $2`

	view, err := scanIssueView(conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("issue")
		}
		return nil, fmt.Errorf("failed to find issue: %w", err)
	}
	return view, nil
}

// ListViews retrieves issues of the organization matching the query
func (r *PostgresIssueRepository) ListViews(ctx context.Context, orgID int64, filter ports.IssueQuery) ([]*domain.IssueView, error) {
	query := issueViewSelect + ` WHERE a.organization_id = $1`
	args := []interface{}{orgID}
	argIndex := 2

	var conditions []string

	if filter.AuditID != nil {
		conditions = append(conditions, fmt.Sprintf("i.audit_id = $%d", argIndex))
		args = append(args, *filter.AuditID)
		argIndex++
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for n, s := range filter.Statuses {
			statuses[n] = string(s)
		}
		conditions = append(conditions, fmt.Sprintf("i.status = ANY($%d)", argIndex))
		args = append(args, pq.Array(statuses))
		argIndex++
	}

	if filter.AuditeeUserID != nil {
		conditions = append(conditions, fmt.Sprintf("ae.user_id = $%d", argIndex))
		args = append(args, *filter.AuditeeUserID)
		argIndex++
	}

	if filter.SentForCommenting != nil {
		conditions = append(conditions, fmt.Sprintf("i.sent_for_commenting = $%d", argIndex))
		args = append(args, *filter.SentForCommenting)
		argIndex++
	}

	if filter.SentForFollowup != nil {
		conditions = append(conditions, fmt.Sprintf("i.sent_for_followup = $%d", argIndex))
		args = append(args, *filter.SentForFollowup)
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY i.id"

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var views []*domain.IssueView
	for rows.Next() {
		v, err := scanIssueView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		views = append(views, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issues: %w", err)
	}
	return views, nil
}
