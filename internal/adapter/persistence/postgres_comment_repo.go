package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresCommentRepository implements ManagementCommentRepository using PostgreSQL
type PostgresCommentRepository struct {
	db *sql.DB
}

// NewPostgresCommentRepository creates a new PostgreSQL management comment repository
func NewPostgresCommentRepository(db *sql.DB) ports.ManagementCommentRepository {
	return &PostgresCommentRepository{db: db}
}

const commentSelect = `
	SELECT c.id, c.issue_id, c.user_id, u.name, c.comment, c.attachment_path, c.is_auditor_response, c.created_at
	FROM management_comments c
	JOIN users u ON u.id = c.user_id
	JOIN audit_issues i ON i.id = c.issue_id
	JOIN audits a ON a.id = i.audit_id
`

// Create appends a comment and sets its ID
func (r *PostgresCommentRepository) Create(ctx context.Context, comment *domain.ManagementComment) error {
	query := `
		INSERT INTO management_comments (issue_id, user_id, comment, attachment_path, is_auditor_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		comment.IssueID,
		comment.UserID,
		comment.Comment,
		comment.AttachmentPath,
		comment.IsAuditorResponse,
		comment.CreatedAt,
	).Scan(&comment.ID)

	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	return nil
}

// ListByIssue retrieves an issue's comments oldest first
func (r *PostgresCommentRepository) ListByIssue(ctx context.Context, orgID, issueID int64) ([]*domain.ManagementComment, error) {
	query := commentSelect + `
		WHERE c.issue_id = $1 AND a.organization_id = $2
		ORDER BY c.created_at ASC, c.id ASC
	`
	return r.list(ctx, query, issueID, orgID)
}

// ListByAudit retrieves comments of every issue of an audit oldest first
func (r *PostgresCommentRepository) ListByAudit(ctx context.Context, orgID, auditID int64) ([]*domain.ManagementComment, error) {
	query := commentSelect + `
		WHERE i.audit_id = $1 AND a.organization_id = $2
		ORDER BY c.created_at ASC, c.id ASC
	`
	return r.list(ctx, query, auditID, orgID)
}

func (r *PostgresCommentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.ManagementComment, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []*domain.ManagementComment

	for rows.Next() {
		var comment domain.ManagementComment

		err := rows.Scan(
			&comment.ID,
			&comment.IssueID,
			&comment.UserID,
			&comment.UserName,
			&comment.Comment,
			&comment.AttachmentPath,
			&comment.IsAuditorResponse,
			&comment.CreatedAt,
		)

		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		comments = append(comments, &comment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	return comments, nil
}

// PostgresReviewCommentRepository implements ReviewCommentRepository using PostgreSQL
type PostgresReviewCommentRepository struct {
	db *sql.DB
}

// NewPostgresReviewCommentRepository creates a new PostgreSQL review comment repository
func NewPostgresReviewCommentRepository(db *sql.DB) ports.ReviewCommentRepository {
	return &PostgresReviewCommentRepository{db: db}
}

// Create saves a reviewer comment and sets its ID
func (r *PostgresReviewCommentRepository) Create(ctx context.Context, c *domain.IssueReviewComment) error {
	query := `
		INSERT INTO issue_review_comments (issue_id, user_id, comment, field_name, selected_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		c.IssueID,
		c.UserID,
		c.Comment,
		c.FieldName,
		c.SelectedText,
		c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create review comment: %w", err)
	}
	return nil
}

// ListByIssue retrieves reviewer comments oldest first
func (r *PostgresReviewCommentRepository) ListByIssue(ctx context.Context, orgID, issueID int64) ([]*domain.IssueReviewComment, error) {
	query := `
		SELECT c.id, c.issue_id, c.user_id, u.name, c.comment, c.field_name, c.selected_text, c.created_at
		FROM issue_review_comments c
		JOIN users u ON u.id = c.user_id
		JOIN audit_issues i ON i.id = c.issue_id
		JOIN audits a ON a.id = i.audit_id
		WHERE c.issue_id = $1 AND a.organization_id = $2
		ORDER BY c.created_at ASC, c.id ASC
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, issueID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query review comments: %w", err)
	}
	defer rows.Close()

	var comments []*domain.IssueReviewComment
	for rows.Next() {
		var c domain.IssueReviewComment
		err := rows.Scan(&c.ID, &c.IssueID, &c.UserID, &c.UserName, &c.Comment, &c.FieldName, &c.SelectedText, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review comment: %w", err)
		}
		comments = append(comments, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review comments: %w", err)
	}
	return comments, nil
}
