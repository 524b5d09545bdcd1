package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresFollowupRepository implements FollowupRepository using PostgreSQL
type PostgresFollowupRepository struct {
	db *sql.DB
}

// NewPostgresFollowupRepository creates a new PostgreSQL follow-up repository
func NewPostgresFollowupRepository(db *sql.DB) ports.FollowupRepository {
	return &PostgresFollowupRepository{db: db}
}

// Create appends a response and sets its ID
func (r *PostgresFollowupRepository) Create(ctx context.Context, f *domain.FollowupResponse) error {
	query := `
		INSERT INTO followup_responses (issue_id, responded_by, response, evidence_path, resend_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		f.IssueID,
		f.RespondedBy,
		f.Response,
		f.EvidencePath,
		f.ResendCount,
		f.CreatedAt,
	).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("failed to create follow-up response: %w", err)
	}
	return nil
}

// ListByIssue retrieves an issue's history newest first
func (r *PostgresFollowupRepository) ListByIssue(ctx context.Context, orgID, issueID int64) ([]*domain.FollowupResponse, error) {
	query := `
		SELECT f.id, f.issue_id, f.responded_by, u.name, f.response, f.evidence_path, f.resend_count, f.created_at
		FROM followup_responses f
		JOIN users u ON u.id = f.responded_by
		JOIN audit_issues i ON i.id = f.issue_id
		JOIN audits a ON a.id = i.audit_id
		WHERE f.issue_id = $1 AND a.organization_id = $2
		ORDER BY f.created_at DESC, f.id DESC
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, issueID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query follow-up responses: %w", err)
	}
	defer rows.Close()

	var responses []*domain.FollowupResponse
	for rows.Next() {
		var f domain.FollowupResponse
		err := rows.Scan(
			&f.ID,
			&f.IssueID,
			&f.RespondedBy,
			&f.ResponderName,
			&f.Response,
			&f.EvidencePath,
			&f.ResendCount,
			&f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan follow-up response: %w", err)
		}
		responses = append(responses, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating follow-up responses: %w", err)
	}
	return responses, nil
}

// IncrementResendCount bumps resend_count on every history row of the issue
func (r *PostgresFollowupRepository) IncrementResendCount(ctx context.Context, issueID int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE followup_responses SET resend_count = resend_count + 1 WHERE issue_id = $1`, issueID)
	if err != nil {
		return fmt.Errorf("failed to increment resend count: %w", err)
	}
	return nil
}
