package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresTestingProcedureRepository stores folder attachments and working paper rows.
// Rows live in testing_procedure_data keyed by (audit, folder key, template, row_order).
type PostgresTestingProcedureRepository struct {
	db *sql.DB
}

// NewPostgresTestingProcedureRepository creates a new PostgreSQL testing procedure repository
func NewPostgresTestingProcedureRepository(db *sql.DB) ports.TestingProcedureRepository {
	return &PostgresTestingProcedureRepository{db: db}
}

// ensureAudit fails with not found unless the audit belongs to the organization
func ensureAudit(ctx context.Context, q querier, orgID, auditID int64) error {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM audits WHERE id = $1 AND organization_id = $2)`,
		auditID, orgID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check audit: %w", err)
	}
	if !exists {
		return domain.NewNotFound("audit")
	}
	return nil
}

// Attach links a template to a folder; attaching twice is a no-op
func (r *PostgresTestingProcedureRepository) Attach(ctx context.Context, orgID int64, a domain.Attachment) error {
	q := conn(ctx, r.db)
	if err := ensureAudit(ctx, q, orgID, a.AuditID); err != nil {
		return err
	}

	query := `
		INSERT INTO testing_procedure_attachments (audit_id, risk_assessment_id, working_paper_id, attached_by, attached_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (audit_id, risk_assessment_id, working_paper_id) DO NOTHING
	`
	_, err := q.ExecContext(ctx, query,
		a.AuditID,
		a.RiskAssessmentID,
		a.WorkingPaperID,
		a.AttachedBy,
		a.AttachedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to attach working paper: %w", err)
	}
	return nil
}

// Detach unlinks a template and removes its rows. Call it inside a transaction.
func (r *PostgresTestingProcedureRepository) Detach(ctx context.Context, orgID, auditID, riskAssessmentID, workingPaperID int64) error {
	q := conn(ctx, r.db)
	if err := ensureAudit(ctx, q, orgID, auditID); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		DELETE FROM testing_procedure_data
		WHERE audit_id = $1 AND risk_assessment_id = $2 AND working_paper_id = $3
	`, auditID, riskAssessmentID, workingPaperID)
	if err != nil {
		return fmt.Errorf("failed to delete working paper rows: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		DELETE FROM testing_procedure_attachments
		WHERE audit_id = $1 AND risk_assessment_id = $2 AND working_paper_id = $3
	`, auditID, riskAssessmentID, workingPaperID)
	if err != nil {
		return fmt.Errorf("failed to detach working paper: %w", err)
	}
	return nil
}

// ListAttachments retrieves all attachments of an audit
func (r *PostgresTestingProcedureRepository) ListAttachments(ctx context.Context, orgID, auditID int64) ([]domain.Attachment, error) {
	query := `
		SELECT t.audit_id, t.risk_assessment_id, t.working_paper_id, wp.name, t.attached_by, t.attached_at
		FROM testing_procedure_attachments t
		JOIN audits a ON a.id = t.audit_id
		JOIN working_papers wp ON wp.id = t.working_paper_id
		WHERE a.organization_id = $1 AND t.audit_id = $2
		ORDER BY t.attached_at, t.working_paper_id
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orgID, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		err := rows.Scan(
			&a.AuditID,
			&a.RiskAssessmentID,
			&a.WorkingPaperID,
			&a.WorkingPaperName,
			&a.AttachedBy,
			&a.AttachedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return attachments, nil
}

// ReplaceRows deletes the stored rows of the triple and inserts rows with row_order 0..n-1.
// Call it inside a transaction.
func (r *PostgresTestingProcedureRepository) ReplaceRows(ctx context.Context, orgID, auditID, riskAssessmentID, workingPaperID int64, rows []json.RawMessage) error {
	q := conn(ctx, r.db)
	if err := ensureAudit(ctx, q, orgID, auditID); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, `
		DELETE FROM testing_procedure_data
		WHERE audit_id = $1 AND risk_assessment_id = $2 AND working_paper_id = $3
	`, auditID, riskAssessmentID, workingPaperID)
	if err != nil {
		return fmt.Errorf("failed to clear working paper rows: %w", err)
	}

	insert := `
		INSERT INTO testing_procedure_data (audit_id, risk_assessment_id, working_paper_id, row_order, data)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, data := range rows {
		if _, err := q.ExecContext(ctx, insert, auditID, riskAssessmentID, workingPaperID, i, string(data)); err != nil {
			return fmt.Errorf("failed to insert working paper row %d: %w", i, err)
		}
	}
	return nil
}

// ListRows retrieves rows of the triple ordered by row_order
func (r *PostgresTestingProcedureRepository) ListRows(ctx context.Context, orgID, auditID, riskAssessmentID, workingPaperID int64) ([]domain.DataRow, error) {
	query := `
		SELECT d.id, d.row_order, d.data
		FROM testing_procedure_data d
		JOIN audits a ON a.id = d.audit_id
		WHERE a.organization_id = $1 AND d.audit_id = $2 AND d.risk_assessment_id = $3 AND d.working_paper_id = $4
		ORDER BY d.row_order
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orgID, auditID, riskAssessmentID, workingPaperID)
	if err != nil {
		return nil, fmt.Errorf("failed to query working paper rows: %w", err)
	}
	defer rows.Close()

	var out []domain.DataRow
	for rows.Next() {
		var row domain.DataRow
		var data []byte
		if err := rows.Scan(&row.ID, &row.RowOrder, &data); err != nil {
			return nil, fmt.Errorf("failed to scan working paper row: %w", err)
		}
		row.Data = json.RawMessage(data)
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating working paper rows: %w", err)
	}
	return out, nil
}
