package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresProcedureRepository implements ProcedureRepository using PostgreSQL
type PostgresProcedureRepository struct {
	db *sql.DB
}

// NewPostgresProcedureRepository creates a new PostgreSQL audit procedure repository
func NewPostgresProcedureRepository(db *sql.DB) ports.ProcedureRepository {
	return &PostgresProcedureRepository{db: db}
}

const procedureSelect = `
	SELECT p.id, p.audit_id, p.risk_assessment_id, p.record_of_work, p.conclusion, p.result, p.cause,
		p.evidence_path, p.likelihood, p.impact, p.rating, p.band, p.include_in_report,
		p.working_paper_id, p.updated_by, p.created_at, p.updated_at,
		u.audit_area, COALESCE(wp.name, '')
	FROM audit_procedures p
	JOIN audits a ON a.id = p.audit_id
	JOIN risk_assessment ra ON ra.id = p.risk_assessment_id
	JOIN audit_universe u ON u.id = ra.audit_universe_id
	LEFT JOIN working_papers wp ON wp.id = p.working_paper_id
`

func scanProcedure(row interface{ Scan(...interface{}) error }) (*domain.AuditProcedure, error) {
	var p domain.AuditProcedure
	err := row.Scan(
		&p.ID,
		&p.AuditID,
		&p.RiskAssessmentID,
		&p.RecordOfWork,
		&p.Conclusion,
		&p.Result,
		&p.Cause,
		&p.EvidencePath,
		&p.Likelihood,
		&p.Impact,
		&p.Rating,
		&p.Band,
		&p.IncludeInReport,
		&p.WorkingPaperID,
		&p.UpdatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.AuditArea,
		&p.WorkingPaperName,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert inserts or updates the row keyed by (audit, risk assessment) and sets p.ID.
// The working paper link is left to SetWorkingPaper.
func (r *PostgresProcedureRepository) Upsert(ctx context.Context, orgID int64, p *domain.AuditProcedure) error {
	query := `
		INSERT INTO audit_procedures (audit_id, risk_assessment_id, record_of_work, conclusion, result, cause,
			evidence_path, likelihood, impact, rating, band, include_in_report, updated_by, created_at, updated_at)
		SELECT $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15
		WHERE EXISTS (SELECT 1 FROM audits WHERE id = $2 AND organization_id = $1)
		ON CONFLICT (audit_id, risk_assessment_id) DO UPDATE
		SET record_of_work = EXCLUDED.record_of_work,
			conclusion = EXCLUDED.conclusion,
			result = EXCLUDED.result,
			cause = EXCLUDED.cause,
			evidence_path = EXCLUDED.evidence_path,
			likelihood = EXCLUDED.likelihood,
			impact = EXCLUDED.impact,
			rating = EXCLUDED.rating,
			band = EXCLUDED.band,
			include_in_report = EXCLUDED.include_in_report,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		orgID,
		p.AuditID,
		p.RiskAssessmentID,
		p.RecordOfWork,
		p.Conclusion,
		string(p.Result),
		p.Cause,
		p.EvidencePath,
		p.Likelihood,
		p.Impact,
		p.Rating,
		p.Band,
		p.IncludeInReport,
		p.UpdatedBy,
		p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.NewNotFound("audit")
		}
		return fmt.Errorf("failed to upsert audit procedure: %w", err)
	}
	return nil
}

// FindByID retrieves one procedure of an audit
func (r *PostgresProcedureRepository) FindByID(ctx context.Context, orgID, auditID, id int64) (*domain.AuditProcedure, error) {
	query := procedureSelect + ` WHERE a.organization_id = $1 AND p.audit_id = $2 AND p.id = $3`

	p, err := scanProcedure(conn(ctx, r.db).QueryRowContext(ctx, query, orgID, auditID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("audit procedure")
		}
		return nil, fmt.Errorf("failed to find audit procedure: %w", err)
	}
	return p, nil
}

// FindByRiskAssessment returns nil without error when no procedure exists yet
func (r *PostgresProcedureRepository) FindByRiskAssessment(ctx context.Context, orgID, auditID, riskAssessmentID int64) (*domain.AuditProcedure, error) {
	query := procedureSelect + ` WHERE a.organization_id = $1 AND p.audit_id = $2 AND p.risk_assessment_id = $3`

	p, err := scanProcedure(conn(ctx, r.db).QueryRowContext(ctx, query, orgID, auditID, riskAssessmentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find audit procedure: %w", err)
	}
	return p, nil
}

// ListByAudit retrieves the procedures of an audit
func (r *PostgresProcedureRepository) ListByAudit(ctx context.Context, orgID, auditID int64) ([]*domain.AuditProcedure, error) {
	query := procedureSelect + ` WHERE a.organization_id = $1 AND p.audit_id = $2 ORDER BY p.id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orgID, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit procedures: %w", err)
	}
	defer rows.Close()

	var list []*domain.AuditProcedure
	for rows.Next() {
		p, err := scanProcedure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit procedure: %w", err)
		}
		list = append(list, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit procedures: %w", err)
	}
	return list, nil
}

// SetWorkingPaper links or, with nil, unlinks a supporting template
func (r *PostgresProcedureRepository) SetWorkingPaper(ctx context.Context, orgID, auditID, procedureID int64, workingPaperID *int64) error {
	query := `
		UPDATE audit_procedures p
		SET working_paper_id = $4, updated_at = NOW()
		FROM audits a
		WHERE a.id = p.audit_id AND a.organization_id = $1 AND p.audit_id = $2 AND p.id = $3
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, orgID, auditID, procedureID, workingPaperID)
	if err != nil {
		return fmt.Errorf("failed to set working paper: %w", err)
	}
	return checkAffected(result, "audit procedure")
}
