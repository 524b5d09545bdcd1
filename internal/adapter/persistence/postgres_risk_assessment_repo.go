package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresRiskAssessmentRepository implements RiskAssessmentRepository using PostgreSQL
type PostgresRiskAssessmentRepository struct {
	db *sql.DB
}

// NewPostgresRiskAssessmentRepository creates a new PostgreSQL risk assessment repository
func NewPostgresRiskAssessmentRepository(db *sql.DB) ports.RiskAssessmentRepository {
	return &PostgresRiskAssessmentRepository{db: db}
}

const riskAssessmentSelect = `
	SELECT ra.id, ra.audit_id, ra.audit_universe_id, ra.likelihood, ra.impact, ra.is_selected,
		ra.assigned_auditor_id, ra.updated_at, u.audit_area, u.process, u.audit_procedure
	FROM risk_assessment ra
	JOIN audits a ON a.id = ra.audit_id
	JOIN audit_universe u ON u.id = ra.audit_universe_id
`

func scanRiskAssessment(row interface{ Scan(...interface{}) error }) (*domain.RiskAssessment, error) {
	var ra domain.RiskAssessment
	err := row.Scan(
		&ra.ID,
		&ra.AuditID,
		&ra.UniverseID,
		&ra.Likelihood,
		&ra.Impact,
		&ra.IsSelected,
		&ra.AssignedAuditorID,
		&ra.UpdatedAt,
		&ra.AuditArea,
		&ra.Process,
		&ra.AuditProcedure,
	)
	if err != nil {
		return nil, err
	}
	return &ra, nil
}

// ListByAudit retrieves all assessments of an audit joined with their universe item
func (r *PostgresRiskAssessmentRepository) ListByAudit(ctx context.Context, orgID, auditID int64) ([]*domain.RiskAssessment, error) {
	query := riskAssessmentSelect + ` WHERE a.organization_id = $1 AND ra.audit_id = $2 ORDER BY ra.id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orgID, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk assessments: %w", err)
	}
	defer rows.Close()

	var list []*domain.RiskAssessment
	for rows.Next() {
		ra, err := scanRiskAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk assessment: %w", err)
		}
		list = append(list, ra)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk assessments: %w", err)
	}
	return list, nil
}

// Upsert inserts or updates the row keyed by (audit, universe item). Both the audit
// and the universe item must belong to the organization.
func (r *PostgresRiskAssessmentRepository) Upsert(ctx context.Context, orgID, auditID int64, item domain.AssessmentItem, now time.Time) error {
	if item.UniverseID == nil {
		return domain.NewValidation("universe item is required")
	}

	query := `
		INSERT INTO risk_assessment (audit_id, audit_universe_id, likelihood, impact, is_selected, assigned_auditor_id, updated_at)
		SELECT $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (SELECT 1 FROM audits WHERE id = $2 AND organization_id = $1)
			AND EXISTS (SELECT 1 FROM audit_universe WHERE id = $3 AND organization_id = $1)
		ON CONFLICT (audit_id, audit_universe_id) DO UPDATE
		SET likelihood = EXCLUDED.likelihood,
			impact = EXCLUDED.impact,
			is_selected = EXCLUDED.is_selected,
			assigned_auditor_id = EXCLUDED.assigned_auditor_id,
			updated_at = EXCLUDED.updated_at
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		orgID,
		auditID,
		*item.UniverseID,
		item.Likelihood,
		item.Impact,
		item.IsSelected,
		item.AssignedAuditorID,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert risk assessment: %w", err)
	}
	return checkAffected(result, "audit universe item")
}

// DeleteUnreferenced deletes the assessment of a universe item unless a procedure,
// an attachment or stored rows still point at it
func (r *PostgresRiskAssessmentRepository) DeleteUnreferenced(ctx context.Context, orgID, auditID, universeID int64) (bool, error) {
	query := `
		DELETE FROM risk_assessment ra
		USING audits a
		WHERE a.id = ra.audit_id
			AND a.organization_id = $1
			AND ra.audit_id = $2
			AND ra.audit_universe_id = $3
			AND NOT EXISTS (SELECT 1 FROM audit_procedures p WHERE p.risk_assessment_id = ra.id)
			AND NOT EXISTS (SELECT 1 FROM testing_procedure_attachments t WHERE t.risk_assessment_id = ra.id)
			AND NOT EXISTS (SELECT 1 FROM testing_procedure_data d WHERE d.risk_assessment_id = ra.id)
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, orgID, auditID, universeID)
	if err != nil {
		return false, fmt.Errorf("failed to delete risk assessment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// FindByID retrieves one assessment of an audit
func (r *PostgresRiskAssessmentRepository) FindByID(ctx context.Context, orgID, auditID, id int64) (*domain.RiskAssessment, error) {
	query := riskAssessmentSelect + ` WHERE a.organization_id = $1 AND ra.audit_id = $2 AND ra.id = $3`

	ra, err := scanRiskAssessment(conn(ctx, r.db).QueryRowContext(ctx, query, orgID, auditID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("risk assessment")
		}
		return nil, fmt.Errorf("failed to find risk assessment: %w", err)
	}
	return ra, nil
}
