package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresAuditRepository implements AuditRepository using PostgreSQL
type PostgresAuditRepository struct {
	db *sql.DB
}

// NewPostgresAuditRepository creates a new PostgreSQL audit repository
func NewPostgresAuditRepository(db *sql.DB) ports.AuditRepository {
	return &PostgresAuditRepository{db: db}
}

const auditSelect = `
	SELECT a.id, a.organization_id, a.auditee_id, ae.name, a.audit_name,
		a.start_date, a.end_date, a.status, a.created_by, a.created_at
	FROM audits a
	JOIN auditees ae ON ae.id = a.auditee_id
`

func scanAudit(row interface{ Scan(...interface{}) error }) (*domain.Audit, error) {
	var a domain.Audit
	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.AuditeeID,
		&a.AuditeeName,
		&a.Name,
		&a.StartDate,
		&a.EndDate,
		&a.Status,
		&a.CreatedBy,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create saves an audit and its team. Call it inside a transaction.
func (r *PostgresAuditRepository) Create(ctx context.Context, audit *domain.Audit) error {
	q := conn(ctx, r.db)

	query := `
		INSERT INTO audits (organization_id, auditee_id, audit_name, start_date, end_date, status, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		audit.OrganizationID,
		audit.AuditeeID,
		audit.Name,
		dateArg(&audit.StartDate),
		dateArg(&audit.EndDate),
		string(audit.Status),
		audit.CreatedBy,
		audit.CreatedAt,
	).Scan(&audit.ID)
	if err != nil {
		return fmt.Errorf("failed to create audit: %w", err)
	}

	return insertTeam(ctx, q, audit)
}

func insertTeam(ctx context.Context, q querier, audit *domain.Audit) error {
	for _, member := range audit.Team {
		_, err := q.ExecContext(ctx,
			`INSERT INTO audit_team (audit_id, user_id, role) VALUES ($1, $2, $3)`,
			audit.ID, member.UserID, member.Role)
		if err != nil {
			return fmt.Errorf("failed to add team member: %w", err)
		}
	}
	return nil
}

// Update writes the audit's fields and replaces its team. Call it inside a transaction.
func (r *PostgresAuditRepository) Update(ctx context.Context, audit *domain.Audit) error {
	q := conn(ctx, r.db)

	query := `
		UPDATE audits
		SET auditee_id = $3, audit_name = $4, start_date = $5, end_date = $6, status = $7
		WHERE id = $1 AND organization_id = $2
	`
	result, err := q.ExecContext(ctx, query,
		audit.ID,
		audit.OrganizationID,
		audit.AuditeeID,
		audit.Name,
		dateArg(&audit.StartDate),
		dateArg(&audit.EndDate),
		string(audit.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to update audit: %w", err)
	}
	if err := checkAffected(result, "audit"); err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM audit_team WHERE audit_id = $1`, audit.ID); err != nil {
		return fmt.Errorf("failed to clear audit team: %w", err)
	}
	return insertTeam(ctx, q, audit)
}

// HasFieldWork reports whether any risk assessment was saved for the audit
func (r *PostgresAuditRepository) HasFieldWork(ctx context.Context, orgID, id int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM risk_assessment ra
			JOIN audits a ON a.id = ra.audit_id
			WHERE ra.audit_id = $1 AND a.organization_id = $2
		)
	`

	var started bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID).Scan(&started); err != nil {
		return false, fmt.Errorf("failed to check field work: %w", err)
	}
	return started, nil
}

// Delete removes an audit; its team rows cascade
func (r *PostgresAuditRepository) Delete(ctx context.Context, orgID, id int64) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM audits WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete audit: %w", err)
	}
	return checkAffected(result, "audit")
}

// FindByID retrieves an audit of the organization with its team
func (r *PostgresAuditRepository) FindByID(ctx context.Context, orgID, id int64) (*domain.Audit, error) {
	query := auditSelect + ` WHERE a.id = $1 AND a.organization_id = $2`

	audit, err := scanAudit(conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("audit")
		}
		return nil, fmt.Errorf("failed to find audit: %w", err)
	}

	team, err := r.team(ctx, audit.ID)
	if err != nil {
		return nil, err
	}
	audit.Team = team
	return audit, nil
}

func (r *PostgresAuditRepository) team(ctx context.Context, auditID int64) ([]domain.TeamMember, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT user_id, role FROM audit_team WHERE audit_id = $1 ORDER BY user_id`, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit team: %w", err)
	}
	defer rows.Close()

	team := []domain.TeamMember{}
	for rows.Next() {
		var m domain.TeamMember
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		team = append(team, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit team: %w", err)
	}
	return team, nil
}

// List retrieves the audits of an organization in calendar order
func (r *PostgresAuditRepository) List(ctx context.Context, orgID int64) ([]*domain.Audit, error) {
	query := auditSelect + ` WHERE a.organization_id = $1 ORDER BY a.start_date, a.id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audits: %w", err)
	}
	defer rows.Close()

	var audits []*domain.Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		audits = append(audits, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audits: %w", err)
	}
	return audits, nil
}
