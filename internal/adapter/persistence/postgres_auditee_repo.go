package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresAuditeeRepository implements AuditeeRepository using PostgreSQL
type PostgresAuditeeRepository struct {
	db *sql.DB
}

// NewPostgresAuditeeRepository creates a new PostgreSQL auditee repository
func NewPostgresAuditeeRepository(db *sql.DB) ports.AuditeeRepository {
	return &PostgresAuditeeRepository{db: db}
}

const auditeeSelect = `
	SELECT a.id, a.organization_id, a.user_id, a.name, a.email,
		ARRAY(SELECT d.name FROM auditee_departments d WHERE d.auditee_id = a.id ORDER BY d.id),
		a.created_at
	FROM auditees a
`

func scanAuditee(row interface{ Scan(...interface{}) error }) (*domain.Auditee, error) {
	var a domain.Auditee
	var departments []string
	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.UserID,
		&a.Name,
		&a.Email,
		pq.Array(&departments),
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Departments = departments
	return &a, nil
}

// Create saves an auditee and its departments. Call it inside a transaction.
func (r *PostgresAuditeeRepository) Create(ctx context.Context, auditee *domain.Auditee) error {
	q := conn(ctx, r.db)

	query := `
		INSERT INTO auditees (organization_id, user_id, name, email, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		auditee.OrganizationID,
		auditee.UserID,
		auditee.Name,
		auditee.Email,
		auditee.CreatedAt,
	).Scan(&auditee.ID)
	if err != nil {
		return fmt.Errorf("failed to create auditee: %w", err)
	}

	for _, name := range auditee.Departments {
		_, err := q.ExecContext(ctx,
			`INSERT INTO auditee_departments (auditee_id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			auditee.ID, name)
		if err != nil {
			return fmt.Errorf("failed to create department: %w", err)
		}
	}
	return nil
}

// FindByID retrieves an auditee of the organization
func (r *PostgresAuditeeRepository) FindByID(ctx context.Context, orgID, id int64) (*domain.Auditee, error) {
	query := auditeeSelect + ` WHERE a.id = $1 AND a.organization_id = $2`

	auditee, err := scanAuditee(conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("auditee")
		}
		return nil, fmt.Errorf("failed to find auditee: %w", err)
	}
	return auditee, nil
}

// List retrieves the auditees of an organization
func (r *PostgresAuditeeRepository) List(ctx context.Context, orgID int64) ([]*domain.Auditee, error) {
	query := auditeeSelect + ` WHERE a.organization_id = $1 ORDER BY a.id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query auditees: %w", err)
	}
	defer rows.Close()

	var auditees []*domain.Auditee
	for rows.Next() {
		a, err := scanAuditee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auditee: %w", err)
		}
		auditees = append(auditees, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auditees: %w", err)
	}
	return auditees, nil
}

// Update writes name and email and replaces the departments. Call it inside a transaction.
func (r *PostgresAuditeeRepository) Update(ctx context.Context, auditee *domain.Auditee) error {
	q := conn(ctx, r.db)

	result, err := q.ExecContext(ctx,
		`UPDATE auditees SET name = $3, email = $4 WHERE id = $1 AND organization_id = $2`,
		auditee.ID, auditee.OrganizationID, auditee.Name, auditee.Email)
	if err != nil {
		return fmt.Errorf("failed to update auditee: %w", err)
	}
	if err := checkAffected(result, "auditee"); err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM auditee_departments WHERE auditee_id = $1`, auditee.ID); err != nil {
		return fmt.Errorf("failed to clear departments: %w", err)
	}
	for _, name := range auditee.Departments {
		_, err := q.ExecContext(ctx,
			`INSERT INTO auditee_departments (auditee_id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			auditee.ID, name)
		if err != nil {
			return fmt.Errorf("failed to create department: %w", err)
		}
	}
	return nil
}

// IsReferenced reports whether an audit or universe item belongs to the auditee
func (r *PostgresAuditeeRepository) IsReferenced(ctx context.Context, orgID, id int64) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM audits WHERE auditee_id = $1 AND organization_id = $2)
			OR EXISTS(SELECT 1 FROM audit_universe WHERE auditee_id = $1 AND organization_id = $2)
	`

	var referenced bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID).Scan(&referenced); err != nil {
		return false, fmt.Errorf("failed to check auditee references: %w", err)
	}
	return referenced, nil
}

// Delete removes an auditee and its departments. The foreign keys still reject a referenced auditee.
func (r *PostgresAuditeeRepository) Delete(ctx context.Context, orgID, id int64) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM auditees WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewInvalidTransition("auditee has audits or audit universe items")
		}
		return fmt.Errorf("failed to delete auditee: %w", err)
	}
	return checkAffected(result, "auditee")
}

// PostgresUniverseRepository implements UniverseRepository using PostgreSQL
type PostgresUniverseRepository struct {
	db *sql.DB
}

// NewPostgresUniverseRepository creates a new PostgreSQL audit universe repository
func NewPostgresUniverseRepository(db *sql.DB) ports.UniverseRepository {
	return &PostgresUniverseRepository{db: db}
}

const universeColumns = `id, organization_id, auditee_id, department, audit_area, process,
	inherent_risk, control_measure, audit_procedure, created_at, updated_at`

func scanUniverseItem(row interface{ Scan(...interface{}) error }) (*domain.AuditUniverseItem, error) {
	var u domain.AuditUniverseItem
	err := row.Scan(
		&u.ID,
		&u.OrganizationID,
		&u.AuditeeID,
		&u.Department,
		&u.AuditArea,
		&u.Process,
		&u.InherentRisk,
		&u.ControlMeasure,
		&u.AuditProcedure,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create saves a new universe item
func (r *PostgresUniverseRepository) Create(ctx context.Context, item *domain.AuditUniverseItem) error {
	query := `
		INSERT INTO audit_universe (organization_id, auditee_id, department, audit_area, process,
			inherent_risk, control_measure, audit_procedure, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		item.OrganizationID,
		item.AuditeeID,
		item.Department,
		item.AuditArea,
		item.Process,
		item.InherentRisk,
		item.ControlMeasure,
		item.AuditProcedure,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to create universe item: %w", err)
	}
	return nil
}

// Update writes the editable fields of a universe item
func (r *PostgresUniverseRepository) Update(ctx context.Context, item *domain.AuditUniverseItem) error {
	query := `
		UPDATE audit_universe
		SET auditee_id = $3, department = $4, audit_area = $5, process = $6,
			inherent_risk = $7, control_measure = $8, audit_procedure = $9, updated_at = $10
		WHERE id = $1 AND organization_id = $2
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query,
		item.ID,
		item.OrganizationID,
		item.AuditeeID,
		item.Department,
		item.AuditArea,
		item.Process,
		item.InherentRisk,
		item.ControlMeasure,
		item.AuditProcedure,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update universe item: %w", err)
	}
	return checkAffected(result, "audit universe item")
}

// FindByID retrieves a universe item of the organization
func (r *PostgresUniverseRepository) FindByID(ctx context.Context, orgID, id int64) (*domain.AuditUniverseItem, error) {
	query := `SELECT ` + universeColumns + ` FROM audit_universe WHERE id = $1 AND organization_id = $2`

	item, err := scanUniverseItem(conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("audit universe item")
		}
		return nil, fmt.Errorf("failed to find universe item: %w", err)
	}
	return item, nil
}

// ListByAuditee retrieves the universe of one auditee
func (r *PostgresUniverseRepository) ListByAuditee(ctx context.Context, orgID, auditeeID int64) ([]*domain.AuditUniverseItem, error) {
	query := `SELECT ` + universeColumns + `
		FROM audit_universe
		WHERE organization_id = $1 AND auditee_id = $2
		ORDER BY id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orgID, auditeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query universe items: %w", err)
	}
	defer rows.Close()

	var items []*domain.AuditUniverseItem
	for rows.Next() {
		item, err := scanUniverseItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan universe item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating universe items: %w", err)
	}
	return items, nil
}

// IsReferenced reports whether any risk assessment uses the item
func (r *PostgresUniverseRepository) IsReferenced(ctx context.Context, orgID, id int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM risk_assessment ra
			JOIN audit_universe u ON u.id = ra.audit_universe_id
			WHERE ra.audit_universe_id = $1 AND u.organization_id = $2
		)
	`

	var referenced bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID).Scan(&referenced); err != nil {
		return false, fmt.Errorf("failed to check universe item references: %w", err)
	}
	return referenced, nil
}

// Delete removes a universe item. The foreign key still rejects a referenced item.
func (r *PostgresUniverseRepository) Delete(ctx context.Context, orgID, id int64) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM audit_universe WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewInvalidTransition("universe item is used by a risk assessment")
		}
		return fmt.Errorf("failed to delete universe item: %w", err)
	}
	return checkAffected(result, "audit universe item")
}
