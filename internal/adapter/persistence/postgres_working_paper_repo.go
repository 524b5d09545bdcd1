package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresWorkingPaperRepository implements WorkingPaperRepository using PostgreSQL
type PostgresWorkingPaperRepository struct {
	db *sql.DB
}

// NewPostgresWorkingPaperRepository creates a new PostgreSQL working paper repository
func NewPostgresWorkingPaperRepository(db *sql.DB) ports.WorkingPaperRepository {
	return &PostgresWorkingPaperRepository{db: db}
}

// Create saves a template and its columns. Call it inside a transaction.
func (r *PostgresWorkingPaperRepository) Create(ctx context.Context, t *domain.WorkingPaperTemplate) error {
	q := conn(ctx, r.db)

	query := `
		INSERT INTO working_papers (organization_id, name, allow_row_insert, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		t.OrganizationID,
		t.Name,
		t.AllowRowInsert,
		t.CreatedBy,
		t.CreatedAt,
		t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create working paper: %w", err)
	}

	return r.insertColumns(ctx, q, t)
}

func (r *PostgresWorkingPaperRepository) insertColumns(ctx context.Context, q querier, t *domain.WorkingPaperTemplate) error {
	query := `
		INSERT INTO working_paper_columns (working_paper_id, column_name, column_type, column_order, options, formula)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	for i := range t.Columns {
		c := &t.Columns[i]
		options := c.Options
		if options == nil {
			options = []string{}
		}
		err := q.QueryRowContext(ctx, query,
			t.ID,
			c.Name,
			string(c.Type),
			c.Order,
			pq.Array(options),
			c.Formula,
		).Scan(&c.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.NewValidation("column %q or its position is duplicated", c.Name)
			}
			return fmt.Errorf("failed to create column %q: %w", c.Name, err)
		}
	}
	return nil
}

// Update replaces the template's fields and columns. Call it inside a transaction.
func (r *PostgresWorkingPaperRepository) Update(ctx context.Context, t *domain.WorkingPaperTemplate) error {
	q := conn(ctx, r.db)

	query := `
		UPDATE working_papers
		SET name = $3, allow_row_insert = $4, updated_at = $5
		WHERE id = $1 AND organization_id = $2
	`
	result, err := q.ExecContext(ctx, query, t.ID, t.OrganizationID, t.Name, t.AllowRowInsert, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update working paper: %w", err)
	}
	if err := checkAffected(result, "working paper"); err != nil {
		return err
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM working_paper_columns WHERE working_paper_id = $1`, t.ID); err != nil {
		return fmt.Errorf("failed to clear columns: %w", err)
	}
	return r.insertColumns(ctx, q, t)
}

// FindByID retrieves a template of the organization with its columns
func (r *PostgresWorkingPaperRepository) FindByID(ctx context.Context, orgID, id int64) (*domain.WorkingPaperTemplate, error) {
	query := `
		SELECT id, organization_id, name, allow_row_insert, created_by, created_at, updated_at
		FROM working_papers
		WHERE id = $1 AND organization_id = $2
	`

	var t domain.WorkingPaperTemplate
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID).Scan(
		&t.ID,
		&t.OrganizationID,
		&t.Name,
		&t.AllowRowInsert,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("working paper")
		}
		return nil, fmt.Errorf("failed to find working paper: %w", err)
	}

	columns, err := r.columns(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Columns = columns
	return &t, nil
}

func (r *PostgresWorkingPaperRepository) columns(ctx context.Context, workingPaperID int64) ([]domain.Column, error) {
	query := `
		SELECT id, column_name, column_type, column_order, options, formula
		FROM working_paper_columns
		WHERE working_paper_id = $1
		ORDER BY column_order
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, workingPaperID)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	columns := []domain.Column{}
	for rows.Next() {
		var c domain.Column
		var options []string
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Order, pq.Array(&options), &c.Formula); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		if len(options) > 0 {
			c.Options = options
		}
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return columns, nil
}

// List retrieves the organization's templates with their columns
func (r *PostgresWorkingPaperRepository) List(ctx context.Context, orgID int64) ([]*domain.WorkingPaperTemplate, error) {
	query := `
		SELECT id, organization_id, name, allow_row_insert, created_by, created_at, updated_at
		FROM working_papers
		WHERE organization_id = $1
		ORDER BY id
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query working papers: %w", err)
	}

	var list []*domain.WorkingPaperTemplate
	for rows.Next() {
		var t domain.WorkingPaperTemplate
		err := rows.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.AllowRowInsert, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan working paper: %w", err)
		}
		list = append(list, &t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating working papers: %w", err)
	}
	rows.Close()

	// columns are loaded after the cursor is closed so a transaction can reuse its connection
	for _, t := range list {
		columns, err := r.columns(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		t.Columns = columns
	}
	return list, nil
}

// InUse reports whether the template is attached to a folder or linked to a procedure
func (r *PostgresWorkingPaperRepository) InUse(ctx context.Context, orgID, id int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM testing_procedure_attachments t
			JOIN working_papers wp ON wp.id = t.working_paper_id
			WHERE t.working_paper_id = $1 AND wp.organization_id = $2
		) OR EXISTS(
			SELECT 1 FROM audit_procedures p
			JOIN working_papers wp ON wp.id = p.working_paper_id
			WHERE p.working_paper_id = $1 AND wp.organization_id = $2
		)
	`

	var inUse bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, id, orgID).Scan(&inUse); err != nil {
		return false, fmt.Errorf("failed to check working paper usage: %w", err)
	}
	return inUse, nil
}

// Delete removes a template and its columns
func (r *PostgresWorkingPaperRepository) Delete(ctx context.Context, orgID, id int64) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM working_papers WHERE id = $1 AND organization_id = $2`, id, orgID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.NewInvalidTransition("working paper is attached to a testing procedure")
		}
		return fmt.Errorf("failed to delete working paper: %w", err)
	}
	return checkAffected(result, "working paper")
}
