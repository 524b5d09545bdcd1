package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// PostgresOrganizationRepository implements OrganizationRepository using PostgreSQL
type PostgresOrganizationRepository struct {
	db *sql.DB
}

// NewPostgresOrganizationRepository creates a new PostgreSQL organization repository
func NewPostgresOrganizationRepository(db *sql.DB) ports.OrganizationRepository {
	return &PostgresOrganizationRepository{db: db}
}

// Create saves a new organization
func (r *PostgresOrganizationRepository) Create(ctx context.Context, org *domain.Organization) error {
	query := `
		INSERT INTO organizations (name, created_at)
		VALUES ($1, $2)
		RETURNING id
	`

	if err := conn(ctx, r.db).QueryRowContext(ctx, query, org.Name, org.CreatedAt).Scan(&org.ID); err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// FindByID retrieves an organization by its ID
func (r *PostgresOrganizationRepository) FindByID(ctx context.Context, id int64) (*domain.Organization, error) {
	query := `
		SELECT id, name, created_at
		FROM organizations
		WHERE id = $1
	`

	var org domain.Organization
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("organization")
		}
		return nil, fmt.Errorf("failed to find organization: %w", err)
	}
	return &org, nil
}

// List retrieves all organizations
func (r *PostgresOrganizationRepository) List(ctx context.Context) ([]*domain.Organization, error) {
	query := `
		SELECT id, name, created_at
		FROM organizations
		ORDER BY id
	`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*domain.Organization
	for rows.Next() {
		var org domain.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, &org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}
	return orgs, nil
}

// PostgresUserRepository implements UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db *sql.DB
}

// NewPostgresUserRepository creates a new PostgreSQL user repository
func NewPostgresUserRepository(db *sql.DB) ports.UserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, organization_id, name, email, password_hash, role, is_active, mfa_secret, mfa_enabled, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.OrganizationID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.IsActive,
		&u.MFASecret,
		&u.MFAEnabled,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create saves a new user
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (organization_id, name, email, password_hash, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		user.OrganizationID,
		user.Name,
		strings.ToLower(user.Email),
		user.PasswordHash,
		string(user.Role),
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewValidation("email %s is already registered", user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by its ID
func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("user")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByEmail retrieves a user by email, ignoring case
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewNotFound("user")
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// ListByOrganization retrieves the users of an organization
func (r *PostgresUserRepository) ListByOrganization(ctx context.Context, orgID int64) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE organization_id = $1 ORDER BY id`

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// ExistsByEmail reports whether the email is taken
func (r *PostgresUserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`

	var exists bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// UpdateMFA stores the TOTP secret and whether it is enforced
func (r *PostgresUserRepository) UpdateMFA(ctx context.Context, userID int64, secret string, enabled bool) error {
	query := `
		UPDATE users
		SET mfa_secret = $2, mfa_enabled = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := conn(ctx, r.db).ExecContext(ctx, query, userID, secret, enabled)
	if err != nil {
		return fmt.Errorf("failed to update mfa settings: %w", err)
	}
	return checkAffected(result, "user")
}

// SetActive enables or disables a login
func (r *PostgresUserRepository) SetActive(ctx context.Context, userID int64, active bool) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, userID, active)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return checkAffected(result, "user")
}
