package usecase

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// CreateOrganizationRequest represents a new tenant
type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

// CreateUserRequest represents a new account
type CreateUserRequest struct {
	OrganizationID *int64      `json:"organization_id,omitempty"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	Password       string      `json:"password"`
	Role           domain.Role `json:"role"`
}

// CreateAuditeeRequest represents a new auditee, optionally with its own login.
// SendCredentials mails the login details to the auditee once it is stored.
type CreateAuditeeRequest struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Departments     []string `json:"departments"`
	Password        string   `json:"password,omitempty"`
	SendCredentials bool     `json:"send_credentials"`
}

// CreateAuditeeResult is a stored auditee and the outcome of its credentials email
type CreateAuditeeResult struct {
	*domain.Auditee
	NotificationError string `json:"notification_error,omitempty"`
}

// UpdateAuditeeRequest replaces an auditee's name, email and departments
type UpdateAuditeeRequest struct {
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Departments []string `json:"departments"`
}

// AdminUseCase manages organizations, users and auditees
type AdminUseCase struct {
	tx              ports.Transactor
	orgRepo         ports.OrganizationRepository
	userRepo        ports.UserRepository
	auditeeRepo     ports.AuditeeRepository
	passwordService ports.PasswordService
	mailer          ports.Mailer
	settings        WorkflowSettings
}

var credentialsTemplate = template.Must(template.New("credentials").Parse(`<p>Dear {{.Name}},</p>
<p>An auditee account has been created for you.</p>
<table>
<tr><td><strong>Email</strong></td><td>{{.Email}}</td></tr>
<tr><td><strong>Password</strong></td><td>{{.Password}}</td></tr>
</table>
{{if .Link}}<p><a href="{{.Link}}">Open the auditee portal</a></p>{{end}}
<p>Please change your password after signing in.</p>`))

// NewAdminUseCase creates a new admin use case
func NewAdminUseCase(
	tx ports.Transactor,
	orgRepo ports.OrganizationRepository,
	userRepo ports.UserRepository,
	auditeeRepo ports.AuditeeRepository,
	passwordService ports.PasswordService,
	mailer ports.Mailer,
	settings WorkflowSettings,
) *AdminUseCase {
	return &AdminUseCase{
		tx:              tx,
		orgRepo:         orgRepo,
		userRepo:        userRepo,
		auditeeRepo:     auditeeRepo,
		passwordService: passwordService,
		mailer:          mailer,
		settings:        settings,
	}
}

// CreateOrganization registers a tenant. System admins only.
func (uc *AdminUseCase) CreateOrganization(ctx context.Context, rc domain.RequestContext, req CreateOrganizationRequest) (*domain.Organization, error) {
	if err := rc.RequireRole(domain.RoleSystemAdmin); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.NewValidation("organization name is required")
	}
	org := &domain.Organization{Name: name, CreatedAt: rc.Now}
	if err := uc.orgRepo.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return org, nil
}

// ListOrganizations returns all tenants. System admins only.
func (uc *AdminUseCase) ListOrganizations(ctx context.Context, rc domain.RequestContext) ([]*domain.Organization, error) {
	if err := rc.RequireRole(domain.RoleSystemAdmin); err != nil {
		return nil, err
	}
	orgs, err := uc.orgRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

// CreateUser adds an account. A head of audit creates users in their own organization;
// a system admin may create a user in any organization.
func (uc *AdminUseCase) CreateUser(ctx context.Context, rc domain.RequestContext, req CreateUserRequest) (*domain.User, error) {
	if err := rc.RequireRole(domain.RoleSystemAdmin, domain.RoleHeadOfAudit); err != nil {
		return nil, err
	}

	orgID := req.OrganizationID
	if rc.Principal.Role == domain.RoleHeadOfAudit {
		own := rc.OrgID()
		orgID = &own
		if req.Role == domain.RoleSystemAdmin {
			return nil, domain.NewForbidden("cannot create a system administrator")
		}
	}
	if req.Role == domain.RoleSystemAdmin {
		orgID = nil
	}
	if orgID != nil {
		if _, err := uc.orgRepo.FindByID(ctx, *orgID); err != nil {
			return nil, fmt.Errorf("failed to find organization: %w", err)
		}
	}

	user, err := uc.newUser(ctx, rc, orgID, req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		return nil, err
	}
	if err := uc.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (uc *AdminUseCase) newUser(ctx context.Context, rc domain.RequestContext, orgID *int64, name, email, password string, role domain.Role) (*domain.User, error) {
	user := &domain.User{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(name),
		Email:          strings.ToLower(strings.TrimSpace(email)),
		Role:           role,
		IsActive:       true,
		CreatedAt:      rc.Now,
		UpdatedAt:      rc.Now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := uc.passwordService.ValidatePassword(password); err != nil {
		return nil, err
	}

	exists, err := uc.userRepo.ExistsByEmail(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, domain.NewValidation("email %s is already registered", user.Email)
	}

	hash, err := uc.passwordService.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user.PasswordHash = hash
	return user, nil
}

// ListUsers returns the users of the caller's organization
func (uc *AdminUseCase) ListUsers(ctx context.Context, rc domain.RequestContext) ([]*domain.User, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	users, err := uc.userRepo.ListByOrganization(ctx, rc.OrgID())
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CreateAuditee adds an auditee; when a password is given its login is created in the same transaction.
// The credentials email is sent after commit and its failure never undoes the auditee.
func (uc *AdminUseCase) CreateAuditee(ctx context.Context, rc domain.RequestContext, req CreateAuditeeRequest) (*CreateAuditeeResult, error) {
	if err := rc.RequireRole(domain.RoleHeadOfAudit); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.NewValidation("auditee name is required")
	}

	auditee := &domain.Auditee{
		OrganizationID: rc.OrgID(),
		Name:           name,
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Departments:    cleanDepartments(req.Departments),
		CreatedAt:      rc.Now,
	}

	var login *domain.User
	if req.Password != "" {
		orgID := rc.OrgID()
		user, err := uc.newUser(ctx, rc, &orgID, name, req.Email, req.Password, domain.RoleAuditee)
		if err != nil {
			return nil, err
		}
		login = user
	}

	err := uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if login != nil {
			if err := uc.userRepo.Create(ctx, login); err != nil {
				return err
			}
			auditee.UserID = &login.ID
		}
		return uc.auditeeRepo.Create(ctx, auditee)
	})
	if err != nil {
		return nil, txFailed("create auditee", err)
	}

	result := &CreateAuditeeResult{Auditee: auditee}
	if req.SendCredentials {
		result.NotificationError = uc.sendCredentials(ctx, login, req.Password)
	}
	return result, nil
}

func (uc *AdminUseCase) sendCredentials(ctx context.Context, login *domain.User, password string) string {
	if login == nil {
		return "auditee has no login"
	}
	if uc.mailer == nil {
		return "email delivery is not configured"
	}
	var body bytes.Buffer
	err := credentialsTemplate.Execute(&body, map[string]string{
		"Name":     login.Name,
		"Email":    login.Email,
		"Password": password,
		"Link":     uc.settings.PortalURL,
	})
	if err != nil {
		return err.Error()
	}
	err = uc.mailer.Send(ctx, ports.Mail{
		To:      login.Email,
		Subject: "Your audit portal account",
		HTML:    body.String(),
	})
	if err != nil {
		return fmt.Sprintf("failed to send email: %v", err)
	}
	return ""
}

// UpdateAuditee edits an auditee and replaces its departments
func (uc *AdminUseCase) UpdateAuditee(ctx context.Context, rc domain.RequestContext, id int64, req UpdateAuditeeRequest) (*domain.Auditee, error) {
	if err := rc.RequireRole(domain.RoleHeadOfAudit); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.NewValidation("auditee name is required")
	}
	auditee, err := uc.auditeeRepo.FindByID(ctx, rc.OrgID(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to find auditee: %w", err)
	}
	auditee.Name = name
	auditee.Email = strings.ToLower(strings.TrimSpace(req.Email))
	auditee.Departments = cleanDepartments(req.Departments)

	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		return uc.auditeeRepo.Update(ctx, auditee)
	})
	if err != nil {
		return nil, txFailed("update auditee", err)
	}
	return auditee, nil
}

// DeleteAuditee removes an auditee without audits or universe items and disables its login
func (uc *AdminUseCase) DeleteAuditee(ctx context.Context, rc domain.RequestContext, id int64) error {
	if err := rc.RequireRole(domain.RoleHeadOfAudit); err != nil {
		return err
	}
	auditee, err := uc.auditeeRepo.FindByID(ctx, rc.OrgID(), id)
	if err != nil {
		return fmt.Errorf("failed to find auditee: %w", err)
	}
	err = uc.tx.WithinTx(ctx, func(ctx context.Context) error {
		referenced, err := uc.auditeeRepo.IsReferenced(ctx, rc.OrgID(), id)
		if err != nil {
			return err
		}
		if referenced {
			return domain.NewInvalidTransition("auditee has audits or audit universe items")
		}
		if err := uc.auditeeRepo.Delete(ctx, rc.OrgID(), id); err != nil {
			return err
		}
		if auditee.UserID != nil {
			return uc.userRepo.SetActive(ctx, *auditee.UserID, false)
		}
		return nil
	})
	if err != nil {
		return txFailed("delete auditee", err)
	}
	return nil
}

// ListAuditees returns the caller organization's auditees
func (uc *AdminUseCase) ListAuditees(ctx context.Context, rc domain.RequestContext) ([]*domain.Auditee, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return nil, err
	}
	auditees, err := uc.auditeeRepo.List(ctx, rc.OrgID())
	if err != nil {
		return nil, fmt.Errorf("failed to list auditees: %w", err)
	}
	return auditees, nil
}

// GetAuditee returns one auditee of the caller's organization
func (uc *AdminUseCase) GetAuditee(ctx context.Context, rc domain.RequestContext, id int64) (*domain.Auditee, error) {
	if !rc.Principal.Role.IsAuditStaff() && rc.Principal.Role != domain.RoleAuditee {
		return nil, domain.NewForbidden("insufficient role for this action")
	}
	auditee, err := uc.auditeeRepo.FindByID(ctx, rc.OrgID(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to find auditee: %w", err)
	}
	// auditees only see their own record
	if rc.Principal.Role == domain.RoleAuditee && (auditee.UserID == nil || *auditee.UserID != rc.Principal.UserID) {
		return nil, domain.NewNotFound("auditee")
	}
	return auditee, nil
}

func cleanDepartments(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.TrimSpace(d)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
