package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/auditflow/auditflow/internal/domain"
)

// Transactor runs a unit of work atomically
type Transactor interface {
	// WithinTx runs fn inside one transaction. Repositories called with the
	// context handed to fn take part in it; any error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrganizationRepository defines the interface for organization persistence
type OrganizationRepository interface {
	// Create saves a new organization
	Create(ctx context.Context, org *domain.Organization) error

	// FindByID retrieves an organization by its ID
	FindByID(ctx context.Context, id int64) (*domain.Organization, error)

	// List retrieves all organizations
	List(ctx context.Context) ([]*domain.Organization, error)
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create saves a new user
	Create(ctx context.Context, user *domain.User) error

	// FindByID retrieves a user by its ID
	FindByID(ctx context.Context, id int64) (*domain.User, error)

	// FindByEmail retrieves a user by email
	FindByEmail(ctx context.Context, email string) (*domain.User, error)

	// ListByOrganization retrieves the users of an organization
	ListByOrganization(ctx context.Context, orgID int64) ([]*domain.User, error)

	// ExistsByEmail reports whether the email is taken
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	// UpdateMFA stores the user's TOTP secret and whether it is enforced
	UpdateMFA(ctx context.Context, userID int64, secret string, enabled bool) error

	// SetActive enables or disables a login
	SetActive(ctx context.Context, userID int64, active bool) error
}

// AuditeeRepository defines the interface for auditee persistence
type AuditeeRepository interface {
	// Create saves a new auditee with its departments
	Create(ctx context.Context, auditee *domain.Auditee) error

	// FindByID retrieves an auditee of the organization
	FindByID(ctx context.Context, orgID, id int64) (*domain.Auditee, error)

	// List retrieves the auditees of an organization
	List(ctx context.Context, orgID int64) ([]*domain.Auditee, error)

	// Update writes name and email and replaces the departments
	Update(ctx context.Context, auditee *domain.Auditee) error

	// IsReferenced reports whether an audit or universe item belongs to the auditee
	IsReferenced(ctx context.Context, orgID, id int64) (bool, error)

	Delete(ctx context.Context, orgID, id int64) error
}

// UniverseRepository defines the interface for audit universe persistence
type UniverseRepository interface {
	Create(ctx context.Context, item *domain.AuditUniverseItem) error
	Update(ctx context.Context, item *domain.AuditUniverseItem) error
	FindByID(ctx context.Context, orgID, id int64) (*domain.AuditUniverseItem, error)
	ListByAuditee(ctx context.Context, orgID, auditeeID int64) ([]*domain.AuditUniverseItem, error)

	// IsReferenced reports whether any risk assessment uses the item
	IsReferenced(ctx context.Context, orgID, id int64) (bool, error)

	Delete(ctx context.Context, orgID, id int64) error
}

// AuditRepository defines the interface for audit engagement persistence
type AuditRepository interface {
	// Create saves an audit and its team members
	Create(ctx context.Context, audit *domain.Audit) error

	// FindByID retrieves an audit of the organization, including its team
	FindByID(ctx context.Context, orgID, id int64) (*domain.Audit, error)

	// List retrieves the audits of an organization ordered by start date
	List(ctx context.Context, orgID int64) ([]*domain.Audit, error)

	// Update writes the audit's fields and replaces its team
	Update(ctx context.Context, audit *domain.Audit) error

	// HasFieldWork reports whether any risk assessment was saved for the audit
	HasFieldWork(ctx context.Context, orgID, id int64) (bool, error)

	// Delete removes an audit and its team
	Delete(ctx context.Context, orgID, id int64) error
}

// RiskAssessmentRepository defines the interface for risk assessment persistence.
// Every method is scoped by organization through the owning audit.
type RiskAssessmentRepository interface {
	// ListByAudit retrieves all assessments of an audit joined with their universe item
	ListByAudit(ctx context.Context, orgID, auditID int64) ([]*domain.RiskAssessment, error)

	// Upsert inserts or updates the row keyed by (audit, universe item)
	Upsert(ctx context.Context, orgID, auditID int64, item domain.AssessmentItem, now time.Time) error

	// DeleteUnreferenced deletes the row for the universe item unless an audit
	// procedure references it; deleted reports which happened
	DeleteUnreferenced(ctx context.Context, orgID, auditID, universeID int64) (deleted bool, err error)

	// FindByID retrieves one assessment of an audit
	FindByID(ctx context.Context, orgID, auditID, id int64) (*domain.RiskAssessment, error)
}

// TestingProcedureRepository persists folder attachments and working paper rows
type TestingProcedureRepository interface {
	// Attach links a template to a folder; attaching twice is a no-op
	Attach(ctx context.Context, orgID int64, a domain.Attachment) error

	// Detach unlinks a template and removes its rows; detaching twice is a no-op
	Detach(ctx context.Context, orgID, auditID, riskAssessmentID, workingPaperID int64) error

	// ListAttachments retrieves all attachments of an audit
	ListAttachments(ctx context.Context, orgID, auditID int64) ([]domain.Attachment, error)

	// ReplaceRows deletes existing rows of the triple and inserts rows with row_order 0..n-1
	ReplaceRows(ctx context.Context, orgID, auditID, riskAssessmentID, workingPaperID int64, rows []json.RawMessage) error

	// ListRows retrieves rows of the triple ordered by row_order
	ListRows(ctx context.Context, orgID, auditID, riskAssessmentID, workingPaperID int64) ([]domain.DataRow, error)
}

// WorkingPaperRepository defines the interface for working paper template persistence
type WorkingPaperRepository interface {
	// Create saves a template and its columns
	Create(ctx context.Context, t *domain.WorkingPaperTemplate) error

	// Update replaces the template's fields and columns
	Update(ctx context.Context, t *domain.WorkingPaperTemplate) error

	FindByID(ctx context.Context, orgID, id int64) (*domain.WorkingPaperTemplate, error)
	List(ctx context.Context, orgID int64) ([]*domain.WorkingPaperTemplate, error)

	// InUse reports whether the template is attached to a folder or linked to a procedure
	InUse(ctx context.Context, orgID, id int64) (bool, error)

	Delete(ctx context.Context, orgID, id int64) error
}

// ProcedureRepository defines the interface for audit procedure persistence
type ProcedureRepository interface {
	// Upsert inserts or updates the row keyed by (audit, risk assessment) and sets p.ID
	Upsert(ctx context.Context, orgID int64, p *domain.AuditProcedure) error

	FindByID(ctx context.Context, orgID, auditID, id int64) (*domain.AuditProcedure, error)

	// FindByRiskAssessment returns nil without error when no procedure exists yet
	FindByRiskAssessment(ctx context.Context, orgID, auditID, riskAssessmentID int64) (*domain.AuditProcedure, error)

	// ListByAudit retrieves procedures of an audit joined with their audit area
	ListByAudit(ctx context.Context, orgID, auditID int64) ([]*domain.AuditProcedure, error)

	// SetWorkingPaper links or, with nil, unlinks a supporting template
	SetWorkingPaper(ctx context.Context, orgID, auditID, procedureID int64, workingPaperID *int64) error
}

// IssueRepository defines the interface for audit issue persistence
type IssueRepository interface {
	// Create saves a new issue and sets its ID
	Create(ctx context.Context, issue *domain.AuditIssue) error

	// Update writes every mutable field of the issue
	Update(ctx context.Context, issue *domain.AuditIssue) error

	FindByID(ctx context.Context, orgID, id int64) (*domain.AuditIssue, error)

	// FindActiveByProcedure returns the draft, submitted or amendment issue of a
	// procedure, or nil without error when there is none
	FindActiveByProcedure(ctx context.Context, orgID, procedureID int64) (*domain.AuditIssue, error)

	// FindView retrieves an issue with its procedure's severity
	FindView(ctx context.Context, orgID, id int64) (*domain.IssueView, error)

	// ListViews retrieves issues with their procedure's severity
	ListViews(ctx context.Context, orgID int64, filter IssueQuery) ([]*domain.IssueView, error)
}

// IssueQuery narrows issue listings
type IssueQuery struct {
	AuditID           *int64
	Statuses          []domain.IssueStatus
	AuditeeUserID     *int64
	SentForCommenting *bool
	SentForFollowup   *bool
}

// ReviewCommentRepository persists reviewer comments on issues
type ReviewCommentRepository interface {
	Create(ctx context.Context, c *domain.IssueReviewComment) error
	ListByIssue(ctx context.Context, orgID, issueID int64) ([]*domain.IssueReviewComment, error)
}

// ManagementCommentRepository persists the append-only management comment thread
type ManagementCommentRepository interface {
	// Create appends a comment and sets its ID
	Create(ctx context.Context, c *domain.ManagementComment) error

	// ListByIssue retrieves an issue's comments oldest first
	ListByIssue(ctx context.Context, orgID, issueID int64) ([]*domain.ManagementComment, error)

	// ListByAudit retrieves comments of every issue of an audit oldest first
	ListByAudit(ctx context.Context, orgID, auditID int64) ([]*domain.ManagementComment, error)
}

// FollowupRepository persists follow-up response history
type FollowupRepository interface {
	// Create appends a response and sets its ID
	Create(ctx context.Context, r *domain.FollowupResponse) error

	// ListByIssue retrieves an issue's history newest first
	ListByIssue(ctx context.Context, orgID, issueID int64) ([]*domain.FollowupResponse, error)

	// IncrementResendCount bumps resend_count on every history row of the issue
	IncrementResendCount(ctx context.Context, issueID int64) error
}
