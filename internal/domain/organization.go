package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Organization is the tenancy boundary
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User represents a person who can log in
type User struct {
	ID             int64     `json:"id"`
	OrganizationID *int64    `json:"organization_id,omitempty"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           Role      `json:"role"`
	IsActive       bool      `json:"is_active"`
	MFASecret      string    `json:"-"`
	MFAEnabled     bool      `json:"mfa_enabled"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Principal returns the identity carried in the user's tokens
func (u *User) Principal() Principal {
	p := Principal{UserID: u.ID, Role: u.Role}
	if u.OrganizationID != nil {
		p.OrganizationID = *u.OrganizationID
	}
	return p
}

// Validate checks the fields required to create a user
func (u *User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return NewValidation("name is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return NewValidation("invalid email format")
	}
	if !u.Role.IsValid() {
		return NewValidation("invalid role: %s", u.Role)
	}
	if u.Role != RoleSystemAdmin && u.OrganizationID == nil {
		return NewValidation("organization is required for role %s", u.Role)
	}
	return nil
}

// Auditee is an audited entity of an organization
type Auditee struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	UserID         *int64    `json:"user_id,omitempty"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Departments    []string  `json:"departments"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuditUniverseItem is a candidate audit area for an auditee
type AuditUniverseItem struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	AuditeeID      int64     `json:"auditee_id"`
	Department     string    `json:"department,omitempty"`
	AuditArea      string    `json:"audit_area"`
	Process        string    `json:"process"`
	InherentRisk   string    `json:"inherent_risk"`
	ControlMeasure string    `json:"control_measure"`
	AuditProcedure string    `json:"audit_procedure"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Validate checks required universe fields
func (u *AuditUniverseItem) Validate() error {
	if u.AuditeeID == 0 {
		return NewValidation("auditee is required")
	}
	if strings.TrimSpace(u.AuditArea) == "" {
		return NewValidation("audit area is required")
	}
	return nil
}

// AuditStatus represents the engagement status of an audit
type AuditStatus string

const (
	AuditStatusPlanned    AuditStatus = "planned"
	AuditStatusInProgress AuditStatus = "in_progress"
	AuditStatusCompleted  AuditStatus = "completed"
)

// IsValid reports whether s is a known status
func (s AuditStatus) IsValid() bool {
	switch s {
	case AuditStatusPlanned, AuditStatusInProgress, AuditStatusCompleted:
		return true
	}
	return false
}

// TeamMember is a user assigned to an audit
type TeamMember struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// Audit is an engagement over one auditee
type Audit struct {
	ID             int64        `json:"id"`
	OrganizationID int64        `json:"organization_id"`
	AuditeeID      int64        `json:"auditee_id"`
	AuditeeName    string       `json:"auditee_name,omitempty"`
	Name           string       `json:"audit_name"`
	StartDate      time.Time    `json:"start_date"`
	EndDate        time.Time    `json:"end_date"`
	Status         AuditStatus  `json:"status"`
	CreatedBy      int64        `json:"created_by"`
	Team           []TeamMember `json:"team"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Validate checks audit fields
func (a *Audit) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return NewValidation("audit name is required")
	}
	if a.AuditeeID == 0 {
		return NewValidation("auditee is required")
	}
	if a.StartDate.IsZero() || a.EndDate.IsZero() {
		return NewValidation("start and end dates are required")
	}
	if a.EndDate.Before(a.StartDate) {
		return NewValidation("end date must not be before start date")
	}
	if !a.Status.IsValid() {
		return NewValidation("unknown audit status %q", a.Status)
	}
	seen := make(map[int64]bool)
	for _, m := range a.Team {
		if seen[m.UserID] {
			return NewValidation("user %d is listed twice in the team", m.UserID)
		}
		seen[m.UserID] = true
	}
	return nil
}
