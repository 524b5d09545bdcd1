package domain

import "time"

// Role represents a user's role inside an organization
type Role string

const (
	RoleSystemAdmin Role = "system_admin"
	RoleHeadOfAudit Role = "head_of_audit"
	RoleManager     Role = "manager"
	RoleAuditor     Role = "auditor"
	RoleAuditee     Role = "auditee"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleSystemAdmin, RoleHeadOfAudit, RoleManager, RoleAuditor, RoleAuditee:
		return true
	}
	return false
}

// CanVerify reports whether the role may approve, amend or remove issues
func (r Role) CanVerify() bool {
	return r == RoleHeadOfAudit || r == RoleManager
}

// IsAuditStaff reports whether the role performs audit work
func (r Role) IsAuditStaff() bool {
	return r == RoleHeadOfAudit || r == RoleManager || r == RoleAuditor
}

// Principal is the authenticated caller
type Principal struct {
	UserID         int64 `json:"user_id"`
	Role           Role  `json:"role"`
	OrganizationID int64 `json:"organization_id"`
}

// RequestContext is passed explicitly into every core operation.
// Now is injected so deadline checks are deterministic.
type RequestContext struct {
	Principal Principal
	Now       time.Time
}

// NewRequestContext builds a request context
func NewRequestContext(p Principal, now time.Time) RequestContext {
	return RequestContext{Principal: p, Now: now}
}

// OrgID is a shorthand for the caller's organization
func (rc RequestContext) OrgID() int64 {
	return rc.Principal.OrganizationID
}

// RequireRole fails with a forbidden error unless the principal holds one of roles
func (rc RequestContext) RequireRole(roles ...Role) error {
	for _, r := range roles {
		if rc.Principal.Role == r {
			return nil
		}
	}
	return NewForbidden("insufficient role for this action")
}

// RequireAuditStaff allows head of audit, manager and auditor
func (rc RequestContext) RequireAuditStaff() error {
	if rc.Principal.Role.IsAuditStaff() {
		return nil
	}
	return NewForbidden("audit staff access required")
}
