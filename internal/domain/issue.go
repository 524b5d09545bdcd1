package domain

import (
	"strings"
	"time"
)

// IssueStatus represents the lifecycle state of an audit issue
type IssueStatus string

const (
	IssueStatusDraft            IssueStatus = "draft"
	IssueStatusSentForVerify    IssueStatus = "sent_for_verify"
	IssueStatusApproved         IssueStatus = "approved"
	IssueStatusSentForAmendment IssueStatus = "sent_for_amendment"
	IssueStatusRemoved          IssueStatus = "removed"
)

// IsActive reports whether the status is non-terminal. A procedure has at most one active issue.
func (s IssueStatus) IsActive() bool {
	return s == IssueStatusDraft || s == IssueStatusSentForVerify || s == IssueStatusSentForAmendment
}

// IsEditable reports whether the author may still change the issue
func (s IssueStatus) IsEditable() bool {
	return s == IssueStatusDraft || s == IssueStatusSentForAmendment
}

// IssueFields are the author-editable parts of an issue
type IssueFields struct {
	Title            string     `json:"issue_title"`
	Criteria         string     `json:"criteria"`
	Condition        string     `json:"condition"`
	Cause            string     `json:"cause"`
	Consequence      string     `json:"consequence"`
	CorrectiveAction string     `json:"corrective_action"`
	CorrectiveDate   *time.Time `json:"corrective_date,omitempty"`
}

// AuditIssue is a finding raised from an audit procedure.
// Rating and band are read from the procedure, never stored here.
type AuditIssue struct {
	ID               int64 `json:"id"`
	AuditID          int64 `json:"audit_id"`
	AuditProcedureID int64 `json:"audit_procedure_id"`
	IssueFields
	Status          IssueStatus `json:"status"`
	SubmittedBy     *int64      `json:"submitted_by,omitempty"`
	SubmittedAt     *time.Time  `json:"submitted_at,omitempty"`
	VerifiedBy      *int64      `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time  `json:"verified_at,omitempty"`
	IncludeInReport bool        `json:"include_in_report"`

	SentForCommenting   bool       `json:"sent_for_commenting"`
	CommentDueDate      *time.Time `json:"comment_due_date,omitempty"`
	SentForCommentingAt *time.Time `json:"sent_for_commenting_at,omitempty"`

	SentForFollowup     bool       `json:"sent_for_followup"`
	FollowupDueDate     *time.Time `json:"followup_due_date,omitempty"`
	SentForFollowupAt   *time.Time `json:"sent_for_followup_at,omitempty"`
	FollowupResponded   bool       `json:"followup_responded"`
	FollowupResponse    string     `json:"followup_response,omitempty"`
	FollowupEvidence    string     `json:"followup_evidence_path,omitempty"`
	FollowupRespondedAt *time.Time `json:"followup_responded_at,omitempty"`
	FollowupResolved    bool       `json:"followup_resolved"`
	FollowupResolvedAt  *time.Time `json:"followup_resolved_at,omitempty"`
	FollowupResolvedBy  *int64     `json:"followup_resolved_by,omitempty"`

	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IssueView is an issue with the severity and context of its parent procedure
type IssueView struct {
	AuditIssue
	Rating      *int   `json:"rating"`
	Band        *Band  `json:"band"`
	AuditArea   string `json:"audit_area"`
	AuditName   string `json:"audit_name"`
	AuditeeName string `json:"auditee_name,omitempty"`
}

// NewIssue creates an issue that has not been persisted yet
func NewIssue(auditID, procedureID, authorID int64, now time.Time) *AuditIssue {
	return &AuditIssue{
		AuditID:          auditID,
		AuditProcedureID: procedureID,
		Status:           IssueStatusDraft,
		IncludeInReport:  true,
		CreatedBy:        authorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// SaveDraft stores fields and leaves the issue in draft
func (i *AuditIssue) SaveDraft(f IssueFields, now time.Time) error {
	if !i.Status.IsEditable() {
		return NewInvalidTransition("cannot save draft of an issue in status %s", i.Status)
	}
	i.IssueFields = f
	i.Status = IssueStatusDraft
	i.UpdatedAt = now
	return nil
}

// SubmitForVerification stores fields and hands the issue to a reviewer
func (i *AuditIssue) SubmitForVerification(f IssueFields, by int64, now time.Time) error {
	if !i.Status.IsEditable() {
		return NewInvalidTransition("cannot submit an issue in status %s for verification", i.Status)
	}
	if strings.TrimSpace(f.Title) == "" {
		return NewValidation("issue title is required")
	}
	i.IssueFields = f
	i.Status = IssueStatusSentForVerify
	i.SubmittedBy = &by
	i.SubmittedAt = &now
	i.UpdatedAt = now
	return nil
}

// Approve accepts a submitted issue
func (i *AuditIssue) Approve(by int64, now time.Time) error {
	return i.verify(IssueStatusApproved, by, now)
}

// SendForAmendment returns a submitted issue to its author
func (i *AuditIssue) SendForAmendment(by int64, now time.Time) error {
	return i.verify(IssueStatusSentForAmendment, by, now)
}

// Remove discards a submitted issue
func (i *AuditIssue) Remove(by int64, now time.Time) error {
	return i.verify(IssueStatusRemoved, by, now)
}

func (i *AuditIssue) verify(to IssueStatus, by int64, now time.Time) error {
	if i.Status != IssueStatusSentForVerify {
		return NewInvalidTransition("cannot move issue from %s to %s", i.Status, to)
	}
	i.Status = to
	i.VerifiedBy = &by
	i.VerifiedAt = &now
	i.UpdatedAt = now
	return nil
}

func (i *AuditIssue) requireApproved(action string) error {
	if i.Status != IssueStatusApproved {
		return NewInvalidTransition("cannot %s an issue in status %s", action, i.Status)
	}
	return nil
}

// SendForCommenting opens the management comment window
func (i *AuditIssue) SendForCommenting(due time.Time, now time.Time) error {
	if err := i.requireApproved("send for commenting"); err != nil {
		return err
	}
	if due.IsZero() {
		return NewValidation("due date is required")
	}
	i.SentForCommenting = true
	i.CommentDueDate = &due
	i.SentForCommentingAt = &now
	i.UpdatedAt = now
	return nil
}

// ResendForComment re-opens the comment window with a new due date
func (i *AuditIssue) ResendForComment(due time.Time, now time.Time) error {
	if err := i.requireApproved("resend for comment"); err != nil {
		return err
	}
	if !i.SentForCommenting {
		return NewInvalidTransition("issue was never sent for commenting")
	}
	return i.SendForCommenting(due, now)
}

// CheckCommentWindow fails unless the auditee may still comment at now
func (i *AuditIssue) CheckCommentWindow(now time.Time, loc *time.Location) error {
	if err := i.requireApproved("comment on"); err != nil {
		return err
	}
	if !i.SentForCommenting || i.CommentDueDate == nil {
		return NewInvalidTransition("issue is not open for comments")
	}
	if Expired(*i.CommentDueDate, now, loc) {
		return NewExpiredWindow("Comment period has expired. Contact auditor to resend.")
	}
	return nil
}

// SendForFollowup opens the follow-up window
func (i *AuditIssue) SendForFollowup(due time.Time, now time.Time) error {
	if err := i.requireApproved("send for follow-up"); err != nil {
		return err
	}
	if due.IsZero() {
		return NewValidation("due date is required")
	}
	i.SentForFollowup = true
	i.FollowupDueDate = &due
	i.SentForFollowupAt = &now
	i.UpdatedAt = now
	return nil
}

// RecordFollowupResponse checks the window and mirrors the latest response onto the issue
func (i *AuditIssue) RecordFollowupResponse(response, evidencePath string, now time.Time, loc *time.Location) error {
	if err := i.requireApproved("follow up"); err != nil {
		return err
	}
	if !i.SentForFollowup || i.FollowupDueDate == nil {
		return NewInvalidTransition("issue is not open for follow-up")
	}
	if Expired(*i.FollowupDueDate, now, loc) {
		return NewExpiredWindow("Follow-up period has expired. Contact auditor to resend.")
	}
	if strings.TrimSpace(response) == "" {
		return NewValidation("follow-up response is required")
	}
	i.FollowupResponded = true
	i.FollowupResponse = response
	i.FollowupEvidence = evidencePath
	i.FollowupRespondedAt = &now
	i.UpdatedAt = now
	return nil
}

// ResendFollowup clears the mirrored response and re-opens the window
func (i *AuditIssue) ResendFollowup(due time.Time, now time.Time) error {
	if err := i.requireApproved("resend follow-up for"); err != nil {
		return err
	}
	if !i.SentForFollowup {
		return NewInvalidTransition("issue was never sent for follow-up")
	}
	if err := i.SendForFollowup(due, now); err != nil {
		return err
	}
	i.FollowupResponded = false
	i.FollowupResponse = ""
	i.FollowupEvidence = ""
	i.FollowupRespondedAt = nil
	return nil
}

// ResolveFollowup marks corrective action as resolved. It does not require a response.
func (i *AuditIssue) ResolveFollowup(by int64, now time.Time) error {
	if err := i.requireApproved("resolve follow-up for"); err != nil {
		return err
	}
	if !i.SentForFollowup {
		return NewInvalidTransition("issue was never sent for follow-up")
	}
	i.FollowupResolved = true
	i.FollowupResolvedAt = &now
	i.FollowupResolvedBy = &by
	i.UpdatedAt = now
	return nil
}

// EndOfDay returns the last millisecond of due's calendar date in loc
func EndOfDay(due time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := due.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}

// Expired reports whether now is past the end of the due date
func Expired(due, now time.Time, loc *time.Location) bool {
	return now.After(EndOfDay(due, loc))
}

// ParseDueDate parses a YYYY-MM-DD date as midnight in loc
func ParseDueDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if strings.TrimSpace(s) == "" {
		return time.Time{}, NewValidation("due date is required")
	}
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, NewValidation("due date must be in YYYY-MM-DD form")
	}
	return d, nil
}
