package domain

import (
	"strings"
	"time"
)

// ManagementComment is an auditee response or an auditor re-send note on an issue
type ManagementComment struct {
	ID                int64     `json:"id"`
	IssueID           int64     `json:"issue_id"`
	UserID            int64     `json:"user_id"`
	UserName          string    `json:"user_name,omitempty"`
	Comment           string    `json:"comment"`
	AttachmentPath    string    `json:"attachment_path,omitempty"`
	IsAuditorResponse bool      `json:"is_auditor_response"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewManagementComment creates an append-only comment
func NewManagementComment(issueID, userID int64, text, attachment string, auditor bool, now time.Time) (*ManagementComment, error) {
	if strings.TrimSpace(text) == "" && attachment == "" {
		return nil, NewValidation("comment is required")
	}
	return &ManagementComment{
		IssueID:           issueID,
		UserID:            userID,
		Comment:           text,
		AttachmentPath:    attachment,
		IsAuditorResponse: auditor,
		CreatedAt:         now,
	}, nil
}

// CommentStats summarises a thread relative to the latest send
type CommentStats struct {
	HasResponded       bool `json:"has_responded"`
	RecentCommentCount int  `json:"recent_comment_count"`
	ResendCount        int  `json:"resend_count"`
	TotalComments      int  `json:"total_comments"`
}

// SummarizeComments computes thread stats. A response only counts when it is a
// non-auditor comment created after sentAt, so a resend resets HasResponded.
func SummarizeComments(comments []*ManagementComment, sentAt *time.Time) CommentStats {
	var st CommentStats
	st.TotalComments = len(comments)
	for _, c := range comments {
		if c.IsAuditorResponse {
			st.ResendCount++
			continue
		}
		if sentAt != nil && c.CreatedAt.After(*sentAt) {
			st.RecentCommentCount++
		}
	}
	st.HasResponded = st.RecentCommentCount > 0
	return st
}

// IssueReviewComment is a reviewer's note on an issue, optionally tied to a field
type IssueReviewComment struct {
	ID           int64     `json:"id"`
	IssueID      int64     `json:"issue_id"`
	UserID       int64     `json:"user_id"`
	UserName     string    `json:"user_name,omitempty"`
	Comment      string    `json:"comment"`
	FieldName    string    `json:"field_name,omitempty"`
	SelectedText string    `json:"selected_text,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

var reviewableFields = map[string]bool{
	"issue_title": true, "criteria": true, "condition": true, "cause": true,
	"consequence": true, "corrective_action": true,
}

// Validate checks a review comment
func (c *IssueReviewComment) Validate() error {
	if strings.TrimSpace(c.Comment) == "" {
		return NewValidation("comment is required")
	}
	if c.FieldName != "" && !reviewableFields[c.FieldName] {
		return NewValidation("unknown issue field %q", c.FieldName)
	}
	return nil
}

// FollowupResponse is one entry of an issue's follow-up history
type FollowupResponse struct {
	ID            int64     `json:"id"`
	IssueID       int64     `json:"issue_id"`
	RespondedBy   int64     `json:"responded_by"`
	ResponderName string    `json:"responder_name,omitempty"`
	Response      string    `json:"response"`
	EvidencePath  string    `json:"evidence_path,omitempty"`
	ResendCount   int       `json:"resend_count"`
	CreatedAt     time.Time `json:"created_at"`
}
