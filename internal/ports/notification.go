package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Mail is an outbound email message
type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Mailer delivers email. Callers treat failures as non-fatal and never call it inside a transaction.
type Mailer interface {
	// Send delivers a message
	Send(ctx context.Context, msg Mail) error
}

// EventPublisher defines the interface for domain event publishing
type EventPublisher interface {
	// Publish broadcasts an event to subscribers of the event's organization
	Publish(ctx context.Context, event Event) error
}

// Event represents a domain event
type Event struct {
	ID             string                 `json:"id"`
	Type           string                 `json:"type"`
	OrganizationID int64                  `json:"-"`
	Aggregate      string                 `json:"aggregate"`
	AggregateID    int64                  `json:"aggregate_id"`
	ActorID        int64                  `json:"actor_id"`
	Data           map[string]interface{} `json:"data"`
	OccurredAt     time.Time              `json:"occurred_at"`
}

// Event Types
const (
	EventTypeIssueDrafted          = "issue.drafted"
	EventTypeIssueSubmitted        = "issue.sent_for_verify"
	EventTypeIssueApproved         = "issue.approved"
	EventTypeIssueAmendment        = "issue.sent_for_amendment"
	EventTypeIssueRemoved          = "issue.removed"
	EventTypeIssueSentForComment   = "issue.sent_for_commenting"
	EventTypeCommentAdded          = "issue.comment_added"
	EventTypeIssueSentForFollowup  = "issue.sent_for_followup"
	EventTypeFollowupSubmitted     = "issue.followup_submitted"
	EventTypeFollowupResolved      = "issue.followup_resolved"
	EventTypeRiskAssessmentsSaved  = "audit.risk_assessments_saved"
	EventTypeWorkingPaperRowsSaved = "audit.working_paper_rows_saved"
)

// NewEvent creates a new domain event
func NewEvent(eventType, aggregate string, orgID, aggregateID, actorID int64, data map[string]interface{}, at time.Time) *Event {
	return &Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		OrganizationID: orgID,
		Aggregate:      aggregate,
		AggregateID:    aggregateID,
		ActorID:        actorID,
		Data:           data,
		OccurredAt:     at,
	}
}
