package ports

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/auditflow/auditflow/internal/domain"
)

// FileStorage stores uploaded evidence and attachments outside the database
type FileStorage interface {
	// Save stores the content under a category and returns the stored path
	Save(ctx context.Context, category, filename string, content io.Reader) (string, error)
}

// TextAssistant generates or improves issue text
type TextAssistant interface {
	Rephrase(ctx context.Context, text string) (string, error)
	GenerateConsequence(ctx context.Context, criteria, condition string) (string, error)
}

// DocumentExporter renders a finalized report
type DocumentExporter interface {
	ExportIssues(ctx context.Context, doc domain.ReportDocument) ([]byte, error)
	ContentType() string
}

// WorkflowMetrics records workflow counters
type WorkflowMetrics interface {
	IssueTransition(from, to domain.IssueStatus)
}

// RowSchemaValidator validates raw working paper rows against a template-derived JSON Schema
type RowSchemaValidator interface {
	ValidateRow(t *domain.WorkingPaperTemplate, raw json.RawMessage) error
	Schema(t *domain.WorkingPaperTemplate) (map[string]interface{}, error)
}

// TokenService issues and verifies access tokens
type TokenService interface {
	GenerateAccessToken(p domain.Principal) (string, time.Time, error)
	ValidateAccessToken(token string) (*domain.Principal, error)
}

// PasswordService hashes and verifies passwords
type PasswordService interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) (bool, error)
	ValidatePassword(password string) error
}

// OTPService generates and checks time-based one-time passwords
type OTPService interface {
	Generate(accountName string) (secret, provisioningURL string, err error)
	Validate(code, secret string, at time.Time) bool
}

// AttemptLimiter counts attempts per key and blocks abusive keys
type AttemptLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Increment(ctx context.Context, key string, window time.Duration) error
	Block(ctx context.Context, key string, duration time.Duration, reason string) error
	IsBlocked(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Clock returns the current time
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
