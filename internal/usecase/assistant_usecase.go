package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// ErrAssistantBusy is returned when the assistant's request budget is exhausted
var ErrAssistantBusy = errors.New("assistant is busy, try again shortly")

const maxAssistantInput = 8000

// AssistantConfig throttles calls to the text assistant
type AssistantConfig struct {
	RequestsPerMinute int
	// MaxWait bounds how long a request queues for a free slot
	MaxWait time.Duration
}

// AssistantUseCase wraps the text assistant with input checks and throttling
type AssistantUseCase struct {
	assistant ports.TextAssistant
	limiter   *rate.Limiter
	maxWait   time.Duration
}

// NewAssistantUseCase creates a new assistant use case
func NewAssistantUseCase(assistant ports.TextAssistant, cfg AssistantConfig) *AssistantUseCase {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}
	return &AssistantUseCase{
		assistant: assistant,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		maxWait:   maxWait,
	}
}

func (uc *AssistantUseCase) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, uc.maxWait)
	defer cancel()
	if err := uc.limiter.Wait(waitCtx); err != nil {
		return ErrAssistantBusy
	}
	return nil
}

func checkInput(field, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewValidation("%s is required", field)
	}
	if len(text) > maxAssistantInput {
		return "", domain.NewValidation("%s exceeds %d characters", field, maxAssistantInput)
	}
	return text, nil
}

// Rephrase improves the wording of issue text
func (uc *AssistantUseCase) Rephrase(ctx context.Context, rc domain.RequestContext, text string) (string, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return "", err
	}
	text, err := checkInput("text", text)
	if err != nil {
		return "", err
	}
	if uc.assistant == nil {
		return "", fmt.Errorf("assistant not available")
	}
	if err := uc.acquire(ctx); err != nil {
		return "", err
	}
	out, err := uc.assistant.Rephrase(ctx, text)
	if err != nil {
		return "", fmt.Errorf("failed to rephrase text: %w", err)
	}
	return out, nil
}

// GenerateConsequence drafts the consequence of a finding from its criteria and condition
func (uc *AssistantUseCase) GenerateConsequence(ctx context.Context, rc domain.RequestContext, criteria, condition string) (string, error) {
	if err := rc.RequireAuditStaff(); err != nil {
		return "", err
	}
	criteria, err := checkInput("criteria", criteria)
	if err != nil {
		return "", err
	}
	condition, err = checkInput("condition", condition)
	if err != nil {
		return "", err
	}
	if uc.assistant == nil {
		return "", fmt.Errorf("assistant not available")
	}
	if err := uc.acquire(ctx); err != nil {
		return "", err
	}
	out, err := uc.assistant.GenerateConsequence(ctx, criteria, condition)
	if err != nil {
		return "", fmt.Errorf("failed to generate consequence: %w", err)
	}
	return out, nil
}
