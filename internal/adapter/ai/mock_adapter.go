package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockAssistant is a deterministic ports.TextAssistant for development and tests
type MockAssistant struct {
	latency time.Duration
}

// NewMockAssistant creates a new mock assistant
func NewMockAssistant(latency time.Duration) *MockAssistant {
	return &MockAssistant{latency: latency}
}

func (m *MockAssistant) wait(ctx context.Context) error {
	if m.latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(m.latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rephrase tidies whitespace and capitalisation
func (m *MockAssistant) Rephrase(ctx context.Context, text string) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	out := strings.Join(strings.Fields(text), " ")
	if out == "" {
		return "", nil
	}
	out = strings.ToUpper(out[:1]) + out[1:]
	if !strings.HasSuffix(out, ".") {
		out += "."
	}
	return out, nil
}

// GenerateConsequence returns a templated consequence statement
func (m *MockAssistant) GenerateConsequence(ctx context.Context, criteria, condition string) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Because %s, the organization does not meet the requirement that %s. This exposes it to financial loss and non-compliance.",
		strings.TrimSuffix(strings.TrimSpace(condition), "."),
		strings.TrimSuffix(strings.TrimSpace(criteria), "."),
	), nil
}
