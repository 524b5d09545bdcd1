package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultModel     = "claude-sonnet-4-5-20250929"
	anthropicVersion = "2023-06-01"
)

// Config holds the assistant provider settings
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// AnthropicAdapter implements ports.TextAssistant using the Anthropic Messages API
type AnthropicAdapter struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// NewAnthropicAdapter creates a new Anthropic adapter
func NewAnthropicAdapter(config Config) *AnthropicAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &AnthropicAdapter{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		model:      config.Model,
		maxTokens:  config.MaxTokens,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Rephrase rewrites text in audit report style
func (a *AnthropicAdapter) Rephrase(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(`You are a professional audit report writer. Rephrase the following text to be more professional, clear, and concise while maintaining the core meaning. Keep it in audit report style.

Original text: %s

Rephrased version:`, text)

	return a.complete(ctx, prompt)
}

// GenerateConsequence drafts the impact statement of an issue
func (a *AnthropicAdapter) GenerateConsequence(ctx context.Context, criteria, condition string) (string, error) {
	prompt := fmt.Sprintf(`You are a professional auditor writing an audit issue. Based on the following criteria and condition, generate a professional consequence statement that explains the potential impact, risks, or implications.

Criteria (the standard/requirement): %s

Condition (the actual situation found): %s

Generate a consequence statement (impact/risk of this issue):`, criteria, condition)

	return a.complete(ctx, prompt)
}

func (a *AnthropicAdapter) complete(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]interface{}{
		"model":      a.model,
		"max_tokens": a.maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Anthropic API error: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	for _, block := range response.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
