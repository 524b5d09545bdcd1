package totp

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Service issues TOTP secrets and validates codes for two-factor login
type Service struct {
	issuer string
}

func NewService(issuer string) *Service {
	if issuer == "" {
		issuer = "AuditFlow"
	}
	return &Service{issuer: issuer}
}

// Generate creates a new secret for accountName and its otpauth:// provisioning URL
func (s *Service) Generate(accountName string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate totp key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// Validate checks code at the given instant, allowing one period of clock skew
func (s *Service) Validate(code, secret string, at time.Time) bool {
	if code == "" || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
