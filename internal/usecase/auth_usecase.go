package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/ports"
)

// LoginRequest represents a password login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTPCode  string `json:"otp_code,omitempty"`
}

// LoginResponse carries the issued access token
type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *domain.User `json:"user"`
}

// MFAEnrollment is returned when a user starts two-factor enrollment
type MFAEnrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURL string `json:"provisioning_url"`
}

// LoginLimits configures brute-force protection
type LoginLimits struct {
	Attempts      int
	Window        time.Duration
	BlockDuration time.Duration
}

var errInvalidCredentials = domain.NewUnauthorized("invalid email or password")

// AuthUseCase handles login and the caller's own account
type AuthUseCase struct {
	userRepo        ports.UserRepository
	passwordService ports.PasswordService
	tokenService    ports.TokenService
	otpService      ports.OTPService
	limiter         ports.AttemptLimiter
	limits          LoginLimits
	logger          logger.Logger
}

// NewAuthUseCase creates a new auth use case
func NewAuthUseCase(
	userRepo ports.UserRepository,
	passwordService ports.PasswordService,
	tokenService ports.TokenService,
	otpService ports.OTPService,
	limiter ports.AttemptLimiter,
	limits LoginLimits,
	log logger.Logger,
) *AuthUseCase {
	if limits.Attempts <= 0 {
		limits.Attempts = 5
	}
	if limits.Window <= 0 {
		limits.Window = 15 * time.Minute
	}
	if limits.BlockDuration <= 0 {
		limits.BlockDuration = 30 * time.Minute
	}
	return &AuthUseCase{
		userRepo:        userRepo,
		passwordService: passwordService,
		tokenService:    tokenService,
		otpService:      otpService,
		limiter:         limiter,
		limits:          limits,
		logger:          log,
	}
}

// Login verifies credentials and issues an access token
func (uc *AuthUseCase) Login(ctx context.Context, req LoginRequest, now time.Time) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, domain.NewValidation("email and password are required")
	}

	ip := logger.ClientIP(ctx)
	ipKey := fmt.Sprintf("login:ip:%s", ip)
	if uc.limiter != nil {
		blocked, err := uc.limiter.IsBlocked(ctx, ipKey)
		if err != nil {
			uc.logger.Error(ctx, "Failed to check IP block status", err, map[string]interface{}{"ip": ip})
		}
		if blocked {
			logger.LogSecurityEvent(ctx, uc.logger, "blocked_ip_login_attempt", "MEDIUM", map[string]interface{}{
				"ip":    ip,
				"email": email,
			})
			return nil, domain.NewUnauthorized("too many login attempts, try again later")
		}
		allowed, err := uc.limiter.CheckLimit(ctx, ipKey, uc.limits.Attempts, uc.limits.Window)
		if err != nil {
			uc.logger.Error(ctx, "Failed to check rate limit", err, map[string]interface{}{"ip": ip})
		}
		if err == nil && !allowed {
			_ = uc.limiter.Block(ctx, ipKey, uc.limits.BlockDuration, "login rate limit exceeded")
			logger.LogSecurityEvent(ctx, uc.logger, "ip_rate_limit_exceeded", "HIGH", map[string]interface{}{
				"ip":    ip,
				"email": email,
			})
			return nil, domain.NewUnauthorized("too many login attempts, try again later")
		}
	}

	user, err := uc.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			uc.recordFailure(ctx, ipKey)
			logger.LogAuthEvent(ctx, uc.logger, "login_failed_user_not_found", 0, ip, false, map[string]interface{}{"email": email})
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	start := time.Now()
	valid, err := uc.passwordService.VerifyPassword(req.Password, user.PasswordHash)
	logger.LogPerformance(ctx, uc.logger, "password_verification", time.Since(start), map[string]interface{}{"user_id": user.ID})
	if err != nil || !valid {
		uc.recordFailure(ctx, ipKey)
		logger.LogAuthEvent(ctx, uc.logger, "login_failed_invalid_password", user.ID, ip, false, nil)
		return nil, errInvalidCredentials
	}
	if !user.IsActive {
		logger.LogAuthEvent(ctx, uc.logger, "login_failed_inactive", user.ID, ip, false, nil)
		return nil, domain.NewUnauthorized("account is deactivated")
	}
	if user.MFAEnabled {
		if uc.otpService == nil || !uc.otpService.Validate(req.OTPCode, user.MFASecret, now) {
			uc.recordFailure(ctx, ipKey)
			logger.LogAuthEvent(ctx, uc.logger, "login_failed_invalid_otp", user.ID, ip, false, nil)
			return nil, domain.NewUnauthorized("invalid one-time code")
		}
	}

	token, expiresAt, err := uc.tokenService.GenerateAccessToken(user.Principal())
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	if uc.limiter != nil {
		_ = uc.limiter.Reset(ctx, ipKey)
	}

	logger.LogAuthEvent(ctx, uc.logger, "login_success", user.ID, ip, true, map[string]interface{}{
		"role": user.Role,
	})

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

func (uc *AuthUseCase) recordFailure(ctx context.Context, key string) {
	if uc.limiter == nil {
		return
	}
	if err := uc.limiter.Increment(ctx, key, uc.limits.Window); err != nil {
		uc.logger.Error(ctx, "Failed to record login failure", err, nil)
	}
}

// Me returns the caller's account
func (uc *AuthUseCase) Me(ctx context.Context, rc domain.RequestContext) (*domain.User, error) {
	user, err := uc.userRepo.FindByID(ctx, rc.Principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// EnrollMFA generates a new TOTP secret for the caller. It is not enforced until confirmed.
func (uc *AuthUseCase) EnrollMFA(ctx context.Context, rc domain.RequestContext) (*MFAEnrollment, error) {
	if uc.otpService == nil {
		return nil, domain.NewInvalidTransition("two-factor authentication is not available")
	}
	user, err := uc.userRepo.FindByID(ctx, rc.Principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user.MFAEnabled {
		return nil, domain.NewInvalidTransition("two-factor authentication is already enabled")
	}
	secret, url, err := uc.otpService.Generate(user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	if err := uc.userRepo.UpdateMFA(ctx, user.ID, secret, false); err != nil {
		return nil, fmt.Errorf("failed to store secret: %w", err)
	}
	return &MFAEnrollment{Secret: secret, ProvisioningURL: url}, nil
}

// ConfirmMFA enables two-factor login once the caller proves possession of the secret
func (uc *AuthUseCase) ConfirmMFA(ctx context.Context, rc domain.RequestContext, code string) error {
	if uc.otpService == nil {
		return domain.NewInvalidTransition("two-factor authentication is not available")
	}
	user, err := uc.userRepo.FindByID(ctx, rc.Principal.UserID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user.MFASecret == "" {
		return domain.NewInvalidTransition("two-factor enrollment has not been started")
	}
	if !uc.otpService.Validate(code, user.MFASecret, rc.Now) {
		return domain.NewValidation("invalid one-time code")
	}
	if err := uc.userRepo.UpdateMFA(ctx, user.ID, user.MFASecret, true); err != nil {
		return fmt.Errorf("failed to enable two-factor authentication: %w", err)
	}
	logger.LogSecurityEvent(ctx, uc.logger, "mfa_enabled", "LOW", map[string]interface{}{"user_id": user.ID})
	return nil
}
