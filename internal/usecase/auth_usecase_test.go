package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/infrastructure/service/logger"
	"github.com/auditflow/auditflow/internal/domain"
)

type plainPasswords struct{}

func (plainPasswords) HashPassword(password string) (string, error) {
	return "hashed:" + password, nil
}

func (plainPasswords) VerifyPassword(password, hash string) (bool, error) {
	return hash == "hashed:"+password, nil
}

func (plainPasswords) ValidatePassword(password string) error {
	var letter, digit bool
	for _, r := range password {
		letter = letter || unicode.IsLetter(r)
		digit = digit || unicode.IsDigit(r)
	}
	if len(password) < 8 || !letter || !digit {
		return domain.NewValidation("password must be at least 8 characters with letters and digits")
	}
	return nil
}

type fakeTokens struct {
	issued []domain.Principal
}

func (f *fakeTokens) GenerateAccessToken(p domain.Principal) (string, time.Time, error) {
	f.issued = append(f.issued, p)
	return fmt.Sprintf("token-%d", p.UserID), time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), nil
}

func (f *fakeTokens) ValidateAccessToken(token string) (*domain.Principal, error) {
	return nil, errors.New("not implemented")
}

// fixedOTP accepts a single code
type fixedOTP struct {
	code string
}

func (o fixedOTP) Generate(accountName string) (string, string, error) {
	return "JBSWY3DPEHPK3PXP", "otpauth://totp/AuditFlow:" + accountName, nil
}

func (o fixedOTP) Validate(code, secret string, at time.Time) bool {
	return secret != "" && code == o.code
}

type memLimiter struct {
	counts  map[string]int
	blocked map[string]bool
}

func newMemLimiter() *memLimiter {
	return &memLimiter{counts: map[string]int{}, blocked: map[string]bool{}}
}

func (l *memLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.counts[key] < limit, nil
}

func (l *memLimiter) Increment(ctx context.Context, key string, window time.Duration) error {
	l.counts[key]++
	return nil
}

func (l *memLimiter) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	l.blocked[key] = true
	return nil
}

func (l *memLimiter) IsBlocked(ctx context.Context, key string) (bool, error) {
	return l.blocked[key], nil
}

func (l *memLimiter) Reset(ctx context.Context, key string) error {
	delete(l.counts, key)
	return nil
}

func (f *fixture) setPassword(userID int64, password string) {
	u := f.store.users[userID]
	u.PasswordHash = "hashed:" + password
	f.store.users[userID] = u
}

func loginCtx() context.Context {
	return context.WithValue(context.Background(), logger.ClientIPKey, "203.0.113.7")
}

func TestLogin_IssuesTokenForValidCredentials(t *testing.T) {
	f := newFixture()
	f.setPassword(f.auditorID, "treasury123")
	tokens := &fakeTokens{}
	uc := f.auth(plainPasswords{}, tokens, nil, newMemLimiter())

	resp, err := uc.Login(loginCtx(), LoginRequest{Email: "  Ada.Auditor@example.com ", Password: "treasury123"}, f.now)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, fmt.Sprintf("token-%d", f.auditorID), resp.AccessToken)
	require.Len(t, tokens.issued, 1)
	assert.Equal(t, domain.Principal{UserID: f.auditorID, Role: domain.RoleAuditor, OrganizationID: f.orgID}, tokens.issued[0])
}

func TestLogin_WrongPasswordAndUnknownEmailLookTheSame(t *testing.T) {
	f := newFixture()
	f.setPassword(f.auditorID, "treasury123")
	uc := f.auth(plainPasswords{}, &fakeTokens{}, nil, newMemLimiter())

	_, wrongPassword := uc.Login(loginCtx(), LoginRequest{Email: "ada.auditor@example.com", Password: "nope12345"}, f.now)
	_, unknown := uc.Login(loginCtx(), LoginRequest{Email: "ghost@example.com", Password: "nope12345"}, f.now)
	require.Error(t, wrongPassword)
	require.Error(t, unknown)
	assert.True(t, errors.Is(wrongPassword, domain.ErrUnauthorized))
	assert.Equal(t, wrongPassword.Error(), unknown.Error())

	_, err := uc.Login(loginCtx(), LoginRequest{Email: "", Password: "x"}, f.now)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestLogin_BlocksAfterRepeatedFailures(t *testing.T) {
	f := newFixture()
	f.setPassword(f.auditorID, "treasury123")
	limiter := newMemLimiter()
	uc := f.auth(plainPasswords{}, &fakeTokens{}, nil, limiter)
	ctx := loginCtx()

	for i := 0; i < 3; i++ {
		_, err := uc.Login(ctx, LoginRequest{Email: "ada.auditor@example.com", Password: "wrong0000"}, f.now)
		require.Error(t, err)
	}
	_, err := uc.Login(ctx, LoginRequest{Email: "ada.auditor@example.com", Password: "treasury123"}, f.now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many login attempts")
	assert.True(t, limiter.blocked["login:ip:203.0.113.7"])
}

func TestLogin_SuccessResetsFailureCount(t *testing.T) {
	f := newFixture()
	f.setPassword(f.auditorID, "treasury123")
	limiter := newMemLimiter()
	uc := f.auth(plainPasswords{}, &fakeTokens{}, nil, limiter)
	ctx := loginCtx()

	_, err := uc.Login(ctx, LoginRequest{Email: "ada.auditor@example.com", Password: "wrong0000"}, f.now)
	require.Error(t, err)
	assert.Equal(t, 1, limiter.counts["login:ip:203.0.113.7"])

	_, err = uc.Login(ctx, LoginRequest{Email: "ada.auditor@example.com", Password: "treasury123"}, f.now)
	require.NoError(t, err)
	assert.Zero(t, limiter.counts["login:ip:203.0.113.7"])
}

func TestLogin_InactiveAccount(t *testing.T) {
	f := newFixture()
	f.setPassword(f.auditorID, "treasury123")
	u := f.store.users[f.auditorID]
	u.IsActive = false
	f.store.users[f.auditorID] = u

	_, err := f.auth(plainPasswords{}, &fakeTokens{}, nil, nil).Login(loginCtx(), LoginRequest{Email: "ada.auditor@example.com", Password: "treasury123"}, f.now)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	assert.Contains(t, err.Error(), "deactivated")
}

func TestMFA_EnrollConfirmAndLogin(t *testing.T) {
	f := newFixture()
	f.setPassword(f.auditorID, "treasury123")
	otp := fixedOTP{code: "123456"}
	uc := f.auth(plainPasswords{}, &fakeTokens{}, otp, newMemLimiter())
	ctx := context.Background()

	err := uc.ConfirmMFA(ctx, f.auditor(), "123456")
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "nothing to confirm yet")

	enrollment, err := uc.EnrollMFA(ctx, f.auditor())
	require.NoError(t, err)
	assert.Contains(t, enrollment.ProvisioningURL, "ada.auditor@example.com")

	// enrollment alone does not enforce the second factor
	_, err = uc.Login(loginCtx(), LoginRequest{Email: "ada.auditor@example.com", Password: "treasury123"}, f.now)
	require.NoError(t, err)

	err = uc.ConfirmMFA(ctx, f.auditor(), "000000")
	assert.True(t, errors.Is(err, domain.ErrValidation))
	require.NoError(t, uc.ConfirmMFA(ctx, f.auditor(), "123456"))

	_, err = uc.EnrollMFA(ctx, f.auditor())
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))

	_, err = uc.Login(loginCtx(), LoginRequest{Email: "ada.auditor@example.com", Password: "treasury123"}, f.now)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	resp, err := uc.Login(loginCtx(), LoginRequest{Email: "ada.auditor@example.com", Password: "treasury123", OTPCode: "123456"}, f.now)
	require.NoError(t, err)
	assert.True(t, resp.User.MFAEnabled)
}

func TestMe(t *testing.T) {
	f := newFixture()
	user, err := f.auth(plainPasswords{}, &fakeTokens{}, nil, nil).Me(context.Background(), f.manager())
	require.NoError(t, err)
	assert.Equal(t, "Mark Manager", user.Name)
}
