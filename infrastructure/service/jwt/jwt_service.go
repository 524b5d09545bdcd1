package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/auditflow/auditflow/internal/domain"
)

// Config holds token signing settings
type Config struct {
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
}

type JWTService struct {
	config     Config
	hmacSecret []byte
	now        func() time.Time
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

func NewJWTService(cfg Config) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 8 * time.Hour
	}
	return &JWTService{
		config:     cfg,
		hmacSecret: []byte(cfg.Secret),
		now:        time.Now,
	}, nil
}

// GenerateAccessToken signs the principal into an HS256 token
func (s *JWTService) GenerateAccessToken(p domain.Principal) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.config.AccessTokenTTL)
	tokenClaims := jwt.MapClaims{
		"user_id":         p.UserID,
		"role":            string(p.Role),
		"organization_id": p.OrganizationID,
		"exp":             expiresAt.Unix(),
		"iat":             now.Unix(),
		"type":            "access",
	}
	if s.config.Issuer != "" {
		tokenClaims["iss"] = s.config.Issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims)
	tokenString, err := token.SignedString(s.hmacSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken verifies the token and extracts its principal
func (s *JWTService) ValidateAccessToken(tokenString string) (*domain.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.hmacSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, s.handleValidationError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	tokenType, ok := claims["type"].(string)
	if !ok || tokenType != "access" {
		return nil, ErrInvalidToken
	}

	// Numeric claims decode as float64
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}
	role, ok := claims["role"].(string)
	if !ok || !domain.Role(role).IsValid() {
		return nil, ErrInvalidToken
	}
	orgID, _ := claims["organization_id"].(float64)

	return &domain.Principal{
		UserID:         int64(userID),
		Role:           domain.Role(role),
		OrganizationID: int64(orgID),
	}, nil
}

func (s *JWTService) handleValidationError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrInvalidToken
}
