package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimitService counts attempts per key and blocks abusive keys
type RateLimitService interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Increment(ctx context.Context, key string, window time.Duration) error
	Block(ctx context.Context, key string, duration time.Duration, reason string) error
	IsBlocked(ctx context.Context, key string) (bool, error)
	GetAttempts(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

type rateLimitService struct {
	redisClient *redis.Client
	logger      *logrus.Logger
	prefix      string
}

// RateLimitConfig configures limits for login and auditee submissions
type RateLimitConfig struct {
	Enabled        bool
	RedisURL       string
	KeyPrefix      string
	LoginAttempts  int
	LoginWindow    time.Duration
	SubmitAttempts int
	SubmitWindow   time.Duration
	BlockDuration  time.Duration
}

// NewRateLimitService connects to Redis, or returns a no-op service when disabled
func NewRateLimitService(config RateLimitConfig, logger *logrus.Logger) (RateLimitService, error) {
	if !config.Enabled {
		logger.Info("Rate limiting disabled")
		return NewNoopRateLimitService(), nil
	}

	opt, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"login_attempts":  config.LoginAttempts,
		"login_window":    config.LoginWindow,
		"submit_attempts": config.SubmitAttempts,
		"submit_window":   config.SubmitWindow,
		"block_duration":  config.BlockDuration,
	}).Info("Rate limiting service initialized")

	return NewRedisRateLimitService(redisClient, config.KeyPrefix, logger), nil
}

// NewRedisRateLimitService wraps an existing client
func NewRedisRateLimitService(client *redis.Client, prefix string, logger *logrus.Logger) RateLimitService {
	if prefix == "" {
		prefix = "auditflow"
	}
	return &rateLimitService{redisClient: client, logger: logger, prefix: prefix}
}

func (s *rateLimitService) key(key string) string {
	return fmt.Sprintf("%s:rl:%s", s.prefix, key)
}

func (s *rateLimitService) blockKey(key string) string {
	return fmt.Sprintf("%s:blocked:%s", s.prefix, key)
}

// CheckLimit reports whether key is still under limit
func (s *rateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	currentCount, err := s.GetAttempts(ctx, key)
	if err != nil {
		return false, err
	}

	isUnderLimit := currentCount < limit

	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"key":         key,
		"current":     currentCount,
		"limit":       limit,
		"under_limit": isUnderLimit,
	}).Debug("Rate limit check")

	return isUnderLimit, nil
}

// Increment bumps the counter and restarts its window
func (s *rateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	k := s.key(key)
	pipeline := s.redisClient.TxPipeline()
	incrCmd := pipeline.Incr(ctx, k)
	pipeline.Expire(ctx, k, window)

	if _, err := pipeline.Exec(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to increment rate limit counter")
		return fmt.Errorf("failed to increment rate limit: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"key":    key,
		"count":  incrCmd.Val(),
		"window": window,
	}).Debug("Rate limit incremented")

	return nil
}

// Block marks key as blocked for duration
func (s *rateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	blockKey := s.blockKey(key)

	pipeline := s.redisClient.TxPipeline()
	pipeline.HSet(ctx, blockKey, map[string]interface{}{
		"reason":     reason,
		"blocked_at": time.Now().Unix(),
		"duration":   duration.Seconds(),
	})
	pipeline.Expire(ctx, blockKey, duration)

	if _, err := pipeline.Exec(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to block key")
		return fmt.Errorf("failed to block key: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"key":      key,
		"duration": duration,
		"reason":   reason,
	}).Warn("Key blocked due to rate limit exceeded")

	return nil
}

// IsBlocked reports whether key is currently blocked
func (s *rateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	exists, err := s.redisClient.Exists(ctx, s.blockKey(key)).Result()
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to check block status")
		return false, fmt.Errorf("failed to check block status: %w", err)
	}
	return exists > 0, nil
}

// GetAttempts returns the current counter for key
func (s *rateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	count, err := s.redisClient.Get(ctx, s.key(key)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		s.logger.WithContext(ctx).WithError(err).Error("Failed to get attempts count")
		return 0, fmt.Errorf("failed to get attempts: %w", err)
	}
	return count, nil
}

// Reset clears the counter for key
func (s *rateLimitService) Reset(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

type noopRateLimitService struct{}

// NewNoopRateLimitService returns a service that never limits
func NewNoopRateLimitService() RateLimitService {
	return &noopRateLimitService{}
}

func (n *noopRateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func (n *noopRateLimitService) Increment(ctx context.Context, key string, window time.Duration) error {
	return nil
}

func (n *noopRateLimitService) Block(ctx context.Context, key string, duration time.Duration, reason string) error {
	return nil
}

func (n *noopRateLimitService) IsBlocked(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (n *noopRateLimitService) GetAttempts(ctx context.Context, key string) (int, error) {
	return 0, nil
}

func (n *noopRateLimitService) Reset(ctx context.Context, key string) error {
	return nil
}
