// Package ratelimit throttles repeated attempts per key, such as admin logins
// per email address.
package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/upb/org-control-plane/config"
	"go.uber.org/zap"
)

// Limiter decides whether another attempt for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	// Reset forgets the attempts recorded for key
	Reset(ctx context.Context, key string) error
}

// NopLimiter allows everything
type NopLimiter struct{}

func (NopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NopLimiter) Reset(context.Context, string) error         { return nil }

// New selects a limiter for cfg: none when disabled, Redis when an address is
// configured, in-memory otherwise. The returned stop function releases it.
func New(cfg config.RateLimitConfig, logger *zap.Logger) (Limiter, func() error) {
	if !cfg.Enabled {
		return NopLimiter{}, func() error { return nil }
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		logger.Info("login rate limiting backed by redis",
			zap.String("addr", cfg.RedisAddr),
			zap.Int("attempts", cfg.Attempts),
			zap.Duration("window", cfg.Window))
		return NewRedisLimiter(client, "login_attempts:", cfg.Attempts, cfg.Window), client.Close
	}

	logger.Info("login rate limiting in memory",
		zap.Int("attempts", cfg.Attempts),
		zap.Duration("window", cfg.Window))
	limiter := NewMemoryLimiter(cfg.Attempts, cfg.Window, 5*time.Minute)
	return limiter, func() error {
		limiter.Stop()
		return nil
	}
}
