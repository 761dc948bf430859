package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/avolkova/quizauth/internal/util"
)

var ErrRateLimited = errors.New("too many login attempts")

const loginAttemptKeyPrefix = "login_attempts:"

// LoginLimiter counts failed login attempts per identifier in Redis with a
// cooldown TTL. Missing keys read as zero and do not reveal account
// existence.
type LoginLimiter struct {
	client *redis.Client
	limit  int
	block  time.Duration
}

func NewLoginLimiter(client *redis.Client, cfg *util.RateLimiterConfig) *LoginLimiter {
	return &LoginLimiter{
		client: client,
		limit:  cfg.LoginAttemptLimit,
		block:  cfg.LoginBlockTime,
	}
}

func (l *LoginLimiter) Check(ctx context.Context, identifier string) error {
	count, err := l.client.Get(ctx, loginAttemptKeyPrefix+identifier).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("login limiter: %w", err)
	}
	if count >= int64(l.limit) {
		return ErrRateLimited
	}
	return nil
}

func (l *LoginLimiter) RecordFailure(ctx context.Context, identifier string) error {
	key := loginAttemptKeyPrefix + identifier
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("login limiter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.block).Err(); err != nil {
			return fmt.Errorf("login limiter: %w", err)
		}
	}
	return nil
}

func (l *LoginLimiter) Reset(ctx context.Context, identifier string) error {
	if err := l.client.Del(ctx, loginAttemptKeyPrefix+identifier).Err(); err != nil {
		return fmt.Errorf("login limiter: %w", err)
	}
	return nil
}
