package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/config"
)

// Limiter defines the rate limiting operations used by the HTTP layer
type Limiter interface {
	// Allow reports whether one more request for key fits in the current window
	Allow(ctx context.Context, key string, rule Rule) (bool, error)

	// Remaining returns how many requests are left for key in the current window
	Remaining(ctx context.Context, key string, rule Rule) (int, error)

	// Reset clears the counter of the current window
	Reset(ctx context.Context, key string, rule Rule) error
}

// Rule is a fixed-window limit
type Rule struct {
	Limit  int
	Window time.Duration
}

// Endpoint groups sharing a limit
const (
	EndpointAPI  = "api"
	EndpointJoin = "join"
)

// RuleFor returns the rule configured for an endpoint group.
// Unknown groups fall back to 100 requests per minute.
func RuleFor(endpoint string, cfg *config.RateLimitConfig) Rule {
	switch endpoint {
	case EndpointAPI:
		return Rule{Limit: cfg.APIPerMinute, Window: time.Minute}
	case EndpointJoin:
		return Rule{Limit: cfg.JoinPerMinute, Window: time.Minute}
	default:
		return Rule{Limit: 100, Window: time.Minute}
	}
}

// RedisLimiter counts requests per window bucket in Redis with INCR + EXPIRE,
// so limits are shared by every process that uses the same Redis.
type RedisLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	failOpen    bool // allow requests when Redis is unavailable
	now         func() time.Time
}

func NewRedisLimiter(redisClient *redis.Client, logger *zap.Logger, failOpen bool) *RedisLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		redisClient: redisClient,
		logger:      logger,
		failOpen:    failOpen,
		now:         time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule) (bool, error) {
	if rule.Limit <= 0 {
		return true, nil
	}
	bucketKey := l.bucketKey(key, rule.Window)

	pipe := l.redisClient.Pipeline()
	incrCmd := pipe.Incr(ctx, bucketKey)
	pipe.Expire(ctx, bucketKey, rule.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("rate limit check failed",
			zap.String("key", bucketKey),
			zap.Error(err),
		)
		if l.failOpen {
			l.logger.Warn("rate limit check failed, allowing request (fail-open)", zap.String("key", key))
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incrCmd.Val()
	allowed := count <= int64(rule.Limit)
	if !allowed {
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit),
			zap.Duration("window", rule.Window),
		)
	}
	return allowed, nil
}

func (l *RedisLimiter) Remaining(ctx context.Context, key string, rule Rule) (int, error) {
	count, err := l.redisClient.Get(ctx, l.bucketKey(key, rule.Window)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return rule.Limit, nil
		}
		return 0, fmt.Errorf("failed to get remaining requests: %w", err)
	}
	return max(rule.Limit-int(count), 0), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string, rule Rule) error {
	if err := l.redisClient.Del(ctx, l.bucketKey(key, rule.Window)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit for key %s: %w", key, err)
	}
	l.logger.Info("rate limit reset", zap.String("key", key))
	return nil
}

// bucketKey includes the index of the current window so every window starts from zero
func (l *RedisLimiter) bucketKey(key string, window time.Duration) string {
	secs := int64(window / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return fmt.Sprintf("ratelimit:%s:%d", key, l.now().Unix()/secs)
}
