package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/ShoppingRoom/config"
)

// setupTestRedis creates a miniredis instance for testing
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

// fixedClock pins the limiter to one window so tests never straddle a boundary
func fixedClock(l *RedisLimiter) {
	at := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return at }
}

func TestRedisLimiter_Allow(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, nil, false)
	fixedClock(limiter)

	ctx := context.Background()
	rule := Rule{Limit: 5, Window: time.Minute}

	for i := 0; i < rule.Limit; i++ {
		allowed, err := limiter.Allow(ctx, "user:123", rule)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "user:123", rule)
	require.NoError(t, err)
	assert.False(t, allowed, "request should be denied after limit exceeded")

	// 其它 key 不受影响
	allowed, err = limiter.Allow(ctx, "user:456", rule)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_NewWindowStartsFresh(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, nil, false)
	fixedClock(limiter)

	ctx := context.Background()
	rule := Rule{Limit: 1, Window: time.Minute}

	allowed, _ := limiter.Allow(ctx, "k", rule)
	assert.True(t, allowed)
	allowed, _ = limiter.Allow(ctx, "k", rule)
	assert.False(t, allowed)

	next := limiter.now().Add(time.Minute)
	limiter.now = func() time.Time { return next }
	allowed, err := limiter.Allow(ctx, "k", rule)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisLimiter_ZeroLimitDisables(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, nil, false)

	for _i := 0; _i < 10; _i++ {
		allowed, err := limiter.Allow(context.Background(), "k", Rule{Limit: 0, Window: time.Minute})
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestRedisLimiter_RemainingAndReset(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, nil, false)
	fixedClock(limiter)

	ctx := context.Background()
	rule := Rule{Limit: 10, Window: time.Minute}

	remaining, err := limiter.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)

	for _i := 0; _i < 3; _i++ {
		_, err := limiter.Allow(ctx, "k", rule)
		require.NoError(t, err)
	}
	remaining, err = limiter.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)

	require.NoError(t, limiter.Reset(ctx, "k", rule))
	remaining, err = limiter.Remaining(ctx, "k", rule)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestRedisLimiter_SetsExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewRedisLimiter(client, nil, false)
	fixedClock(limiter)

	_, err := limiter.Allow(context.Background(), "k", Rule{Limit: 3, Window: time.Minute})
	require.NoError(t, err)

	key := limiter.bucketKey("k", time.Minute)
	assert.Equal(t, 61*time.Second, mr.TTL(key))
}

func TestRedisLimiter_RedisDown(t *testing.T) {
	t.Run("fail open", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		limiter := NewRedisLimiter(client, nil, true)
		mr.Close()

		allowed, err := limiter.Allow(context.Background(), "k", Rule{Limit: 1, Window: time.Minute})
		assert.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("fail closed", func(t *testing.T) {
		client, mr := setupTestRedis(t)
		limiter := NewRedisLimiter(client, nil, false)
		mr.Close()

		allowed, err := limiter.Allow(context.Background(), "k", Rule{Limit: 1, Window: time.Minute})
		assert.Error(t, err)
		assert.False(t, allowed)
	})
}

func TestRedisLimiter_Concurrent(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, nil, false)
	fixedClock(limiter)

	ctx := context.Background()
	rule := Rule{Limit: 50, Window: time.Minute}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			allowed, err := limiter.Allow(ctx, "shared", rule)
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			if allowed {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, rule.Limit, granted)
}

func TestRuleFor(t *testing.T) {
	cfg := &config.RateLimitConfig{APIPerMinute: 120, JoinPerMinute: 10}

	tests := []struct {
		endpoint string
		want     Rule
	}{
		{EndpointAPI, Rule{Limit: 120, Window: time.Minute}},
		{EndpointJoin, Rule{Limit: 10, Window: time.Minute}},
		{"other", Rule{Limit: 100, Window: time.Minute}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("endpoint_%s", tt.endpoint), func(t *testing.T) {
			assert.Equal(t, tt.want, RuleFor(tt.endpoint, cfg))
		})
	}
}
