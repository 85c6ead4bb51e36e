package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shellbound/focuscircle/internal/config"
)

const keyJoinUser = "circle:join:user:%s"

// JoinLimiter bounds how fast one user can attempt joins, which also
// bounds invite code guessing.
type JoinLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewJoinLimiter(cfg config.Config) *JoinLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" || cfg.JoinRatePerMinute <= 0 || cfg.JoinBurst <= 0 {
		return &JoinLimiter{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     strings.TrimSpace(cfg.RedisPassword),
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	return &JoinLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    float64(cfg.JoinRatePerMinute) / 60,
		burst:   cfg.JoinBurst,
	}
}

func (l *JoinLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowUser reports whether the user may attempt another join. Redis
// failures fail open; joins degrade to unthrottled rather than broken.
func (l *JoinLimiter) AllowUser(ctx context.Context, userID string) bool {
	if !l.Enabled() {
		return true
	}
	allowed, err := l.bucket.Allow(ctx, fmt.Sprintf(keyJoinUser, strings.TrimSpace(userID)), l.rate, l.burst)
	if err != nil {
		return true
	}
	return allowed
}
