package services

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/securecrop/backend/internal/config"
)

// Limiter bounds password reset issuance per identity over a window.
type Limiter interface {
	Allow(ctx context.Context, identity string) bool
}

// ResetLimiter is a Redis fixed-window counter keyed by identity (normalized
// email or origin IP). It fails open: an unreachable Redis must not take the
// reset flow down with it.
type ResetLimiter struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewResetLimiter(redisClient *redis.Client, cfg *config.Config) *ResetLimiter {
	return &ResetLimiter{redis: redisClient, cfg: cfg}
}

// Allow reports whether another issuance attempt is permitted for identity.
func (l *ResetLimiter) Allow(ctx context.Context, identity string) bool {
	key := fmt.Sprintf("reset_limit:%s", identity)

	count, err := l.redis.Get(ctx, key).Int()
	if err == redis.Nil {
		if err := l.redis.Set(ctx, key, 1, l.cfg.ResetRateLimitWindow).Err(); err != nil {
			log.Printf("WARN: reset limiter failed to set key: %v", err)
		}
		return true
	} else if err != nil {
		log.Printf("WARN: reset limiter failed to get key: %v", err)
		return true
	}

	if count >= l.cfg.ResetRateLimitRequests {
		return false
	}

	if _, err := l.redis.Incr(ctx, key).Result(); err != nil {
		log.Printf("WARN: reset limiter failed to increment key: %v", err)
	}
	return true
}
