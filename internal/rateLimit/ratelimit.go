package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/ticket-marketplace/internal/adapters/redis"
	"github.com/redis/go-redis/v9"
)

// Limits are fixed window budgets for mutating requests.
type Limits struct {
	PerPrincipal int
	PerIP        int
	Window       time.Duration
}

// Hit is one mutating request. Counters are kept per route, so a buyer
// placing orders and an organizer publishing events draw on separate budgets.
type Hit struct {
	Route       string
	ClientIP    string
	PrincipalID string
}

func (h Hit) ipKey() string {
	return "rl:ip:" + h.Route + ":" + h.ClientIP
}

func (h Hit) principalKey() string {
	return "rl:principal:" + h.Route + ":" + h.PrincipalID
}

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow charges h against its client address and, for an authenticated
// caller, its principal. Both counters move in one round trip. A window
// starts with its first hit and later hits do not extend it. Redis errors
// fail open.
func (rl *RateLimiter) Allow(ctx context.Context, h Hit, limits Limits) bool {
	pipe := rl.redis.Client().Pipeline()

	ip := pipe.Incr(ctx, h.ipKey())
	pipe.ExpireNX(ctx, h.ipKey(), limits.Window)

	var principal *redis.IntCmd
	if h.PrincipalID != "" {
		principal = pipe.Incr(ctx, h.principalKey())
		pipe.ExpireNX(ctx, h.principalKey(), limits.Window)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}
	if ip.Val() > int64(limits.PerIP) {
		return false
	}
	return principal == nil || principal.Val() <= int64(limits.PerPrincipal)
}
