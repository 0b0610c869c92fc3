package api

import (
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedChats bounds the limiter map; it is reset when exceeded.
const maxTrackedChats = 100000

// RateLimiter throttles webhook updates per chat
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit     rate.Limit
	burstSize int
}

// NewRateLimiter creates a new rate limiter. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		limit:     limit,
		burstSize: burst,
	}
}

// AllowChat reports whether an update for chatID may be processed now
func (rl *RateLimiter) AllowChat(botID string, chatID int64) bool {
	if rl.limit == rate.Inf {
		return true
	}
	return rl.getLimiter(botID + ":" + strconv.FormatInt(chatID, 10)).Allow()
}

// getLimiter returns the rate limiter for a specific key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	if len(rl.limiters) >= maxTrackedChats {
		rl.limiters = make(map[string]*rate.Limiter)
	}

	limiter = rate.NewLimiter(rl.limit, rl.burstSize)
	rl.limiters[key] = limiter

	return limiter
}
