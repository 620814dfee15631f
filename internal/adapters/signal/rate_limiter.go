package signal

import (
	"sync"
	"time"

	"github.com/dkeye/tempvoice/internal/clock"
	"github.com/dkeye/tempvoice/internal/domain"
)

// RateLimiter allows each user at most limit attempts in any sliding
// window of interval. A non-positive limit disables it.
type RateLimiter struct {
	clock    clock.Clock
	limit    int
	interval time.Duration

	mu      sync.Mutex
	history map[domain.UserID][]time.Time
}

func NewRateLimiter(clk clock.Clock, limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		clock:    clk,
		limit:    limit,
		interval: interval,
		history:  make(map[domain.UserID][]time.Time),
	}
}

func (rl *RateLimiter) Allow(uid domain.UserID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.interval)
	fresh := rl.history[uid][:0]
	for _, t := range rl.history[uid] {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}
	rl.history[uid] = append(fresh, now)
	return true
}
