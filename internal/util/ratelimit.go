package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls evenly so the combined worker population stays
// under the brokerage's per-minute request budget. Each caller is handed
// the next free slot; a slot in the past means no waiting.
type RateLimiter struct {
	mu    sync.Mutex
	every time.Duration
	next  time.Time
}

// NewRateLimiter creates a limiter allowing perMinute calls per minute.
// The first call goes through immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{every: time.Minute / time.Duration(perMinute)}
}

// Wait blocks until the caller's slot arrives or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	now := time.Now()
	slot := rl.next
	if slot.Before(now) {
		slot = now
	}
	rl.next = slot.Add(rl.every)
	rl.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
