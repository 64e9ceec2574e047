// Package ratelimit provides fixed-window request limiters.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default limits when none are configured.
const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute
)

// Decision is the result of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func normalize(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return limit, window
}

func decide(count int64, limit int, resetAt time.Time) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// MemoryLimiter is a process-local fixed-window limiter. It is suitable for
// a single gateway instance.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
}

type visitor struct {
	count     int64
	resetTime time.Time
}

// NewMemoryLimiter creates an in-memory limiter. A nil clock uses time.Now.
func NewMemoryLimiter(limit int, window time.Duration, now func() time.Time) *MemoryLimiter {
	limit, window = normalize(limit, window)
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		limit:    limit,
		window:   window,
		now:      now,
		visitors: map[string]*visitor{},
	}
}

func (rl *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	v := rl.visitors[key]
	if v == nil || !now.Before(v.resetTime) {
		v = &visitor{resetTime: now.Add(rl.window)}
		rl.visitors[key] = v
	}
	v.count++

	return decide(v.count, rl.limit, v.resetTime), nil
}

// sweep drops expired windows at most once per window so idle keys do not
// accumulate.
func (rl *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for key, v := range rl.visitors {
		if !now.Before(v.resetTime) {
			delete(rl.visitors, key)
		}
	}
}

// NoOp allows every request.
type NoOp struct{}

func (NoOp) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
