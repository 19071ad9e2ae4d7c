package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter is a fixed-window limiter for single-node deployments
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (m *MemoryLimiter) CheckUserLimit(ctx context.Context, userID string, policy Policy) (*RateLimitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	key := userKey(userID, policy.Action)
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(time.Duration(policy.WindowSeconds) * time.Second)}
		m.windows[key] = w
	}
	w.count++

	result := &RateLimitResult{
		Allowed:      w.count <= policy.Limit,
		CurrentCount: w.count,
		Limit:        policy.Limit,
	}
	if !result.Allowed {
		retry := w.resetAt.Sub(now)
		result.RetryAfterSeconds = int64((retry + time.Second - 1) / time.Second)
	}
	return result, nil
}
