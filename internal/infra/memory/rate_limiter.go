package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-client counter for single-node
// deployments; the redis limiter replaces it when redis is configured.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*clientWindow
}

type clientWindow struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*clientWindow),
	}
}

func (l *RateLimiter) Allow(_ context.Context, clientID string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	win, ok := l.windows[clientID]
	if !ok || now.After(win.resetAt) {
		l.windows[clientID] = &clientWindow{count: 1, resetAt: now.Add(l.window)}
		return true, 0, nil
	}
	win.count++
	if win.count > l.limit {
		return false, win.resetAt.Sub(now), nil
	}
	return true, 0, nil
}
