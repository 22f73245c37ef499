package limiter

import (
	"context"
	"sync"
	"time"
)

type memoryWindow struct {
	count   int
	expires time.Time
}

// MemoryLimiter is an in-process fixed window counter. Suitable for
// single-instance deployments without Redis; counters reset on restart.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	cfg     Config
	nowTime func() time.Time
}

// NewMemoryLimiter creates an in-memory per-address limiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]memoryWindow),
		cfg:     cfg,
		nowTime: time.Now,
	}
}

// Check records one attempt for addr and reports whether it is still within
// the configured limit.
func (l *MemoryLimiter) Check(_ context.Context, addr string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowTime()
	window, ok := l.windows[addr]
	if !ok || now.After(window.expires) {
		window = memoryWindow{expires: now.Add(l.cfg.Window)}
	}
	window.count++
	l.windows[addr] = window

	return window.count <= l.cfg.MaxAttempts, nil
}
