package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter implements Limiter with a mutex-guarded map. Entries are
// advisory only; any read of an expired entry is treated as a fresh
// window, so the background sweep is cleanup, not correctness.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *slog.Logger
	now     func() time.Time
}

// NewMemoryLimiter creates a new in-memory limiter.
func NewMemoryLimiter(logger *slog.Logger) *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*entry),
		logger:  logger,
		now:     time.Now,
	}
}

// Check opens or advances the window for the identifier. Once the count
// reaches the maximum, further calls are denied without incrementing the
// counter, and ResetAt stays fixed for the remainder of the window.
func (l *MemoryLimiter) Check(ctx context.Context, identifier string, cfg Config) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identifier]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(cfg.Window)}
		l.entries[identifier] = e
		return Result{Allowed: true, Remaining: cfg.MaxRequests - 1, ResetAt: e.resetAt}, nil
	}

	if e.count >= cfg.MaxRequests {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.resetAt}, nil
	}

	e.count++
	return Result{Allowed: true, Remaining: cfg.MaxRequests - e.count, ResetAt: e.resetAt}, nil
}

// Sweep removes entries whose window has passed and returns how many
// were removed.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on a fixed interval until the context is done.
func (l *MemoryLimiter) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				l.logger.Debug("rate limit entries swept", slog.Int("removed", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Size returns the current number of tracked identifiers.
func (l *MemoryLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
