package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredPurger removes rows past their retention horizon
type ExpiredPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically purges expired login attempts and reset
// tokens. Purging is retention housekeeping only: expiry semantics are
// enforced lazily at read time, so a missed sweep never weakens an
// invariant.
type CleanupManager struct {
	attempts ExpiredPurger
	tokens   ExpiredPurger
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attempts ExpiredPurger,
	tokens ExpiredPurger,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attempts: attempts,
		tokens:   tokens,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. Blocks until Stop or context
// cancellation; callers run it on its own goroutine.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	attempts, err := cm.attempts.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge expired login attempts", slog.Any("error", err))
	}

	tokens, err := cm.tokens.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge expired reset tokens", slog.Any("error", err))
	}

	if attempts > 0 || tokens > 0 {
		cm.logger.Info("retention cleanup completed",
			slog.Int64("login_attempts_purged", attempts),
			slog.Int64("reset_tokens_purged", tokens))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
