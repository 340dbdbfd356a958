package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/veridia/wellguard/internal/config"
	"github.com/veridia/wellguard/internal/metrics"
	"github.com/veridia/wellguard/internal/models"
	pkglogger "github.com/veridia/wellguard/pkg/logger"
)

// LockoutRepository defines the interface for lockout database operations
type LockoutRepository interface {
	GetActiveByUserID(ctx context.Context, userID string) (*models.AccountLockout, error)
	Create(ctx context.Context, lockout *models.AccountLockout) (*models.AccountLockout, error)
	Deactivate(ctx context.Context, lockoutID, unlockMethod string, approvedBy *string) error
	DeactivateForUser(ctx context.Context, userID, unlockMethod string) (int64, error)
}

// LockoutService owns the Unlocked -> Locked -> Unlocked state machine.
// Expiry is evaluated lazily at the point of use; no background job
// unlocks accounts.
type LockoutService struct {
	repo    LockoutRepository
	mailer  SecurityMailer
	cfg     config.SecurityConfig
	logger  *slog.Logger
	audit   *pkglogger.AuditLogger
	metrics *metrics.Metrics
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(
	repo LockoutRepository,
	mailer SecurityMailer,
	cfg config.SecurityConfig,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *LockoutService {
	return &LockoutService{
		repo:    repo,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
		audit:   audit,
		metrics: m,
	}
}

// ActiveLockout returns the user's active lockout, or nil when the user
// is unlocked. A lockout whose unlock time has passed is cleared here,
// on read, and reported as absent.
func (s *LockoutService) ActiveLockout(ctx context.Context, userID string) (*models.AccountLockout, error) {
	lockout, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lockout state: %w", err)
	}

	if lockout.Expired(time.Now()) {
		if err := s.repo.Deactivate(ctx, lockout.ID, models.UnlockMethodExpired, nil); err != nil &&
			!errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to expire lockout: %w", err)
		}
		s.metrics.LockoutsClearedTotal.WithLabelValues(models.UnlockMethodExpired).Inc()
		return nil, nil
	}

	return lockout, nil
}

// LockAccount creates a lockout for the user after the failure
// threshold was crossed. When a concurrent request wins the race, the
// existing lockout is returned instead; either way the caller gets the
// lockout that is now in force.
func (s *LockoutService) LockAccount(ctx context.Context, user *models.User, failedCount int, ipAddress string) (*models.AccountLockout, error) {
	lockout := &models.AccountLockout{
		UserID:              user.ID,
		Email:               user.Email,
		Reason:              "failed_login_threshold",
		FailedAttemptsCount: failedCount,
		UnlockAt:            time.Now().Add(s.cfg.LockoutDuration),
	}

	created, err := s.repo.Create(ctx, lockout)
	if err != nil {
		if errors.Is(err, models.ErrLockoutActive) {
			existing, getErr := s.repo.GetActiveByUserID(ctx, user.ID)
			if getErr != nil {
				return nil, fmt.Errorf("lockout exists but could not be read: %w", getErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create lockout: %w", err)
	}

	s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
		EventType: pkglogger.EventLockoutCreated,
		UserID:    user.ID,
		Email:     user.Email,
		IPAddress: ipAddress,
		Severity:  "high",
		Metadata: map[string]string{
			"failed_attempts": fmt.Sprintf("%d", failedCount),
			"unlock_at":       created.UnlockAt.UTC().Format(time.RFC3339),
		},
	})
	s.metrics.LockoutsCreatedTotal.Inc()

	// The lockout stands regardless of whether the notice reaches the user.
	email := user.Email
	unlockAt := created.UnlockAt
	dispatchAsync(s.logger, "lockout_notice", func(ctx context.Context) error {
		return s.mailer.SendLockoutNotice(ctx, email, unlockAt)
	})

	return created, nil
}

// ClearLockout deactivates any active lockout for the user, recording
// how it was unlocked. Clearing an already-unlocked account is a no-op.
func (s *LockoutService) ClearLockout(ctx context.Context, userID, unlockMethod string) error {
	cleared, err := s.repo.DeactivateForUser(ctx, userID, unlockMethod)
	if err != nil {
		return fmt.Errorf("failed to clear lockout: %w", err)
	}

	if cleared > 0 {
		s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
			EventType: pkglogger.EventLockoutCleared,
			UserID:    userID,
			Severity:  "medium",
			Metadata:  map[string]string{"unlock_method": unlockMethod},
		})
		s.metrics.LockoutsClearedTotal.WithLabelValues(unlockMethod).Inc()
	}

	return nil
}

// ManualUnlock clears a lockout on behalf of an authorized operator,
// stamping who approved it.
func (s *LockoutService) ManualUnlock(ctx context.Context, userID, approvedBy string) error {
	lockout, err := s.repo.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to read lockout state: %w", err)
	}

	if err := s.repo.Deactivate(ctx, lockout.ID, models.UnlockMethodManual, &approvedBy); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}

	s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
		EventType: pkglogger.EventLockoutCleared,
		UserID:    userID,
		Severity:  "medium",
		Metadata: map[string]string{
			"unlock_method": models.UnlockMethodManual,
			"approved_by":   approvedBy,
		},
	})
	s.metrics.LockoutsClearedTotal.WithLabelValues(models.UnlockMethodManual).Inc()

	return nil
}
