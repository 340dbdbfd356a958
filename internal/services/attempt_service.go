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

// LoginAttemptRepository defines the interface for login attempt
// database operations
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) (string, error)
	CountRecentFailures(ctx context.Context, userID string, since time.Time) (int, error)
	MarkTriggeredLockout(ctx context.Context, attemptID string) error
}

// UserRepository defines the subset of user lookups the tracker needs
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AttemptResult tells the caller whether the account is now locked and,
// if not, how many attempts remain before it will be.
type AttemptResult struct {
	Locked            bool
	UnlockAt          *time.Time
	RemainingAttempts *int
}

// AttemptService records every login attempt and drives the lockout
// state machine from the recent-failure count.
type AttemptService struct {
	attemptRepo LoginAttemptRepository
	userRepo    UserRepository
	lockouts    *LockoutService
	cfg         config.SecurityConfig
	logger      *slog.Logger
	audit       *pkglogger.AuditLogger
	metrics     *metrics.Metrics
}

// NewAttemptService creates a new AttemptService
func NewAttemptService(
	attemptRepo LoginAttemptRepository,
	userRepo UserRepository,
	lockouts *LockoutService,
	cfg config.SecurityConfig,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		userRepo:    userRepo,
		lockouts:    lockouts,
		cfg:         cfg,
		logger:      logger,
		audit:       audit,
		metrics:     m,
	}
}

// Record tracks a login attempt. Every attempt is recorded, known email
// or not; the lockout path only exists for known users. A locked account
// short-circuits before any further processing.
func (s *AttemptService) Record(ctx context.Context, email string, success bool, ipAddress, userAgent string, failureReason *string) (*AttemptResult, error) {
	reason := ""
	if failureReason != nil {
		reason = *failureReason
	}
	s.audit.LogLoginAttempt(email, ipAddress, success, reason)

	outcome := "failure"
	if success {
		outcome = "success"
	}
	s.metrics.LoginAttemptsTotal.WithLabelValues(outcome).Inc()

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown email: recorded for audit and enumeration detection
			// only. There is no account to lock.
			s.recordAttempt(ctx, email, nil, success, ipAddress, userAgent, failureReason)
			return &AttemptResult{}, nil
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	lockout, err := s.lockouts.ActiveLockout(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if lockout != nil {
		s.recordAttempt(ctx, email, &user.ID, success, ipAddress, userAgent, failureReason)
		unlockAt := lockout.UnlockAt
		return &AttemptResult{Locked: true, UnlockAt: &unlockAt}, nil
	}

	attemptID := s.recordAttempt(ctx, email, &user.ID, success, ipAddress, userAgent, failureReason)

	if success {
		if err := s.lockouts.ClearLockout(ctx, user.ID, models.UnlockMethodLoginSuccess); err != nil {
			s.logger.Error("failed to clear lockout after successful login",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}
		return &AttemptResult{}, nil
	}

	since := time.Now().Add(-s.cfg.FailureWindow)
	failures, err := s.attemptRepo.CountRecentFailures(ctx, user.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent failures: %w", err)
	}

	if failures >= s.cfg.FailureThreshold {
		created, err := s.lockouts.LockAccount(ctx, user, failures, ipAddress)
		if err != nil {
			return nil, err
		}

		if attemptID != "" {
			if err := s.attemptRepo.MarkTriggeredLockout(ctx, attemptID); err != nil {
				s.logger.Error("failed to flag lockout-triggering attempt",
					slog.String("attempt_id", attemptID),
					slog.Any("error", err))
			}
		}

		unlockAt := created.UnlockAt
		return &AttemptResult{Locked: true, UnlockAt: &unlockAt}, nil
	}

	remaining := s.cfg.FailureThreshold - failures
	return &AttemptResult{RemainingAttempts: &remaining}, nil
}

// recordAttempt writes the audit row. The audit insert failing must not
// fail the caller's request; it is logged and the id reported empty.
func (s *AttemptService) recordAttempt(ctx context.Context, email string, userID *string, success bool, ipAddress, userAgent string, failureReason *string) string {
	attempt := &models.LoginAttempt{
		Email:         email,
		UserID:        userID,
		Success:       success,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		FailureReason: failureReason,
		ExpiresAt:     time.Now().Add(s.cfg.FailureWindow * 6), // retained well past the counting window
	}

	id, err := s.attemptRepo.Record(ctx, attempt)
	if err != nil {
		s.logger.Error("failed to record login attempt",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return ""
	}
	return id
}
