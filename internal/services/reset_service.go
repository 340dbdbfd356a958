package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/veridia/wellguard/internal/auth"
	"github.com/veridia/wellguard/internal/config"
	"github.com/veridia/wellguard/internal/metrics"
	"github.com/veridia/wellguard/internal/models"
	pkglogger "github.com/veridia/wellguard/pkg/logger"
)

// ResetTokenRepository defines the interface for reset token database
// operations
type ResetTokenRepository interface {
	InvalidateAndCreate(ctx context.Context, token *models.PasswordResetToken) (*models.PasswordResetToken, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	MarkInvalid(ctx context.Context, tokenID string) error
	Consume(ctx context.Context, tokenID string) error
}

// ResetUserRepository defines the user operations the reset flow needs
type ResetUserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
}

// SessionRevoker revokes sessions as part of the reset cascade
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// ResetService implements the password reset flow: request, verify,
// consume. Tokens are stored hashed; the plaintext exists only in the
// email sent to the account holder.
type ResetService struct {
	tokenRepo ResetTokenRepository
	userRepo  ResetUserRepository
	sessions  SessionRevoker
	lockouts  *LockoutService
	mailer    SecurityMailer
	timing    *auth.TimingDelay
	cfg       config.SecurityConfig
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
	metrics   *metrics.Metrics
}

// NewResetService creates a new ResetService
func NewResetService(
	tokenRepo ResetTokenRepository,
	userRepo ResetUserRepository,
	sessions SessionRevoker,
	lockouts *LockoutService,
	mailer SecurityMailer,
	timing *auth.TimingDelay,
	cfg config.SecurityConfig,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *ResetService {
	return &ResetService{
		tokenRepo: tokenRepo,
		userRepo:  userRepo,
		sessions:  sessions,
		lockouts:  lockouts,
		mailer:    mailer,
		timing:    timing,
		cfg:       cfg,
		logger:    logger,
		audit:     audit,
		metrics:   m,
	}
}

// generateResetToken returns the plaintext token and its storage hash.
// 32 random bytes hex-encoded; only the SHA-256 hex digest is stored.
func generateResetToken() (plaintext, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	plaintext = hex.EncodeToString(raw)
	digest := sha256.Sum256([]byte(plaintext))
	return plaintext, hex.EncodeToString(digest[:]), nil
}

func hashResetToken(plaintext string) string {
	digest := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(digest[:])
}

// RequestReset issues a reset token for the account, if one exists and
// is not locked out. The outcome is indistinguishable to the caller
// either way: same return, same latency envelope. Any previously issued
// tokens become invalid the moment a new one is made.
func (s *ResetService) RequestReset(ctx context.Context, email, ipAddress string) error {
	defer s.timing.Wait()

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("reset requested for unknown email",
				slog.String("email", pkglogger.SanitizedEmail(email)),
				slog.String("ip_address", ipAddress))
			return nil
		}
		return fmt.Errorf("failed to look up user: %w", err)
	}

	// A locked account gets no token and no email. Prior tokens stay
	// untouched; the caller still sees the fixed success response.
	lockout, err := s.lockouts.ActiveLockout(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to check lockout: %w", err)
	}
	if lockout != nil {
		s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
			EventType: pkglogger.EventResetRequested,
			UserID:    user.ID,
			Email:     user.Email,
			IPAddress: ipAddress,
			Severity:  "medium",
			Metadata:  map[string]string{"suppressed": "account_locked"},
		})
		return nil
	}

	plaintext, tokenHash, err := generateResetToken()
	if err != nil {
		return err
	}

	token := &models.PasswordResetToken{
		UserID:           user.ID,
		TokenHash:        tokenHash,
		ExpiresAt:        time.Now().Add(s.cfg.ResetTokenTTL),
		RequestedByEmail: email,
		IPAddress:        ipAddress,
	}
	created, err := s.tokenRepo.InvalidateAndCreate(ctx, token)
	if errors.Is(err, models.ErrConflict) {
		// A concurrent request claimed the one-usable-token slot between
		// our invalidate and insert. Latest request wins: supersede again.
		created, err = s.tokenRepo.InvalidateAndCreate(ctx, token)
	}
	if err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}

	s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
		EventType: pkglogger.EventResetRequested,
		UserID:    user.ID,
		Email:     user.Email,
		IPAddress: ipAddress,
		Severity:  "medium",
	})
	s.metrics.ResetTokensIssuedTotal.Inc()

	userEmail := user.Email
	expiresAt := created.ExpiresAt
	dispatchAsync(s.logger, "reset_email", func(ctx context.Context) error {
		return s.mailer.SendResetEmail(ctx, userEmail, plaintext, expiresAt)
	})

	return nil
}

// VerifyToken checks a plaintext token without consuming it. The
// returned errors name the token's own state (invalid, expired, used)
// and never account existence. A token for a locked account verifies
// as locked, carrying the unlock time.
func (s *ResetService) VerifyToken(ctx context.Context, plaintext string) (*models.PasswordResetToken, error) {
	token, err := s.tokenRepo.GetByTokenHash(ctx, hashResetToken(plaintext))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if token.IsUsed() {
		return nil, models.ErrTokenUsed
	}
	if !token.IsValid {
		return nil, models.ErrTokenInvalidated
	}
	if token.IsExpired() {
		// Flag it on read so later lookups short-circuit. Best effort:
		// the expiry check already rejected it.
		if err := s.tokenRepo.MarkInvalid(ctx, token.ID); err != nil {
			s.logger.Error("failed to mark expired token invalid",
				slog.String("token_id", token.ID),
				slog.Any("error", err))
		}
		return nil, models.ErrTokenExpired
	}

	lockout, err := s.lockouts.ActiveLockout(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	if lockout != nil {
		return nil, &models.LockedError{UnlockAt: lockout.UnlockAt}
	}

	return token, nil
}

// ConsumeToken completes the reset: the token is atomically marked used,
// the credential is replaced, every active session is revoked, and any
// lockout clears. Two concurrent consumers of the same token resolve to
// exactly one success.
func (s *ResetService) ConsumeToken(ctx context.Context, plaintext, newPassword, ipAddress string) error {
	token, err := s.VerifyToken(ctx, plaintext)
	if err != nil {
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// Claim the token before touching the credential so a concurrent
	// consumer cannot double-apply.
	if err := s.tokenRepo.Consume(ctx, token.ID); err != nil {
		return err
	}

	if err := s.userRepo.UpdatePasswordHash(ctx, token.UserID, string(passwordHash)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	revoked, err := s.sessions.RevokeAllForUser(ctx, token.UserID)
	if err != nil {
		// The credential already changed; surface the failure but do not
		// pretend the reset did not happen.
		s.logger.Error("failed to revoke sessions after password reset",
			slog.String("user_id", token.UserID),
			slog.Any("error", err))
	} else if revoked > 0 {
		s.metrics.SessionsRevokedTotal.WithLabelValues("password_reset").Add(float64(revoked))
	}

	if err := s.lockouts.ClearLockout(ctx, token.UserID, models.UnlockMethodPasswordReset); err != nil {
		s.logger.Error("failed to clear lockout after password reset",
			slog.String("user_id", token.UserID),
			slog.Any("error", err))
	}

	s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
		EventType: pkglogger.EventResetCompleted,
		UserID:    token.UserID,
		IPAddress: ipAddress,
		Severity:  "high",
		Metadata: map[string]string{
			"sessions_revoked": fmt.Sprintf("%d", revoked),
		},
	})
	s.metrics.ResetTokensUsedTotal.Inc()

	user, err := s.userRepo.GetByID(ctx, token.UserID)
	if err != nil {
		s.logger.Error("failed to load user for reset confirmation",
			slog.String("user_id", token.UserID),
			slog.Any("error", err))
		return nil
	}

	userEmail := user.Email
	dispatchAsync(s.logger, "reset_confirmation", func(ctx context.Context) error {
		return s.mailer.SendResetConfirmation(ctx, userEmail)
	})

	return nil
}
