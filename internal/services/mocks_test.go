package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/veridia/wellguard/internal/config"
	"github.com/veridia/wellguard/internal/metrics"
	"github.com/veridia/wellguard/internal/models"
	pkglogger "github.com/veridia/wellguard/pkg/logger"
)

// Func-field mocks: each test assigns only the calls it expects.
// An unassigned func panics, which is the failure we want.

type mockLockoutRepo struct {
	GetActiveByUserIDFunc func(ctx context.Context, userID string) (*models.AccountLockout, error)
	CreateFunc            func(ctx context.Context, lockout *models.AccountLockout) (*models.AccountLockout, error)
	DeactivateFunc        func(ctx context.Context, lockoutID, unlockMethod string, approvedBy *string) error
	DeactivateForUserFunc func(ctx context.Context, userID, unlockMethod string) (int64, error)
}

func (m *mockLockoutRepo) GetActiveByUserID(ctx context.Context, userID string) (*models.AccountLockout, error) {
	return m.GetActiveByUserIDFunc(ctx, userID)
}

func (m *mockLockoutRepo) Create(ctx context.Context, lockout *models.AccountLockout) (*models.AccountLockout, error) {
	return m.CreateFunc(ctx, lockout)
}

func (m *mockLockoutRepo) Deactivate(ctx context.Context, lockoutID, unlockMethod string, approvedBy *string) error {
	return m.DeactivateFunc(ctx, lockoutID, unlockMethod, approvedBy)
}

func (m *mockLockoutRepo) DeactivateForUser(ctx context.Context, userID, unlockMethod string) (int64, error) {
	return m.DeactivateForUserFunc(ctx, userID, unlockMethod)
}

type mockAttemptRepo struct {
	RecordFunc               func(ctx context.Context, attempt *models.LoginAttempt) (string, error)
	CountRecentFailuresFunc  func(ctx context.Context, userID string, since time.Time) (int, error)
	MarkTriggeredLockoutFunc func(ctx context.Context, attemptID string) error
}

func (m *mockAttemptRepo) Record(ctx context.Context, attempt *models.LoginAttempt) (string, error) {
	return m.RecordFunc(ctx, attempt)
}

func (m *mockAttemptRepo) CountRecentFailures(ctx context.Context, userID string, since time.Time) (int, error) {
	return m.CountRecentFailuresFunc(ctx, userID, since)
}

func (m *mockAttemptRepo) MarkTriggeredLockout(ctx context.Context, attemptID string) error {
	return m.MarkTriggeredLockoutFunc(ctx, attemptID)
}

type mockUserRepo struct {
	GetByEmailFunc         func(ctx context.Context, email string) (*models.User, error)
	GetByIDFunc            func(ctx context.Context, id string) (*models.User, error)
	UpdatePasswordHashFunc func(ctx context.Context, userID, passwordHash string) error
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.GetByEmailFunc(ctx, email)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return m.GetByIDFunc(ctx, id)
}

func (m *mockUserRepo) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	return m.UpdatePasswordHashFunc(ctx, userID, passwordHash)
}

type mockTokenRepo struct {
	InvalidateAndCreateFunc func(ctx context.Context, token *models.PasswordResetToken) (*models.PasswordResetToken, error)
	GetByTokenHashFunc      func(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	MarkInvalidFunc         func(ctx context.Context, tokenID string) error
	ConsumeFunc             func(ctx context.Context, tokenID string) error
}

func (m *mockTokenRepo) InvalidateAndCreate(ctx context.Context, token *models.PasswordResetToken) (*models.PasswordResetToken, error) {
	return m.InvalidateAndCreateFunc(ctx, token)
}

func (m *mockTokenRepo) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	return m.GetByTokenHashFunc(ctx, tokenHash)
}

func (m *mockTokenRepo) MarkInvalid(ctx context.Context, tokenID string) error {
	return m.MarkInvalidFunc(ctx, tokenID)
}

func (m *mockTokenRepo) Consume(ctx context.Context, tokenID string) error {
	return m.ConsumeFunc(ctx, tokenID)
}

type mockSessionStore struct {
	CreateFunc            func(ctx context.Context, session *models.Session) (*models.Session, error)
	ListActiveByUserFunc  func(ctx context.Context, userID string) ([]*models.Session, error)
	RevokeFunc            func(ctx context.Context, sessionID, userID string) error
	RevokeAllForUserFunc  func(ctx context.Context, userID string) (int64, error)
	TouchFunc             func(ctx context.Context, sessionID, userID string) error
	UpsertFingerprintFunc func(ctx context.Context, userID, fingerprintHash, ip string, trustThreshold int) (*models.DeviceFingerprint, bool, error)
	GetFingerprintFunc    func(ctx context.Context, userID, fingerprintHash string) (*models.DeviceFingerprint, error)
}

func (m *mockSessionStore) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	return m.CreateFunc(ctx, session)
}

func (m *mockSessionStore) ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	return m.ListActiveByUserFunc(ctx, userID)
}

func (m *mockSessionStore) Revoke(ctx context.Context, sessionID, userID string) error {
	return m.RevokeFunc(ctx, sessionID, userID)
}

func (m *mockSessionStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return m.RevokeAllForUserFunc(ctx, userID)
}

func (m *mockSessionStore) Touch(ctx context.Context, sessionID, userID string) error {
	return m.TouchFunc(ctx, sessionID, userID)
}

func (m *mockSessionStore) UpsertFingerprint(ctx context.Context, userID, fingerprintHash, ip string, trustThreshold int) (*models.DeviceFingerprint, bool, error) {
	return m.UpsertFingerprintFunc(ctx, userID, fingerprintHash, ip, trustThreshold)
}

func (m *mockSessionStore) GetFingerprint(ctx context.Context, userID, fingerprintHash string) (*models.DeviceFingerprint, error) {
	return m.GetFingerprintFunc(ctx, userID, fingerprintHash)
}

// mockMailer records calls; sends always succeed unless a func is set
type mockMailer struct {
	SendResetEmailFunc        func(ctx context.Context, email, token string, expiresAt time.Time) error
	SendResetConfirmationFunc func(ctx context.Context, email string) error
	SendLockoutNoticeFunc     func(ctx context.Context, email string, unlockAt time.Time) error
	SendNewDeviceAlertFunc    func(ctx context.Context, email, ipAddress, device string) error
}

func (m *mockMailer) SendResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	if m.SendResetEmailFunc != nil {
		return m.SendResetEmailFunc(ctx, email, token, expiresAt)
	}
	return nil
}

func (m *mockMailer) SendResetConfirmation(ctx context.Context, email string) error {
	if m.SendResetConfirmationFunc != nil {
		return m.SendResetConfirmationFunc(ctx, email)
	}
	return nil
}

func (m *mockMailer) SendLockoutNotice(ctx context.Context, email string, unlockAt time.Time) error {
	if m.SendLockoutNoticeFunc != nil {
		return m.SendLockoutNoticeFunc(ctx, email, unlockAt)
	}
	return nil
}

func (m *mockMailer) SendNewDeviceAlert(ctx context.Context, email, ipAddress, device string) error {
	if m.SendNewDeviceAlertFunc != nil {
		return m.SendNewDeviceAlertFunc(ctx, email, ipAddress, device)
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAudit() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

func testMetrics() *metrics.Metrics {
	return metrics.NewWith(prometheus.NewRegistry())
}

func testSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		FailureThreshold: 5,
		FailureWindow:    10 * time.Minute,
		LockoutDuration:  30 * time.Minute,
		ResetTokenTTL:    1 * time.Hour,
		TrustThreshold:   3,
		SessionTTL:       7 * 24 * time.Hour,
	}
}
