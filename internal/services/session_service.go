package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/mssola/useragent"

	"github.com/veridia/wellguard/internal/config"
	"github.com/veridia/wellguard/internal/metrics"
	"github.com/veridia/wellguard/internal/models"
	pkglogger "github.com/veridia/wellguard/pkg/logger"
)

// SessionStore defines the interface for session database operations
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error)
	Revoke(ctx context.Context, sessionID, userID string) error
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	Touch(ctx context.Context, sessionID, userID string) error
	UpsertFingerprint(ctx context.Context, userID, fingerprintHash, ip string, trustThreshold int) (*models.DeviceFingerprint, bool, error)
	GetFingerprint(ctx context.Context, userID, fingerprintHash string) (*models.DeviceFingerprint, error)
}

// SessionInfo is a session as presented to the account holder: the
// session row plus a human-readable device label derived from the
// recorded user agent, and the trust state of its device.
type SessionInfo struct {
	Session       *models.Session
	DeviceLabel   string
	DeviceTrusted bool
}

// SessionService is the registry of active sessions per user. Revoked
// sessions are deactivated, never deleted.
type SessionService struct {
	store   SessionStore
	mailer  SecurityMailer
	cfg     config.SecurityConfig
	logger  *slog.Logger
	audit   *pkglogger.AuditLogger
	metrics *metrics.Metrics
}

// NewSessionService creates a new SessionService
func NewSessionService(
	store SessionStore,
	mailer SecurityMailer,
	cfg config.SecurityConfig,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
	m *metrics.Metrics,
) *SessionService {
	return &SessionService{
		store:   store,
		mailer:  mailer,
		cfg:     cfg,
		logger:  logger,
		audit:   audit,
		metrics: m,
	}
}

// DeviceLabel renders a user agent string as "Browser on OS". Unparsable
// agents fall back to a generic label rather than echoing raw header bytes.
func DeviceLabel(userAgentStr string) string {
	if userAgentStr == "" {
		return "Unknown device"
	}

	ua := useragent.New(userAgentStr)
	browser, _ := ua.Browser()
	os := ua.OSInfo().FullName

	switch {
	case browser != "" && os != "":
		return fmt.Sprintf("%s on %s", browser, os)
	case browser != "":
		return browser
	case os != "":
		return os
	default:
		return "Unknown device"
	}
}

// List returns the user's active sessions, most recently active first
func (s *SessionService) List(ctx context.Context, userID string) ([]*SessionInfo, error) {
	sessions, err := s.store.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	// Sessions from the same device share a fingerprint row; look each
	// hash up once. A missing row or lookup failure reads as untrusted.
	trusted := make(map[string]bool)
	infos := make([]*SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		info := &SessionInfo{
			Session:     session,
			DeviceLabel: DeviceLabel(session.UserAgent),
		}
		if session.DeviceFingerprint != nil {
			hash := *session.DeviceFingerprint
			if _, seen := trusted[hash]; !seen {
				fp, err := s.store.GetFingerprint(ctx, userID, hash)
				trusted[hash] = err == nil && fp.IsTrusted
			}
			info.DeviceTrusted = trusted[hash]
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Create registers a new session and records the device sighting. The
// returned session carries the plaintext session token; it is handed to
// the caller once and not recoverable afterwards. A first-seen device
// triggers a new-device alert to the account holder.
func (s *SessionService) Create(ctx context.Context, userID, email, ipAddress, userAgentStr, loginMethod string, clientFingerprint *string) (*models.Session, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &models.Session{
		UserID:       userID,
		SessionToken: hex.EncodeToString(tokenBytes),
		IPAddress:    ipAddress,
		UserAgent:    userAgentStr,
		LoginMethod:  loginMethod,
		ExpiresAt:    time.Now().Add(s.cfg.SessionTTL),
	}

	var fingerprintHash string
	if clientFingerprint != nil && *clientFingerprint != "" {
		digest := sha256.Sum256([]byte(*clientFingerprint))
		fingerprintHash = hex.EncodeToString(digest[:])
		session.DeviceFingerprint = &fingerprintHash
	}

	created, err := s.store.Create(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
		EventType: pkglogger.EventSessionCreated,
		UserID:    userID,
		Email:     email,
		IPAddress: ipAddress,
		UserAgent: userAgentStr,
		Severity:  "low",
		Metadata:  map[string]string{"login_method": loginMethod},
	})
	s.metrics.SessionsCreatedTotal.Inc()

	if fingerprintHash != "" {
		s.recordDeviceSighting(ctx, userID, email, fingerprintHash, ipAddress, userAgentStr)
	}

	return created, nil
}

// recordDeviceSighting upserts the fingerprint row. Failures are logged
// and swallowed: fingerprint bookkeeping must not break login.
func (s *SessionService) recordDeviceSighting(ctx context.Context, userID, email, fingerprintHash, ipAddress, userAgentStr string) {
	_, firstSeen, err := s.store.UpsertFingerprint(ctx, userID, fingerprintHash, ipAddress, s.cfg.TrustThreshold)
	if err != nil {
		s.logger.Error("failed to record device fingerprint",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return
	}

	if !firstSeen {
		return
	}

	device := DeviceLabel(userAgentStr)
	s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
		EventType: pkglogger.EventNewDeviceLogin,
		UserID:    userID,
		Email:     email,
		IPAddress: ipAddress,
		UserAgent: userAgentStr,
		Severity:  "low",
		Metadata:  map[string]string{"device": device},
	})

	dispatchAsync(s.logger, "new_device_alert", func(ctx context.Context) error {
		return s.mailer.SendNewDeviceAlert(ctx, email, ipAddress, device)
	})
}

// Revoke deactivates a single session owned by the user. Revoking a
// session that does not exist, is already revoked, or belongs to someone
// else reports models.ErrNotFound.
func (s *SessionService) Revoke(ctx context.Context, userID, sessionID string) error {
	if err := s.store.Revoke(ctx, sessionID, userID); err != nil {
		return err
	}

	s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
		EventType: pkglogger.EventSessionRevoked,
		UserID:    userID,
		Severity:  "low",
		Metadata:  map[string]string{"session_id": sessionID},
	})
	s.metrics.SessionsRevokedTotal.WithLabelValues("single").Inc()

	return nil
}

// RevokeAll signs the user out everywhere and reports how many sessions
// that covered. Zero is a valid outcome, not an error.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	revoked, err := s.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}

	if revoked > 0 {
		s.audit.LogSecurityEvent(pkglogger.SecurityEvent{
			EventType: pkglogger.EventSessionsRevoked,
			UserID:    userID,
			Severity:  "medium",
			Metadata:  map[string]string{"count": fmt.Sprintf("%d", revoked)},
		})
		s.metrics.SessionsRevokedTotal.WithLabelValues("all").Add(float64(revoked))
	}

	return revoked, nil
}

// Touch refreshes the session's last-activity timestamp. Same ownership
// rule as Revoke: a foreign or inactive session reports models.ErrNotFound.
func (s *SessionService) Touch(ctx context.Context, userID, sessionID string) error {
	return s.store.Touch(ctx, sessionID, userID)
}
