package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Security event types emitted by the account-security core.
const (
	EventLockoutCreated  = "account_lockout_created"
	EventLockoutCleared  = "account_lockout_cleared"
	EventResetRequested  = "password_reset_requested"
	EventResetCompleted  = "password_reset_completed"
	EventSessionCreated  = "session_created"
	EventSessionRevoked  = "session_revoked"
	EventSessionsRevoked = "all_sessions_revoked"
	EventNewDeviceLogin  = "new_device_login"
)

// SecurityEvent represents a security audit event
type SecurityEvent struct {
	EventType string
	UserID    string
	Email     string
	IPAddress string
	UserAgent string
	Severity  string // "low", "medium", "high"
	Metadata  map[string]string
}

// AuditLogger provides structured audit logging for security events
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogSecurityEvent logs a security event with severity-appropriate level.
// Emails are masked before logging.
func (al *AuditLogger) LogSecurityEvent(event SecurityEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_id", uuid.NewString()),
		slog.String("event_type", event.EventType),
		slog.String("severity", event.Severity),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if event.Severity == "high" {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogLoginAttempt logs the outcome of a login attempt
func (al *AuditLogger) LogLoginAttempt(email, ipAddress string, success bool, failureReason string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", "login_attempt"),
		slog.Bool("success", success),
		slog.String("email", SanitizedEmail(email)),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	if failureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", failureReason))
	}

	if success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}
