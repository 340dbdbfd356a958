package models

import "time"

// Login methods recorded on session creation.
const (
	LoginMethodPassword = "password"
	LoginMethodOAuth    = "oauth"
	LoginMethodSSO      = "sso"
)

// Session is never hard-deleted; revocation flips IsActive so the row
// survives for audit retention.
type Session struct {
	ID                string
	UserID            string
	SessionToken      string
	DeviceFingerprint *string
	IPAddress         string
	UserAgent         string
	LoginMethod       string
	CreatedAt         time.Time
	LastActivityAt    time.Time
	ExpiresAt         time.Time
	IsActive          bool
}

// DeviceFingerprint tracks a client-derived signature per user. Trust is
// monotonic: once IsTrusted flips true it never reverts automatically.
type DeviceFingerprint struct {
	ID              string
	UserID          string
	FingerprintHash string
	FirstSeenIP     string
	LastSeenAt      time.Time
	LoginCount      int
	IsTrusted       bool
	CreatedAt       time.Time
}
