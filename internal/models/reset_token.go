package models

import "time"

// PasswordResetToken stores only the SHA-256 hash of the issued token.
// The plaintext is returned to the requester exactly once and never persisted.
type PasswordResetToken struct {
	ID               string
	UserID           string
	TokenHash        string
	ExpiresAt        time.Time
	IsValid          bool
	UsedAt           *time.Time
	RequestedByEmail string
	IPAddress        string
	CreatedAt        time.Time
}

// IsUsed returns true if the token has already been consumed
func (t *PasswordResetToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsExpired returns true if the token is past its expiry
func (t *PasswordResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
