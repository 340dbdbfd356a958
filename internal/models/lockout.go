package models

import "time"

// Unlock methods recorded on the Locked -> Unlocked transition.
const (
	UnlockMethodExpired       = "expired"
	UnlockMethodLoginSuccess  = "login_success"
	UnlockMethodPasswordReset = "password_reset"
	UnlockMethodManual        = "manual"
)

// AccountLockout is created when the failure threshold is crossed.
// At most one row per user may have IsActive=true at any time; the
// partial unique index on account_lockouts enforces this under races.
type AccountLockout struct {
	ID                  string
	UserID              string
	Email               string
	Reason              string
	FailedAttemptsCount int
	UnlockAt            time.Time
	IsActive            bool
	ApprovedBy          *string
	UnlockedAt          *time.Time
	UnlockMethod        *string
	CreatedAt           time.Time
}

// Expired reports whether the lockout window has passed. Expiry is
// evaluated lazily at the point of use; there is no background unlocker.
func (l *AccountLockout) Expired(now time.Time) bool {
	return !now.Before(l.UnlockAt)
}
