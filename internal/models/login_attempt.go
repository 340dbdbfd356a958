package models

import "time"

// LoginAttempt is an append-only audit row recorded for every login attempt,
// including attempts against unknown emails.
type LoginAttempt struct {
	ID               string
	Email            string
	UserID           *string // nil when the email does not match a known account
	Success          bool
	IPAddress        string
	UserAgent        string
	FailureReason    *string
	AttemptedAt      time.Time
	TriggeredLockout bool
	ExpiresAt        time.Time // retention horizon for the background sweep
}
