package models

import (
	"errors"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Throttling and lockout
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrAccountLocked     = errors.New("account is temporarily locked")
	ErrLockoutActive     = errors.New("an active lockout already exists")

	// Reset token states. These are safe to surface to the caller: they
	// describe the token the caller already holds, not account existence.
	ErrTokenInvalid     = errors.New("reset token is invalid")
	ErrTokenExpired     = errors.New("reset token has expired")
	ErrTokenUsed        = errors.New("reset token has already been used")
	ErrTokenInvalidated = errors.New("reset token has been invalidated")
)

// LockedError carries the unlock time so the boundary can tell the
// caller when to retry. Matches ErrAccountLocked under errors.Is.
type LockedError struct {
	UnlockAt time.Time
}

func (e *LockedError) Error() string {
	return "account is temporarily locked until " + e.UnlockAt.UTC().Format(time.RFC3339)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
