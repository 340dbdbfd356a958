package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/veridia/wellguard/internal/database"
	"github.com/veridia/wellguard/internal/models"
)

// LockoutRepository handles database operations for account lockouts
type LockoutRepository struct {
	db *database.DB
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

const lockoutColumns = `id, user_id, email, reason, failed_attempts_count, unlock_at, is_active, approved_by, unlocked_at, unlock_method, created_at`

func scanLockoutRow(row rowScanner) (*models.AccountLockout, error) {
	var l models.AccountLockout
	err := row.Scan(
		&l.ID, &l.UserID, &l.Email, &l.Reason, &l.FailedAttemptsCount,
		&l.UnlockAt, &l.IsActive, &l.ApprovedBy, &l.UnlockedAt,
		&l.UnlockMethod, &l.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &l, nil
}

// GetActiveByUserID returns the active lockout for a user, if any.
// Expiry is not evaluated here; callers decide lazily at the point of use.
func (r *LockoutRepository) GetActiveByUserID(ctx context.Context, userID string) (*models.AccountLockout, error) {
	query := `SELECT ` + lockoutColumns + ` FROM account_lockouts WHERE user_id = $1 AND is_active = true`
	return scanLockoutRow(r.db.Pool.QueryRow(ctx, query, userID))
}

// Create inserts a new active lockout. The partial unique index on
// (user_id) WHERE is_active makes the store the arbiter when two
// requests cross the threshold concurrently; the loser gets
// ErrLockoutActive.
func (r *LockoutRepository) Create(ctx context.Context, lockout *models.AccountLockout) (*models.AccountLockout, error) {
	query := `
		INSERT INTO account_lockouts (user_id, email, reason, failed_attempts_count, unlock_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + lockoutColumns

	created, err := scanLockoutRow(r.db.Pool.QueryRow(ctx, query,
		lockout.UserID, lockout.Email, lockout.Reason,
		lockout.FailedAttemptsCount, lockout.UnlockAt))
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrLockoutActive
		}
		return nil, fmt.Errorf("failed to create lockout: %w", err)
	}
	return created, nil
}

// Deactivate clears a specific lockout, stamping how it was unlocked.
// Conditioned on is_active so a concurrent clear wins exactly once.
func (r *LockoutRepository) Deactivate(ctx context.Context, lockoutID, unlockMethod string, approvedBy *string) error {
	query := `
		UPDATE account_lockouts
		SET is_active = false, unlocked_at = NOW(), unlock_method = $2, approved_by = $3
		WHERE id = $1 AND is_active = true
	`

	result, err := r.db.Pool.Exec(ctx, query, lockoutID, unlockMethod, approvedBy)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeactivateForUser clears any active lockout for the user. Returns the
// number of rows cleared (0 or 1 given the uniqueness invariant).
func (r *LockoutRepository) DeactivateForUser(ctx context.Context, userID, unlockMethod string) (int64, error) {
	query := `
		UPDATE account_lockouts
		SET is_active = false, unlocked_at = NOW(), unlock_method = $2
		WHERE user_id = $1 AND is_active = true
	`

	result, err := r.db.Pool.Exec(ctx, query, userID, unlockMethod)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
