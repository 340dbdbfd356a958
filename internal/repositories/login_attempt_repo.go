package repositories

import (
	"context"
	"time"

	"github.com/veridia/wellguard/internal/database"
	"github.com/veridia/wellguard/internal/models"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record inserts a login attempt and returns its id
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) (string, error) {
	query := `
		INSERT INTO login_attempts (email, user_id, success, ip_address, user_agent, failure_reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id string
	err := r.db.Pool.QueryRow(ctx, query,
		attempt.Email,
		attempt.UserID,
		attempt.Success,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.FailureReason,
		attempt.ExpiresAt,
	).Scan(&id)
	if err != nil {
		return "", database.MapPostgresError(err)
	}

	return id, nil
}

// CountRecentFailures returns the number of failed attempts for a user
// within a time window
func (r *LoginAttemptRepository) CountRecentFailures(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE user_id = $1 AND success = false AND attempted_at >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, userID, since).Scan(&count)
	return count, err
}

// MarkTriggeredLockout flags the attempt that crossed the lockout
// threshold. The only mutation an attempt row ever receives.
func (r *LoginAttemptRepository) MarkTriggeredLockout(ctx context.Context, attemptID string) error {
	query := `UPDATE login_attempts SET triggered_lockout = true WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, attemptID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteExpired removes attempts past their retention horizon
func (r *LoginAttemptRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
