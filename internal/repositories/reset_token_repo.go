package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/veridia/wellguard/internal/database"
	"github.com/veridia/wellguard/internal/models"
)

// ResetTokenRepository handles database operations for password reset tokens
type ResetTokenRepository struct {
	db *database.DB
}

// NewResetTokenRepository creates a new ResetTokenRepository
func NewResetTokenRepository(db *database.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

const resetTokenColumns = `id, user_id, token_hash, expires_at, is_valid, used_at, requested_by_email, ip_address, created_at`

func scanResetTokenRow(row rowScanner) (*models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.IsValid,
		&t.UsedAt, &t.RequestedByEmail, &t.IPAddress, &t.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

// Create persists a new hashed token
func (r *ResetTokenRepository) Create(ctx context.Context, token *models.PasswordResetToken) (*models.PasswordResetToken, error) {
	query := `
		INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, requested_by_email, ip_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + resetTokenColumns

	created, err := scanResetTokenRow(r.db.Pool.QueryRow(ctx, query,
		token.UserID, token.TokenHash, token.ExpiresAt,
		token.RequestedByEmail, token.IPAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to create reset token: %w", err)
	}
	return created, nil
}

// InvalidateAndCreate supersedes any usable token for the user with a
// new one, in a single transaction. The partial unique index on
// (user_id) WHERE is_valid AND used_at IS NULL arbitrates concurrent
// requests: the loser's insert fails with ErrConflict and the caller
// retries, so at most one usable token ever exists per user.
func (r *ResetTokenRepository) InvalidateAndCreate(ctx context.Context, token *models.PasswordResetToken) (*models.PasswordResetToken, error) {
	var created *models.PasswordResetToken

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		invalidate := `
			UPDATE password_reset_tokens
			SET is_valid = false
			WHERE user_id = $1 AND is_valid = true AND used_at IS NULL
		`
		if _, err := tx.Exec(ctx, invalidate, token.UserID); err != nil {
			return database.MapPostgresError(err)
		}

		insert := `
			INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, requested_by_email, ip_address)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING ` + resetTokenColumns

		row, err := scanResetTokenRow(tx.QueryRow(ctx, insert,
			token.UserID, token.TokenHash, token.ExpiresAt,
			token.RequestedByEmail, token.IPAddress))
		if err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetByTokenHash retrieves a token by its hash. Lookup is always by
// hash; plaintext tokens are never stored or compared.
func (r *ResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	query := `SELECT ` + resetTokenColumns + ` FROM password_reset_tokens WHERE token_hash = $1`
	return scanResetTokenRow(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

// InvalidateAllForUser marks every still-usable token for the user
// invalid. Issuing a new token calls this first, so at most one usable
// token exists per user.
func (r *ResetTokenRepository) InvalidateAllForUser(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE password_reset_tokens
		SET is_valid = false
		WHERE user_id = $1 AND is_valid = true AND used_at IS NULL
	`

	result, err := r.db.Pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// MarkInvalid flags a single token invalid (lazy expiry at read time)
func (r *ResetTokenRepository) MarkInvalid(ctx context.Context, tokenID string) error {
	query := `UPDATE password_reset_tokens SET is_valid = false WHERE id = $1`

	_, err := r.db.Pool.Exec(ctx, query, tokenID)
	return database.MapPostgresError(err)
}

// Consume atomically marks the token used. The update is conditioned on
// the token still being valid, unused, and unexpired, so two concurrent
// consumers resolve to exactly one success; the loser sees ErrTokenUsed.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenID string) error {
	query := `
		UPDATE password_reset_tokens
		SET used_at = NOW(), is_valid = false
		WHERE id = $1 AND is_valid = true AND used_at IS NULL AND expires_at > NOW()
	`

	result, err := r.db.Pool.Exec(ctx, query, tokenID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrTokenUsed
	}
	return nil
}

// DeleteExpired removes tokens that expired more than 30 days ago
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE expires_at < NOW() - INTERVAL '30 days'`

	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
