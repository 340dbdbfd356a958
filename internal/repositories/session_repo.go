package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/veridia/wellguard/internal/database"
	"github.com/veridia/wellguard/internal/models"
)

// SessionRepository handles database operations for sessions and
// device fingerprints
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, session_token, device_fingerprint, ip_address, user_agent, login_method, created_at, last_activity_at, expires_at, is_active`

func scanSessionRow(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.SessionToken, &s.DeviceFingerprint,
		&s.IPAddress, &s.UserAgent, &s.LoginMethod,
		&s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt, &s.IsActive,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	query := `
		INSERT INTO sessions (user_id, session_token, device_fingerprint, ip_address, user_agent, login_method, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + sessionColumns

	created, err := scanSessionRow(r.db.Pool.QueryRow(ctx, query,
		session.UserID, session.SessionToken, session.DeviceFingerprint,
		session.IPAddress, session.UserAgent, session.LoginMethod, session.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

// ListActiveByUser returns active, unexpired sessions, most recently
// active first
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND is_active = true AND expires_at > NOW()
		ORDER BY last_activity_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return scanSessionRows(rows)
}

// Revoke deactivates a session, conditioned on ownership so revoking a
// foreign or unknown session reports not found rather than silently
// succeeding. Rows are never deleted (audit retention).
func (r *SessionRepository) Revoke(ctx context.Context, sessionID, userID string) error {
	query := `
		UPDATE sessions
		SET is_active = false
		WHERE id = $1 AND user_id = $2 AND is_active = true
	`

	result, err := r.db.Pool.Exec(ctx, query, sessionID, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RevokeAllForUser deactivates every active session for the user in one
// statement. Used for "sign out everywhere" and password reset cascade.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE sessions SET is_active = false WHERE user_id = $1 AND is_active = true`

	result, err := r.db.Pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// Touch updates the session's last activity timestamp. Ownership-scoped
// like Revoke: touching a foreign or inactive session reports not found.
func (r *SessionRepository) Touch(ctx context.Context, sessionID, userID string) error {
	query := `
		UPDATE sessions
		SET last_activity_at = NOW()
		WHERE id = $1 AND user_id = $2 AND is_active = true
	`

	result, err := r.db.Pool.Exec(ctx, query, sessionID, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpsertFingerprint records a sighting of a device fingerprint for a
// user. Login count increments per sighting; trust flips true once the
// count reaches the threshold and never reverts. Returns the row and
// whether this was the first sighting.
func (r *SessionRepository) UpsertFingerprint(ctx context.Context, userID, fingerprintHash, ip string, trustThreshold int) (*models.DeviceFingerprint, bool, error) {
	query := `
		INSERT INTO device_fingerprints (user_id, fingerprint_hash, first_seen_ip, login_count, is_trusted)
		VALUES ($1, $2, $3, 1, 1 >= $4)
		ON CONFLICT (user_id, fingerprint_hash) DO UPDATE
		SET login_count = device_fingerprints.login_count + 1,
		    last_seen_at = NOW(),
		    is_trusted = device_fingerprints.is_trusted OR (device_fingerprints.login_count + 1 >= $4)
		RETURNING id, user_id, fingerprint_hash, first_seen_ip, last_seen_at, login_count, is_trusted, created_at, (xmax = 0) AS inserted
	`

	var fp models.DeviceFingerprint
	var inserted bool
	err := r.db.Pool.QueryRow(ctx, query, userID, fingerprintHash, ip, trustThreshold).Scan(
		&fp.ID, &fp.UserID, &fp.FingerprintHash, &fp.FirstSeenIP,
		&fp.LastSeenAt, &fp.LoginCount, &fp.IsTrusted, &fp.CreatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, database.MapPostgresError(err)
	}
	return &fp, inserted, nil
}

// GetFingerprint retrieves a fingerprint row for a user
func (r *SessionRepository) GetFingerprint(ctx context.Context, userID, fingerprintHash string) (*models.DeviceFingerprint, error) {
	query := `
		SELECT id, user_id, fingerprint_hash, first_seen_ip, last_seen_at, login_count, is_trusted, created_at
		FROM device_fingerprints
		WHERE user_id = $1 AND fingerprint_hash = $2
	`

	var fp models.DeviceFingerprint
	err := r.db.Pool.QueryRow(ctx, query, userID, fingerprintHash).Scan(
		&fp.ID, &fp.UserID, &fp.FingerprintHash, &fp.FirstSeenIP,
		&fp.LastSeenAt, &fp.LoginCount, &fp.IsTrusted, &fp.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &fp, nil
}
