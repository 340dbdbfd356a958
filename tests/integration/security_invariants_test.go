package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia/wellguard/internal/models"
	"github.com/veridia/wellguard/internal/repositories"
)

// The invariants exercised here live in the store, not in service code:
// the CAS consumption update and the partial unique index are the only
// arbiters under real concurrency, so they are tested against a real
// PostgreSQL instance.

func TestStoreInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	t.Run("ConcurrentTokenConsumption", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		user, err := testDB.SeedUser(ctx, "race@example.com", "OldPassword1!")
		require.NoError(t, err)

		_, tokenID, err := testDB.SeedResetToken(ctx, user.ID, user.Email)
		require.NoError(t, err)

		tokenRepo := repositories.NewResetTokenRepository(testDB.DB)

		const attempts = 8
		results := make([]error, attempts)
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func(i int) {
				defer wg.Done()
				results[i] = tokenRepo.Consume(ctx, tokenID)
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range results {
			if err == nil {
				successes++
			} else {
				assert.ErrorIs(t, err, models.ErrTokenUsed)
			}
		}
		assert.Equal(t, 1, successes, "exactly one consumer may win")
	})

	t.Run("AtMostOneActiveLockout", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		user, err := testDB.SeedUser(ctx, "locked@example.com", "OldPassword1!")
		require.NoError(t, err)

		lockoutRepo := repositories.NewLockoutRepository(testDB.DB)

		const attempts = 8
		results := make([]error, attempts)
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func(i int) {
				defer wg.Done()
				_, results[i] = lockoutRepo.Create(ctx, &models.AccountLockout{
					UserID:              user.ID,
					Email:               user.Email,
					Reason:              "failed_login_threshold",
					FailedAttemptsCount: 5,
					UnlockAt:            time.Now().Add(30 * time.Minute),
				})
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range results {
			if err == nil {
				successes++
			} else {
				assert.ErrorIs(t, err, models.ErrLockoutActive)
			}
		}
		assert.Equal(t, 1, successes, "exactly one lockout creation may win")

		var active int
		err = testDB.Pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM account_lockouts WHERE user_id = $1 AND is_active`, user.ID).Scan(&active)
		require.NoError(t, err)
		assert.Equal(t, 1, active)
	})

	t.Run("NewTokenInvalidatesPrior", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		user, err := testDB.SeedUser(ctx, "reissue@example.com", "OldPassword1!")
		require.NoError(t, err)

		_, firstID, err := testDB.SeedResetToken(ctx, user.ID, user.Email)
		require.NoError(t, err)

		tokenRepo := repositories.NewResetTokenRepository(testDB.DB)

		invalidated, err := tokenRepo.InvalidateAllForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), invalidated)

		_, secondID, err := testDB.SeedResetToken(ctx, user.ID, user.Email)
		require.NoError(t, err)

		assert.ErrorIs(t, tokenRepo.Consume(ctx, firstID), models.ErrTokenUsed)
		assert.NoError(t, tokenRepo.Consume(ctx, secondID))
	})

	t.Run("ConcurrentReissueLeavesOneUsableToken", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		user, err := testDB.SeedUser(ctx, "reissue-race@example.com", "OldPassword1!")
		require.NoError(t, err)

		_, _, err = testDB.SeedResetToken(ctx, user.ID, user.Email)
		require.NoError(t, err)

		tokenRepo := repositories.NewResetTokenRepository(testDB.DB)

		const attempts = 8
		results := make([]error, attempts)
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func(i int) {
				defer wg.Done()
				_, results[i] = tokenRepo.InvalidateAndCreate(ctx, &models.PasswordResetToken{
					UserID:           user.ID,
					TokenHash:        fmt.Sprintf("race-hash-%02d", i),
					ExpiresAt:        time.Now().Add(time.Hour),
					RequestedByEmail: user.Email,
					IPAddress:        "198.51.100.4",
				})
			}(i)
		}
		wg.Wait()

		successes := 0
		for _, err := range results {
			if err == nil {
				successes++
			} else {
				assert.ErrorIs(t, err, models.ErrConflict, "a losing reissue must surface as a retryable conflict")
			}
		}
		assert.GreaterOrEqual(t, successes, 1)

		var usable int
		err = testDB.Pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM password_reset_tokens WHERE user_id = $1 AND is_valid AND used_at IS NULL`,
			user.ID).Scan(&usable)
		require.NoError(t, err)
		assert.Equal(t, 1, usable, "the partial unique index admits at most one usable token")
	})

	t.Run("RevokeAllDeactivatesEverySession", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		user, err := testDB.SeedUser(ctx, "sessions@example.com", "OldPassword1!")
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := SeedSession(ctx, testDB.Pool, user.ID, fmt.Sprintf("token-%d", i))
			require.NoError(t, err)
		}

		sessionRepo := repositories.NewSessionRepository(testDB.DB)

		active, err := sessionRepo.ListActiveByUser(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, active, 3)

		revoked, err := sessionRepo.RevokeAllForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), revoked)

		active, err = sessionRepo.ListActiveByUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("RevokeForeignSessionReportsNotFound", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		owner, err := testDB.SeedUser(ctx, "owner@example.com", "OldPassword1!")
		require.NoError(t, err)
		other, err := testDB.SeedUser(ctx, "other@example.com", "OldPassword1!")
		require.NoError(t, err)

		sessionID, err := SeedSession(ctx, testDB.Pool, owner.ID, "owner-token")
		require.NoError(t, err)

		sessionRepo := repositories.NewSessionRepository(testDB.DB)

		err = sessionRepo.Revoke(ctx, sessionID, other.ID)
		assert.ErrorIs(t, err, models.ErrNotFound)

		// The owner's session survives the foreign revoke attempt.
		active, err := sessionRepo.ListActiveByUser(ctx, owner.ID)
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})

	t.Run("TouchIsOwnershipScoped", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		owner, err := testDB.SeedUser(ctx, "toucher@example.com", "OldPassword1!")
		require.NoError(t, err)
		other, err := testDB.SeedUser(ctx, "intruder@example.com", "OldPassword1!")
		require.NoError(t, err)

		sessionID, err := SeedSession(ctx, testDB.Pool, owner.ID, "touch-token")
		require.NoError(t, err)

		sessionRepo := repositories.NewSessionRepository(testDB.DB)

		assert.ErrorIs(t, sessionRepo.Touch(ctx, sessionID, other.ID), models.ErrNotFound)
		assert.NoError(t, sessionRepo.Touch(ctx, sessionID, owner.ID))
	})

	t.Run("DeviceTrustIsMonotonic", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		user, err := testDB.SeedUser(ctx, "device@example.com", "OldPassword1!")
		require.NoError(t, err)

		sessionRepo := repositories.NewSessionRepository(testDB.DB)
		const threshold = 3
		hash := "abc123fingerprint"

		for i := 1; i <= 5; i++ {
			fp, inserted, err := sessionRepo.UpsertFingerprint(ctx, user.ID, hash, "198.51.100.4", threshold)
			require.NoError(t, err)

			assert.Equal(t, i == 1, inserted)
			assert.Equal(t, i, fp.LoginCount)
			assert.Equal(t, i >= threshold, fp.IsTrusted, "trust flips at the threshold and never reverts")
		}

		stored, err := sessionRepo.GetFingerprint(ctx, user.ID, hash)
		require.NoError(t, err)
		assert.Equal(t, 5, stored.LoginCount)
		assert.True(t, stored.IsTrusted)

		_, err = sessionRepo.GetFingerprint(ctx, user.ID, "never-seen")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("ExpiredTokenFailsConsumption", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		user, err := testDB.SeedUser(ctx, "expired@example.com", "OldPassword1!")
		require.NoError(t, err)

		_, tokenID, err := testDB.SeedResetToken(ctx, user.ID, user.Email)
		require.NoError(t, err)

		_, err = testDB.Pool.Exec(ctx,
			`UPDATE password_reset_tokens SET expires_at = NOW() - INTERVAL '1 minute' WHERE id = $1`, tokenID)
		require.NoError(t, err)

		tokenRepo := repositories.NewResetTokenRepository(testDB.DB)
		err = tokenRepo.Consume(ctx, tokenID)
		assert.True(t, errors.Is(err, models.ErrTokenUsed), "a token expiring between verify and consume must fail the CAS")
	})
}
