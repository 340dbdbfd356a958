package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia/wellguard/internal/models"
)

func newLockoutService(repo *mockLockoutRepo) *LockoutService {
	return NewLockoutService(repo, &mockMailer{}, testSecurityConfig(), testLogger(), testAudit(), testMetrics())
}

func TestActiveLockout_NoneReturnsNil(t *testing.T) {
	repo := &mockLockoutRepo{
		GetActiveByUserIDFunc: func(ctx context.Context, userID string) (*models.AccountLockout, error) {
			return nil, models.ErrNotFound
		},
	}

	lockout, err := newLockoutService(repo).ActiveLockout(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, lockout)
}

func TestActiveLockout_InForce(t *testing.T) {
	unlockAt := time.Now().Add(20 * time.Minute)
	repo := &mockLockoutRepo{
		GetActiveByUserIDFunc: func(ctx context.Context, userID string) (*models.AccountLockout, error) {
			return &models.AccountLockout{ID: "lock-1", UserID: userID, UnlockAt: unlockAt, IsActive: true}, nil
		},
	}

	lockout, err := newLockoutService(repo).ActiveLockout(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, lockout)
	assert.Equal(t, unlockAt, lockout.UnlockAt)
}

func TestActiveLockout_ExpiredClearsLazily(t *testing.T) {
	deactivated := false
	repo := &mockLockoutRepo{
		GetActiveByUserIDFunc: func(ctx context.Context, userID string) (*models.AccountLockout, error) {
			return &models.AccountLockout{
				ID:       "lock-1",
				UserID:   userID,
				UnlockAt: time.Now().Add(-1 * time.Minute),
				IsActive: true,
			}, nil
		},
		DeactivateFunc: func(ctx context.Context, lockoutID, unlockMethod string, approvedBy *string) error {
			deactivated = true
			assert.Equal(t, "lock-1", lockoutID)
			assert.Equal(t, models.UnlockMethodExpired, unlockMethod)
			assert.Nil(t, approvedBy)
			return nil
		},
	}

	lockout, err := newLockoutService(repo).ActiveLockout(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, lockout, "expired lockout must read as unlocked")
	assert.True(t, deactivated)
}

func TestLockAccount_CreatesWithConfiguredDuration(t *testing.T) {
	var created *models.AccountLockout
	repo := &mockLockoutRepo{
		CreateFunc: func(ctx context.Context, lockout *models.AccountLockout) (*models.AccountLockout, error) {
			created = lockout
			out := *lockout
			out.ID = "lock-1"
			out.IsActive = true
			return &out, nil
		},
	}

	user := &models.User{ID: "user-1", Email: "pat@example.com"}
	before := time.Now()
	lockout, err := newLockoutService(repo).LockAccount(context.Background(), user, 5, "203.0.113.9")
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, 5, created.FailedAttemptsCount)
	assert.WithinDuration(t, before.Add(30*time.Minute), created.UnlockAt, 2*time.Second)
	assert.True(t, lockout.IsActive)
}

func TestLockAccount_RaceLoserReturnsExisting(t *testing.T) {
	existing := &models.AccountLockout{ID: "lock-existing", UserID: "user-1", UnlockAt: time.Now().Add(25 * time.Minute), IsActive: true}
	repo := &mockLockoutRepo{
		CreateFunc: func(ctx context.Context, lockout *models.AccountLockout) (*models.AccountLockout, error) {
			return nil, models.ErrLockoutActive
		},
		GetActiveByUserIDFunc: func(ctx context.Context, userID string) (*models.AccountLockout, error) {
			return existing, nil
		},
	}

	lockout, err := newLockoutService(repo).LockAccount(context.Background(), &models.User{ID: "user-1"}, 5, "")
	require.NoError(t, err)
	assert.Equal(t, "lock-existing", lockout.ID)
}

func TestClearLockout_NoOpWhenUnlocked(t *testing.T) {
	repo := &mockLockoutRepo{
		DeactivateForUserFunc: func(ctx context.Context, userID, unlockMethod string) (int64, error) {
			return 0, nil
		},
	}

	err := newLockoutService(repo).ClearLockout(context.Background(), "user-1", models.UnlockMethodLoginSuccess)
	assert.NoError(t, err)
}

func TestManualUnlock_StampsApprover(t *testing.T) {
	var gotApprover *string
	repo := &mockLockoutRepo{
		GetActiveByUserIDFunc: func(ctx context.Context, userID string) (*models.AccountLockout, error) {
			return &models.AccountLockout{ID: "lock-1", UserID: userID, UnlockAt: time.Now().Add(10 * time.Minute), IsActive: true}, nil
		},
		DeactivateFunc: func(ctx context.Context, lockoutID, unlockMethod string, approvedBy *string) error {
			gotApprover = approvedBy
			assert.Equal(t, models.UnlockMethodManual, unlockMethod)
			return nil
		},
	}

	err := newLockoutService(repo).ManualUnlock(context.Background(), "user-1", "admin-9")
	require.NoError(t, err)
	require.NotNil(t, gotApprover)
	assert.Equal(t, "admin-9", *gotApprover)
}

func TestManualUnlock_NotLocked(t *testing.T) {
	repo := &mockLockoutRepo{
		GetActiveByUserIDFunc: func(ctx context.Context, userID string) (*models.AccountLockout, error) {
			return nil, models.ErrNotFound
		},
	}

	err := newLockoutService(repo).ManualUnlock(context.Background(), "user-1", "admin-9")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
