package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia/wellguard/internal/models"
	"github.com/veridia/wellguard/internal/ratelimit"
)

const testToken = "a3f1c2d4e5b6978012345678901234567890abcdef1234567890abcdef123456"

func TestRequestReset_IdenticalResponseForUnknownEmail(t *testing.T) {
	service := &mockResetService{
		RequestResetFunc: func(ctx context.Context, email, ipAddress string) error {
			return nil
		},
	}
	handler := NewResetHandler(service, nil, nil)

	bodies := make([]string, 0, 2)
	codes := make([]int, 0, 2)
	for _, email := range []string{"exists@example.com", "ghost@example.com"} {
		req := NewTestRequest(t, http.MethodPost, "/password-reset/request", map[string]interface{}{"email": email})
		rec := httptest.NewRecorder()
		handler.RequestReset(rec, req)
		bodies = append(bodies, rec.Body.String())
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, codes[0], codes[1])
	assert.Equal(t, bodies[0], bodies[1], "responses must be byte-identical regardless of account existence")
}

func TestRequestReset_NormalizesEmail(t *testing.T) {
	var gotEmail string
	service := &mockResetService{
		RequestResetFunc: func(ctx context.Context, email, ipAddress string) error {
			gotEmail = email
			return nil
		},
	}
	handler := NewResetHandler(service, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/password-reset/request", map[string]interface{}{
		"email": "  Pat@Example.COM ",
	})
	rec := httptest.NewRecorder()
	handler.RequestReset(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pat@example.com", gotEmail)
}

func TestRequestReset_ThrottledPerAccount(t *testing.T) {
	lim := &stubLimiter{result: ratelimit.Result{Allowed: false, ResetAt: time.Now().Add(time.Minute)}}
	service := &mockResetService{
		RequestResetFunc: func(ctx context.Context, email, ipAddress string) error {
			t.Fatal("a throttled request must not reach the service")
			return nil
		},
	}

	handler := NewResetHandler(service, nil, denyingAccountLimiter("reset_account", lim))
	req := NewTestRequest(t, http.MethodPost, "/password-reset/request", map[string]interface{}{
		"email": "pat@example.com",
	})
	rec := httptest.NewRecorder()
	handler.RequestReset(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "reset_account:pat@example.com", lim.gotKey)
}

func TestVerifyToken_Valid(t *testing.T) {
	expiresAt := time.Now().Add(45 * time.Minute)
	service := &mockResetService{
		VerifyTokenFunc: func(ctx context.Context, plaintext string) (*models.PasswordResetToken, error) {
			assert.Equal(t, testToken, plaintext)
			return &models.PasswordResetToken{ID: "token-1", UserID: "user-1", ExpiresAt: expiresAt, IsValid: true}, nil
		},
	}
	handler := NewResetHandler(service, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/password-reset/verify", map[string]interface{}{"token": testToken})
	rec := httptest.NewRecorder()
	handler.VerifyToken(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Valid     bool  `json:"valid"`
		ExpiresAt int64 `json:"expires_at"`
	}
	DecodeResponse(t, rec, &resp)
	assert.True(t, resp.Valid)
	assert.Equal(t, expiresAt.Unix(), resp.ExpiresAt)
}

func TestVerifyToken_StateErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"invalid", models.ErrTokenInvalid, http.StatusBadRequest, "token_invalid"},
		{"expired", models.ErrTokenExpired, http.StatusBadRequest, "token_expired"},
		{"used", models.ErrTokenUsed, http.StatusBadRequest, "token_used"},
		{"invalidated", models.ErrTokenInvalidated, http.StatusBadRequest, "token_invalidated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &mockResetService{
				VerifyTokenFunc: func(ctx context.Context, plaintext string) (*models.PasswordResetToken, error) {
					return nil, tt.err
				},
			}
			handler := NewResetHandler(service, nil, nil)

			req := NewTestRequest(t, http.MethodPost, "/password-reset/verify", map[string]interface{}{"token": testToken})
			rec := httptest.NewRecorder()
			handler.VerifyToken(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestVerifyToken_LockedCarriesUnlockTime(t *testing.T) {
	unlockAt := time.Now().Add(20 * time.Minute)
	service := &mockResetService{
		VerifyTokenFunc: func(ctx context.Context, plaintext string) (*models.PasswordResetToken, error) {
			return nil, &models.LockedError{UnlockAt: unlockAt}
		},
	}
	handler := NewResetHandler(service, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/password-reset/verify", map[string]interface{}{"token": testToken})
	rec := httptest.NewRecorder()
	handler.VerifyToken(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)

	var resp struct {
		Error    string `json:"error"`
		UnlockAt int64  `json:"unlock_at"`
	}
	DecodeResponse(t, rec, &resp)
	assert.Equal(t, "account_locked", resp.Error)
	assert.Equal(t, unlockAt.Unix(), resp.UnlockAt)
}

func TestVerifyToken_RejectsMalformedToken(t *testing.T) {
	handler := NewResetHandler(&mockResetService{}, nil, nil)

	for _, token := range []string{"", "short", strings.Repeat("g", 64), strings.Repeat("a", 63)} {
		req := NewTestRequest(t, http.MethodPost, "/password-reset/verify", map[string]interface{}{"token": token})
		rec := httptest.NewRecorder()
		handler.VerifyToken(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "token %q must be rejected before the service is called", token)
	}
}

func TestResetPassword_Success(t *testing.T) {
	var gotPassword string
	service := &mockResetService{
		ConsumeTokenFunc: func(ctx context.Context, plaintext, newPassword, ipAddress string) error {
			gotPassword = newPassword
			return nil
		},
	}
	handler := NewResetHandler(service, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/password-reset/complete", map[string]interface{}{
		"token":        testToken,
		"new_password": "correct-horse-battery",
	})
	rec := httptest.NewRecorder()
	handler.ResetPassword(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "correct-horse-battery", gotPassword)
}

func TestResetPassword_ShortPasswordRejected(t *testing.T) {
	handler := NewResetHandler(&mockResetService{}, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/password-reset/complete", map[string]interface{}{
		"token":        testToken,
		"new_password": "short",
	})
	rec := httptest.NewRecorder()
	handler.ResetPassword(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetPassword_UserNotFound(t *testing.T) {
	service := &mockResetService{
		ConsumeTokenFunc: func(ctx context.Context, plaintext, newPassword, ipAddress string) error {
			return models.ErrNotFound
		},
	}
	handler := NewResetHandler(service, nil, nil)

	req := NewTestRequest(t, http.MethodPost, "/password-reset/complete", map[string]interface{}{
		"token":        testToken,
		"new_password": "correct-horse-battery",
	})
	rec := httptest.NewRecorder()
	handler.ResetPassword(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
