package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridia/wellguard/internal/models"
	"github.com/veridia/wellguard/internal/services"
)

func testClaims() *models.IdentityClaims {
	return &models.IdentityClaims{UserID: "user-1", Email: "pat@example.com", Role: "patient"}
}

func TestListSessions_RequiresIdentity(t *testing.T) {
	handler := NewSessionHandler(&mockSessionService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListSessions_ReturnsLabeledSessions(t *testing.T) {
	now := time.Now()
	service := &mockSessionService{
		ListFunc: func(ctx context.Context, userID string) ([]*services.SessionInfo, error) {
			assert.Equal(t, "user-1", userID)
			return []*services.SessionInfo{
				{
					Session: &models.Session{
						ID: "session-1", UserID: userID, IPAddress: "198.51.100.4",
						LoginMethod: models.LoginMethodPassword,
						CreatedAt:   now, LastActivityAt: now, ExpiresAt: now.Add(24 * time.Hour),
					},
					DeviceLabel:   "Chrome on Windows 10",
				DeviceTrusted: true,
				},
			}, nil
		},
	}
	handler := NewSessionHandler(service, nil)

	req := WithIdentity(httptest.NewRequest(http.MethodGet, "/sessions", nil), testClaims())
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ListSessionsResponse
	DecodeResponse(t, rec, &resp)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, "session-1", resp.Sessions[0].ID)
	assert.Equal(t, "Chrome on Windows 10", resp.Sessions[0].Device)
	assert.True(t, resp.Sessions[0].DeviceTrusted)
}

func TestCreateSession_DefaultsLoginMethod(t *testing.T) {
	var gotMethod string
	service := &mockSessionService{
		CreateFunc: func(ctx context.Context, userID, email, ipAddress, userAgent, loginMethod string, clientFingerprint *string) (*models.Session, error) {
			gotMethod = loginMethod
			return &models.Session{ID: "session-1", SessionToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	handler := NewSessionHandler(service, nil)

	req := WithIdentity(NewTestRequest(t, http.MethodPost, "/sessions", map[string]interface{}{}), testClaims())
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.LoginMethodPassword, gotMethod)
}

func TestCreateSession_PassesFingerprint(t *testing.T) {
	var gotFingerprint *string
	service := &mockSessionService{
		CreateFunc: func(ctx context.Context, userID, email, ipAddress, userAgent, loginMethod string, clientFingerprint *string) (*models.Session, error) {
			gotFingerprint = clientFingerprint
			return &models.Session{ID: "session-1", SessionToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	handler := NewSessionHandler(service, nil)

	req := WithIdentity(NewTestRequest(t, http.MethodPost, "/sessions", map[string]interface{}{
		"device_fingerprint": "canvas:abc|tz:utc",
		"login_method":       "sso",
	}), testClaims())
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, gotFingerprint)
	assert.Equal(t, "canvas:abc|tz:utc", *gotFingerprint)
}

func TestRevokeSession_SingleSession(t *testing.T) {
	var revokedID string
	service := &mockSessionService{
		RevokeFunc: func(ctx context.Context, userID, sessionID string) error {
			revokedID = sessionID
			return nil
		},
	}
	handler := NewSessionHandler(service, nil)

	req := WithIdentity(NewTestRequest(t, http.MethodDelete, "/sessions", map[string]interface{}{
		"session_id": "0d4cfe4e-8f1a-4ba9-9f2c-94c4a3c2bb10",
	}), testClaims())
	rec := httptest.NewRecorder()
	handler.Revoke(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0d4cfe4e-8f1a-4ba9-9f2c-94c4a3c2bb10", revokedID)
}

func TestRevokeSession_NotFound(t *testing.T) {
	service := &mockSessionService{
		RevokeFunc: func(ctx context.Context, userID, sessionID string) error {
			return models.ErrNotFound
		},
	}
	handler := NewSessionHandler(service, nil)

	req := WithIdentity(NewTestRequest(t, http.MethodDelete, "/sessions", map[string]interface{}{
		"session_id": "0d4cfe4e-8f1a-4ba9-9f2c-94c4a3c2bb10",
	}), testClaims())
	rec := httptest.NewRecorder()
	handler.Revoke(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRevokeSession_All(t *testing.T) {
	called := false
	service := &mockSessionService{
		RevokeAllFunc: func(ctx context.Context, userID string) (int64, error) {
			called = true
			return 3, nil
		},
	}
	handler := NewSessionHandler(service, nil)

	req := WithIdentity(NewTestRequest(t, http.MethodDelete, "/sessions", map[string]interface{}{
		"revoke_all": true,
	}), testClaims())
	rec := httptest.NewRecorder()
	handler.Revoke(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func touchRequest(t *testing.T, sessionID string) *http.Request {
	req := WithIdentity(httptest.NewRequest(http.MethodPost, "/sessions/"+sessionID+"/touch", nil), testClaims())
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", sessionID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestTouchSession_RefreshesActivity(t *testing.T) {
	var gotUser, gotSession string
	service := &mockSessionService{
		TouchFunc: func(ctx context.Context, userID, sessionID string) error {
			gotUser, gotSession = userID, sessionID
			return nil
		},
	}
	handler := NewSessionHandler(service, nil)

	rec := httptest.NewRecorder()
	handler.Touch(rec, touchRequest(t, "0d4cfe4e-8f1a-4ba9-9f2c-94c4a3c2bb10"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "0d4cfe4e-8f1a-4ba9-9f2c-94c4a3c2bb10", gotSession)
}

func TestTouchSession_RejectsMalformedID(t *testing.T) {
	handler := NewSessionHandler(&mockSessionService{}, nil)

	rec := httptest.NewRecorder()
	handler.Touch(rec, touchRequest(t, "not-a-uuid"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTouchSession_NotFound(t *testing.T) {
	service := &mockSessionService{
		TouchFunc: func(ctx context.Context, userID, sessionID string) error {
			return models.ErrNotFound
		},
	}
	handler := NewSessionHandler(service, nil)

	rec := httptest.NewRecorder()
	handler.Touch(rec, touchRequest(t, "0d4cfe4e-8f1a-4ba9-9f2c-94c4a3c2bb10"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRevokeSession_RejectsAmbiguousRequest(t *testing.T) {
	handler := NewSessionHandler(&mockSessionService{}, nil)

	for _, body := range []map[string]interface{}{
		{},
		{"session_id": "0d4cfe4e-8f1a-4ba9-9f2c-94c4a3c2bb10", "revoke_all": true},
	} {
		req := WithIdentity(NewTestRequest(t, http.MethodDelete, "/sessions", body), testClaims())
		rec := httptest.NewRecorder()
		handler.Revoke(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}
