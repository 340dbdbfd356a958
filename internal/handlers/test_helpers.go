package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veridia/wellguard/internal/auth"
	"github.com/veridia/wellguard/internal/models"
	"github.com/veridia/wellguard/internal/services"
)

// NewTestRequest creates an HTTP request with a JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithIdentity attaches resolved identity claims, as RequireIdentity would
func WithIdentity(r *http.Request, claims *models.IdentityClaims) *http.Request {
	ctx := context.WithValue(r.Context(), auth.IdentityContextKey, claims)
	return r.WithContext(ctx)
}

// DecodeResponse decodes a JSON response body into out
func DecodeResponse(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

// Func-field service mocks

type mockAttemptTracker struct {
	RecordFunc func(ctx context.Context, email string, success bool, ipAddress, userAgent string, failureReason *string) (*services.AttemptResult, error)
}

func (m *mockAttemptTracker) Record(ctx context.Context, email string, success bool, ipAddress, userAgent string, failureReason *string) (*services.AttemptResult, error) {
	return m.RecordFunc(ctx, email, success, ipAddress, userAgent, failureReason)
}

type mockResetService struct {
	RequestResetFunc func(ctx context.Context, email, ipAddress string) error
	VerifyTokenFunc  func(ctx context.Context, plaintext string) (*models.PasswordResetToken, error)
	ConsumeTokenFunc func(ctx context.Context, plaintext, newPassword, ipAddress string) error
}

func (m *mockResetService) RequestReset(ctx context.Context, email, ipAddress string) error {
	return m.RequestResetFunc(ctx, email, ipAddress)
}

func (m *mockResetService) VerifyToken(ctx context.Context, plaintext string) (*models.PasswordResetToken, error) {
	return m.VerifyTokenFunc(ctx, plaintext)
}

func (m *mockResetService) ConsumeToken(ctx context.Context, plaintext, newPassword, ipAddress string) error {
	return m.ConsumeTokenFunc(ctx, plaintext, newPassword, ipAddress)
}

type mockSessionService struct {
	ListFunc      func(ctx context.Context, userID string) ([]*services.SessionInfo, error)
	CreateFunc    func(ctx context.Context, userID, email, ipAddress, userAgent, loginMethod string, clientFingerprint *string) (*models.Session, error)
	RevokeFunc    func(ctx context.Context, userID, sessionID string) error
	RevokeAllFunc func(ctx context.Context, userID string) (int64, error)
	TouchFunc     func(ctx context.Context, userID, sessionID string) error
}

func (m *mockSessionService) List(ctx context.Context, userID string) ([]*services.SessionInfo, error) {
	return m.ListFunc(ctx, userID)
}

func (m *mockSessionService) Create(ctx context.Context, userID, email, ipAddress, userAgent, loginMethod string, clientFingerprint *string) (*models.Session, error) {
	return m.CreateFunc(ctx, userID, email, ipAddress, userAgent, loginMethod, clientFingerprint)
}

func (m *mockSessionService) Revoke(ctx context.Context, userID, sessionID string) error {
	return m.RevokeFunc(ctx, userID, sessionID)
}

func (m *mockSessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	return m.RevokeAllFunc(ctx, userID)
}

func (m *mockSessionService) Touch(ctx context.Context, userID, sessionID string) error {
	return m.TouchFunc(ctx, userID, sessionID)
}

type mockLockoutUnlocker struct {
	ManualUnlockFunc func(ctx context.Context, userID, approvedBy string) error
}

func (m *mockLockoutUnlocker) ManualUnlock(ctx context.Context, userID, approvedBy string) error {
	return m.ManualUnlockFunc(ctx, userID, approvedBy)
}

type mockAdminUserLookup struct {
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
}

func (m *mockAdminUserLookup) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.GetByEmailFunc(ctx, email)
}
