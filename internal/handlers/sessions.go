package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/veridia/wellguard/internal/auth"
	"github.com/veridia/wellguard/internal/models"
	"github.com/veridia/wellguard/internal/services"
	pkghttp "github.com/veridia/wellguard/pkg/http"
)

// SessionServiceInterface defines the interface for session management
type SessionServiceInterface interface {
	List(ctx context.Context, userID string) ([]*services.SessionInfo, error)
	Create(ctx context.Context, userID, email, ipAddress, userAgent, loginMethod string, clientFingerprint *string) (*models.Session, error)
	Revoke(ctx context.Context, userID, sessionID string) error
	RevokeAll(ctx context.Context, userID string) (int64, error)
	Touch(ctx context.Context, userID, sessionID string) error
}

// SessionHandler handles session management for the authenticated user
type SessionHandler struct {
	service  SessionServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(service SessionServiceInterface, ipConfig *pkghttp.IPConfig) *SessionHandler {
	return &SessionHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// CreateSessionRequest represents the request body for registering a session
type CreateSessionRequest struct {
	DeviceFingerprint *string `json:"device_fingerprint,omitempty" validate:"omitempty,max=512"`
	LoginMethod       string  `json:"login_method,omitempty" validate:"omitempty,oneof=password oauth sso"`
}

// RevokeSessionRequest revokes one session, or all of them
type RevokeSessionRequest struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,uuid"`
	RevokeAll bool   `json:"revoke_all,omitempty"`
}

// SessionResponse is one session as shown to its owner. The session
// token itself is never echoed back after creation.
type SessionResponse struct {
	ID             string `json:"id"`
	Device         string `json:"device"`
	DeviceTrusted  bool   `json:"device_trusted"`
	IPAddress      string `json:"ip_address"`
	LoginMethod    string `json:"login_method"`
	CreatedAt      int64  `json:"created_at"`
	LastActivityAt int64  `json:"last_activity_at"`
	ExpiresAt      int64  `json:"expires_at"`
}

// ListSessionsResponse represents the response for listing sessions
type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Total    int               `json:"total"`
}

// List handles GET /sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetIdentityFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	infos, err := h.service.List(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	sessions := make([]SessionResponse, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, SessionResponse{
			ID:             info.Session.ID,
			Device:         info.DeviceLabel,
			DeviceTrusted:  info.DeviceTrusted,
			IPAddress:      info.Session.IPAddress,
			LoginMethod:    info.Session.LoginMethod,
			CreatedAt:      info.Session.CreatedAt.Unix(),
			LastActivityAt: info.Session.LastActivityAt.Unix(),
			ExpiresAt:      info.Session.ExpiresAt.Unix(),
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, ListSessionsResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// Create handles POST /sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetIdentityFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req CreateSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid request body")
			return
		}
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	loginMethod := req.LoginMethod
	if loginMethod == "" {
		loginMethod = models.LoginMethodPassword
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	session, err := h.service.Create(r.Context(), claims.UserID, claims.Email, ipAddress, userAgent, loginMethod, req.DeviceFingerprint)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id":    session.ID,
		"session_token": session.SessionToken,
		"expires_at":    session.ExpiresAt.Format(time.RFC3339),
	})
}

// Touch handles POST /sessions/{sessionID}/touch, refreshing the
// session's last-activity timestamp on behalf of the calling platform.
func (h *SessionHandler) Touch(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetIdentityFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if uuid.Validate(sessionID) != nil {
		pkghttp.WriteBadRequest(w, "Invalid session id")
		return
	}

	if err := h.service.Touch(r.Context(), claims.UserID, sessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Session not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// Revoke handles DELETE /sessions
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetIdentityFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req RevokeSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if req.RevokeAll == (req.SessionID != "") {
		pkghttp.WriteBadRequest(w, "Provide either session_id or revoke_all, not both")
		return
	}

	if req.RevokeAll {
		if _, err := h.service.RevokeAll(r.Context(), claims.UserID); err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	} else {
		if err := h.service.Revoke(r.Context(), claims.UserID, req.SessionID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				pkghttp.WriteNotFound(w, "Session not found")
				return
			}
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
