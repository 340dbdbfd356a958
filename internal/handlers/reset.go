package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/veridia/wellguard/internal/models"
	pkghttp "github.com/veridia/wellguard/pkg/http"
)

// ResetServiceInterface defines the interface for the password reset flow
type ResetServiceInterface interface {
	RequestReset(ctx context.Context, email, ipAddress string) error
	VerifyToken(ctx context.Context, plaintext string) (*models.PasswordResetToken, error)
	ConsumeToken(ctx context.Context, plaintext, newPassword, ipAddress string) error
}

// ResetHandler handles the password reset endpoints
type ResetHandler struct {
	service  ResetServiceInterface
	ipConfig *pkghttp.IPConfig
	accounts *AccountLimiter
}

// NewResetHandler creates a new ResetHandler
func NewResetHandler(service ResetServiceInterface, ipConfig *pkghttp.IPConfig, accounts *AccountLimiter) *ResetHandler {
	return &ResetHandler{
		service:  service,
		ipConfig: ipConfig,
		accounts: accounts,
	}
}

// RequestResetRequest represents the request body for requesting a reset
type RequestResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyTokenRequest carries the plaintext token as issued: 64 hex characters
type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required,len=64,hexadecimal"`
}

// ResetPasswordRequest represents the request body for completing a reset
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required,len=64,hexadecimal"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// resetRequestedBody is the fixed response for reset requests. It must be
// identical whether or not the email maps to an account.
var resetRequestedBody = map[string]interface{}{
	"success": true,
	"message": "If an account exists for that email, a reset link has been sent.",
}

// RequestReset handles POST /password-reset/request
func (h *ResetHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req RequestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	// Normalize before validating so padded input is accepted.
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if !h.accounts.allow(w, r, req.Email) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.RequestReset(r.Context(), req.Email, ipAddress); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resetRequestedBody)
}

// VerifyToken handles POST /password-reset/verify
func (h *ResetHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	token, err := h.service.VerifyToken(r.Context(), req.Token)
	if err != nil {
		writeTokenError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"valid":      true,
		"expires_at": token.ExpiresAt.Unix(),
	})
}

// ResetPassword handles POST /password-reset/complete
func (h *ResetHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.ConsumeToken(r.Context(), req.Token, req.NewPassword, ipAddress); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		writeTokenError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Password has been reset. Please sign in again on all devices.",
	})
}

// writeTokenError maps token-state and lockout errors to the boundary.
// Token states are safe to name: they describe the token the caller
// already holds, never account existence.
func writeTokenError(w http.ResponseWriter, err error) {
	var locked *models.LockedError
	if errors.As(err, &locked) {
		pkghttp.WriteLocked(w, locked.UnlockAt)
		return
	}

	switch {
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteError(w, http.StatusBadRequest, "token_expired", "Reset token has expired")
	case errors.Is(err, models.ErrTokenUsed):
		pkghttp.WriteError(w, http.StatusBadRequest, "token_used", "Reset token has already been used")
	case errors.Is(err, models.ErrTokenInvalidated):
		pkghttp.WriteError(w, http.StatusBadRequest, "token_invalidated", "Reset token has been superseded by a newer request")
	case errors.Is(err, models.ErrTokenInvalid):
		pkghttp.WriteError(w, http.StatusBadRequest, "token_invalid", "Reset token is invalid")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
