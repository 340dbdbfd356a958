package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/veridia/wellguard/internal/auth"
	"github.com/veridia/wellguard/internal/models"
	pkghttp "github.com/veridia/wellguard/pkg/http"
)

// LockoutUnlockerInterface defines the manual unlock operation
type LockoutUnlockerInterface interface {
	ManualUnlock(ctx context.Context, userID, approvedBy string) error
}

// AdminUserLookup resolves the account targeted by an admin action
type AdminUserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// AdminHandler handles operator-only endpoints. Routes mounting it must
// already enforce the admin role.
type AdminHandler struct {
	lockouts LockoutUnlockerInterface
	users    AdminUserLookup
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(lockouts LockoutUnlockerInterface, users AdminUserLookup) *AdminHandler {
	return &AdminHandler{
		lockouts: lockouts,
		users:    users,
	}
}

// UnlockAccountRequest represents the request body for a manual unlock
type UnlockAccountRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// UnlockAccount handles POST /admin/unlock-account
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetIdentityFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req UnlockAccountRequest
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

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if err := h.lockouts.ManualUnlock(r.Context(), user.ID, claims.UserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account is not locked")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
