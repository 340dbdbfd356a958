package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/veridia/wellguard/internal/services"
	pkghttp "github.com/veridia/wellguard/pkg/http"
)

// AttemptTrackerInterface defines the interface for login attempt tracking
type AttemptTrackerInterface interface {
	Record(ctx context.Context, email string, success bool, ipAddress, userAgent string, failureReason *string) (*services.AttemptResult, error)
}

// AttemptHandler handles login attempt recording
type AttemptHandler struct {
	tracker  AttemptTrackerInterface
	ipConfig *pkghttp.IPConfig
	accounts *AccountLimiter
}

// NewAttemptHandler creates a new AttemptHandler
func NewAttemptHandler(tracker AttemptTrackerInterface, ipConfig *pkghttp.IPConfig, accounts *AccountLimiter) *AttemptHandler {
	return &AttemptHandler{
		tracker:  tracker,
		ipConfig: ipConfig,
		accounts: accounts,
	}
}

// RecordAttemptRequest represents the request body for recording a login attempt
type RecordAttemptRequest struct {
	Email         string  `json:"email" validate:"required,email"`
	Success       bool    `json:"success"`
	FailureReason *string `json:"failure_reason,omitempty" validate:"omitempty,max=255"`
	UserAgent     *string `json:"user_agent,omitempty" validate:"omitempty,max=1024"`
}

// RecordAttemptResponse reports the resulting lockout state. UnlockAt is
// present only when locked; RemainingAttempts only when a countdown applies.
type RecordAttemptResponse struct {
	Locked            bool   `json:"locked"`
	UnlockAt          *int64 `json:"unlock_at,omitempty"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// Record handles POST /login-attempts
func (h *AttemptHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req RecordAttemptRequest
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
	userAgent := r.Header.Get("User-Agent")
	if req.UserAgent != nil && *req.UserAgent != "" {
		userAgent = *req.UserAgent
	}

	result, err := h.tracker.Record(r.Context(), req.Email, req.Success, ipAddress, userAgent, req.FailureReason)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := RecordAttemptResponse{Locked: result.Locked}
	if result.UnlockAt != nil {
		epoch := result.UnlockAt.Unix()
		resp.UnlockAt = &epoch
	}
	if result.RemainingAttempts != nil {
		resp.RemainingAttempts = result.RemainingAttempts
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
