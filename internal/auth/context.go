package auth

import (
	"net/http"

	"github.com/veridia/wellguard/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// IdentityContextKey is the key for storing identity claims in context
	IdentityContextKey contextKey = "identity"
)

// GetIdentityFromContext returns the resolved identity claims, or nil if
// the request did not pass through RequireIdentity
func GetIdentityFromContext(r *http.Request) *models.IdentityClaims {
	claims, ok := r.Context().Value(IdentityContextKey).(*models.IdentityClaims)
	if !ok {
		return nil
	}
	return claims
}
