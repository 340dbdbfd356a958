package models

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims are the claims carried by the platform-issued bearer token.
// This service only consumes pre-issued tokens; it never signs them.
type IdentityClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
