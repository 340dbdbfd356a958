package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/veridia/wellguard/internal/models"
)

// Resolver verifies bearer tokens issued by the platform's identity
// provider and resolves the caller's identity and role. This service
// only consumes tokens; issuance lives with the identity provider.
type Resolver struct {
	secret []byte
}

// NewResolver creates a Resolver for the shared verification secret
func NewResolver(secret string) *Resolver {
	return &Resolver{secret: []byte(secret)}
}

// Resolve parses and verifies a bearer token string
func (r *Resolver) Resolve(tokenString string) (*models.IdentityClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.IdentityClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.IdentityClaims)
	if !ok || !token.Valid {
		return nil, models.ErrUnauthorized
	}

	if claims.UserID == "" {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
