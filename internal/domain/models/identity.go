package models

import "github.com/golang-jwt/jwt/v5"

// IdentityClaims are the JWT claims this service consumes from the
// identity provider. Credentials themselves are never managed here.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
	Email string   `json:"email,omitempty"`
}

// UserID returns the verified user identity (token subject).
func (c *IdentityClaims) UserID() string {
	return c.Subject
}
