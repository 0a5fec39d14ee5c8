package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/naveenspark/mylibrary/pkg/domain"
)

// Claims are the ID-token fields the client reads. The backend verifies the
// signature; the client only needs identity and expiry.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone_number,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ParseClaims decodes an ID token without verifying it.
func ParseClaims(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}
	if claims.UID() == "" {
		return nil, fmt.Errorf("parse id token: %w", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// UID returns the user id, preferring user_id over sub.
func (c *Claims) UID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Expiry returns the exp claim, or the zero time.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Principal converts the claims to the signed-in user.
func (c *Claims) Principal() *domain.Principal {
	return &domain.Principal{
		UID:         c.UID(),
		Email:       c.Email,
		Phone:       c.Phone,
		DisplayName: c.Name,
	}
}
