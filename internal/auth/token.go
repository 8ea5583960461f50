// Package auth provides the client-side slice of SyncKit's JWT surface:
// minting access tokens for development use and decoding tokens the
// application hands us to derive a session display label. Verification is
// server-owned and deliberately absent here.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DocumentPermissions represents document-level permissions
type DocumentPermissions struct {
	CanRead  []string `json:"canRead"`
	CanWrite []string `json:"canWrite"`
	IsAdmin  bool     `json:"isAdmin"`
}

// TokenPayload represents JWT token claims
type TokenPayload struct {
	UserID      string              `json:"userId"`
	Email       string              `json:"email,omitempty"`
	Permissions DocumentPermissions `json:"permissions"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrShortSecret  = errors.New("JWT secret must be at least 32 characters")
)

// GenerateAccessToken generates a JWT access token. Intended for development
// and testing against a server sharing the secret; production tokens come
// from the application's auth service.
func GenerateAccessToken(userID string, email string, permissions DocumentPermissions, secret string, expiresIn time.Duration) (string, error) {
	if len(secret) < 32 {
		return "", ErrShortSecret
	}

	now := time.Now()
	claims := &TokenPayload{
		UserID:      userID,
		Email:       email,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// DecodeTokenWithoutVerification decodes token claims without checking the
// signature. The client never authorizes anything with these claims; they
// feed presence labels only.
func DecodeTokenWithoutVerification(tokenString string) (*TokenPayload, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &TokenPayload{})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*TokenPayload); ok {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// UserLabel derives a human-readable label from a token, preferring userId
// over email. Returns "" when the token is absent or undecodable.
func UserLabel(tokenString string) string {
	if tokenString == "" {
		return ""
	}
	payload, err := DecodeTokenWithoutVerification(tokenString)
	if err != nil {
		return ""
	}
	if payload.UserID != "" {
		return payload.UserID
	}
	return payload.Email
}
