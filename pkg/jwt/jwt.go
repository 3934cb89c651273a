// Package jwt provides JWT token generation and validation for the gateway.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed or the
	// signature does not verify.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptySubject is returned when the subject claim is missing.
	ErrEmptySubject = errors.New("subject cannot be empty")
)

// Claims represents the gateway's JWT claims.
// The subject carries the user ID; Role is the user's global role.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and validates HS256 tokens against a shared signing secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewManager creates a token manager.
func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "gateway",
	}, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Generate creates a signed token for the given user.
func (m *Manager) Generate(userID, role string) (string, error) {
	if userID == "" {
		return "", ErrEmptySubject
	}

	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrEmptySubject
	}
	return claims, nil
}
