package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token purposes
const (
	PurposeAccess        = "access"
	PurposePasswordReset = "password_reset"
)

var (
	// ErrInvalidToken is returned for malformed, tampered or wrongly-scoped tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token is past its expiry
	ErrExpiredToken = errors.New("token expired")
)

// Identity is who a token speaks for
type Identity struct {
	UserID  uint
	Name    string
	IsAdmin bool
}

// Claims carries the identity the rest of the service trusts
type Claims struct {
	UserID  uint   `json:"uid"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"adm,omitempty"`
	Purpose string `json:"pur"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// NewTokenManager creates a manager for the given secret
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time source, used by tests
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// Issue signs a token for id with the given purpose and lifetime
func (m *TokenManager) Issue(id Identity, purpose string, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:  id.UserID,
		Name:    id.Name,
		IsAdmin: id.IsAdmin,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(id.UserID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, expiry and purpose
func (m *TokenManager) Parse(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
