package auth

import (
	"fmt"
	"time"

	"chat-sync/domain"
	"chat-sync/errors"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-sync"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID      string   `json:"user_id"`
	DisplayName string   `json:"display_name"`
	Roles       []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 tokens.
type TokenManager struct {
	secret       []byte
	ttl          time.Duration
	refreshGrace time.Duration
	now          func() time.Time
}

func NewTokenManager(secret string, ttl, refreshGrace time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, refreshGrace: refreshGrace, now: time.Now}
}

// WithClock replaces the time source, used by tests to travel past expiry.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// GenerateToken creates a signed JWT for a specific user.
func (m *TokenManager) GenerateToken(user domain.User) (string, error) {
	return m.sign(CustomClaims{
		UserID:      string(user.ID),
		DisplayName: user.DisplayName,
		Roles:       user.Roles,
	})
}

func (m *TokenManager) sign(claims CustomClaims) (string, error) {
	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrTokenGeneration, err)
	}
	return token, nil
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (m *TokenManager) ValidateToken(tokenString string) (*CustomClaims, error) {
	return m.parse(tokenString, 0)
}

// Refresh issues a fresh token for a token that is still valid or expired for less than the refresh grace.
func (m *TokenManager) Refresh(tokenString string) (string, error) {
	claims, err := m.parse(tokenString, m.refreshGrace)
	if err != nil {
		return "", err
	}
	return m.sign(CustomClaims{UserID: claims.UserID, DisplayName: claims.DisplayName, Roles: claims.Roles})
}

func (m *TokenManager) parse(tokenString string, leeway time.Duration) (*CustomClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: token is missing", errors.ErrUnauthorized)
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid claims", errors.ErrUnauthorized)
	}
	return claims, nil
}
