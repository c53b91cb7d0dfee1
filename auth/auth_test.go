package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-sync/domain"
	"chat-sync/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "MonMotDePasseTr0pSûr!"

	hash, err := HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("MauvaisMDP", hash)
	req.NoError(err)
	req.False(match)
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr bool
	}{
		{"Valid request", RegisterRequest{"test@example.com", "ComplexPass123!", "Tester"}, false},
		{"Invalid email", RegisterRequest{"notanemail", "ComplexPass123!", ""}, true},
		{"Password too short", RegisterRequest{"test@example.com", "Short1!", ""}, true},
		{"Missing digit", RegisterRequest{"test@example.com", "NoDigitPass!", ""}, true},
		{"Missing special char", RegisterRequest{"test@example.com", "NoSpecialChar123", ""}, true},
		{"Missing uppercase", RegisterRequest{"test@example.com", "nouppercase123!", ""}, true},
		{"Display name too short", RegisterRequest{"test@example.com", "ComplexPass123!", "x"}, true},
		{"Password too long (edge case)", RegisterRequest{"test@example.com", strings.Repeat("a", 73), ""}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegister(tt.req)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTokenManager_Validate_And_Refresh(t *testing.T) {
	req := require.New(t)
	now := time.Now()
	tokens := NewTokenManager("test-secret", time.Minute, time.Hour).WithClock(func() time.Time { return now })

	// Given a token issued now
	token, err := tokens.GenerateToken(domain.User{ID: "u1", DisplayName: "Alice", Roles: []string{"user"}})
	req.NoError(err)

	claims, err := tokens.ValidateToken(token)
	req.NoError(err)
	req.Equal("u1", claims.UserID)
	req.Equal("Alice", claims.DisplayName)

	// When the clock passes its expiry
	now = now.Add(2 * time.Minute)

	// Then it's rejected as unauthorized
	_, err = tokens.ValidateToken(token)
	req.ErrorIs(err, errors.ErrUnauthorized)

	// But it can still be refreshed inside the grace window
	refreshed, err := tokens.Refresh(token)
	req.NoError(err)
	claims, err = tokens.ValidateToken(refreshed)
	req.NoError(err)
	req.Equal("u1", claims.UserID)

	// And not after it
	now = now.Add(2 * time.Hour)
	_, err = tokens.Refresh(token)
	req.ErrorIs(err, errors.ErrUnauthorized)
}

func TestTokenManager_Rejects_Foreign_Signature(t *testing.T) {
	req := require.New(t)
	other, err := NewTokenManager("other-secret", time.Minute, 0).GenerateToken(domain.User{ID: "u1"})
	req.NoError(err)

	_, err = NewTokenManager("test-secret", time.Minute, 0).ValidateToken(other)
	req.ErrorIs(err, errors.ErrUnauthorized)
}

func TestSessionGate_Authenticate(t *testing.T) {
	tokens := NewTokenManager("test-secret", time.Minute, 0)
	gate := NewSessionGate(tokens, slog.Default())
	token, err := tokens.GenerateToken(domain.User{ID: "u1", DisplayName: "Alice"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		request func() *http.Request
		wantErr bool
	}{
		{"bearer header", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Header.Set("Authorization", "Bearer "+token)
			return r
		}, false},
		{"query parameter", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		}, false},
		{"cookie", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.AddCookie(&http.Cookie{Name: "access_token", Value: token})
			return r
		}, false},
		{"missing", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/ws", nil)
		}, true},
		{"garbage", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/ws?token=garbage", nil)
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			conn, err := gate.Authenticate(tt.request())
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrUnauthorized)
				req.Empty(conn.ID)
				return
			}
			req.NoError(err)
			req.Equal(domain.UserID("u1"), conn.UserID)
			req.Equal("Alice", conn.DisplayName)
			req.NotEmpty(conn.ID)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	tokens := NewTokenManager("test-secret", time.Minute, 0)
	token, err := tokens.GenerateToken(domain.User{ID: "u1"})
	req.NoError(err)

	router := gin.New()
	router.GET("/me", RequireAuth(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, string(UserIDFrom(c)))
	})

	// When a valid token is presented
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, r)

	// Then the identity reaches the handler
	req.Equal(http.StatusOK, w.Code)
	req.Equal("u1", w.Body.String())

	// And a missing token is refused
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	req.Equal(http.StatusUnauthorized, w.Code)
}

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}
