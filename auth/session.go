package auth

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chat-sync/domain"

	"github.com/google/uuid"
)

const (
	bearerPrefix = "Bearer "
	tokenQuery   = "token"
	tokenCookie  = "access_token"
)

// SessionGate authenticates a connection handshake. It runs before the websocket
// upgrade, so a rejected client never has an open socket.
type SessionGate struct {
	tokens *TokenManager
	log    *slog.Logger
}

func NewSessionGate(tokens *TokenManager, log *slog.Logger) *SessionGate {
	return &SessionGate{tokens: tokens, log: log}
}

// Authenticate returns the identity of the connection or ErrUnauthorized.
func (g *SessionGate) Authenticate(r *http.Request) (domain.Connection, error) {
	claims, err := g.tokens.ValidateToken(TokenFromRequest(r))
	if err != nil {
		g.log.Debug("Handshake rejected", "remote_addr", r.RemoteAddr, "error", err)
		return domain.Connection{}, err
	}
	return domain.Connection{
		ID:          domain.ConnID(uuid.NewString()),
		UserID:      domain.UserID(claims.UserID),
		DisplayName: claims.DisplayName,
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: time.Now().UTC(),
	}, nil
}

// TokenFromRequest reads the bearer header, then the token query parameter, then the cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	}
	if t := r.URL.Query().Get(tokenQuery); t != "" {
		return t
	}
	if c, err := r.Cookie(tokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// Reject writes the distinguishable answer of a refused handshake.
func Reject(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="chat-sync"`)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}
