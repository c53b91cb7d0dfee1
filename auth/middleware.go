package auth

import (
	"net/http"

	"chat-sync/domain"

	"github.com/gin-gonic/gin"
)

const (
	UserIDKey      = "user_id"
	DisplayNameKey = "display_name"
)

// RequireAuth validates the bearer token of REST calls and injects the user identity.
func RequireAuth(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.ValidateToken(TokenFromRequest(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHORIZED", "message": "invalid or expired token"},
			})
			return
		}
		c.Set(UserIDKey, domain.UserID(claims.UserID))
		c.Set(DisplayNameKey, claims.DisplayName)
		c.Next()
	}
}

// UserIDFrom returns the user injected by RequireAuth.
func UserIDFrom(c *gin.Context) domain.UserID {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(domain.UserID); ok {
			return id
		}
	}
	return ""
}
