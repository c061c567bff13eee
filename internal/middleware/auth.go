package middleware

import (
	"context"
	"errors"
	"net/http"
	"piiquante/internal/services"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	CallerIDKey     = "caller_id"
	SessionTokenKey = "token"
)

// Authenticator resolves a token to a user id. *services.AuthService
// implements it. Rejected tokens must wrap services.ErrUnauthorized; any
// other error is treated as a server fault.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// AuthRequired rejects requests without a valid token. The token is read
// from the Authorization header first, then from the session cookie when
// sessions are enabled.
func AuthRequired(auth Authenticator, useSession bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && useSession {
			if v, ok := sessions.Default(c).Get(SessionTokenKey).(string); ok {
				token = v
			}
		}

		userID, err := auth.Authenticate(c.Request.Context(), token)
		if errors.Is(err, services.ErrUnauthorized) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized request"})
			return
		}
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		c.Set(CallerIDKey, userID)
		c.Next()
	}
}

// CallerID returns the authenticated user id, or "" outside AuthRequired.
func CallerID(c *gin.Context) string {
	return c.GetString(CallerIDKey)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
