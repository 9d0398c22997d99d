package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"chatline/api/internal/service"
)

const (
	ContextIdentity    = "identity"
	ContextAccessToken = "access_token"
)

// Auth is the authentication gate: it validates the bearer credential and
// attaches the resolved identity to the request. Every failure mode answers
// with the same bare 401 so callers learn nothing about why a token failed;
// the specific reason stays in the audit log.
func Auth(auth *service.AuthService, sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		identity, err := auth.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(ContextIdentity, identity)
		c.Set(ContextAccessToken, token)

		// Touch is best-effort and off the request path.
		ip := c.ClientIP()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sessions.Touch(ctx, identity.SessionID, ip)
		}()

		c.Next()
	}
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	return token, token != ""
}

// CallerIdentity returns the identity the gate attached, if any.
func CallerIdentity(c *gin.Context) (service.Identity, bool) {
	val, exists := c.Get(ContextIdentity)
	if !exists {
		return service.Identity{}, false
	}
	identity, ok := val.(service.Identity)
	return identity, ok
}
