package httptransport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chorus-server-go/internal/domain/auth"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
)

const ownerContextKey = "owner_id"

// RequireAuth guards the training and voice-model routes. Requests must carry
// a bearer token minted by the same server; the owner claim is stashed in the
// gin context for the handlers.
func RequireAuth(tokens *auth.AuthToken, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, err := ownerFromHeader(c, tokens)
		if err != nil {
			if logger != nil {
				logger.Warn("[Auth] rejected %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			}
			RespondError(c, http.StatusUnauthorized, "authorization required", nil)
			c.Abort()
			return
		}
		c.Set(ownerContextKey, ownerID)
		c.Next()
	}
}

// OptionalAuth resolves the owner when a valid token is present but lets
// anonymous requests through. The voice catalog uses it to append the
// caller's trained voices to the builtin list.
func OptionalAuth(tokens *auth.AuthToken) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens != nil {
			if ownerID, err := ownerFromHeader(c, tokens); err == nil {
				c.Set(ownerContextKey, ownerID)
			}
		}
		c.Next()
	}
}

// AnonymousOwner substitutes for RequireAuth when authentication is disabled.
// Every request runs as the fallback owner unless it names another one via
// the X-Owner-Id header.
func AnonymousOwner(fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := c.GetHeader("X-Owner-Id")
		if owner == "" {
			owner = fallback
		}
		c.Set(ownerContextKey, owner)
		c.Next()
	}
}

func ownerFromHeader(c *gin.Context, tokens *auth.AuthToken) (string, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New(errors.KindInvalidRequest, "http.auth", "invalid auth header format")
	}
	return tokens.VerifyToken(strings.TrimPrefix(header, "Bearer "))
}

// OwnerID returns the authenticated owner for the current request, or "" when
// the route ran without authentication.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerContextKey)
}
