package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/marginalia-labs/marginalia/internal/application/auth"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/types"
)

// Auth resolves the Authorization bearer token to a user id via the token
// resolver chain and stores it on the request context. Requests without a
// resolvable identity are rejected before reaching any handler.
func Auth(resolver *auth.TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.Error(errors.NewAuthMissingError("missing Authorization header"))
			c.Abort()
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		userID, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		c.Set(types.UserIDContextKey.String(), userID)
		ctx := logger.WithField(c.Request.Context(), "user_id", userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// UserID reads the resolved auth identity off the gin context.
func UserID(c *gin.Context) string {
	return c.GetString(types.UserIDContextKey.String())
}
