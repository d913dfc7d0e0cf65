// Package middleware holds the gin middleware chain: request ids, bearer
// token resolution, and the single error renderer for the JSON envelope.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/types"
)

// RequestID assigns a correlation id to every request and threads it through
// the context-scoped logger fields.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(types.RequestIDContextKey.String(), requestID)
		c.Header("X-Request-ID", requestID)
		ctx := logger.WithField(c.Request.Context(), "request_id", requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
