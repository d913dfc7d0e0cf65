package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/types"
)

// ErrorRenderer converts accumulated gin errors into the single JSON error
// envelope {"success": false, "detail": "..."} with the taxonomy's HTTP
// status, plus Retry-After on rate limits.
func ErrorRenderer() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		ae := errors.AsAppError(err)
		if ae.RequestID == "" {
			ae.RequestID = c.GetString(types.RequestIDContextKey.String())
		}
		if ae.Kind == errors.KindInternal {
			logger.ErrorWithFields(c.Request.Context(), "request failed", map[string]interface{}{
				"error": err.Error(), "path": c.FullPath(),
			})
		}
		if ae.Kind == errors.KindRateLimited && ae.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(ae.RetryAfter))
		}
		body := gin.H{"success": false, "detail": ae.Message}
		if ae.Kind == errors.KindInternal {
			body["request_id"] = ae.RequestID
		}
		c.JSON(ae.HTTPStatus, body)
	}
}

// Recovery converts panics into the same envelope instead of a bare 500.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.ErrorWithFields(c.Request.Context(), "panic recovered", map[string]interface{}{
			"panic": recovered, "path": c.FullPath(),
		})
		c.AbortWithStatusJSON(500, gin.H{
			"success":    false,
			"detail":     "internal server error",
			"request_id": c.GetString(types.RequestIDContextKey.String()),
		})
	})
}
