package middleware

import (
	"math"
	"net/http"
	"strconv"

	"backend/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimit creates a Gin middleware applying a sliding-window limiter keyed
// by client IP. Denied requests get a 429 with a Retry-After header in whole
// seconds, rounded up.
func RateLimit(limiter *ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := limiter.Check(c.ClientIP())
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			logger.Debug("Request rate limited",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.FullPath()),
				zap.Int("retry_after_s", retryAfter))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please try again later."})
			c.Abort()
			return
		}
		c.Next()
	}
}
