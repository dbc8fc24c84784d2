package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/pkg/models"
)

type RateLimiter interface {
	IsAllowed(operatorID, role string) (bool, *models.RateLimitInfo, error)
}

func RateLimit(limiter RateLimiter, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID, role, _ := GetOperatorFromContext(c)
		if role == "" {
			// This should not happen if auth middleware is properly configured
			logger.Error("Rate limit middleware called without operator context")
			c.Next()
			return
		}

		allowed, info, err := limiter.IsAllowed(operatorID.String(), role)
		if err != nil {
			logger.WithError(err).Error("Failed to check rate limit")
			// Continue on error to avoid blocking requests when Redis is down
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"operator_id": operatorID,
				"role":        role,
				"limit":       info.Limit,
			}).Warn("Rate limit exceeded")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
				"rate_limit": info,
			})
			return
		}

		c.Next()
	}
}
