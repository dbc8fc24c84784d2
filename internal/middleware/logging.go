package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/backend"
)

const ContextRequestID = "request_id"

// RequestID reuses an incoming X-Request-ID or mints one, echoes it on the
// response and carries it in the request context so backend calls forward it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(backend.HeaderRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		c.Set(ContextRequestID, requestID)
		c.Header(backend.HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(backend.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func Logger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		operatorID, role, _ := GetOperatorFromContext(c)
		fields := logrus.Fields{
			"status_code": c.Writer.Status(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"request_id":  c.GetString(ContextRequestID),
			"user_agent":  c.Request.UserAgent(),
		}
		if role != "" {
			fields["operator_id"] = operatorID
			fields["role"] = role
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("HTTP Request")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("HTTP Request")
		default:
			entry.Info("HTTP Request")
		}
	}
}

func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"panic":      recovered,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(ContextRequestID),
		}).Error("Panic recovered")

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INTERNAL_SERVER_ERROR",
				"message": "Internal server error",
			},
		})
	})
}
