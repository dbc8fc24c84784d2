package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/services"
	"github.com/temcen/pirex-admin/pkg/models"
)

// Context keys set by Auth.
const (
	ContextOperatorID = "operator_id"
	ContextRole       = "role"
	ContextOrgID      = "org_id"
)

// Authenticator validates bearer tokens and API keys.
type Authenticator interface {
	ValidateToken(tokenString string) (*models.JWTClaims, error)
	ValidateAPIKey(apiKey string) (string, error)
}

// Auth accepts either an X-API-Key header or an Authorization bearer value.
// Bearer values without dots are treated as API keys.
func Auth(authService Authenticator, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
			authenticateAPIKey(c, authService, logger, apiKey)
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "MISSING_AUTHORIZATION", "Authorization header is required")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			abortWithError(c, http.StatusUnauthorized, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'")
			return
		}

		tokenString := tokenParts[1]
		if !strings.Contains(tokenString, ".") {
			authenticateAPIKey(c, authService, logger, tokenString)
			return
		}

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			logger.WithError(err).Warn("Invalid JWT token")
			abortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set(ContextOperatorID, claims.OperatorID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextOrgID, claims.OrgID)
		c.Next()
	}
}

func authenticateAPIKey(c *gin.Context, authService Authenticator, logger *logrus.Logger, apiKey string) {
	role, err := authService.ValidateAPIKey(apiKey)
	if err != nil {
		logger.WithError(err).Warn("Invalid API key")
		abortWithError(c, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key")
		return
	}

	c.Set(ContextOperatorID, services.APIKeyOperatorID(apiKey))
	c.Set(ContextRole, role)
	c.Set(ContextOrgID, c.GetHeader("X-Org-ID"))
	c.Next()
}

// RequireRole rejects operators below the given role. It must run after Auth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, current, _ := GetOperatorFromContext(c)
		if !services.RoleAllows(current, role) {
			abortWithError(c, http.StatusForbidden, "INSUFFICIENT_ROLE", "This operation requires the "+role+" role")
			return
		}
		c.Next()
	}
}

// GetOperatorFromContext returns the operator id, role and org set by Auth.
// Missing values come back as zero values.
func GetOperatorFromContext(c *gin.Context) (uuid.UUID, string, string) {
	operatorID, _ := c.Get(ContextOperatorID)
	id, _ := operatorID.(uuid.UUID)
	return id, c.GetString(ContextRole), c.GetString(ContextOrgID)
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
