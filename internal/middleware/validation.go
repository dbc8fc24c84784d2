package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/temcen/pirex-admin/internal/validation"
)

const maxBodyBytes = 2 << 20

// ValidationMiddleware checks request bodies against the embedded schemas
type ValidationMiddleware struct {
	validator *validation.SchemaValidator
}

func NewValidationMiddleware(validator *validation.SchemaValidator) *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validator,
	}
}

// ValidateBody rejects requests whose body does not match schemaName. The
// body is restored for the handler.
func (vm *ValidationMiddleware) ValidateBody(schemaName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil {
			vm.sendValidationError(c, http.StatusBadRequest, "BODY_READ_ERROR", "Failed to read request body", nil)
			return
		}
		if len(bodyBytes) > maxBodyBytes {
			vm.sendValidationError(c, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body is too large", nil)
			return
		}

		// Restore request body for downstream handlers
		c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		if len(bytes.TrimSpace(bodyBytes)) == 0 {
			vm.sendValidationError(c, http.StatusBadRequest, "EMPTY_BODY", "Request body is required", nil)
			return
		}

		if !json.Valid(bodyBytes) {
			vm.sendValidationError(c, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", nil)
			return
		}

		result := vm.validator.ValidateJSON(schemaName, bodyBytes)
		if !result.Valid {
			apiError := result.ToAPIError()
			if errorObj, ok := apiError["error"].(map[string]interface{}); ok {
				errorObj["requestId"] = c.GetString(ContextRequestID)
				errorObj["path"] = c.Request.URL.Path
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, apiError)
			return
		}

		c.Next()
	}
}

// ValidateHeaders requires a JSON content type on requests with a body.
func (vm *ValidationMiddleware) ValidateHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut || c.Request.Method == http.MethodPatch {
			contentType := c.GetHeader("Content-Type")
			if !strings.Contains(contentType, "application/json") {
				vm.sendValidationError(c, http.StatusUnsupportedMediaType, "INVALID_HEADER", "Content-Type must be application/json", map[string]interface{}{
					"Content-Type": contentType,
				})
				return
			}
		}
		c.Next()
	}
}

func (vm *ValidationMiddleware) sendValidationError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	body := gin.H{
		"code":      code,
		"message":   message,
		"requestId": c.GetString(ContextRequestID),
		"path":      c.Request.URL.Path,
	}
	if details != nil {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
