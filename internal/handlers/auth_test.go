package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/pirex-admin/internal/middleware"
	"github.com/temcen/pirex-admin/internal/services"
)

func TestAuthHandler_Token(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := new(MockTokenIssuer)
	handler := NewAuthHandler(issuer, time.Hour, testLogger())
	router := gin.New()
	router.POST("/auth/token", handler.Token)

	operatorID := services.APIKeyOperatorID("key-1")
	issuer.On("ValidateAPIKey", "key-1").Return(services.RoleOperator, nil)
	issuer.On("GenerateToken", operatorID, "acme", services.RoleOperator).Return("a.b.c", nil)
	issuer.On("ValidateAPIKey", "bad").Return("", services.ErrInvalidAPIKey)

	w := postJSON(router, "/auth/token", map[string]string{"api_key": "key-1", "org_id": "acme"})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "a.b.c", body["token"])
	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, float64(3600), body["expires_in"])
	assert.Equal(t, services.RoleOperator, body["role"])

	w = postJSON(router, "/auth/token", map[string]string{"api_key": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_API_KEY", errorCode(t, w))

	w = postJSON(router, "/auth/token", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	issuer.AssertExpectations(t)
}

func TestAuthHandler_Revoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := new(MockTokenIssuer)
	handler := NewAuthHandler(issuer, time.Hour, testLogger())

	operatorID := uuid.New()
	router := gin.New()
	router.POST("/auth/revoke", func(c *gin.Context) {
		c.Set(middleware.ContextOperatorID, operatorID)
		c.Set(middleware.ContextRole, services.RoleViewer)
	}, handler.Revoke)

	issuer.On("RevokeToken", operatorID).Return(nil).Once()
	w := postJSON(router, "/auth/revoke", `{}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	issuer.On("RevokeToken", operatorID).Return(errors.New("redis down")).Once()
	w = postJSON(router, "/auth/revoke", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthHandler_Check(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		status string
		want   int
	}{
		{"healthy", http.StatusOK},
		{"degraded", http.StatusOK},
		{"unhealthy", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			checker := new(MockHealthChecker)
			checker.On("CheckHealth", mock.MatchedBy(func(context.Context) bool { return true })).
				Return(&services.HealthStatus{Status: tt.status, Services: map[string]string{}})

			router := gin.New()
			router.GET("/health", NewHealthHandler(testLogger(), checker).Check)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), tt.status)
		})
	}
}
