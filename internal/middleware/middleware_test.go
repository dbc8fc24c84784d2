package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/pirex-admin/internal/backend"
	"github.com/temcen/pirex-admin/internal/services"
	"github.com/temcen/pirex-admin/internal/validation"
	"github.com/temcen/pirex-admin/pkg/models"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JWTClaims), args.Error(1)
}

func (m *MockAuthenticator) ValidateAPIKey(apiKey string) (string, error) {
	args := m.Called(apiKey)
	return args.String(0), args.Error(1)
}

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) IsAllowed(operatorID, role string) (bool, *models.RateLimitInfo, error) {
	args := m.Called(operatorID, role)
	if args.Get(1) == nil {
		return args.Bool(0), nil, args.Error(2)
	}
	return args.Bool(0), args.Get(1).(*models.RateLimitInfo), args.Error(2)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func setupRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		id, role, org := GetOperatorFromContext(c)
		c.JSON(http.StatusOK, gin.H{"operator_id": id.String(), "role": role, "org_id": org})
	})
	router.Any("/test", handlers...)
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuth_JWT(t *testing.T) {
	auth := new(MockAuthenticator)
	operatorID := uuid.New()
	auth.On("ValidateToken", "a.b.c").Return(&models.JWTClaims{OperatorID: operatorID, Role: services.RoleOperator, OrgID: "org-1"}, nil)
	auth.On("ValidateToken", "x.y.z").Return(nil, errors.New("expired"))

	router := setupRouter(Auth(auth, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer a.b.c")
	w := serve(router, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), operatorID.String())
	assert.Contains(t, w.Body.String(), `"org_id":"org-1"`)

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer x.y.z")
	w = serve(router, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")

	auth.AssertExpectations(t)
}

func TestAuth_APIKey(t *testing.T) {
	auth := new(MockAuthenticator)
	auth.On("ValidateAPIKey", "key-1").Return(services.RoleAdmin, nil)
	auth.On("ValidateAPIKey", "bad").Return("", services.ErrInvalidAPIKey)

	router := setupRouter(Auth(auth, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-API-Key", "key-1")
	req.Header.Set("X-Org-ID", "acme")
	w := serve(router, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), services.APIKeyOperatorID("key-1").String())
	assert.Contains(t, w.Body.String(), `"role":"admin"`)
	assert.Contains(t, w.Body.String(), `"org_id":"acme"`)

	req = httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w = serve(router, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_API_KEY")
}

func TestAuth_MissingOrMalformedHeader(t *testing.T) {
	router := setupRouter(Auth(new(MockAuthenticator), testLogger()))

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_AUTHORIZATION")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = serve(router, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_AUTHORIZATION_FORMAT")
}

func TestRequireRole(t *testing.T) {
	withRole := func(role string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Set(ContextOperatorID, uuid.New())
			c.Set(ContextRole, role)
		}
	}

	tests := []struct {
		role string
		want int
	}{
		{services.RoleViewer, http.StatusForbidden},
		{services.RoleOperator, http.StatusOK},
		{services.RoleAdmin, http.StatusOK},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run("role="+tt.role, func(t *testing.T) {
			router := setupRouter(withRole(tt.role), RequireRole(services.RoleOperator))
			w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	operatorID := uuid.New()
	setOperator := func(c *gin.Context) {
		c.Set(ContextOperatorID, operatorID)
		c.Set(ContextRole, services.RoleViewer)
	}

	limiter := new(MockRateLimiter)
	limiter.On("IsAllowed", operatorID.String(), services.RoleViewer).
		Return(true, &models.RateLimitInfo{Limit: 10, Remaining: 9, ResetTime: 1700000000}, nil).Once()
	limiter.On("IsAllowed", operatorID.String(), services.RoleViewer).
		Return(false, &models.RateLimitInfo{Limit: 10, Remaining: 0, ResetTime: 1700000000}, nil).Once()

	router := setupRouter(setOperator, RateLimit(limiter, testLogger()))

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))

	w = serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	limiter.AssertExpectations(t)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	operatorID := uuid.New()
	limiter := new(MockRateLimiter)
	limiter.On("IsAllowed", operatorID.String(), services.RoleViewer).Return(false, nil, errors.New("redis down"))

	router := setupRouter(func(c *gin.Context) {
		c.Set(ContextOperatorID, operatorID)
		c.Set(ContextRole, services.RoleViewer)
	}, RateLimit(limiter, testLogger()))

	w := serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, backend.RequestIDFromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(backend.HeaderRequestID, "req-42")
	w := serve(router, req)
	assert.Equal(t, "req-42", w.Body.String())
	assert.Equal(t, "req-42", w.Header().Get(backend.HeaderRequestID))

	w = serve(router, httptest.NewRequest(http.MethodGet, "/test", nil))
	_, err := uuid.Parse(w.Body.String())
	assert.NoError(t, err)
	assert.Equal(t, w.Body.String(), w.Header().Get(backend.HeaderRequestID))
}

func TestValidateBody(t *testing.T) {
	validator, err := validation.NewSchemaValidator()
	require.NoError(t, err)
	vm := NewValidationMiddleware(validator)

	router := setupRouter(vm.ValidateHeaders(), vm.ValidateBody(validation.LocateRequest))

	post := func(body, contentType string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return serve(router, req)
	}

	assert.Equal(t, http.StatusOK, post(`{"namespace":"default","request_id":"r1"}`, "application/json").Code)

	w := post(`{"namespace":"default"}`, "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")

	w = post(`{"namespace":`, "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_JSON")

	w = post("", "application/json")
	assert.Contains(t, w.Body.String(), "EMPTY_BODY")

	w = post(`{"namespace":"default","request_id":"r1"}`, "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}
