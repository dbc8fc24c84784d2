package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/services"
)

type HealthChecker interface {
	CheckHealth(ctx context.Context) *services.HealthStatus
}

type HealthHandler struct {
	logger        *logrus.Logger
	healthService HealthChecker
}

func NewHealthHandler(logger *logrus.Logger, healthService HealthChecker) *HealthHandler {
	return &HealthHandler{
		logger:        logger,
		healthService: healthService,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	status := h.healthService.CheckHealth(c.Request.Context())

	var httpStatus int
	switch status.Status {
	case "healthy":
		httpStatus = http.StatusOK
	case "degraded":
		httpStatus = http.StatusOK // Still operational
	case "unhealthy":
		httpStatus = http.StatusServiceUnavailable
	default:
		httpStatus = http.StatusInternalServerError
	}

	c.JSON(httpStatus, status)
}
