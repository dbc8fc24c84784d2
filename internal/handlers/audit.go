package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/services"
	"github.com/temcen/pirex-admin/pkg/models"
)

type AuditServiceInterface interface {
	ListDecisions(ctx context.Context, namespace string, filter models.DecisionFilter) (*models.DecisionListResponse, error)
	GetDecision(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error)
	LocateDecision(ctx context.Context, namespace, requestID string) (*models.LocateDecisionResponse, error)
}

type AuditHandler struct {
	audit     AuditServiceInterface
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewAuditHandler(audit AuditServiceInterface, logger *logrus.Logger) *AuditHandler {
	return &AuditHandler{
		audit:     audit,
		validator: validator.New(),
		logger:    logger,
	}
}

// List handles GET /api/v1/audit/decisions.
func (h *AuditHandler) List(c *gin.Context) {
	namespace := c.DefaultQuery("namespace", "default")

	filter := models.DecisionFilter{
		UserHash:  c.Query("user_hash"),
		RequestID: c.Query("request_id"),
	}

	for _, param := range []struct {
		name string
		dst  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := c.Query(param.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_QUERY_PARAM", param.name+" must be an RFC3339 timestamp", nil)
			return
		}
		*param.dst = &t
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_QUERY_PARAM", "limit must be an integer", nil)
			return
		}
		filter.Limit = limit // out-of-range values fall back to the store default
	}

	resp, err := h.audit.ListDecisions(c.Request.Context(), namespace, filter)
	if err != nil {
		h.logger.WithError(err).WithField("namespace", namespace).Error("Failed to list decisions")
		writeError(c, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "Failed to list decisions", nil)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Get handles GET /api/v1/audit/decisions/:decisionId.
func (h *AuditHandler) Get(c *gin.Context) {
	decisionID, err := uuid.Parse(c.Param("decisionId"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_DECISION_ID", "Invalid decision ID format", nil)
		return
	}

	trace, err := h.audit.GetDecision(c.Request.Context(), decisionID)
	if err != nil {
		if errors.Is(err, services.ErrDecisionNotFound) {
			writeError(c, http.StatusNotFound, "DECISION_NOT_FOUND", "Decision trace not found", nil)
			return
		}
		h.logger.WithError(err).WithField("decision_id", decisionID).Error("Failed to get decision")
		writeError(c, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "Failed to get decision", nil)
		return
	}

	c.JSON(http.StatusOK, trace)
}

// Locate handles POST /api/v1/audit/decisions/locate.
func (h *AuditHandler) Locate(c *gin.Context) {
	var req models.LocateDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", err)
		return
	}

	resp, err := h.audit.LocateDecision(c.Request.Context(), req.Namespace, req.RequestID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTraceNotYetAvailable):
			writeError(c, http.StatusNotFound, "TRACE_NOT_YET_AVAILABLE", "Decision trace not yet available. Try again in a moment.", nil)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			writeError(c, http.StatusGatewayTimeout, "LOOKUP_CANCELLED", "Decision lookup was cancelled", nil)
		default:
			h.logger.WithError(err).Error("Failed to locate decision")
			writeError(c, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "Failed to locate decision", nil)
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}
