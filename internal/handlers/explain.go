package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/backend"
	"github.com/temcen/pirex-admin/internal/services"
	"github.com/temcen/pirex-admin/pkg/models"
)

// ExplanationServiceInterface is the part of services.ExplanationService the
// handler needs.
type ExplanationServiceInterface interface {
	Explain(ctx context.Context, req *models.ExplainRequest) (*models.ExplainResponse, error)
	RecommendAndExplain(ctx context.Context, req *models.RecommendRequest) (*models.RecommendExplainResponse, error)
	Summarize(contributions models.BlendTriplet) string
}

type ExplainHandler struct {
	explanations ExplanationServiceInterface
	validator    *validator.Validate
	logger       *logrus.Logger
}

func NewExplainHandler(explanations ExplanationServiceInterface, logger *logrus.Logger) *ExplainHandler {
	return &ExplainHandler{
		explanations: explanations,
		validator:    validator.New(),
		logger:       logger,
	}
}

// Explain handles POST /api/v1/explain.
func (h *ExplainHandler) Explain(c *gin.Context) {
	var req models.ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", err)
		return
	}

	resp, err := h.explanations.Explain(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, services.ErrTooManyItems) {
			writeError(c, http.StatusBadRequest, "TOO_MANY_ITEMS", err.Error(), nil)
			return
		}
		h.logger.WithError(err).Error("Failed to explain items")
		writeError(c, http.StatusInternalServerError, "EXPLAIN_FAILED", "Failed to explain items", nil)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RecommendAndExplain handles POST /api/v1/explain/recommend.
func (h *ExplainHandler) RecommendAndExplain(c *gin.Context) {
	var req models.RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err)
		return
	}
	if req.K == 0 {
		req.K = 10
	}
	if err := h.validator.Struct(&req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", err)
		return
	}

	resp, err := h.explanations.RecommendAndExplain(c.Request.Context(), &req)
	if err != nil {
		h.writeBackendError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Summary handles POST /api/v1/explain/summary.
func (h *ExplainHandler) Summary(c *gin.Context) {
	var req models.SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err)
		return
	}

	c.JSON(http.StatusOK, models.SummaryResponse{
		Summary: h.explanations.Summarize(req.Contributions),
	})
}

func (h *ExplainHandler) writeBackendError(c *gin.Context, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, backend.ErrCircuitOpen):
		writeError(c, http.StatusServiceUnavailable, "BACKEND_UNAVAILABLE", "Ranking backend is temporarily unavailable", nil)
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		writeError(c, http.StatusBadRequest, "BACKEND_REJECTED", apiErr.Message, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusGatewayTimeout, "BACKEND_TIMEOUT", "Ranking backend timed out", nil)
	default:
		h.logger.WithError(err).Error("Failed to fetch and explain recommendations")
		writeError(c, http.StatusBadGateway, "BACKEND_ERROR", "Failed to fetch recommendations", nil)
	}
}

// writeError writes the standard error envelope. A non-nil detail is
// included as details.
func writeError(c *gin.Context, status int, code, message string, detail error) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if detail != nil {
		body["details"] = detail.Error()
	}
	c.JSON(status, gin.H{"error": body})
}
