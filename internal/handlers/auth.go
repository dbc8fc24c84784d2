package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/middleware"
	"github.com/temcen/pirex-admin/internal/services"
)

type TokenIssuer interface {
	ValidateAPIKey(apiKey string) (string, error)
	GenerateToken(operatorID uuid.UUID, orgID, role string) (string, error)
	RevokeToken(operatorID uuid.UUID) error
}

type AuthHandler struct {
	auth     TokenIssuer
	tokenTTL time.Duration
	logger   *logrus.Logger
}

func NewAuthHandler(auth TokenIssuer, tokenTTL time.Duration, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

type tokenRequest struct {
	APIKey string `json:"api_key" binding:"required"`
	OrgID  string `json:"org_id"`
}

// Token exchanges an API key for a signed session token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "api_key is required", nil)
		return
	}

	role, err := h.auth.ValidateAPIKey(req.APIKey)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAPIKey) {
			writeError(c, http.StatusUnauthorized, "INVALID_API_KEY", "Invalid API key", nil)
			return
		}
		h.logger.WithError(err).Error("Failed to validate API key")
		writeError(c, http.StatusInternalServerError, "AUTH_FAILED", "Failed to issue token", nil)
		return
	}

	operatorID := services.APIKeyOperatorID(req.APIKey)
	token, err := h.auth.GenerateToken(operatorID, req.OrgID, role)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate token")
		writeError(c, http.StatusInternalServerError, "AUTH_FAILED", "Failed to issue token", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":       token,
		"token_type":  "Bearer",
		"expires_in":  int(h.tokenTTL.Seconds()),
		"operator_id": operatorID,
		"role":        role,
	})
}

// Revoke ends the caller's session.
func (h *AuthHandler) Revoke(c *gin.Context) {
	operatorID, _, _ := middleware.GetOperatorFromContext(c)
	if err := h.auth.RevokeToken(operatorID); err != nil {
		h.logger.WithError(err).WithField("operator_id", operatorID).Error("Failed to revoke token")
		writeError(c, http.StatusInternalServerError, "REVOKE_FAILED", "Failed to revoke session", nil)
		return
	}
	c.Status(http.StatusNoContent)
}
