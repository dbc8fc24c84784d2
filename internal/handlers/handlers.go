package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/internal/services"
)

type Handlers struct {
	Health  *HealthHandler
	Explain *ExplainHandler
	Audit   *AuditHandler
	Auth    *AuthHandler
}

func New(cfg *config.Config, logger *logrus.Logger, services *services.Services) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(logger, services.Health),
		Explain: NewExplainHandler(services.Explanation, logger),
		Audit:   NewAuditHandler(services.Audit, logger),
		Auth:    NewAuthHandler(services.Auth, cfg.Auth.TokenTTL, logger),
	}
}
