package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/internal/database"
	"github.com/temcen/pirex-admin/internal/docs"
	"github.com/temcen/pirex-admin/internal/handlers"
	"github.com/temcen/pirex-admin/internal/middleware"
	"github.com/temcen/pirex-admin/internal/services"
	"github.com/temcen/pirex-admin/internal/validation"
	"github.com/temcen/pirex-admin/pkg/models"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	db        *database.Database
	services  *services.Services
	handlers  *handlers.Handlers
	validator *validation.SchemaValidator
	router    *gin.Engine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	services, err := services.New(cfg, app.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = services

	validator, err := validation.NewSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to load request schemas: %w", err)
	}
	app.validator = validator

	app.handlers = handlers.New(cfg, app.logger, services)

	if err := app.setupRouter(); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches the background workers: health collectors and, when
// enabled, the decision-trace consumer.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.services.Health.Start(ctx)

	if !a.config.Audit.ConsumeTraces || a.services.MessageBus == nil {
		return
	}
	if a.config.Audit.Source == "backend" {
		a.logger.Warn("Decision trace ingestion disabled: audit source is the ranking backend")
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.WithField("topic", a.config.Kafka.Topics.DecisionTraces).Info("Starting decision trace consumer")

		err := a.services.MessageBus.ConsumeDecisionTraces(ctx, func(ctx context.Context, trace *models.DecisionTrace) error {
			err := a.services.Audit.RecordDecision(ctx, trace)
			if err != nil {
				a.services.Metrics.RecordTraceIngested("error")
			} else {
				a.services.Metrics.RecordTraceIngested("stored")
			}
			return err
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WithError(err).Error("Decision trace consumer stopped")
		}
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Timed out waiting for background workers")
	}

	if err := a.services.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing message bus")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}

	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() error {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))

	// Health check endpoints (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	if a.config.Server.Docs {
		docsHandler, err := docs.NewHandler(a.validator)
		if err != nil {
			return fmt.Errorf("failed to load API docs: %w", err)
		}
		docsHandler.RegisterRoutes(router)
	}

	vm := middleware.NewValidationMiddleware(a.validator)

	api := router.Group("/api/v1")
	api.Use(vm.ValidateHeaders())

	// Token exchange happens before authentication
	api.POST("/auth/token", a.handlers.Auth.Token)

	protected := api.Group("")
	{
		protected.Use(middleware.Auth(a.services.Auth, a.logger))
		protected.Use(middleware.RateLimit(a.services.RateLimit, a.logger))

		protected.POST("/auth/revoke", a.handlers.Auth.Revoke)

		explain := protected.Group("/explain")
		{
			explain.POST("", vm.ValidateBody(validation.ExplainRequest), a.handlers.Explain.Explain)
			explain.POST("/summary", vm.ValidateBody(validation.SummaryRequest), a.handlers.Explain.Summary)
			explain.POST("/recommend",
				middleware.RequireRole(services.RoleOperator),
				vm.ValidateBody(validation.RecommendRequest),
				a.handlers.Explain.RecommendAndExplain)
		}

		decisions := protected.Group("/audit/decisions")
		{
			decisions.GET("", a.handlers.Audit.List)
			decisions.GET("/:decisionId",
				middleware.ResponseCache(a.db.Redis, middleware.CacheConfig{
					TTL:       a.config.Attribution.CacheTTL,
					MaxSize:   1 << 20,
					KeyPrefix: "decision",
				}, a.logger),
				a.handlers.Audit.Get)
			decisions.POST("/locate", vm.ValidateBody(validation.LocateRequest), a.handlers.Audit.Locate)
		}
	}

	a.router = router
	return nil
}
