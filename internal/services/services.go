package services

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/attribution"
	"github.com/temcen/pirex-admin/internal/backend"
	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/internal/database"
	"github.com/temcen/pirex-admin/internal/messaging"
)

type Services struct {
	Auth        *AuthService
	Health      *HealthService
	RateLimit   *RateLimitService
	MessageBus  *messaging.MessageBus // nil unless events or trace ingestion are enabled
	Backend     *backend.Client
	Audit       *AuditService
	Explanation *ExplanationService
	Metrics     *ExplainMetrics
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database) (*Services, error) {
	metrics := NewExplainMetrics(logger)

	backendClient, err := backend.NewClient(&cfg.Backend, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	var messageBus *messaging.MessageBus
	if cfg.Attribution.PublishEvents || cfg.Audit.ConsumeTraces {
		messageBus, err = messaging.NewMessageBus(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	var store DecisionStore
	switch cfg.Audit.Source {
	case "", "postgres":
		store = NewPostgresDecisionStore(db.PG, logger)
	case "backend":
		store = NewBackendDecisionStore(backendClient)
	default:
		return nil, fmt.Errorf("unknown audit source %q", cfg.Audit.Source)
	}

	var cache AttributionCache
	if db.Redis != nil {
		cache = NewRedisAttributionCache(db.Redis, cfg.Attribution.CacheTTL, logger)
	}

	var anchors AnchorResolver
	if cfg.Attribution.ResolveAnchors && db.Neo4j != nil {
		anchors = NewNeo4jAnchorResolver(db.Neo4j, logger)
	}

	var events EventPublisher
	if cfg.Attribution.PublishEvents && messageBus != nil {
		events = messageBus
	}

	memo, err := attribution.NewMemo(cfg.Attribution.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create attribution memo: %w", err)
	}

	explanation := NewExplanationService(&cfg.Attribution, memo, cache, anchors, events, backendClient, metrics, logger)

	return &Services{
		Auth:        NewAuthService(cfg, logger, db.Redis),
		Health:      NewHealthService(logger, db, backendClient),
		RateLimit:   NewRateLimitService(cfg, logger, db.Redis),
		MessageBus:  messageBus,
		Backend:     backendClient,
		Audit:       NewAuditService(store, &cfg.Audit, metrics, logger),
		Explanation: explanation,
		Metrics:     metrics,
	}, nil
}

// Close releases the message bus.
func (s *Services) Close() error {
	if s.MessageBus == nil {
		return nil
	}
	return s.MessageBus.Close()
}
