package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/internal/config"
	"github.com/temcen/pirex-admin/pkg/models"
)

// AuditService answers decision-trace queries for the console.
type AuditService struct {
	store             DecisionStore
	attempts          int
	baseDelay         time.Duration
	namespaceFallback bool
	metrics           *ExplainMetrics
	logger            *logrus.Logger

	// sleep is replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewAuditService(store DecisionStore, cfg *config.AuditConfig, metrics *ExplainMetrics, logger *logrus.Logger) *AuditService {
	attempts := cfg.LookupAttempts
	if attempts <= 0 {
		attempts = 6
	}
	baseDelay := cfg.LookupBaseDelay
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}

	return &AuditService{
		store:             store,
		attempts:          attempts,
		baseDelay:         baseDelay,
		namespaceFallback: cfg.NamespaceFallback,
		metrics:           metrics,
		logger:            logger,
		sleep:             sleepContext,
	}
}

func (s *AuditService) ListDecisions(ctx context.Context, namespace string, filter models.DecisionFilter) (*models.DecisionListResponse, error) {
	decisions, err := s.store.ListDecisionTraces(ctx, namespace, filter)
	if err != nil {
		return nil, err
	}
	return &models.DecisionListResponse{
		Namespace: namespace,
		Decisions: decisions,
	}, nil
}

func (s *AuditService) GetDecision(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error) {
	return s.store.GetDecisionTrace(ctx, decisionID)
}

// RecordDecision stores a trace received from the ranking backend.
func (s *AuditService) RecordDecision(ctx context.Context, trace *models.DecisionTrace) error {
	if err := s.store.InsertDecisionTrace(ctx, trace); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"decision_id": trace.DecisionID,
		"namespace":   trace.Namespace,
		"request_id":  trace.RequestID,
	}).Debug("Decision trace recorded")
	return nil
}

// LocateDecision polls for the trace written for requestID. Traces arrive
// asynchronously, so each miss waits baseDelay*(attempt+1) before the next
// try. With namespace fallback enabled the newest decision in the namespace
// is accepted when the request id has no match yet.
func (s *AuditService) LocateDecision(ctx context.Context, namespace, requestID string) (*models.LocateDecisionResponse, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"namespace":  namespace,
		"request_id": requestID,
	})

	for i := 0; i < s.attempts; i++ {
		decisions, err := s.store.ListDecisionTraces(ctx, namespace, models.DecisionFilter{
			RequestID: requestID,
			Limit:     1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to look up decision: %w", err)
		}
		if len(decisions) > 0 {
			s.metrics.RecordTraceLookup("found", i+1)
			return &models.LocateDecisionResponse{DecisionID: decisions[0].DecisionID, Attempts: i + 1}, nil
		}

		if s.namespaceFallback {
			latest, err := s.store.ListDecisionTraces(ctx, namespace, models.DecisionFilter{Limit: 1})
			if err != nil {
				return nil, fmt.Errorf("failed to look up latest decision: %w", err)
			}
			if len(latest) > 0 {
				logger.WithField("decision_id", latest[0].DecisionID).Debug("Falling back to latest decision in namespace")
				s.metrics.RecordTraceLookup("fallback", i+1)
				return &models.LocateDecisionResponse{DecisionID: latest[0].DecisionID, Attempts: i + 1, Fallback: true}, nil
			}
		}

		if i == s.attempts-1 {
			break
		}
		if err := s.sleep(ctx, s.baseDelay*time.Duration(i+1)); err != nil {
			return nil, err
		}
	}

	logger.WithField("attempts", s.attempts).Info("Decision trace not yet available")
	s.metrics.RecordTraceLookup("not_available", s.attempts)
	return nil, ErrTraceNotYetAvailable
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
