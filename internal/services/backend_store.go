package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/temcen/pirex-admin/internal/backend"
	"github.com/temcen/pirex-admin/pkg/models"
)

var errReadOnlyStore = errors.New("backend decision store is read-only")

// BackendAuditClient is the part of backend.Client the audit store needs.
type BackendAuditClient interface {
	ListDecisions(ctx context.Context, namespace string, filter models.DecisionFilter) ([]models.DecisionSummary, error)
	GetDecision(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error)
}

// BackendDecisionStore reads decision traces through the ranking backend's
// audit API instead of a local table.
type BackendDecisionStore struct {
	client BackendAuditClient
}

func NewBackendDecisionStore(client BackendAuditClient) *BackendDecisionStore {
	return &BackendDecisionStore{client: client}
}

func (s *BackendDecisionStore) InsertDecisionTrace(context.Context, *models.DecisionTrace) error {
	return errReadOnlyStore
}

func (s *BackendDecisionStore) ListDecisionTraces(ctx context.Context, namespace string, filter models.DecisionFilter) ([]models.DecisionSummary, error) {
	return s.client.ListDecisions(ctx, namespace, filter)
}

func (s *BackendDecisionStore) GetDecisionTrace(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error) {
	trace, err := s.client.GetDecision(ctx, decisionID)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrDecisionNotFound
		}
		return nil, err
	}
	return trace, nil
}
