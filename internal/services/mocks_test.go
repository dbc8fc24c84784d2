package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/temcen/pirex-admin/pkg/models"
)

type MockAttributionCache struct {
	mock.Mock
}

func (m *MockAttributionCache) Get(ctx context.Context, key string) (models.ItemAttribution, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(models.ItemAttribution), args.Bool(1), args.Error(2)
}

func (m *MockAttributionCache) Set(ctx context.Context, key string, attr models.ItemAttribution) error {
	args := m.Called(ctx, key, attr)
	return args.Error(0)
}

type MockAnchorResolver struct {
	mock.Mock
}

func (m *MockAnchorResolver) ResolveAnchors(ctx context.Context, itemIDs []string) (map[string]models.AnchorInfo, error) {
	args := m.Called(ctx, itemIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]models.AnchorInfo), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishExplainEvent(ctx context.Context, event models.ExplainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockRecommender struct {
	mock.Mock
}

func (m *MockRecommender) Recommend(ctx context.Context, req *models.RecommendRequest) (*models.RecommendResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecommendResponse), args.Error(1)
}

type MockDecisionStore struct {
	mock.Mock
}

func (m *MockDecisionStore) InsertDecisionTrace(ctx context.Context, trace *models.DecisionTrace) error {
	args := m.Called(ctx, trace)
	return args.Error(0)
}

func (m *MockDecisionStore) ListDecisionTraces(ctx context.Context, namespace string, filter models.DecisionFilter) ([]models.DecisionSummary, error) {
	args := m.Called(ctx, namespace, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DecisionSummary), args.Error(1)
}

func (m *MockDecisionStore) GetDecisionTrace(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error) {
	args := m.Called(ctx, decisionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DecisionTrace), args.Error(1)
}

type MockBackendAuditClient struct {
	mock.Mock
}

func (m *MockBackendAuditClient) ListDecisions(ctx context.Context, namespace string, filter models.DecisionFilter) ([]models.DecisionSummary, error) {
	args := m.Called(ctx, namespace, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DecisionSummary), args.Error(1)
}

func (m *MockBackendAuditClient) GetDecision(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error) {
	args := m.Called(ctx, decisionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DecisionTrace), args.Error(1)
}
