package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/temcen/pirex-admin/internal/services"
	"github.com/temcen/pirex-admin/pkg/models"
)

type MockExplanationService struct {
	mock.Mock
}

func (m *MockExplanationService) Explain(ctx context.Context, req *models.ExplainRequest) (*models.ExplainResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExplainResponse), args.Error(1)
}

func (m *MockExplanationService) RecommendAndExplain(ctx context.Context, req *models.RecommendRequest) (*models.RecommendExplainResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RecommendExplainResponse), args.Error(1)
}

func (m *MockExplanationService) Summarize(contributions models.BlendTriplet) string {
	args := m.Called(contributions)
	return args.String(0)
}

type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) ListDecisions(ctx context.Context, namespace string, filter models.DecisionFilter) (*models.DecisionListResponse, error) {
	args := m.Called(ctx, namespace, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DecisionListResponse), args.Error(1)
}

func (m *MockAuditService) GetDecision(ctx context.Context, decisionID uuid.UUID) (*models.DecisionTrace, error) {
	args := m.Called(ctx, decisionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DecisionTrace), args.Error(1)
}

func (m *MockAuditService) LocateDecision(ctx context.Context, namespace, requestID string) (*models.LocateDecisionResponse, error) {
	args := m.Called(ctx, namespace, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LocateDecisionResponse), args.Error(1)
}

type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) ValidateAPIKey(apiKey string) (string, error) {
	args := m.Called(apiKey)
	return args.String(0), args.Error(1)
}

func (m *MockTokenIssuer) GenerateToken(operatorID uuid.UUID, orgID, role string) (string, error) {
	args := m.Called(operatorID, orgID, role)
	return args.String(0), args.Error(1)
}

func (m *MockTokenIssuer) RevokeToken(operatorID uuid.UUID) error {
	args := m.Called(operatorID)
	return args.Error(0)
}

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context) *services.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(*services.HealthStatus)
}
