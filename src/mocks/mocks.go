package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"www.github.com/Wanderer0074348/HybridInfer/src/isolation"
	"www.github.com/Wanderer0074348/HybridInfer/src/models"
)

// MockBackend implements models.Backend
type MockBackend struct {
	mock.Mock
	BackendName string
}

func (m *MockBackend) Name() string {
	if m.BackendName != "" {
		return m.BackendName
	}
	return "mock"
}

func (m *MockBackend) Infer(ctx context.Context, req *models.InferenceRequest) (*models.InferenceResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InferenceResult), args.Error(1)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockDispatcher implements models.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Infer(ctx context.Context, req *models.InferenceRequest) (*models.InferenceResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InferenceResult), args.Error(1)
}

// MockEmbeddingCache implements models.EmbeddingCacheStore
type MockEmbeddingCache struct {
	mock.Mock
}

func (m *MockEmbeddingCache) GetMany(ctx context.Context, model string, texts []string) ([][]float32, error) {
	args := m.Called(ctx, model, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbeddingCache) SetMany(ctx context.Context, model string, texts []string, vectors [][]float32) error {
	args := m.Called(ctx, model, texts, vectors)
	return args.Error(0)
}

func (m *MockEmbeddingCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockExchanger implements isolation.Exchanger
type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) Run(ctx context.Context, req *isolation.WorkerRequest, img *models.Image) (*isolation.WorkerResponse, error) {
	args := m.Called(ctx, req, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*isolation.WorkerResponse), args.Error(1)
}

// MockStatusProvider implements models.BackendStatusProvider
type MockStatusProvider struct {
	mock.Mock
}

func (m *MockStatusProvider) Statuses() []models.BackendStatus {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]models.BackendStatus)
}
