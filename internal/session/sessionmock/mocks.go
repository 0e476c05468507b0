// Package sessionmock has mocks for the session service collaborators.
package sessionmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Diffusion-planet/ip-to-portrait/internal/generation"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

// MockGenerationAPI is a mock implementation of session.GenerationAPI.
type MockGenerationAPI struct {
	mock.Mock
}

func (m *MockGenerationAPI) StartBatch(ctx context.Context, req generation.StartRequest) (*generation.StartResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*generation.StartResult)
	return res, args.Error(1)
}

func (m *MockGenerationAPI) CancelBatch(ctx context.Context, batchID string) error {
	args := m.Called(ctx, batchID)
	return args.Error(0)
}

// MockConnection is a mock implementation of session.Connection.
type MockConnection struct {
	mock.Mock
}

func (m *MockConnection) Connect(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockConnection) Subscribe(ctx context.Context, batchID string) {
	m.Called(ctx, batchID)
}

func (m *MockConnection) Unsubscribe(ctx context.Context, batchID string) {
	m.Called(ctx, batchID)
}

// MockHistoryRecorder is a mock implementation of session.HistoryRecorder.
type MockHistoryRecorder struct {
	mock.Mock
}

func (m *MockHistoryRecorder) Record(ctx context.Context, e model.HistoryEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}
