// Package storagemock has mocks for the storage repositories.
package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

// MockRepository is a mock implementation of storage.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateEntry(ctx context.Context, e model.HistoryEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockRepository) ListEntries(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]model.HistoryEntry)
	return entries, args.Error(1)
}

func (m *MockRepository) GetEntry(ctx context.Context, id string) (*model.HistoryEntry, error) {
	args := m.Called(ctx, id)
	entry, _ := args.Get(0).(*model.HistoryEntry)
	return entry, args.Error(1)
}

func (m *MockRepository) DeleteEntry(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) UpdateEntryTitle(ctx context.Context, id, title string) error {
	args := m.Called(ctx, id, title)
	return args.Error(0)
}

func (m *MockRepository) ToggleEntryFavorite(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ClearEntries(ctx context.Context, keepFavorites bool) error {
	args := m.Called(ctx, keepFavorites)
	return args.Error(0)
}
