package storage

import (
	"context"

	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

// Repository is the interface for generation history persistence.
type Repository interface {
	CreateEntry(ctx context.Context, e model.HistoryEntry) error
	// ListEntries returns entries newest first. A non-positive limit returns
	// the implementation's default page.
	ListEntries(ctx context.Context, limit int) ([]model.HistoryEntry, error)
	GetEntry(ctx context.Context, id string) (*model.HistoryEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	UpdateEntryTitle(ctx context.Context, id, title string) error
	// ToggleEntryFavorite flips the favorite flag and returns the new value.
	ToggleEntryFavorite(ctx context.Context, id string) (bool, error)
	// ClearEntries removes all entries, optionally keeping favorites.
	ClearEntries(ctx context.Context, keepFavorites bool) error
}

// DefaultListLimit is the page size used when the caller doesn't set one.
const DefaultListLimit = 50

// MaxLocalEntries bounds the local stores: writes beyond it silently drop
// the oldest entries.
const MaxLocalEntries = 50
