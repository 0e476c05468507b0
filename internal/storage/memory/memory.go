package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	// MaxEntries bounds the store, defaults to storage.MaxLocalEntries.
	MaxEntries int
	Logger     log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.MaxEntries <= 0 {
		c.MaxEntries = storage.MaxLocalEntries
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is a bounded in-memory implementation of storage.Repository.
// Entries are kept newest first, writes beyond capacity drop the oldest.
type Repository struct {
	entries    []model.HistoryEntry
	maxEntries int
	mu         sync.RWMutex
	logger     log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		maxEntries: cfg.MaxEntries,
		logger:     cfg.Logger,
	}, nil
}

// CreateEntry prepends a new entry, trimming the oldest beyond capacity.
func (r *Repository) CreateEntry(ctx context.Context, e model.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.entries {
		if existing.ID == e.ID {
			return fmt.Errorf("entry with id %s: %w", e.ID, model.ErrAlreadyExists)
		}
	}

	r.entries = append([]model.HistoryEntry{e}, r.entries...)
	if len(r.entries) > r.maxEntries {
		r.entries = r.entries[:r.maxEntries]
	}

	r.logger.Debugf("Created history entry in repository: %s", e.ID)
	return nil
}

// ListEntries returns entries newest first.
func (r *Repository) ListEntries(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}

	out := make([]model.HistoryEntry, limit)
	copy(out, r.entries[:limit])
	return out, nil
}

// GetEntry retrieves an entry by ID.
func (r *Repository) GetEntry(ctx context.Context, id string) (*model.HistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.ID == id {
			entryCopy := e
			return &entryCopy, nil
		}
	}

	return nil, fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
}

// DeleteEntry deletes an entry.
func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.ID == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			r.logger.Debugf("Deleted history entry from repository: %s", id)
			return nil
		}
	}

	return fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
}

// UpdateEntryTitle renames an entry.
func (r *Repository) UpdateEntryTitle(ctx context.Context, id, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].Title = title
			return nil
		}
	}

	return fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
}

// ToggleEntryFavorite flips the favorite flag and returns the new value.
func (r *Repository) ToggleEntryFavorite(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].Favorite = !r.entries[i].Favorite
			return r.entries[i].Favorite, nil
		}
	}

	return false, fmt.Errorf("entry %s: %w", id, model.ErrNotFound)
}

// ClearEntries removes all entries, optionally keeping favorites.
func (r *Repository) ClearEntries(ctx context.Context, keepFavorites bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !keepFavorites {
		r.entries = nil
		return nil
	}

	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.Favorite {
			kept = append(kept, e)
		}
	}
	r.entries = kept
	return nil
}
