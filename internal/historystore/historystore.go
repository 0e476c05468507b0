// Package historystore routes generation history between the server and the
// local store. The backend is decided per operation: authenticated clients
// write to the server, anonymous ones to local storage. A rejected token is
// purged and the operation falls back to local, so no entry is ever lost.
package historystore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/storage"
)

// ServiceConfig is the configuration for the history service.
type ServiceConfig struct {
	// Remote is the server-backed repository, optional. Without it every
	// operation goes to Local.
	Remote storage.Repository
	// Local is the fallback repository, required.
	Local       storage.Repository
	Credentials CredentialStore
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Local == nil {
		return fmt.Errorf("local repository is required")
	}
	if c.Remote != nil && c.Credentials == nil {
		return fmt.Errorf("credential store is required when a remote repository is set")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "historystore.Service"})
	return nil
}

// Service is the application service for generation history.
type Service struct {
	remote      storage.Repository
	local       storage.Repository
	credentials CredentialStore
	logger      log.Logger

	mu        sync.Mutex
	cached    []model.HistoryEntry
	currentID string
}

// NewService creates a new history service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		remote:      cfg.Remote,
		local:       cfg.Local,
		credentials: cfg.Credentials,
		logger:      cfg.Logger,
	}, nil
}

// useRemote tells whether the next operation should hit the server.
func (s *Service) useRemote() bool {
	return s.remote != nil && s.credentials.Token() != ""
}

// Record saves a new generation result. Authenticated clients write to the
// server, a 401 purges the stored token and this entry lands in local storage
// instead.
func (s *Service) Record(ctx context.Context, e model.HistoryEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	if s.useRemote() {
		err := s.remote.CreateEntry(ctx, e)
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrUnauthorized) {
			s.logger.Warningf("Token rejected by server, clearing credentials: %s", err)
			if cerr := s.credentials.ClearCredentials(); cerr != nil {
				s.logger.Errorf("Could not clear credentials: %s", cerr)
			}
		} else {
			s.logger.Warningf("Could not save entry remotely, falling back to local: %s", err)
		}
	}

	return s.local.CreateEntry(ctx, e)
}

// List returns history entries newest first. Server results are preferred and
// cached, on failure the local store answers, and as a last resort the cached
// page is served so navigation keeps working offline.
func (s *Service) List(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if s.useRemote() {
		entries, err := s.remote.ListEntries(ctx, limit)
		if err == nil {
			s.setCache(entries)
			return entries, nil
		}
		if errors.Is(err, model.ErrUnauthorized) {
			s.logger.Warningf("Token rejected by server, clearing credentials: %s", err)
			if cerr := s.credentials.ClearCredentials(); cerr != nil {
				s.logger.Errorf("Could not clear credentials: %s", cerr)
			}
		} else {
			s.logger.Warningf("Could not list remote history, falling back to local: %s", err)
		}
	}

	entries, err := s.local.ListEntries(ctx, limit)
	if err != nil {
		s.mu.Lock()
		cached := make([]model.HistoryEntry, len(s.cached))
		copy(cached, s.cached)
		s.mu.Unlock()
		if len(cached) > 0 {
			s.logger.Warningf("Could not list local history, serving cached page: %s", err)
			return cached, nil
		}
		return nil, err
	}

	s.setCache(entries)
	return entries, nil
}

func (s *Service) setCache(entries []model.HistoryEntry) {
	cached := make([]model.HistoryEntry, len(entries))
	copy(cached, entries)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = cached
}

// Restore marks the given entry as the current navigation point and returns
// it, so its inputs and parameters can be loaded back into a session.
func (s *Service) Restore(ctx context.Context, id string) (*model.HistoryEntry, error) {
	entry, err := s.getEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.currentID = entry.ID
	s.mu.Unlock()

	return entry, nil
}

func (s *Service) getEntry(ctx context.Context, id string) (*model.HistoryEntry, error) {
	if s.useRemote() {
		entry, err := s.remote.GetEntry(ctx, id)
		if err == nil {
			return entry, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Warningf("Could not get remote entry, falling back to local: %s", err)
		}
	}
	return s.local.GetEntry(ctx, id)
}

// Previous moves the navigation point one entry older and returns it. The
// position is re-resolved by entry id, deletions elsewhere can't skew it.
// Returns false at the oldest entry or with an empty list.
func (s *Service) Previous(ctx context.Context) (*model.HistoryEntry, bool) {
	return s.navigate(ctx, 1)
}

// Next moves the navigation point one entry newer and returns it. Returns
// false at the newest entry or with an empty list.
func (s *Service) Next(ctx context.Context) (*model.HistoryEntry, bool) {
	return s.navigate(ctx, -1)
}

// navigate steps through the cached page, entries are newest first so older
// means a higher index.
func (s *Service) navigate(ctx context.Context, step int) (*model.HistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cached) == 0 {
		return nil, false
	}

	idx := -1
	for i, e := range s.cached {
		if e.ID == s.currentID {
			idx = i
			break
		}
	}

	target := idx + step
	if idx == -1 {
		// Unknown or deleted current entry: start from the newest.
		target = 0
	}
	if target < 0 || target >= len(s.cached) {
		return nil, false
	}

	entry := s.cached[target]
	s.currentID = entry.ID
	return &entry, true
}

// Delete removes an entry from whichever store holds it and drops it from the
// cached page.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.mutate(ctx, func(repo storage.Repository) error {
		return repo.DeleteEntry(ctx, id)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.cached {
		if e.ID == id {
			s.cached = append(s.cached[:i], s.cached[i+1:]...)
			break
		}
	}
	if s.currentID == id {
		s.currentID = ""
	}
	return nil
}

// Rename updates an entry's title.
func (s *Service) Rename(ctx context.Context, id, title string) error {
	err := s.mutate(ctx, func(repo storage.Repository) error {
		return repo.UpdateEntryTitle(ctx, id, title)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cached {
		if s.cached[i].ID == id {
			s.cached[i].Title = title
			break
		}
	}
	return nil
}

// ToggleFavorite flips an entry's favorite flag and returns the new value.
func (s *Service) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var favorite bool
	err := s.mutate(ctx, func(repo storage.Repository) error {
		var err error
		favorite, err = repo.ToggleEntryFavorite(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cached {
		if s.cached[i].ID == id {
			s.cached[i].Favorite = favorite
			break
		}
	}
	return favorite, nil
}

// Clear removes all entries, optionally keeping favorites.
func (s *Service) Clear(ctx context.Context, keepFavorites bool) error {
	err := s.mutate(ctx, func(repo storage.Repository) error {
		return repo.ClearEntries(ctx, keepFavorites)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !keepFavorites {
		s.cached = nil
		s.currentID = ""
		return nil
	}
	kept := s.cached[:0]
	for _, e := range s.cached {
		if e.Favorite {
			kept = append(kept, e)
		}
	}
	s.cached = kept
	return nil
}

// mutate runs op against the selected repository, a rejected token purges the
// credentials and retries against local.
func (s *Service) mutate(ctx context.Context, op func(repo storage.Repository) error) error {
	if s.useRemote() {
		err := op(s.remote)
		if err == nil {
			return nil
		}
		if !errors.Is(err, model.ErrUnauthorized) {
			return err
		}
		s.logger.Warningf("Token rejected by server, clearing credentials: %s", err)
		if cerr := s.credentials.ClearCredentials(); cerr != nil {
			s.logger.Errorf("Could not clear credentials: %s", cerr)
		}
	}

	return op(s.local)
}
