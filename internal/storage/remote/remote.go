package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/storage"
)

// TokenSource provides the bearer token for authenticated requests. An empty
// token means the client is anonymous.
type TokenSource interface {
	Token() string
}

// TokenSourceFunc is a helper to use plain functions as token sources.
type TokenSourceFunc func() string

func (f TokenSourceFunc) Token() string { return f() }

// RepositoryConfig is the configuration for the remote repository.
type RepositoryConfig struct {
	// ServerURL is the base URL of the generation server API.
	ServerURL   string
	TokenSource TokenSource
	Client      *http.Client
	Logger      log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}
	c.ServerURL = strings.TrimSuffix(c.ServerURL, "/")
	if c.TokenSource == nil {
		c.TokenSource = TokenSourceFunc(func() string { return "" })
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Remote"})
	return nil
}

// Repository is an HTTP implementation of storage.Repository backed by the
// generation server's history API. Requests carry the bearer token from the
// token source, a 401 response maps to model.ErrUnauthorized so callers can
// purge credentials and fall back to local storage.
type Repository struct {
	serverURL string
	tokens    TokenSource
	client    *http.Client
	logger    log.Logger
}

// NewRepository creates a new remote repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		serverURL: cfg.ServerURL,
		tokens:    cfg.TokenSource,
		client:    cfg.Client,
		logger:    cfg.Logger,
	}, nil
}

type historyEntryJSON struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	FaceImageID       string         `json:"face_image_id,omitempty"`
	FaceImageURL      string         `json:"face_image_url,omitempty"`
	ReferenceImageID  string         `json:"reference_image_id,omitempty"`
	ReferenceImageURL string         `json:"reference_image_url,omitempty"`
	ResultURLs        []string       `json:"result_urls"`
	Params            map[string]any `json:"params,omitempty"`
	Count             int            `json:"count,omitempty"`
	Parallel          int            `json:"parallel,omitempty"`
	Favorite          bool           `json:"favorite"`
	CreatedAt         time.Time      `json:"created_at"`
}

func entryToJSON(e model.HistoryEntry) historyEntryJSON {
	return historyEntryJSON{
		ID:                e.ID,
		Title:             e.Title,
		FaceImageID:       e.FaceImageID,
		FaceImageURL:      e.FaceImageURL,
		ReferenceImageID:  e.ReferenceImageID,
		ReferenceImageURL: e.ReferenceImageURL,
		ResultURLs:        e.ResultURLs,
		Params:            e.Params,
		Count:             e.Count,
		Parallel:          e.Parallel,
		Favorite:          e.Favorite,
		CreatedAt:         e.CreatedAt,
	}
}

func entryFromJSON(j historyEntryJSON) model.HistoryEntry {
	return model.HistoryEntry{
		ID:                j.ID,
		Title:             j.Title,
		FaceImageID:       j.FaceImageID,
		FaceImageURL:      j.FaceImageURL,
		ReferenceImageID:  j.ReferenceImageID,
		ReferenceImageURL: j.ReferenceImageURL,
		ResultURLs:        j.ResultURLs,
		Params:            j.Params,
		Count:             j.Count,
		Parallel:          j.Parallel,
		Favorite:          j.Favorite,
		CreatedAt:         j.CreatedAt,
	}
}

// CreateEntry saves a new entry on the server.
func (r *Repository) CreateEntry(ctx context.Context, e model.HistoryEntry) error {
	return r.do(ctx, http.MethodPost, "/history", entryToJSON(e), nil)
}

// ListEntries returns the server's entries newest first.
func (r *Repository) ListEntries(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	var resp struct {
		Items []historyEntryJSON `json:"items"`
	}
	path := "/history?limit=" + strconv.Itoa(limit)
	if err := r.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]model.HistoryEntry, 0, len(resp.Items))
	for _, item := range resp.Items {
		entries = append(entries, entryFromJSON(item))
	}
	return entries, nil
}

// GetEntry retrieves an entry by ID.
func (r *Repository) GetEntry(ctx context.Context, id string) (*model.HistoryEntry, error) {
	var resp historyEntryJSON
	if err := r.do(ctx, http.MethodGet, "/history/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	entry := entryFromJSON(resp)
	return &entry, nil
}

// DeleteEntry deletes an entry on the server.
func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	return r.do(ctx, http.MethodDelete, "/history/"+url.PathEscape(id), nil, nil)
}

// UpdateEntryTitle renames an entry on the server.
func (r *Repository) UpdateEntryTitle(ctx context.Context, id, title string) error {
	body := struct {
		Title string `json:"title"`
	}{Title: title}
	return r.do(ctx, http.MethodPatch, "/history/"+url.PathEscape(id)+"/title", body, nil)
}

// ToggleEntryFavorite flips the favorite flag on the server.
func (r *Repository) ToggleEntryFavorite(ctx context.Context, id string) (bool, error) {
	var resp struct {
		Favorite bool `json:"favorite"`
	}
	err := r.do(ctx, http.MethodPost, "/history/"+url.PathEscape(id)+"/favorite", nil, &resp)
	if err != nil {
		return false, err
	}
	return resp.Favorite, nil
}

// ClearEntries removes all entries on the server, optionally keeping favorites.
func (r *Repository) ClearEntries(ctx context.Context, keepFavorites bool) error {
	path := "/history"
	if keepFavorites {
		path += "?keep_favorites=true"
	}
	return r.do(ctx, http.MethodDelete, path, nil, nil)
}

func (r *Repository) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.serverURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := r.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", method, path, model.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, model.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s %s: %w", method, path, model.ErrAlreadyExists)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
	}

	return nil
}
