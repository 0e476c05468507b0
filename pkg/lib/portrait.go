package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/Diffusion-planet/ip-to-portrait/internal/canvas"
	"github.com/Diffusion-planet/ip-to-portrait/internal/generation"
	"github.com/Diffusion-planet/ip-to-portrait/internal/historystore"
	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/session"
	"github.com/Diffusion-planet/ip-to-portrait/internal/storage/remote"
	"github.com/Diffusion-planet/ip-to-portrait/internal/storage/sqlite"
	"github.com/Diffusion-planet/ip-to-portrait/internal/ws"
)

const (
	defaultServerURL = "http://localhost:8000"
	defaultDataDir   = ".portrait"
	defaultDBFile    = "history.db"
)

// Config configures the SDK client.
//
// All fields are optional and have sensible defaults. At minimum, an empty
// Config{} will talk to http://localhost:8000 and keep local history under
// ~/.portrait/history.db.
type Config struct {
	// ServerURL is the base URL of the generation server.
	// Default: http://localhost:8000.
	ServerURL string

	// ClientID identifies this client for websocket frame routing.
	// Default: a random id per client.
	ClientID string

	// DataDir is the base directory for portrait data (credentials, local DB).
	// Default: ~/.portrait.
	DataDir string

	// DBPath is the local SQLite history database path.
	// Default: <DataDir>/history.db.
	DBPath string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger

	// OnBatch receives a batch snapshot after every applied progress frame.
	OnBatch func(Batch)

	// OnPrompt receives server-generated prompts from the side channel.
	OnPrompt func(prompt string)
}

func (c *Config) defaults() error {
	if c.ServerURL == "" {
		c.ServerURL = defaultServerURL
	}

	if c.ClientID == "" {
		c.ClientID = strings.ToLower(ulid.Make().String())
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, defaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, defaultDBFile)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point for generating portraits
// programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use, one generation batch is active at a
// time.
type Client struct {
	session *session.Service
	history *historystore.Service
	conn    *ws.Client
	local   *sqlite.Repository
	canvas  *canvas.Layout
	logger  log.Logger
}

// New creates a new SDK client.
//
// The caller must call [Client.Close] when done to release the websocket
// connection and the local database. Typically used with defer:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	credentials, err := historystore.NewFileCredentialStore(historystore.FileCredentialStoreConfig{
		Dir:    cfg.DataDir,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create credential store: %w", err)
	}

	remoteRepo, err := remote.NewRepository(remote.RepositoryConfig{
		ServerURL:   cfg.ServerURL,
		TokenSource: credentials,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create remote repository: %w", err)
	}

	localRepo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create local repository: %w", err)
	}

	historySvc, err := historystore.NewService(historystore.ServiceConfig{
		Remote:      remoteRepo,
		Local:       localRepo,
		Credentials: credentials,
		Logger:      cfg.Logger,
	})
	if err != nil {
		localRepo.Close()
		return nil, fmt.Errorf("could not create history service: %w", err)
	}

	apiClient, err := generation.NewClient(generation.ClientConfig{
		ServerURL: cfg.ServerURL,
		ClientID:  cfg.ClientID,
		Logger:    cfg.Logger,
	})
	if err != nil {
		localRepo.Close()
		return nil, fmt.Errorf("could not create generation client: %w", err)
	}

	// The websocket client and the session reference each other through
	// callbacks, the session is created second and no frame can arrive
	// before it subscribes.
	var sessionSvc *session.Service
	conn, err := ws.NewClient(ws.ClientConfig{
		URL:      wsURL(cfg.ServerURL),
		ClientID: cfg.ClientID,
		Logger:   cfg.Logger,
		OnOpen:   func() { sessionSvc.HandleOpen(context.Background()) },
		OnFrame:  func(f ws.Frame) { sessionSvc.HandleFrame(f) },
	})
	if err != nil {
		localRepo.Close()
		return nil, fmt.Errorf("could not create websocket client: %w", err)
	}

	sessionSvc, err = session.NewService(session.ServiceConfig{
		API:        apiClient,
		Connection: conn,
		History:    historySvc,
		OnBatch:    cfg.OnBatch,
		OnPrompt:   cfg.OnPrompt,
		Logger:     cfg.Logger,
	})
	if err != nil {
		localRepo.Close()
		return nil, fmt.Errorf("could not create session service: %w", err)
	}

	layout, err := canvas.NewLayout(canvas.LayoutConfig{Logger: cfg.Logger})
	if err != nil {
		localRepo.Close()
		return nil, fmt.Errorf("could not create canvas layout: %w", err)
	}

	return &Client{
		session: sessionSvc,
		history: historySvc,
		conn:    conn,
		local:   localRepo,
		canvas:  layout,
		logger:  cfg.Logger,
	}, nil
}

// Close releases the websocket connection and the local database.
func (c *Client) Close() error {
	c.conn.Disconnect()
	return c.local.Close()
}

// GenerateOpts are the inputs to start a generation batch.
type GenerateOpts struct {
	// ReferenceImageID is the ID of the uploaded reference image. Required.
	ReferenceImageID string
	// FaceImageID is the ID of the uploaded face image. Required.
	FaceImageID string
	// Params are forwarded verbatim to the server.
	Params GenerationParams
	// Count is how many portraits to generate, the server defaults to 1.
	Count int
	// Parallel is how many tasks run concurrently.
	Parallel int
	// Title is the optional custom history title.
	Title string
}

// Generate starts a new generation batch and returns its initial snapshot.
// Progress arrives through [Config].OnBatch, the finished batch is recorded
// into history automatically. Returns [ErrAlreadyExists] while a batch is in
// flight.
func (c *Client) Generate(ctx context.Context, opts GenerateOpts) (*Batch, error) {
	return c.session.Start(ctx, session.StartRequest{
		Inputs: model.GenerationInputs{
			ReferenceImageID: opts.ReferenceImageID,
			FaceImageID:      opts.FaceImageID,
		},
		Params:   opts.Params,
		Count:    opts.Count,
		Parallel: opts.Parallel,
		Title:    opts.Title,
	})
}

// CancelGeneration cancels the in-flight batch. The client side resets
// immediately, the server cancel is best effort.
func (c *Client) CancelGeneration(ctx context.Context) error {
	return c.session.Cancel(ctx)
}

// IsGenerating returns true while a batch is in flight.
func (c *Client) IsGenerating() bool {
	return c.session.IsGenerating()
}

// CurrentBatch returns a snapshot of the active batch, nil without one.
func (c *Client) CurrentBatch() *Batch {
	return c.session.Batch()
}

// History returns history entries newest first. Server entries are preferred
// for authenticated clients, the local store answers otherwise.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return c.history.List(ctx, limit)
}

// RestoreHistoryEntry marks the entry as the current navigation point and
// returns it, so its inputs and parameters can seed a new generation.
func (c *Client) RestoreHistoryEntry(ctx context.Context, id string) (*HistoryEntry, error) {
	return c.history.Restore(ctx, id)
}

// PreviousHistoryEntry moves the navigation point one entry older. Returns
// false at the oldest entry.
func (c *Client) PreviousHistoryEntry(ctx context.Context) (*HistoryEntry, bool) {
	return c.history.Previous(ctx)
}

// NextHistoryEntry moves the navigation point one entry newer. Returns false
// at the newest entry.
func (c *Client) NextHistoryEntry(ctx context.Context) (*HistoryEntry, bool) {
	return c.history.Next(ctx)
}

// DeleteHistoryEntry removes an entry.
func (c *Client) DeleteHistoryEntry(ctx context.Context, id string) error {
	return c.history.Delete(ctx, id)
}

// RenameHistoryEntry updates an entry's title.
func (c *Client) RenameHistoryEntry(ctx context.Context, id, title string) error {
	return c.history.Rename(ctx, id, title)
}

// ToggleFavorite flips an entry's favorite flag and returns the new value.
func (c *Client) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	return c.history.ToggleFavorite(ctx, id)
}

// ClearHistory removes all entries, optionally keeping favorites.
func (c *Client) ClearHistory(ctx context.Context, keepFavorites bool) error {
	return c.history.Clear(ctx, keepFavorites)
}

// SetCanvasNodes replaces the canvas node set with new positions and resets
// the undo history, old snapshots may reference removed nodes.
func (c *Client) SetCanvasNodes(positions PositionSnapshot) {
	c.canvas.SetNodes(positions)
}

// CanvasPositions returns a copy of the current canvas node positions.
func (c *Client) CanvasPositions() PositionSnapshot {
	return c.canvas.Positions()
}

// BeginCanvasDrag captures the pre-drag canvas state for undo.
func (c *Client) BeginCanvasDrag() {
	c.canvas.BeginDrag()
}

// EndCanvasDrag applies moved node positions and records the result.
func (c *Client) EndCanvasDrag(moved PositionSnapshot) {
	c.canvas.EndDrag(moved)
}

// UndoCanvas restores the previous canvas snapshot. Returns false at the
// history boundary.
func (c *Client) UndoCanvas() bool {
	return c.canvas.Undo()
}

// RedoCanvas restores the next canvas snapshot. Returns false at the history
// boundary.
func (c *Client) RedoCanvas() bool {
	return c.canvas.Redo()
}

// wsURL derives the base websocket URL from the server URL. The websocket
// client appends /ws/{clientID} itself.
func wsURL(serverURL string) string {
	u := serverURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimSuffix(u, "/")
}
