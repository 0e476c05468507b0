// Package session orchestrates one generation session: it starts batches on
// the server, folds websocket progress into the batch tracker, records
// finished batches into history and keeps subscriptions alive across
// reconnects.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Diffusion-planet/ip-to-portrait/internal/batch"
	"github.com/Diffusion-planet/ip-to-portrait/internal/generation"
	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/ws"
)

// maxPromptTitleLen caps prompt-derived history titles.
const maxPromptTitleLen = 50

// GenerationAPI is the server batch API the session needs.
type GenerationAPI interface {
	StartBatch(ctx context.Context, req generation.StartRequest) (*generation.StartResult, error)
	CancelBatch(ctx context.Context, batchID string) error
}

// Connection is the duplex server connection the session needs.
type Connection interface {
	Connect(ctx context.Context)
	Subscribe(ctx context.Context, batchID string)
	Unsubscribe(ctx context.Context, batchID string)
}

// HistoryRecorder saves finished batches.
type HistoryRecorder interface {
	Record(ctx context.Context, e model.HistoryEntry) error
}

// ServiceConfig is the configuration for the session service.
type ServiceConfig struct {
	API        GenerationAPI
	Connection Connection
	History    HistoryRecorder
	// OnBatch receives a batch snapshot after every applied progress frame.
	OnBatch func(model.Batch)
	// OnPrompt receives server-generated prompts from the side channel.
	OnPrompt func(prompt string)
	// CompletedIdleDelay is forwarded to the batch tracker.
	CompletedIdleDelay time.Duration
	Logger             log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.API == nil {
		return fmt.Errorf("generation api is required")
	}
	if c.Connection == nil {
		return fmt.Errorf("connection is required")
	}
	if c.History == nil {
		return fmt.Errorf("history recorder is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "session.Service"})
	return nil
}

// Service is the application service for a generation session. One batch is
// active at a time.
type Service struct {
	api       GenerationAPI
	conn      Connection
	history   HistoryRecorder
	onBatch   func(model.Batch)
	onPrompt  func(string)
	idleDelay time.Duration
	logger    log.Logger

	mu         sync.Mutex
	tracker    *batch.Tracker
	batchID    string
	generating bool
	current    StartRequest
}

// StartRequest are the user-provided inputs to start a generation.
type StartRequest struct {
	Inputs model.GenerationInputs
	Params model.GenerationParams
	Count  int
	// Parallel is how many tasks the server may run concurrently.
	Parallel int
	// Title is the optional custom history title. Empty falls back to the
	// prompt, then to a timestamp.
	Title string
}

// NewService creates a new session service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		api:       cfg.API,
		conn:      cfg.Connection,
		history:   cfg.History,
		onBatch:   cfg.OnBatch,
		onPrompt:  cfg.OnPrompt,
		idleDelay: cfg.CompletedIdleDelay,
		logger:    cfg.Logger,
	}, nil
}

// IsGenerating returns true while a batch is in flight.
func (s *Service) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// Batch returns a snapshot of the active batch, nil without one.
func (s *Service) Batch() *model.Batch {
	s.mu.Lock()
	tracker := s.tracker
	s.mu.Unlock()

	if tracker == nil {
		return nil
	}
	b := tracker.Batch()
	return &b
}

// Start begins a new generation batch. Only the required inputs are
// validated, parameter ranges are the server's concern. The websocket is
// connected lazily and the new batch subscribed before any frame can arrive.
func (s *Service) Start(ctx context.Context, req StartRequest) (*model.Batch, error) {
	if err := req.Inputs.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.generating {
		s.mu.Unlock()
		return nil, fmt.Errorf("a generation is already in progress: %w", model.ErrAlreadyExists)
	}
	s.mu.Unlock()

	res, err := s.api.StartBatch(ctx, generation.StartRequest{
		Inputs:   req.Inputs,
		Params:   req.Params,
		Count:    req.Count,
		Parallel: req.Parallel,
		Title:    req.Title,
	})
	if err != nil {
		return nil, fmt.Errorf("could not start batch: %w", err)
	}

	tracker, err := batch.NewTracker(batch.TrackerConfig{
		BatchID:            res.BatchID,
		Tasks:              res.Tasks,
		CompletedIdleDelay: s.idleDelay,
		OnComplete:         func(b model.Batch) { s.finishBatch(b, req) },
		Logger:             s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create batch tracker: %w", err)
	}

	s.mu.Lock()
	s.tracker = tracker
	s.batchID = res.BatchID
	s.generating = true
	s.current = req
	s.mu.Unlock()

	s.conn.Connect(ctx)
	s.conn.Subscribe(ctx, res.BatchID)

	s.logger.Infof("Started batch %s with %d tasks", res.BatchID, len(res.Tasks))
	b := tracker.Batch()
	return &b, nil
}

// Cancel stops the active batch. The session side is reset immediately, the
// server cancel is best effort: a failed cancel request can't leave the
// session stuck generating.
func (s *Service) Cancel(ctx context.Context) error {
	s.mu.Lock()
	batchID := s.batchID
	if !s.generating {
		s.mu.Unlock()
		return nil
	}
	s.generating = false
	s.mu.Unlock()

	s.conn.Unsubscribe(ctx, batchID)

	if err := s.api.CancelBatch(ctx, batchID); err != nil {
		s.logger.Warningf("Could not cancel batch %s on server: %s", batchID, err)
	}

	s.logger.Infof("Cancelled batch %s", batchID)
	return nil
}

// HandleFrame dispatches one decoded websocket frame. Progress frames fold
// into the tracker, generated prompts go to the prompt callback.
func (s *Service) HandleFrame(f ws.Frame) {
	switch f.Type {
	case ws.FrameTypeProgress:
		if f.Progress == nil {
			return
		}
		s.mu.Lock()
		tracker := s.tracker
		s.mu.Unlock()
		if tracker == nil {
			s.logger.Debugf("Dropping progress frame without an active batch")
			return
		}
		b := tracker.Apply(*f.Progress)
		if s.onBatch != nil {
			s.onBatch(b)
		}
	case ws.FrameTypeGeneratedPrompt:
		if s.onPrompt != nil {
			s.onPrompt(f.GeneratedPrompt)
		}
	default:
		s.logger.Debugf("Ignoring frame of type %q", f.Type)
	}
}

// HandleOpen resubscribes the active batch after a reconnect, the server
// drops subscriptions with the connection.
func (s *Service) HandleOpen(ctx context.Context) {
	s.mu.Lock()
	batchID := s.batchID
	generating := s.generating
	s.mu.Unlock()

	if !generating || batchID == "" {
		return
	}

	s.logger.Infof("Resubscribing batch %s after reconnect", batchID)
	s.conn.Subscribe(ctx, batchID)
}

// finishBatch runs once per batch, from the tracker's completion barrier.
func (s *Service) finishBatch(b model.Batch, req StartRequest) {
	s.mu.Lock()
	if s.batchID != b.ID || !s.generating {
		// A cancel raced the last frames, the batch is no longer ours.
		s.mu.Unlock()
		return
	}
	s.generating = false
	s.mu.Unlock()

	completed := b.CompletedTasks()
	if len(completed) == 0 {
		s.logger.Warningf("Batch %s finished without successful tasks, nothing to record", b.ID)
		return
	}

	resultURLs := make([]string, 0, len(completed))
	for _, t := range completed {
		resultURLs = append(resultURLs, t.ResultURL)
	}

	entry := model.HistoryEntry{
		ID:               ulid.Make().String(),
		Title:            entryTitle(req),
		FaceImageID:      req.Inputs.FaceImageID,
		ReferenceImageID: req.Inputs.ReferenceImageID,
		ResultURLs:       resultURLs,
		Params:           paramsMap(req.Params),
		Count:            len(b.Tasks),
		Parallel:         req.Parallel,
		CreatedAt:        time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.history.Record(ctx, entry); err != nil {
		s.logger.Errorf("Could not record batch %s into history: %s", b.ID, err)
		return
	}

	s.logger.Infof("Recorded batch %s into history as %s", b.ID, entry.ID)
}

// entryTitle picks the history title: custom title, then the prompt truncated
// to a readable length, then a timestamp.
func entryTitle(req StartRequest) string {
	if req.Title != "" {
		return req.Title
	}
	if p := req.Params.Prompt; p != "" {
		if len(p) > maxPromptTitleLen {
			return p[:maxPromptTitleLen]
		}
		return p
	}
	return time.Now().Format("2006-01-02 15:04:05")
}

// paramsMap flattens the generation params for history storage, zero values
// are kept so a restored entry reproduces the exact request.
func paramsMap(p model.GenerationParams) map[string]any {
	return map[string]any{
		"prompt":           p.Prompt,
		"negative_prompt":  p.NegativePrompt,
		"seed":             p.Seed,
		"steps":            p.Steps,
		"guidance_scale":   p.GuidanceScale,
		"denoise_strength": p.DenoiseStrength,
		"face_strength":    p.FaceStrength,
		"adapter_mode":     p.AdapterMode,
		"mask_expand":      p.MaskExpand,
		"mask_blur":        p.MaskBlur,
		"mask_padding":     p.MaskPadding,
		"include_hair":     p.IncludeHair,
		"include_neck":     p.IncludeNeck,
		"stop_at":          p.StopAt,
		"auto_prompt":      p.AutoPrompt,
	}
}
