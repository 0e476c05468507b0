package canvas

import (
	"fmt"
	"sync"

	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/undo"
)

// LayoutConfig is the configuration for the canvas layout.
type LayoutConfig struct {
	// HistoryCapacity bounds how many position snapshots are kept for
	// undo/redo. Defaults to undo.DefaultCapacity.
	HistoryCapacity int
	Logger          log.Logger
}

func (c *LayoutConfig) defaults() error {
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = undo.DefaultCapacity
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "canvas.Layout"})
	return nil
}

// Layout owns the client-side node positions and their undo/redo history.
// Snapshots are whole captures taken when a drag gesture starts or ends, or
// when the layout is recomputed.
type Layout struct {
	mu        sync.Mutex
	positions model.PositionSnapshot
	history   *undo.Buffer[model.PositionSnapshot]
	logger    log.Logger
}

// NewLayout creates a new canvas layout.
func NewLayout(cfg LayoutConfig) (*Layout, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Layout{
		positions: model.PositionSnapshot{},
		history:   undo.NewBuffer[model.PositionSnapshot](cfg.HistoryCapacity),
		logger:    cfg.Logger,
	}, nil
}

// SetNodes replaces the node set with new positions. This is a structural
// change, the undo history is reset because old snapshots may reference
// nodes that no longer exist.
func (l *Layout) SetNodes(positions model.PositionSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = positions.Clone()
	l.history.Reset()
	l.logger.Debugf("Layout replaced with %d nodes, history reset", len(positions))
}

// Positions returns a copy of the current node positions.
func (l *Layout) Positions() model.PositionSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.positions.Clone()
}

// BeginDrag captures the pre-drag state. It only records a snapshot when the
// history is still empty, so repeated drags don't re-capture the same
// "before" state.
func (l *Layout) BeginDrag() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.history.Push(l.positions.Clone(), true)
}

// EndDrag applies the moved node positions and records the resulting state.
func (l *Layout) EndDrag(moved model.PositionSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, p := range moved {
		if _, ok := l.positions[id]; !ok {
			l.logger.Debugf("Ignoring drag for unknown node %q", id)
			continue
		}
		l.positions[id] = p
	}
	l.history.Push(l.positions.Clone(), false)
}

// Undo applies the previous snapshot. Returns false at the history boundary.
func (l *Layout) Undo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot, ok := l.history.Undo()
	if !ok {
		return false
	}
	l.apply(snapshot)
	return true
}

// Redo applies the next snapshot. Returns false at the history boundary.
func (l *Layout) Redo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot, ok := l.history.Redo()
	if !ok {
		return false
	}
	l.apply(snapshot)
	return true
}

// Reset drops all positions and history.
func (l *Layout) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.positions = model.PositionSnapshot{}
	l.history.Reset()
}

// apply restores positions from a snapshot. Nodes missing from the snapshot
// keep their current position.
func (l *Layout) apply(snapshot model.PositionSnapshot) {
	for id := range l.positions {
		if p, ok := snapshot[id]; ok {
			l.positions[id] = p
		}
	}
}
