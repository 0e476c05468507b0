package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

// defaultCompletedIdleDelay is how long the batch stays in the completed
// stage before reverting to idle so a new batch can re-enter preparing.
const defaultCompletedIdleDelay = 2 * time.Second

// TrackerConfig is the configuration for a batch tracker.
type TrackerConfig struct {
	// BatchID identifies the tracked batch. Frames for other batches carry
	// task ids that won't match and are ignored.
	BatchID string
	// Tasks are the initial task records returned by the start request.
	Tasks []model.Task
	// CompletedIdleDelay overrides the completed->idle revert delay.
	CompletedIdleDelay time.Duration
	// OnComplete fires exactly once, when every task reaches a terminal
	// state. Late frames can't re-fire it.
	OnComplete func(model.Batch)
	Logger     log.Logger
}

func (c *TrackerConfig) defaults() error {
	if c.BatchID == "" {
		return fmt.Errorf("batch id is required")
	}
	if len(c.Tasks) == 0 {
		return fmt.Errorf("at least one task is required")
	}
	if c.CompletedIdleDelay <= 0 {
		c.CompletedIdleDelay = defaultCompletedIdleDelay
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "batch.Tracker", "batch_id": c.BatchID})
	return nil
}

// Tracker aggregates progress frames onto the task records of one batch and
// derives the coarse pipeline stage. It is the completion barrier: the batch
// finishes only when every task is terminal, there is no partial completion.
type Tracker struct {
	mu         sync.Mutex
	batch      model.Batch
	completed  bool
	idleDelay  time.Duration
	onComplete func(model.Batch)
	logger     log.Logger
}

// NewTracker creates a tracker seeded with the initial task list.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tasks := make([]model.Task, len(cfg.Tasks))
	copy(tasks, cfg.Tasks)

	return &Tracker{
		batch: model.Batch{
			ID:    cfg.BatchID,
			Tasks: tasks,
			Stage: model.BatchStageIdle,
		},
		idleDelay:  cfg.CompletedIdleDelay,
		onComplete: cfg.OnComplete,
		logger:     cfg.Logger,
	}, nil
}

// Batch returns a snapshot of the current batch state.
func (t *Tracker) Batch() model.Batch {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// Terminal returns true once every task is completed or failed.
func (t *Tracker) Terminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batch.Terminal()
}

// Apply folds one progress update into the batch and returns the resulting
// snapshot. Updates for unknown task ids are ignored, they are stale frames
// from a previous batch arriving after a resubscription race. Terminal tasks
// are immutable.
func (t *Tracker) Apply(u model.ProgressUpdate) model.Batch {
	t.mu.Lock()

	task := t.findTask(u.TaskID)
	if task == nil {
		t.logger.Debugf("Ignoring frame for unknown task %q", u.TaskID)
		snap := t.snapshot()
		t.mu.Unlock()
		return snap
	}
	if task.Status.Terminal() {
		t.logger.Debugf("Ignoring frame for terminal task %q", u.TaskID)
		snap := t.snapshot()
		t.mu.Unlock()
		return snap
	}

	task.Status = u.Status
	task.Progress = u.Progress
	if u.PreviewURL != "" {
		task.PreviewURL = u.PreviewURL
	}
	switch u.Status {
	case model.TaskStatusCompleted:
		if u.PreviewURL != "" {
			task.ResultURL = u.PreviewURL
		}
	case model.TaskStatusFailed:
		task.Error = u.Message
	}

	t.updateStage(u)

	var completedNow bool
	if u.Status.Terminal() && !t.completed && t.batch.Terminal() {
		// Fan-in barrier: fires exactly once per batch.
		t.completed = true
		t.batch.Stage = model.BatchStageCompleted
		completedNow = true
		t.scheduleIdleRevert()
	}

	snap := t.snapshot()
	hook := t.onComplete
	t.mu.Unlock()

	if completedNow {
		t.logger.Infof("Batch terminal: %d/%d tasks completed", len(snap.CompletedTasks()), len(snap.Tasks))
		if hook != nil {
			hook(snap)
		}
	}

	return snap
}

// updateStage derives the coarse stage from the frame's reported progress.
// Once the completion barrier latched the stage is owned by the revert timer
// and frames can't move it anymore.
func (t *Tracker) updateStage(u model.ProgressUpdate) {
	if t.completed {
		return
	}
	if u.Status != model.TaskStatusProcessing {
		return
	}

	switch {
	case u.Progress == 0:
		t.batch.Stage = model.BatchStagePreparing
	case u.Progress < model.LoadingProgressThreshold:
		t.batch.Stage = model.BatchStageLoading
	default:
		t.batch.Stage = model.BatchStageProcessing
	}
}

func (t *Tracker) scheduleIdleRevert() {
	time.AfterFunc(t.idleDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.batch.Stage == model.BatchStageCompleted {
			t.batch.Stage = model.BatchStageIdle
		}
	})
}

func (t *Tracker) findTask(id string) *model.Task {
	for i := range t.batch.Tasks {
		if t.batch.Tasks[i].ID == id {
			return &t.batch.Tasks[i]
		}
	}
	return nil
}

func (t *Tracker) snapshot() model.Batch {
	tasks := make([]model.Task, len(t.batch.Tasks))
	copy(tasks, t.batch.Tasks)
	return model.Batch{ID: t.batch.ID, Tasks: tasks, Stage: t.batch.Stage}
}
