package model

import (
	"fmt"
)

// TaskStatus represents the state of a single generation task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal returns true when the task can no longer change state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task represents one unit of generated output within a batch.
type Task struct {
	ID         string
	Status     TaskStatus
	Progress   int // 0-100.
	PreviewURL string
	ResultURL  string
	Error      string
}

// BatchStage is the coarse pipeline stage derived from task progress.
type BatchStage string

const (
	// BatchStageIdle is the initial stage, before any progress arrives.
	BatchStageIdle BatchStage = "idle"
	// BatchStagePreparing indicates a task started processing at progress 0.
	BatchStagePreparing BatchStage = "preparing"
	// BatchStageLoading indicates early progress, below the loading threshold.
	BatchStageLoading BatchStage = "loading"
	// BatchStageProcessing indicates steady progress past the loading threshold.
	BatchStageProcessing BatchStage = "processing"
	// BatchStageCompleted indicates every task in the batch reached a terminal state.
	BatchStageCompleted BatchStage = "completed"
)

// LoadingProgressThreshold separates the loading stage from the processing
// stage: below it the server is still warming up the pipeline.
const LoadingProgressThreshold = 5

// Batch represents one user-initiated generation request composed of one or
// more tasks. Task order is creation order and is stable.
type Batch struct {
	ID    string
	Tasks []Task
	Stage BatchStage
}

// Terminal returns true when every task in the batch is completed or failed.
func (b Batch) Terminal() bool {
	if len(b.Tasks) == 0 {
		return false
	}
	for _, t := range b.Tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// CompletedTasks returns the tasks that finished successfully, in order.
func (b Batch) CompletedTasks() []Task {
	var done []Task
	for _, t := range b.Tasks {
		if t.Status == TaskStatusCompleted {
			done = append(done, t)
		}
	}
	return done
}

// ProgressUpdate is a decoded progress frame addressed to a single task.
type ProgressUpdate struct {
	TaskID     string
	Status     TaskStatus
	Progress   int
	PreviewURL string
	Message    string
}

// GenerationInputs are the references required to start a batch.
type GenerationInputs struct {
	ReferenceImageID string
	FaceImageID      string
}

// Validate checks the required inputs are present. This is the only
// validation the engine performs, business parameters are the server's
// concern.
func (i GenerationInputs) Validate() error {
	if i.ReferenceImageID == "" {
		return fmt.Errorf("reference image id is required: %w", ErrNotValid)
	}
	if i.FaceImageID == "" {
		return fmt.Errorf("face image id is required: %w", ErrNotValid)
	}
	return nil
}

// GenerationParams are the tunables forwarded verbatim to the generation
// service. The engine treats them as opaque.
type GenerationParams struct {
	Prompt          string
	NegativePrompt  string
	Seed            int64
	Steps           int
	GuidanceScale   float64
	DenoiseStrength float64
	FaceStrength    float64
	AdapterMode     string
	MaskExpand      float64
	MaskBlur        int
	MaskPadding     int
	IncludeHair     bool
	IncludeNeck     bool
	StopAt          float64
	AutoPrompt      bool
}
