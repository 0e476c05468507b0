package lib

import "github.com/Diffusion-planet/ip-to-portrait/internal/model"

// Task represents one unit of generated output within a batch.
type Task = model.Task

// TaskStatus represents the state of a single generation task.
type TaskStatus = model.TaskStatus

// Task status values.
const (
	TaskStatusPending    = model.TaskStatusPending
	TaskStatusProcessing = model.TaskStatusProcessing
	TaskStatusCompleted  = model.TaskStatusCompleted
	TaskStatusFailed     = model.TaskStatusFailed
)

// Batch represents one generation request composed of one or more tasks.
type Batch = model.Batch

// BatchStage is the coarse pipeline stage derived from task progress.
type BatchStage = model.BatchStage

// Batch stage values.
const (
	BatchStageIdle       = model.BatchStageIdle
	BatchStagePreparing  = model.BatchStagePreparing
	BatchStageLoading    = model.BatchStageLoading
	BatchStageProcessing = model.BatchStageProcessing
	BatchStageCompleted  = model.BatchStageCompleted
)

// GenerationParams are the tunables forwarded verbatim to the generation
// service.
type GenerationParams = model.GenerationParams

// HistoryEntry is a recorded generation result.
type HistoryEntry = model.HistoryEntry

// Point is a node position on the canvas.
type Point = model.Point

// PositionSnapshot captures the position of every canvas node, keyed by
// node ID.
type PositionSnapshot = model.PositionSnapshot

// Sentinel errors, inspect with errors.Is.
var (
	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = model.ErrNotFound
	// ErrAlreadyExists is returned when a resource already exists, including
	// starting a generation while one is in flight.
	ErrAlreadyExists = model.ErrAlreadyExists
	// ErrNotValid is returned on invalid inputs.
	ErrNotValid = model.ErrNotValid
	// ErrUnauthorized is returned when the server rejects the stored token.
	ErrUnauthorized = model.ErrUnauthorized
)
