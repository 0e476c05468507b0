package batch_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diffusion-planet/ip-to-portrait/internal/batch"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

func pendingTasks(ids ...string) []model.Task {
	tasks := make([]model.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, model.Task{ID: id, Status: model.TaskStatusPending})
	}
	return tasks
}

func TestNewTracker(t *testing.T) {
	tests := map[string]struct {
		cfg    batch.TrackerConfig
		expErr string
	}{
		"Valid config.": {
			cfg: batch.TrackerConfig{BatchID: "b1", Tasks: pendingTasks("t0")},
		},
		"Missing batch id returns error.": {
			cfg:    batch.TrackerConfig{Tasks: pendingTasks("t0")},
			expErr: "batch id is required",
		},
		"Missing tasks returns error.": {
			cfg:    batch.TrackerConfig{BatchID: "b1"},
			expErr: "at least one task is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tr, err := batch.NewTracker(tt.cfg)

			if tt.expErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expErr)
				return
			}
			require.NoError(t, err)
			b := tr.Batch()
			assert.Equal(t, model.BatchStageIdle, b.Stage)
			assert.False(t, tr.Terminal())
		})
	}
}

func TestTrackerStageMachine(t *testing.T) {
	tests := map[string]struct {
		updates  []model.ProgressUpdate
		expStage model.BatchStage
	}{
		"No frames keeps the batch idle.": {
			expStage: model.BatchStageIdle,
		},
		"Processing at zero progress is preparing.": {
			updates: []model.ProgressUpdate{
				{TaskID: "t0", Status: model.TaskStatusProcessing, Progress: 0},
			},
			expStage: model.BatchStagePreparing,
		},
		"Processing below the threshold is loading.": {
			updates: []model.ProgressUpdate{
				{TaskID: "t0", Status: model.TaskStatusProcessing, Progress: 3},
			},
			expStage: model.BatchStageLoading,
		},
		"Processing at the threshold is processing.": {
			updates: []model.ProgressUpdate{
				{TaskID: "t0", Status: model.TaskStatusProcessing, Progress: 5},
			},
			expStage: model.BatchStageProcessing,
		},
		"Pending frames don't move the stage.": {
			updates: []model.ProgressUpdate{
				{TaskID: "t0", Status: model.TaskStatusPending},
			},
			expStage: model.BatchStageIdle,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tr, err := batch.NewTracker(batch.TrackerConfig{
				BatchID: "b1",
				Tasks:   pendingTasks("t0", "t1"),
			})
			require.NoError(t, err)

			var last model.Batch
			last = tr.Batch()
			for _, u := range tt.updates {
				last = tr.Apply(u)
			}

			assert.Equal(t, tt.expStage, last.Stage)
		})
	}
}

func TestTrackerCompletionBarrier(t *testing.T) {
	// Two tasks, one completes and one fails: the batch is terminal only
	// after the last task reaches a terminal state.
	var completions atomic.Int32
	tr, err := batch.NewTracker(batch.TrackerConfig{
		BatchID:            "b1",
		Tasks:              pendingTasks("a", "b"),
		CompletedIdleDelay: time.Hour, // Keep the completed stage pinned for assertions.
		OnComplete:         func(model.Batch) { completions.Add(1) },
	})
	require.NoError(t, err)

	tr.Apply(model.ProgressUpdate{TaskID: "a", Status: model.TaskStatusProcessing, Progress: 0})
	tr.Apply(model.ProgressUpdate{TaskID: "b", Status: model.TaskStatusProcessing, Progress: 0})

	b := tr.Apply(model.ProgressUpdate{TaskID: "a", Status: model.TaskStatusCompleted, Progress: 100, PreviewURL: "/outputs/a.png"})
	assert.False(t, b.Terminal(), "batch must not be terminal with one task still running")
	assert.Equal(t, int32(0), completions.Load())

	b = tr.Apply(model.ProgressUpdate{TaskID: "b", Status: model.TaskStatusFailed, Progress: 40, Message: "boom"})
	require.True(t, b.Terminal())
	assert.Equal(t, model.BatchStageCompleted, b.Stage)
	assert.Equal(t, int32(1), completions.Load())

	// Exactly one completed and one failed task, with the failure message kept.
	require.Len(t, b.CompletedTasks(), 1)
	assert.Equal(t, "a", b.CompletedTasks()[0].ID)
	assert.Equal(t, "/outputs/a.png", b.Tasks[0].ResultURL)
	assert.Equal(t, model.TaskStatusFailed, b.Tasks[1].Status)
	assert.Equal(t, "boom", b.Tasks[1].Error)
}

func TestTrackerCompletionIsIdempotent(t *testing.T) {
	var completions atomic.Int32
	tr, err := batch.NewTracker(batch.TrackerConfig{
		BatchID:            "b1",
		Tasks:              pendingTasks("a"),
		CompletedIdleDelay: time.Hour,
		OnComplete:         func(model.Batch) { completions.Add(1) },
	})
	require.NoError(t, err)

	tr.Apply(model.ProgressUpdate{TaskID: "a", Status: model.TaskStatusCompleted, Progress: 100})
	require.True(t, tr.Terminal())

	// Late stray frames: terminal tasks are immutable and the barrier must
	// not re-fire, nor may the stage move away from completed.
	b := tr.Apply(model.ProgressUpdate{TaskID: "a", Status: model.TaskStatusProcessing, Progress: 10})
	assert.Equal(t, model.BatchStageCompleted, b.Stage)
	assert.Equal(t, model.TaskStatusCompleted, b.Tasks[0].Status)

	b = tr.Apply(model.ProgressUpdate{TaskID: "a", Status: model.TaskStatusFailed, Progress: 0, Message: "late"})
	assert.Equal(t, model.BatchStageCompleted, b.Stage)
	assert.Empty(t, b.Tasks[0].Error)

	assert.Equal(t, int32(1), completions.Load())
}

func TestTrackerIgnoresUnknownTasks(t *testing.T) {
	tr, err := batch.NewTracker(batch.TrackerConfig{
		BatchID: "b2",
		Tasks:   pendingTasks("t0"),
	})
	require.NoError(t, err)

	// Stale frame from a previous batch after a resubscription race.
	b := tr.Apply(model.ProgressUpdate{TaskID: "old-batch-0", Status: model.TaskStatusCompleted, Progress: 100})

	assert.Equal(t, model.BatchStageIdle, b.Stage)
	assert.Equal(t, model.TaskStatusPending, b.Tasks[0].Status)
	assert.False(t, b.Terminal())
}

func TestTrackerCompletedRevertsToIdle(t *testing.T) {
	tr, err := batch.NewTracker(batch.TrackerConfig{
		BatchID:            "b3",
		Tasks:              pendingTasks("t0"),
		CompletedIdleDelay: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	b := tr.Apply(model.ProgressUpdate{TaskID: "t0", Status: model.TaskStatusCompleted, Progress: 100})
	require.Equal(t, model.BatchStageCompleted, b.Stage)

	assert.Eventually(t, func() bool {
		return tr.Batch().Stage == model.BatchStageIdle
	}, time.Second, 10*time.Millisecond, "stage must revert to idle after the delay")

	// Terminal state itself is permanent.
	assert.True(t, tr.Terminal())
}
