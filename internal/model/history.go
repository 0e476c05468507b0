package model

import (
	"fmt"
	"time"
)

// HistoryEntry is one persisted record of a finished generation batch.
// It is created exactly once per terminal batch that produced at least one
// completed task, and is never mutated afterwards except for title edits
// and favorite toggles.
type HistoryEntry struct {
	ID                string
	Title             string
	FaceImageID       string
	FaceImageURL      string
	ReferenceImageID  string
	ReferenceImageURL string
	ResultURLs        []string
	Params            map[string]any
	Count             int
	Parallel          int
	Favorite          bool
	CreatedAt         time.Time
}

// Validate validates the history entry.
func (e HistoryEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if len(e.ResultURLs) == 0 {
		return fmt.Errorf("at least one result is required: %w", ErrNotValid)
	}
	return nil
}
