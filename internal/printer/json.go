package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

// JSONPrinter prints generation information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a history entry in the list output (subset of fields).
type listItem struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Results   int       `json:"results"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"created_at"`
}

// entryOutput represents the full history entry output.
type entryOutput struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	ReferenceImageID  string         `json:"reference_image_id,omitempty"`
	ReferenceImageURL string         `json:"reference_image_url,omitempty"`
	FaceImageID       string         `json:"face_image_id,omitempty"`
	FaceImageURL      string         `json:"face_image_url,omitempty"`
	ResultURLs        []string       `json:"result_urls"`
	Params            map[string]any `json:"params,omitempty"`
	Favorite          bool           `json:"favorite"`
	CreatedAt         time.Time      `json:"created_at"`
}

// batchOutput represents the live batch progress output.
type batchOutput struct {
	ID    string       `json:"id"`
	Stage string       `json:"stage"`
	Tasks []taskOutput `json:"tasks"`
}

type taskOutput struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintHistoryList prints history entries in JSON format with a subset of fields.
func (j *JSONPrinter) PrintHistoryList(entries []model.HistoryEntry) error {
	items := make([]listItem, len(entries))
	for i, e := range entries {
		items[i] = listItem{
			ID:        e.ID,
			Title:     e.Title,
			Results:   len(e.ResultURLs),
			Favorite:  e.Favorite,
			CreatedAt: e.CreatedAt.UTC(),
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// PrintHistoryEntry prints a detailed history entry in JSON format.
func (j *JSONPrinter) PrintHistoryEntry(entry model.HistoryEntry) error {
	output := entryOutput{
		ID:                entry.ID,
		Title:             entry.Title,
		ReferenceImageID:  entry.ReferenceImageID,
		ReferenceImageURL: entry.ReferenceImageURL,
		FaceImageID:       entry.FaceImageID,
		FaceImageURL:      entry.FaceImageURL,
		ResultURLs:        entry.ResultURLs,
		Params:            entry.Params,
		Favorite:          entry.Favorite,
		CreatedAt:         entry.CreatedAt.UTC(),
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintBatch prints the live progress of a batch in JSON format.
func (j *JSONPrinter) PrintBatch(batch model.Batch) error {
	output := batchOutput{
		ID:    batch.ID,
		Stage: string(batch.Stage),
		Tasks: make([]taskOutput, len(batch.Tasks)),
	}
	for i, task := range batch.Tasks {
		output.Tasks[i] = taskOutput{
			ID:        task.ID,
			Status:    string(task.Status),
			Progress:  task.Progress,
			ResultURL: task.ResultURL,
			Error:     task.Error,
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	output := messageOutput{Message: msg}
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
