package printer_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/printer"
)

func entryFixture() model.HistoryEntry {
	createdAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	return model.HistoryEntry{
		ID:               "01234567890ABCDEFGHIJKLMNOP",
		Title:            "my portrait",
		ReferenceImageID: "ref-1",
		FaceImageID:      "face-1",
		ResultURLs:       []string{"/outputs/1.png", "/outputs/2.png"},
		Params:           map[string]any{"prompt": "an oil painting"},
		Favorite:         true,
		CreatedAt:        createdAt,
	}
}

func TestTablePrinterPrintHistoryEntry(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintHistoryEntry(entryFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Title:      my portrait")
	assert.Contains(t, out, "Reference:  ref-1")
	assert.Contains(t, out, "/outputs/1.png")
	assert.Contains(t, out, "Prompt:     an oil painting")
}

func TestTablePrinterPrintHistoryList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintHistoryList([]model.HistoryEntry{entryFixture()})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "my portrait")
	assert.Contains(t, out, "*")
}

func TestTablePrinterPrintHistoryListEmpty(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	require.NoError(t, p.PrintHistoryList(nil))
	assert.Empty(t, buf.String())
}

func TestTablePrinterPrintBatch(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintBatch(model.Batch{
		ID:    "b1",
		Stage: model.BatchStageProcessing,
		Tasks: []model.Task{
			{ID: "t0", Status: model.TaskStatusProcessing, Progress: 50},
			{ID: "t1", Status: model.TaskStatusCompleted, Progress: 100, ResultURL: "/outputs/1.png"},
			{ID: "t2", Status: model.TaskStatusFailed, Error: "oom"},
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Batch: b1 (processing)")
	assert.Contains(t, out, "50%")
	assert.Contains(t, out, "/outputs/1.png")
	assert.Contains(t, out, "oom")
}

func TestJSONPrinterPrintHistoryEntry(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintHistoryEntry(entryFixture())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "my portrait", got["title"])
	assert.Equal(t, true, got["favorite"])
}

func TestJSONPrinterPrintHistoryList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintHistoryList([]model.HistoryEntry{entryFixture()})
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, float64(2), got[0]["results"])
}

func TestJSONPrinterPrintBatch(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintBatch(model.Batch{
		ID:    "b1",
		Stage: model.BatchStageCompleted,
		Tasks: []model.Task{{ID: "t0", Status: model.TaskStatusCompleted, Progress: 100}},
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "completed", got["stage"])
}
