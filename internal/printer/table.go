package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

// TablePrinter prints generation information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintHistoryList prints history entries in a table format.
func (t *TablePrinter) PrintHistoryList(entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "ID\tTITLE\tRESULTS\tFAV\tCREATED")

	// Print rows
	for _, e := range entries {
		fav := ""
		if e.Favorite {
			fav = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", e.ID, e.Title, len(e.ResultURLs), fav, TimeAgo(e.CreatedAt))
	}

	return nil
}

// PrintHistoryEntry prints a detailed history entry.
func (t *TablePrinter) PrintHistoryEntry(entry model.HistoryEntry) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", entry.ID)
	fmt.Fprintf(t.writer, "Title:      %s\n", entry.Title)
	if entry.ReferenceImageID != "" {
		fmt.Fprintf(t.writer, "Reference:  %s\n", entry.ReferenceImageID)
	}
	if entry.FaceImageID != "" {
		fmt.Fprintf(t.writer, "Face:       %s\n", entry.FaceImageID)
	}
	fmt.Fprintf(t.writer, "Favorite:   %t\n", entry.Favorite)
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(entry.CreatedAt))

	if len(entry.ResultURLs) > 0 {
		fmt.Fprintf(t.writer, "Results:\n")
		for _, u := range entry.ResultURLs {
			fmt.Fprintf(t.writer, "  %s\n", u)
		}
	}

	if prompt, ok := entry.Params["prompt"].(string); ok && prompt != "" {
		fmt.Fprintf(t.writer, "Prompt:     %s\n", prompt)
	}

	return nil
}

// PrintBatch prints the live progress of a batch.
func (t *TablePrinter) PrintBatch(batch model.Batch) error {
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "Batch: %s (%s)\n", batch.ID, batch.Stage)
	for _, task := range batch.Tasks {
		detail := progressBar(task.Progress)
		switch task.Status {
		case model.TaskStatusCompleted:
			detail = task.ResultURL
		case model.TaskStatusFailed:
			detail = task.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", task.ID, task.Status, detail)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func progressBar(progress int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := progress / 10
	return fmt.Sprintf("[%s%s] %d%%", strings.Repeat("#", filled), strings.Repeat("-", 10-filled), progress)
}
