package printer

import "github.com/Diffusion-planet/ip-to-portrait/internal/model"

// Printer knows how to print generation information in different formats.
type Printer interface {
	PrintHistoryList(entries []model.HistoryEntry) error
	PrintHistoryEntry(entry model.HistoryEntry) error
	PrintBatch(batch model.Batch) error
	PrintMessage(msg string) error
}
