// Package lib provides a Go SDK for the ip-to-portrait generation service.
//
// This package allows applications to start portrait generation batches,
// follow their progress over the server's websocket and manage the generation
// history without shelling out to the portrait CLI binary.
//
// # Quick Start
//
// Create a client, generate portraits and read the history:
//
//	client, err := lib.New(ctx, lib.Config{
//	    ServerURL: "http://localhost:8000",
//	    OnBatch:   func(b lib.Batch) { fmt.Println(b.Stage) },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	batch, err := client.Generate(ctx, lib.GenerateOpts{
//	    ReferenceImageID: "ref-1",
//	    FaceImageID:      "face-1",
//	    Params:           lib.GenerationParams{Prompt: "an oil painting portrait"},
//	    Count:            4,
//	})
//
// Progress arrives through [Config].OnBatch until every task reaches a
// terminal state, finished batches are recorded into history automatically.
//
// # History
//
// History lives on the server for authenticated clients and in a local
// SQLite database otherwise, the SDK routes each operation transparently:
//
//	entries, _ := client.History(ctx, 50)
//	entry, _ := client.RestoreHistoryEntry(ctx, entries[0].ID)
//	older, ok := client.PreviousHistoryEntry(ctx)
//	client.RenameHistoryEntry(ctx, entry.ID, "studio portrait")
//	client.ToggleFavorite(ctx, entry.ID)
//	client.DeleteHistoryEntry(ctx, entry.ID)
//
// # Canvas
//
// The client also tracks canvas node positions with bounded undo/redo for
// applications that lay generation nodes out visually:
//
//	client.SetCanvasNodes(lib.PositionSnapshot{"face": {X: 0, Y: 0}})
//	client.BeginCanvasDrag()
//	client.EndCanvasDrag(lib.PositionSnapshot{"face": {X: 40, Y: 25}})
//	client.UndoCanvas()
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Resource does not exist.
//   - [ErrAlreadyExists]: A generation is already in flight.
//   - [ErrNotValid]: Invalid input (e.g. missing image references).
//   - [ErrUnauthorized]: The server rejected the stored token.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines. The local
// history storage uses SQLite with WAL mode.
package lib
