package lib_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/Diffusion-planet/ip-to-portrait/pkg/lib"
)

func newLocalClient(t *testing.T, cfg lib.Config) *lib.Client {
	t.Helper()

	dir := t.TempDir()
	cfg.DataDir = dir
	cfg.DBPath = filepath.Join(dir, "test.db")

	client, err := lib.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientLocalHistory(t *testing.T) {
	ctx := context.Background()
	client := newLocalClient(t, lib.Config{})

	entries, err := client.History(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = client.RenameHistoryEntry(ctx, "missing", "x")
	assert.True(t, errors.Is(err, lib.ErrNotFound))

	_, err = client.RestoreHistoryEntry(ctx, "missing")
	assert.True(t, errors.Is(err, lib.ErrNotFound))
}

func TestClientCanvasUndoRedo(t *testing.T) {
	client := newLocalClient(t, lib.Config{})

	client.SetCanvasNodes(lib.PositionSnapshot{
		"face":   {X: 0, Y: 0},
		"result": {X: 100, Y: 0},
	})

	client.BeginCanvasDrag()
	client.EndCanvasDrag(lib.PositionSnapshot{"face": {X: 40, Y: 25}})
	assert.Equal(t, lib.Point{X: 40, Y: 25}, client.CanvasPositions()["face"])

	require.True(t, client.UndoCanvas())
	assert.Equal(t, lib.Point{X: 0, Y: 0}, client.CanvasPositions()["face"])

	require.True(t, client.RedoCanvas())
	assert.Equal(t, lib.Point{X: 40, Y: 25}, client.CanvasPositions()["face"])
	assert.False(t, client.RedoCanvas())
}

func TestClientGenerateValidatesInputs(t *testing.T) {
	client := newLocalClient(t, lib.Config{})

	_, err := client.Generate(context.Background(), lib.GenerateOpts{FaceImageID: "face-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lib.ErrNotValid))
	assert.False(t, client.IsGenerating())
}

func TestClientGenerateEndToEnd(t *testing.T) {
	// Real server on HTTP and websocket: one task goes pending ->
	// processing -> completed and the finished batch lands in local history.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generation/start", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"batch_id":"b1","tasks":[{"id":"t0","status":"pending"}]}`))
	})
	var wsPath atomic.Value
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		wsPath.Store(r.URL.Path)
		// The server routes frames by the path's client id, anything nested
		// below /ws/{clientID} does not exist.
		if strings.Count(strings.Trim(r.URL.Path, "/"), "/") != 1 {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()

		// Wait for the subscription before streaming frames.
		_, _, err = conn.Read(ctx)
		if err != nil {
			return
		}

		frames := []string{
			`{"type":"progress","data":{"task_id":"t0","status":"processing","progress":50}}`,
			`{"type":"progress","data":{"task_id":"t0","status":"completed","progress":100,"preview_url":"/outputs/t0.png"}}`,
		}
		for _, f := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		_, _, _ = conn.Read(ctx)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	done := make(chan struct{})
	client := newLocalClient(t, lib.Config{
		ServerURL: srv.URL,
		ClientID:  "client123",
		OnBatch: func(b lib.Batch) {
			if b.Terminal() {
				select {
				case <-done:
				default:
					close(done)
				}
			}
		},
	})

	ctx := context.Background()
	batch, err := client.Generate(ctx, lib.GenerateOpts{
		ReferenceImageID: "ref-1",
		FaceImageID:      "face-1",
		Params:           lib.GenerationParams{Prompt: "an oil painting portrait"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", batch.ID)
	assert.True(t, client.IsGenerating())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the batch to finish")
	}

	assert.Eventually(t, func() bool { return !client.IsGenerating() }, time.Second, 10*time.Millisecond)

	var entries []lib.HistoryEntry
	assert.Eventually(t, func() bool {
		entries, err = client.History(ctx, 0)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 20*time.Millisecond, "finished batch must be recorded into history")

	assert.Equal(t, []string{"/outputs/t0.png"}, entries[0].ResultURLs)
	assert.True(t, strings.HasPrefix(entries[0].Title, "an oil painting portrait"))
	assert.Equal(t, "/ws/client123", wsPath.Load())
}
