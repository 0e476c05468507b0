package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
	"github.com/Diffusion-planet/ip-to-portrait/internal/ws"
)

// testServer accepts websocket connections and hands each one to the given
// session func. It counts accepted connections.
type testServer struct {
	srv      *httptest.Server
	accepted atomic.Int32
}

func newTestServer(t *testing.T, session func(ctx context.Context, conn *websocket.Conn)) *testServer {
	t.Helper()

	ts := &testServer{}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ts.accepted.Add(1)
		session(r.Context(), conn)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition never met: %s", msg)
}

func TestClientConnectAndReceiveFrames(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		frames := []string{
			`{"type":"progress","data":{"task_id":"t0","status":"processing","progress":50}}`,
			`not json at all`,
			`{"type":"generated_prompt","data":{"prompt":"hello"}}`,
		}
		for _, f := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		// Keep the connection open until the client goes away.
		_, _, _ = conn.Read(ctx)
	})

	var got []ws.Frame
	frames := make(chan ws.Frame, 10)

	client, err := ws.NewClient(ws.ClientConfig{
		URL:      srv.wsURL(),
		ClientID: "client-test",
		OnFrame:  func(f ws.Frame) { frames <- f },
	})
	require.NoError(t, err)
	defer client.Disconnect()

	client.Connect(context.Background())
	waitFor(t, func() bool { return client.State() == ws.ConnStateOpen }, "connection open")

	// The malformed frame must be dropped, the two valid ones delivered in order.
	for i := 0; i < 2; i++ {
		select {
		case f := <-frames:
			got = append(got, f)
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, ws.FrameTypeProgress, got[0].Type)
	require.NotNil(t, got[0].Progress)
	assert.Equal(t, model.ProgressUpdate{TaskID: "t0", Status: model.TaskStatusProcessing, Progress: 50}, *got[0].Progress)
	assert.Equal(t, ws.FrameTypeGeneratedPrompt, got[1].Type)
	assert.Equal(t, "hello", got[1].GeneratedPrompt)
}

func TestClientConnectIsIdempotent(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		_, _, _ = conn.Read(ctx)
	})

	client, err := ws.NewClient(ws.ClientConfig{
		URL:      srv.wsURL(),
		ClientID: "client-test",
	})
	require.NoError(t, err)
	defer client.Disconnect()

	client.Connect(context.Background())
	client.Connect(context.Background())
	client.Connect(context.Background())

	waitFor(t, func() bool { return client.State() == ws.ConnStateOpen }, "connection open")

	// Give any extra attempts time to land, there must be exactly one.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepted.Load())
}

func TestClientReconnectsOnceAfterUnsolicitedClose(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		// Kick the client out immediately.
		conn.Close(websocket.StatusGoingAway, "bye")
	})

	var closes atomic.Int32
	client, err := ws.NewClient(ws.ClientConfig{
		URL:               srv.wsURL(),
		ClientID:          "client-test",
		ReconnectInterval: 100 * time.Millisecond,
		OnClose:           func() { closes.Add(1) },
	})
	require.NoError(t, err)
	defer client.Disconnect()

	client.Connect(context.Background())

	// First connection, then exactly one scheduled reconnect per close.
	waitFor(t, func() bool { return srv.accepted.Load() >= 2 }, "reconnect attempt")
	assert.GreaterOrEqual(t, closes.Load(), int32(1))
}

func TestClientDisconnectSuppressesReconnect(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context, conn *websocket.Conn) {
		conn.Close(websocket.StatusGoingAway, "bye")
	})

	var closes atomic.Int32
	client, err := ws.NewClient(ws.ClientConfig{
		URL:               srv.wsURL(),
		ClientID:          "client-test",
		ReconnectInterval: 300 * time.Millisecond,
		OnClose:           func() { closes.Add(1) },
	})
	require.NoError(t, err)

	client.Connect(context.Background())

	// Wait for the unsolicited close to be observed, then disconnect before
	// the scheduled reconnect fires.
	waitFor(t, func() bool { return closes.Load() >= 1 }, "unsolicited close observed")
	client.Disconnect()

	time.Sleep(600 * time.Millisecond)
	assert.Equal(t, int32(1), srv.accepted.Load(), "disconnect must cancel the scheduled reconnect")
}

func TestClientSendDroppedWhenNotOpen(t *testing.T) {
	client, err := ws.NewClient(ws.ClientConfig{
		URL:      "ws://127.0.0.1:1",
		ClientID: "client-test",
	})
	require.NoError(t, err)

	// Must not panic or block, the message is silently dropped.
	client.Subscribe(context.Background(), "batch-1")
	client.Unsubscribe(context.Background(), "batch-1")
	assert.Equal(t, ws.ConnStateDisconnected, client.State())
}
