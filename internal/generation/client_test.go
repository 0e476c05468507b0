package generation_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diffusion-planet/ip-to-portrait/internal/generation"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

func newClient(t *testing.T, handler http.HandlerFunc) *generation.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := generation.NewClient(generation.ClientConfig{
		ServerURL: srv.URL,
		ClientID:  "client-test",
	})
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	tests := map[string]struct {
		cfg    generation.ClientConfig
		expErr string
	}{
		"Valid config.": {
			cfg: generation.ClientConfig{ServerURL: "http://localhost:8000", ClientID: "c1"},
		},
		"Missing server url returns error.": {
			cfg:    generation.ClientConfig{ClientID: "c1"},
			expErr: "server url is required",
		},
		"Missing client id returns error.": {
			cfg:    generation.ClientConfig{ServerURL: "http://localhost:8000"},
			expErr: "client id is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := generation.NewClient(tt.cfg)

			if tt.expErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestClientStartBatch(t *testing.T) {
	var gotBody map[string]any
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generation/start", r.URL.Path)

		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"batch_id":"b1","tasks":[{"id":"t0","status":"pending"},{"id":"t1"}]}`))
	})

	res, err := client.StartBatch(context.Background(), generation.StartRequest{
		Inputs: model.GenerationInputs{ReferenceImageID: "ref-1", FaceImageID: "face-1"},
		Params: model.GenerationParams{Prompt: "a portrait", Steps: 30},
		Count:  2,
		Title:  "my batch",
	})
	require.NoError(t, err)

	assert.Equal(t, "b1", res.BatchID)
	require.Len(t, res.Tasks, 2)
	assert.Equal(t, model.Task{ID: "t0", Status: model.TaskStatusPending}, res.Tasks[0])
	// Missing status defaults to pending.
	assert.Equal(t, model.Task{ID: "t1", Status: model.TaskStatusPending}, res.Tasks[1])

	assert.Equal(t, "client-test", gotBody["client_id"])
	assert.Equal(t, "ref-1", gotBody["reference_image_id"])
	assert.Equal(t, "face-1", gotBody["face_image_id"])
	assert.Equal(t, "my batch", gotBody["title"])
	params, ok := gotBody["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a portrait", params["prompt"])
	assert.Equal(t, float64(30), params["steps"])
}

func TestClientStartBatchValidatesInputs(t *testing.T) {
	tests := map[string]struct {
		inputs model.GenerationInputs
		expErr string
	}{
		"Missing reference image.": {
			inputs: model.GenerationInputs{FaceImageID: "face-1"},
			expErr: "reference image id is required",
		},
		"Missing face image.": {
			inputs: model.GenerationInputs{ReferenceImageID: "ref-1"},
			expErr: "face image id is required",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("server must not be hit with invalid inputs")
			})

			_, err := client.StartBatch(context.Background(), generation.StartRequest{Inputs: tt.inputs})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expErr)
			assert.True(t, errors.Is(err, model.ErrNotValid))
		})
	}
}

func TestClientCancelBatch(t *testing.T) {
	var gotPath string
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.CancelBatch(context.Background(), "b1"))
	assert.Equal(t, "/generation/cancel/b1", gotPath)
}

func TestClientBatchStatus(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generation/status/b1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tasks":[
			{"id":"t0","status":"completed","progress":100,"result_url":"/outputs/t0.png"},
			{"id":"t1","status":"failed","progress":40,"error":"oom"}
		]}`))
	})

	tasks, err := client.BatchStatus(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, model.TaskStatusCompleted, tasks[0].Status)
	assert.Equal(t, "/outputs/t0.png", tasks[0].ResultURL)
	assert.Equal(t, "oom", tasks[1].Error)
}

func TestClientRegenerateTask(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generation/task/t0/regenerate", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"t0","status":"pending"}`))
	})

	task, err := client.RegenerateTask(context.Background(), "t0")
	require.NoError(t, err)
	assert.Equal(t, &model.Task{ID: "t0", Status: model.TaskStatusPending}, task)
}

func TestClientServerErrors(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "batch not found", http.StatusNotFound)
	})

	err := client.CancelBatch(context.Background(), "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))
}
