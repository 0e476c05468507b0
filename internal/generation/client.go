// Package generation has the typed HTTP client for the generation server's
// batch API.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

// ClientConfig is the configuration for the generation API client.
type ClientConfig struct {
	// ServerURL is the base URL of the generation server API.
	ServerURL string
	// ClientID identifies this client, the server routes progress frames for
	// its batches to the matching websocket.
	ClientID string
	HTTP     *http.Client
	Logger   log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server url is required")
	}
	c.ServerURL = strings.TrimSuffix(c.ServerURL, "/")
	if c.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 60 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "generation.Client"})
	return nil
}

// Client talks to the generation server's batch endpoints.
type Client struct {
	serverURL string
	clientID  string
	http      *http.Client
	logger    log.Logger
}

// NewClient creates a new generation API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		serverURL: cfg.ServerURL,
		clientID:  cfg.ClientID,
		http:      cfg.HTTP,
		logger:    cfg.Logger,
	}, nil
}

// StartRequest are the inputs to start a generation batch.
type StartRequest struct {
	Inputs model.GenerationInputs
	Params model.GenerationParams
	// Count is how many portraits to generate, defaults to 1 on the server.
	Count int
	// Parallel is how many tasks run concurrently.
	Parallel int
	Title    string
}

// StartResult is the server's answer to a start request.
type StartResult struct {
	BatchID string
	Tasks   []model.Task
}

type startRequestJSON struct {
	ClientID         string     `json:"client_id"`
	ReferenceImageID string     `json:"reference_image_id"`
	FaceImageID      string     `json:"face_image_id"`
	Params           paramsJSON `json:"params"`
	Count            int        `json:"count,omitempty"`
	Parallel         int        `json:"parallel,omitempty"`
	Title            string     `json:"title,omitempty"`
}

type paramsJSON struct {
	Prompt          string  `json:"prompt,omitempty"`
	NegativePrompt  string  `json:"negative_prompt,omitempty"`
	Seed            int64   `json:"seed,omitempty"`
	Steps           int     `json:"steps,omitempty"`
	GuidanceScale   float64 `json:"guidance_scale,omitempty"`
	DenoiseStrength float64 `json:"denoise_strength,omitempty"`
	FaceStrength    float64 `json:"face_strength,omitempty"`
	AdapterMode     string  `json:"adapter_mode,omitempty"`
	MaskExpand      float64 `json:"mask_expand,omitempty"`
	MaskBlur        int     `json:"mask_blur,omitempty"`
	MaskPadding     int     `json:"mask_padding,omitempty"`
	IncludeHair     bool    `json:"include_hair"`
	IncludeNeck     bool    `json:"include_neck"`
	StopAt          float64 `json:"stop_at,omitempty"`
	AutoPrompt      bool    `json:"auto_prompt"`
}

type taskJSON struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StartBatch asks the server to start a new generation batch and returns the
// batch id with its initial task records.
func (c *Client) StartBatch(ctx context.Context, req StartRequest) (*StartResult, error) {
	if err := req.Inputs.Validate(); err != nil {
		return nil, err
	}

	body := startRequestJSON{
		ClientID:         c.clientID,
		ReferenceImageID: req.Inputs.ReferenceImageID,
		FaceImageID:      req.Inputs.FaceImageID,
		Params: paramsJSON{
			Prompt:          req.Params.Prompt,
			NegativePrompt:  req.Params.NegativePrompt,
			Seed:            req.Params.Seed,
			Steps:           req.Params.Steps,
			GuidanceScale:   req.Params.GuidanceScale,
			DenoiseStrength: req.Params.DenoiseStrength,
			FaceStrength:    req.Params.FaceStrength,
			AdapterMode:     req.Params.AdapterMode,
			MaskExpand:      req.Params.MaskExpand,
			MaskBlur:        req.Params.MaskBlur,
			MaskPadding:     req.Params.MaskPadding,
			IncludeHair:     req.Params.IncludeHair,
			IncludeNeck:     req.Params.IncludeNeck,
			StopAt:          req.Params.StopAt,
			AutoPrompt:      req.Params.AutoPrompt,
		},
		Count:    req.Count,
		Parallel: req.Parallel,
		Title:    req.Title,
	}

	var resp struct {
		BatchID string     `json:"batch_id"`
		Tasks   []taskJSON `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodPost, "/generation/start", body, &resp); err != nil {
		return nil, err
	}
	if resp.BatchID == "" {
		return nil, fmt.Errorf("server returned no batch id")
	}

	tasks := make([]model.Task, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		status := model.TaskStatus(t.Status)
		if status == "" {
			status = model.TaskStatusPending
		}
		tasks = append(tasks, model.Task{ID: t.ID, Status: status})
	}

	c.logger.Debugf("Started batch %s with %d tasks", resp.BatchID, len(tasks))
	return &StartResult{BatchID: resp.BatchID, Tasks: tasks}, nil
}

// CancelBatch asks the server to cancel a running batch.
func (c *Client) CancelBatch(ctx context.Context, batchID string) error {
	if batchID == "" {
		return fmt.Errorf("batch id is required: %w", model.ErrNotValid)
	}
	return c.do(ctx, http.MethodPost, "/generation/cancel/"+url.PathEscape(batchID), nil, nil)
}

// BatchStatus retrieves the server-side snapshot of a batch, used to catch up
// after a reconnect.
func (c *Client) BatchStatus(ctx context.Context, batchID string) ([]model.Task, error) {
	if batchID == "" {
		return nil, fmt.Errorf("batch id is required: %w", model.ErrNotValid)
	}

	var resp struct {
		Tasks []struct {
			ID         string `json:"id"`
			Status     string `json:"status"`
			Progress   int    `json:"progress"`
			PreviewURL string `json:"preview_url"`
			ResultURL  string `json:"result_url"`
			Error      string `json:"error"`
		} `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/generation/status/"+url.PathEscape(batchID), nil, &resp); err != nil {
		return nil, err
	}

	tasks := make([]model.Task, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		tasks = append(tasks, model.Task{
			ID:         t.ID,
			Status:     model.TaskStatus(t.Status),
			Progress:   t.Progress,
			PreviewURL: t.PreviewURL,
			ResultURL:  t.ResultURL,
			Error:      t.Error,
		})
	}
	return tasks, nil
}

// RegenerateTask asks the server to rerun a single task with the same inputs.
func (c *Client) RegenerateTask(ctx context.Context, taskID string) (*model.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}

	var resp taskJSON
	err := c.do(ctx, http.MethodPost, "/generation/task/"+url.PathEscape(taskID)+"/regenerate", nil, &resp)
	if err != nil {
		return nil, err
	}

	status := model.TaskStatus(resp.Status)
	if status == "" {
		status = model.TaskStatusPending
	}
	return &model.Task{ID: resp.ID, Status: status}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, model.ErrNotFound)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not decode response: %w", err)
		}
	}

	return nil
}
