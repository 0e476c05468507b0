package ws

import (
	"encoding/json"
	"fmt"

	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

// FrameType tags a decoded message received over the duplex connection.
type FrameType string

const (
	// FrameTypeProgress carries a progress update for a single task.
	FrameTypeProgress FrameType = "progress"
	// FrameTypeGeneratedPrompt carries an auto-generated prompt, a side
	// channel unrelated to task progress.
	FrameTypeGeneratedPrompt FrameType = "generated_prompt"

	frameTypeSubscribe   FrameType = "subscribe"
	frameTypeUnsubscribe FrameType = "unsubscribe"
)

// Frame is one decoded inbound message.
type Frame struct {
	Type FrameType

	// Progress is set when Type is FrameTypeProgress.
	Progress *model.ProgressUpdate
	// GeneratedPrompt is set when Type is FrameTypeGeneratedPrompt.
	GeneratedPrompt string
}

type envelope struct {
	Type    FrameType       `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	BatchID string          `json:"batch_id,omitempty"`
}

type progressPayload struct {
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	PreviewURL string `json:"preview_url,omitempty"`
	Message    string `json:"message,omitempty"`
}

type generatedPromptPayload struct {
	Prompt string `json:"prompt"`
}

// decodeFrame parses an inbound message. Unknown frame types decode into a
// Frame with only the type set, the caller decides whether to ignore them.
func decodeFrame(data []byte) (*Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("could not decode frame envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame has no type")
	}

	frame := &Frame{Type: env.Type}

	switch env.Type {
	case FrameTypeProgress:
		var p progressPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("could not decode progress payload: %w", err)
		}
		if p.TaskID == "" {
			return nil, fmt.Errorf("progress frame has no task id")
		}
		frame.Progress = &model.ProgressUpdate{
			TaskID:     p.TaskID,
			Status:     model.TaskStatus(p.Status),
			Progress:   p.Progress,
			PreviewURL: p.PreviewURL,
			Message:    p.Message,
		}
	case FrameTypeGeneratedPrompt:
		var p generatedPromptPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("could not decode generated prompt payload: %w", err)
		}
		frame.GeneratedPrompt = p.Prompt
	}

	return frame, nil
}

func encodeSubscription(t FrameType, batchID string) ([]byte, error) {
	return json.Marshal(envelope{Type: t, BatchID: batchID})
}
