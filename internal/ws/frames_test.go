package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

func TestDecodeFrame(t *testing.T) {
	tests := map[string]struct {
		data     string
		expErr   bool
		expFrame *Frame
	}{
		"Progress frame decodes task update.": {
			data: `{"type":"progress","data":{"task_id":"b1-0","status":"processing","progress":42,"preview_url":"/outputs/p.png"}}`,
			expFrame: &Frame{
				Type: FrameTypeProgress,
				Progress: &model.ProgressUpdate{
					TaskID:     "b1-0",
					Status:     model.TaskStatusProcessing,
					Progress:   42,
					PreviewURL: "/outputs/p.png",
				},
			},
		},
		"Failed progress frame carries the error message.": {
			data: `{"type":"progress","data":{"task_id":"b1-1","status":"failed","progress":10,"message":"CUDA out of memory"}}`,
			expFrame: &Frame{
				Type: FrameTypeProgress,
				Progress: &model.ProgressUpdate{
					TaskID:   "b1-1",
					Status:   model.TaskStatusFailed,
					Progress: 10,
					Message:  "CUDA out of memory",
				},
			},
		},
		"Generated prompt frame decodes the side channel payload.": {
			data: `{"type":"generated_prompt","data":{"prompt":"soft light, natural skin"}}`,
			expFrame: &Frame{
				Type:            FrameTypeGeneratedPrompt,
				GeneratedPrompt: "soft light, natural skin",
			},
		},
		"Unknown frame type decodes with only the type set.": {
			data:     `{"type":"pong"}`,
			expFrame: &Frame{Type: "pong"},
		},
		"Invalid JSON is rejected.": {
			data:   `{not json`,
			expErr: true,
		},
		"Missing type is rejected.": {
			data:   `{"data":{}}`,
			expErr: true,
		},
		"Progress frame without task id is rejected.": {
			data:   `{"type":"progress","data":{"status":"processing","progress":5}}`,
			expErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			frame, err := decodeFrame([]byte(tt.data))

			if tt.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expFrame, frame)
		})
	}
}

func TestEncodeSubscription(t *testing.T) {
	msg, err := encodeSubscription(frameTypeSubscribe, "batch-7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","batch_id":"batch-7"}`, string(msg))

	msg, err = encodeSubscription(frameTypeUnsubscribe, "batch-7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"unsubscribe","batch_id":"batch-7"}`, string(msg))
}
