package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandWsURL(t *testing.T) {
	tests := map[string]struct {
		serverURL string
		expURL    string
	}{
		"HTTP server URL maps to ws scheme without extra path.": {
			serverURL: "http://localhost:8000",
			expURL:    "ws://localhost:8000",
		},
		"HTTPS server URL maps to wss scheme.": {
			serverURL: "https://portraits.example.com",
			expURL:    "wss://portraits.example.com",
		},
		"Trailing slash is stripped.": {
			serverURL: "http://localhost:8000/",
			expURL:    "ws://localhost:8000",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := &RootCommand{ServerURL: tt.serverURL}
			assert.Equal(t, tt.expURL, c.wsURL())
		})
	}
}
