package ws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/Diffusion-planet/ip-to-portrait/internal/log"
)

// ConnState represents the state of the duplex connection.
type ConnState string

const (
	ConnStateDisconnected ConnState = "disconnected"
	ConnStateConnecting   ConnState = "connecting"
	ConnStateOpen         ConnState = "open"
)

const (
	defaultReconnectInterval = 5 * time.Second
	dialTimeout              = 15 * time.Second
	maxFrameBytes            = 1 << 20
)

// ClientConfig is the configuration for the websocket client.
type ClientConfig struct {
	// URL is the base websocket URL of the generation service
	// (e.g. ws://localhost:8008). The client connects to /ws/{clientID}.
	URL string
	// ClientID is stable for the whole session so subscriptions can be
	// re-issued after a reconnect without losing correlation on the server.
	ClientID string
	// ReconnectInterval is the fixed delay before the single reconnect
	// attempt scheduled after an unsolicited close. Defaults to 5s.
	ReconnectInterval time.Duration
	Logger            log.Logger

	// OnOpen fires when the connection opens. The owner is responsible for
	// re-issuing subscriptions, the client does not remember them across a
	// reconnect.
	OnOpen func()
	// OnClose fires on unsolicited closes, not on explicit Disconnect.
	OnClose func()
	// OnFrame fires for every decoded inbound frame.
	OnFrame func(Frame)
}

func (c *ClientConfig) defaults() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "ws.Client", "client_id": c.ClientID})
	return nil
}

// Client owns the single duplex connection of a session. At most one connect
// attempt is in flight at any time, and an unsolicited close schedules
// exactly one reconnect attempt after a fixed interval. Outbound messages
// while the connection is not open are silently dropped, the policy is
// at-most-once best-effort.
type Client struct {
	url               string
	clientID          string
	reconnectInterval time.Duration
	logger            log.Logger

	onOpen  func()
	onClose func()
	onFrame func(Frame)

	mu             sync.Mutex
	state          ConnState
	conn           *websocket.Conn
	cancelRead     context.CancelFunc
	reconnectTimer *time.Timer
	stopped        bool
}

// NewClient creates a new websocket client. It does not connect.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		url:               strings.TrimRight(cfg.URL, "/"),
		clientID:          cfg.ClientID,
		reconnectInterval: cfg.ReconnectInterval,
		logger:            cfg.Logger,
		onOpen:            cfg.OnOpen,
		onClose:           cfg.OnClose,
		onFrame:           cfg.OnFrame,
		state:             ConnStateDisconnected,
	}, nil
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts a connection attempt. It is idempotent: calling it while a
// connection is connecting or open has no effect.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != ConnStateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = ConnStateConnecting
	c.stopped = false
	c.mu.Unlock()

	go c.dial(ctx)
}

// Disconnect closes the connection on purpose: it suppresses the scheduled
// reconnect and does not fire OnClose.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.cancelRead != nil {
		c.cancelRead()
		c.cancelRead = nil
	}
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
		c.conn = nil
	}
	c.state = ConnStateDisconnected
}

// Subscribe asks the server to forward progress frames for a batch. Dropped
// silently unless the connection is open.
func (c *Client) Subscribe(ctx context.Context, batchID string) {
	c.send(ctx, frameTypeSubscribe, batchID)
}

// Unsubscribe stops progress frames for a batch. Dropped silently unless the
// connection is open.
func (c *Client) Unsubscribe(ctx context.Context, batchID string) {
	c.send(ctx, frameTypeUnsubscribe, batchID)
}

func (c *Client) send(ctx context.Context, t FrameType, batchID string) {
	c.mu.Lock()
	conn := c.conn
	open := c.state == ConnStateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		c.logger.Debugf("Dropping %s for batch %s, connection not open", t, batchID)
		return
	}

	msg, err := encodeSubscription(t, batchID)
	if err != nil {
		c.logger.Errorf("Could not encode %s frame: %s", t, err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		c.logger.Warningf("Could not send %s for batch %s: %s", t, batchID, err)
	}
}

func (c *Client) dial(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, fmt.Sprintf("%s/ws/%s", c.url, c.clientID), nil)
	if err != nil {
		c.logger.Warningf("Connection attempt failed: %s", err)
		c.handleClose(ctx)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	readCtx, cancelRead := context.WithCancel(ctx)

	c.mu.Lock()
	if c.stopped {
		// Disconnect raced the dial, drop the fresh connection.
		c.mu.Unlock()
		cancelRead()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		return
	}
	c.state = ConnStateOpen
	c.conn = conn
	c.cancelRead = cancelRead
	c.mu.Unlock()

	c.logger.Debugf("Connection open")
	if c.onOpen != nil {
		c.onOpen()
	}

	c.readLoop(readCtx, ctx, conn)
}

func (c *Client) readLoop(readCtx, baseCtx context.Context, conn *websocket.Conn) {
	for {
		mt, data, err := conn.Read(readCtx)
		if err != nil {
			c.handleClose(baseCtx)
			return
		}
		if mt != websocket.MessageText {
			continue
		}

		frame, err := decodeFrame(data)
		if err != nil {
			// Malformed frames are dropped, never crash the manager.
			c.logger.Warningf("Dropping malformed frame: %s", err)
			continue
		}
		if c.onFrame != nil {
			c.onFrame(*frame)
		}
	}
}

// handleClose runs after the connection drops or a connect attempt fails. It
// fires OnClose and schedules exactly one reconnect attempt, unless the close
// was requested through Disconnect.
func (c *Client) handleClose(ctx context.Context) {
	c.mu.Lock()
	if c.stopped {
		c.state = ConnStateDisconnected
		c.conn = nil
		c.mu.Unlock()
		return
	}

	c.state = ConnStateDisconnected
	c.conn = nil
	if c.cancelRead != nil {
		c.cancelRead()
		c.cancelRead = nil
	}

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(c.reconnectInterval, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		c.Connect(ctx)
	})
	c.mu.Unlock()

	c.logger.Warningf("Connection closed, reconnecting in %s", c.reconnectInterval)
	if c.onClose != nil {
		c.onClose()
	}
}
