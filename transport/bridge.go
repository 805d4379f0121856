package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kestrel-app/kestrel-core/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 1 << 20 // 1 MB; a frame larger than this is a bridge bug
)

// ErrClosed is returned by outbound commands after the client has shut down.
var ErrClosed = errors.New("bridge connection closed")

// Handler receives every well-formed inbound event, in arrival order.
// Malformed frames are logged and dropped before reaching the handler.
type Handler func(*Event)

// BridgeClient is a WebSocket connection to the assistant bridge. It
// implements Transport for the outbound direction and pumps inbound events
// to a single handler.
type BridgeClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Dial connects to the bridge at url and starts the write pump. Call Listen
// to begin receiving events.
func Dial(url string) (*BridgeClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", url, err)
	}

	c := &BridgeClient{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c, nil
}

// Listen reads inbound frames until the connection drops or Close is called.
// It blocks; run it on its own goroutine. Well-formed events go to handler
// in arrival order.
func (c *BridgeClient) Listen(handler Handler) error {
	log := logger.WithComponent("bridge")

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("bridge connection dropped", "error", err)
			}
			return fmt.Errorf("read bridge frame: %w", err)
		}

		ev, err := ParseEvent(raw)
		if err != nil {
			log.Warn("dropping malformed frame", "error", err)
			continue
		}
		handler(ev)
	}
}

// Start opens a turn for the session with the given prompt.
func (c *BridgeClient) Start(sessionID, prompt string) error {
	return c.sendCommand(sessionID, CommandStart, StartPayload{Prompt: prompt})
}

// Cancel asks the bridge to interrupt the session's in-flight turn.
func (c *BridgeClient) Cancel(sessionID string) error {
	return c.sendCommand(sessionID, CommandCancel, nil)
}

// ResolvePermission forwards the user's decision for a permission request.
func (c *BridgeClient) ResolvePermission(sessionID, requestID, decision string) error {
	return c.sendCommand(sessionID, CommandResolvePermission, ResolvePermissionPayload{
		RequestID: requestID,
		Decision:  decision,
	})
}

func (c *BridgeClient) sendCommand(sessionID, kind string, payload any) error {
	cmd, err := NewCommand(sessionID, kind, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	if c.isClosed() {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close shuts down the connection. Safe to call more than once.
func (c *BridgeClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.conn.Close()
}

func (c *BridgeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *BridgeClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.WithComponent("bridge").Warn("write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
