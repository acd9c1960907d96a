// Package channel implements the session channel client: a persistent
// bidirectional connection to the lobby coordination service with
// emit/on/off/once semantics over JSON event frames.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("channel is not connected")

type HandlerFunc func(payload json.RawMessage)

// Subscription identifies one registered handler so it can be removed.
// Handler funcs are not comparable in Go, so removal goes through the token.
type Subscription struct {
	event string
	fn    HandlerFunc
	once  bool
}

type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger
	subs   *Subscribers

	writeMu sync.Mutex

	mu        sync.Mutex
	connected bool

	closeOnce sync.Once
}

// Dial opens the websocket connection to the coordination service endpoint
// and starts the read loop. The client performs no reconnects: once the
// connection drops, the caller must dial again and re-join its session.
func Dial(ctx context.Context, endpoint string, logger *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	c := &Client{
		conn:      conn,
		logger:    logger,
		subs:      NewSubscribers(),
		connected: true,
	}
	go c.readLoop()

	return c, nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connected
}

// Emit sends one event frame. Fire-and-forget: a nil error means the frame
// was written, not that the service processed it.
func (c *Client) Emit(event string, payload any) error {
	if !c.Connected() {
		return ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.logger.Debug("channel emit", "event", event)
	if err := c.conn.WriteJSON(&message{Type: event, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write %s: %w", event, err)
	}

	return nil
}

// On registers a persistent handler for event. Handlers run sequentially on
// the read-loop goroutine.
func (c *Client) On(event string, fn HandlerFunc) *Subscription {
	return c.subs.On(event, fn)
}

// Once registers a handler that removes itself after its first invocation.
func (c *Client) Once(event string, fn HandlerFunc) *Subscription {
	return c.subs.Once(event, fn)
}

func (c *Client) Off(sub *Subscription) {
	c.subs.Off(sub)
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		err = c.conn.Close()
	})

	return err
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()

			c.logger.Debug("channel read loop stopped", "error", err)
			return
		}

		if !c.subs.Dispatch(msg.Type, msg.Payload) {
			c.logger.Debug("unhandled channel event", "event", msg.Type)
		}
	}
}
