package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xqlive/xiangqi-server/internal/v1/logging"
	"github.com/xqlive/xiangqi-server/internal/v1/metrics"
	"github.com/xqlive/xiangqi-server/internal/v1/room"
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error) // Read the next message from the connection
	WriteMessage(messageType int, data []byte) error     // Write a message to the connection
	Close() error                                        // Close the connection
	SetWriteDeadline(t time.Time) error
}

// Client represents a single user's connection to the server. Commands flow
// in through readPump, serialized events flow out through writePump; the hub
// never touches the socket directly.
type Client struct {
	id   room.ConnectionID
	conn wsConnection
	hub  *Hub

	// limiter bounds inbound frames per connection. Nil disables limiting
	// (used by tests).
	limiter *rate.Limiter

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	send chan []byte
}

// ID returns the opaque connection identifier.
func (c *Client) ID() room.ConnectionID {
	return c.id
}

// Disconnect closes the outbound channel, which drives the writePump to send
// a close frame and tear down the socket. Safe to call more than once.
func (c *Client) Disconnect() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}

// readPump reads frames off the socket and hands each one to the hub. It
// exits on the first read error, which is the sole disconnect signal.
func (c *Client) readPump() {
	defer func() {
		c.hub.HandleDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	ctx := context.WithValue(context.Background(), logging.ConnectionIDKey, string(c.id))
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.RateLimitExceeded.WithLabelValues("websocket_message", "connection").Inc()
			logging.Warn(ctx, "Dropping frame: per-connection message rate exceeded")
			continue
		}

		c.hub.Dispatch(c, data)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	writeWait := 10 * time.Second

	for {
		message, ok := <-c.send
		if !ok {
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "error writing message", zap.Error(err))
			return
		}
	}
}

// Send serializes an event and queues it for delivery.
func (c *Client) Send(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal event", zap.Error(err))
		return
	}
	c.sendRaw(data)
}

// sendRaw queues pre-serialized data. Sends to a closed or backed-up client
// are dropped; a broadcast must never block or fail because one recipient
// went away.
func (c *Client) sendRaw(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		logging.GetLogger().Debug("Skipping send to closed client", zap.String("connectionId", string(c.id)))
		return
	}
	c.mu.RUnlock()

	// The channel may be closed by Disconnect between the check above and
	// the send below.
	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from send to closed client", zap.String("connectionId", string(c.id)), zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "Client send channel full - dropping message", zap.String("connectionId", string(c.id)))
	}
}
