// Package transport maintains one client WebSocket connection to a SyncKit
// server: frame encoding/decoding, keepalive, and request/ack correlation.
// Connection lifecycle policy (retry, backoff, teardown) lives in the engine;
// this package only reports loss via Done.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Dancode-188/synckit/sdk/go/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// RequestTimeout bounds every request/ack round trip. An unacknowledged
	// request after this long counts as a transport failure.
	RequestTimeout = 5 * time.Second

	sendQueueSize = 256
)

var (
	ErrConnClosed    = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue is full")
)

// MessageHandler receives server-initiated messages (anything that is not an
// ack for an in-flight request).
type MessageHandler func(*protocol.Message)

// Conn is a live connection. Create with Dial; all methods are safe for
// concurrent use.
type Conn struct {
	ws        *websocket.Conn
	logger    *slog.Logger
	onMessage MessageHandler

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	pending map[string]chan *protocol.Message
}

// Dial connects to a SyncKit server. onMessage may be nil when the caller
// has no interest in server-pushed messages.
func Dial(ctx context.Context, url string, logger *slog.Logger, onMessage MessageHandler) (*Conn, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Conn{
		ws:        ws,
		logger:    logger,
		onMessage: onMessage,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		pending:   make(map[string]chan *protocol.Message),
	}

	go c.readPump()
	go c.writePump()

	return c, nil
}

// Request sends a message and waits for the matching ack, correlated by
// message id. A server rejection in the ack payload surfaces as
// *protocol.ServerError. Times out after RequestTimeout unless ctx is
// stricter.
func (c *Conn) Request(ctx context.Context, messageType string, payload map[string]interface{}) (*protocol.Message, error) {
	id := protocol.NewMessageID()
	payload["type"] = messageType
	payload["id"] = id

	reply := make(chan *protocol.Message, 1)
	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.enqueue(messageType, payload); err != nil {
		return nil, err
	}

	timer := time.NewTimer(RequestTimeout)
	defer timer.Stop()

	select {
	case msg := <-reply:
		if serr := protocol.PayloadError(msg.Payload); serr != nil {
			return nil, serr
		}
		return msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: no acknowledgment within %s", messageType, RequestTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closeErr
	}
}

// Notify sends a message without waiting for any acknowledgment.
func (c *Conn) Notify(messageType string, payload map[string]interface{}) error {
	payload["type"] = messageType
	if _, ok := payload["id"]; !ok {
		payload["id"] = protocol.NewMessageID()
	}
	return c.enqueue(messageType, payload)
}

func (c *Conn) enqueue(messageType string, payload map[string]interface{}) error {
	data, err := protocol.EncodeMessage(messageType, payload, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return c.closeErr
	default:
		return ErrSendQueueFull
	}
}

// Done is closed once the connection is gone, for any reason.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal error after Done is closed. ErrConnClosed means
// an intentional local Close.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.closeErr
	default:
		return nil
	}
}

// Close tears the connection down. Idempotent.
func (c *Conn) Close() error {
	c.closeWith(ErrConnClosed)
	return nil
}

func (c *Conn) closeWith(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.done)
		c.ws.Close()
	})
}

// readPump decodes inbound frames, routes acks to their waiting requests and
// hands everything else to the message handler.
func (c *Conn) readPump() {
	defer c.closeWith(ErrConnClosed)

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.closeWith(fmt.Errorf("read: %w", err))
			return
		}

		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame",
				slog.Int("bytes", len(data)),
				slog.String("error", err.Error()))
			continue
		}

		if msg.ID != "" {
			c.mu.Lock()
			reply, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.mu.Unlock()
			if ok {
				reply <- msg
				continue
			}
		}

		if msg.Type == protocol.TypePong {
			continue
		}

		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// writePump serializes all writes and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.closeWith(fmt.Errorf("write: %w", err))
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(fmt.Errorf("ping: %w", err))
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
