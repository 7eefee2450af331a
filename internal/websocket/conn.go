package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound frame size.
	maxMessageSize = 1 << 20
)

// ErrClosed is returned when emitting on a closed connection.
var ErrClosed = errors.New("connection closed")

// Conn is the client side of the live connection. Inbound frames are decoded
// into envelopes and handed to the embedded Dispatcher.
type Conn struct {
	*Dispatcher

	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// Dial opens a live connection to rawURL and starts its pumps. header is sent
// with the handshake (cookies, auth).
func Dial(ctx context.Context, rawURL string, header http.Header, d *Dispatcher) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", rawURL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	c := &Conn{
		Dispatcher: d,
		ws:         ws,
		send:       make(chan []byte, 256),
		done:       make(chan struct{}),
		logger:     d.logger.With("component", "live_conn"),
	}

	go c.writePump()
	go c.readPump()

	c.logger.Info("Live connection established", "url", rawURL)
	return c, nil
}

// Emit queues an outbound event.
func (c *Conn) Emit(event string, payload any) error {
	msg, err := NewMessage(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("Send channel full, dropping message", "event", event)
		return fmt.Errorf("send buffer full for event %q", event)
	}
}

// Done is closed once the connection has shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down. It is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
	<-c.done
	return nil
}

// readPump decodes inbound frames and dispatches them until the connection fails.
func (c *Conn) readPump() {
	defer func() {
		c.shutdown()
		c.ws.Close()
		close(c.done)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("Live connection closed by peer")
			} else if !c.isClosed() {
				c.logger.Error("Live connection read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Dropping malformed frame", "error", err, "size", len(data))
			continue
		}
		if err := c.Dispatch(context.Background(), msg); err != nil {
			c.logger.Error("Failed to dispatch event", "event", msg.Type, "error", err)
		}
	}
}

// writePump sends queued frames and keepalive pings. When the send channel is
// closed it performs the close handshake, which ends readPump.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				// Unblock readPump if the peer never answers the close frame.
				_ = c.ws.SetReadDeadline(time.Now().Add(writeWait))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Live connection write error", "error", err)
				_ = c.ws.Close()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.ws.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}

// shutdown marks the connection closed when the read side ends first.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
