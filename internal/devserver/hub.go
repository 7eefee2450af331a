package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	livews "github.com/nfrund/chatclient/internal/websocket"
)

const hubWriteWait = 10 * time.Second

// Hub tracks the live connections of every user and pushes events to them.
// A user may hold several connections at once.
type Hub struct {
	mu      sync.RWMutex
	clients map[string][]*hubClient
	logger  *slog.Logger
}

// hubClient is one accepted connection.
type hubClient struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// NewHub creates a hub with no connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string][]*hubClient),
		logger:  logger.With("component", "hub"),
	}
}

// Handler upgrades GET /ws?userId=<id> and serves the connection until it closes.
func (h *Hub) Handler(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId is required")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return err
	}

	client := &hubClient{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
	}
	h.register(client)
	defer h.unregister(client)

	go client.writePump()
	client.readPump(c.Request().Context())
	return nil
}

// Online returns the ids of connected users, sorted.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := lo.Keys(h.clients)
	slices.Sort(ids)
	return ids
}

// Emit sends an event to every connection of userID. It reports whether the
// user had any connection.
func (h *Hub) Emit(userID, event string, payload any) (bool, error) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return false, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := h.clients[userID]
	for _, client := range clients {
		client.enqueue(frame)
	}
	return len(clients) > 0, nil
}

// Broadcast sends an event to every connection.
func (h *Hub) Broadcast(event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for _, client := range clients {
			client.enqueue(frame)
		}
	}
	return nil
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for _, client := range clients {
			_ = client.conn.CloseNow()
		}
	}
}

func (h *Hub) register(client *hubClient) {
	h.mu.Lock()
	h.clients[client.userID] = append(h.clients[client.userID], client)
	h.mu.Unlock()

	h.logger.Info("Client connected", "user_id", client.userID)
	h.broadcastOnline()
}

func (h *Hub) unregister(client *hubClient) {
	h.mu.Lock()
	clients := slices.DeleteFunc(h.clients[client.userID], func(c *hubClient) bool { return c == client })
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	} else {
		h.clients[client.userID] = clients
	}
	close(client.send)
	h.mu.Unlock()

	h.logger.Info("Client disconnected", "user_id", client.userID)
	h.broadcastOnline()
}

func (h *Hub) broadcastOnline() {
	if err := h.Broadcast(livews.EventOnlineUsers, h.Online()); err != nil {
		h.logger.Error("Failed to broadcast online users", "error", err)
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	msg, err := livews.NewMessage(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// enqueue drops the frame when the client's buffer is full. The caller must
// hold the hub's read lock so send is not closed concurrently.
func (c *hubClient) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.hub.logger.Warn("Client send channel full, dropping message", "user_id", c.userID)
	}
}

// readPump drains inbound frames until the connection fails. Clients only
// listen, so frames are logged and discarded.
func (c *hubClient) readPump(ctx context.Context) {
	defer c.conn.CloseNow()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.hub.logger.Debug("WebSocket closed normally by client", "user_id", c.userID)
			case errors.Is(err, context.Canceled):
			default:
				c.hub.logger.Debug("WebSocket read ended", "user_id", c.userID, "error", err)
			}
			return
		}
		c.hub.logger.Debug("Ignoring inbound frame", "user_id", c.userID, "size", len(data))
	}
}

// writePump writes queued frames until the hub closes the send channel.
func (c *hubClient) writePump() {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for frame := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), hubWriteWait)
		err := c.conn.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			c.hub.logger.Error("WebSocket write error", "user_id", c.userID, "error", err)
			return
		}
	}
}
