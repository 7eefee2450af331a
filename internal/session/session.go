// Package session owns the authenticated live connection of the signed-in user.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/nfrund/chatclient/internal/api"
	"github.com/nfrund/chatclient/internal/chat"
	"github.com/nfrund/chatclient/internal/domain"
	"github.com/nfrund/chatclient/internal/websocket"
)

// Session holds the live connection handle and the online-user list the
// backend broadcasts over it.
type Session struct {
	socketURL  string
	token      string
	dispatcher *websocket.Dispatcher
	logger     *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	userID    string
	onlineSub *websocket.Subscription
	online    []string
}

// Option is a function that configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithAuthToken sets the token sent as the auth cookie during the handshake.
func WithAuthToken(token string) Option {
	return func(s *Session) {
		s.token = token
	}
}

// New creates a disconnected session. Inbound events of every connection it
// opens are routed through dispatcher.
func New(socketURL string, dispatcher *websocket.Dispatcher, opts ...Option) *Session {
	s := &Session{
		socketURL:  socketURL,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session")
	return s
}

// Connect opens the live connection for userID. It does nothing when a
// connection is already open. The handshake runs without holding the session
// lock; if another Connect wins the race, this connection is closed again.
func (s *Session) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrMissingUserID
	}
	if s.Connected() {
		return nil
	}

	u, err := url.Parse(s.socketURL)
	if err != nil {
		return fmt.Errorf("invalid socket url %q: %w", s.socketURL, err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if s.token != "" {
		header.Add("Cookie", (&http.Cookie{Name: api.AuthCookie, Value: s.token}).String())
	}

	sub, err := s.dispatcher.On(websocket.EventOnlineUsers, s.handleOnlineUsers)
	if err != nil {
		return err
	}

	conn, err := websocket.Dial(ctx, u.String(), header, s.dispatcher)
	if err != nil {
		_ = sub.Close()
		return err
	}

	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		_ = sub.Close()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.userID = userID
	s.onlineSub = sub
	s.mu.Unlock()
	go s.watch(conn)

	s.logger.Info("Connected", "user_id", userID)
	return nil
}

// Disconnect closes the live connection. It is idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.release()
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		s.logger.Info("Disconnected")
	}
}

// LiveConn returns the open connection, or nil when disconnected.
func (s *Session) LiveConn() chat.LiveConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil
	}
	return s.conn
}

// Connected reports whether a live connection is open.
func (s *Session) Connected() bool {
	return s.LiveConn() != nil
}

// OnlineUsers returns the ids of the users the backend last reported online.
func (s *Session) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.online)
}

// IsOnline reports whether userID is in the online list.
func (s *Session) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.online, userID)
}

func (s *Session) handleOnlineUsers(_ context.Context, payload json.RawMessage) error {
	var ids []string
	if err := json.Unmarshal(payload, &ids); err != nil {
		return fmt.Errorf("decode online users: %w", err)
	}

	s.mu.Lock()
	s.online = ids
	s.mu.Unlock()

	s.logger.Debug("Online users updated", "count", len(ids))
	return nil
}

// watch forgets conn once it shuts down on its own.
func (s *Session) watch(conn *websocket.Conn) {
	<-conn.Done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return
	}
	s.release()
	s.logger.Warn("Live connection lost")
}

// release clears the connection state and returns the connection that was
// open. The caller must hold s.mu.
func (s *Session) release() *websocket.Conn {
	conn := s.conn
	s.conn = nil
	s.userID = ""
	s.online = nil
	_ = s.onlineSub.Close()
	s.onlineSub = nil
	return conn
}

// UserID returns the id the open connection was made for.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Shutdown disconnects when the session is torn down by a dependency container.
func (s *Session) Shutdown() error {
	s.Disconnect()
	return nil
}
