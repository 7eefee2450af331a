package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/nfrund/chatclient/internal/api"
	"github.com/nfrund/chatclient/internal/domain"
	"github.com/nfrund/chatclient/internal/notify"
	"github.com/nfrund/chatclient/internal/websocket"
)

// Notification texts shown when an operation fails without a backend message.
const (
	MsgFetchUsersFailed    = "Failed to fetch users"
	MsgNoUserSelected      = "No user selected"
	MsgFetchMessagesFailed = "Failed to fetch messages"
	MsgNoRecipient         = "No user selected to send message"
	MsgNoResponse          = "No response from server"
	MsgSendFailed          = "Failed to send message"
)

// State is a snapshot of the store.
type State struct {
	Messages          []domain.Message
	Users             []domain.User
	SelectedUser      *domain.User
	IsUsersLoading    bool
	IsMessagesLoading bool
}

// Store holds the chat view's state: the user list, the selected
// conversation partner and that conversation's messages.
//
// Operations never return errors. A failure is logged, shown once through the
// notifier, and leaves the state as it was apart from the loading flags.
type Store struct {
	backend  Backend
	conns    ConnProvider
	notifier notify.Notifier
	logger   *slog.Logger

	mu                sync.RWMutex
	messages          []domain.Message
	users             []domain.User
	selectedUser      *domain.User
	isUsersLoading    bool
	isMessagesLoading bool
	// messagesSeq identifies the latest LoadMessages call.
	messagesSeq uint64
	liveSub     *websocket.Subscription
	liveToken   *liveToken
	// version counts changes; it orders snapshots handed to observers.
	version uint64

	obsMu     sync.Mutex
	observers map[int]func(State)
	nextObsID int

	// emitMu serializes observer calls. emitted is the version last delivered.
	emitMu  sync.Mutex
	emitted uint64
}

// liveToken identifies one SubscribeToLiveMessages registration.
type liveToken struct{}

// Option is a function that configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty store.
func NewStore(backend Backend, conns ConnProvider, notifier notify.Notifier, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		conns:     conns,
		notifier:  notifier,
		logger:    slog.Default(),
		observers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "chat_store")
	return s
}

// LoadUsers replaces the user list with the backend's.
func (s *Store) LoadUsers(ctx context.Context) {
	s.mutate(func() bool {
		s.isUsersLoading = true
		return true
	})
	defer s.mutate(func() bool {
		s.isUsersLoading = false
		return true
	})

	users, err := s.backend.ListUsers(ctx)
	if err != nil {
		s.report("load_users", api.ErrorMessage(err, MsgFetchUsersFailed), err)
		return
	}
	if users == nil {
		return
	}

	s.mutate(func() bool {
		s.users = users
		return true
	})
}

// LoadMessages replaces the message list with the conversation with userID.
// Only the latest call may write: a response arriving after a newer call was
// issued is discarded.
func (s *Store) LoadMessages(ctx context.Context, userID string) {
	if userID == "" {
		s.report("load_messages", MsgNoUserSelected, domain.ErrMissingUserID)
		return
	}

	var seq uint64
	s.mutate(func() bool {
		s.messagesSeq++
		seq = s.messagesSeq
		s.isMessagesLoading = true
		return true
	})
	defer s.mutate(func() bool {
		if s.messagesSeq != seq {
			return false
		}
		s.isMessagesLoading = false
		return true
	})

	messages, err := s.backend.ListMessages(ctx, userID)
	if err != nil {
		s.report("load_messages", api.ErrorMessage(err, MsgFetchMessagesFailed), err)
		return
	}
	if messages == nil {
		return
	}

	s.mutate(func() bool {
		if s.messagesSeq != seq {
			s.logger.Debug("Discarding stale conversation", "user_id", userID)
			return false
		}
		s.messages = messages
		return true
	})
}

// SendMessage sends payload to the selected user and appends the stored
// message the backend echoes back. The payload is sent as given; the backend
// validates it.
func (s *Store) SendMessage(ctx context.Context, payload domain.SendPayload) {
	s.mu.RLock()
	selected := s.selectedUser
	s.mu.RUnlock()

	if !selected.HasID() {
		s.report("send_message", MsgNoRecipient, domain.ErrNoUserSelected)
		return
	}
	msg, err := s.backend.SendMessage(ctx, selected.ID, payload)
	switch {
	case errors.Is(err, domain.ErrEmptyResponse):
		s.report("send_message", MsgNoResponse, err)
		return
	case err != nil:
		s.report("send_message", api.ErrorMessage(err, MsgSendFailed), err)
		return
	case msg == nil:
		s.report("send_message", MsgNoResponse, domain.ErrEmptyResponse)
		return
	}

	s.mutate(func() bool {
		s.messages = append(s.messages, *msg)
		return true
	})
}

// SubscribeToLiveMessages starts appending inbound messages from the selected
// user. The sender is compared with the selection current when each message
// arrives. Without a selection or a live connection it does nothing.
// A previous subscription of this store is replaced.
func (s *Store) SubscribeToLiveMessages() {
	s.mu.RLock()
	selected := s.selectedUser
	s.mu.RUnlock()
	if selected == nil {
		return
	}

	conn := s.conns.LiveConn()
	if conn == nil {
		return
	}

	token := &liveToken{}
	s.mu.Lock()
	prev := s.liveSub
	s.liveSub = nil
	s.liveToken = token
	s.mu.Unlock()
	_ = prev.Close()

	sub, err := conn.On(websocket.EventNewMessage, func(_ context.Context, payload json.RawMessage) error {
		s.receive(token, payload)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to subscribe to live messages", "error", err)
		return
	}

	s.mu.Lock()
	current := s.liveToken == token
	if current {
		s.liveSub = sub
	}
	s.mu.Unlock()
	if !current {
		_ = sub.Close()
	}
}

// UnsubscribeFromLiveMessages stops the live subscription. It is idempotent
// and never touches handlers registered by anyone else.
func (s *Store) UnsubscribeFromLiveMessages() {
	s.mu.Lock()
	sub := s.liveSub
	s.liveSub = nil
	s.liveToken = nil
	s.mu.Unlock()

	if err := sub.Close(); err != nil {
		s.logger.Warn("Failed to close live subscription", "error", err)
	}
}

// SelectUser sets the conversation partner; nil clears it. It does not touch
// the message list: callers load the new conversation themselves.
func (s *Store) SelectUser(user *domain.User) {
	var selected *domain.User
	if user != nil {
		u := *user
		selected = &u
	}
	s.mutate(func() bool {
		s.selectedUser = selected
		return true
	})
}

// State returns a snapshot of the store.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// LiveSubscribed reports whether the store currently holds a live subscription.
func (s *Store) LiveSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveSub.Active()
}

// Observe registers fn to receive a snapshot after every change. The returned
// function unregisters it.
//
// Observers are called one at a time and never see a snapshot older than one
// already delivered: when changes race, a superseded snapshot is skipped.
// fn must not modify the store.
func (s *Store) Observe(fn func(State)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *Store) receive(token *liveToken, payload json.RawMessage) {
	var msg domain.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.logger.Warn("Dropping malformed live message", "error", err)
		return
	}

	s.mutate(func() bool {
		if s.liveToken != token || s.selectedUser == nil || msg.SenderID != s.selectedUser.ID {
			return false
		}
		s.messages = append(s.messages, msg)
		return true
	})
}

// mutate applies fn under the write lock and, if fn reports a change,
// notifies observers with the resulting snapshot.
func (s *Store) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	var snap State
	var version uint64
	if changed {
		s.version++
		version = s.version
		snap = s.snapshot()
	}
	s.mu.Unlock()

	if changed {
		s.emit(version, snap)
	}
}

func (s *Store) emit(version uint64, snap State) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if version <= s.emitted {
		return
	}
	s.emitted = version

	s.obsMu.Lock()
	observers := make([]func(State), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func (s *Store) snapshot() State {
	st := State{
		Messages:          slices.Clone(s.messages),
		Users:             slices.Clone(s.users),
		IsUsersLoading:    s.isUsersLoading,
		IsMessagesLoading: s.isMessagesLoading,
	}
	if s.selectedUser != nil {
		u := *s.selectedUser
		st.SelectedUser = &u
	}
	return st
}

func (s *Store) report(op, message string, err error) {
	s.logger.Error("Chat operation failed", "op", op, "error", err)
	s.notifier.Error(message)
}
