package devserver

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/nfrund/chatclient/internal/domain"
)

// Store keeps users and messages in memory.
type Store struct {
	mu       sync.RWMutex
	users    []domain.User
	messages []domain.Message
	now      func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Seed adds one user per name and returns them in order.
func (s *Store) Seed(names ...string) []domain.User {
	users := make([]domain.User, 0, len(names))
	for _, name := range names {
		users = append(users, s.AddUser(name))
	}
	return users
}

// AddUser creates a user with a fresh id.
func (s *Store) AddUser(name string) domain.User {
	handle := strings.ToLower(strings.Join(strings.Fields(name), "."))
	u := domain.User{
		ID:       uuid.NewString(),
		FullName: name,
		Email:    handle + "@chat.local",
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
	return u
}

// User looks a user up by id.
func (s *Store) User(id string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Find(s.users, func(u domain.User) bool { return u.ID == id })
}

// UserByName looks a user up by display name, ignoring case.
func (s *Store) UserByName(name string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Find(s.users, func(u domain.User) bool { return strings.EqualFold(u.FullName, name) })
}

// Users returns every user.
func (s *Store) Users() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.User(nil), s.users...)
}

// UsersExcept returns every user but id, the sidebar list of the caller.
func (s *Store) UsersExcept(id string) []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(s.users, func(u domain.User, _ int) bool { return u.ID != id })
}

// Conversation returns the messages exchanged between a and b in creation order.
func (s *Store) Conversation(a, b string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(s.messages, func(m domain.Message, _ int) bool {
		return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
	})
}

// AddMessage stores a message from sender to receiver.
func (s *Store) AddMessage(senderID, receiverID string, payload domain.SendPayload) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := domain.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       payload.Text,
		Image:      payload.Image,
		CreatedAt:  s.now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg
}
