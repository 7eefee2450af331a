//go:generate go run go.uber.org/mock/mockgen -source=backend.go -destination=../mocks/mock_backend.go -package=mocks

package chat

import (
	"context"

	"github.com/nfrund/chatclient/internal/domain"
	"github.com/nfrund/chatclient/internal/websocket"
)

// Backend is the REST side of the chat service.
type Backend interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListMessages(ctx context.Context, userID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, userID string, payload domain.SendPayload) (*domain.Message, error)
}

// LiveConn is the part of the live connection the store listens on.
type LiveConn interface {
	On(event string, handler websocket.Handler) (*websocket.Subscription, error)
}

// ConnProvider exposes the session's live connection. LiveConn returns nil
// while no connection is established.
type ConnProvider interface {
	LiveConn() LiveConn
}

// StaticConn is a ConnProvider with a fixed connection.
type StaticConn struct {
	Conn LiveConn
}

func (s StaticConn) LiveConn() LiveConn {
	return s.Conn
}
