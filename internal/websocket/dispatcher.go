package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/nfrund/chatclient/internal/pubsub"
)

// ErrEmptyEvent is returned when a handler is registered without an event name.
var ErrEmptyEvent = errors.New("event name cannot be empty")

// Handler processes the payload of one inbound event.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Dispatcher routes inbound events to registered handlers through the bus.
// It is safe for concurrent use.
type Dispatcher struct {
	bus    pubsub.PubSub
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher on top of bus.
func NewDispatcher(bus pubsub.PubSub, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		bus:    bus,
		logger: logger.With("component", "dispatcher"),
	}
}

// On registers handler for event. The handler stays registered until the
// returned subscription is closed.
func (d *Dispatcher) On(event string, handler Handler) (*Subscription, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{event: event, cancel: cancel}

	err := d.bus.Subscribe(ctx, topicFor(event), func(ctx context.Context, msg pubsub.Message) error {
		if !sub.Active() {
			return nil
		}
		return handler(ctx, msg.Payload)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	d.logger.Debug("Handler registered", "event", event)
	return sub, nil
}

// Dispatch delivers an inbound envelope to every handler registered for its
// type. It returns once all of them have run.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	if msg.Type == "" {
		return ErrEmptyEvent
	}
	return d.bus.Publish(ctx, pubsub.Message{
		Topic:   topicFor(msg.Type),
		Payload: msg.Payload,
		Metadata: map[string]string{
			"event":  msg.Type,
			"target": msg.Target,
		},
	})
}

// Subscription is a registered event handler.
type Subscription struct {
	event  string
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// Event returns the event name the subscription listens to.
func (s *Subscription) Event() string {
	return s.event
}

// Active reports whether the handler may still be invoked.
func (s *Subscription) Active() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// Close deregisters the handler. It is idempotent.
func (s *Subscription) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}
