package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/nfrund/chatclient/internal/api"
	"github.com/nfrund/chatclient/internal/chat"
	"github.com/nfrund/chatclient/internal/domain"
	"github.com/nfrund/chatclient/internal/mocks"
	"github.com/nfrund/chatclient/internal/pubsub"
	ws "github.com/nfrund/chatclient/internal/websocket"
)

type fixture struct {
	backend    *mocks.MockBackend
	notifier   *mocks.MockNotifier
	dispatcher *ws.Dispatcher
	store      *chat.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := pubsub.NewWatermillBridge(logger)
	t.Cleanup(func() { bus.Close() })

	f := &fixture{
		backend:    mocks.NewMockBackend(ctrl),
		notifier:   mocks.NewMockNotifier(ctrl),
		dispatcher: ws.NewDispatcher(bus, logger),
	}
	f.store = chat.NewStore(f.backend, chat.StaticConn{Conn: f.dispatcher}, f.notifier, chat.WithLogger(logger))
	return f
}

// deliver pushes msg through the live connection's dispatcher. It returns
// once every handler has run.
func (f *fixture) deliver(t *testing.T, msg domain.Message) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.Dispatch(context.Background(), ws.Message{Type: ws.EventNewMessage, Payload: payload}))
}

func messageIDs(messages []domain.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return ids
}

var (
	alice = domain.User{ID: "u-alice", FullName: "Alice"}
	bob   = domain.User{ID: "u-bob", FullName: "Bob"}
)

func TestStore_InitialState(t *testing.T) {
	f := newFixture(t)
	st := f.store.State()

	assert.Empty(t, st.Messages)
	assert.Empty(t, st.Users)
	assert.Nil(t, st.SelectedUser)
	assert.False(t, st.IsUsersLoading)
	assert.False(t, st.IsMessagesLoading)
	assert.False(t, f.store.LiveSubscribed())
}

func TestStore_LoadUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the user list", func(t *testing.T) {
		f := newFixture(t)
		var loadingSeen []bool
		cancel := f.store.Observe(func(st chat.State) {
			loadingSeen = append(loadingSeen, st.IsUsersLoading)
		})
		defer cancel()

		f.backend.EXPECT().ListUsers(gomock.Any()).Return([]domain.User{alice, bob}, nil).Times(1)
		f.store.LoadUsers(ctx)

		st := f.store.State()
		assert.Equal(t, []domain.User{alice, bob}, st.Users)
		assert.False(t, st.IsUsersLoading)
		require.NotEmpty(t, loadingSeen)
		assert.True(t, loadingSeen[0])
		assert.False(t, loadingSeen[len(loadingSeen)-1])
	})

	t.Run("failure keeps the list and notifies once", func(t *testing.T) {
		f := newFixture(t)
		f.backend.EXPECT().ListUsers(gomock.Any()).Return([]domain.User{alice}, nil)
		f.store.LoadUsers(ctx)

		f.backend.EXPECT().ListUsers(gomock.Any()).Return(nil, errors.New("connection refused"))
		f.notifier.EXPECT().Error(chat.MsgFetchUsersFailed).Times(1)
		f.store.LoadUsers(ctx)

		st := f.store.State()
		assert.Equal(t, []domain.User{alice}, st.Users)
		assert.False(t, st.IsUsersLoading)
	})

	t.Run("backend message is shown", func(t *testing.T) {
		f := newFixture(t)
		f.backend.EXPECT().ListUsers(gomock.Any()).Return(nil, &api.Error{StatusCode: http.StatusUnauthorized, Message: "Unauthorized - No Token Provided"})
		f.notifier.EXPECT().Error("Unauthorized - No Token Provided").Times(1)
		f.store.LoadUsers(ctx)
	})

	t.Run("null list leaves users untouched", func(t *testing.T) {
		f := newFixture(t)
		f.backend.EXPECT().ListUsers(gomock.Any()).Return([]domain.User{alice}, nil)
		f.store.LoadUsers(ctx)

		f.backend.EXPECT().ListUsers(gomock.Any()).Return(nil, nil)
		f.store.LoadUsers(ctx)

		assert.Equal(t, []domain.User{alice}, f.store.State().Users)
	})
}

func TestStore_LoadMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the message list", func(t *testing.T) {
		f := newFixture(t)
		f.backend.EXPECT().ListMessages(gomock.Any(), alice.ID).Return([]domain.Message{{ID: "m1"}, {ID: "m2"}}, nil).Times(1)
		f.store.LoadMessages(ctx, alice.ID)

		st := f.store.State()
		assert.Equal(t, []string{"m1", "m2"}, messageIDs(st.Messages))
		assert.False(t, st.IsMessagesLoading)
	})

	t.Run("empty id notifies without calling the backend", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.EXPECT().Error(chat.MsgNoUserSelected).Times(1)
		f.store.LoadMessages(ctx, "")

		assert.False(t, f.store.State().IsMessagesLoading)
	})

	t.Run("failure keeps the list", func(t *testing.T) {
		f := newFixture(t)
		f.backend.EXPECT().ListMessages(gomock.Any(), alice.ID).Return([]domain.Message{{ID: "m1"}}, nil)
		f.store.LoadMessages(ctx, alice.ID)

		f.backend.EXPECT().ListMessages(gomock.Any(), bob.ID).Return(nil, &api.Error{StatusCode: http.StatusInternalServerError})
		f.notifier.EXPECT().Error(chat.MsgFetchMessagesFailed).Times(1)
		f.store.LoadMessages(ctx, bob.ID)

		st := f.store.State()
		assert.Equal(t, []string{"m1"}, messageIDs(st.Messages))
		assert.False(t, st.IsMessagesLoading)
	})

	t.Run("stale response is discarded", func(t *testing.T) {
		f := newFixture(t)
		started := make(chan struct{})
		release := make(chan struct{})

		f.backend.EXPECT().ListMessages(gomock.Any(), alice.ID).DoAndReturn(
			func(context.Context, string) ([]domain.Message, error) {
				close(started)
				<-release
				return []domain.Message{{ID: "from-alice"}}, nil
			})
		f.backend.EXPECT().ListMessages(gomock.Any(), bob.ID).Return([]domain.Message{{ID: "from-bob"}}, nil)

		done := make(chan struct{})
		go func() {
			defer close(done)
			f.store.LoadMessages(ctx, alice.ID)
		}()

		<-started
		assert.True(t, f.store.State().IsMessagesLoading)

		f.store.LoadMessages(ctx, bob.ID)
		assert.Equal(t, []string{"from-bob"}, messageIDs(f.store.State().Messages))
		assert.False(t, f.store.State().IsMessagesLoading)

		close(release)
		<-done

		st := f.store.State()
		assert.Equal(t, []string{"from-bob"}, messageIDs(st.Messages))
		assert.False(t, st.IsMessagesLoading)
	})
}

func TestStore_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("without a selection", func(t *testing.T) {
		f := newFixture(t)
		f.notifier.EXPECT().Error(chat.MsgNoRecipient).Times(1)
		f.store.SendMessage(ctx, domain.SendPayload{Text: "hi"})

		assert.Empty(t, f.store.State().Messages)
	})

	t.Run("selected user without an id", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&domain.User{FullName: "Nobody"})
		f.notifier.EXPECT().Error(chat.MsgNoRecipient).Times(1)
		f.store.SendMessage(ctx, domain.SendPayload{Text: "hi"})
	})

	t.Run("appends the stored message", func(t *testing.T) {
		f := newFixture(t)
		f.backend.EXPECT().ListMessages(gomock.Any(), alice.ID).Return([]domain.Message{{ID: "m1"}}, nil)
		f.store.SelectUser(&alice)
		f.store.LoadMessages(ctx, alice.ID)

		f.backend.EXPECT().SendMessage(gomock.Any(), alice.ID, domain.SendPayload{Text: "hello"}).
			Return(&domain.Message{ID: "m2", ReceiverID: alice.ID, Text: "hello"}, nil).Times(1)
		f.store.SendMessage(ctx, domain.SendPayload{Text: "hello"})

		st := f.store.State()
		require.Len(t, st.Messages, 2)
		assert.Equal(t, "m2", st.Messages[1].ID)
	})

	t.Run("empty response", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)
		f.backend.EXPECT().SendMessage(gomock.Any(), alice.ID, gomock.Any()).Return(nil, domain.ErrEmptyResponse)
		f.notifier.EXPECT().Error(chat.MsgNoResponse).Times(1)
		f.store.SendMessage(ctx, domain.SendPayload{Text: "hi"})

		assert.Empty(t, f.store.State().Messages)
	})

	t.Run("backend error message", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)
		f.backend.EXPECT().SendMessage(gomock.Any(), alice.ID, gomock.Any()).
			Return(nil, &api.Error{StatusCode: http.StatusBadRequest, Message: "Receiver not found"})
		f.notifier.EXPECT().Error("Receiver not found").Times(1)
		f.store.SendMessage(ctx, domain.SendPayload{Text: "hi"})
	})

	t.Run("generic failure", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)
		f.backend.EXPECT().SendMessage(gomock.Any(), alice.ID, gomock.Any()).Return(nil, errors.New("timeout"))
		f.notifier.EXPECT().Error(chat.MsgSendFailed).Times(1)
		f.store.SendMessage(ctx, domain.SendPayload{Text: "hi"})
	})

	t.Run("payload is sent as given", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)

		long := domain.SendPayload{Text: strings.Repeat("a", 5000)}
		f.backend.EXPECT().SendMessage(gomock.Any(), alice.ID, long).
			Return(&domain.Message{ID: "m1", ReceiverID: alice.ID, Text: long.Text}, nil).Times(1)
		f.store.SendMessage(ctx, long)

		image := domain.SendPayload{Image: "/uploads/cat.png"}
		f.backend.EXPECT().SendMessage(gomock.Any(), alice.ID, image).
			Return(&domain.Message{ID: "m2", ReceiverID: alice.ID, Image: image.Image}, nil).Times(1)
		f.store.SendMessage(ctx, image)

		assert.Equal(t, []string{"m1", "m2"}, messageIDs(f.store.State().Messages))
	})

	t.Run("backend rejects the payload", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)
		f.backend.EXPECT().SendMessage(gomock.Any(), alice.ID, domain.SendPayload{Text: "   "}).
			Return(nil, &api.Error{StatusCode: http.StatusBadRequest, Message: "Message must have text or an image"}).Times(1)
		f.notifier.EXPECT().Error("Message must have text or an image").Times(1)
		f.store.SendMessage(ctx, domain.SendPayload{Text: "   "})

		assert.Empty(t, f.store.State().Messages)
	})
}

func TestStore_LiveMessages(t *testing.T) {
	t.Run("appends only messages from the selected user", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)
		f.store.SubscribeToLiveMessages()
		require.True(t, f.store.LiveSubscribed())

		f.deliver(t, domain.Message{ID: "m1", SenderID: alice.ID})
		f.deliver(t, domain.Message{ID: "m2", SenderID: bob.ID})
		f.deliver(t, domain.Message{ID: "m3", SenderID: alice.ID})

		assert.Equal(t, []string{"m1", "m3"}, messageIDs(f.store.State().Messages))
	})

	t.Run("sender is matched against the selection at delivery time", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)
		f.store.SubscribeToLiveMessages()

		f.store.SelectUser(&bob)
		f.deliver(t, domain.Message{ID: "m1", SenderID: alice.ID})
		f.deliver(t, domain.Message{ID: "m2", SenderID: bob.ID})

		f.store.SelectUser(nil)
		f.deliver(t, domain.Message{ID: "m3", SenderID: bob.ID})

		assert.Equal(t, []string{"m2"}, messageIDs(f.store.State().Messages))
	})

	t.Run("no selection is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.store.SubscribeToLiveMessages()
		assert.False(t, f.store.LiveSubscribed())
	})

	t.Run("no connection is a no-op", func(t *testing.T) {
		f := newFixture(t)
		store := chat.NewStore(f.backend, chat.StaticConn{}, f.notifier)
		store.SelectUser(&alice)
		store.SubscribeToLiveMessages()
		assert.False(t, store.LiveSubscribed())

		store.UnsubscribeFromLiveMessages()
	})

	t.Run("resubscribing does not duplicate delivery", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)
		f.store.SubscribeToLiveMessages()
		f.store.SubscribeToLiveMessages()

		f.deliver(t, domain.Message{ID: "m1", SenderID: alice.ID})
		assert.Equal(t, []string{"m1"}, messageIDs(f.store.State().Messages))
	})

	t.Run("unsubscribe stops delivery and is idempotent", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)
		f.store.SubscribeToLiveMessages()

		f.store.UnsubscribeFromLiveMessages()
		f.store.UnsubscribeFromLiveMessages()
		assert.False(t, f.store.LiveSubscribed())

		f.deliver(t, domain.Message{ID: "m1", SenderID: alice.ID})
		assert.Empty(t, f.store.State().Messages)
	})

	t.Run("unsubscribe leaves other handlers alone", func(t *testing.T) {
		f := newFixture(t)
		var mu sync.Mutex
		var other int
		sub, err := f.dispatcher.On(ws.EventNewMessage, func(context.Context, json.RawMessage) error {
			mu.Lock()
			other++
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		defer sub.Close()

		f.store.SelectUser(&alice)
		f.store.SubscribeToLiveMessages()
		f.store.UnsubscribeFromLiveMessages()

		f.deliver(t, domain.Message{ID: "m1", SenderID: alice.ID})
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 1, other)
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		f := newFixture(t)
		f.store.SelectUser(&alice)
		f.store.SubscribeToLiveMessages()

		require.NoError(t, f.dispatcher.Dispatch(context.Background(), ws.Message{Type: ws.EventNewMessage, Payload: json.RawMessage(`"oops"`)}))
		assert.Empty(t, f.store.State().Messages)
	})
}

func TestStore_SelectUser(t *testing.T) {
	f := newFixture(t)
	f.backend.EXPECT().ListMessages(gomock.Any(), alice.ID).Return([]domain.Message{{ID: "m1"}}, nil)
	f.store.LoadMessages(context.Background(), alice.ID)

	f.store.SelectUser(&alice)
	f.store.SelectUser(&alice)
	st := f.store.State()
	require.NotNil(t, st.SelectedUser)
	assert.Equal(t, alice, *st.SelectedUser)
	assert.Equal(t, []string{"m1"}, messageIDs(st.Messages))

	f.store.SelectUser(&bob)
	assert.Equal(t, []string{"m1"}, messageIDs(f.store.State().Messages))

	f.store.SelectUser(nil)
	assert.Nil(t, f.store.State().SelectedUser)
}

func TestStore_SnapshotIsolation(t *testing.T) {
	f := newFixture(t)
	user := alice
	f.store.SelectUser(&user)
	user.FullName = "changed"

	st := f.store.State()
	assert.Equal(t, "Alice", st.SelectedUser.FullName)

	st.SelectedUser.FullName = "mutated"
	assert.Equal(t, "Alice", f.store.State().SelectedUser.FullName)
}

func TestStore_Observe(t *testing.T) {
	f := newFixture(t)
	var calls int
	cancel := f.store.Observe(func(chat.State) { calls++ })

	f.store.SelectUser(&alice)
	assert.Equal(t, 1, calls)

	cancel()
	cancel()
	f.store.SelectUser(&bob)
	assert.Equal(t, 1, calls)
}

func TestStore_Observe_ConcurrentChanges(t *testing.T) {
	f := newFixture(t)

	var (
		mu     sync.Mutex
		seen   []string
		active atomic.Int32
		maxRun atomic.Int32
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	cancel := f.store.Observe(func(st chat.State) {
		if n := active.Add(1); n > maxRun.Load() {
			maxRun.Store(n)
		}
		defer active.Add(-1)

		if st.SelectedUser.ID == alice.ID {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, st.SelectedUser.ID)
		mu.Unlock()
	})
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.store.SelectUser(&alice)
	}()
	<-entered
	go func() {
		defer wg.Done()
		f.store.SelectUser(&bob)
	}()

	// Give the second change time to reach delivery while the first is held.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, bob.ID, f.store.State().SelectedUser.ID)
	assert.Equal(t, int32(1), maxRun.Load())
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, bob.ID, seen[len(seen)-1])
}
