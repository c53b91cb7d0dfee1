package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chat-sync/domain"
	"chat-sync/mocks"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type countingListener struct {
	online  atomic.Int64
	offline atomic.Int64
}

func (l *countingListener) UserOnline(context.Context, domain.PublicUser) { l.online.Add(1) }
func (l *countingListener) UserOffline(context.Context, domain.UserID)    { l.offline.Add(1) }

func TestPresence_Only_Transitions_Are_Notified(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	listener := mocks.NewMockPresenceListener(ctrl)
	presence := NewPresence(listener, 0, logs.GetLoggerFromLevel(slog.LevelDebug))
	web, mobile := newConnection("alice"), newConnection("alice")

	// Expect a single online and a single offline for two connections
	listener.EXPECT().UserOnline(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, user domain.PublicUser) {
			req.Equal(domain.UserID("alice"), user.ID)
			req.True(user.Online)
		}).Times(1)
	listener.EXPECT().UserOffline(gomock.Any(), domain.UserID("alice")).Times(1)

	// When alice opens two connections
	req.True(presence.OnConnect(ctx, web))
	req.False(presence.OnConnect(ctx, mobile))

	// Then she is counted twice
	req.Equal(2, presence.Count("alice"))
	req.True(presence.IsOnline("alice"))
	req.Equal([]domain.UserID{"alice"}, presence.OnlineUsers())

	// When the first closes she stays online
	req.False(presence.OnDisconnect(ctx, "alice"))
	req.True(presence.IsOnline("alice"))

	// When the last closes she goes offline
	req.True(presence.OnDisconnect(ctx, "alice"))
	req.False(presence.IsOnline("alice"))
	req.Zero(presence.OnlineCount())
}

func TestPresence_Disconnect_Without_Connect_Is_Ignored(t *testing.T) {
	req := require.New(t)
	listener := &countingListener{}
	presence := NewPresence(listener, 0, logs.GetLoggerFromLevel(slog.LevelDebug))

	req.False(presence.OnDisconnect(context.Background(), "ghost"))
	req.Zero(listener.offline.Load())
}

func TestPresence_Count_Under_Concurrency(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	listener := &countingListener{}
	presence := NewPresence(listener, 0, logs.GetLoggerFromLevel(slog.LevelDebug))
	users := []domain.UserID{"alice", "bob", "carol"}

	// Given many connections of the same users opening and closing concurrently
	var wg sync.WaitGroup
	for i := range 300 {
		wg.Add(1)
		go func(userID domain.UserID) {
			defer wg.Done()
			presence.OnConnect(ctx, newConnection(userID))
			presence.OnDisconnect(ctx, userID)
		}(users[i%len(users)])
	}
	wg.Wait()

	// Then every user ends offline
	for _, userID := range users {
		req.Zero(presence.Count(userID))
		req.False(presence.IsOnline(userID))
	}

	// And every online has been balanced by exactly one offline
	req.Equal(listener.online.Load(), listener.offline.Load())
	req.GreaterOrEqual(listener.online.Load(), int64(len(users)))
	req.Zero(presence.OnlineCount())
}

func TestPresence_Grace_Window(t *testing.T) {
	ctx := context.Background()
	grace := 50 * time.Millisecond

	t.Run("Reconnect inside the window emits nothing", func(t *testing.T) {
		req := require.New(t)
		listener := &countingListener{}
		presence := NewPresence(listener, grace, logs.GetLoggerFromLevel(slog.LevelDebug))

		// Given alice is online
		presence.OnConnect(ctx, newConnection("alice"))
		req.Equal(int64(1), listener.online.Load())

		// When her connection flickers
		req.True(presence.OnDisconnect(ctx, "alice"))
		req.True(presence.IsOnline("alice"))
		req.False(presence.OnConnect(ctx, newConnection("alice")))

		// Then peers never see her leave or come back
		time.Sleep(2 * grace)
		req.Equal(int64(1), listener.online.Load())
		req.Zero(listener.offline.Load())
		req.Equal(1, presence.Count("alice"))
	})

	t.Run("Offline is emitted once the window elapsed", func(t *testing.T) {
		req := require.New(t)
		listener := &countingListener{}
		presence := NewPresence(listener, grace, logs.GetLoggerFromLevel(slog.LevelDebug))

		presence.OnConnect(ctx, newConnection("alice"))
		presence.OnDisconnect(ctx, "alice")

		req.Eventually(func() bool { return listener.offline.Load() == 1 }, time.Second, 5*time.Millisecond)
		req.False(presence.IsOnline("alice"))
		req.Empty(presence.OnlineUsers())
	})

	t.Run("Close drops pending notifications", func(t *testing.T) {
		req := require.New(t)
		listener := &countingListener{}
		presence := NewPresence(listener, grace, logs.GetLoggerFromLevel(slog.LevelDebug))

		presence.OnConnect(ctx, newConnection("alice"))
		presence.OnDisconnect(ctx, "alice")
		presence.Close()

		time.Sleep(2 * grace)
		req.Zero(listener.offline.Load())
	})
}
