package runtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/sink"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type typingFixture struct {
	registry *Registry
	typing   *Typing
	alice    domain.Connection
	bob      domain.Connection
	aliceRec *sink.Recorder
	bobRec   *sink.Recorder
}

func newTypingFixture(window time.Duration) typingFixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry(log)
	f := typingFixture{
		registry: registry,
		typing:   NewTyping(registry, window, log),
		alice:    newConnection("alice"),
		bob:      newConnection("bob"),
		aliceRec: sink.NewRecorder("alice"),
		bobRec:   sink.NewRecorder("bob"),
	}
	registry.Register(f.alice, f.aliceRec)
	registry.Register(f.bob, f.bobRec)
	registry.Join(f.alice.ID, domain.ChatRoom("c1"))
	registry.Join(f.bob.ID, domain.ChatRoom("c1"))
	return f
}

func TestTyping_Auto_Expiry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	window := 60 * time.Millisecond
	f := newTypingFixture(window)

	// When alice starts typing and then goes silent
	start := time.Now()
	f.typing.Start(ctx, f.alice, "c1")

	// Then bob sees her typing
	started := f.bobRec.Named(event.UserStartedTyping)
	req.Len(started, 1)
	req.Equal(event.TypingStarted{ChatID: "c1", User: f.alice.Typist()}, started[0])

	// And alice doesn't receive her own indicator
	req.Empty(f.aliceRec.Events())

	// And after the window bob sees her stop, exactly once
	var ended time.Duration
	req.Eventually(func() bool {
		ended = time.Since(start)
		return len(f.bobRec.Named(event.UserEndedTyping)) == 1
	}, time.Second, 2*time.Millisecond)
	req.GreaterOrEqual(ended, window)
	req.Less(ended, window+50*time.Millisecond)
	req.False(f.typing.IsTyping("c1", "alice"))

	// And a late stop broadcasts nothing more
	f.typing.Stop(ctx, "c1", "alice")
	time.Sleep(2 * window)
	req.Len(f.bobRec.Named(event.UserEndedTyping), 1)
	req.Zero(f.typing.Active())
}

func TestTyping_Renewal_Does_Not_Rebroadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	window := 80 * time.Millisecond
	f := newTypingFixture(window)

	// When alice keeps typing, renewing before the window elapses
	for range 4 {
		f.typing.Start(ctx, f.alice, "c1")
		time.Sleep(window / 3)
	}

	// Then a single started was broadcast and she is still typing
	req.Len(f.bobRec.Named(event.UserStartedTyping), 1)
	req.Empty(f.bobRec.Named(event.UserEndedTyping))
	req.True(f.typing.IsTyping("c1", "alice"))

	// And the replaced timers never fire a second ended
	req.Eventually(func() bool { return len(f.bobRec.Named(event.UserEndedTyping)) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(2 * window)
	req.Len(f.bobRec.Named(event.UserEndedTyping), 1)
}

func TestTyping_Explicit_Stop(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newTypingFixture(time.Minute)

	f.typing.Start(ctx, f.alice, "c1")
	f.typing.Stop(ctx, "c1", "alice")
	f.typing.Stop(ctx, "c1", "alice")

	req.Len(f.bobRec.Named(event.UserEndedTyping), 1)
	req.False(f.typing.IsTyping("c1", "alice"))
}

func TestTyping_Stop_Connection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newTypingFixture(time.Minute)
	f.registry.Join(f.alice.ID, domain.ChatRoom("c2"))
	f.registry.Join(f.bob.ID, domain.ChatRoom("c2"))

	// Given alice is typing in two chats
	f.typing.Start(ctx, f.alice, "c1")
	f.typing.Start(ctx, f.alice, "c2")
	req.Equal(2, f.typing.Active())

	// When her connection goes away
	f.typing.StopConnection(ctx, f.alice.ID)

	// Then bob sees both indicators end
	ended := f.bobRec.Named(event.UserEndedTyping)
	req.Len(ended, 2)
	req.ElementsMatch([]domain.ChatID{"c1", "c2"}, []domain.ChatID{
		ended[0].(event.TypingEnded).ChatID,
		ended[1].(event.TypingEnded).ChatID,
	})
	req.Zero(f.typing.Active())
}

func TestTyping_Close_Silences_Timers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	window := 30 * time.Millisecond
	f := newTypingFixture(window)

	f.typing.Start(ctx, f.alice, "c1")
	f.typing.Close()
	time.Sleep(3 * window)

	req.Empty(f.bobRec.Named(event.UserEndedTyping))

	// And nothing starts once closed
	f.typing.Start(ctx, f.alice, "c1")
	req.Len(f.bobRec.Named(event.UserStartedTyping), 1)
}
