package test

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-sync/client"
	"chat-sync/client/store"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/internal"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type node struct {
	url string
	log *slog.Logger
}

// startNode runs a full server on loopback ports backed by a temporary directory.
func startNode(t *testing.T) node {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	dir := t.TempDir()
	cfg := internal.Config{
		ShutdownTimeout:      2 * time.Second,
		BadgerFilepath:       filepath.Join(dir, "badger"),
		BlugeFilepath:        filepath.Join(dir, "bluge"),
		JWTSecret:            "integration-secret",
		AuthTokenDuration:    time.Hour,
		RefreshGrace:         time.Hour,
		TypingWindow:         2 * time.Second,
		NumberOfLanes:        4,
		LaneBuffer:           64,
		ConnectionBufferSize: 64,
		MaxFrameBytes:        1 << 16,
		RateBurst:            100,
		RateInterval:         time.Second,
		CharReplacement:      "*",
		DefaultLanguage:      "en",
		MetricInterval:       time.Second,
	}
	app, err := internal.NewApp(cfg, log)
	req.NoError(err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	opsListener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx, listener, opsListener) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		require.NoError(t, app.Close())
	})
	return node{url: "http://" + listener.Addr().String(), log: log}
}

type user struct {
	profile  domain.PublicUser
	api      *client.API
	conn     *client.Conn
	chats    *store.ChatStore
	messages *store.MessageStore
	view     *store.ChatView
}

// connect registers name and wires the client stores to a running socket, the way the terminal client does.
func (n node) connect(t *testing.T, name string) *user {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	api := client.NewAPI(n.url, nil)
	profile, err := api.Register(ctx, fmt.Sprintf("%s@chat.io", strings.ToLower(name)), name, "Correct-Horse-42!")
	req.NoError(err)

	conn := client.New(client.DefaultConfig("ws"+strings.TrimPrefix(n.url, "http")+"/ws"), api.Token(), api, n.log)
	u := &user{profile: profile, api: api, conn: conn, chats: store.NewChatStore(profile.ID)}
	u.messages = store.NewMessageStore(api, 20)
	u.view = store.NewChatView(conn, u.messages, u.chats)

	connected := make(chan struct{})
	var once sync.Once
	conn.On(event.Connected, func(event.Envelope) { once.Do(func() { close(connected) }) })
	client.Bind(ctx, conn, api, u.chats, u.view, n.log)
	go func() { _ = conn.Run(ctx) }()

	select {
	case <-connected:
	case <-time.After(5 * time.Second):
		req.FailNow(name + " never connected")
	}
	return u
}

func TestScenario_Concurrent_Pair_Creation(t *testing.T) {
	req := require.New(t)
	n := startNode(t)
	alice := n.connect(t, "Alice")
	bob := n.connect(t, "Bob")
	request := client.NewChat{Participants: []domain.UserID{alice.profile.ID, bob.profile.ID}}

	// When both users create their chat at the same time
	type result struct {
		chat    domain.ChatView
		created bool
		err     error
	}
	results := make([]result, 2)
	var wg sync.WaitGroup
	for i, u := range []*user{alice, bob} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chat, created, err := u.api.CreateChat(context.Background(), request)
			results[i] = result{chat: chat, created: created, err: err}
		}()
	}
	wg.Wait()

	// Then a single chat exists and only one call created it
	req.NoError(results[0].err)
	req.NoError(results[1].err)
	req.Equal(results[0].chat.ID, results[1].chat.ID)
	req.True(results[0].created != results[1].created)

	list, err := alice.api.Chats(context.Background(), "", 1, 20)
	req.NoError(err)
	req.Equal(1, list.TotalItems)
}

func TestScenario_Update_Reaches_User_Outside_Room(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n := startNode(t)
	alice := n.connect(t, "Alice")
	bob := n.connect(t, "Bob")

	// Given a chat listed by both, viewed by alice only
	chat, _, err := alice.api.CreateChat(ctx, client.NewChat{Participants: []domain.UserID{alice.profile.ID, bob.profile.ID}})
	req.NoError(err)
	bob.chats.SetChats([]domain.ChatView{chat})
	alice.chats.SetChats([]domain.ChatView{chat})
	req.NoError(alice.view.Open(ctx, chat.ID))
	state, _ := alice.view.State()
	req.Equal(store.Viewing, state)

	// When alice sends a message
	ack, err := alice.conn.EmitWithAck(ctx, event.SendMessage, event.SendMessagePayload{
		ChatID: chat.ID, Content: "are you there?", MessageType: domain.MessageTypeText,
	})
	req.NoError(err)
	req.True(ack.OK)
	sent := ack.Message.ID

	// Then bob's chat list moves the chat to the top, unread
	req.Eventually(func() bool {
		entry, ok := bob.chats.Chat(chat.ID)
		return ok && entry.LatestMessage != nil && entry.LatestMessage.ID == sent && entry.Unread
	}, 5*time.Second, 20*time.Millisecond)

	// And alice's open chat received it live after the creation note
	req.Eventually(func() bool {
		ids := store.IDs(alice.messages.Messages())
		return len(ids) == 2 && ids[1] == sent
	}, 5*time.Second, 20*time.Millisecond)

	// And bob's own message store was never touched
	req.Empty(bob.messages.Messages())
}

func TestScenario_Update_Lists_A_Chat_Created_By_Someone_Else(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n := startNode(t)
	alice := n.connect(t, "Alice")
	bob := n.connect(t, "Bob")

	// Given alice opens a chat with bob, whose chat list was loaded before it existed
	chat, created, err := alice.api.CreateChat(ctx, client.NewChat{Participants: []domain.UserID{alice.profile.ID, bob.profile.ID}})
	req.NoError(err)
	req.True(created)
	req.NoError(alice.view.Open(ctx, chat.ID))
	req.Empty(bob.chats.Chats())

	// When alice sends the first message
	ack, err := alice.conn.EmitWithAck(ctx, event.SendMessage, event.SendMessagePayload{
		ChatID: chat.ID, Content: "hi bob", MessageType: domain.MessageTypeText,
	})
	req.NoError(err)
	req.True(ack.OK)

	// Then the chat shows up on top of bob's list, unread, with that message
	req.Eventually(func() bool {
		entries := bob.chats.Chats()
		return len(entries) == 1 && entries[0].ID == chat.ID &&
			entries[0].LatestMessage != nil && entries[0].LatestMessage.ID == ack.Message.ID && entries[0].Unread
	}, 5*time.Second, 20*time.Millisecond)
}
