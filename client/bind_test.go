package client

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"chat-sync/client/store"
	"chat-sync/domain"
	"chat-sync/errors"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type lookupFunc func(ctx context.Context, chatID domain.ChatID) (domain.ChatView, error)

func (f lookupFunc) Chat(ctx context.Context, chatID domain.ChatID) (domain.ChatView, error) {
	return f(ctx, chatID)
}

func TestDiscoverChat(t *testing.T) {
	epoch := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	note := domain.PopulatedMessage{ID: "note", ChatID: "c9", ReadBy: []domain.UserID{"alice"}, CreatedAt: epoch}
	hello := domain.PopulatedMessage{ID: "hello", ChatID: "c9", ReadBy: []domain.UserID{"alice"}, CreatedAt: epoch.Add(time.Second)}

	testCases := []struct {
		name     string
		served   *domain.PopulatedMessage
		err      error
		listed   bool
		expected domain.MessageID
	}{
		{name: "Server already has the message", served: &hello, listed: true, expected: "hello"},
		{name: "Server view predates the message", served: &note, listed: true, expected: "hello"},
		{name: "Lookup fails", err: errors.ErrTransientIO},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			log := logs.GetLoggerFromLevel(slog.LevelDebug)
			chats := store.NewChatStore("bob")
			var calls atomic.Int32
			lookup := lookupFunc(func(_ context.Context, chatID domain.ChatID) (domain.ChatView, error) {
				calls.Add(1)
				return domain.ChatView{ID: chatID, LatestMessage: tc.served}, tc.err
			})

			// Given bob's list doesn't know c9
			req.False(chats.UpdateChatLatestMessage("c9", hello))

			// When the update is resolved through the lookup
			discoverChat(context.Background(), lookup, chats, hello, log)

			// Then c9 is listed, unread, with the newest message
			req.Equal(int32(1), calls.Load())
			entry, ok := chats.Chat("c9")
			req.Equal(tc.listed, ok)
			if tc.listed {
				req.Equal(tc.expected, entry.LatestMessage.ID)
				req.True(entry.Unread)
			}
		})
	}
}
