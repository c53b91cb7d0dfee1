package client

import (
	"context"
	"log/slog"

	"chat-sync/client/store"
	"chat-sync/domain"
	"chat-sync/domain/event"
)

// ChatLookup resolves a single chat, see API.Chat.
type ChatLookup interface {
	Chat(ctx context.Context, chatID domain.ChatID) (domain.ChatView, error)
}

// Bind routes the server events of conn to the stores: messages of the viewed chat to view,
// chat updates to chats. Updates of chats missing from the list are resolved through lookup.
// The viewed chat is joined again after every reconnection.
func Bind(ctx context.Context, conn *Conn, lookup ChatLookup, chats *store.ChatStore, view *store.ChatView, log *slog.Logger) {
	conn.On(event.Connected, func(event.Envelope) {
		go func() {
			if err := view.Rejoin(ctx); err != nil {
				log.Warn("Unable to join the chat again", "error", err)
			}
		}()
	})
	conn.On(event.NewMessage, func(env event.Envelope) {
		var msg domain.PopulatedMessage
		if decode(env, &msg, log) {
			view.OnNewMessage(msg)
		}
	})
	conn.On(event.NewMessageChatUpdate, func(env event.Envelope) {
		var msg domain.PopulatedMessage
		if decode(env, &msg, log) && !chats.UpdateChatLatestMessage(msg.ChatID, msg) {
			if _, listed := chats.Chat(msg.ChatID); !listed {
				go discoverChat(ctx, lookup, chats, msg, log)
			}
		}
	})
	conn.On(event.UserStartedTyping, func(env event.Envelope) {
		var typing event.TypingStarted
		if decode(env, &typing, log) {
			view.OnTypingStarted(typing.ChatID, typing.User)
		}
	})
	conn.On(event.UserEndedTyping, func(env event.Envelope) {
		var typing event.TypingEnded
		if decode(env, &typing, log) {
			view.OnTypingEnded(typing.ChatID, typing.User)
		}
	})
	conn.On(event.Error, func(env event.Envelope) {
		var failure event.ErrorPayload
		if decode(env, &failure, log) {
			log.Warn("Server reported an error", "code", failure.Code, "message", failure.Message)
		}
	})
}

// discoverChat lists a chat the store has never seen, created by someone else or beyond the
// loaded pages, then applies msg in case the fetched view predates it.
func discoverChat(ctx context.Context, lookup ChatLookup, chats *store.ChatStore, msg domain.PopulatedMessage, log *slog.Logger) {
	chat, err := lookup.Chat(ctx, msg.ChatID)
	if err != nil {
		log.Warn("Unable to fetch an unknown chat", "chat_id", msg.ChatID, "error", err)
		return
	}
	chats.Upsert(chat)
	chats.UpdateChatLatestMessage(msg.ChatID, msg)
}

func decode(env event.Envelope, out any, log *slog.Logger) bool {
	if err := env.DecodeData(out); err != nil {
		log.Warn("Dropping event", "event", env.Event, "error", err)
		return false
	}
	return true
}
