package store

import (
	"context"

	"chat-sync/domain"
	"chat-sync/domain/event"
)

//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../../mocks/mock_store.go -package=mocks

// MessageFetcher reads one page of history, newest first. See client.API.
type MessageFetcher interface {
	FetchMessages(ctx context.Context, chatID domain.ChatID, page, limit int) (Page, error)
}

// Emitter sends a request over the socket and waits for its ack. See client.Conn.
type Emitter interface {
	EmitWithAck(ctx context.Context, name event.Name, data any) (event.AckPayload, error)
}
