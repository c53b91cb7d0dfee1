package event

import (
	"chat-sync/domain"
)

type JoinChatPayload struct {
	ChatID domain.ChatID `json:"chatId" validate:"required"`
}

type LeaveChatPayload struct {
	ChatID domain.ChatID `json:"chatId" validate:"required"`
}

// SendMessagePayload is the body of a send-message request.
type SendMessagePayload struct {
	ChatID      domain.ChatID      `json:"chatId" validate:"required"`
	Content     string             `json:"content" validate:"max=4096"`
	MessageType domain.MessageType `json:"messageType" validate:"required,oneof=text media"`
	ReplyTo     domain.MessageID   `json:"replyTo,omitempty"`
	MediaRefs   []domain.MediaRef  `json:"mediaRefs,omitempty" validate:"omitempty,max=10,dive"`
}

// TypingPayload is sent by clients; the user is informative only, the server trusts the connection identity.
type TypingPayload struct {
	ChatID domain.ChatID `json:"chatId" validate:"required"`
	User   domain.Typist `json:"user"`
}
