package event

import (
	"chat-sync/domain"
)

// Name is the wire name of an event.
type Name string

// Server to client
const (
	Connected            Name = "connected"
	UserOnline           Name = "user-online"
	UserOffline          Name = "user-offline"
	NewMessage           Name = "new-message"
	NewMessageChatUpdate Name = "new-message-chat-update"
	UserStartedTyping    Name = "server-user-started-typing"
	UserEndedTyping      Name = "server-user-ended-typing"
	Error                Name = "error"
	Ack                  Name = "ack"
)

// Client to server
const (
	JoinChat    Name = "join-chat"
	LeaveChat   Name = "leave-chat"
	SendMessage Name = "send-message"
	StartTyping Name = "user-start-typing"
	EndTyping   Name = "user-end-typing"
)

// DomainEvent is anything that can be pushed to a connection.
type DomainEvent interface {
	EventName() Name
}

type ConnectedPayload struct {
	ConnectionID domain.ConnID   `json:"connectionId"`
	User         domain.UserID   `json:"userId"`
	OnlineUsers  []domain.UserID `json:"onlineUsers"`
}

func (ConnectedPayload) EventName() Name { return Connected }

type UserWentOnline struct {
	UserData domain.PublicUser `json:"userData"`
}

func (UserWentOnline) EventName() Name { return UserOnline }

type UserWentOffline struct {
	UserID domain.UserID `json:"userId"`
}

func (UserWentOffline) EventName() Name { return UserOffline }

// MessagePosted carries a message to the viewers of its chat room.
type MessagePosted struct {
	domain.PopulatedMessage
}

func (MessagePosted) EventName() Name { return NewMessage }

// ChatUpdated carries the same message to each participant's personal room.
type ChatUpdated struct {
	domain.PopulatedMessage
}

func (ChatUpdated) EventName() Name { return NewMessageChatUpdate }

type TypingStarted struct {
	ChatID domain.ChatID `json:"chatId"`
	User   domain.Typist `json:"user"`
}

func (TypingStarted) EventName() Name { return UserStartedTyping }

type TypingEnded struct {
	ChatID domain.ChatID `json:"chatId"`
	User   domain.Typist `json:"user"`
}

func (TypingEnded) EventName() Name { return UserEndedTyping }

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorPayload) EventName() Name { return Error }

// AckPayload answers a client request that carried an ack id.
type AckPayload struct {
	OK      bool                     `json:"ok"`
	Message *domain.PopulatedMessage `json:"message,omitempty"`
	Chat    *domain.ChatView         `json:"chat,omitempty"`
	Error   *ErrorPayload            `json:"error,omitempty"`
}

func (AckPayload) EventName() Name { return Ack }
