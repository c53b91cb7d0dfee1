package domain

import (
	"time"

	"github.com/samber/lo"
)

type MessageID string

func (m MessageID) String() string { return string(m) }

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeMedia MessageType = "media"
	MessageTypeNote  MessageType = "note"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeMedia, MessageTypeNote:
		return true
	}
	return false
}

// MediaRef points at an object uploaded out of band.
type MediaRef struct {
	URL      string `json:"url" validate:"required,url"`
	MimeType string `json:"mimeType" validate:"required"`
	Size     int64  `json:"size,omitempty" validate:"gte=0"`
}

// Message is immutable once stored, except ReadBy which only grows.
type Message struct {
	ID           MessageID
	ChatID       ChatID
	SenderID     UserID
	Content      string
	Type         MessageType
	MediaRefs    []MediaRef
	ReadBy       []UserID
	IsSystemNote bool
	ReplyToID    MessageID
	CreatedAt    time.Time
}

func (m Message) ReadByUser(userID UserID) bool {
	return lo.Contains(m.ReadBy, userID)
}

// MarkRead adds readers to ReadBy and reports whether anything changed.
func (m *Message) MarkRead(readers ...UserID) bool {
	changed := false
	for _, r := range readers {
		if !lo.Contains(m.ReadBy, r) {
			m.ReadBy = append(m.ReadBy, r)
			changed = true
		}
	}
	return changed
}

// PopulatedMessage is a message resolved with its sender, as pushed to clients.
type PopulatedMessage struct {
	ID           MessageID   `json:"id"`
	ChatID       ChatID      `json:"chatId"`
	Sender       PublicUser  `json:"sender"`
	Content      string      `json:"content"`
	Type         MessageType `json:"messageType"`
	MediaRefs    []MediaRef  `json:"mediaRefs,omitempty"`
	ReadBy       []UserID    `json:"readBy"`
	IsSystemNote bool        `json:"isSystemNote"`
	ReplyToID    MessageID   `json:"replyTo,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

func Populate(m Message, sender PublicUser) PopulatedMessage {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []UserID{}
	}
	return PopulatedMessage{
		ID:           m.ID,
		ChatID:       m.ChatID,
		Sender:       sender,
		Content:      m.Content,
		Type:         m.Type,
		MediaRefs:    m.MediaRefs,
		ReadBy:       readBy,
		IsSystemNote: m.IsSystemNote,
		ReplyToID:    m.ReplyToID,
		CreatedAt:    m.CreatedAt,
	}
}

func (p PopulatedMessage) ReadByUser(userID UserID) bool {
	return lo.Contains(p.ReadBy, userID)
}
