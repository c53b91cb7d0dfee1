package domain

import (
	"sort"
	"time"
)

type ChatID string

func (c ChatID) String() string { return string(c) }

// Chat is a conversation between participants.
// A one-to-one chat has exactly two participants and no two of them share the same pair.
type Chat struct {
	ID              ChatID
	Name            string
	Avatar          string
	IsGroup         bool
	Participants    []UserID
	Admin           UserID
	LatestMessageID MessageID
	LatestMessageAt time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c Chat) HasParticipant(userID UserID) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// RecencyAt is the instant used to order chat lists.
func (c Chat) RecencyAt(latest *Message) time.Time {
	if latest != nil && latest.CreatedAt.After(c.UpdatedAt) {
		return latest.CreatedAt
	}
	return c.UpdatedAt
}

// PairKey returns the order independent identity of a one-to-one chat.
func PairKey(a, b UserID) string {
	ids := []string{string(a), string(b)}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// ChatView is a chat resolved for a reader: participants without sensitive fields and the latest message.
type ChatView struct {
	ID            ChatID            `json:"id"`
	Name          string            `json:"name,omitempty"`
	Avatar        string            `json:"avatar,omitempty"`
	IsGroup       bool              `json:"isGroup"`
	Participants  []PublicUser      `json:"participants"`
	Admin         UserID            `json:"admin,omitempty"`
	LatestMessage *PopulatedMessage `json:"latestMessage,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}
