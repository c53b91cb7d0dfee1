package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomID_ChatOf(t *testing.T) {
	req := require.New(t)

	// Given a chat room
	room := ChatRoom("c-1")

	// When the chat is extracted
	chatID, ok := room.ChatOf()

	// Then it's the original chat
	req.True(ok)
	req.Equal(ChatID("c-1"), chatID)
	req.False(room.IsPersonal())

	_, ok = PersonalRoom("u-1").ChatOf()
	req.False(ok)
	req.True(PersonalRoom("u-1").IsPersonal())
}

func TestPairKey_Is_Order_Independent(t *testing.T) {
	req := require.New(t)
	req.Equal(PairKey("alice", "bob"), PairKey("bob", "alice"))
	req.NotEqual(PairKey("alice", "bob"), PairKey("alice", "carol"))
}

func TestMessage_MarkRead_Only_Grows(t *testing.T) {
	req := require.New(t)
	msg := Message{ReadBy: []UserID{"alice"}}

	req.True(msg.MarkRead("bob"))
	req.False(msg.MarkRead("alice", "bob"))
	req.Equal([]UserID{"alice", "bob"}, msg.ReadBy)
}
