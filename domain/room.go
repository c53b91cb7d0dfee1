package domain

import "strings"

// RoomID names a broadcast group of connections.
type RoomID string

const (
	chatRoomPrefix     = "chat:"
	personalRoomPrefix = "user:"

	// Lobby holds every live connection, presence transitions are broadcast there.
	Lobby RoomID = "lobby"
)

func ChatRoom(id ChatID) RoomID {
	return RoomID(chatRoomPrefix + string(id))
}

func PersonalRoom(id UserID) RoomID {
	return RoomID(personalRoomPrefix + string(id))
}

// ChatOf returns the chat behind a chat room.
func (r RoomID) ChatOf() (ChatID, bool) {
	if !strings.HasPrefix(string(r), chatRoomPrefix) {
		return "", false
	}
	return ChatID(strings.TrimPrefix(string(r), chatRoomPrefix)), true
}

func (r RoomID) IsPersonal() bool {
	return strings.HasPrefix(string(r), personalRoomPrefix)
}
