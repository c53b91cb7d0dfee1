package store_test

import (
	"testing"
	"time"

	"chat-sync/client/store"
	"chat-sync/domain"

	"github.com/stretchr/testify/require"
)

func chat(id domain.ChatID, latest *domain.PopulatedMessage) domain.ChatView {
	return domain.ChatView{ID: id, CreatedAt: epoch, UpdatedAt: epoch, LatestMessage: latest}
}

func TestChatStore_Update_Latest_Message(t *testing.T) {
	req := require.New(t)

	// Given bob sees c1 and c2, c2 on top, everything read
	read := message("c1", 1)
	read.ReadBy = []domain.UserID{"alice", "bob"}
	chats := store.NewChatStore("bob")
	chats.SetChats([]domain.ChatView{chat("c2", nil), chat("c1", &read)})
	var notified int
	chats.Subscribe(store.ObserverFunc[[]store.ChatEntry](func([]store.ChatEntry) { notified++ }))

	// When alice's message in c1 reaches bob's personal room
	incoming := message("c1", 2)
	changed := chats.UpdateChatLatestMessage("c1", incoming)

	// Then c1 moves to the top, unread for bob
	req.True(changed)
	list := chats.Chats()
	req.Equal(domain.ChatID("c1"), list[0].ID)
	req.True(list[0].Unread)
	req.Equal(incoming.ID, list[0].LatestMessage.ID)
	req.Equal(1, notified)

	// When the same event is delivered again
	changed = chats.UpdateChatLatestMessage("c1", incoming)

	// Then nothing changes
	req.False(changed)
	req.Equal(list, chats.Chats())
	req.Equal(1, notified)
}

func TestChatStore_Ignores_Older_And_Unknown(t *testing.T) {
	req := require.New(t)
	latest := message("c1", 5)
	chats := store.NewChatStore("alice")
	chats.SetChats([]domain.ChatView{chat("c1", &latest)})

	req.False(chats.UpdateChatLatestMessage("c1", message("c1", 3)))
	req.False(chats.UpdateChatLatestMessage("c9", message("c9", 6)))

	entry, ok := chats.Chat("c1")
	req.True(ok)
	req.Equal(latest.ID, entry.LatestMessage.ID)
}

func TestChatStore_Read_Receipt_Update(t *testing.T) {
	req := require.New(t)
	latest := message("c1", 1)
	chats := store.NewChatStore("bob")
	chats.SetChats([]domain.ChatView{chat("c1", &latest)})
	entry, _ := chats.Chat("c1")
	req.True(entry.Unread)

	// When the same message comes back read by bob from another device
	seen := latest
	seen.ReadBy = []domain.UserID{"alice", "bob"}

	// Then it is applied and the chat is read
	req.True(chats.UpdateChatLatestMessage("c1", seen))
	entry, _ = chats.Chat("c1")
	req.False(entry.Unread)
}

func TestChatStore_MarkRead_And_Upsert(t *testing.T) {
	req := require.New(t)
	latest := message("c1", 1)
	chats := store.NewChatStore("bob")
	chats.SetChats([]domain.ChatView{chat("c1", &latest)})

	req.True(chats.MarkRead("c1"))
	req.False(chats.MarkRead("c1"))
	entry, _ := chats.Chat("c1")
	req.False(entry.Unread)
	req.Contains(entry.LatestMessage.ReadBy, domain.UserID("bob"))
	// The message given to SetChats is untouched
	req.NotContains(latest.ReadBy, domain.UserID("bob"))

	chats.Upsert(domain.ChatView{ID: "c3", CreatedAt: epoch.Add(time.Hour)})
	req.Equal(domain.ChatID("c3"), chats.Chats()[0].ID)
	req.Len(chats.Chats(), 2)
}

func TestChatStore_Upsert_Keeps_Newer_Latest(t *testing.T) {
	req := require.New(t)
	chats := store.NewChatStore("bob")
	older, newer := message("c1", 1), message("c1", 2)
	chats.SetChats([]domain.ChatView{chat("c1", &newer)})

	// When a stale view of c1 is upserted
	chats.Upsert(chat("c1", &older))

	// Then the live latest message survives
	entry, ok := chats.Chat("c1")
	req.True(ok)
	req.Equal(newer.ID, entry.LatestMessage.ID)
	req.Len(chats.Chats(), 1)
}
