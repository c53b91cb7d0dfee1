package store

import (
	"slices"
	"sync"

	"chat-sync/domain"
)

// ChatEntry is a row of the chat list.
type ChatEntry struct {
	domain.ChatView
	Unread bool `json:"unread"`
}

// ChatStore is the chat list of the current user, most recent first.
// It is reconciled from new-message-chat-update events.
type ChatStore struct {
	me domain.UserID

	mu    sync.Mutex
	chats []ChatEntry

	observers observers[[]ChatEntry]
}

func NewChatStore(me domain.UserID) *ChatStore {
	return &ChatStore{me: me}
}

// SetChats replaces the list with the result of GET /chats.
func (s *ChatStore) SetChats(views []domain.ChatView) {
	entries := make([]ChatEntry, 0, len(views))
	for _, v := range views {
		entries = append(entries, ChatEntry{ChatView: v, Unread: s.unread(v.LatestMessage)})
	}
	s.mu.Lock()
	s.chats = entries
	snapshot := slices.Clone(s.chats)
	s.mu.Unlock()

	s.observers.notify(snapshot)
}

// Upsert adds a chat created elsewhere, or refreshes it, and puts it on top.
// A cached latest message newer than the one of view is kept.
func (s *ChatStore) Upsert(view domain.ChatView) {
	s.mu.Lock()
	if i := slices.IndexFunc(s.chats, func(c ChatEntry) bool { return c.ID == view.ID }); i >= 0 {
		cached := s.chats[i].LatestMessage
		if cached != nil && (view.LatestMessage == nil || cached.CreatedAt.After(view.LatestMessage.CreatedAt)) {
			view.LatestMessage = cached
		}
		s.chats = slices.Delete(s.chats, i, i+1)
	}
	entry := ChatEntry{ChatView: view, Unread: s.unread(view.LatestMessage)}
	s.chats = slices.Insert(s.chats, 0, entry)
	snapshot := slices.Clone(s.chats)
	s.mu.Unlock()

	s.observers.notify(snapshot)
}

// UpdateChatLatestMessage replaces the latest message of chatID, recomputes its unread flag and
// moves the chat to the top. Applying the same message twice changes nothing, and a message older
// than the current latest one is ignored. It reports false when nothing changed or the chat is unknown.
func (s *ChatStore) UpdateChatLatestMessage(chatID domain.ChatID, msg domain.PopulatedMessage) bool {
	s.mu.Lock()
	i := slices.IndexFunc(s.chats, func(c ChatEntry) bool { return c.ID == chatID })
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	entry := s.chats[i]
	if latest := entry.LatestMessage; latest != nil {
		if latest.ID == msg.ID && slices.Equal(latest.ReadBy, msg.ReadBy) {
			s.mu.Unlock()
			return false
		}
		if latest.ID != msg.ID && msg.CreatedAt.Before(latest.CreatedAt) {
			s.mu.Unlock()
			return false
		}
	}
	latest := msg
	entry.LatestMessage = &latest
	entry.Unread = s.unread(&latest)
	if msg.CreatedAt.After(entry.UpdatedAt) {
		entry.UpdatedAt = msg.CreatedAt
	}
	s.chats = slices.Delete(s.chats, i, i+1)
	s.chats = slices.Insert(s.chats, 0, entry)
	snapshot := slices.Clone(s.chats)
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return true
}

// MarkRead clears the unread flag of chatID once the user has seen its latest message.
func (s *ChatStore) MarkRead(chatID domain.ChatID) bool {
	s.mu.Lock()
	i := slices.IndexFunc(s.chats, func(c ChatEntry) bool { return c.ID == chatID })
	if i < 0 || !s.chats[i].Unread {
		s.mu.Unlock()
		return false
	}
	entry := s.chats[i]
	if entry.LatestMessage != nil {
		latest := *entry.LatestMessage
		latest.ReadBy = append(slices.Clone(latest.ReadBy), s.me)
		entry.LatestMessage = &latest
	}
	entry.Unread = false
	s.chats[i] = entry
	snapshot := slices.Clone(s.chats)
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return true
}

func (s *ChatStore) Chats() []ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.chats)
}

// Chat returns the entry of chatID.
func (s *ChatStore) Chat(chatID domain.ChatID) (ChatEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.chats, func(c ChatEntry) bool { return c.ID == chatID })
	if i < 0 {
		return ChatEntry{}, false
	}
	return s.chats[i], true
}

func (s *ChatStore) Subscribe(obs Observer[[]ChatEntry]) (unsubscribe func()) {
	return s.observers.subscribe(obs)
}

func (s *ChatStore) unread(latest *domain.PopulatedMessage) bool {
	return latest != nil && !latest.ReadByUser(s.me)
}
