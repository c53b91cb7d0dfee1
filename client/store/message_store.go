// Package store holds the client side state: the message history of the open chat,
// the chat list and the lifecycle of the chat being viewed.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"chat-sync/domain"

	"github.com/samber/lo"
)

// Page is one page of history as served by GET /messages, newest first.
type Page struct {
	Messages   []domain.PopulatedMessage `json:"messages"`
	TotalItems int                       `json:"totalItems"`
}

// MessagesSnapshot is what observers of a MessageStore receive.
type MessagesSnapshot struct {
	ChatID   domain.ChatID
	Messages []domain.PopulatedMessage
	HasMore  bool
}

// MessageStore caches the history of one chat in ascending order.
// Older pages are prepended as the user scrolls up.
type MessageStore struct {
	fetcher  MessageFetcher
	pageSize int

	mu         sync.Mutex
	chatID     domain.ChatID
	generation uint64
	messages   []domain.PopulatedMessage
	seen       map[domain.MessageID]struct{}
	total      int
	nextPage   int
	loading    bool

	observers observers[MessagesSnapshot]
}

func NewMessageStore(fetcher MessageFetcher, pageSize int) *MessageStore {
	if pageSize < 1 {
		pageSize = domain.DefaultPageLimit
	}
	return &MessageStore{
		fetcher:  fetcher,
		pageSize: pageSize,
		seen:     make(map[domain.MessageID]struct{}),
		nextPage: 1,
	}
}

// LoadMessages fetches the next older page of chatID. With reset, or when chatID is not
// the cached chat, the cache starts over from the newest page.
// A call while another load is in flight, or once everything is loaded, does nothing.
func (s *MessageStore) LoadMessages(ctx context.Context, chatID domain.ChatID, reset bool) error {
	s.mu.Lock()
	if reset || chatID != s.chatID {
		s.clearLocked(chatID)
	}
	if s.loading || (s.nextPage > 1 && !s.hasMoreLocked()) {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	generation, number := s.generation, s.nextPage
	s.mu.Unlock()

	page, err := s.fetcher.FetchMessages(ctx, chatID, number, s.pageSize)

	s.mu.Lock()
	if generation != s.generation {
		// The chat was switched or reset while the page was in flight.
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("load messages of %s page %d: %w", chatID, number, err)
	}
	s.prependLocked(page.Messages)
	s.total = max(page.TotalItems, len(s.messages))
	s.nextPage++
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return nil
}

// prependLocked merges a newest-first page into the cache. Live messages may already be
// cached, so the result is sorted again by creation time; equal timestamps keep the page first.
func (s *MessageStore) prependLocked(newestFirst []domain.PopulatedMessage) {
	merged := make([]domain.PopulatedMessage, 0, len(newestFirst)+len(s.messages))
	for _, m := range slices.Backward(newestFirst) {
		if _, ok := s.seen[m.ID]; ok {
			continue
		}
		s.seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	merged = append(merged, s.messages...)
	slices.SortStableFunc(merged, byCreatedAt)
	s.messages = merged
}

func byCreatedAt(a, b domain.PopulatedMessage) int {
	return a.CreatedAt.Compare(b.CreatedAt)
}

// Append adds a live message of the cached chat. Duplicates and other chats are ignored.
func (s *MessageStore) Append(msg domain.PopulatedMessage) bool {
	s.mu.Lock()
	if msg.ChatID != s.chatID || s.chatID == "" {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.seen[msg.ID]; ok {
		s.mu.Unlock()
		return false
	}
	s.seen[msg.ID] = struct{}{}
	i, _ := slices.BinarySearchFunc(s.messages, msg, byCreatedAt)
	// Equal timestamps keep arrival order.
	for i < len(s.messages) && !s.messages[i].CreatedAt.After(msg.CreatedAt) {
		i++
	}
	s.messages = slices.Insert(s.messages, i, msg)
	s.total++
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return true
}

// ResetMessages drops the cache of chatID, used when switching chats.
func (s *MessageStore) ResetMessages(chatID domain.ChatID) {
	s.mu.Lock()
	if chatID != s.chatID {
		s.mu.Unlock()
		return
	}
	s.clearLocked("")
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
}

func (s *MessageStore) clearLocked(chatID domain.ChatID) {
	s.generation++
	s.chatID = chatID
	s.messages = nil
	s.seen = make(map[domain.MessageID]struct{})
	s.total = 0
	s.nextPage = 1
	s.loading = false
}

// Messages returns the cache in ascending creation order.
func (s *MessageStore) Messages() []domain.PopulatedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// HasMore reports whether older messages are left on the server.
func (s *MessageStore) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMoreLocked()
}

func (s *MessageStore) hasMoreLocked() bool {
	return len(s.messages) < s.total
}

func (s *MessageStore) ChatID() domain.ChatID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

func (s *MessageStore) Subscribe(obs Observer[MessagesSnapshot]) (unsubscribe func()) {
	return s.observers.subscribe(obs)
}

func (s *MessageStore) snapshotLocked() MessagesSnapshot {
	return MessagesSnapshot{
		ChatID:   s.chatID,
		Messages: slices.Clone(s.messages),
		HasMore:  s.hasMoreLocked(),
	}
}

// IDs is a convenience for observers and logs.
func IDs(messages []domain.PopulatedMessage) []domain.MessageID {
	return lo.Map(messages, func(m domain.PopulatedMessage, _ int) domain.MessageID { return m.ID })
}
