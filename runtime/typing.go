package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
)

const DefaultTypingWindow = 2 * time.Second

type typingKey struct {
	chat domain.ChatID
	user domain.UserID
}

type typingEntry struct {
	owner  domain.ConnID
	typist domain.Typist
	timer  *time.Timer
	gen    uint64
}

// Typing debounces the typing indicator of every (chat, user) pair.
// Started is broadcast on the Idle→Typing edge only. Ended is broadcast exactly once,
// by an explicit stop, the expiry of the window or the owning connection going away.
type Typing struct {
	mu          sync.Mutex
	entries     map[typingKey]*typingEntry
	byConn      map[domain.ConnID]map[typingKey]struct{}
	gen         uint64
	closed      bool
	window      time.Duration
	broadcaster contract.IBroadcaster
	log         *slog.Logger
}

func NewTyping(broadcaster contract.IBroadcaster, window time.Duration, log *slog.Logger) *Typing {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &Typing{
		entries:     make(map[typingKey]*typingEntry),
		byConn:      make(map[domain.ConnID]map[typingKey]struct{}),
		window:      window,
		broadcaster: broadcaster,
		log:         log,
	}
}

// Start arms or renews the typing window of conn's user in chatID.
// A renewal replaces the timer and broadcasts nothing.
func (t *Typing) Start(ctx context.Context, conn domain.Connection, chatID domain.ChatID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	key := typingKey{chat: chatID, user: conn.UserID}
	t.gen++
	gen := t.gen
	timer := time.AfterFunc(t.window, func() { t.expire(key, gen) })

	if e, ok := t.entries[key]; ok {
		e.timer.Stop()
		e.timer, e.gen = timer, gen
		if e.owner != conn.ID {
			t.unindex(e.owner, key)
			t.index(conn.ID, key)
			e.owner = conn.ID
		}
		return
	}

	t.entries[key] = &typingEntry{owner: conn.ID, typist: conn.Typist(), timer: timer, gen: gen}
	t.index(conn.ID, key)
	t.broadcaster.Broadcast(ctx, domain.ChatRoom(chatID), event.TypingStarted{ChatID: chatID, User: conn.Typist()},
		contract.Exclude{User: conn.UserID})
}

// Stop ends the typing state of userID in chatID. Stopping an idle pair does nothing.
func (t *Typing) Stop(ctx context.Context, chatID domain.ChatID, userID domain.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.end(ctx, typingKey{chat: chatID, user: userID})
}

// StopConnection ends every typing state owned by a closing connection.
func (t *Typing) StopConnection(ctx context.Context, connID domain.ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.byConn[connID] {
		t.end(ctx, key)
	}
}

func (t *Typing) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[key]; !ok || e.gen != gen {
		return
	}
	t.log.Debug("Typing window expired", "chat_id", key.chat, "user_id", key.user)
	t.end(context.Background(), key)
}

func (t *Typing) end(ctx context.Context, key typingKey) {
	e, ok := t.entries[key]
	if !ok {
		return
	}
	e.timer.Stop()
	delete(t.entries, key)
	t.unindex(e.owner, key)
	t.broadcaster.Broadcast(ctx, domain.ChatRoom(key.chat), event.TypingEnded{ChatID: key.chat, User: e.typist},
		contract.Exclude{User: key.user})
}

// IsTyping reports whether userID is typing in chatID.
func (t *Typing) IsTyping(chatID domain.ChatID, userID domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[typingKey{chat: chatID, user: userID}]
	return ok
}

// Active is the number of pairs currently typing.
func (t *Typing) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close cancels every timer. Nothing is broadcast afterwards.
func (t *Typing) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for key, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, key)
	}
	clear(t.byConn)
}

func (t *Typing) index(connID domain.ConnID, key typingKey) {
	if _, ok := t.byConn[connID]; !ok {
		t.byConn[connID] = make(map[typingKey]struct{})
	}
	t.byConn[connID][key] = struct{}{}
}

func (t *Typing) unindex(connID domain.ConnID, key typingKey) {
	keys, ok := t.byConn[connID]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(t.byConn, connID)
	}
}
