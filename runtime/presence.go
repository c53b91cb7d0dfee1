package runtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chat-sync/contract"
	"chat-sync/domain"

	"github.com/cespare/xxhash/v2"
)

const presenceShards = 32

type pendingOffline struct {
	timer *time.Timer
	gen   uint64
}

type presenceShard struct {
	mu      sync.Mutex
	counts  map[domain.UserID]int
	pending map[domain.UserID]pendingOffline
}

// Presence counts the open connections of every user.
// Only the 0→1 and 1→0 transitions reach the listener. With a grace window the
// 1→0 notification is deferred, and a reconnect inside the window cancels it.
type Presence struct {
	shards   [presenceShards]*presenceShard
	listener contract.PresenceListener
	grace    time.Duration
	gen      atomic.Uint64
	online   atomic.Int64
	log      *slog.Logger
}

func NewPresence(listener contract.PresenceListener, grace time.Duration, log *slog.Logger) *Presence {
	p := &Presence{listener: listener, grace: grace, log: log}
	for i := range p.shards {
		p.shards[i] = &presenceShard{
			counts:  make(map[domain.UserID]int),
			pending: make(map[domain.UserID]pendingOffline),
		}
	}
	return p
}

func (p *Presence) shard(userID domain.UserID) *presenceShard {
	return p.shards[xxhash.Sum64String(string(userID))%presenceShards]
}

// OnConnect increments the count of conn's user. It returns true when the user went online.
func (p *Presence) OnConnect(ctx context.Context, conn domain.Connection) bool {
	s := p.shard(conn.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[conn.UserID]++
	if pending, ok := s.pending[conn.UserID]; ok {
		// Back inside the grace window: peers never saw the user leave.
		pending.timer.Stop()
		delete(s.pending, conn.UserID)
		p.log.Debug("Offline cancelled by reconnect", "user_id", conn.UserID)
		return false
	}
	if s.counts[conn.UserID] != 1 {
		return false
	}
	p.online.Add(1)
	p.listener.UserOnline(ctx, domain.PublicUser{ID: conn.UserID, DisplayName: conn.DisplayName, Online: true})
	return true
}

// OnDisconnect decrements the count of userID. It returns true when the last connection closed,
// the offline notification itself may still be pending.
func (p *Presence) OnDisconnect(ctx context.Context, userID domain.UserID) bool {
	s := p.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	count, ok := s.counts[userID]
	if !ok {
		p.log.Warn("Disconnect without connect", "user_id", userID)
		return false
	}
	if count > 1 {
		s.counts[userID] = count - 1
		return false
	}
	delete(s.counts, userID)

	if p.grace <= 0 {
		p.wentOffline(ctx, userID)
		return true
	}
	gen := p.gen.Add(1)
	s.pending[userID] = pendingOffline{
		gen:   gen,
		timer: time.AfterFunc(p.grace, func() { p.expire(userID, gen) }),
	}
	return true
}

// expire fires the deferred offline unless a reconnect or a newer disconnect replaced it.
func (p *Presence) expire(userID domain.UserID, gen uint64) {
	s := p.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.pending[userID]
	if !ok || pending.gen != gen {
		return
	}
	delete(s.pending, userID)
	p.wentOffline(context.Background(), userID)
}

func (p *Presence) wentOffline(ctx context.Context, userID domain.UserID) {
	p.online.Add(-1)
	p.listener.UserOffline(ctx, userID)
}

// IsOnline is true while the user has a connection or an offline notification pending.
func (p *Presence) IsOnline(userID domain.UserID) bool {
	s := p.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[userID] > 0 {
		return true
	}
	_, pending := s.pending[userID]
	return pending
}

// Count returns the number of open connections of userID.
func (p *Presence) Count(userID domain.UserID) int {
	s := p.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[userID]
}

// OnlineCount is the number of users seen online by peers.
func (p *Presence) OnlineCount() int64 {
	return p.online.Load()
}

func (p *Presence) OnlineUsers() []domain.UserID {
	var users []domain.UserID
	for _, s := range p.shards {
		s.mu.Lock()
		for userID := range s.counts {
			users = append(users, userID)
		}
		for userID := range s.pending {
			users = append(users, userID)
		}
		s.mu.Unlock()
	}
	return users
}

// Close drops every pending offline notification.
func (p *Presence) Close() {
	for _, s := range p.shards {
		s.mu.Lock()
		for userID, pending := range s.pending {
			pending.timer.Stop()
			delete(s.pending, userID)
		}
		s.mu.Unlock()
	}
}
