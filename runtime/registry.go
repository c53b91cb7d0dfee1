package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
)

var (
	_ contract.IRegistry    = (*Registry)(nil)
	_ contract.IBroadcaster = (*Registry)(nil)
)

type Set map[domain.ConnID]struct{}

type session struct {
	conn  domain.Connection
	sink  contract.EventSink
	rooms map[domain.RoomID]struct{}
}

// Registry maps connections to their sink and rooms to their members.
// A connection belongs to its personal room and to the lobby from Register to Unregister.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[domain.ConnID]*session // map connection -> Sink
	roomMembers map[domain.RoomID]Set      // map room to connections
	log         *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		sessions:    make(map[domain.ConnID]*session),
		roomMembers: make(map[domain.RoomID]Set),
		log:         log,
	}
}

// Register attaches a live connection and subscribes it to its implicit rooms.
func (r *Registry) Register(conn domain.Connection, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[conn.ID] = &session{conn: conn, sink: sink, rooms: make(map[domain.RoomID]struct{})}
	r.join(conn.ID, domain.PersonalRoom(conn.UserID))
	r.join(conn.ID, domain.Lobby)
}

// Unregister removes the connection from every room it was in and returns those rooms.
// It is idempotent.
func (r *Registry) Unregister(connID domain.ConnID) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil
	}
	left := make([]domain.RoomID, 0, len(s.rooms))
	for room := range s.rooms {
		r.leave(connID, room)
		left = append(left, room)
	}
	delete(r.sessions, connID)
	return left
}

// Join subscribes a registered connection to a room. It returns false for an unknown connection.
func (r *Registry) Join(connID domain.ConnID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[connID]; !ok {
		return false
	}
	r.join(connID, room)
	return true
}

// Leave is a no-op when the connection is not in the room.
func (r *Registry) Leave(connID domain.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(connID, room)
}

func (r *Registry) Members(room domain.RoomID) []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]domain.ConnID, 0, len(r.roomMembers[room]))
	for connID := range r.roomMembers[room] {
		members = append(members, connID)
	}
	return members
}

func (r *Registry) InRoom(connID domain.ConnID, room domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roomMembers[room][connID]
	return ok
}

// Connections returns the number of registered connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Rooms returns the number of rooms with at least one member.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roomMembers)
}

// Broadcast hands evt to the sink of every member of room, minus the excluded ones.
// Sinks never block, so the read lock is only held for the duration of the enqueue.
// It returns the number of sinks that accepted the event.
func (r *Registry) Broadcast(ctx context.Context, room domain.RoomID, evt event.DomainEvent, exclude contract.Exclude) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for connID := range r.roomMembers[room] {
		s, ok := r.sessions[connID]
		if !ok || connID == exclude.Conn || (exclude.User != "" && s.conn.UserID == exclude.User) {
			continue
		}
		if err := s.sink.Consume(ctx, evt); err != nil {
			r.log.Debug("Event dropped", "conn_id", connID, "room", room, "event", evt.EventName(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Registry) join(connID domain.ConnID, room domain.RoomID) {
	if _, ok := r.roomMembers[room]; !ok {
		r.roomMembers[room] = make(Set)
	}
	r.roomMembers[room][connID] = struct{}{}
	r.sessions[connID].rooms[room] = struct{}{}
}

func (r *Registry) leave(connID domain.ConnID, room domain.RoomID) {
	if s, ok := r.sessions[connID]; ok {
		delete(s.rooms, room)
	}
	if members, ok := r.roomMembers[room]; ok {
		delete(members, connID)

		// If no one is left in the room, remove the room entry entirely
		if len(members) == 0 {
			delete(r.roomMembers, room)
		}
	}
}
