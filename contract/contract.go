//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-sync/domain"
	"chat-sync/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one connection.
// Consume must never block: a sink that cannot keep up reports it and gets closed.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Exclude removes recipients from a broadcast.
type Exclude struct {
	Conn domain.ConnID
	User domain.UserID
}

// IRegistry tracks which connection belongs to which room.
type IRegistry interface {
	Register(conn domain.Connection, sink EventSink)
	Unregister(connID domain.ConnID) []domain.RoomID
	Join(connID domain.ConnID, room domain.RoomID) bool
	Leave(connID domain.ConnID, room domain.RoomID)
	Members(room domain.RoomID) []domain.ConnID
}

// IBroadcaster delivers an event to every member of a room.
type IBroadcaster interface {
	Broadcast(ctx context.Context, room domain.RoomID, evt event.DomainEvent, exclude Exclude) int
}

// PresenceListener is told about 0→1 and 1→0 transitions.
// It is called with the presence shard locked and must not block.
type PresenceListener interface {
	UserOnline(ctx context.Context, user domain.PublicUser)
	UserOffline(ctx context.Context, userID domain.UserID)
}

// Backplane forwards room broadcasts to other nodes.
type Backplane interface {
	Publish(ctx context.Context, room domain.RoomID, evt event.DomainEvent, exclude Exclude) error
}
