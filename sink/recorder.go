package sink

import (
	"context"
	"sync"

	"chat-sync/domain/event"
)

// Recorder keeps every event it receives, in order.
// It is the in-memory sink used by tests and by the terminal client timeline.
type Recorder struct {
	mu     sync.Mutex
	Owner  string
	events []event.DomainEvent
}

func NewRecorder(owner string) *Recorder {
	return &Recorder{Owner: owner}
}

func (r *Recorder) Consume(_ context.Context, e event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []event.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.DomainEvent(nil), r.events...)
}

// Named returns the received events carrying the given name.
func (r *Recorder) Named(name event.Name) []event.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.DomainEvent
	for _, e := range r.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
