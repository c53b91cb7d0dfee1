package store

import "sync"

// Observer is notified with a fresh snapshot after every state change.
type Observer[T any] interface {
	Notify(snapshot T)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc[T any] func(snapshot T)

func (f ObserverFunc[T]) Notify(snapshot T) { f(snapshot) }

// observers keeps subscriptions. Notify runs outside of the owner's lock.
type observers[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]Observer[T]
}

func (o *observers[T]) subscribe(obs Observer[T]) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]Observer[T])
	}
	id := o.nextID
	o.nextID++
	o.subs[id] = obs
	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

func (o *observers[T]) notify(snapshot T) {
	o.mu.Lock()
	subs := make([]Observer[T], 0, len(o.subs))
	for _, s := range o.subs {
		subs = append(subs, s)
	}
	o.mu.Unlock()
	for _, s := range subs {
		s.Notify(snapshot)
	}
}
