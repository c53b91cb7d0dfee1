package sink

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"chat-sync/contract"
	"chat-sync/domain/event"
	"chat-sync/errors"
)

var _ contract.EventSink = (*SocketSink)(nil)

// SocketSink queues encoded frames for the write pump of one connection.
// Consume never blocks: when the queue is full the sink closes itself and the
// connection is torn down, a slow client never stalls a broadcast.
type SocketSink struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger

	overflowed atomic.Bool
}

func NewSocketSink(bufferSize int, log *slog.Logger) *SocketSink {
	return &SocketSink{
		frames: make(chan []byte, bufferSize),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Consume is called by the registry for every broadcast reaching this connection.
func (s *SocketSink) Consume(_ context.Context, e event.DomainEvent) error {
	frame, err := event.Encode(e)
	if err != nil {
		s.log.Error("Unable to encode event", "event", e.EventName(), "error", err)
		return err
	}
	return s.Push(frame)
}

// Push enqueues an already encoded frame, acks go through here.
func (s *SocketSink) Push(frame []byte) error {
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case s.frames <- frame:
		return nil
	default:
		s.log.Warn("Outbound queue full, closing connection", "capacity", cap(s.frames))
		s.overflowed.Store(true)
		s.Close()
		return errors.ErrSlowConsumer
	}
}

// Frames is drained by the write pump.
func (s *SocketSink) Frames() <-chan []byte { return s.frames }

// Done is closed once the sink stops accepting frames.
func (s *SocketSink) Done() <-chan struct{} { return s.done }

func (s *SocketSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Overflowed reports whether the sink closed itself because the client was too slow.
func (s *SocketSink) Overflowed() bool { return s.overflowed.Load() }

// Len and Cap feed the outbound queue gauges.
func (s *SocketSink) Len() int { return len(s.frames) }
func (s *SocketSink) Cap() int { return cap(s.frames) }
