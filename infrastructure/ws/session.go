package ws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/sink"

	"github.com/gorilla/websocket"
)

// session is one live socket. The read pump owns inbound frames, the write pump
// is the only writer of data frames.
type session struct {
	conn    domain.Connection
	socket  *websocket.Conn
	sink    *sink.SocketSink
	hub     Hub
	limiter *RateLimiter
	metrics *observability.Metrics
	cfg     Config
	log     *slog.Logger
}

// run blocks until the connection is gone and fully torn down.
func (s *session) run(ctx context.Context) {
	s.hub.Connect(ctx, s.conn, s.sink)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()

	s.readPump(ctx)

	s.hub.Disconnect(context.WithoutCancel(ctx), s.conn)
	s.sink.Close()
	<-writerDone
}

func (s *session) readPump(ctx context.Context) {
	s.socket.SetReadLimit(s.cfg.MaxFrameBytes)
	if err := s.socket.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
		s.log.Debug("Error setting read deadline", "error", err)
	}
	s.socket.SetPongHandler(func(string) error {
		return s.socket.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, frame, err := s.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Connection lost", "error", err)
			}
			return
		}
		s.metrics.Frames.WithLabelValues("in").Inc()
		s.handle(ctx, frame)
	}
}

// handle processes one frame. A panic is reported to this connection only.
func (s *session) handle(ctx context.Context, frame []byte) {
	var ack *uint64
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Recovered from handler panic", "panic", r)
			s.reply(ctx, ack, fmt.Errorf("%w: %v", errors.ErrHandlerPanic, r))
		}
	}()

	env, err := event.Decode(frame)
	if err != nil {
		s.reply(ctx, nil, err)
		return
	}
	ack = env.Ack
	if !s.limiter.Allow() {
		s.metrics.RateLimited.Inc()
		s.reply(ctx, ack, errors.ErrRateLimited)
		return
	}

	result, err := s.hub.Handle(ctx, s.conn, env)
	if err != nil {
		s.reply(ctx, ack, err)
		return
	}
	if ack != nil {
		s.ack(*ack, result)
	}
}

// reply reports err in the ack of the request, or as an error event when there is no ack id.
func (s *session) reply(ctx context.Context, ack *uint64, err error) {
	code := errors.CodeOf(err)
	message := err.Error()
	if code == errors.CodeInternal {
		s.log.Error("Request failed", "error", err)
		message = "internal error"
	} else {
		s.log.Debug("Request rejected", "code", code, "error", err)
	}
	payload := event.ErrorPayload{Code: string(code), Message: message}
	if ack != nil {
		s.ack(*ack, event.AckPayload{OK: false, Error: &payload})
		return
	}
	_ = s.sink.Consume(ctx, payload)
}

func (s *session) ack(id uint64, payload event.AckPayload) {
	frame, err := event.EncodeAck(id, payload)
	if err != nil {
		s.log.Error("Unable to encode ack", "ack", id, "error", err)
		return
	}
	_ = s.sink.Push(frame)
}

func (s *session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.sink.Frames():
			if !s.write(websocket.TextMessage, frame) {
				s.close()
				return
			}
		case <-ticker.C:
			if !s.write(websocket.PingMessage, nil) {
				s.close()
				return
			}
		case <-s.sink.Done():
			if s.sink.Overflowed() {
				s.metrics.SlowConsumers.Inc()
				s.closeWith(websocket.CloseTryAgainLater, errors.ErrSlowConsumer.Error())
				return
			}
			s.flush()
			s.closeWith(websocket.CloseGoingAway, "")
			return
		}
	}
}

// flush writes what is already queued, used on a graceful close.
func (s *session) flush() {
	for {
		select {
		case frame := <-s.sink.Frames():
			if !s.write(websocket.TextMessage, frame) {
				return
			}
		default:
			return
		}
	}
}

func (s *session) write(messageType int, data []byte) bool {
	if err := s.socket.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		s.log.Debug("Error setting write deadline", "error", err)
		return false
	}
	if err := s.socket.WriteMessage(messageType, data); err != nil {
		s.log.Debug("Error writing frame", "error", err)
		return false
	}
	if messageType == websocket.TextMessage {
		s.metrics.Frames.WithLabelValues("out").Inc()
	}
	return true
}

// closeWith sends a close frame then closes the socket, which ends the read pump.
func (s *session) closeWith(code int, text string) {
	deadline := time.Now().Add(s.cfg.WriteWait)
	if err := s.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		s.log.Debug("Error writing close frame", "error", err)
	}
	s.close()
}

func (s *session) close() {
	s.sink.Close()
	if err := s.socket.Close(); err != nil {
		s.log.Debug("Error closing socket", "error", err)
	}
}
