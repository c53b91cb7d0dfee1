// Package ws exposes the hub over websockets: authenticated handshake, one read
// pump and one write pump per connection.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/observability"
	"chat-sync/sink"

	"github.com/gorilla/websocket"
)

// Hub is the part of runtime.Hub driven by the transport.
type Hub interface {
	Connect(ctx context.Context, conn domain.Connection, sink contract.EventSink) event.ConnectedPayload
	Disconnect(ctx context.Context, conn domain.Connection)
	Handle(ctx context.Context, conn domain.Connection, env event.Envelope) (event.AckPayload, error)
}

// Authenticator attaches an identity to a handshake, see auth.SessionGate.
type Authenticator interface {
	Authenticate(r *http.Request) (domain.Connection, error)
}

type Config struct {
	SendBuffer     int
	MaxFrameBytes  int64
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	RateBurst      int
	RateInterval   time.Duration
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		SendBuffer:    256,
		MaxFrameBytes: 64 * 1024,
		PingInterval:  54 * time.Second,
		PongWait:      60 * time.Second,
		WriteWait:     10 * time.Second,
		RateBurst:     20,
		RateInterval:  time.Second,
	}
}

// Server upgrades authenticated requests and runs their sessions until shutdown.
type Server struct {
	hub      Hub
	gate     Authenticator
	metrics  *observability.Metrics
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[domain.ConnID]*session
	closing  bool
	wg       sync.WaitGroup
}

func NewServer(hub Hub, gate Authenticator, metrics *observability.Metrics, cfg Config, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		hub:      hub,
		gate:     gate,
		metrics:  metrics,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[domain.ConnID]*session),
	}
	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}
	return s
}

// ServeHTTP authenticates before upgrading: a rejected client never gets a socket.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.isClosing() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.gate.Authenticate(r)
	if err != nil {
		s.metrics.Handshakes.WithLabelValues("unauthorized").Inc()
		auth.Reject(w)
		return
	}
	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.metrics.Handshakes.WithLabelValues("upgrade_failed").Inc()
		s.log.Debug("Upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	log := s.log.With("conn_id", conn.ID, "user_id", conn.UserID)
	sess := &session{
		conn:    conn,
		socket:  socket,
		sink:    sink.NewSocketSink(s.cfg.SendBuffer, log),
		hub:     s.hub,
		limiter: NewRateLimiter(s.cfg.RateBurst, s.cfg.RateInterval),
		metrics: s.metrics,
		cfg:     s.cfg,
		log:     log,
	}
	if !s.track(sess) {
		sess.closeWith(websocket.CloseGoingAway, "server is shutting down")
		return
	}
	defer s.untrack(sess)
	s.metrics.Handshakes.WithLabelValues("accepted").Inc()

	sess.run(s.ctx)
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess.conn.ID] = sess
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.conn.ID)
	s.mu.Unlock()
	s.wg.Done()
}

// Shutdown refuses new handshakes, closes every session and waits for their teardown.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, sess := range s.sessions {
		sess.sink.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	defer s.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
