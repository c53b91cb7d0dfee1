// Package client is the Go client of the chat server: a reconnecting socket with acks
// and an HTTP API for the REST collaborators.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"chat-sync/domain/event"
	"chat-sync/errors"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc/backoff"
)

// ErrAuthTerminal is returned by Run once the credentials cannot be recovered.
var ErrAuthTerminal = fmt.Errorf("%w: authentication retries exhausted", errors.ErrUnauthorized)

// TokenRefresher renews a token rejected by the handshake, see API.Refresh.
type TokenRefresher interface {
	Refresh(ctx context.Context, token string) (string, error)
}

type RefresherFunc func(ctx context.Context, token string) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// Handler receives the server events registered with On. It runs on the read loop
// and must not wait for an ack itself.
type Handler func(env event.Envelope)

type Config struct {
	URL        string
	MaxRetries int
	Backoff    backoff.Config
	AckTimeout time.Duration
	WriteWait  time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:        url,
		MaxRetries: 5,
		Backoff: backoff.Config{
			BaseDelay:  200 * time.Millisecond,
			Multiplier: 1.6,
			Jitter:     0.2,
			MaxDelay:   5 * time.Second,
		},
		AckTimeout: 10 * time.Second,
		WriteWait:  10 * time.Second,
	}
}

// Conn is a socket to the server that reconnects until its context ends.
type Conn struct {
	cfg       Config
	dialer    *websocket.Dialer
	refresher TokenRefresher
	log       *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	token    string
	socket   *websocket.Conn
	handlers map[event.Name][]Handler
	pending  map[uint64]chan event.AckPayload
	nextAck  uint64

	writeMu sync.Mutex
}

func New(cfg Config, token string, refresher TokenRefresher, log *slog.Logger) *Conn {
	return &Conn{
		cfg:       cfg,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		refresher: refresher,
		log:       log,
		sleep:     sleep,
		token:     token,
		handlers:  make(map[event.Name][]Handler),
		pending:   make(map[uint64]chan event.AckPayload),
	}
}

// On registers h for the server event name. Register handlers before Run.
func (c *Conn) On(name event.Name, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = append(c.handlers[name], h)
}

func (c *Conn) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken installs a renewed token and drops the socket so Run reconnects with it.
func (c *Conn) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	socket := c.socket
	c.mu.Unlock()
	if socket != nil {
		_ = socket.Close()
	}
}

// Run keeps the socket connected until ctx ends, which returns nil.
// It returns ErrAuthTerminal when the server keeps refusing the credentials.
func (c *Conn) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.drop)
	defer stop()

	for {
		socket, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.read(socket)
		c.detach(socket)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Info("Connection lost, reconnecting", "url", c.cfg.URL)
	}
}

// connect dials with exponential backoff. A 401 triggers a token refresh before the next attempt.
func (c *Conn) connect(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	unauthorized := false
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if attempt > c.cfg.MaxRetries {
				if unauthorized {
					return nil, ErrAuthTerminal
				}
				return nil, fmt.Errorf("dial %s after %d attempts: %w", c.cfg.URL, attempt, lastErr)
			}
			if err := c.sleep(ctx, c.delay(attempt-1)); err != nil {
				return nil, err
			}
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+c.Token())
		socket, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			c.attach(socket)
			return socket, nil
		}
		lastErr = err
		unauthorized = resp != nil && resp.StatusCode == http.StatusUnauthorized
		if !unauthorized {
			c.log.Debug("Dial failed", "attempt", attempt, "error", err)
			continue
		}

		if c.refresher == nil {
			return nil, ErrAuthTerminal
		}
		fresh, err := c.refresher.Refresh(ctx, c.Token())
		switch {
		case errors.Is(err, errors.ErrUnauthorized):
			c.log.Warn("Token cannot be refreshed", "error", err)
			return nil, ErrAuthTerminal
		case err != nil:
			c.log.Warn("Token refresh failed", "attempt", attempt, "error", err)
		default:
			c.mu.Lock()
			c.token = fresh
			c.mu.Unlock()
		}
	}
}

// delay is the wait before retry n, following the grpc backoff algorithm.
func (c *Conn) delay(n int) time.Duration {
	cfg := c.cfg.Backoff
	d := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(n))
	d = min(d, float64(cfg.MaxDelay))
	d *= 1 + cfg.Jitter*(rand.Float64()*2-1)
	return max(time.Duration(d), 0)
}

func (c *Conn) read(socket *websocket.Conn) {
	for {
		_, frame, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Read failed", "error", err)
			}
			return
		}
		env, err := event.Decode(frame)
		if err != nil {
			c.log.Warn("Dropping malformed frame", "error", err)
			continue
		}
		if env.Event == event.Ack && env.Ack != nil {
			c.resolve(*env.Ack, env)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Conn) dispatch(env event.Envelope) {
	c.mu.Lock()
	handlers := c.handlers[env.Event]
	c.mu.Unlock()
	for _, h := range handlers {
		h(env)
	}
}

func (c *Conn) resolve(id uint64, env event.Envelope) {
	var ack event.AckPayload
	if err := env.DecodeData(&ack); err != nil {
		ack = event.AckPayload{Error: &event.ErrorPayload{Code: string(errors.CodeOf(err)), Message: err.Error()}}
	}
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if ok {
		ch <- ack
	}
}

func (c *Conn) attach(socket *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.socket = socket
}

// detach forgets socket and fails the acks still waiting on it.
func (c *Conn) detach(socket *websocket.Conn) {
	c.mu.Lock()
	if c.socket == socket {
		c.socket = nil
	}
	pending := c.pending
	c.pending = make(map[uint64]chan event.AckPayload)
	c.mu.Unlock()

	_ = socket.Close()
	for _, ch := range pending {
		close(ch)
	}
}

func (c *Conn) drop() {
	c.mu.Lock()
	socket := c.socket
	c.mu.Unlock()
	if socket == nil {
		return
	}
	c.writeMu.Lock()
	_ = socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = socket.Close()
}

// Emit sends a request without waiting for an answer.
func (c *Conn) Emit(name event.Name, data any) error {
	return c.write(name, data, nil)
}

// EmitWithAck sends a request and waits for its ack, at most AckTimeout.
// A refusal by the server is a valid ack: the error is only set when no ack came back.
func (c *Conn) EmitWithAck(ctx context.Context, name event.Name, data any) (event.AckPayload, error) {
	ch := make(chan event.AckPayload, 1)
	c.mu.Lock()
	c.nextAck++
	id := c.nextAck
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(name, data, &id); err != nil {
		c.forget(id)
		return event.AckPayload{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AckTimeout)
	defer cancel()
	select {
	case ack, ok := <-ch:
		if !ok {
			return event.AckPayload{}, errors.ErrConnectionClosed
		}
		return ack, nil
	case <-ctx.Done():
		c.forget(id)
		return event.AckPayload{}, fmt.Errorf("%s ack %d: %w", name, id, ctx.Err())
	}
}

func (c *Conn) forget(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Conn) write(name event.Name, data any, ack *uint64) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	c.mu.Lock()
	socket := c.socket
	c.mu.Unlock()
	if socket == nil {
		return errors.ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := socket.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
	}
	if err := socket.WriteJSON(event.Envelope{Event: name, Data: raw, Ack: ack}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
