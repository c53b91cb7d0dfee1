package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/observability"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type stubHub struct {
	mu           sync.Mutex
	handle       func(env event.Envelope) (event.AckPayload, error)
	disconnected chan domain.ConnID
}

func (h *stubHub) Connect(ctx context.Context, conn domain.Connection, sink contract.EventSink) event.ConnectedPayload {
	greeting := event.ConnectedPayload{ConnectionID: conn.ID, User: conn.UserID}
	_ = sink.Consume(ctx, greeting)
	return greeting
}

func (h *stubHub) Disconnect(_ context.Context, conn domain.Connection) {
	h.disconnected <- conn.ID
}

func (h *stubHub) Handle(_ context.Context, _ domain.Connection, env event.Envelope) (event.AckPayload, error) {
	h.mu.Lock()
	handle := h.handle
	h.mu.Unlock()
	return handle(env)
}

type noStats struct{}

func (noStats) Stats() observability.LiveStats { return observability.LiveStats{} }

type fixture struct {
	server *Server
	http   *httptest.Server
	hub    *stubHub
	tokens *auth.TokenManager
}

func newFixture(t *testing.T, cfg Config) *fixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	tokens := auth.NewTokenManager("secret", time.Hour, time.Minute)
	hub := &stubHub{
		disconnected: make(chan domain.ConnID, 8),
		handle: func(env event.Envelope) (event.AckPayload, error) {
			return event.AckPayload{OK: true}, nil
		},
	}
	metrics := observability.NewMetrics(noStats{})
	server := NewServer(hub, auth.NewSessionGate(tokens, log), metrics, cfg, log)
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)
	return &fixture{server: server, http: httpServer, hub: hub, tokens: tokens}
}

func (f *fixture) dial(t *testing.T, token string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(f.http.URL, "http")
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func (f *fixture) login(t *testing.T, userID domain.UserID) *websocket.Conn {
	token, err := f.tokens.GenerateToken(domain.User{ID: userID, DisplayName: string(userID)})
	require.NoError(t, err)
	conn, _, err := f.dial(t, token)
	require.NoError(t, err)
	require.Equal(t, event.Connected, read(t, conn).Event)
	return conn
}

func read(t *testing.T, conn *websocket.Conn) event.Envelope {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := event.Decode(frame)
	require.NoError(t, err)
	return env
}

func send(t *testing.T, conn *websocket.Conn, name event.Name, ack uint64, data any) {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(event.Envelope{Event: name, Data: raw, Ack: &ack}))
}

func TestServer_Rejects_Unauthenticated_Handshake(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, DefaultConfig())

	// When a client dials without a token
	conn, resp, err := f.dial(t, "")

	// Then no socket is opened and the refusal is distinguishable
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Nil(conn)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Acks_Requests(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, DefaultConfig())
	conn := f.login(t, "alice")

	// When alice joins a chat with an ack id
	send(t, conn, event.JoinChat, 7, event.JoinChatPayload{ChatID: "c1"})

	// Then the ack answers that id
	env := read(t, conn)
	req.Equal(event.Ack, env.Event)
	req.Equal(uint64(7), *env.Ack)
	var ack event.AckPayload
	req.NoError(env.DecodeData(&ack))
	req.True(ack.OK)
}

func TestServer_Reports_Errors_Per_Connection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, DefaultConfig())
	calls := 0
	f.hub.handle = func(env event.Envelope) (event.AckPayload, error) {
		calls++
		switch calls {
		case 1:
			panic("boom")
		case 2:
			return event.AckPayload{}, errors.ErrForbidden
		}
		return event.AckPayload{OK: true}, nil
	}
	conn := f.login(t, "alice")

	// When the handler panics on a request without ack
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-chat","data":{"chatId":"c1"}}`)))

	// Then an internal error event is sent and the details stay on the server
	env := read(t, conn)
	req.Equal(event.Error, env.Event)
	var payload event.ErrorPayload
	req.NoError(env.DecodeData(&payload))
	req.Equal(string(errors.CodeInternal), payload.Code)
	req.Equal("internal error", payload.Message)

	// When the next request is refused
	send(t, conn, event.JoinChat, 1, event.JoinChatPayload{ChatID: "c1"})

	// Then the failure travels in the ack
	var ack event.AckPayload
	req.NoError(read(t, conn).DecodeData(&ack))
	req.False(ack.OK)
	req.Equal(string(errors.CodeForbidden), ack.Error.Code)

	// And the connection is still usable
	send(t, conn, event.JoinChat, 2, event.JoinChatPayload{ChatID: "c1"})
	req.NoError(read(t, conn).DecodeData(&ack))
	req.True(ack.OK)
}

func TestServer_Malformed_Frame(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, DefaultConfig())
	conn := f.login(t, "alice")

	// When garbage is sent
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":`)))

	// Then a validation error event comes back
	env := read(t, conn)
	var payload event.ErrorPayload
	req.NoError(env.DecodeData(&payload))
	req.Equal(event.Error, env.Event)
	req.Equal(string(errors.CodeValidation), payload.Code)
}

func TestServer_Rate_Limit(t *testing.T) {
	req := require.New(t)
	cfg := DefaultConfig()
	cfg.RateBurst = 2
	cfg.RateInterval = time.Hour
	f := newFixture(t, cfg)
	conn := f.login(t, "alice")

	// When three requests arrive within the window
	for i := uint64(1); i <= 3; i++ {
		send(t, conn, event.LeaveChat, i, event.LeaveChatPayload{ChatID: "c1"})
	}

	// Then the third one is refused
	var ack event.AckPayload
	for i := 0; i < 2; i++ {
		req.NoError(read(t, conn).DecodeData(&ack))
		req.True(ack.OK)
	}
	req.NoError(read(t, conn).DecodeData(&ack))
	req.False(ack.OK)
	req.Equal(string(errors.CodeRateLimited), ack.Error.Code)
}

func TestServer_Shutdown(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, DefaultConfig())
	conn := f.login(t, "alice")

	// When the server shuts down
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req.NoError(f.server.Shutdown(ctx))

	// Then the client receives a going away close frame
	req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseGoingAway), err)

	// And the connection went through the hub teardown
	select {
	case <-f.hub.disconnected:
	case <-time.After(time.Second):
		req.Fail("connection was not torn down")
	}

	// And new handshakes are refused
	_, resp, err := f.dial(t, "whatever")
	req.Error(err)
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}
