// Package runtime holds the live state of the server: which connection is in which room,
// who is online, who is typing, and the lanes that order message fan-out.
// It contains no storage code; persistence goes through the repositories.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/observability"
	"chat-sync/repositories"
)

// LobbyNotifier announces presence transitions to every live connection but the user's own.
type LobbyNotifier struct {
	broadcaster contract.IBroadcaster
}

var _ contract.PresenceListener = LobbyNotifier{}

func NewLobbyNotifier(broadcaster contract.IBroadcaster) LobbyNotifier {
	return LobbyNotifier{broadcaster: broadcaster}
}

func (n LobbyNotifier) UserOnline(ctx context.Context, user domain.PublicUser) {
	n.broadcaster.Broadcast(ctx, domain.Lobby, event.UserWentOnline{UserData: user}, contract.Exclude{User: user.ID})
}

func (n LobbyNotifier) UserOffline(ctx context.Context, userID domain.UserID) {
	n.broadcaster.Broadcast(ctx, domain.Lobby, event.UserWentOffline{UserID: userID}, contract.Exclude{User: userID})
}

// Hub is the entry point of every connection: lifecycle and inbound events.
type Hub struct {
	registry *Registry
	presence *Presence
	typing   *Typing
	fanout   *Fanout
	chats    repositories.IChatRepository
	log      *slog.Logger
}

func NewHub(registry *Registry, presence *Presence, typing *Typing, fanout *Fanout,
	chats repositories.IChatRepository, log *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		presence: presence,
		typing:   typing,
		fanout:   fanout,
		chats:    chats,
		log:      log,
	}
}

// Connect registers an authenticated connection and greets it.
func (h *Hub) Connect(ctx context.Context, conn domain.Connection, sink contract.EventSink) event.ConnectedPayload {
	h.registry.Register(conn, sink)
	h.presence.OnConnect(ctx, conn)
	greeting := event.ConnectedPayload{
		ConnectionID: conn.ID,
		User:         conn.UserID,
		OnlineUsers:  h.presence.OnlineUsers(),
	}
	if err := sink.Consume(ctx, greeting); err != nil {
		h.log.Warn("Unable to greet connection", "conn_id", conn.ID, "error", err)
	}
	h.log.Debug("Connection registered", "conn_id", conn.ID, "user_id", conn.UserID)
	return greeting
}

// Disconnect tears a connection down: rooms first, then its typing states, then presence.
func (h *Hub) Disconnect(ctx context.Context, conn domain.Connection) {
	rooms := h.registry.Unregister(conn.ID)
	h.typing.StopConnection(ctx, conn.ID)
	h.presence.OnDisconnect(ctx, conn.UserID)
	h.log.Debug("Connection closed", "conn_id", conn.ID, "user_id", conn.UserID, "rooms", len(rooms))
}

// Join subscribes conn to the room of a chat it participates in.
func (h *Hub) Join(ctx context.Context, conn domain.Connection, chatID domain.ChatID) error {
	chat, err := h.chats.Get(chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(conn.UserID) {
		return errors.ErrForbidden
	}
	if !h.registry.Join(conn.ID, domain.ChatRoom(chatID)) {
		return errors.ErrConnectionClosed
	}
	return nil
}

func (h *Hub) Leave(_ context.Context, conn domain.Connection, chatID domain.ChatID) {
	h.registry.Leave(conn.ID, domain.ChatRoom(chatID))
}

// StartTyping requires the connection to be viewing the chat.
func (h *Hub) StartTyping(ctx context.Context, conn domain.Connection, chatID domain.ChatID) error {
	if !h.registry.InRoom(conn.ID, domain.ChatRoom(chatID)) {
		return errors.ErrForbidden
	}
	h.typing.Start(ctx, conn, chatID)
	return nil
}

func (h *Hub) StopTyping(ctx context.Context, conn domain.Connection, chatID domain.ChatID) {
	h.typing.Stop(ctx, chatID, conn.UserID)
}

func (h *Hub) Send(ctx context.Context, conn domain.Connection, payload event.SendMessagePayload) (domain.PopulatedMessage, error) {
	return h.fanout.Send(ctx, conn, payload)
}

// Handle routes one inbound envelope. The returned ack is only sent when the envelope carried an ack id.
func (h *Hub) Handle(ctx context.Context, conn domain.Connection, env event.Envelope) (event.AckPayload, error) {
	switch env.Event {
	case event.JoinChat:
		var payload event.JoinChatPayload
		if err := decode(env, &payload); err != nil {
			return event.AckPayload{}, err
		}
		if err := h.Join(ctx, conn, payload.ChatID); err != nil {
			return event.AckPayload{}, err
		}
	case event.LeaveChat:
		var payload event.LeaveChatPayload
		if err := decode(env, &payload); err != nil {
			return event.AckPayload{}, err
		}
		h.Leave(ctx, conn, payload.ChatID)
	case event.SendMessage:
		var payload event.SendMessagePayload
		if err := env.DecodeData(&payload); err != nil {
			return event.AckPayload{}, err
		}
		message, err := h.Send(ctx, conn, payload)
		if err != nil {
			return event.AckPayload{}, err
		}
		return event.AckPayload{OK: true, Message: &message}, nil
	case event.StartTyping:
		var payload event.TypingPayload
		if err := decode(env, &payload); err != nil {
			return event.AckPayload{}, err
		}
		if err := h.StartTyping(ctx, conn, payload.ChatID); err != nil {
			return event.AckPayload{}, err
		}
	case event.EndTyping:
		var payload event.TypingPayload
		if err := decode(env, &payload); err != nil {
			return event.AckPayload{}, err
		}
		h.StopTyping(ctx, conn, payload.ChatID)
	default:
		return event.AckPayload{}, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Event)
	}
	return event.AckPayload{OK: true}, nil
}

func decode(env event.Envelope, out any) error {
	if err := env.DecodeData(out); err != nil {
		return err
	}
	return auth.Validate(out)
}

// Stats feeds the monitor and the prometheus gauges.
func (h *Hub) Stats() observability.LiveStats {
	return observability.LiveStats{
		Connections: h.registry.Connections(),
		Rooms:       h.registry.Rooms(),
		OnlineUsers: h.presence.OnlineCount(),
		Typing:      h.typing.Active(),
		PendingSend: h.fanout.Pending(),
		Sent:        h.fanout.Sent(),
		Rejected:    h.fanout.Rejected(),
	}
}

// Close stops the timers and rejects the sends still queued.
func (h *Hub) Close() {
	h.fanout.Close()
	h.typing.Close()
	h.presence.Close()
}
