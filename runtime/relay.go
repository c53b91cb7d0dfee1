package runtime

import (
	"context"
	"log/slog"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
)

var _ contract.IBroadcaster = (*Relay)(nil)

// Relay delivers locally then hands the broadcast to the backplane for the other nodes.
type Relay struct {
	local     contract.IBroadcaster
	backplane contract.Backplane
	log       *slog.Logger
}

func NewRelay(local contract.IBroadcaster, backplane contract.Backplane, log *slog.Logger) *Relay {
	return &Relay{local: local, backplane: backplane, log: log}
}

// Broadcast returns the local delivery count only.
func (r *Relay) Broadcast(ctx context.Context, room domain.RoomID, evt event.DomainEvent, exclude contract.Exclude) int {
	delivered := r.local.Broadcast(ctx, room, evt, exclude)
	if err := r.backplane.Publish(ctx, room, evt, exclude); err != nil {
		r.log.Warn("Unable to publish to the backplane", "room", room, "event", evt.EventName(), "error", err)
	}
	return delivered
}
