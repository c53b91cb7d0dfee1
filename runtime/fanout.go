package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/domain/mimetypes"
	"chat-sync/errors"
	"chat-sync/moderation"
	"chat-sync/repositories"
	"chat-sync/runtime/workers"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	DefaultLanes      = 8
	DefaultLaneBuffer = 256
)

const (
	jobQueued int32 = iota
	jobRunning
	jobAbandoned
)

// Sanitizer rewrites message content before it is stored.
type Sanitizer interface {
	Sanitize(content string) moderation.Result
}

type sendResult struct {
	message domain.PopulatedMessage
	err     error
}

// Fanout persists messages and pushes them to the rooms that must see them.
// Every send of a chat goes through the same lane, so the order of the chat's
// history is the order in which its members receive the messages.
type Fanout struct {
	lanes       []chan workers.Job
	chats       repositories.IChatRepository
	messages    repositories.IMessageRepository
	users       repositories.IUserRepository
	sanitizer   Sanitizer
	broadcaster contract.IBroadcaster
	log         *slog.Logger
	now         func() time.Time
	done        chan struct{}
	closeOnce   sync.Once

	sent     atomic.Uint64
	rejected atomic.Uint64
}

func NewFanout(
	lanes, laneBuffer int,
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	sanitizer Sanitizer,
	broadcaster contract.IBroadcaster,
	log *slog.Logger,
) *Fanout {
	if lanes <= 0 {
		lanes = DefaultLanes
	}
	if laneBuffer <= 0 {
		laneBuffer = DefaultLaneBuffer
	}
	f := &Fanout{
		chats:       chats,
		messages:    messages,
		users:       users,
		sanitizer:   sanitizer,
		broadcaster: broadcaster,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		done:        make(chan struct{}),
	}
	for range lanes {
		f.lanes = append(f.lanes, make(chan workers.Job, laneBuffer))
	}
	return f
}

// Workers returns one worker per lane, to be run by the supervisor.
func (f *Fanout) Workers() []contract.Worker {
	return lo.Map(f.lanes, func(lane chan workers.Job, i int) contract.Worker {
		return workers.NewLaneWorker(i, lane, f.log)
	})
}

// Channels names the lane queues for the channel capacity worker.
func (f *Fanout) Channels() []workers.NamedChannel {
	return lo.Map(f.lanes, func(lane chan workers.Job, i int) workers.NamedChannel {
		return workers.NamedChannel{Name: fmt.Sprintf("fanout_lane_%d", i), Channel: lane}
	})
}

func (f *Fanout) lane(chatID domain.ChatID) chan workers.Job {
	return f.lanes[xxhash.Sum64String(string(chatID))%uint64(len(f.lanes))]
}

// Send validates, stores and broadcasts one message on behalf of conn.
// It returns once the message is persisted and handed to every recipient sink.
func (f *Fanout) Send(ctx context.Context, conn domain.Connection, payload event.SendMessagePayload) (domain.PopulatedMessage, error) {
	if err := auth.Validate(payload); err != nil {
		f.rejected.Add(1)
		return domain.PopulatedMessage{}, err
	}

	select {
	case <-f.done:
		return domain.PopulatedMessage{}, errors.ErrShuttingDown
	default:
	}

	// A queued job either runs to completion or is abandoned before it starts,
	// so a send that fails with ErrShuttingDown or a context error was never stored.
	var state atomic.Int32
	reply := make(chan sendResult, 1)
	job := func(context.Context) {
		if !state.CompareAndSwap(jobQueued, jobRunning) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				f.log.Error("Send panicked", "chat_id", payload.ChatID, "panic", r)
				reply <- sendResult{err: fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)}
			}
		}()
		message, err := f.process(ctx, conn, payload)
		reply <- sendResult{message: message, err: err}
	}

	select {
	case f.lane(payload.ChatID) <- job:
	case <-f.done:
		return domain.PopulatedMessage{}, errors.ErrShuttingDown
	case <-ctx.Done():
		return domain.PopulatedMessage{}, ctx.Err()
	}

	var abandoned error
	select {
	case res := <-reply:
		return f.settle(res)
	case <-f.done:
		abandoned = errors.ErrShuttingDown
	case <-ctx.Done():
		abandoned = ctx.Err()
	}
	if state.CompareAndSwap(jobQueued, jobAbandoned) {
		f.log.Debug("Send abandoned before running", "chat_id", payload.ChatID, "reason", abandoned)
		return domain.PopulatedMessage{}, abandoned
	}
	// Already running: its outcome is the send's outcome.
	return f.settle(<-reply)
}

func (f *Fanout) settle(res sendResult) (domain.PopulatedMessage, error) {
	if res.err != nil {
		f.rejected.Add(1)
	} else {
		f.sent.Add(1)
	}
	return res.message, res.err
}

func (f *Fanout) process(ctx context.Context, conn domain.Connection, payload event.SendMessagePayload) (domain.PopulatedMessage, error) {
	chat, err := f.chats.Get(payload.ChatID)
	if err != nil {
		return domain.PopulatedMessage{}, err
	}
	if !chat.HasParticipant(conn.UserID) {
		return domain.PopulatedMessage{}, errors.ErrForbidden
	}
	if err := f.checkContent(payload); err != nil {
		return domain.PopulatedMessage{}, err
	}
	if payload.ReplyTo != "" {
		target, err := f.messages.Get(payload.ReplyTo)
		if errors.Is(err, errors.ErrMessageNotFound) || (err == nil && target.ChatID != chat.ID) {
			return domain.PopulatedMessage{}, errors.Validation("reply target %s is not in this chat", payload.ReplyTo)
		}
		if err != nil {
			return domain.PopulatedMessage{}, err
		}
	}

	content := payload.Content
	if f.sanitizer != nil && content != "" {
		result := f.sanitizer.Sanitize(content)
		if len(result.CensoredWords) > 0 {
			f.log.Debug("Content censored", "chat_id", chat.ID, "user_id", conn.UserID,
				"words", len(result.CensoredWords), "language", result.Language)
		}
		content = result.Content
	}

	stored, err := f.messages.Append(domain.Message{
		ID:        domain.MessageID(uuid.NewString()),
		ChatID:    chat.ID,
		SenderID:  conn.UserID,
		Content:   content,
		Type:      payload.MessageType,
		MediaRefs: payload.MediaRefs,
		ReadBy:    []domain.UserID{conn.UserID},
		ReplyToID: payload.ReplyTo,
		CreatedAt: f.now(),
	})
	if err != nil {
		return domain.PopulatedMessage{}, err
	}

	populated := domain.Populate(stored, f.sender(conn))
	f.broadcaster.Broadcast(ctx, domain.ChatRoom(chat.ID), event.MessagePosted{PopulatedMessage: populated},
		contract.Exclude{Conn: conn.ID})
	for _, participant := range chat.Participants {
		f.broadcaster.Broadcast(ctx, domain.PersonalRoom(participant), event.ChatUpdated{PopulatedMessage: populated},
			contract.Exclude{})
	}
	return populated, nil
}

func (f *Fanout) checkContent(payload event.SendMessagePayload) error {
	switch payload.MessageType {
	case domain.MessageTypeText:
		if strings.TrimSpace(payload.Content) == "" {
			return errors.Validation("text message without content")
		}
	case domain.MessageTypeMedia:
		if len(payload.MediaRefs) == 0 {
			return errors.Validation("media message without media refs")
		}
		for _, ref := range payload.MediaRefs {
			if !mimetypes.IsAttachable(ref.MimeType) {
				return fmt.Errorf("%w: %s", errors.ErrUnsupportedMedia, ref.MimeType)
			}
		}
	default:
		return errors.Validation("message type %q cannot be sent", payload.MessageType)
	}
	return nil
}

// sender resolves the public profile of the author, falling back to the connection identity.
func (f *Fanout) sender(conn domain.Connection) domain.PublicUser {
	user, err := f.users.GetUser(conn.UserID)
	if err != nil {
		f.log.Debug("Sender profile unavailable", "user_id", conn.UserID, "error", err)
		return domain.PublicUser{ID: conn.UserID, DisplayName: conn.DisplayName, Online: true}
	}
	return user.Public(true)
}

// Pending is the number of sends waiting in the lanes.
func (f *Fanout) Pending() int {
	return lo.SumBy(f.lanes, func(lane chan workers.Job) int { return len(lane) })
}

func (f *Fanout) Sent() uint64     { return f.sent.Load() }
func (f *Fanout) Rejected() uint64 { return f.rejected.Load() }

// Close makes future sends and the ones still queued fail with ErrShuttingDown.
// A send already being processed completes.
func (f *Fanout) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
