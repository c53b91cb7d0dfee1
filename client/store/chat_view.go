package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"chat-sync/domain"
	"chat-sync/domain/event"
)

// ViewState is a step of the lifecycle of the chat being viewed.
type ViewState int

const (
	Idle ViewState = iota
	Joining
	Active
	Viewing
	Leaving
)

func (s ViewState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Active:
		return "active"
	case Viewing:
		return "viewing"
	case Leaving:
		return "leaving"
	}
	return fmt.Sprintf("ViewState(%d)", int(s))
}

// ChatView drives join-chat and leave-chat for the chat on screen and routes live
// events of that chat to its MessageStore. Transitions are serialized.
type ChatView struct {
	emitter  Emitter
	messages *MessageStore
	chats    *ChatStore

	transition sync.Mutex

	mu      sync.Mutex
	state   ViewState
	chatID  domain.ChatID
	typists []domain.Typist
}

func NewChatView(emitter Emitter, messages *MessageStore, chats *ChatStore) *ChatView {
	return &ChatView{emitter: emitter, messages: messages, chats: chats}
}

// Open leaves the current chat if any, joins chatID and loads its newest page.
func (v *ChatView) Open(ctx context.Context, chatID domain.ChatID) error {
	v.transition.Lock()
	defer v.transition.Unlock()

	if err := v.leave(ctx); err != nil {
		return err
	}

	v.set(Joining, chatID)
	if err := v.request(ctx, event.JoinChat, event.JoinChatPayload{ChatID: chatID}); err != nil {
		v.set(Idle, "")
		return fmt.Errorf("join %s: %w", chatID, err)
	}

	v.set(Active, chatID)
	if err := v.messages.LoadMessages(ctx, chatID, true); err != nil {
		_ = v.leave(context.WithoutCancel(ctx))
		return err
	}
	if v.chats != nil {
		v.chats.MarkRead(chatID)
	}
	v.set(Viewing, chatID)
	return nil
}

// Close leaves the current chat, on switch or unmount.
func (v *ChatView) Close(ctx context.Context) error {
	v.transition.Lock()
	defer v.transition.Unlock()
	return v.leave(ctx)
}

// Rejoin joins the current chat again after the socket reconnected. Rooms do not survive a reconnection.
func (v *ChatView) Rejoin(ctx context.Context) error {
	v.transition.Lock()
	defer v.transition.Unlock()
	state, chatID := v.State()
	if state != Viewing {
		return nil
	}
	return v.request(ctx, event.JoinChat, event.JoinChatPayload{ChatID: chatID})
}

func (v *ChatView) leave(ctx context.Context) error {
	state, chatID := v.State()
	if state == Idle {
		return nil
	}
	v.set(Leaving, chatID)
	err := v.request(ctx, event.LeaveChat, event.LeaveChatPayload{ChatID: chatID})
	v.messages.ResetMessages(chatID)
	v.set(Idle, "")
	if err != nil {
		return fmt.Errorf("leave %s: %w", chatID, err)
	}
	return nil
}

// OnNewMessage appends a message of the opened chat. Messages arriving while the first page is
// in flight are kept too: they were persisted after the page and would be lost otherwise.
func (v *ChatView) OnNewMessage(msg domain.PopulatedMessage) bool {
	state, chatID := v.State()
	if (state != Active && state != Viewing) || msg.ChatID != chatID {
		return false
	}
	return v.messages.Append(msg)
}

func (v *ChatView) OnTypingStarted(chatID domain.ChatID, user domain.Typist) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != Viewing || chatID != v.chatID {
		return
	}
	if !slices.ContainsFunc(v.typists, func(t domain.Typist) bool { return t.ID == user.ID }) {
		v.typists = append(v.typists, user)
	}
}

func (v *ChatView) OnTypingEnded(chatID domain.ChatID, user domain.Typist) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if chatID != v.chatID {
		return
	}
	v.typists = slices.DeleteFunc(v.typists, func(t domain.Typist) bool { return t.ID == user.ID })
}

// Typists lists who is typing in the viewed chat.
func (v *ChatView) Typists() []domain.Typist {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.typists)
}

func (v *ChatView) State() (ViewState, domain.ChatID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state, v.chatID
}

func (v *ChatView) set(state ViewState, chatID domain.ChatID) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if chatID != v.chatID {
		v.typists = nil
	}
	v.state, v.chatID = state, chatID
}

func (v *ChatView) request(ctx context.Context, name event.Name, data any) error {
	ack, err := v.emitter.EmitWithAck(ctx, name, data)
	if err != nil {
		return err
	}
	return AckError(ack)
}
