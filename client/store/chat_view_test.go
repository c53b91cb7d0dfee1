package store_test

import (
	"context"
	"testing"

	"chat-sync/client/store"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/mocks"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var accepted = event.AckPayload{OK: true}

func TestChatView_Lifecycle(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	emitter := mocks.NewMockEmitter(ctrl)
	messages := store.NewMessageStore(newHistory("c1", 3), 20)
	latest := message("c1", 3)
	chats := store.NewChatStore("bob")
	chats.SetChats([]domain.ChatView{chat("c1", &latest), chat("c2", nil)})
	view := store.NewChatView(emitter, messages, chats)

	var seen []store.ViewState
	gomock.InOrder(
		emitter.EXPECT().EmitWithAck(gomock.Any(), event.JoinChat, event.JoinChatPayload{ChatID: "c1"}).
			DoAndReturn(func(context.Context, event.Name, any) (event.AckPayload, error) {
				state, _ := view.State()
				seen = append(seen, state)
				return accepted, nil
			}),
		emitter.EXPECT().EmitWithAck(gomock.Any(), event.LeaveChat, event.LeaveChatPayload{ChatID: "c1"}).
			DoAndReturn(func(context.Context, event.Name, any) (event.AckPayload, error) {
				state, _ := view.State()
				seen = append(seen, state)
				return accepted, nil
			}),
		emitter.EXPECT().EmitWithAck(gomock.Any(), event.JoinChat, event.JoinChatPayload{ChatID: "c2"}).Return(accepted, nil),
	)

	// When bob opens c1
	req.NoError(view.Open(ctx, "c1"))

	// Then the view is live with its history and the chat is read
	state, chatID := view.State()
	req.Equal(store.Viewing, state)
	req.Equal(domain.ChatID("c1"), chatID)
	req.Len(messages.Messages(), 3)
	entry, _ := chats.Chat("c1")
	req.False(entry.Unread)

	// And live events of c1 only reach the view
	view.OnTypingStarted("c1", domain.Typist{ID: "alice"})
	view.OnTypingStarted("c2", domain.Typist{ID: "carol"})
	req.Equal([]domain.Typist{{ID: "alice"}}, view.Typists())
	view.OnTypingEnded("c1", domain.Typist{ID: "alice"})
	req.Empty(view.Typists())
	req.True(view.OnNewMessage(message("c1", 4)))
	req.False(view.OnNewMessage(message("c2", 5)))

	// When bob switches to c2
	req.NoError(view.Open(ctx, "c2"))

	// Then c1 was left on the way and its cache dropped
	req.Equal([]store.ViewState{store.Joining, store.Leaving}, seen)
	state, chatID = view.State()
	req.Equal(store.Viewing, state)
	req.Equal(domain.ChatID("c2"), chatID)
}

func TestChatView_Join_Refused(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	emitter := mocks.NewMockEmitter(ctrl)
	emitter.EXPECT().EmitWithAck(gomock.Any(), event.JoinChat, gomock.Any()).
		Return(event.AckPayload{Error: &event.ErrorPayload{Code: string(errors.CodeForbidden), Message: "no"}}, nil)
	view := store.NewChatView(emitter, store.NewMessageStore(mocks.NewMockMessageFetcher(ctrl), 20), nil)

	err := view.Open(context.Background(), "c1")

	req.ErrorIs(err, errors.ErrForbidden)
	state, _ := view.State()
	req.Equal(store.Idle, state)
}

func TestChatView_Close_And_Rejoin(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	emitter := mocks.NewMockEmitter(ctrl)
	emitter.EXPECT().EmitWithAck(gomock.Any(), event.JoinChat, event.JoinChatPayload{ChatID: "c1"}).Return(accepted, nil).Times(2)
	emitter.EXPECT().EmitWithAck(gomock.Any(), event.LeaveChat, event.LeaveChatPayload{ChatID: "c1"}).Return(accepted, nil)
	messages := store.NewMessageStore(newHistory("c1", 1), 20)
	view := store.NewChatView(emitter, messages, nil)
	req.NoError(view.Open(ctx, "c1"))

	// A reconnection joins the room again
	req.NoError(view.Rejoin(ctx))

	req.NoError(view.Close(ctx))
	state, _ := view.State()
	req.Equal(store.Idle, state)
	req.Empty(messages.Messages())

	// Nothing to leave or rejoin once idle
	req.NoError(view.Close(ctx))
	req.NoError(view.Rejoin(ctx))
}

func TestChatView_Keeps_Messages_Arriving_During_First_Page(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	emitter := mocks.NewMockEmitter(ctrl)
	emitter.EXPECT().EmitWithAck(gomock.Any(), event.JoinChat, event.JoinChatPayload{ChatID: "c1"}).Return(accepted, nil)

	// Given m04 is broadcast while the newest page, built before it, is on the wire
	var view *store.ChatView
	var stateDuringLoad store.ViewState
	appended := false
	messages := store.NewMessageStore(busyHistory{history: newHistory("c1", 3), during: func() {
		stateDuringLoad, _ = view.State()
		appended = view.OnNewMessage(message("c1", 4))
	}}, 20)
	view = store.NewChatView(emitter, messages, nil)

	// When the chat is opened
	req.NoError(view.Open(context.Background(), "c1"))

	// Then the live message was kept next to the page
	req.Equal(store.Active, stateDuringLoad)
	req.True(appended)
	req.Equal([]domain.MessageID{"m01", "m02", "m03", "m04"}, store.IDs(messages.Messages()))
}
