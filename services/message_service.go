//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	"log/slog"

	"chat-sync/auth"
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"
	"chat-sync/repositories"

	"github.com/samber/lo"
)

type MessagePage struct {
	Messages   []domain.PopulatedMessage `json:"messages"`
	TotalItems int                       `json:"totalItems"`
	Page       int                       `json:"page"`
	Limit      int                       `json:"limit"`
}

type MarkReadRequest struct {
	ChatID     domain.ChatID      `json:"chatId" validate:"required"`
	MessageIDs []domain.MessageID `json:"messageIds" validate:"required,min=1,max=500,dive,required"`
}

type IMessageService interface {
	List(ctx context.Context, userID domain.UserID, chatID domain.ChatID, page domain.Page) (MessagePage, error)
	MarkRead(ctx context.Context, userID domain.UserID, req MarkReadRequest) ([]domain.PopulatedMessage, error)
}

type MessageService struct {
	chats       repositories.IChatRepository
	messages    repositories.IMessageRepository
	users       repositories.IUserRepository
	presence    OnlineChecker
	broadcaster contract.IBroadcaster
	log         *slog.Logger
}

func NewMessageService(
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	presence OnlineChecker,
	broadcaster contract.IBroadcaster,
	log *slog.Logger,
) *MessageService {
	return &MessageService{
		chats:       chats,
		messages:    messages,
		users:       users,
		presence:    presence,
		broadcaster: broadcaster,
		log:         log,
	}
}

// List returns one page of history for a participant of the chat, newest first by default.
func (s *MessageService) List(_ context.Context, userID domain.UserID, chatID domain.ChatID, page domain.Page) (MessagePage, error) {
	page = page.Normalize()
	if err := s.checkParticipant(userID, chatID); err != nil {
		return MessagePage{}, err
	}
	messages, total, err := s.messages.List(chatID, page)
	if err != nil {
		return MessagePage{}, err
	}
	populated, err := s.populate(messages)
	if err != nil {
		return MessagePage{}, err
	}
	return MessagePage{Messages: populated, TotalItems: total, Page: page.Number, Limit: page.Limit}, nil
}

// MarkRead adds userID to the readers of the given messages. When the chat's latest message
// changed, the reader's other connections are told through their personal room.
func (s *MessageService) MarkRead(ctx context.Context, userID domain.UserID, req MarkReadRequest) ([]domain.PopulatedMessage, error) {
	if err := auth.Validate(req); err != nil {
		return nil, err
	}
	chat, err := s.chats.Get(req.ChatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, errors.ErrForbidden
	}
	changed, err := s.messages.MarkRead(req.ChatID, userID, lo.Uniq(req.MessageIDs))
	if err != nil {
		return nil, err
	}
	populated, err := s.populate(changed)
	if err != nil {
		return nil, err
	}
	if latest, ok := lo.Find(populated, func(m domain.PopulatedMessage) bool { return m.ID == chat.LatestMessageID }); ok {
		s.broadcaster.Broadcast(ctx, domain.PersonalRoom(userID), event.ChatUpdated{PopulatedMessage: latest}, contract.Exclude{})
	}
	s.log.Debug("Messages read", "chat_id", req.ChatID, "user_id", userID, "changed", len(changed))
	return populated, nil
}

func (s *MessageService) checkParticipant(userID domain.UserID, chatID domain.ChatID) error {
	chat, err := s.chats.Get(chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return errors.ErrForbidden
	}
	return nil
}

func (s *MessageService) populate(messages []domain.Message) ([]domain.PopulatedMessage, error) {
	senders := lo.Uniq(lo.Map(messages, func(m domain.Message, _ int) domain.UserID { return m.SenderID }))
	users, err := s.users.GetUsers(senders)
	if err != nil {
		return nil, err
	}
	populated := make([]domain.PopulatedMessage, 0, len(messages))
	for _, m := range messages {
		sender := domain.PublicUser{ID: m.SenderID}
		if user, ok := users[m.SenderID]; ok {
			sender = user.Public(false)
		}
		sender.Online = s.presence.IsOnline(m.SenderID)
		populated = append(populated, domain.Populate(m, sender))
	}
	return populated, nil
}
