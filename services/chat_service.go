//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/domain/search"
	"chat-sync/errors"
	"chat-sync/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

// ChatCreatedNote is the content of the system note opening every one-to-one chat.
const ChatCreatedNote = "chat created"

const minGroupSize = 3

// CreateChatRequest is the body of POST /chats. The creator is always a participant.
type CreateChatRequest struct {
	Participants []domain.UserID `json:"participants" validate:"required,min=1,max=256,dive,required"`
	IsGroup      bool            `json:"isGroup"`
	Name         string          `json:"name" validate:"required_if=IsGroup true,max=100"`
	Avatar       string          `json:"avatar" validate:"omitempty,url"`
	Admin        domain.UserID   `json:"admin" validate:"required_if=IsGroup true"`
}

type ChatFilter struct {
	Search string
}

type ChatPage struct {
	Chats      []domain.ChatView `json:"chats"`
	TotalItems int               `json:"totalItems"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
}

// OnlineChecker tells whether a user currently has a live connection.
type OnlineChecker interface {
	IsOnline(userID domain.UserID) bool
}

type IChatService interface {
	CreateChat(ctx context.Context, creator domain.UserID, req CreateChatRequest) (domain.ChatView, bool, error)
	GetChats(ctx context.Context, userID domain.UserID, filter ChatFilter, page domain.Page) (ChatPage, error)
	GetChat(ctx context.Context, userID domain.UserID, chatID domain.ChatID) (domain.ChatView, error)
}

type ChatService struct {
	chats    repositories.IChatRepository
	messages repositories.IMessageRepository
	users    repositories.IUserRepository
	index    repositories.IChatIndex
	presence OnlineChecker
	pairs    singleflight.Group
	log      *slog.Logger
	now      func() time.Time
}

func NewChatService(
	chats repositories.IChatRepository,
	messages repositories.IMessageRepository,
	users repositories.IUserRepository,
	index repositories.IChatIndex,
	presence OnlineChecker,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		chats:    chats,
		messages: messages,
		users:    users,
		index:    index,
		presence: presence,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// pairResult is shared by every caller coalesced on the same pair.
// Only the first caller to claim it reports the chat as created.
type pairResult struct {
	chat    domain.Chat
	created bool
	claimed *atomic.Bool
}

func (r pairResult) claim() bool {
	return r.created && r.claimed.CompareAndSwap(false, true)
}

// CreateChat creates a group chat, or returns the one-to-one chat of the pair, creating it on first use.
// The boolean is true only for the call that actually created the chat.
func (s *ChatService) CreateChat(ctx context.Context, creator domain.UserID, req CreateChatRequest) (domain.ChatView, bool, error) {
	if err := auth.Validate(req); err != nil {
		return domain.ChatView{}, false, err
	}
	participants := lo.Uniq(append([]domain.UserID{creator}, req.Participants...))
	users, err := s.users.GetUsers(participants)
	if err != nil {
		return domain.ChatView{}, false, err
	}
	if missing, ok := lo.Find(participants, func(id domain.UserID) bool { _, found := users[id]; return !found }); ok {
		return domain.ChatView{}, false, errors.Validation("unknown participant %s", missing)
	}

	var chat domain.Chat
	created := true
	if req.IsGroup {
		chat, err = s.createGroup(creator, participants, req)
	} else {
		chat, created, err = s.findOrCreatePair(creator, participants)
	}
	if err != nil {
		return domain.ChatView{}, false, err
	}
	if created {
		names := lo.Map(participants, func(id domain.UserID, _ int) string { return users[id].DisplayName })
		if err := s.index.Index(chat, names); err != nil {
			// The chat exists; only search misses it until the next reindex.
			s.log.Warn("Unable to index chat", "chat_id", chat.ID, "error", err)
		}
		s.log.Info("Chat created", "chat_id", chat.ID, "group", chat.IsGroup, "participants", len(participants))
	}

	views, err := s.resolve([]domain.Chat{chat})
	if err != nil {
		return domain.ChatView{}, false, err
	}
	return views[0], created, nil
}

func (s *ChatService) createGroup(creator domain.UserID, participants []domain.UserID, req CreateChatRequest) (domain.Chat, error) {
	if len(participants) < minGroupSize {
		return domain.Chat{}, errors.Validation("a group needs at least %d participants", minGroupSize)
	}
	if !slices.Contains(participants, req.Admin) {
		return domain.Chat{}, errors.Validation("admin %s is not a participant", req.Admin)
	}
	now := s.now()
	return s.chats.CreateGroup(domain.Chat{
		ID:           domain.ChatID(uuid.NewString()),
		Name:         strings.TrimSpace(req.Name),
		Avatar:       req.Avatar,
		IsGroup:      true,
		Participants: participants,
		Admin:        req.Admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// findOrCreatePair dedups one-to-one chats. Concurrent calls for the same pair in this
// process share one lookup; across processes the storage pair key rejects the loser,
// which then reads the winner's chat.
func (s *ChatService) findOrCreatePair(creator domain.UserID, participants []domain.UserID) (domain.Chat, bool, error) {
	if len(participants) != 2 {
		return domain.Chat{}, false, errors.Validation("a one-to-one chat needs exactly two participants")
	}
	a, b := participants[0], participants[1]
	v, err, _ := s.pairs.Do(domain.PairKey(a, b), func() (any, error) {
		existing, err := s.chats.FindByPair(a, b)
		if err == nil {
			return pairResult{chat: existing}, nil
		}
		if !errors.Is(err, errors.ErrChatNotFound) {
			return nil, err
		}

		now := s.now()
		chat := domain.Chat{
			ID:           domain.ChatID(uuid.NewString()),
			Participants: []domain.UserID{a, b},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		note := domain.Message{
			ID:           domain.MessageID(uuid.NewString()),
			ChatID:       chat.ID,
			SenderID:     creator,
			Content:      ChatCreatedNote,
			Type:         domain.MessageTypeNote,
			ReadBy:       []domain.UserID{creator},
			IsSystemNote: true,
			CreatedAt:    now,
		}
		created, err := s.chats.CreateOneToOne(chat, note)
		if errors.Is(err, errors.ErrChatExists) {
			s.log.Debug("Pair created concurrently, reading it back", "pair", domain.PairKey(a, b))
			existing, err := s.chats.FindByPair(a, b)
			if err != nil {
				return nil, err
			}
			return pairResult{chat: existing}, nil
		}
		if err != nil {
			return nil, err
		}
		return pairResult{chat: created, created: true, claimed: &atomic.Bool{}}, nil
	})
	if err != nil {
		return domain.Chat{}, false, err
	}
	res := v.(pairResult)
	return res.chat, res.claim(), nil
}

// GetChats lists the chats of userID, most recent first.
func (s *ChatService) GetChats(ctx context.Context, userID domain.UserID, filter ChatFilter, page domain.Page) (ChatPage, error) {
	page = page.Normalize()
	chats, err := s.memberChats(ctx, userID, filter)
	if err != nil {
		return ChatPage{}, err
	}
	views, err := s.resolve(chats)
	if err != nil {
		return ChatPage{}, err
	}
	slices.SortStableFunc(views, func(a, b domain.ChatView) int {
		return recency(b).Compare(recency(a))
	})

	result := ChatPage{TotalItems: len(views), Page: page.Number, Limit: page.Limit, Chats: []domain.ChatView{}}
	if offset := page.Offset(); offset < len(views) {
		result.Chats = views[offset:min(offset+page.Limit, len(views))]
	}
	return result, nil
}

func (s *ChatService) memberChats(ctx context.Context, userID domain.UserID, filter ChatFilter) ([]domain.Chat, error) {
	query := search.NewSearchQuery(filter.Search)
	if query.IsEmpty() {
		return s.chats.ListByMember(userID)
	}
	ids, err := s.index.Search(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	chats := make([]domain.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := s.chats.Get(id)
		if errors.Is(err, errors.ErrChatNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if chat.HasParticipant(userID) {
			chats = append(chats, chat)
		}
	}
	return chats, nil
}

// GetChat returns one chat for one of its participants.
func (s *ChatService) GetChat(_ context.Context, userID domain.UserID, chatID domain.ChatID) (domain.ChatView, error) {
	chat, err := s.chats.Get(chatID)
	if err != nil {
		return domain.ChatView{}, err
	}
	if !chat.HasParticipant(userID) {
		return domain.ChatView{}, errors.ErrForbidden
	}
	views, err := s.resolve([]domain.Chat{chat})
	if err != nil {
		return domain.ChatView{}, err
	}
	return views[0], nil
}

// resolve loads participants and latest messages of chats with a single user lookup.
func (s *ChatService) resolve(chats []domain.Chat) ([]domain.ChatView, error) {
	latest := make(map[domain.ChatID]domain.Message, len(chats))
	ids := make([]domain.UserID, 0)
	for _, chat := range chats {
		ids = append(ids, chat.Participants...)
		if chat.LatestMessageID == "" {
			continue
		}
		message, err := s.messages.Get(chat.LatestMessageID)
		if errors.Is(err, errors.ErrMessageNotFound) {
			s.log.Warn("Dangling latest message", "chat_id", chat.ID, "message_id", chat.LatestMessageID)
			continue
		}
		if err != nil {
			return nil, err
		}
		latest[chat.ID] = message
		ids = append(ids, message.SenderID)
	}
	users, err := s.users.GetUsers(lo.Uniq(ids))
	if err != nil {
		return nil, err
	}
	public := func(id domain.UserID) domain.PublicUser {
		user, ok := users[id]
		if !ok {
			return domain.PublicUser{ID: id, Online: s.presence.IsOnline(id)}
		}
		return user.Public(s.presence.IsOnline(id))
	}

	return lo.Map(chats, func(chat domain.Chat, _ int) domain.ChatView {
		view := domain.ChatView{
			ID:           chat.ID,
			Name:         chat.Name,
			Avatar:       chat.Avatar,
			IsGroup:      chat.IsGroup,
			Participants: lo.Map(chat.Participants, func(id domain.UserID, _ int) domain.PublicUser { return public(id) }),
			Admin:        chat.Admin,
			CreatedAt:    chat.CreatedAt,
			UpdatedAt:    chat.UpdatedAt,
		}
		if message, ok := latest[chat.ID]; ok {
			populated := domain.Populate(message, public(message.SenderID))
			view.LatestMessage = &populated
		}
		return view
	}), nil
}

func recency(view domain.ChatView) time.Time {
	if view.LatestMessage != nil && view.LatestMessage.CreatedAt.After(view.UpdatedAt) {
		return view.LatestMessage.CreatedAt
	}
	return view.UpdatedAt
}
