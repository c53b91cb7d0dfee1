//go:generate go run go.uber.org/mock/mockgen -source=chat_index.go -destination=../mocks/mock_chat_index.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"strconv"

	"chat-sync/domain"
	"chat-sync/domain/search"
	"chat-sync/errors"

	"github.com/blugelabs/bluge"
)

const (
	fieldName        = "name"
	fieldParticipant = "participant"
	fieldMember      = "member"
	fieldGroup       = "group"
	maxSearchResults = 1000
)

type IChatIndex interface {
	Index(chat domain.Chat, participantNames []string) error
	Search(ctx context.Context, member domain.UserID, query search.Query) ([]domain.ChatID, error)
}

// ChatIndex is a full text index of chat names and participant display names.
type ChatIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewChatIndex(writer *bluge.Writer, log *slog.Logger) *ChatIndex {
	return &ChatIndex{writer: writer, log: log}
}

// Index adds or replaces the document of a chat.
func (i *ChatIndex) Index(chat domain.Chat, participantNames []string) error {
	doc := bluge.NewDocument(string(chat.ID))
	if chat.Name != "" {
		doc.AddField(bluge.NewTextField(fieldName, chat.Name))
	}
	for _, name := range participantNames {
		doc.AddField(bluge.NewTextField(fieldParticipant, name))
	}
	for _, member := range chat.Participants {
		doc.AddField(bluge.NewKeywordField(fieldMember, string(member)))
	}
	doc.AddField(bluge.NewKeywordField(fieldGroup, strconv.FormatBool(chat.IsGroup)))

	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return errors.Transient(err)
	}
	return nil
}

// Search returns the chats of member matching every term of the query.
func (i *ChatIndex) Search(ctx context.Context, member domain.UserID, query search.Query) ([]domain.ChatID, error) {
	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(member)).SetField(fieldMember))
	for _, term := range query.Terms {
		q.AddMust(bluge.NewBooleanQuery().
			AddShould(bluge.NewPrefixQuery(term).SetField(fieldName)).
			AddShould(bluge.NewPrefixQuery(term).SetField(fieldParticipant)).
			SetMinShould(1))
	}
	switch query.Kind {
	case search.GroupOnly:
		q.AddMust(bluge.NewTermQuery("true").SetField(fieldGroup))
	case search.DirectOnly:
		q.AddMust(bluge.NewTermQuery("false").SetField(fieldGroup))
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, errors.Transient(err)
	}
	defer func() { _ = reader.Close() }()

	matches, err := reader.Search(ctx, bluge.NewTopNSearch(maxSearchResults, q))
	if err != nil {
		return nil, errors.Transient(err)
	}

	var ids []domain.ChatID
	match, err := matches.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, domain.ChatID(value))
				return false
			}
			return true
		})
		if visitErr != nil {
			return nil, errors.Transient(visitErr)
		}
		match, err = matches.Next()
	}
	if err != nil {
		return nil, errors.Transient(err)
	}
	i.log.Debug("Chat search", "user_id", member, "terms", query.Terms, "hits", len(ids))
	return ids, nil
}
