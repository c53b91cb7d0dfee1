//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../mocks/mock_chat_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"strings"

	"chat-sync/domain"
	"chat-sync/errors"

	"github.com/dgraph-io/badger/v4"
)

type IChatRepository interface {
	Get(id domain.ChatID) (domain.Chat, error)
	FindByPair(a, b domain.UserID) (domain.Chat, error)
	CreateOneToOne(chat domain.Chat, note domain.Message) (domain.Chat, error)
	CreateGroup(chat domain.Chat) (domain.Chat, error)
	ListByMember(userID domain.UserID) ([]domain.Chat, error)
}

type ChatRepository struct {
	db *badger.DB
}

func NewChatRepository(db *badger.DB) ChatRepository {
	return ChatRepository{db: db}
}

func chatKey(id domain.ChatID) string { return "chat:" + string(id) }

func pairKey(a, b domain.UserID) string { return "pair:" + domain.PairKey(a, b) }

func memberPrefix(userID domain.UserID) string { return "member:" + string(userID) + ":" }

func memberKey(userID domain.UserID, chatID domain.ChatID) string {
	return memberPrefix(userID) + string(chatID)
}

func (r ChatRepository) Get(id domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := view(r.db, func(txn *badger.Txn) error {
		var err error
		chat, err = getChat(txn, id)
		return err
	})
	return chat, err
}

// FindByPair returns the one-to-one chat of a and b, in any order.
func (r ChatRepository) FindByPair(a, b domain.UserID) (domain.Chat, error) {
	var chat domain.Chat
	err := view(r.db, func(txn *badger.Txn) error {
		id, err := getValue(txn, pairKey(a, b), errors.ErrChatNotFound)
		if err != nil {
			return err
		}
		chat, err = getChat(txn, domain.ChatID(id))
		return err
	})
	return chat, err
}

// CreateOneToOne stores the chat, its pair index and the note that opens it.
// The "pair:" key is read inside the transaction, so a concurrent creation of the
// same pair makes one of the commits conflict; its replay returns ErrChatExists.
func (r ChatRepository) CreateOneToOne(chat domain.Chat, note domain.Message) (domain.Chat, error) {
	if chat.IsGroup || len(chat.Participants) != 2 {
		return domain.Chat{}, errors.Validation("one-to-one chat needs exactly two participants")
	}
	chat.LatestMessageID = note.ID
	chat.LatestMessageAt = note.CreatedAt

	err := update(r.db, func(txn *badger.Txn) error {
		key := []byte(pairKey(chat.Participants[0], chat.Participants[1]))
		_, err := txn.Get(key)
		if err == nil {
			return errors.ErrChatExists
		}
		if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, []byte(chat.ID)); err != nil {
			return err
		}
		if err := insertChat(txn, chat); err != nil {
			return err
		}
		return putMessage(txn, note)
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

func (r ChatRepository) CreateGroup(chat domain.Chat) (domain.Chat, error) {
	if !chat.IsGroup {
		return domain.Chat{}, errors.Validation("not a group chat")
	}
	if err := update(r.db, func(txn *badger.Txn) error {
		return insertChat(txn, chat)
	}); err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// ListByMember scans the member index of userID.
func (r ChatRepository) ListByMember(userID domain.UserID) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := view(r.db, func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(memberPrefix(userID))
		var ids []domain.ChatID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, domain.ChatID(strings.TrimPrefix(string(it.Item().Key()), string(prefix))))
		}
		for _, id := range ids {
			chat, err := getChat(txn, id)
			if err != nil {
				return fmt.Errorf("member index of %s: %w", userID, err)
			}
			chats = append(chats, chat)
		}
		return nil
	})
	return chats, err
}

func getChat(txn *badger.Txn, id domain.ChatID) (domain.Chat, error) {
	value, err := getValue(txn, chatKey(id), errors.ErrChatNotFound)
	if err != nil {
		return domain.Chat{}, err
	}
	return decodeChat(value)
}

func putChat(txn *badger.Txn, chat domain.Chat) error {
	return txn.Set([]byte(chatKey(chat.ID)), encodeChat(chat))
}

// insertChat writes a new chat and its member index.
func insertChat(txn *badger.Txn, chat domain.Chat) error {
	if err := putChat(txn, chat); err != nil {
		return err
	}
	for _, p := range chat.Participants {
		if err := txn.Set([]byte(memberKey(p, chat.ID)), []byte{}); err != nil {
			return err
		}
	}
	return nil
}
