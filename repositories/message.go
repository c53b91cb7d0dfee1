//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"chat-sync/domain"
	"chat-sync/errors"

	"github.com/dgraph-io/badger/v4"
)

type IMessageRepository interface {
	Append(message domain.Message) (domain.Message, error)
	Get(id domain.MessageID) (domain.Message, error)
	List(chatID domain.ChatID, page domain.Page) ([]domain.Message, int, error)
	MarkRead(chatID domain.ChatID, reader domain.UserID, ids []domain.MessageID) ([]domain.Message, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

func messagePrefix(chatID domain.ChatID) string { return "msg:" + string(chatID) + ":" }

// messageKey is formatted as "msg:{chat_id}:{timestamp_padded}:{message_id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using the message id as a collision breaker.
func messageKey(m domain.Message) string {
	return fmt.Sprintf("%s%019d:%s", messagePrefix(m.ChatID), m.CreatedAt.UnixNano(), m.ID)
}

// messageIndexKey points from a message id to its messageKey.
func messageIndexKey(id domain.MessageID) string { return "msgid:" + string(id) }

// Append persists the message and moves the chat's latest pointer in the same
// transaction. CreatedAt is pushed strictly past the current latest message so the
// latest pointer is always the newest message of the chat.
func (m MessageRepository) Append(message domain.Message) (domain.Message, error) {
	var stored domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		chat, err := getChat(txn, message.ChatID)
		if err != nil {
			return err
		}
		stored = message
		if !chat.LatestMessageAt.IsZero() && !stored.CreatedAt.After(chat.LatestMessageAt) {
			stored.CreatedAt = chat.LatestMessageAt.Add(time.Nanosecond)
		}
		if err := putMessage(txn, stored); err != nil {
			return err
		}
		chat.LatestMessageID = stored.ID
		chat.LatestMessageAt = stored.CreatedAt
		chat.UpdatedAt = stored.CreatedAt
		return putChat(txn, chat)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return stored, nil
}

func (m MessageRepository) Get(id domain.MessageID) (domain.Message, error) {
	var message domain.Message
	err := view(m.db, func(txn *badger.Txn) error {
		var err error
		message, _, err = getMessage(txn, id)
		return err
	})
	return message, err
}

// List returns one page of a chat's history and the total number of messages.
// Desc pages start from the newest message, the order the client cache expects.
// Keys are scanned without values; only the page's values are read.
func (m MessageRepository) List(chatID domain.ChatID, page domain.Page) ([]domain.Message, int, error) {
	page = page.Normalize()
	var messages []domain.Message
	total := 0
	err := view(m.db, func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix(chatID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Reverse = page.Order == domain.Desc
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if options.Reverse {
			// Let's go to the newest position msg:{chat}:9999999999999999999
			seekKey = append([]byte(string(prefix)), []byte("9999999999999999999")...)
		}

		offset := page.Offset()
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			total++
			if total <= offset || len(messages) == page.Limit {
				continue
			}
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			message, err := decodeMessage(value)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if page.Offset() > 0 && len(messages) == 0 {
		m.log.Debug("Page out of range", "chat_id", chatID, "page", page.Number, "total", total)
	}
	return messages, total, nil
}

// MarkRead adds reader to the ReadBy set of each message and returns the messages
// that changed. ReadBy only grows.
func (m MessageRepository) MarkRead(chatID domain.ChatID, reader domain.UserID, ids []domain.MessageID) ([]domain.Message, error) {
	var changed []domain.Message
	err := update(m.db, func(txn *badger.Txn) error {
		changed = changed[:0]
		for _, id := range ids {
			message, key, err := getMessage(txn, id)
			if err != nil {
				return err
			}
			if message.ChatID != chatID {
				return fmt.Errorf("%w: %s is not in chat %s", errors.ErrMessageNotFound, id, chatID)
			}
			if !message.MarkRead(reader) {
				continue
			}
			if err := txn.Set([]byte(key), encodeMessage(message)); err != nil {
				return err
			}
			changed = append(changed, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func getMessage(txn *badger.Txn, id domain.MessageID) (domain.Message, string, error) {
	key, err := getValue(txn, messageIndexKey(id), errors.ErrMessageNotFound)
	if err != nil {
		return domain.Message{}, "", err
	}
	value, err := getValue(txn, string(key), errors.ErrMessageNotFound)
	if err != nil {
		return domain.Message{}, "", err
	}
	message, err := decodeMessage(value)
	return message, string(key), err
}

func putMessage(txn *badger.Txn, message domain.Message) error {
	key := messageKey(message)
	if err := txn.Set([]byte(key), encodeMessage(message)); err != nil {
		return err
	}
	return txn.Set([]byte(messageIndexKey(message.ID)), []byte(key))
}
