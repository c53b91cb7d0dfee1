package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Record is a decoded entry of the store, as listed by cmd/inspect.
type Record struct {
	Key    string
	Kind   string
	At     time.Time
	ID     string
	Owner  string
	Detail string
}

// Scan visits the records whose key starts with prefix, in key order.
// Index entries (pair, member, msgid, email) are listed with their raw target.
func Scan(db *badger.DB, prefix string, visit func(Record) error) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			record, err := decodeRecordAt(key, value)
			if err != nil {
				record = Record{Key: key, Kind: "corrupt", Detail: err.Error()}
			}
			if err := visit(record); err != nil {
				return err
			}
		}
		return nil
	})
}

func decodeRecordAt(key string, value []byte) (Record, error) {
	kind, _, _ := strings.Cut(key, ":")
	record := Record{Key: key, Kind: kind}
	switch kind {
	case "chat":
		chat, err := decodeChat(value)
		if err != nil {
			return record, err
		}
		record.At, record.ID, record.Owner = chat.UpdatedAt, string(chat.ID), string(chat.Admin)
		record.Detail = fmt.Sprintf("group=%t participants=%d latest=%s", chat.IsGroup, len(chat.Participants), chat.LatestMessageID)
		if chat.Name != "" {
			record.Detail = chat.Name + " " + record.Detail
		}
	case "msg":
		message, err := decodeMessage(value)
		if err != nil {
			return record, err
		}
		record.At, record.ID, record.Owner = message.CreatedAt, string(message.ID), string(message.SenderID)
		record.Detail = fmt.Sprintf("[%s] %s (read by %d)", message.Type, message.Content, len(message.ReadBy))
	case "user":
		user, err := decodeUser(value)
		if err != nil {
			return record, err
		}
		record.At, record.ID, record.Owner = user.CreatedAt, string(user.ID), user.Email
		record.Detail = user.DisplayName
	default:
		record.Kind = "index"
		record.Detail = "-> " + string(value)
	}
	return record, nil
}
