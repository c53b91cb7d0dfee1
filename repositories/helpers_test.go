package repositories

import (
	"testing"
	"time"

	"chat-sync/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newNote(chatID domain.ChatID, at time.Time) domain.Message {
	return domain.Message{
		ID:           domain.MessageID(uuid.NewString()),
		ChatID:       chatID,
		Content:      "chat created",
		Type:         domain.MessageTypeNote,
		IsSystemNote: true,
		CreatedAt:    at,
	}
}

func newPairChat(a, b domain.UserID, at time.Time) domain.Chat {
	return domain.Chat{
		ID:           domain.ChatID(uuid.NewString()),
		Participants: []domain.UserID{a, b},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}
