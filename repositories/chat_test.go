package repositories

import (
	"sync"
	"testing"
	"time"

	"chat-sync/domain"
	"chat-sync/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestChatRepository_CreateOneToOne_Pair_Is_Unique(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	repo := NewChatRepository(db)
	at := time.Now().UTC()

	// When the same pair is created concurrently, in both orders
	var wg sync.WaitGroup
	var mu sync.Mutex
	created, refused := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat := newPairChat("alice", "bob", at)
			if i%2 == 0 {
				chat.Participants = []domain.UserID{"bob", "alice"}
			}
			_, err := repo.CreateOneToOne(chat, newNote(chat.ID, at))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
				return
			}
			req.ErrorIs(err, errors.ErrChatExists)
			refused++
		}(i)
	}
	wg.Wait()

	// Then exactly one chat exists for the pair
	req.Equal(1, created)
	req.Equal(9, refused)
	chats, err := repo.ListByMember("alice")
	req.NoError(err)
	req.Len(chats, 1)

	found, err := repo.FindByPair("bob", "alice")
	req.NoError(err)
	req.Equal(chats[0].ID, found.ID)
	req.NotEmpty(found.LatestMessageID)
}

func TestChatRepository_Group_And_Lookups(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	repo := NewChatRepository(db)
	at := time.Now().UTC()

	group := domain.Chat{
		ID:           domain.ChatID(uuid.NewString()),
		Name:         "team",
		IsGroup:      true,
		Admin:        "alice",
		Participants: []domain.UserID{"alice", "bob", "carol"},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	_, err := repo.CreateGroup(group)
	req.NoError(err)

	fetched, err := repo.Get(group.ID)
	req.NoError(err)
	req.Equal(group, fetched)

	chats, err := repo.ListByMember("carol")
	req.NoError(err)
	req.Len(chats, 1)

	_, err = repo.Get("missing")
	req.ErrorIs(err, errors.ErrChatNotFound)
	_, err = repo.FindByPair("alice", "bob")
	req.ErrorIs(err, errors.ErrChatNotFound)
}
