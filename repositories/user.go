//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"strings"
	"time"

	"chat-sync/domain"
	"chat-sync/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, displayName, hashedPassword string) (domain.User, error)
	GetUserByEmail(email string) (domain.User, error)
	GetUser(id domain.UserID) (domain.User, error)
	GetUsers(ids []domain.UserID) (map[domain.UserID]domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

func userKey(id domain.UserID) string { return "user:" + string(id) }

func emailKey(email string) string { return "email:" + strings.ToLower(email) }

// CreateUser persists the user and its email index in one transaction.
// The email index is the uniqueness guard: two concurrent registrations of the same
// address conflict and the replayed one sees ErrUserAlreadyExists.
func (u UserRepository) CreateUser(email, displayName, hashedPassword string) (domain.User, error) {
	user := domain.User{
		ID:           domain.UserID(uuid.NewString()),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    time.Now().UTC(),
	}
	if user.DisplayName == "" {
		user.DisplayName = strings.Split(email, "@")[0]
	}

	err := update(u.db, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(emailKey(email))); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set([]byte(emailKey(email)), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(userKey(user.ID)), encodeUser(user))
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u UserRepository) GetUserByEmail(email string) (domain.User, error) {
	var user domain.User
	err := view(u.db, func(txn *badger.Txn) error {
		id, err := getValue(txn, emailKey(email), errors.ErrUserNotFound)
		if err != nil {
			return err
		}
		user, err = getUser(txn, domain.UserID(id))
		return err
	})
	return user, err
}

func (u UserRepository) GetUser(id domain.UserID) (domain.User, error) {
	var user domain.User
	err := view(u.db, func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

// GetUsers resolves ids in a single read transaction. Unknown ids are skipped.
func (u UserRepository) GetUsers(ids []domain.UserID) (map[domain.UserID]domain.User, error) {
	users := make(map[domain.UserID]domain.User, len(ids))
	err := view(u.db, func(txn *badger.Txn) error {
		for _, id := range ids {
			if _, ok := users[id]; ok {
				continue
			}
			user, err := getUser(txn, id)
			if errors.Is(err, errors.ErrUserNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users[id] = user
		}
		return nil
	})
	return users, err
}

func getUser(txn *badger.Txn, id domain.UserID) (domain.User, error) {
	value, err := getValue(txn, userKey(id), errors.ErrUserNotFound)
	if err != nil {
		return domain.User{}, err
	}
	return decodeUser(value)
}
