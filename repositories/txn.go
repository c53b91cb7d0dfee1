package repositories

import (
	stderrors "errors"
	"fmt"

	"chat-sync/errors"

	"github.com/dgraph-io/badger/v4"
)

const maxConflictRetries = 5

// update runs fn in a read-write transaction and replays it when badger reports a
// conflict with a concurrent commit. Domain errors returned by fn are passed through.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = db.Update(fn)
		if !stderrors.Is(err, badger.ErrConflict) {
			return storageError(err)
		}
	}
	return errors.Transient(fmt.Errorf("gave up after %d conflicts: %w", maxConflictRetries, err))
}

func view(db *badger.DB, fn func(txn *badger.Txn) error) error {
	return storageError(db.View(fn))
}

// storageError keeps domain errors intact and marks badger failures as transient.
func storageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.CodeOf(err) != errors.CodeInternal:
		return err
	default:
		return errors.Transient(err)
	}
}

// getValue reads key and maps a missing key to notFound.
func getValue(txn *badger.Txn, key string, notFound error) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
