package repositories

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// DefaultRetries bounds how many times a conflicting transaction is replayed.
const DefaultRetries = 3

// update runs fn in a read-write transaction, replaying it on conflicts.
// The context is checked before every attempt; a started write is never abandoned.
func update(ctx context.Context, db *badger.DB, retries int, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = db.Update(fn)
		if !goerrors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func view(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.View(fn)
}

func getJSON(txn *badger.Txn, key string, target any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, target)
	})
}

func setJSON(txn *badger.Txn, key string, value any) error {
	bytes, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), bytes)
}

func getString(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	switch {
	case err == nil:
		return true, nil
	case goerrors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

// normalizeKey lower-cases names used in unique indexes.
func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
