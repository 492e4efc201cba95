// internal/storage/badger_store.go
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// BadgerKV backs the KV contract with a badger database. All entries live
// under a namespace prefix so several stores can share one database.
type BadgerKV struct {
	db        *badger.DB
	namespace string
}

func NewBadgerKV(db *badger.DB, namespace string) *BadgerKV {
	return &BadgerKV{
		db:        db,
		namespace: namespace,
	}
}

func (s *BadgerKV) makeKey(key string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.namespace, key))
}

func (s *BadgerKV) stripNamespace(key []byte) string {
	return strings.TrimPrefix(string(key), fmt.Sprintf("%s:", s.namespace))
}

func (s *BadgerKV) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.makeKey(key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}
	return value, true, nil
}

func (s *BadgerKV) SetItem(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.makeKey(key), []byte(value))
	})
	if err == badger.ErrTxnTooBig {
		return ErrQuotaExceeded
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *BadgerKV) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.makeKey(key))
	})
	if err != nil && err != badger.ErrKeyNotFound {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

func (s *BadgerKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		scan := s.makeKey(prefix)
		for it.Seek(scan); it.ValidForPrefix(scan); it.Next() {
			keys = append(keys, s.stripNamespace(it.Item().KeyCopy(nil)))
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}
