package state

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// badgerStore is a Store backed by BadgerDB.
type badgerStore struct {
	db *badger.DB
}

// NewBadger opens (or creates) a BadgerDB store under dir.
func NewBadger(dir string) (Store, error) {
	// SyncWrites so an acknowledged transaction survives a crash.
	// Small value log and memtable: the sandbox holds little data.
	opt := badger.DefaultOptions(dir).
		WithSyncWrites(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(8 << 20).
		WithLogger(nil)
	db, err := badger.Open(opt)
	if err != nil {
		return nil, fmt.Errorf("state: open badger at %s: %w", dir, err)
	}
	return &badgerStore{db: db}, nil
}

func (b *badgerStore) View(fn func(Txn) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn: txn, readOnly: true})
	})
}

func (b *badgerStore) Update(fn func(Txn) error) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return fn(badgerTxn{txn: txn})
	})
}

func (b *badgerStore) Close() error { return b.db.Close() }

type badgerTxn struct {
	txn      *badger.Txn
	readOnly bool
}

func (t badgerTxn) Get(key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t badgerTxn) Set(key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	return t.txn.Set([]byte(key), value)
}
