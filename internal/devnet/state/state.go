// Package state is the key-value backend of the sandbox ledger.
//
// Two implementations are provided: an in-memory map for tests and
// throwaway runs, and BadgerDB for a devnet that survives restarts. Both
// apply an Update atomically: either every Set of the callback lands or none
// does.
package state

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Txn.Get for a missing key.
var ErrNotFound = errors.New("state: key not found")

var errReadOnly = errors.New("state: write in read-only view")

// Config selects and configures a backend.
type Config struct {
	Backend string // "mem" or "badger"
	Path    string // badger directory
}

// Txn is a read or read-write view of the store.
type Txn interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// Store is the persistence interface used by the sandbox.
type Store interface {
	// View runs fn against a read-only view.
	View(fn func(Txn) error) error
	// Update runs fn and commits its writes only if fn returns nil.
	Update(fn func(Txn) error) error
	// Close releases the resources allocated by the Store.
	Close() error
}

// Open returns the backend named by cfg.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "mem":
		return NewMem(), nil
	case "badger":
		if cfg.Path == "" {
			return nil, fmt.Errorf("state: badger backend needs a path")
		}
		return NewBadger(cfg.Path)
	default:
		return nil, fmt.Errorf("state: unknown backend %q", cfg.Backend)
	}
}
