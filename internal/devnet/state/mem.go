package state

import "sync"

// memStore keeps everything in a map guarded by a RWMutex.
type memStore struct {
	mtx sync.RWMutex
	kv  map[string][]byte
}

// NewMem returns an empty in-memory Store.
func NewMem() Store {
	return &memStore{kv: make(map[string][]byte)}
}

func (m *memStore) View(fn func(Txn) error) error {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return fn(&memTxn{base: m.kv})
}

func (m *memStore) Update(fn func(Txn) error) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	txn := &memTxn{base: m.kv, staged: make(map[string][]byte)}
	if err := fn(txn); err != nil {
		return err
	}
	for k, v := range txn.staged {
		m.kv[k] = v
	}
	return nil
}

func (m *memStore) Close() error { return nil }

// memTxn overlays staged writes on the committed map.
type memTxn struct {
	base   map[string][]byte
	staged map[string][]byte // nil for read-only views
}

func (t *memTxn) Get(key string) ([]byte, error) {
	if v, ok := t.staged[key]; ok {
		return append([]byte(nil), v...), nil
	}
	v, ok := t.base[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (t *memTxn) Set(key string, value []byte) error {
	if t.staged == nil {
		return errReadOnly
	}
	t.staged[key] = append([]byte(nil), value...)
	return nil
}
