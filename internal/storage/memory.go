package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryDB is an in-memory DB used by package tests in place of Badger.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{data: make(map[string][]byte)}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach iterates over all keys with the given prefix in ascending
// lexicographic order, matching Badger's iteration order so that tests
// against MemoryDB exercise the same ordering guarantees production code
// relies on.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	p := string(prefix)
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	type kv struct{ k, v []byte }
	snapshot := make([]kv, 0, len(keys))
	for _, k := range keys {
		snapshot = append(snapshot, kv{[]byte(k), m.data[k]})
	}
	m.mu.RUnlock()

	for _, e := range snapshot {
		if err := fn(e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (m *MemoryDB) Close() error {
	return nil
}

// NewBatch returns a Batch that buffers writes and applies them
// atomically (from ForEach's point of view) when Commit is called.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

type memoryBatch struct {
	db  *MemoryDB
	ops []memoryOp
}

type memoryOp struct {
	key    []byte
	value  []byte
	delete bool
}

func (mb *memoryBatch) Put(key, value []byte) error {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	mb.ops = append(mb.ops, memoryOp{key: k, value: v})
	return nil
}

func (mb *memoryBatch) Delete(key []byte) error {
	k := append([]byte(nil), key...)
	mb.ops = append(mb.ops, memoryOp{key: k, delete: true})
	return nil
}

func (mb *memoryBatch) Commit() error {
	mb.db.mu.Lock()
	defer mb.db.mu.Unlock()
	for _, op := range mb.ops {
		if op.delete {
			delete(mb.db.data, string(op.key))
		} else {
			mb.db.data[string(op.key)] = op.value
		}
	}
	return nil
}
