package metadata

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. It is the store brokerstatsd runs
// with and the one tests in other packages use.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]KV
	nextVer Version
	closed  bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]KV),
		nextVer: 1,
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (GetResult, error) {
	if err := ctx.Err(); err != nil {
		return GetResult{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return GetResult{}, ErrStoreClosed
	}
	kv, ok := m.data[key]
	if !ok {
		return GetResult{}, nil
	}
	return GetResult{Value: kv.Value, Version: kv.Version, Exists: true}, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, value []byte, opts ...PutOption) (Version, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	if !m.versionMatchesLocked(key, o.expectedVersion) {
		return 0, ErrVersionMismatch
	}
	return m.writeLocked(key, value), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, startKey, endKey string, limit int) ([]KV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var keys []string
	for k := range m.data {
		if endKey == "" {
			if strings.HasPrefix(k, startKey) {
				keys = append(keys, k)
			}
		} else if k >= startKey && k < endKey {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]KV, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

// Txn holds the store lock only while applying writes, so fn may call
// other store methods.
func (m *MemoryStore) Txn(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrStoreClosed
	}

	txn := &memoryTxn{store: m}
	if err := fn(txn); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range txn.ops {
		if !m.versionMatchesLocked(op.key, op.expectedVersion) {
			return ErrVersionMismatch
		}
	}
	for _, op := range txn.ops {
		if op.delete {
			delete(m.data, op.key)
			continue
		}
		m.writeLocked(op.key, op.value)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) versionMatchesLocked(key string, expected *Version) bool {
	if expected == nil {
		return true
	}
	existing, ok := m.data[key]
	if !ok {
		return *expected == 0
	}
	return existing.Version == *expected
}

func (m *MemoryStore) writeLocked(key string, value []byte) Version {
	ver := m.nextVer
	m.nextVer++
	m.data[key] = KV{Key: key, Value: slices.Clone(value), Version: ver}
	return ver
}

type txnOp struct {
	key             string
	value           []byte
	delete          bool
	expectedVersion *Version
}

type memoryTxn struct {
	store *MemoryStore
	ops   []txnOp
}

func (t *memoryTxn) Get(key string) ([]byte, Version, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	kv, ok := t.store.data[key]
	if !ok {
		return nil, 0, ErrKeyNotFound
	}
	return kv.Value, kv.Version, nil
}

func (t *memoryTxn) Put(key string, value []byte) {
	t.ops = append(t.ops, txnOp{key: key, value: value})
}

func (t *memoryTxn) PutWithVersion(key string, value []byte, expectedVersion Version) {
	t.ops = append(t.ops, txnOp{key: key, value: value, expectedVersion: &expectedVersion})
}

func (t *memoryTxn) Delete(key string) {
	t.ops = append(t.ops, txnOp{key: key, delete: true})
}

var _ Store = (*MemoryStore)(nil)
