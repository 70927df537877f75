package storage

import (
	"context"
	"sync"

	"github.com/dreamware/pooldb/internal/pool"
)

// MemoryStore implements Store by keeping encoded shards in a map.
// Shards go through the same codec as the durable backends so tests
// exercise the round trip.
type MemoryStore struct {
	data map[int64][]byte // shardID -> encoded shard
	mu   sync.RWMutex     // Protects concurrent access
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[int64][]byte),
	}
}

// Exists reports whether the shard has been saved
func (m *MemoryStore) Exists(_ context.Context, shardID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[shardID]
	return ok, nil
}

// Load decodes the saved shard
func (m *MemoryStore) Load(_ context.Context, shardID int64) (*pool.Table, error) {
	m.mu.RLock()
	blob, ok := m.data[shardID]
	m.mu.RUnlock()
	if !ok {
		return nil, &PersistenceError{Op: "load", ShardID: shardID, Err: ErrShardNotFound}
	}
	return decodeShard(shardID, blob)
}

// Save replaces the shard with the table's rows
func (m *MemoryStore) Save(_ context.Context, shardID int64, table *pool.Table) error {
	blob := Encode(table)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[shardID] = blob
	return nil
}

// Put stores a raw blob for a shard. Used to seed corrupt data in tests.
func (m *MemoryStore) Put(shardID int64, blob []byte) {
	stored := make([]byte, len(blob))
	copy(stored, blob)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[shardID] = stored
}

// Stats returns storage statistics
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, blob := range m.data {
		total += int64(len(blob))
	}
	return StoreStats{Backend: "memory", Shards: len(m.data), Bytes: total}
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }
