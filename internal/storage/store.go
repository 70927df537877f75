package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamware/pooldb/internal/pool"
	"github.com/dreamware/pooldb/internal/shard"
)

// ErrShardNotFound is returned by Load when no persisted unit exists for the
// shard. Callers normally check Exists first.
var ErrShardNotFound = errors.New("shard not found")

// Store defines the interface for shard persistence.
// All implementations must be thread-safe for concurrent access, but callers
// serialize access to any single shard through its lock.
type Store interface {
	// Exists reports whether a persisted unit exists for the shard
	Exists(ctx context.Context, shardID int64) (bool, error)

	// Load reads the full shard.
	// Returns *CorruptShardError if the data cannot be decoded
	Load(ctx context.Context, shardID int64) (*pool.Table, error)

	// Save replaces the full shard with the table's rows.
	// Returns *PersistenceError on I/O failure
	Save(ctx context.Context, shardID int64, table *pool.Table) error

	// Stats returns storage statistics
	Stats() StoreStats

	// Close releases any resources held by the store
	Close() error
}

// StoreStats contains statistics about the store
type StoreStats struct {
	Backend string `json:"backend"` // memory, file or badger
	Shards  int    `json:"shards"`  // Number of persisted shards
	Bytes   int64  `json:"bytes"`   // Total encoded size of all shards
}

// CorruptShardError reports a persisted shard that could not be decoded into
// rows. The command was not applied.
type CorruptShardError struct {
	Err     error
	ShardID int64
}

func (e *CorruptShardError) Error() string {
	return fmt.Sprintf("shard %d is corrupt: %v", e.ShardID, e.Err)
}

func (e *CorruptShardError) Unwrap() error { return e.Err }

// PersistenceError reports an I/O failure while reading or writing a shard.
// The state of the persisted unit is unknown; retry the whole command from
// a fresh load.
type PersistenceError struct {
	Err     error
	Op      string // exists, load or save
	ShardID int64
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s shard %d: %v", e.Op, e.ShardID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// decodeShard decodes a blob and checks every row belongs to shardID.
func decodeShard(shardID int64, data []byte) (*pool.Table, error) {
	table, err := Decode(data)
	if err != nil {
		return nil, &CorruptShardError{ShardID: shardID, Err: err}
	}
	for _, row := range table.Rows() {
		if !shard.OwnsKey(shardID, row.Key) {
			return nil, &CorruptShardError{
				ShardID: shardID,
				Err:     fmt.Errorf("pool %d routes to shard %d", row.Key, shard.Route(row.Key)),
			}
		}
	}
	return table, nil
}
