package shard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when a shard lock could not be acquired within
// the caller's deadline. The command was not applied and may be retried.
var ErrLockTimeout = errors.New("shard lock wait exceeded")

// Shard is the unit of locking for a partition of the key space.
// Exactly one command may hold a shard at a time.
type Shard struct {
	sem   *semaphore.Weighted // Capacity 1: exclusive ownership
	Stats *ShardStats         // Operation statistics
	ID    int64               // Shard identifier, see Route
}

// ShardStats tracks operational statistics for a shard
type ShardStats struct {
	Ops OperationStats
}

// OperationStats tracks operation counts
type OperationStats struct {
	Updates      uint64 `json:"updates"`       // Update commands that held the lock
	Queries      uint64 `json:"queries"`       // Query commands that held the lock
	Saves        uint64 `json:"saves"`         // Successful persists of the shard
	SkippedSaves uint64 `json:"skipped_saves"` // Queries that found the pool already sorted
	LockTimeouts uint64 `json:"lock_timeouts"` // Lock waits that hit the deadline
}

// ShardInfo contains metadata about a shard
type ShardInfo struct {
	Ops OperationStats `json:"operations"`
	ID  int64          `json:"id"`
}

func newShard(id int64) *Shard {
	return &Shard{
		ID:    id,
		sem:   semaphore.NewWeighted(1),
		Stats: &ShardStats{},
	}
}

// Lock blocks until the shard is exclusively held or ctx is done. The
// returned function releases the lock and must be called exactly once.
// A deadline expiry is reported as ErrLockTimeout; plain cancellation
// returns the context error.
func (s *Shard) Lock(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			atomic.AddUint64(&s.Stats.Ops.LockTimeouts, 1)
			return nil, fmt.Errorf("shard %d: %w", s.ID, ErrLockTimeout)
		}
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { s.sem.Release(1) }) }, nil
}

// RecordUpdate increments the update counter
func (s *Shard) RecordUpdate() { atomic.AddUint64(&s.Stats.Ops.Updates, 1) }

// RecordQuery increments the query counter
func (s *Shard) RecordQuery() { atomic.AddUint64(&s.Stats.Ops.Queries, 1) }

// RecordSave increments the save counter
func (s *Shard) RecordSave() { atomic.AddUint64(&s.Stats.Ops.Saves, 1) }

// RecordSkippedSave increments the skipped save counter
func (s *Shard) RecordSkippedSave() { atomic.AddUint64(&s.Stats.Ops.SkippedSaves, 1) }

// GetStats returns a consistent-enough snapshot of the counters.
func (s *Shard) GetStats() OperationStats {
	return OperationStats{
		Updates:      atomic.LoadUint64(&s.Stats.Ops.Updates),
		Queries:      atomic.LoadUint64(&s.Stats.Ops.Queries),
		Saves:        atomic.LoadUint64(&s.Stats.Ops.Saves),
		SkippedSaves: atomic.LoadUint64(&s.Stats.Ops.SkippedSaves),
		LockTimeouts: atomic.LoadUint64(&s.Stats.Ops.LockTimeouts),
	}
}

// Info returns metadata about the shard
func (s *Shard) Info() ShardInfo {
	return ShardInfo{ID: s.ID, Ops: s.GetStats()}
}

// Registry hands out the Shard for an id, creating it on first use.
// Shards are never removed, so a *Shard obtained once stays valid.
type Registry struct {
	shards map[int64]*Shard
	mu     sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{shards: make(map[int64]*Shard)}
}

// Get returns the shard for id, creating it on demand.
func (r *Registry) Get(id int64) *Shard {
	r.mu.RLock()
	s, ok := r.shards[id]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.shards[id]; ok {
		return s
	}
	s = newShard(id)
	r.shards[id] = s
	return s
}

// Lookup returns the shard for id without creating it.
func (r *Registry) Lookup(id int64) (*Shard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shards[id]
	return s, ok
}

// Lock acquires the shard owning key, waiting at most timeout (zero means
// wait as long as ctx allows).
func (r *Registry) Lock(ctx context.Context, key int64, timeout time.Duration) (*Shard, func(), error) {
	s := r.Get(Route(key))
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	release, err := s.Lock(ctx)
	if err != nil {
		return s, nil, err
	}
	return s, release, nil
}

// Infos returns info for every shard touched so far, ordered by id.
func (r *Registry) Infos() []ShardInfo {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.shards))
	for id := range r.shards {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	out := make([]ShardInfo, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.Lookup(id); ok {
			out = append(out, s.Info())
		}
	}
	return out
}
