// Package shard implements key-range partitioning for pooldb: the routing
// function that assigns every pool key to exactly one shard, and the
// per-shard exclusive lock that serializes the load, mutate and save cycle
// of commands touching that shard.
//
// # Overview
//
// A shard is the unit of persistence and the unit of locking. All pools
// whose keys share the same magnitude bucket live in the same shard:
//
//	shardID = floor(|key| / 1000)
//
//	key        shard
//	0..999     0
//	-999..-1   0
//	1000       1
//	99991369   99991
//
// Routing is a pure function of the key. There is no registry of
// assignments and no rebalancing: changing Width would orphan every stored
// pool, so it is a constant.
//
// # Locking
//
// Each Shard owns a weighted semaphore of capacity one. A command routed to
// shard S acquires S before loading it and releases it after the optional
// save:
//
//	┌────────────┐   Lock(ctx)   ┌──────────────┐
//	│  command   │ ────────────► │ Shard S sem  │
//	└────────────┘               └──────────────┘
//	      │ load → mutate → save (lock held)
//	      ▼
//	   release()
//
// Waiters block on the semaphore; nothing spins. The Registry applies a
// wait cap through a context deadline, and a wait that hits it returns
// ErrLockTimeout, which callers report as a retryable failure. Commands on
// different shards never share a semaphore and run fully in parallel.
//
// # Statistics
//
// Every shard keeps atomic counters of the commands that held it, the
// saves it performed and the saves it skipped because a queried pool was
// already sorted. Registry.Infos snapshots them for the HTTP API.
//
// # Thread Safety
//
// Registry and Shard are safe for concurrent use. Shards are created on
// first use and never removed.
package shard
