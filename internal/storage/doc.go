// Package storage persists shards of pools. A shard is always read and
// written as a whole: Load returns every row, Save replaces every row.
//
// # Backends
//
//	┌─────────────────────────────────────┐
//	│          service.Service            │
//	└─────────────────────────────────────┘
//	                 │ Exists / Load / Save
//	                 ▼
//	┌─────────────────────────────────────┐
//	│           storage.Store             │
//	└─────────────────────────────────────┘
//	    ┌────────────┼────────────┐
//	    ▼            ▼            ▼
//	┌────────┐  ┌────────┐  ┌────────┐
//	│ Memory │  │  File  │  │ Badger │
//	└────────┘  └────────┘  └────────┘
//
// MemoryStore keeps encoded shards in a map. It loses everything on
// restart and exists for tests and throwaway runs.
//
// FileStore writes <data_dir>/<shardID>.shard, compressed with zstd.
// Replacement goes through a synced temporary file and a rename.
//
// BadgerStore keeps one key per shard in an embedded BadgerDB and
// optionally runs value log GC in the background.
//
// # Encoding
//
// All backends share one binary layout (see Encode):
//
//	┌──────┬─────┬───────┬──────────┬──────────┬──────────┐
//	│ PLDB │ ver │ flags │ rowCount │ crc32    │ reserved │  16 bytes
//	└──────┴─────┴───────┴──────────┴──────────┴──────────┘
//	per row: key i64 │ sorted u8 │ count u32 │ count × float64 bits
//
// Values are stored as raw IEEE-754 bits, so every float round-trips
// exactly. Data that fails to decode, or rows whose key does not route to
// the shard they were found in, surface as *CorruptShardError. I/O
// failures surface as *PersistenceError.
//
// # Thread Safety
//
// Every Store is safe for concurrent use. Callers still hold the shard lock
// across Load and Save, since two interleaved read-modify-write cycles on
// one shard would lose an update.
package storage
