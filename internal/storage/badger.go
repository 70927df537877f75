package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dreamware/pooldb/internal/pool"
)

// badgerKeyPrefix namespaces shard blobs inside the database
const badgerKeyPrefix = "shard/"

// BadgerConfig holds configuration for a BadgerDB-backed store.
type BadgerConfig struct {
	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger

	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// GCInterval is how often to run value log garbage collection.
	// Zero disables the background runner.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable fraction before a value
	// log file is rewritten.
	GCDiscardRatio float64

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every transaction commit.
	SyncWrites bool
}

// DefaultBadgerConfig returns production defaults for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore implements Store on top of an embedded BadgerDB. Each shard is
// a single key whose value is the encoded shard, so a save is one
// transaction and replaces the whole shard atomically.
type BadgerStore struct {
	db *badger.DB
	gc *GCRunner
}

// OpenBadgerStore opens the database and starts value log GC if configured.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &BadgerStore{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		s.gc.Start()
	}
	return s, nil
}

func badgerKey(shardID int64) []byte {
	return []byte(badgerKeyPrefix + strconv.FormatInt(shardID, 10))
}

// Exists reports whether the shard key is present
func (b *BadgerStore) Exists(_ context.Context, shardID int64) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(shardID))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, &PersistenceError{Op: "exists", ShardID: shardID, Err: err}
	}
}

// Load reads and decodes the shard value
func (b *BadgerStore) Load(_ context.Context, shardID int64) (*pool.Table, error) {
	var blob []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(shardID))
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			err = ErrShardNotFound
		}
		return nil, &PersistenceError{Op: "load", ShardID: shardID, Err: err}
	}
	return decodeShard(shardID, blob)
}

// Save replaces the shard value in one transaction
func (b *BadgerStore) Save(_ context.Context, shardID int64, table *pool.Table) error {
	blob := Encode(table)
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(shardID), blob)
	})
	if err != nil {
		return &PersistenceError{Op: "save", ShardID: shardID, Err: err}
	}
	return nil
}

// Stats walks the shard keys and sums their value sizes
func (b *BadgerStore) Stats() StoreStats {
	stats := StoreStats{Backend: "badger"}
	_ = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			stats.Shards++
			stats.Bytes += it.Item().ValueSize()
		}
		return nil
	})
	return stats
}

// Close stops GC and closes the database
func (b *BadgerStore) Close() error {
	if b.gc != nil {
		b.gc.Stop()
	}
	return b.db.Close()
}

// GCRunner runs periodic value log garbage collection on a BadgerDB.
type GCRunner struct {
	db       *badger.DB
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	interval time.Duration
	ratio    float64
}

// NewGCRunner creates a runner; call Start to begin and Stop to halt it.
func NewGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *GCRunner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the GC loop in a goroutine.
func (g *GCRunner) Start() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.runOnce()
			case <-g.ctx.Done():
				return
			}
		}
	}()
}

// runOnce rewrites value log files until badger reports nothing to collect.
func (g *GCRunner) runOnce() {
	rewrites := 0
	for {
		err := g.db.RunValueLogGC(g.ratio)
		if err == nil {
			rewrites++
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
			g.logger.Warn("badger value log gc failed", "error", err)
		}
		break
	}
	if rewrites > 0 {
		g.logger.Debug("badger value log gc", "rewrites", rewrites)
	}
}

// Stop halts the loop and waits for it to exit.
func (g *GCRunner) Stop() {
	g.cancel()
	g.wg.Wait()
}
