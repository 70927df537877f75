package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/dreamware/pooldb/internal/pool"
)

// ShardFileExt is the extension of shard files inside the data directory
const ShardFileExt = ".shard"

// FileStore keeps one zstd-compressed file per shard, named <shardID>.shard.
// Saves go to a temporary file in the same directory which is synced and
// then renamed over the target, so readers see the old or the new shard and
// never a partial one.
type FileStore struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *slog.Logger
	dir     string
}

// NewFileStore opens (creating if needed) a shard directory.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dir, err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{encoder: enc, decoder: dec, logger: logger, dir: dir}, nil
}

// Path returns the file holding a shard.
func (f *FileStore) Path(shardID int64) string {
	return filepath.Join(f.dir, strconv.FormatInt(shardID, 10)+ShardFileExt)
}

// Exists reports whether the shard file is present
func (f *FileStore) Exists(_ context.Context, shardID int64) (bool, error) {
	_, err := os.Stat(f.Path(shardID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, &PersistenceError{Op: "exists", ShardID: shardID, Err: err}
	}
}

// Load reads and decodes the shard file
func (f *FileStore) Load(_ context.Context, shardID int64) (*pool.Table, error) {
	compressed, err := os.ReadFile(f.Path(shardID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = ErrShardNotFound
		}
		return nil, &PersistenceError{Op: "load", ShardID: shardID, Err: err}
	}
	blob, err := f.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, &CorruptShardError{ShardID: shardID, Err: fmt.Errorf("decompress: %w", err)}
	}
	return decodeShard(shardID, blob)
}

// Save atomically replaces the shard file
func (f *FileStore) Save(_ context.Context, shardID int64, table *pool.Table) error {
	compressed := f.encoder.EncodeAll(Encode(table), nil)
	if err := f.writeAtomic(f.Path(shardID), compressed); err != nil {
		return &PersistenceError{Op: "save", ShardID: shardID, Err: err}
	}
	f.logger.Debug("shard written", "shard", shardID, "bytes", len(compressed))
	return nil
}

func (f *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// Stats counts shard files and their on-disk size
func (f *FileStore) Stats() StoreStats {
	stats := StoreStats{Backend: "file"}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		f.logger.Warn("read data directory", "dir", f.dir, "error", err)
		return stats
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ShardFileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Shards++
		stats.Bytes += info.Size()
	}
	return stats
}

// Close releases the compressor resources
func (f *FileStore) Close() error {
	f.decoder.Close()
	return f.encoder.Close()
}
