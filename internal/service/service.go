// Package service executes pool commands against a shard store. Every
// command routes its key to a shard, takes that shard's lock and runs the
// whole load, mutate, save cycle while holding it.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dreamware/pooldb/internal/command"
	"github.com/dreamware/pooldb/internal/observability"
	"github.com/dreamware/pooldb/internal/pool"
	"github.com/dreamware/pooldb/internal/quantile"
	"github.com/dreamware/pooldb/internal/shard"
	"github.com/dreamware/pooldb/internal/storage"
)

// ErrUnknownKey is returned by Query for a pool that was never created.
var ErrUnknownKey = errors.New("poolId does not exist")

// Update outcomes
const (
	StatusInserted = "inserted"
	StatusAppended = "appended"
)

const (
	cmdUpdate = "update"
	cmdQuery  = "query"
)

// UpdateResult reports whether an update created or extended its pool.
type UpdateResult struct {
	Status string `json:"status"`
}

// QueryResult carries the computed percentile and the pool size it was
// computed over.
type QueryResult struct {
	Quantile float64 `json:"calculated_quantile"`
	Count    int     `json:"total_count_of_elements"`
}

// Config holds the dependencies of a Service.
type Config struct {
	Store    storage.Store
	Registry *shard.Registry
	Logger   *slog.Logger
	Metrics  *observability.Metrics

	// LockTimeout caps how long a command waits for its shard. Zero waits
	// until the request context is done.
	LockTimeout time.Duration
}

// Service runs Update and Query commands. It is safe for concurrent use.
type Service struct {
	store       storage.Store
	registry    *shard.Registry
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
	lockTimeout time.Duration
}

// New creates a Service. Store is required; a nil Registry or Logger is
// replaced with a fresh one and slog.Default respectively.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("service: store is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = shard.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:       cfg.Store,
		registry:    cfg.Registry,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tracer:      observability.Tracer(),
		lockTimeout: cfg.LockTimeout,
	}, nil
}

// Registry returns the shard registry the service locks through.
func (s *Service) Registry() *shard.Registry { return s.registry }

// Store returns the backing store.
func (s *Service) Store() storage.Store { return s.store }

// Update appends the command's values to its pool, creating the pool (and
// its shard) when absent. The command is assumed valid.
func (s *Service) Update(ctx context.Context, cmd command.Update) (res UpdateResult, err error) {
	start := time.Now()
	shardID := shard.Route(cmd.Key)
	ctx, span := s.tracer.Start(ctx, "pool.update", trace.WithAttributes(
		attribute.Int64("pool.key", cmd.Key),
		attribute.Int64("pool.shard", shardID),
		attribute.Int("pool.values", len(cmd.Values)),
	))
	defer func() {
		s.finish(span, cmdUpdate, cmd.Key, shardID, start, err)
		if err == nil {
			span.SetAttributes(attribute.String("pool.status", res.Status))
		}
		span.End()
	}()

	sh, release, err := s.lock(ctx, cmd.Key)
	if err != nil {
		return UpdateResult{}, err
	}
	defer release()
	sh.RecordUpdate()

	exists, err := s.store.Exists(ctx, shardID)
	if err != nil {
		return UpdateResult{}, err
	}

	table := pool.NewTable()
	if exists {
		if table, err = s.store.Load(ctx, shardID); err != nil {
			return UpdateResult{}, err
		}
	}

	status := StatusInserted
	if table.Has(cmd.Key) {
		status = StatusAppended
		err = table.Append(cmd.Key, cmd.Values)
	} else {
		err = table.Insert(cmd.Key, cmd.Values)
	}
	if err != nil {
		return UpdateResult{}, err
	}

	if err := s.save(ctx, sh, cmdUpdate, table); err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Status: status}, nil
}

// Query computes the command's percentile over its pool. Sorting happens
// under the shard lock and is persisted only when it changed the pool; the
// interpolation itself runs after the lock is released.
func (s *Service) Query(ctx context.Context, cmd command.Query) (res QueryResult, err error) {
	start := time.Now()
	shardID := shard.Route(cmd.Key)
	ctx, span := s.tracer.Start(ctx, "pool.query", trace.WithAttributes(
		attribute.Int64("pool.key", cmd.Key),
		attribute.Int64("pool.shard", shardID),
		attribute.Float64("pool.percentile", cmd.Percentile),
	))
	defer func() {
		s.finish(span, cmdQuery, cmd.Key, shardID, start, err)
		if err == nil {
			span.SetAttributes(attribute.Int("pool.count", res.Count))
		}
		span.End()
	}()

	values, err := s.sortedValues(ctx, cmd.Key, shardID)
	if err != nil {
		return QueryResult{}, err
	}

	q, n, err := quantile.Compute(values, cmd.Percentile)
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Quantile: q, Count: n}, nil
}

// sortedValues holds the shard lock only for the load, sort and save.
func (s *Service) sortedValues(ctx context.Context, key, shardID int64) ([]float64, error) {
	sh, release, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()
	sh.RecordQuery()

	exists, err := s.store.Exists(ctx, shardID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrUnknownKey
	}
	table, err := s.store.Load(ctx, shardID)
	if err != nil {
		return nil, err
	}
	if !table.Has(key) {
		return nil, ErrUnknownKey
	}

	values, changed, err := table.SortIfNeeded(key)
	if err != nil {
		return nil, err
	}
	if !changed {
		sh.RecordSkippedSave()
		s.metrics.ObserveSortSkip()
		return values, nil
	}
	if err := s.save(ctx, sh, cmdQuery, table); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *Service) lock(ctx context.Context, key int64) (*shard.Shard, func(), error) {
	start := time.Now()
	sh, release, err := s.registry.Lock(ctx, key, s.lockTimeout)
	s.metrics.ObserveLock(time.Since(start), errors.Is(err, shard.ErrLockTimeout))
	return sh, release, err
}

func (s *Service) save(ctx context.Context, sh *shard.Shard, cmd string, table *pool.Table) error {
	if err := s.store.Save(ctx, sh.ID, table); err != nil {
		return err
	}
	sh.RecordSave()
	s.metrics.ObserveSave(cmd)
	return nil
}

// finish logs and counts a completed command and marks failed spans.
func (s *Service) finish(span trace.Span, cmd string, key, shardID int64, start time.Time, err error) {
	elapsed := time.Since(start)
	result := observability.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, ErrUnknownKey):
		result = observability.ResultUnknown
	case errors.Is(err, shard.ErrLockTimeout):
		result = observability.ResultTimeout
	default:
		result = observability.ResultError
	}
	s.metrics.ObserveCommand(cmd, result, elapsed)

	if err == nil {
		s.logger.Debug("command done", "command", cmd, "key", key, "shard", shardID, "duration", elapsed)
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if result == observability.ResultError {
		s.logger.Error("command failed", "command", cmd, "key", key, "shard", shardID, "error", err)
	} else {
		s.logger.Debug("command rejected", "command", cmd, "key", key, "shard", shardID, "reason", err)
	}
}
