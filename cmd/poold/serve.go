package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dreamware/pooldb/internal/api"
	"github.com/dreamware/pooldb/internal/config"
	"github.com/dreamware/pooldb/internal/observability"
	"github.com/dreamware/pooldb/internal/service"
	"github.com/dreamware/pooldb/internal/shard"
	"github.com/dreamware/pooldb/internal/storage"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			return serve(ctx, cfg, ln)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a YAML config file")
	return cmd
}

// openStore builds the backend named in cfg.
func openStore(cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil
	case config.BackendFile:
		return storage.NewFileStore(cfg.DataDir, logger)
	case config.BackendBadger:
		bcfg := storage.DefaultBadgerConfig(cfg.DataDir)
		bcfg.Logger = logger
		bcfg.SyncWrites = cfg.Badger.SyncWrites
		bcfg.GCInterval = cfg.Badger.GCInterval
		bcfg.GCDiscardRatio = cfg.Badger.GCDiscardRatio
		return storage.OpenBadgerStore(bcfg)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// serve runs the API on ln until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, cfg config.Config, ln net.Listener) error {
	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		ln.Close()
		return err
	}

	shutdownTracing, err := observability.InitTracing(cfg.Tracing, os.Stdout)
	if err != nil {
		ln.Close()
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	store, err := openStore(cfg, logger)
	if err != nil {
		ln.Close()
		return fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close store", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := service.New(service.Config{
		Store:       store,
		Registry:    shard.NewRegistry(),
		Logger:      logger,
		Metrics:     observability.NewMetrics(reg),
		LockTimeout: cfg.LockTimeout,
	})
	if err != nil {
		ln.Close()
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	s := &http.Server{
		Handler:           api.NewRouter(api.Config{Service: svc, Logger: logger, Gatherer: reg}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("poold listening", "addr", ln.Addr().String(), "backend", cfg.Backend, "data_dir", cfg.DataDir)
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	logger.Info("poold stopped")
	return nil
}
