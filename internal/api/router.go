// Package api exposes the pool service over HTTP.
//
// # Endpoints
//
//	┌─────────────────────────────────────────────┐
//	│  POST /update           append or create    │
//	│  POST /query            percentile          │
//	│  GET  /health           liveness            │
//	│  GET  /shards           shards touched      │
//	│  GET  /shards/:id/stats one shard           │
//	│  GET  /info             store statistics    │
//	│  GET  /metrics          Prometheus          │
//	└─────────────────────────────────────────────┘
//
// Validation failures and unknown pools answer 400 with {"error": message}.
// A shard lock that cannot be acquired in time answers 503 and the request
// may be retried. Storage failures answer 500.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dreamware/pooldb/internal/observability"
	"github.com/dreamware/pooldb/internal/service"
)

// Config holds what the router needs.
type Config struct {
	Service *service.Service
	Logger  *slog.Logger

	// Gatherer backs /metrics. Nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
}

// Handlers serves the pool endpoints.
type Handlers struct {
	svc    *service.Service
	logger *slog.Logger
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &Handlers{svc: cfg.Service, logger: logger}

	router := gin.New()
	router.Use(
		requestID(),
		accessLog(logger),
		recovery(logger),
		otelgin.Middleware(observability.ServiceName),
	)

	router.POST("/update", h.HandleUpdate)
	router.POST("/query", h.HandleQuery)
	router.GET("/health", HandleHealth)
	router.GET("/shards", h.HandleListShards)
	router.GET("/shards/:id/stats", h.HandleShardStats)
	router.GET("/info", h.HandleInfo)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}
