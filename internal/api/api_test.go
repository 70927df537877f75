package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/pooldb/internal/command"
	"github.com/dreamware/pooldb/internal/observability"
	"github.com/dreamware/pooldb/internal/service"
	"github.com/dreamware/pooldb/internal/shard"
	"github.com/dreamware/pooldb/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	svc    *service.Service
	store  *storage.MemoryStore
	logs   *bytes.Buffer
}

func newTestServer(t *testing.T, lockTimeout time.Duration) *testServer {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	reg := prometheus.NewRegistry()
	store := storage.NewMemoryStore()

	svc, err := service.New(service.Config{
		Store:       store,
		Logger:      logger,
		Metrics:     observability.NewMetrics(reg),
		LockTimeout: lockTimeout,
	})
	require.NoError(t, err)

	return &testServer{
		router: NewRouter(Config{Service: svc, Logger: logger, Gatherer: reg}),
		svc:    svc,
		store:  store,
		logs:   logs,
	}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, time.Second)
	w := s.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestUpdateThenQuery(t *testing.T) {
	s := newTestServer(t, time.Second)

	w := s.do(http.MethodPost, "/update", `{"poolId": 99991369, "poolValues": [1, 7, 2, 6]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, service.StatusInserted, decode[service.UpdateResult](t, w).Status)

	w = s.do(http.MethodPost, "/update", `{"poolId": 99991369, "poolValues": [5, 3, 4]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, service.StatusAppended, decode[service.UpdateResult](t, w).Status)

	w = s.do(http.MethodPost, "/query", `{"poolId": 99991369, "percentile": 90}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[map[string]float64](t, w)
	assert.InDelta(t, 6.4, body["calculated_quantile"], 1e-9)
	assert.Equal(t, 7.0, body["total_count_of_elements"])
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t, time.Second)

	tests := []struct {
		name string
		path string
		body string
		want string
	}{
		{name: "update not object", path: "/update", body: `[]`, want: command.MsgNotObject},
		{name: "update fields", path: "/update", body: `{"poolId": 1}`, want: command.MsgUpdateFields},
		{name: "update key", path: "/update", body: `{"poolId": "a", "poolValues": [1]}`, want: command.MsgPoolIDInteger},
		{name: "update empty", path: "/update", body: `{"poolId": 1, "poolValues": []}`, want: command.MsgValuesNonEmpty},
		{name: "update element", path: "/update", body: `{"poolId": 1, "poolValues": [true]}`, want: command.MsgValuesReal},
		{name: "query fields", path: "/query", body: `{"percentile": 1}`, want: command.MsgQueryFields},
		{name: "query percentile", path: "/query", body: `{"poolId": 1, "percentile": "1"}`, want: command.MsgPercentileReal},
		{name: "query range", path: "/query", body: `{"poolId": 1, "percentile": 101}`, want: command.MsgPercentileBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decode[ErrorResponse](t, w).Error)
		})
	}

	// Nothing reached the store
	assert.Zero(t, s.store.Stats().Shards)
}

func TestQueryUnknownPool(t *testing.T) {
	s := newTestServer(t, time.Second)
	w := s.do(http.MethodPost, "/query", `{"poolId": 12, "percentile": 50}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "poolId does not exist", decode[ErrorResponse](t, w).Error)
}

func TestCorruptShardIs500(t *testing.T) {
	s := newTestServer(t, time.Second)
	s.store.Put(0, []byte("broken"))

	w := s.do(http.MethodPost, "/query", `{"poolId": 12, "percentile": 50}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode[ErrorResponse](t, w).Error)
	assert.Contains(t, s.logs.String(), "shard 0 is corrupt")
}

func TestLockTimeoutIs503(t *testing.T) {
	s := newTestServer(t, 20*time.Millisecond)
	_, release, err := s.svc.Registry().Lock(context.Background(), 7000, 0)
	require.NoError(t, err)
	defer release()

	w := s.do(http.MethodPost, "/update", `{"poolId": 7001, "poolValues": [1]}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestShardEndpoints(t *testing.T) {
	s := newTestServer(t, time.Second)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/update", `{"poolId": 2500, "poolValues": [2, 1]}`).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/query", `{"poolId": 2500, "percentile": 50}`).Code)

	w := s.do(http.MethodGet, "/shards", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[ShardsResponse](t, w)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, int64(2), list.Shards[0].ID)

	w = s.do(http.MethodGet, "/shards/2/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[ShardStatsResponse](t, w)
	assert.Equal(t, int64(2), stats.ShardID)
	assert.True(t, stats.Persisted)
	assert.Equal(t, uint64(1), stats.Ops.Updates)
	assert.Equal(t, uint64(1), stats.Ops.Queries)
	assert.Equal(t, uint64(2), stats.Ops.Saves)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/shards/3/stats", "").Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/shards/x/stats", "").Code)

	w = s.do(http.MethodGet, "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[InfoResponse](t, w)
	assert.Equal(t, "memory", info.Backend)
	assert.Equal(t, 1, info.ShardsPersisted)
	assert.Equal(t, 1, info.ShardsActive)
	assert.Positive(t, info.Bytes)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, time.Second)
	s.do(http.MethodPost, "/update", `{"poolId": 1, "poolValues": [1]}`)

	w := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pooldb_commands_total{command="update",result="ok"} 1`)
}

func TestRequestIDPropagates(t *testing.T) {
	s := newTestServer(t, time.Second)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
	assert.Contains(t, s.logs.String(), `"request_id":"abc-123"`)
}

func TestRecoveryReturns500(t *testing.T) {
	s := newTestServer(t, time.Second)
	s.router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := s.do(http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, s.logs.String(), "handler panic")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: &command.ValidationError{Message: "x"}, want: http.StatusBadRequest},
		{err: service.ErrUnknownKey, want: http.StatusBadRequest},
		{err: fmt.Errorf("shard 1: %w", shard.ErrLockTimeout), want: http.StatusServiceUnavailable},
		{err: context.Canceled, want: http.StatusServiceUnavailable},
		{err: &storage.CorruptShardError{ShardID: 1, Err: errors.New("x")}, want: http.StatusInternalServerError},
		{err: &storage.PersistenceError{ShardID: 1, Op: "save", Err: errors.New("x")}, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}
