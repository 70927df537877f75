package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/pooldb/internal/api"
	"github.com/dreamware/pooldb/internal/command"
	"github.com/dreamware/pooldb/internal/service"
	"github.com/dreamware/pooldb/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newServer runs the real router over a memory store
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := service.New(service.Config{Store: storage.NewMemoryStore(), LockTimeout: time.Second})
	require.NoError(t, err)
	srv := httptest.NewServer(api.NewRouter(api.Config{Service: svc, Gatherer: prometheus.NewRegistry()}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL+"/", nil)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	res, err := c.Update(ctx, command.Update{Key: 99991369, Values: []float64{3, 1}})
	require.NoError(t, err)
	assert.Equal(t, service.StatusInserted, res.Status)

	res, err = c.Update(ctx, command.Update{Key: 99991369, Values: []float64{2}})
	require.NoError(t, err)
	assert.Equal(t, service.StatusAppended, res.Status)

	q, err := c.Query(ctx, command.Query{Key: 99991369, Percentile: 50})
	require.NoError(t, err)
	assert.Equal(t, 2.0, q.Quantile)
	assert.Equal(t, 3, q.Count)
}

func TestClientAPIError(t *testing.T) {
	srv := newServer(t)
	c := New(srv.URL, nil)

	_, err := c.Query(context.Background(), command.Query{Key: 1, Percentile: 50})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "poolId does not exist", apiErr.Message)
	assert.False(t, apiErr.Temporary())
}

func TestClientValidatesLocally(t *testing.T) {
	// No server: validation must fail before any request is made
	c := New("http://127.0.0.1:0", nil)

	_, err := c.Update(context.Background(), command.Update{Key: 1})
	assert.True(t, command.IsValidation(err))

	_, err = c.Query(context.Background(), command.Query{Key: 1, Percentile: 120})
	assert.True(t, command.IsValidation(err))
}

func TestAPIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := New(srv.URL, nil).Health(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Temporary())
	assert.Equal(t, "http 503", apiErr.Error())
}
