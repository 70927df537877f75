package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dreamware/pooldb/internal/command"
	"github.com/dreamware/pooldb/internal/service"
	"github.com/dreamware/pooldb/internal/shard"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ShardStatsResponse is the body of GET /shards/:id/stats.
type ShardStatsResponse struct {
	ShardID   int64                `json:"shard_id"`
	Ops       shard.OperationStats `json:"operations"`
	Persisted bool                 `json:"persisted"`
}

// ShardsResponse is the body of GET /shards.
type ShardsResponse struct {
	Shards []shard.ShardInfo `json:"shards"`
	Count  int               `json:"shard_count"`
}

// InfoResponse is the body of GET /info.
type InfoResponse struct {
	Backend         string `json:"backend"`
	ShardsPersisted int    `json:"shards_persisted"`
	Bytes           int64  `json:"bytes"`
	ShardsActive    int    `json:"shards_active"`
}

// HandleUpdate handles POST /update.
//
// Request:
//
//	{"poolId": 99991369, "poolValues": [1, 7, 2, 6]}
//
// Response:
//
//	200 OK: {"status": "inserted"} or {"status": "appended"}
//	400 Bad Request: validation failure
func (h *Handlers) HandleUpdate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, err)
		return
	}
	cmd, err := command.ParseUpdate(body)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.svc.Update(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleQuery handles POST /query.
//
// Request:
//
//	{"poolId": 99991369, "percentile": 90}
//
// Response:
//
//	200 OK: {"calculated_quantile": 6.4, "total_count_of_elements": 7}
//	400 Bad Request: validation failure or unknown poolId
func (h *Handlers) HandleQuery(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, err)
		return
	}
	cmd, err := command.ParseQuery(body)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.svc.Query(c.Request.Context(), cmd)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleHealth handles GET /health.
func HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleListShards handles GET /shards. Only shards touched since startup
// are listed.
func (h *Handlers) HandleListShards(c *gin.Context) {
	infos := h.svc.Registry().Infos()
	c.JSON(http.StatusOK, ShardsResponse{Shards: infos, Count: len(infos)})
}

// HandleShardStats handles GET /shards/:id/stats.
//
// Response:
//
//	200 OK: ShardStatsResponse
//	400 Bad Request: id is not an integer
//	404 Not Found: shard not touched since startup
func (h *Handlers) HandleShardStats(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "shard id must be an integer"})
		return
	}
	sh, ok := h.svc.Registry().Lookup(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "shard not found"})
		return
	}
	persisted, err := h.svc.Store().Exists(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ShardStatsResponse{
		ShardID:   id,
		Ops:       sh.GetStats(),
		Persisted: persisted,
	})
}

// HandleInfo handles GET /info.
func (h *Handlers) HandleInfo(c *gin.Context) {
	stats := h.svc.Store().Stats()
	c.JSON(http.StatusOK, InfoResponse{
		Backend:         stats.Backend,
		ShardsPersisted: stats.Shards,
		Bytes:           stats.Bytes,
		ShardsActive:    len(h.svc.Registry().Infos()),
	})
}

// fail maps err to a status code and writes the error body. Internal
// failures are logged and their details withheld from the client.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"path", c.Request.URL.Path,
			"request_id", c.GetString(ctxRequestID),
			"error", err,
		)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

// StatusFor maps a command error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case command.IsValidation(err), errors.Is(err, service.ErrUnknownKey):
		return http.StatusBadRequest
	case errors.Is(err, shard.ErrLockTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
