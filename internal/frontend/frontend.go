// Package frontend exposes the SQL-surface operations of spec.md §6
// (migrate_region, procedure_state) and the partitions/greptime_region_peers
// information-schema join as plain HTTP endpoints, grounded on the teacher's
// restapi/main/main.go gin + gin-swagger wiring.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/metastore"
	"github.com/stratadb/stratadb/internal/migration"
	"github.com/stratadb/stratadb/internal/promresp"
	"github.com/stratadb/stratadb/internal/selector"
)

// QueryExecutor runs a Prometheus-shaped range query and returns the raw
// columnar result; the query language itself is out of scope (spec.md §1
// scopes SQL/PromQL parsing out as an external collaborator) — this is the
// thin seam frontend needs to hand results to internal/promresp.
type QueryExecutor interface {
	QueryRange(ctx *gin.Context, metricName string) ([]promresp.RecordBatch, error)
}

// Context bundles every capability the HTTP handlers need, passed by
// reference at construction time rather than held as process globals
// (spec.md §9 "Global service state").
type Context struct {
	Manager  *migration.Manager
	Routes   *metastore.Routes
	Query    QueryExecutor     // nil disables the Prometheus query_range endpoint
	Selector selector.Selector // nil requires callers to name to_peer_id explicitly
}

// NewRouter builds the gin engine exposing Context's operations plus
// Swagger docs, grounded on the teacher's restapi/main/main.go route
// registration (minus its Okta bearer-token middleware — see DESIGN.md).
func NewRouter(ctx *Context) *gin.Engine {
	router := gin.Default()

	v1 := router.Group("/api/v1")
	{
		v1.POST("/migrate_region", ctx.migrateRegion)
		v1.GET("/procedure_state/:id", ctx.procedureState)
		v1.GET("/partitions", ctx.partitions)
		if ctx.Query != nil {
			v1.GET("/prometheus/query_range", ctx.queryRange)
		}
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
	return router
}

type migrateRegionRequest struct {
	RegionID   uint64 `json:"region_id" binding:"required"`
	FromPeerID uint64 `json:"from_peer_id" binding:"required"`
	// ToPeerID is optional: omitting it (or sending 0) asks Context.Selector to
	// choose a target, excluding FromPeerID. Requires Selector to be set.
	ToPeerID  uint64 `json:"to_peer_id"`
	ClusterID string `json:"cluster_id"`
}

// migrateRegion implements `select migrate_region(region_id, from_peer_id,
// to_peer_id) → procedure_id: string` (spec.md §6) over HTTP.
//
// @Summary Submit a region migration
// @Accept json
// @Produce json
// @Router /migrate_region [post]
func (c *Context) migrateRegion(gc *gin.Context) {
	var req migrateRegionRequest
	if err := gc.ShouldBindJSON(&req); err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	toPeer, err := c.resolveTarget(gc.Request.Context(), req)
	if err != nil {
		gc.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	task := migration.Task{
		ClusterID: req.ClusterID,
		RegionID:  stratadb.RegionID(req.RegionID),
		FromPeer:  stratadb.Peer{ID: req.FromPeerID},
		ToPeer:    toPeer,
	}
	id, err := c.Manager.Submit(gc.Request.Context(), task)
	if err != nil {
		gc.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	if id == nil {
		gc.JSON(http.StatusOK, gin.H{"procedure_id": nil})
		return
	}
	gc.JSON(http.StatusOK, gin.H{"procedure_id": id.String()})
}

// procedureState implements `select procedure_state(procedure_id) → json
// string` (spec.md §6).
//
// @Summary Fetch a migration procedure's current status
// @Produce json
// @Router /procedure_state/{id} [get]
func (c *Context) procedureState(gc *gin.Context) {
	id, err := uuidParam(gc.Param("id"))
	if err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := c.Manager.Status(gc.Request.Context(), id)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			gc.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		gc.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	gc.JSON(http.StatusOK, gin.H{
		"status":     rec.Status,
		"last_error": rec.LastError,
	})
}

// partitions implements the partitions/greptime_region_peers information-
// schema join (spec.md §6): `partitions.greptime_partition_id =
// greptime_region_peers.region_id` → (datanode_id, region_id).
//
// @Summary List the region distribution for a table
// @Produce json
// @Router /partitions [get]
func (c *Context) partitions(gc *gin.Context) {
	tableID, err := strconv.ParseUint(gc.Query("table_id"), 10, 32)
	if err != nil {
		gc.JSON(http.StatusBadRequest, gin.H{"error": "table_id is required and must be a uint32"})
		return
	}
	dist, err := c.Routes.Distribution(gc.Request.Context(), uint32(tableID))
	if err != nil {
		gc.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	type row struct {
		DatanodeID uint64 `json:"datanode_id"`
		RegionID   uint32 `json:"region_id"`
	}
	rows := make([]row, 0)
	for datanodeID, regionNumbers := range dist {
		for _, n := range regionNumbers {
			rows = append(rows, row{DatanodeID: datanodeID, RegionID: n})
		}
	}
	gc.JSON(http.StatusOK, gin.H{"partitions": rows})
}

// queryRange serves the Prometheus HTTP API's query_range shape as a matrix
// result. It sets no per-query plan-metrics response header.
//
// @Summary Run a Prometheus-compatible range query
// @Produce json
// @Router /prometheus/query_range [get]
func (c *Context) queryRange(gc *gin.Context) {
	metric := gc.Query("metric")
	if metric == "" {
		gc.JSON(http.StatusBadRequest, gin.H{"error": "metric is required"})
		return
	}
	batches, err := c.Query.QueryRange(gc, metric)
	if err != nil {
		gc.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	resp, err := promresp.Encode(metric, batches, promresp.Matrix)
	if err != nil {
		gc.JSON(http.StatusInternalServerError, promresp.ErrorResponse("InternalError", err.Error()))
		return
	}
	gc.JSON(http.StatusOK, resp)
}

// resolveTarget returns req's explicit ToPeerID, or asks Context.Selector for
// a candidate (excluding FromPeerID) when the caller omitted one.
func (c *Context) resolveTarget(ctx context.Context, req migrateRegionRequest) (stratadb.Peer, error) {
	if req.ToPeerID != 0 {
		return stratadb.Peer{ID: req.ToPeerID}, nil
	}
	if c.Selector == nil {
		return stratadb.Peer{}, stratadb.NewError(stratadb.InvalidArguments,
			errors.New("frontend: to_peer_id is required (no selector configured)"))
	}
	candidates, err := c.Selector.Select(ctx, selector.Namespace(req.ClusterID), selector.Options{
		ExcludePeers: []uint64{req.FromPeerID},
		MinCount:     1,
	})
	if err != nil {
		return stratadb.Peer{}, stratadb.NewError(stratadb.Transient, err)
	}
	if len(candidates) == 0 {
		return stratadb.Peer{}, stratadb.NewError(stratadb.InvalidArguments,
			fmt.Errorf("frontend: selector returned no candidate for region %d", req.RegionID))
	}
	return candidates[0], nil
}

func statusForError(err error) int {
	switch stratadb.KindOf(err) {
	case stratadb.InvalidArguments:
		return http.StatusBadRequest
	case stratadb.RegionRouteNotFound:
		return http.StatusNotFound
	case stratadb.RouteChanged, stratadb.TargetRejected:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var errInvalidProcedureID = errors.New("frontend: invalid procedure id")

func uuidParam(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errInvalidProcedureID
	}
	return id, nil
}
