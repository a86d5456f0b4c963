package datanode

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stratadb/stratadb"
)

// NewServer builds the gin engine a datanode process runs to serve facade's
// operations over the wire shape HTTPClient speaks (spec.md §4.6). Grounded
// on internal/frontend's construction-time router, generalized to a
// datanode-side surface instead of the cluster-facing one.
func NewServer(facade Facade) *gin.Engine {
	router := gin.Default()
	v1 := router.Group("/v1/regions")
	{
		v1.POST("/open", openRegionHandler(facade))
		v1.POST("/close", closeRegionHandler(facade))
		v1.POST("/manifest", regionManifestHandler(facade))
		v1.POST("/lease", setLeaseHandler(facade))
		v1.POST("/invalidate-cache", invalidateCacheHandler(facade))
	}
	return router
}

func openRegionHandler(facade Facade) gin.HandlerFunc {
	return func(gc *gin.Context) {
		var req openRegionRequest
		if err := gc.ShouldBindJSON(&req); err != nil {
			gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		openedAt, err := facade.OpenRegion(gc.Request.Context(), req.Token, req.Role)
		if writeErr(gc, err) {
			return
		}
		gc.JSON(http.StatusOK, openRegionResponse{OpenedAt: openedAt})
	}
}

func closeRegionHandler(facade Facade) gin.HandlerFunc {
	return func(gc *gin.Context) {
		var tok Token
		if err := gc.ShouldBindJSON(&tok); err != nil {
			gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if writeErr(gc, facade.CloseRegion(gc.Request.Context(), tok)) {
			return
		}
		gc.Status(http.StatusOK)
	}
}

func regionManifestHandler(facade Facade) gin.HandlerFunc {
	return func(gc *gin.Context) {
		var tok Token
		if err := gc.ShouldBindJSON(&tok); err != nil {
			gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		manifest, err := facade.RegionManifest(gc.Request.Context(), tok)
		if writeErr(gc, err) {
			return
		}
		gc.JSON(http.StatusOK, manifest)
	}
}

func setLeaseHandler(facade Facade) gin.HandlerFunc {
	return func(gc *gin.Context) {
		var req setLeaseRequest
		if err := gc.ShouldBindJSON(&req); err != nil {
			gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if writeErr(gc, facade.SetLease(gc.Request.Context(), req.Token, req.Lease)) {
			return
		}
		gc.Status(http.StatusOK)
	}
}

func invalidateCacheHandler(facade Facade) gin.HandlerFunc {
	return func(gc *gin.Context) {
		var tok Token
		if err := gc.ShouldBindJSON(&tok); err != nil {
			gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if writeErr(gc, facade.InvalidateCache(gc.Request.Context(), tok)) {
			return
		}
		gc.Status(http.StatusOK)
	}
}

// writeErr translates a stratadb.Error into the status codes HTTPClient.post
// interprets (409 TargetRejected, 404 RegionRouteNotFound, 5xx
// Transient/Unknown/Catastrophic, 400 everything else), writing the response
// and reporting whether it did.
func writeErr(gc *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	switch stratadb.KindOf(err) {
	case stratadb.TargetRejected:
		gc.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case stratadb.RegionRouteNotFound:
		gc.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case stratadb.Transient, stratadb.Unknown, stratadb.Catastrophic:
		gc.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		gc.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
	return true
}
