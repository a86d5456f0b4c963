package datanode

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stratadb/stratadb"
)

func newTestServer(t *testing.T) (*gin.Engine, *RegionStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := NewRegionStore(&fakeInvalidator{})
	return NewServer(store), store
}

func doJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestServerOpenRegionRoundTrip(t *testing.T) {
	router, store := newTestServer(t)
	region := stratadb.NewRegionID(1, 1)
	store.SeedManifest(region, Manifest{LastOffset: 7})

	rec := doJSON(t, router, "/v1/regions/open", openRegionRequest{
		Token: Token{RegionID: region, StepToken: 1},
		Role:  Follower,
	})
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp openRegionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OpenedAt != 7 {
		t.Fatalf("OpenedAt = %d, want 7", resp.OpenedAt)
	}
}

func TestServerRegionManifestUnknownRegionIs404(t *testing.T) {
	router, _ := newTestServer(t)
	region := stratadb.NewRegionID(2, 2)

	rec := doJSON(t, router, "/v1/regions/manifest", Token{RegionID: region})
	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404; body = %s", rec.Code, rec.Body.String())
	}
}

func TestServerInvalidateCacheRoutesThroughCache(t *testing.T) {
	router, store := newTestServer(t)
	region := stratadb.NewRegionID(3, 3)
	store.SeedManifest(region, Manifest{})

	rec := doJSON(t, router, "/v1/regions/invalidate-cache", Token{RegionID: region})
	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestServerMalformedBodyIs400(t *testing.T) {
	router, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/v1/regions/open", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
