package datanode

import (
	"context"
	"testing"

	"github.com/stratadb/stratadb"
)

type fakeInvalidator struct {
	calls []stratadb.RegionID
}

func (f *fakeInvalidator) InvalidateRegion(_ context.Context, regionID stratadb.RegionID) {
	f.calls = append(f.calls, regionID)
}

func TestRegionStoreOpenRegionTracksOffset(t *testing.T) {
	ctx := context.Background()
	s := NewRegionStore(&fakeInvalidator{})
	region := stratadb.NewRegionID(1, 1)
	s.SeedManifest(region, Manifest{LastOffset: 42})

	openedAt, err := s.OpenRegion(ctx, Token{RegionID: region, StepToken: 1}, Follower)
	if err != nil {
		t.Fatalf("OpenRegion: %v", err)
	}
	if openedAt != 42 {
		t.Fatalf("openedAt = %d, want 42", openedAt)
	}
}

func TestRegionStoreStaleStepTokenRejected(t *testing.T) {
	ctx := context.Background()
	s := NewRegionStore(&fakeInvalidator{})
	region := stratadb.NewRegionID(1, 1)

	if _, err := s.OpenRegion(ctx, Token{RegionID: region, StepToken: 5}, Leader); err != nil {
		t.Fatalf("OpenRegion: %v", err)
	}
	_, err := s.OpenRegion(ctx, Token{RegionID: region, StepToken: 2}, Leader)
	if stratadb.KindOf(err) != stratadb.Transient {
		t.Fatalf("stale step token should be rejected as Transient, got %v", err)
	}
}

func TestRegionStoreUnknownRegionNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewRegionStore(&fakeInvalidator{})
	region := stratadb.NewRegionID(1, 1)

	_, err := s.RegionManifest(ctx, Token{RegionID: region})
	if stratadb.KindOf(err) != stratadb.RegionRouteNotFound {
		t.Fatalf("unknown region should be RegionRouteNotFound, got %v", err)
	}
	if err := s.SetLease(ctx, Token{RegionID: region}, LeaseExpiring); stratadb.KindOf(err) != stratadb.RegionRouteNotFound {
		t.Fatalf("SetLease on unknown region should be RegionRouteNotFound, got %v", err)
	}
	if err := s.InvalidateCache(ctx, Token{RegionID: region}); stratadb.KindOf(err) != stratadb.RegionRouteNotFound {
		t.Fatalf("InvalidateCache on unknown region should be RegionRouteNotFound, got %v", err)
	}
}

func TestRegionStoreCloseRegionReleasesLease(t *testing.T) {
	ctx := context.Background()
	s := NewRegionStore(&fakeInvalidator{})
	region := stratadb.NewRegionID(1, 1)

	if _, err := s.OpenRegion(ctx, Token{RegionID: region, StepToken: 1}, Leader); err != nil {
		t.Fatalf("OpenRegion: %v", err)
	}
	if err := s.CloseRegion(ctx, Token{RegionID: region, StepToken: 2}); err != nil {
		t.Fatalf("CloseRegion: %v", err)
	}
	if st := s.regions[region]; st.open || st.lease != LeaseReleased {
		t.Fatalf("after CloseRegion: open=%v lease=%v, want closed with LeaseReleased", st.open, st.lease)
	}
	if err := s.SetLease(ctx, Token{RegionID: region, StepToken: 3}, LeaseActive); err != nil {
		t.Fatalf("SetLease after close: %v", err)
	}
}

func TestRegionStoreCloseUnknownRegionIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewRegionStore(&fakeInvalidator{})
	region := stratadb.NewRegionID(1, 1)

	if err := s.CloseRegion(ctx, Token{RegionID: region}); err != nil {
		t.Fatalf("closing an unknown region should be a no-op, got %v", err)
	}
}

func TestRegionStoreInvalidateCacheRoutesThroughCache(t *testing.T) {
	ctx := context.Background()
	cache := &fakeInvalidator{}
	s := NewRegionStore(cache)
	region := stratadb.NewRegionID(1, 1)
	s.SeedManifest(region, Manifest{})

	if err := s.InvalidateCache(ctx, Token{RegionID: region}); err != nil {
		t.Fatalf("InvalidateCache: %v", err)
	}
	if len(cache.calls) != 1 || cache.calls[0] != region {
		t.Fatalf("expected cache invalidated for %v, got %v", region, cache.calls)
	}
}
