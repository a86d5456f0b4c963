package datanode

import (
	"context"
	"sync"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/cachehierarchy"
)

type regionState struct {
	role     Role
	open     bool
	manifest Manifest
	lease    LeaseState
	lastStep uint64
}

// CacheInvalidator drops a datanode's cached state for a region, called by
// RegionStore.InvalidateCache (spec.md §4.4 InvalidateCaches). Satisfied by
// *cachehierarchy.Hierarchy in production wiring.
type CacheInvalidator interface {
	InvalidateRegion(ctx context.Context, regionID stratadb.RegionID)
}

// RegionStore is the production Facade (C2) a datanode process serves over
// HTTP: it tracks each locally-hosted region's open/role/manifest/lease state
// in memory and routes InvalidateCache through the cache hierarchy. The
// region's durable WAL/SST engine behind LastOffset/SizeBytes is out of
// scope (spec.md §1 scopes storage internals out) — SeedManifest is the seam
// a real engine would call into as it ingests writes and flushes files.
type RegionStore struct {
	mu      sync.Mutex
	regions map[stratadb.RegionID]*regionState
	cache   CacheInvalidator
}

// NewRegionStore returns an empty RegionStore whose InvalidateCache routes
// through cache.
func NewRegionStore(cache CacheInvalidator) *RegionStore {
	return &RegionStore{regions: make(map[stratadb.RegionID]*regionState), cache: cache}
}

// SeedManifest installs or overwrites regionID's manifest, called by the
// storage engine as it opens regions at startup or flushes new SSTs.
func (s *RegionStore) SeedManifest(regionID stratadb.RegionID, manifest Manifest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.regions[regionID]
	if !ok {
		st = &regionState{lease: LeaseActive}
		s.regions[regionID] = st
	}
	st.manifest = manifest
}

func (s *RegionStore) checkToken(st *regionState, tok Token) error {
	if tok.StepToken < st.lastStep {
		return stratadb.NewError(stratadb.Transient, errStaleStepToken)
	}
	st.lastStep = tok.StepToken
	return nil
}

func (s *RegionStore) OpenRegion(_ context.Context, tok Token, role Role) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.regions[tok.RegionID]
	if !ok {
		st = &regionState{lease: LeaseActive}
		s.regions[tok.RegionID] = st
	}
	if err := s.checkToken(st, tok); err != nil {
		return 0, err
	}
	st.open = true
	st.role = role
	return st.manifest.LastOffset, nil
}

func (s *RegionStore) CloseRegion(_ context.Context, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.regions[tok.RegionID]
	if !ok {
		return nil
	}
	if err := s.checkToken(st, tok); err != nil {
		return err
	}
	st.open = false
	st.lease = LeaseReleased
	return nil
}

func (s *RegionStore) RegionManifest(_ context.Context, tok Token) (Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.regions[tok.RegionID]
	if !ok {
		return Manifest{}, stratadb.NewError(stratadb.RegionRouteNotFound, errUnknownRegion)
	}
	if err := s.checkToken(st, tok); err != nil {
		return Manifest{}, err
	}
	return st.manifest, nil
}

func (s *RegionStore) SetLease(_ context.Context, tok Token, lease LeaseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.regions[tok.RegionID]
	if !ok {
		return stratadb.NewError(stratadb.RegionRouteNotFound, errUnknownRegion)
	}
	if err := s.checkToken(st, tok); err != nil {
		return err
	}
	st.lease = lease
	return nil
}

func (s *RegionStore) InvalidateCache(ctx context.Context, tok Token) error {
	s.mu.Lock()
	_, ok := s.regions[tok.RegionID]
	s.mu.Unlock()
	if !ok {
		return stratadb.NewError(stratadb.RegionRouteNotFound, errUnknownRegion)
	}
	s.cache.InvalidateRegion(ctx, tok.RegionID)
	return nil
}
