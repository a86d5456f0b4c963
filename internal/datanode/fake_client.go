package datanode

import (
	"context"
	"sync"

	"github.com/stratadb/stratadb"
)

type fakeRegionState struct {
	role        Role
	open        bool
	manifest    Manifest
	lease       LeaseState
	lastStep    uint64
	invalidated int
}

// FakeClient is an in-memory Facade used by internal/migration's scenario
// tests (spec.md §8) in place of a live datanode. It models a region's WAL
// position as a simple offset counter: Advance bumps the last offset of a
// region on this client to simulate new writes landing. Nothing copies
// offsets between clients, so a follower's offset on another FakeClient moves
// only when Advance is called on that client.
type FakeClient struct {
	mu      sync.Mutex
	regions map[stratadb.RegionID]*fakeRegionState
	// Unreachable, when set, makes every RPC for this peer fail as Transient —
	// used to simulate a datanode that stops answering RPCs. Submit-validation
	// rule 3 reads heartbeat liveness and does not consult this flag.
	Unreachable bool
	// RejectOpen, when set, makes OpenRegion return TargetRejected — used to
	// simulate PrepareTarget's disk-full/schema-mismatch permanent failure.
	RejectOpen bool
}

// NewFakeClient returns a FakeClient with no regions open.
func NewFakeClient() *FakeClient {
	return &FakeClient{regions: make(map[stratadb.RegionID]*fakeRegionState)}
}

// Seed installs regionID as already open in role with the given starting
// manifest, simulating a pre-existing leader region.
func (f *FakeClient) Seed(regionID stratadb.RegionID, role Role, manifest Manifest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regions[regionID] = &fakeRegionState{role: role, open: true, manifest: manifest, lease: LeaseActive}
}

// Advance simulates n more WAL entries landing on regionID's leader, bumping
// LastOffset so a polling follower eventually observes lag == 0.
func (f *FakeClient) Advance(regionID stratadb.RegionID, n uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.regions[regionID]; ok {
		st.manifest.LastOffset += n
	}
}

func (f *FakeClient) checkToken(st *fakeRegionState, tok Token) error {
	if tok.StepToken < st.lastStep {
		return stratadb.NewError(stratadb.Transient, errStaleStepToken)
	}
	st.lastStep = tok.StepToken
	return nil
}

func (f *FakeClient) OpenRegion(_ context.Context, tok Token, role Role) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable {
		return 0, stratadb.NewError(stratadb.Transient, errUnreachable)
	}
	if f.RejectOpen {
		return 0, stratadb.NewError(stratadb.TargetRejected, errRejected)
	}
	st, ok := f.regions[tok.RegionID]
	if !ok {
		st = &fakeRegionState{lease: LeaseActive}
		f.regions[tok.RegionID] = st
	}
	if err := f.checkToken(st, tok); err != nil {
		return 0, err
	}
	if st.open && st.role == role {
		return st.manifest.LastOffset, nil
	}
	st.open = true
	st.role = role
	return st.manifest.LastOffset, nil
}

func (f *FakeClient) CloseRegion(_ context.Context, tok Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable {
		return stratadb.NewError(stratadb.Transient, errUnreachable)
	}
	st, ok := f.regions[tok.RegionID]
	if !ok {
		return nil
	}
	if err := f.checkToken(st, tok); err != nil {
		return err
	}
	st.open = false
	st.lease = LeaseReleased
	return nil
}

func (f *FakeClient) RegionManifest(_ context.Context, tok Token) (Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable {
		return Manifest{}, stratadb.NewError(stratadb.Transient, errUnreachable)
	}
	st, ok := f.regions[tok.RegionID]
	if !ok {
		return Manifest{}, nil
	}
	return st.manifest, nil
}

func (f *FakeClient) SetLease(_ context.Context, tok Token, lease LeaseState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable {
		return stratadb.NewError(stratadb.Transient, errUnreachable)
	}
	st, ok := f.regions[tok.RegionID]
	if !ok {
		st = &fakeRegionState{}
		f.regions[tok.RegionID] = st
	}
	if err := f.checkToken(st, tok); err != nil {
		return err
	}
	st.lease = lease
	return nil
}

func (f *FakeClient) InvalidateCache(_ context.Context, tok Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Unreachable {
		return stratadb.NewError(stratadb.Transient, errUnreachable)
	}
	st, ok := f.regions[tok.RegionID]
	if !ok {
		st = &fakeRegionState{}
		f.regions[tok.RegionID] = st
	}
	st.invalidated++
	return nil
}

// InvalidatedCount reports how many times InvalidateCache was called for
// regionID, for test assertions.
func (f *FakeClient) InvalidatedCount(regionID stratadb.RegionID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.regions[regionID]; ok {
		return st.invalidated
	}
	return 0
}

// IsOpen reports whether regionID is currently open on this peer, and in
// which role.
func (f *FakeClient) IsOpen(regionID stratadb.RegionID) (open bool, role Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.regions[regionID]
	if !ok {
		return false, Leader
	}
	return st.open, st.role
}

// Lease reports the current lease state for regionID.
func (f *FakeClient) Lease(regionID stratadb.RegionID) LeaseState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := f.regions[regionID]; ok {
		return st.lease
	}
	return LeaseActive
}
