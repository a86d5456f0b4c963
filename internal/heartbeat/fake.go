package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratadb/stratadb"
)

// FakeBus is an in-process LivenessChecker/InstructionPusher double used by
// internal/migration's scenario tests (spec.md §8), which run without a live
// Redis instance. By default every peer reported via MarkReachable is
// considered live; peers never marked are unreachable, matching submit
// validation rule 3.
type FakeBus struct {
	mu           sync.Mutex
	reachable    map[uint64]time.Time
	instructions map[uint64][]Instruction
}

// NewFakeBus returns a FakeBus with no peers marked reachable.
func NewFakeBus() *FakeBus {
	return &FakeBus{
		reachable:    make(map[uint64]time.Time),
		instructions: make(map[uint64][]Instruction),
	}
}

// MarkReachable records peerID as having heartbeated at now, so
// IsReachable(peerID, window) holds while the wall-clock time since now is
// within window.
func (f *FakeBus) MarkReachable(peerID uint64, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reachable[peerID] = now
}

func (f *FakeBus) IsReachable(_ context.Context, peerID uint64, window time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.reachable[peerID]
	if !ok {
		return false, nil
	}
	return time.Since(last) <= window, nil
}

func (f *FakeBus) PushInstruction(_ context.Context, peerID uint64, instr Instruction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instructions[peerID] = append(f.instructions[peerID], instr)
	return nil
}

// Instructions returns every instruction pushed to peerID so far, in order.
func (f *FakeBus) Instructions(peerID uint64) []Instruction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Instruction(nil), f.instructions[peerID]...)
}

type fakeLease struct {
	token string
	state string // "active", "expiring"
}

// FakeLeaseManager is an in-process Leaser double, grounded on the same
// acquire/renew/expire/release semantics as LeaseManager but backed by a map
// instead of Redis.
type FakeLeaseManager struct {
	mu     sync.Mutex
	leases map[stratadb.RegionID]*fakeLease
}

// NewFakeLeaseManager returns a FakeLeaseManager with no leases held.
func NewFakeLeaseManager() *FakeLeaseManager {
	return &FakeLeaseManager{leases: make(map[stratadb.RegionID]*fakeLease)}
}

func (f *FakeLeaseManager) Acquire(_ context.Context, regionID stratadb.RegionID, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.leases[regionID]; ok {
		return "", stratadb.NewError(stratadb.Transient, fmt.Errorf("heartbeat: region %s write lease already held", regionID))
	}
	token := uuid.NewString()
	f.leases[regionID] = &fakeLease{token: token, state: "active"}
	return token, nil
}

func (f *FakeLeaseManager) Renew(_ context.Context, regionID stratadb.RegionID, token string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leases[regionID]
	if !ok || l.token != token {
		return stratadb.NewError(stratadb.Transient, fmt.Errorf("heartbeat: region %s lease expired", regionID))
	}
	return nil
}

func (f *FakeLeaseManager) Expire(_ context.Context, regionID stratadb.RegionID, token string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leases[regionID]
	if !ok || l.token != token {
		return stratadb.NewError(stratadb.Transient, fmt.Errorf("heartbeat: region %s lease expired", regionID))
	}
	l.state = "expiring"
	return nil
}

func (f *FakeLeaseManager) Release(_ context.Context, regionID stratadb.RegionID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leases[regionID]
	if !ok || l.token != token {
		return nil
	}
	delete(f.leases, regionID)
	return nil
}

func (f *FakeLeaseManager) IsHeld(_ context.Context, regionID stratadb.RegionID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.leases[regionID]
	return ok, nil
}

// State reports "active", "expiring", or "" (not held) for regionID, used by
// tests asserting FreezeSourceWrites transitioned the lease.
func (f *FakeLeaseManager) State(regionID stratadb.RegionID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.leases[regionID]; ok {
		return l.state
	}
	return ""
}
