package heartbeat

import (
	"context"
	"time"

	"github.com/stratadb/stratadb"
)

// LivenessChecker is the liveness-window check the Region-Migration Manager
// uses for submit validation rule 3 (spec.md §4.3): "to_peer must be
// reachable (heartbeat within liveness window)". Satisfied by *Bus and by
// *FakeBus in tests.
type LivenessChecker interface {
	IsReachable(ctx context.Context, peerID uint64, window time.Duration) (bool, error)
}

// InstructionPusher piggybacks cluster-initiated instructions (cache
// invalidation, close-region) onto a peer's next heartbeat reply. Satisfied
// by *Bus and by *FakeBus in tests.
type InstructionPusher interface {
	PushInstruction(ctx context.Context, peerID uint64, instr Instruction) error
}

// Leaser is the write-lease surface FreezeSourceWrites/CloseSourceRegion
// drive (spec.md §4.4, §5). Satisfied by *LeaseManager and by *FakeLeaseManager
// in tests.
type Leaser interface {
	Acquire(ctx context.Context, regionID stratadb.RegionID, ttl time.Duration) (token string, err error)
	Renew(ctx context.Context, regionID stratadb.RegionID, token string, ttl time.Duration) error
	Expire(ctx context.Context, regionID stratadb.RegionID, token string, grace time.Duration) error
	Release(ctx context.Context, regionID stratadb.RegionID, token string) error
	IsHeld(ctx context.Context, regionID stratadb.RegionID) (bool, error)
}
