// Package datanode defines the Datanode Facade (C2): the minimal per-datanode
// RPC surface the region migration procedure drives on a source or target
// peer. The transport itself is out of scope (spec.md §1 scopes the HTTP/gRPC
// transport out as an external collaborator) — this package specifies the
// contract and carries it over plain JSON-over-HTTP.
package datanode

import (
	"context"

	"github.com/stratadb/stratadb"
)

// Role is the mode a region is opened in on a datanode.
type Role int

const (
	// Leader opens the region for both reads and writes.
	Leader Role = iota
	// Follower opens the region tailing the WAL without serving writes.
	Follower
)

func (r Role) String() string {
	if r == Leader {
		return "Leader"
	}
	return "Follower"
}

// LeaseState describes the write lease state set on a region, spec.md §5.
type LeaseState int

const (
	// LeaseActive accepts writes normally.
	LeaseActive LeaseState = iota
	// LeaseExpiring rejects new writes; in-flight writes drain within a grace period.
	LeaseExpiring
	// LeaseReleased means the peer has given up the write lease entirely.
	LeaseReleased
)

// Manifest is the subset of a region's on-disk state the procedure needs to
// decide readiness and verify catch-up, spec.md §4.6.
type Manifest struct {
	LastOffset uint64
	SchemaHash string
	SizeBytes  int64
}

// Token carries the fields every Datanode Facade RPC must present, spec.md §6:
// a monotonically increasing per-procedure-attempt step token rejects stale
// retries from a superseded migration attempt.
type Token struct {
	ClusterID   string
	RegionID    stratadb.RegionID
	ProcedureID string
	StepToken   uint64
}

// Facade is the RPC surface C6 drives on a source or target datanode. Every
// operation is idempotent: re-issuing it with the same step token for an
// already-applied state is a no-op, but an operation carrying a step token
// older than the highest one observed for this region must be rejected as a
// stale retry.
type Facade interface {
	// OpenRegion opens regionID in the given role, returning the offset it was
	// opened at. Reopening an already-open follower is a no-op (spec.md §4.4
	// OpenRegionFollower idempotence).
	OpenRegion(ctx context.Context, tok Token, role Role) (openedAt uint64, err error)
	// CloseRegion closes regionID, releasing any lease and deleting the
	// in-memory memtable; SSTs are retained until GC (spec.md §4.4 CloseSourceRegion).
	CloseRegion(ctx context.Context, tok Token) error
	// RegionManifest reports the region's current durable state.
	RegionManifest(ctx context.Context, tok Token) (Manifest, error)
	// SetLease transitions the region's write lease (spec.md §4.4 FreezeSourceWrites).
	SetLease(ctx context.Context, tok Token, lease LeaseState) error
	// InvalidateCache asks the peer to drop any cached state for regionID
	// (spec.md §4.4 InvalidateCaches).
	InvalidateCache(ctx context.Context, tok Token) error
}
