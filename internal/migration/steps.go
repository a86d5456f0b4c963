package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/datanode"
	"github.com/stratadb/stratadb/internal/metastore"
	"github.com/stratadb/stratadb/internal/procedure"
)

// Steps builds the fixed Region Migration Procedure step sequence (spec.md
// §4.4): PrepareTarget → OpenRegionFollower → ReplicateCatchUp →
// FreezeSourceWrites → FinalReplicate → CommitRouteChange →
// CloseSourceRegion → InvalidateCaches.
func Steps(d *Deps) []procedure.Step {
	return []procedure.Step{
		&prepareTargetStep{d},
		&openRegionFollowerStep{d},
		&replicateCatchUpStep{d},
		&freezeSourceWritesStep{d},
		&finalReplicateStep{d},
		&commitRouteChangeStep{d},
		&closeSourceRegionStep{d},
		&invalidateCachesStep{d},
	}
}

// prepareTargetStep verifies the target can host the region — schema
// compatibility and (via OpenRegion's own disk/space checks) free capacity —
// by opening it in follower mode (spec.md §4.4 PrepareTarget).
type prepareTargetStep struct{ d *Deps }

func (s *prepareTargetStep) Name() string { return "PrepareTarget" }

func (s *prepareTargetStep) Run(ctx context.Context, _ procedure.Store, rec procedure.Record) ([]byte, error) {
	st, err := decodeState(rec)
	if err != nil {
		return nil, err
	}
	tok := tokenFor(st.Task, rec)

	source := s.d.dial(st.Task.FromPeer)
	sourceManifest, err := source.RegionManifest(ctx, tok)
	if err != nil {
		return nil, err
	}

	target := s.d.dial(st.Task.ToPeer)
	openedAt, err := target.OpenRegion(ctx, tok, datanode.Follower)
	if err != nil {
		return nil, err
	}
	targetManifest, err := target.RegionManifest(ctx, tok)
	if err != nil {
		return nil, err
	}
	if sourceManifest.SchemaHash != "" && targetManifest.SchemaHash != "" &&
		sourceManifest.SchemaHash != targetManifest.SchemaHash {
		return nil, stratadb.NewError(stratadb.TargetRejected,
			fmt.Errorf("migration: schema hash mismatch between %s and %s", st.Task.FromPeer, st.Task.ToPeer))
	}

	st.FollowerOpenedAt = openedAt
	return encodeState(st)
}

// Compensate closes the follower this step opened on the target, since no
// later step has taken ownership of it yet.
func (s *prepareTargetStep) Compensate(ctx context.Context, _ procedure.Store, rec procedure.Record) error {
	st, err := decodeState(rec)
	if err != nil {
		return err
	}
	return s.d.dial(st.Task.ToPeer).CloseRegion(ctx, tokenFor(st.Task, rec))
}

func (s *prepareTargetStep) PointOfNoReturn() bool { return false }

// openRegionFollowerStep re-affirms the target is open as a follower —
// idempotent, a no-op if PrepareTarget already opened it (spec.md §4.4
// OpenRegionFollower).
type openRegionFollowerStep struct{ d *Deps }

func (s *openRegionFollowerStep) Name() string { return "OpenRegionFollower" }

func (s *openRegionFollowerStep) Run(ctx context.Context, _ procedure.Store, rec procedure.Record) ([]byte, error) {
	st, err := decodeState(rec)
	if err != nil {
		return nil, err
	}
	tok := tokenFor(st.Task, rec)
	openedAt, err := s.d.dial(st.Task.ToPeer).OpenRegion(ctx, tok, datanode.Follower)
	if err != nil {
		return nil, err
	}
	st.FollowerOpenedAt = openedAt
	return encodeState(st)
}

func (s *openRegionFollowerStep) Compensate(ctx context.Context, _ procedure.Store, rec procedure.Record) error {
	st, err := decodeState(rec)
	if err != nil {
		return err
	}
	return s.d.dial(st.Task.ToPeer).CloseRegion(ctx, tokenFor(st.Task, rec))
}

func (s *openRegionFollowerStep) PointOfNoReturn() bool { return false }

// replicateCatchUpStep polls the follower's lag against the source until it
// is within threshold or replay_timeout elapses (spec.md §4.4 ReplicateCatchUp).
type replicateCatchUpStep struct{ d *Deps }

func (s *replicateCatchUpStep) Name() string { return "ReplicateCatchUp" }

func (s *replicateCatchUpStep) Run(ctx context.Context, _ procedure.Store, rec procedure.Record) ([]byte, error) {
	st, err := decodeState(rec)
	if err != nil {
		return nil, err
	}
	tok := tokenFor(st.Task, rec)
	source := s.d.dial(st.Task.FromPeer)
	target := s.d.dial(st.Task.ToPeer)

	start := time.Now()
	for {
		sourceManifest, err := source.RegionManifest(ctx, tok)
		if err != nil {
			return nil, err
		}
		targetManifest, err := target.RegionManifest(ctx, tok)
		if err != nil {
			return nil, err
		}
		var lag uint64
		if sourceManifest.LastOffset > targetManifest.LastOffset {
			lag = sourceManifest.LastOffset - targetManifest.LastOffset
		}
		if lag <= s.d.lagThreshold {
			return encodeState(st)
		}
		if err := stratadb.TimedOut(ctx, "ReplicateCatchUp", start, st.Task.ReplayTimeout); err != nil {
			return nil, stratadb.NewError(stratadb.Transient, err)
		}
		stratadb.RandomSleepWithUnit(ctx, 50*time.Millisecond)
	}
}

func (s *replicateCatchUpStep) Compensate(context.Context, procedure.Store, procedure.Record) error {
	return nil
}

func (s *replicateCatchUpStep) PointOfNoReturn() bool { return false }

// freezeSourceWritesStep takes the region's write lease and tells the source
// to reject new writes, then waits out the drain grace period (spec.md §4.4
// FreezeSourceWrites).
type freezeSourceWritesStep struct{ d *Deps }

func (s *freezeSourceWritesStep) Name() string { return "FreezeSourceWrites" }

func (s *freezeSourceWritesStep) Run(ctx context.Context, _ procedure.Store, rec procedure.Record) ([]byte, error) {
	st, err := decodeState(rec)
	if err != nil {
		return nil, err
	}
	if st.LeaseToken == "" {
		token, err := s.d.leases.Acquire(ctx, st.Task.RegionID, s.d.leaseTTL)
		if err != nil {
			return nil, err
		}
		st.LeaseToken = token
	}
	tok := tokenFor(st.Task, rec)
	if err := s.d.dial(st.Task.FromPeer).SetLease(ctx, tok, datanode.LeaseExpiring); err != nil {
		return nil, err
	}
	if err := s.d.leases.Expire(ctx, st.Task.RegionID, st.LeaseToken, s.d.freezeGrace); err != nil {
		return nil, err
	}
	stratadb.Sleep(ctx, s.d.freezeGrace)
	return encodeState(st)
}

func (s *freezeSourceWritesStep) Compensate(ctx context.Context, _ procedure.Store, rec procedure.Record) error {
	st, err := decodeState(rec)
	if err != nil {
		return err
	}
	if st.LeaseToken == "" {
		return nil
	}
	return s.d.leases.Release(ctx, st.Task.RegionID, st.LeaseToken)
}

func (s *freezeSourceWritesStep) PointOfNoReturn() bool { return false }

// finalReplicateStep verifies the follower's committed offset matches the
// source's last offset exactly (spec.md §4.4 FinalReplicate) — the core
// correctness property: no acknowledged write is left behind. It issues no
// replication call of its own; a follower still behind the source is a
// Transient error, so the engine re-runs the step after backoff.
type finalReplicateStep struct{ d *Deps }

func (s *finalReplicateStep) Name() string { return "FinalReplicate" }

func (s *finalReplicateStep) Run(ctx context.Context, _ procedure.Store, rec procedure.Record) ([]byte, error) {
	st, err := decodeState(rec)
	if err != nil {
		return nil, err
	}
	tok := tokenFor(st.Task, rec)
	sourceManifest, err := s.d.dial(st.Task.FromPeer).RegionManifest(ctx, tok)
	if err != nil {
		return nil, err
	}
	targetManifest, err := s.d.dial(st.Task.ToPeer).RegionManifest(ctx, tok)
	if err != nil {
		return nil, err
	}
	if targetManifest.LastOffset != sourceManifest.LastOffset {
		return nil, stratadb.NewError(stratadb.Transient,
			fmt.Errorf("migration: target offset %d has not caught up to source offset %d", targetManifest.LastOffset, sourceManifest.LastOffset))
	}
	return encodeState(st)
}

func (s *finalReplicateStep) Compensate(context.Context, procedure.Store, procedure.Record) error {
	return nil
}

func (s *finalReplicateStep) PointOfNoReturn() bool { return false }

// commitRouteChangeStep is the single linearizable CAS that moves the
// region's leader (spec.md §4.4 CommitRouteChange) — the procedure's point
// of no return. A losing CAS race is permanent for this instance (RouteChanged).
type commitRouteChangeStep struct{ d *Deps }

func (s *commitRouteChangeStep) Name() string { return "CommitRouteChange" }

func (s *commitRouteChangeStep) Run(ctx context.Context, _ procedure.Store, rec procedure.Record) ([]byte, error) {
	st, err := decodeState(rec)
	if err != nil {
		return nil, err
	}
	route, err := s.d.routes.Get(ctx, st.Task.RegionID)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return nil, stratadb.NewError(stratadb.RegionRouteNotFound, err)
		}
		return nil, stratadb.NewError(stratadb.Transient, err)
	}
	next, err := s.d.routes.CommitLeaderChange(ctx, st.Task.RegionID, route.Version, st.Task.FromPeer, st.Task.ToPeer)
	if err != nil {
		if errors.Is(err, metastore.ErrVersionMismatch) {
			return nil, stratadb.NewError(stratadb.RouteChanged, err)
		}
		return nil, stratadb.NewError(stratadb.Transient, err)
	}
	st.RouteVersion = next.Version
	return encodeState(st)
}

// Compensate is never invoked in practice — once this step's CAS has
// committed, the engine's point-of-no-return check stops compensation from
// reaching it — but is implemented as a no-op to satisfy the Step interface.
func (s *commitRouteChangeStep) Compensate(context.Context, procedure.Store, procedure.Record) error {
	return nil
}

func (s *commitRouteChangeStep) PointOfNoReturn() bool { return true }

// closeSourceRegionStep closes the now-superseded source copy (spec.md §4.4
// CloseSourceRegion). Any failure here is reclassified Catastrophic: the
// route already points at the target, so there is no going back — only
// retrying until it succeeds is safe.
type closeSourceRegionStep struct{ d *Deps }

func (s *closeSourceRegionStep) Name() string { return "CloseSourceRegion" }

func (s *closeSourceRegionStep) Run(ctx context.Context, _ procedure.Store, rec procedure.Record) ([]byte, error) {
	st, err := decodeState(rec)
	if err != nil {
		return nil, wrapCatastrophic(err)
	}
	tok := tokenFor(st.Task, rec)
	if err := s.d.dial(st.Task.FromPeer).CloseRegion(ctx, tok); err != nil {
		return nil, wrapCatastrophic(err)
	}
	if st.LeaseToken != "" {
		if err := s.d.leases.Release(ctx, st.Task.RegionID, st.LeaseToken); err != nil {
			return nil, wrapCatastrophic(err)
		}
	}
	return encodeState(st)
}

func (s *closeSourceRegionStep) Compensate(context.Context, procedure.Store, procedure.Record) error {
	return nil
}

func (s *closeSourceRegionStep) PointOfNoReturn() bool { return true }

// invalidateCachesStep broadcasts cache invalidation for the migrated region
// to every peer that routes through it (spec.md §4.4 InvalidateCaches),
// fanning out with a bounded stratadb.TaskRunner. Like CloseSourceRegion,
// any failure here is Catastrophic.
type invalidateCachesStep struct{ d *Deps }

func (s *invalidateCachesStep) Name() string { return "InvalidateCaches" }

func (s *invalidateCachesStep) Run(ctx context.Context, _ procedure.Store, rec procedure.Record) ([]byte, error) {
	st, err := decodeState(rec)
	if err != nil {
		return nil, wrapCatastrophic(err)
	}
	tok := tokenFor(st.Task, rec)
	peers, err := s.d.peersForRoute(ctx, st.Task.RegionID)
	if err != nil {
		return nil, wrapCatastrophic(err)
	}

	limit := s.d.fanoutLimit
	if limit <= 0 {
		limit = 1
	}
	tr := stratadb.NewTaskRunner(ctx, limit)
	for _, p := range peers {
		p := p
		tr.Go(func() error {
			return s.d.dial(p).InvalidateCache(tr.Context(), tok)
		})
	}
	if err := tr.Wait(); err != nil {
		return nil, wrapCatastrophic(err)
	}
	return encodeState(st)
}

func (s *invalidateCachesStep) Compensate(context.Context, procedure.Store, procedure.Record) error {
	return nil
}

func (s *invalidateCachesStep) PointOfNoReturn() bool { return true }
