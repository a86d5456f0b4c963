package migration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/heartbeat"
	"github.com/stratadb/stratadb/internal/metastore"
	"github.com/stratadb/stratadb/internal/procedure"
)

// Manager is the Region-Migration Manager (C7): the single entry point that
// validates a migration request and starts (or declines to duplicate) the
// Region Migration Procedure (spec.md §4.3).
type Manager struct {
	engine      *procedure.Engine
	store       procedure.Store
	routes      *metastore.Routes
	liveness    heartbeat.LivenessChecker
	deps        *Deps
	livenessTTL time.Duration
}

// NewManager returns a Manager that submits region_migration procedures
// through engine, using store to check for an already-running migration,
// routes/liveness for submit validation, and deps for the steps the
// resulting procedure runs.
func NewManager(engine *procedure.Engine, store procedure.Store, routes *metastore.Routes, liveness heartbeat.LivenessChecker, livenessTTL time.Duration, d *Deps) *Manager {
	return &Manager{engine: engine, store: store, routes: routes, liveness: liveness, livenessTTL: livenessTTL, deps: d}
}

// Submit validates task against the 5 ordered rules of spec.md §4.3 and, if
// they pass, starts a new region_migration procedure. It returns a nil id
// with no error when to_peer equals from_peer (which rule 2 has already
// confirmed is the leader), and the existing procedure's id, rather than a
// new one, when a Running region_migration procedure for the region exists.
func (m *Manager) Submit(ctx context.Context, task Task) (*uuid.UUID, error) {
	route, err := m.routes.Get(ctx, task.RegionID)
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			return nil, stratadb.NewError(stratadb.RegionRouteNotFound, err)
		}
		return nil, stratadb.NewError(stratadb.Transient, err)
	}

	if !route.Leader.Equal(task.FromPeer) {
		return nil, stratadb.NewError(stratadb.InvalidArguments,
			errors.New("migration: from_peer does not match the region's current leader"))
	}

	reachable, err := m.liveness.IsReachable(ctx, task.ToPeer.ID, m.livenessTTL)
	if err != nil {
		return nil, stratadb.NewError(stratadb.Transient, err)
	}
	if !reachable {
		return nil, stratadb.NewError(stratadb.InvalidArguments,
			errors.New("migration: to_peer has not been seen within the liveness window"))
	}

	if task.ToPeer.Equal(task.FromPeer) {
		return nil, nil
	}

	running, err := m.runningForRegion(ctx, task.RegionID)
	if err != nil {
		return nil, err
	}
	if running != nil {
		id := running.ProcedureID
		return &id, nil
	}

	st, err := encodeState(state{Task: task})
	if err != nil {
		return nil, err
	}
	id, err := m.engine.Submit(ctx, Kind, Steps(m.deps), st)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Status returns procedureID's current record.
func (m *Manager) Status(ctx context.Context, procedureID uuid.UUID) (procedure.Record, error) {
	return m.engine.Status(ctx, procedureID)
}

// runningForRegion finds an already-Running region_migration procedure for
// regionID, if any, implementing spec.md §4.3 rule 5's idempotent submit.
func (m *Manager) runningForRegion(ctx context.Context, regionID stratadb.RegionID) (*procedure.Record, error) {
	running, err := m.store.ListRunning(ctx)
	if err != nil {
		return nil, stratadb.NewError(stratadb.Transient, err)
	}
	for i := range running {
		rec := running[i]
		if rec.Kind != Kind {
			continue
		}
		st, err := decodeState(rec)
		if err != nil {
			continue
		}
		if st.Task.RegionID == regionID {
			return &rec, nil
		}
	}
	return nil, nil
}
