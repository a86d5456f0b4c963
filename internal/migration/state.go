package migration

import (
	"encoding/json"
	"fmt"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/datanode"
	"github.com/stratadb/stratadb/internal/procedure"
)

// state is the evolving per-attempt data threaded through every step's
// StateBlob, carrying the task plus whatever prior steps committed
// externally and later steps (or compensation) need to know about.
type state struct {
	Task             Task   `json:"task"`
	FollowerOpenedAt uint64 `json:"follower_opened_at,omitempty"`
	LeaseToken       string `json:"lease_token,omitempty"`
	RouteVersion     uint64 `json:"route_version,omitempty"`
}

func decodeState(rec procedure.Record) (state, error) {
	var st state
	if len(rec.StateBlob) == 0 {
		return state{}, fmt.Errorf("migration: empty state blob at step %d", rec.StepCursor)
	}
	if err := json.Unmarshal(rec.StateBlob, &st); err != nil {
		return state{}, fmt.Errorf("migration: decode state: %w", err)
	}
	return st, nil
}

func encodeState(st state) ([]byte, error) {
	return json.Marshal(st)
}

// tokenFor mints the Datanode Facade token for rec's current step, spec.md
// §4.6: a monotonically increasing per-procedure-attempt step token. Using
// the step cursor itself is sufficient — it only increases as the procedure
// advances, and a step retried in place presents the same token every time,
// which is exactly the idempotence the facade is built to tolerate.
func tokenFor(task Task, rec procedure.Record) datanode.Token {
	return datanode.Token{
		ClusterID:   task.ClusterID,
		RegionID:    task.RegionID,
		ProcedureID: rec.ProcedureID.String(),
		StepToken:   uint64(rec.StepCursor),
	}
}

// wrapCatastrophic reclassifies err as stratadb.Catastrophic regardless of
// its original kind — used by every step that runs after CommitRouteChange
// has already succeeded, where the route change is externally visible and
// the only safe response to any failure is indefinite roll-forward retry
// (spec.md §4.4's post-commit compensate branch).
func wrapCatastrophic(err error) error {
	if err == nil {
		return nil
	}
	return stratadb.NewError(stratadb.Catastrophic, err)
}
