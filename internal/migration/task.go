// Package migration implements the Region Migration Procedure (C6) and the
// Region-Migration Manager (C7): the coordinator that relocates a table
// region's leadership from one datanode to another while the cluster keeps
// serving reads and writes (spec.md §1, §4.3, §4.4).
package migration

import (
	"time"

	"github.com/stratadb/stratadb"
)

// Task is an immutable migration request (spec.md §3 MigrationTask).
type Task struct {
	ClusterID     string            `json:"cluster_id"`
	RegionID      stratadb.RegionID `json:"region_id"`
	FromPeer      stratadb.Peer     `json:"from_peer"`
	ToPeer        stratadb.Peer     `json:"to_peer"`
	ReplayTimeout time.Duration     `json:"replay_timeout"`
	Attempt       int               `json:"attempt"`
}

// Kind is the procedure.Record.Kind value used for every region migration,
// the only procedure kind this control plane runs — registered with
// procedure.Engine.Resume so crashed migrations resume on restart.
const Kind = "region_migration"
