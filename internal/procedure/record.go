// Package procedure implements the Procedure Engine (C5): a durable,
// crash-safe state-machine runner. Each procedure is a fixed ordered sequence
// of steps; every step's completion is persisted before the next one runs, so
// a crash mid-procedure resumes from the last persisted step cursor rather
// than restarting (spec.md §4.2).
//
// Grounded on the teacher's TwoPhaseCommitTransaction/Transaction split
// (transaction.go, two_phase_commit_transaction.go): a Transaction there
// drives a fixed phase sequence and persists progress through a capability
// it's handed rather than one it owns. Generalized here from a fixed 2-phase
// commit to an arbitrary ordered Step list with per-step idempotence and
// compensation, using github.com/sethvargo/go-retry for backoff exactly as
// the teacher's own retry.go/sleep.go do.
package procedure

import (
	"time"

	"github.com/google/uuid"
)

// Status is a procedure's lifecycle state (spec.md §3 ProcedureRecord).
type Status string

const (
	StatusRunning   Status = "Running"
	StatusDone      Status = "Done"
	StatusFailed    Status = "Failed"
	StatusCancelled Status = "Cancelled"
)

// Record is the durable representation of one procedure instance (spec.md
// §3). Version is the metastore CAS fencing token.
type Record struct {
	ProcedureID     uuid.UUID `json:"procedure_id"`
	Kind            string    `json:"kind"`
	StateBlob       []byte    `json:"state_blob"`
	StepCursor      int       `json:"step_cursor"`
	Status          Status    `json:"status"`
	CancelRequested bool      `json:"cancel_requested"`
	LastError       string    `json:"last_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
	Version         uint64    `json:"-"`
}
