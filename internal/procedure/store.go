package procedure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/metastore"
)

// Store is the persistence capability passed into each step invocation
// rather than held by the procedure itself — this breaks the "cyclic
// ownership around the procedure engine" problem called out in spec.md §9:
// the engine holds procedures, but a procedure never holds a back-reference
// to the engine, only to this narrow capability.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Load(ctx context.Context, procedureID uuid.UUID) (Record, error)
	Advance(ctx context.Context, rec Record, stepCursor int, stateBlob []byte) (Record, error)
	SetStatus(ctx context.Context, rec Record, status Status, lastError string) (Record, error)
	RequestCancel(ctx context.Context, procedureID uuid.UUID) error
	ListRunning(ctx context.Context) ([]Record, error)
}

// MetastoreStore is a Store backed by the Kv Metastore Client (C1), grounded
// on metastore.Client's CAS surface — every write after Create (a plain Put)
// is a CompareAndSwap keyed by the record's current Version, so a crash between
// "step executed" and "cursor persisted" can never silently lose or
// double-apply a cursor advance (spec.md §3 invariant 2).
type MetastoreStore struct {
	client metastore.Client
	now    func() time.Time
}

// NewMetastoreStore wraps client with procedure-record semantics.
func NewMetastoreStore(client metastore.Client) *MetastoreStore {
	return &MetastoreStore{client: client, now: time.Now}
}

func (s *MetastoreStore) encode(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

func (s *MetastoreStore) decode(e metastore.Entry) (Record, error) {
	var rec Record
	if err := json.Unmarshal(e.Value, &rec); err != nil {
		return Record{}, fmt.Errorf("procedure: decode record: %w", err)
	}
	rec.Version = e.Version
	return rec, nil
}

// Create writes rec's initial record at step_cursor 0 before any step
// executes (spec.md §4.2 step 1).
func (s *MetastoreStore) Create(ctx context.Context, rec Record) (Record, error) {
	now := s.now()
	rec.CreatedAt = now
	rec.LastUpdated = now
	rec.Status = StatusRunning
	rec.StepCursor = 0
	b, err := s.encode(rec)
	if err != nil {
		return Record{}, err
	}
	e, err := s.client.Put(ctx, metastore.ProcedureKey(rec.ProcedureID.String()), b)
	if err != nil {
		return Record{}, stratadb.NewError(stratadb.Transient, err)
	}
	rec.Version = e.Version
	return rec, nil
}

// Load fetches the current record for procedureID.
func (s *MetastoreStore) Load(ctx context.Context, procedureID uuid.UUID) (Record, error) {
	e, err := s.client.Get(ctx, metastore.ProcedureKey(procedureID.String()))
	if err != nil {
		if err == metastore.ErrNotFound {
			return Record{}, stratadb.NewError(stratadb.Unknown, err)
		}
		return Record{}, stratadb.NewError(stratadb.Transient, err)
	}
	return s.decode(e)
}

// Advance CAS-writes stepCursor and stateBlob into rec, the monotonic
// progress write described in spec.md §4.2 step 2: "on success, CAS-write
// step_cursor += 1 and any step output into the record".
func (s *MetastoreStore) Advance(ctx context.Context, rec Record, stepCursor int, stateBlob []byte) (Record, error) {
	next := rec
	next.StepCursor = stepCursor
	next.StateBlob = stateBlob
	next.LastUpdated = s.now()
	b, err := s.encode(next)
	if err != nil {
		return Record{}, err
	}
	e, err := s.client.CompareAndSwap(ctx, metastore.ProcedureKey(rec.ProcedureID.String()), rec.Version, b)
	if err != nil {
		return Record{}, stratadb.NewError(stratadb.Transient, err)
	}
	next.Version = e.Version
	return next, nil
}

// SetStatus CAS-writes a terminal or intermediate status transition.
func (s *MetastoreStore) SetStatus(ctx context.Context, rec Record, status Status, lastError string) (Record, error) {
	next := rec
	next.Status = status
	next.LastError = lastError
	next.LastUpdated = s.now()
	b, err := s.encode(next)
	if err != nil {
		return Record{}, err
	}
	e, err := s.client.CompareAndSwap(ctx, metastore.ProcedureKey(rec.ProcedureID.String()), rec.Version, b)
	if err != nil {
		return Record{}, stratadb.NewError(stratadb.Transient, err)
	}
	next.Version = e.Version
	return next, nil
}

// RequestCancel sets the cancel flag on procedureID's record (spec.md §4.2
// Cancellation). The running step observes it at its next suspension point.
func (s *MetastoreStore) RequestCancel(ctx context.Context, procedureID uuid.UUID) error {
	rec, err := s.Load(ctx, procedureID)
	if err != nil {
		return err
	}
	rec.CancelRequested = true
	rec.LastUpdated = s.now()
	b, err := s.encode(rec)
	if err != nil {
		return err
	}
	_, err = s.client.CompareAndSwap(ctx, metastore.ProcedureKey(procedureID.String()), rec.Version, b)
	if err != nil {
		return stratadb.NewError(stratadb.Transient, err)
	}
	return nil
}

// ListRunning returns every record with Status == Running, used on process
// restart to resume each one (spec.md §4.2 step 3).
func (s *MetastoreStore) ListRunning(ctx context.Context) ([]Record, error) {
	entries, err := s.client.List(ctx, "procedure/")
	if err != nil {
		return nil, stratadb.NewError(stratadb.Transient, err)
	}
	var out []Record
	for _, e := range entries {
		rec, err := s.decode(e)
		if err != nil {
			return nil, err
		}
		if rec.Status == StatusRunning {
			out = append(out, rec)
		}
	}
	return out, nil
}
