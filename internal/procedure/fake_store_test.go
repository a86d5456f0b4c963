package procedure

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratadb/stratadb"
)

var (
	errNotFound        = errors.New("procedure: not found")
	errVersionConflict = errors.New("procedure: version conflict")
)

// newTestUUID returns a deterministic UUID distinguished only by n, so tests
// don't depend on random generation.
func newTestUUID(n byte) uuid.UUID {
	var id uuid.UUID
	id[len(id)-1] = n
	return id
}

// fakeStore is an in-memory Store for engine tests, standing in for
// MetastoreStore without requiring a live metastore backend.
type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[uuid.UUID]Record)}
}

func (s *fakeStore) Create(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Status = StatusRunning
	rec.StepCursor = 0
	rec.Version = 1
	rec.CreatedAt = time.Unix(0, 0)
	rec.LastUpdated = rec.CreatedAt
	s.records[rec.ProcedureID] = rec
	return rec, nil
}

func (s *fakeStore) Load(_ context.Context, procedureID uuid.UUID) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[procedureID]
	if !ok {
		return Record{}, stratadb.NewError(stratadb.Unknown, errNotFound)
	}
	return rec, nil
}

func (s *fakeStore) Advance(_ context.Context, rec Record, stepCursor int, stateBlob []byte) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.ProcedureID]
	if !ok || cur.Version != rec.Version {
		return Record{}, stratadb.NewError(stratadb.Transient, errVersionConflict)
	}
	cur.StepCursor = stepCursor
	cur.StateBlob = stateBlob
	cur.Version++
	s.records[rec.ProcedureID] = cur
	return cur, nil
}

func (s *fakeStore) SetStatus(_ context.Context, rec Record, status Status, lastError string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.ProcedureID]
	if !ok || cur.Version != rec.Version {
		return Record{}, stratadb.NewError(stratadb.Transient, errVersionConflict)
	}
	cur.Status = status
	cur.LastError = lastError
	cur.Version++
	s.records[rec.ProcedureID] = cur
	return cur, nil
}

func (s *fakeStore) RequestCancel(_ context.Context, procedureID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[procedureID]
	if !ok {
		return stratadb.NewError(stratadb.Unknown, errNotFound)
	}
	cur.CancelRequested = true
	cur.Version++
	s.records[procedureID] = cur
	return nil
}

func (s *fakeStore) ListRunning(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.records {
		if rec.Status == StatusRunning {
			out = append(out, rec)
		}
	}
	return out, nil
}
