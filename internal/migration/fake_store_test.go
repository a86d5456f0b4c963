package migration

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/procedure"
)

var errRecordNotFound = errors.New("migration: procedure record not found")

// fakeStore is an in-memory procedure.Store for scenario tests, standing in
// for procedure.MetastoreStore without requiring a live metastore backend.
type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]procedure.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[uuid.UUID]procedure.Record)}
}

func (s *fakeStore) Create(_ context.Context, rec procedure.Record) (procedure.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Status = procedure.StatusRunning
	rec.StepCursor = 0
	rec.Version = 1
	s.records[rec.ProcedureID] = rec
	return rec, nil
}

func (s *fakeStore) Load(_ context.Context, procedureID uuid.UUID) (procedure.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[procedureID]
	if !ok {
		return procedure.Record{}, stratadb.NewError(stratadb.Unknown, errRecordNotFound)
	}
	return rec, nil
}

func (s *fakeStore) Advance(_ context.Context, rec procedure.Record, stepCursor int, stateBlob []byte) (procedure.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.ProcedureID]
	if !ok || cur.Version != rec.Version {
		return procedure.Record{}, stratadb.NewError(stratadb.Transient, errRecordNotFound)
	}
	cur.StepCursor = stepCursor
	cur.StateBlob = stateBlob
	cur.Version++
	s.records[rec.ProcedureID] = cur
	return cur, nil
}

func (s *fakeStore) SetStatus(_ context.Context, rec procedure.Record, status procedure.Status, lastError string) (procedure.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[rec.ProcedureID]
	if !ok || cur.Version != rec.Version {
		return procedure.Record{}, stratadb.NewError(stratadb.Transient, errRecordNotFound)
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
		return stratadb.NewError(stratadb.Unknown, errRecordNotFound)
	}
	cur.CancelRequested = true
	cur.Version++
	s.records[procedureID] = cur
	return nil
}

func (s *fakeStore) ListRunning(_ context.Context) ([]procedure.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []procedure.Record
	for _, rec := range s.records {
		if rec.Status == procedure.StatusRunning {
			out = append(out, rec)
		}
	}
	return out, nil
}

// snapshot returns a copy of every record currently held, for test assertions
// that need to find a procedure by its state without already knowing its id.
func (s *fakeStore) snapshot() []procedure.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]procedure.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
