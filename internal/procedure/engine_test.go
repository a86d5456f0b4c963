package procedure

import (
	"context"
	"errors"
	"testing"

	"github.com/stratadb/stratadb"
)

// fakeStep is a Step whose behavior is supplied by the test. runFn/compFn
// default to always-succeed when nil.
type fakeStep struct {
	name            string
	pointOfNoReturn bool
	runFn           func(ctx context.Context, store Store, rec Record) ([]byte, error)
	compFn          func(ctx context.Context, store Store, rec Record) error
	runCalls        int
	compensated     bool
}

func (s *fakeStep) Name() string { return s.name }

func (s *fakeStep) Run(ctx context.Context, store Store, rec Record) ([]byte, error) {
	s.runCalls++
	if s.runFn == nil {
		return nil, nil
	}
	return s.runFn(ctx, store, rec)
}

func (s *fakeStep) Compensate(ctx context.Context, store Store, rec Record) error {
	s.compensated = true
	if s.compFn == nil {
		return nil
	}
	return s.compFn(ctx, store, rec)
}

func (s *fakeStep) PointOfNoReturn() bool { return s.pointOfNoReturn }

func TestEngineRunsStepsToCompletion(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, 3)
	steps := []Step{&fakeStep{name: "a"}, &fakeStep{name: "b"}, &fakeStep{name: "c"}}

	rec, err := store.Create(context.Background(), Record{ProcedureID: newTestUUID(1), Kind: "test"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	e.run(context.Background(), steps, rec)

	final, err := store.Load(context.Background(), rec.ProcedureID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if final.Status != StatusDone || final.StepCursor != len(steps) {
		t.Fatalf("final = %+v, want Status=Done StepCursor=%d", final, len(steps))
	}
	for _, s := range steps {
		if s.(*fakeStep).runCalls != 1 {
			t.Fatalf("step %s ran %d times, want 1", s.Name(), s.(*fakeStep).runCalls)
		}
	}
}

func TestEngineCompensatesOnPermanentFailure(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, 3)
	second := &fakeStep{name: "b", runFn: func(context.Context, Store, Record) ([]byte, error) {
		return nil, stratadb.NewError(stratadb.InvalidArguments, errors.New("bad target"))
	}}
	first := &fakeStep{name: "a"}
	steps := []Step{first, second}

	rec, _ := store.Create(context.Background(), Record{ProcedureID: newTestUUID(2), Kind: "test"})
	e.run(context.Background(), steps, rec)

	final, _ := store.Load(context.Background(), rec.ProcedureID)
	if final.Status != StatusFailed {
		t.Fatalf("final status = %v, want Failed", final.Status)
	}
	if !first.compensated {
		t.Fatalf("completed step 'a' should have been compensated")
	}
	if second.compensated {
		t.Fatalf("never-completed step 'b' should not be compensated")
	}
}

func TestEngineCancellationBeforePointOfNoReturn(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, 3)
	first := &fakeStep{name: "a", runFn: func(ctx context.Context, _ Store, rec Record) ([]byte, error) {
		if err := store.RequestCancel(ctx, rec.ProcedureID); err != nil {
			t.Fatalf("RequestCancel: %v", err)
		}
		return nil, nil
	}}
	second := &fakeStep{name: "b"}
	steps := []Step{first, second}

	rec, _ := store.Create(context.Background(), Record{ProcedureID: newTestUUID(3), Kind: "test"})
	e.run(context.Background(), steps, rec)

	final, _ := store.Load(context.Background(), rec.ProcedureID)
	if final.Status != StatusCancelled {
		t.Fatalf("final status = %v, want Cancelled", final.Status)
	}
	if second.runCalls != 0 {
		t.Fatalf("step 'b' should never have run after cancellation, ran %d times", second.runCalls)
	}
	if !first.compensated {
		t.Fatalf("completed step 'a' should have been compensated on cancellation")
	}
}

func TestEngineCancellationIgnoredPastPointOfNoReturn(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, 3)
	first := &fakeStep{name: "commit", pointOfNoReturn: true, runFn: func(ctx context.Context, _ Store, rec Record) ([]byte, error) {
		if err := store.RequestCancel(ctx, rec.ProcedureID); err != nil {
			t.Fatalf("RequestCancel: %v", err)
		}
		return nil, nil
	}}
	second := &fakeStep{name: "cleanup"}
	steps := []Step{first, second}

	rec, _ := store.Create(context.Background(), Record{ProcedureID: newTestUUID(4), Kind: "test"})
	e.run(context.Background(), steps, rec)

	final, _ := store.Load(context.Background(), rec.ProcedureID)
	if final.Status != StatusDone {
		t.Fatalf("final status = %v, want Done (cancellation past point of no return must be ignored)", final.Status)
	}
	if second.runCalls != 1 {
		t.Fatalf("step 'cleanup' should still have run, ran %d times", second.runCalls)
	}
}

func TestEngineRetriesTransientFailure(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, 3)
	attempts := 0
	step := &fakeStep{name: "flaky", runFn: func(context.Context, Store, Record) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return nil, stratadb.NewError(stratadb.Transient, errors.New("temporarily unavailable"))
		}
		return nil, nil
	}}
	steps := []Step{step}

	rec, _ := store.Create(context.Background(), Record{ProcedureID: newTestUUID(5), Kind: "test"})
	e.run(context.Background(), steps, rec)

	final, _ := store.Load(context.Background(), rec.ProcedureID)
	if final.Status != StatusDone {
		t.Fatalf("final status = %v, want Done after transient retry succeeds", final.Status)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2 (one failure, one success)", attempts)
	}
}

func TestEngineRollsForwardOnCatastrophicFailure(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, 1)
	attempts := 0
	stuck := &fakeStep{name: "commit-route", pointOfNoReturn: true, runFn: func(context.Context, Store, Record) ([]byte, error) {
		attempts++
		if attempts == 1 {
			return nil, stratadb.NewError(stratadb.Catastrophic, errors.New("route CAS failed after commit"))
		}
		return nil, nil
	}}
	steps := []Step{stuck}

	rec, _ := store.Create(context.Background(), Record{ProcedureID: newTestUUID(6), Kind: "test"})
	e.run(context.Background(), steps, rec)

	final, _ := store.Load(context.Background(), rec.ProcedureID)
	if final.Status != StatusDone {
		t.Fatalf("final status = %v, want Done once roll-forward succeeds", final.Status)
	}
	if attempts < 2 {
		t.Fatalf("attempts = %d, want at least 2 (initial catastrophic failure, then roll-forward success)", attempts)
	}
}
