package procedure

import (
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/stratadb/stratadb"
)

// catastrophicAlertThreshold is the attempt count at which roll-forward
// logging escalates from WARN to ERROR. Roll-forward never gives up before
// this, or after it — it only changes how loudly it complains.
const catastrophicAlertThreshold = 10

// Step is one stage of a procedure's state machine (spec.md §4.2). Run
// executes the step, returning the state blob to persist on success. A step
// that returns a stratadb.Error classified as Transient is re-executed from
// scratch after backoff — it must therefore be safe to re-run (idempotent).
// Compensate undoes the step's effects when the procedure aborts; steps with
// nothing to undo implement it as a no-op. PointOfNoReturn reports whether,
// once this step has completed, the procedure can no longer be cancelled or
// compensated — true for the step that commits the externally-visible state
// change (spec.md §4.2 Cancellation: "a procedure that has passed its
// route-commit step ignores cancellation").
type Step interface {
	Name() string
	Run(ctx context.Context, store Store, rec Record) (nextState []byte, err error)
	Compensate(ctx context.Context, store Store, rec Record) error
	PointOfNoReturn() bool
}

// Engine runs durable, crash-safe procedures composed of a fixed Step
// sequence (spec.md §4.2). Steps within one procedure are strictly serial;
// different procedures run concurrently with no engine-level ordering
// between them (spec.md §5).
type Engine struct {
	store      Store
	maxRetries uint64
}

// NewEngine returns an Engine persisting through store, retrying a failing
// step up to maxRetries times before escalating to Permanent.
func NewEngine(store Store, maxRetries uint64) *Engine {
	return &Engine{store: store, maxRetries: maxRetries}
}

// Submit generates a procedure_id, persists the initial record at
// step_cursor 0, and starts running steps in the background. It returns as
// soon as the initial record is durable — callers poll Status for progress
// (spec.md §4.2 step 1, §7 "submit returns the id immediately").
func (e *Engine) Submit(ctx context.Context, kind string, steps []Step, initialState []byte) (uuid.UUID, error) {
	id := uuid.New()
	rec, err := e.store.Create(ctx, Record{ProcedureID: id, Kind: kind, StateBlob: initialState})
	if err != nil {
		return uuid.Nil, err
	}
	go e.run(context.Background(), steps, rec)
	return id, nil
}

// Resume re-executes every record with Status == Running, starting from its
// persisted step_cursor (spec.md §4.2 step 3). stepsFor resolves the Step
// sequence for a record's Kind — callers register every known procedure kind
// there. Each resumed step may have already partially executed before the
// crash, hence the idempotence requirement on every step.
func (e *Engine) Resume(ctx context.Context, stepsFor func(kind string) []Step) error {
	running, err := e.store.ListRunning(ctx)
	if err != nil {
		return err
	}
	for _, rec := range running {
		steps := stepsFor(rec.Kind)
		if steps == nil {
			log.Warn("procedure: no step sequence registered for kind, skipping resume", "kind", rec.Kind, "procedure_id", rec.ProcedureID)
			continue
		}
		go e.run(context.Background(), steps, rec)
	}
	return nil
}

// Cancel requests cancellation of procedureID (spec.md §4.2 Cancellation).
// The running step observes the flag at its next suspension point; a
// procedure that has passed its route-commit step ignores cancellation.
func (e *Engine) Cancel(ctx context.Context, procedureID uuid.UUID) error {
	return e.store.RequestCancel(ctx, procedureID)
}

// Status returns procedureID's current record.
func (e *Engine) Status(ctx context.Context, procedureID uuid.UUID) (Record, error) {
	return e.store.Load(ctx, procedureID)
}

// run drives rec's steps strictly serially from rec.StepCursor to
// completion, persisting progress after each step, retrying Transient
// failures with backoff, and compensating on a permanent failure. A
// Catastrophic failure, or any failure once a PointOfNoReturn step has
// completed, rolls forward instead of compensating.
func (e *Engine) run(ctx context.Context, steps []Step, rec Record) {
	for rec.StepCursor < len(steps) {
		// Reload before every step so an externally requested cancellation
		// (and its CAS version bump) is observed at this suspension point
		// rather than racing with the write this iteration is about to make.
		if fresh, err := e.store.Load(ctx, rec.ProcedureID); err == nil {
			rec = fresh
		}

		if rec.CancelRequested && !pastPointOfNoReturn(steps, rec.StepCursor) {
			e.compensate(ctx, steps, rec)
			if _, err := e.store.SetStatus(ctx, rec, StatusCancelled, ""); err != nil {
				log.Error("procedure: failed to persist Cancelled status", "procedure_id", rec.ProcedureID, "error", err)
			}
			return
		}

		step := steps[rec.StepCursor]
		var nextState []byte
		runErr := stratadb.Retry(ctx, e.maxRetries, func(ctx context.Context) error {
			var err error
			nextState, err = step.Run(ctx, e.store, rec)
			if err == nil {
				return nil
			}
			if stratadb.ShouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}, nil)

		if runErr != nil {
			if stratadb.KindOf(runErr) == stratadb.Catastrophic || pastPointOfNoReturn(steps, rec.StepCursor) {
				e.rollForward(ctx, steps, rec)
				return
			}
			log.Error("procedure: step failed permanently, compensating", "procedure_id", rec.ProcedureID, "step", step.Name(), "error", runErr)
			e.compensate(ctx, steps, rec)
			if _, err := e.store.SetStatus(ctx, rec, StatusFailed, runErr.Error()); err != nil {
				log.Error("procedure: failed to persist Failed status", "procedure_id", rec.ProcedureID, "error", err)
			}
			return
		}

		next, err := e.store.Advance(ctx, rec, rec.StepCursor+1, nextState)
		if err != nil {
			log.Error("procedure: failed to persist step advance, will be resumed from last durable cursor", "procedure_id", rec.ProcedureID, "step", step.Name(), "error", err)
			return
		}
		rec = next
	}

	if _, err := e.store.SetStatus(ctx, rec, StatusDone, ""); err != nil {
		log.Error("procedure: failed to persist Done status", "procedure_id", rec.ProcedureID, "error", err)
	}
}

// pastPointOfNoReturn reports whether any step already completed (index <
// cursor) is a PointOfNoReturn step — once true, cancellation is no longer
// honored (spec.md §4.2 Cancellation).
func pastPointOfNoReturn(steps []Step, cursor int) bool {
	for i := 0; i < cursor && i < len(steps); i++ {
		if steps[i].PointOfNoReturn() {
			return true
		}
	}
	return false
}

// compensate undoes every already-completed step (index < rec.StepCursor) in
// reverse order (spec.md §4.2: "on permanent error, runs compensations in
// reverse cursor order"). A compensation that itself fails is logged and
// skipped — the remaining compensations still run, since each step's undo is
// independent of the others.
func (e *Engine) compensate(ctx context.Context, steps []Step, rec Record) {
	for i := rec.StepCursor - 1; i >= 0 && i < len(steps); i-- {
		if err := steps[i].Compensate(ctx, e.store, rec); err != nil {
			log.Error("procedure: compensation step failed, continuing with remaining compensations", "procedure_id", rec.ProcedureID, "step", steps[i].Name(), "error", err)
		}
	}
}

// rollForward re-runs a step stuck past the point of no return forever,
// never compensating and never giving up (spec.md §4.4): once
// CommitRouteChange has succeeded, the procedure's effects are already
// externally visible, so the only safe move left is to keep retrying until
// the step finally succeeds. Logging escalates from WARN to ERROR after
// catastrophicAlertThreshold attempts, but the retry loop itself never stops.
func (e *Engine) rollForward(ctx context.Context, steps []Step, rec Record) {
	step := steps[rec.StepCursor]
	b := retry.NewFibonacci(500 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Minute, b)

	for attempt := 0; ; attempt++ {
		nextState, err := step.Run(ctx, e.store, rec)
		if err == nil {
			next, advErr := e.store.Advance(ctx, rec, rec.StepCursor+1, nextState)
			if advErr != nil {
				log.Error("procedure: roll-forward step succeeded but failed to persist advance, will be resumed from last durable cursor", "procedure_id", rec.ProcedureID, "step", step.Name(), "error", advErr)
				return
			}
			e.run(ctx, steps, next)
			return
		}

		if attempt >= catastrophicAlertThreshold {
			log.Error("procedure: catastrophic step still failing, retrying indefinitely", "procedure_id", rec.ProcedureID, "step", step.Name(), "attempt", attempt, "error", err)
		} else {
			log.Warn("procedure: catastrophic step failing, retrying", "procedure_id", rec.ProcedureID, "step", step.Name(), "attempt", attempt, "error", err)
		}

		if ctx.Err() != nil {
			return
		}
		d, _ := b.Next()
		stratadb.Sleep(ctx, d)
	}
}
