package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"compliance-core/internal/instrument"
	"compliance-core/internal/ruleset"
)

// Run states. Blocked, Compiled, and Cancelled are terminal; no
// transition may skip a state.
type State string

const (
	StateResolving   State = "resolving"
	StateEvaluating  State = "evaluating"
	StateAggregating State = "aggregating"
	StateBlocked     State = "blocked"
	StateCompiling   State = "compiling"
	StateCompiled    State = "compiled"
	StateCancelled   State = "cancelled"
)

var transitions = map[State][]State{
	StateResolving:   {StateEvaluating, StateCancelled},
	StateEvaluating:  {StateAggregating, StateCancelled},
	StateAggregating: {StateBlocked, StateCompiling, StateCancelled},
	StateCompiling:   {StateCompiled},
}

// Run is one report preparation pass: the records, the rule set that
// governed them, and everything the pass produced. Ephemeral state
// (resolved records, verdicts) is discarded with the run; the compiled
// artifact and lineage manifest are the durable outputs.
type Run struct {
	ID        string
	RuleSet   *ruleset.RuleSet
	Period    time.Time
	StartedAt time.Time

	mu        sync.Mutex
	state     State
	cancelled bool

	Resolved []*ResolvedRecord
	Verdicts []Verdict
	Result   ValidationResult
	Lineage  *Lineage
}

// State returns the run's current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// transition moves the run to a new state, enforcing the machine.
func (r *Run) transition(to State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, allowed := range transitions[r.state] {
		if allowed == to {
			r.state = to
			return nil
		}
	}
	return InvalidStateError(r.state, to)
}

// Cancel requests cancellation. Records already in flight complete
// (evaluation is never interrupted mid-record), but no further records
// are dispatched and the run settles in Cancelled instead of reaching
// compilation. Cancelling a run that reached Compiling or later is
// refused: the artifact is immutable.
func (r *Run) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateResolving, StateEvaluating:
		r.cancelled = true
		return nil
	case StateAggregating:
		// Once the run reaches Aggregating no record work remains in
		// flight, so it settles now rather than waiting for the engine.
		r.cancelled = true
		r.state = StateCancelled
		return nil
	case StateCancelled:
		return nil
	default:
		return InvalidStateError(r.state, StateCancelled)
	}
}

// settleCancel moves a cancelled run into its terminal state. A run
// that Cancel already settled stays put.
func (r *Run) settleCancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateCancelled {
		return nil
	}
	for _, allowed := range transitions[r.state] {
		if allowed == StateCancelled {
			r.state = StateCancelled
			return nil
		}
	}
	return InvalidStateError(r.state, StateCancelled)
}

func (r *Run) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// BeginCompile moves the run into Compiling. Refused when the run is
// blocked, cancelled, or not yet aggregated.
func (r *Run) BeginCompile() error {
	if r.isCancelled() {
		return InvalidStateError(StateCancelled, StateCompiling)
	}
	if r.Result.Blocked {
		return BlockedByValidationError(r.Result.BlockingFailures)
	}
	return r.transition(StateCompiling)
}

// MarkCompiled moves the run to its final state.
func (r *Run) MarkCompiled() error {
	return r.transition(StateCompiled)
}

// Engine executes report runs. Each record's resolve/evaluate chain
// shares no mutable state with any other record, so records fan out to
// a bounded worker pool and rejoin at a barrier before aggregation.
type Engine struct {
	resolver  *Resolver
	evaluator *Evaluator
	workers   int
}

// NewEngine sizes the worker pool; workers <= 0 means one per core.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Engine{
		resolver:  NewResolver(),
		evaluator: NewEvaluator(),
		workers:   workers,
	}
}

// Execute runs the full Resolving -> Evaluating -> Aggregating pass
// for a set of records under one rule set. The returned run ends in
// Aggregating (ready to compile), Blocked, or Cancelled. Only
// structural failures (malformed rules) return an error.
func (e *Engine) Execute(ctx context.Context, rs *ruleset.RuleSet, records []DataRecord) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		RuleSet:   rs,
		StartedAt: time.Now().UTC(),
		state:     StateResolving,
		Lineage:   NewLineage(),
	}

	inst := instrument.GetInstrumenter(ctx)
	ctx, span := inst.StartSpan(ctx, "pipeline", "engine", "run.execute")
	defer span.End()
	span.SetEntity("report_run", run.ID)
	inst.EmitBusinessEvent(ctx, "run.state."+string(StateResolving), "report_run", run.ID, nil)

	if err := e.evaluator.Precompile(rs); err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("run %s: %w", run.ID, err)
	}

	// Resolving: fan records out, collect per-record results by index
	// so the merge is deterministic regardless of completion order.
	run.Resolved = make([]*ResolvedRecord, len(records))
	resolveVerdicts := make([][]Verdict, len(records))
	e.forEachRecord(run, len(records), func(i int) {
		rr, vs := e.resolver.Resolve(i, records[i], rs.Schema)
		run.Resolved[i] = rr
		resolveVerdicts[i] = vs
	})
	if run.isCancelled() {
		return run, e.settleCancelled(ctx, inst, run)
	}
	if err := run.transition(StateEvaluating); err != nil {
		return nil, err
	}
	inst.EmitBusinessEvent(ctx, "run.state."+string(StateEvaluating), "report_run", run.ID, nil)

	// Evaluating: each record gets its own lineage; the fan-in merge
	// appends them in record order.
	evalVerdicts := make([][]Verdict, len(records))
	lineages := make([]*Lineage, len(records))
	var evalErr error
	var errMu sync.Mutex
	e.forEachRecord(run, len(records), func(i int) {
		lin := NewLineage()
		vs, err := e.evaluator.Evaluate(i, run.Resolved[i], rs, lin)
		if err != nil {
			errMu.Lock()
			if evalErr == nil {
				evalErr = err
			}
			errMu.Unlock()
			return
		}
		evalVerdicts[i] = vs
		lineages[i] = lin
	})
	if evalErr != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("run %s: %w", run.ID, evalErr)
	}
	if run.isCancelled() {
		return run, e.settleCancelled(ctx, inst, run)
	}
	if err := run.transition(StateAggregating); err != nil {
		return nil, err
	}
	inst.EmitBusinessEvent(ctx, "run.state."+string(StateAggregating), "report_run", run.ID, nil)

	for i := range records {
		run.Verdicts = append(run.Verdicts, resolveVerdicts[i]...)
		run.Verdicts = append(run.Verdicts, evalVerdicts[i]...)
		if lineages[i] != nil {
			run.Lineage.Append(lineages[i])
		}
	}
	run.Result = Aggregate(run.Verdicts)

	if run.isCancelled() {
		return run, e.settleCancelled(ctx, inst, run)
	}
	if run.Result.Blocked {
		if err := run.transition(StateBlocked); err != nil {
			return nil, err
		}
		span.SetStatus("blocked")
		inst.EmitBusinessEvent(ctx, "run.state."+string(StateBlocked), "report_run", run.ID, map[string]any{
			"blocking_failures": len(run.Result.BlockingFailures),
		})
		return run, nil
	}

	span.SetStatus("ok")
	return run, nil
}

func (e *Engine) settleCancelled(ctx context.Context, inst instrument.Instrumenter, run *Run) error {
	if err := run.settleCancel(); err != nil {
		return err
	}
	inst.EmitBusinessEvent(ctx, "run.state."+string(StateCancelled), "report_run", run.ID, nil)
	return nil
}

// forEachRecord dispatches fn over record indexes on the bounded pool
// and waits for the fan-in barrier. Cancellation stops dispatching new
// records but never interrupts one in flight.
func (e *Engine) forEachRecord(run *Run, n int, fn func(i int)) {
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if run.isCancelled() {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}
