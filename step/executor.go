package step

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/maverickhq/maverick/component"
	"github.com/maverickhq/maverick/expr"
	"github.com/maverickhq/maverick/schema"
	"github.com/maverickhq/maverick/validation"
)

// Executor dispatches schema.StepRecord values to their type-specific
// handler against the component registry of actions/agents/generators.
type Executor struct {
	Components *component.Registry
}

// New creates an Executor bound to components.
func New(components *component.Registry) *Executor {
	return &Executor{Components: components}
}

// Run executes one step (and, for container types, its children), returning
// its frozen StepResult. The returned error is reserved for workflow-fatal
// conditions the engine must abort on immediately (a non-boolean `when`
// result); every other step-level failure is reported as a StepResult with
// Success=false and a non-nil error, leaving the Go error nil, so the engine
// can record the result and decide whether to stop the sequence.
func (e *Executor) Run(ctx context.Context, rec schema.StepRecord, rc RunContext) (StepResult, error) {
	start := time.Now()

	if rec.When != "" {
		ok, err := EvalStrictBool(rc, rec.When)
		if err != nil {
			var mismatch *expr.TypeMismatch
			if errors.As(err, &mismatch) {
				// Non-boolean `when` result: workflow-fatal, abort immediately.
				return StepResult{}, fmt.Errorf("step %q: when: %w", rec.Name, err)
			}
			// Any other evaluation failure (missing input, iteration-scope
			// misuse, ...) is a warning-logged skip, not a failure: the run
			// continues as if `when` had evaluated falsy.
			rc.Emit("StepSkipped", rec.Name, map[string]any{"reason": "predicate_exception", "warning": err.Error()})
			res := StepResult{Name: rec.Name, StepType: rec.Type, Success: true, Output: SkipMarker{Reason: "predicate_exception"}}
			rc.RecordResult(res)
			return res, nil
		}
		if !ok {
			rc.Emit("StepSkipped", rec.Name, map[string]any{"reason": "predicate_false"})
			res := StepResult{Name: rec.Name, StepType: rec.Type, Success: true, Output: SkipMarker{Reason: "predicate_false"}}
			rc.RecordResult(res)
			return res, nil
		}
	}

	rc.Emit("StepStarted", rec.Name, nil)
	out, err := e.dispatch(ctx, rec, rc)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		rc.Emit("StepFailed", rec.Name, map[string]any{"error": err.Error()})
		res := StepResult{Name: rec.Name, StepType: rec.Type, Success: false, Error: err.Error(), DurationMS: duration}
		rc.RecordResult(res)
		return res, nil
	}

	res := StepResult{Name: rec.Name, StepType: rec.Type, Success: true, Output: out, DurationMS: duration}
	if rec.Rollback != "" {
		rc.PushRollback(rec.Name, rec.Rollback)
	}
	rc.Emit("StepCompleted", rec.Name, map[string]any{"output": out, "duration_ms": duration})
	rc.RecordResult(res)
	return res, nil
}

func (e *Executor) dispatch(ctx context.Context, rec schema.StepRecord, rc RunContext) (any, error) {
	switch rec.Type {
	case schema.StepPython:
		return e.runPython(ctx, rec, rc)
	case schema.StepAgent:
		return e.runAgent(ctx, rec, rc)
	case schema.StepGenerate:
		return e.runGenerate(ctx, rec, rc)
	case schema.StepValidate:
		return e.runValidate(ctx, rec, rc)
	case schema.StepLoop:
		return e.runLoop(ctx, rec, rc)
	case schema.StepBranch:
		return e.runBranch(ctx, rec, rc)
	case schema.StepCheckpoint:
		return e.runCheckpoint(ctx, rec, rc)
	case schema.StepSubWorkflow:
		return e.runSubWorkflow(ctx, rec, rc)
	default:
		return nil, fmt.Errorf("step %q: unknown step type %q", rec.Name, rec.Type)
	}
}

func (e *Executor) runPython(ctx context.Context, rec schema.StepRecord, rc RunContext) (any, error) {
	action, ok := e.Components.Actions.Get(rec.Action)
	if !ok {
		return nil, &UnknownActionError{Name: rec.Action}
	}
	args, err := evalArgs(rc, rec.Args)
	if err != nil {
		return nil, fmt.Errorf("step %q: evaluating args: %w", rec.Name, err)
	}
	kwargs, err := evalKwargs(rc, rec.Kwargs)
	if err != nil {
		return nil, fmt.Errorf("step %q: evaluating kwargs: %w", rec.Name, err)
	}
	return action(ctx, args, kwargs)
}

func (e *Executor) buildContext(rc RunContext, declared map[string]any) (map[string]any, error) {
	resolved, err := evalKwargs(rc, declared)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (e *Executor) runAgent(ctx context.Context, rec schema.StepRecord, rc RunContext) (any, error) {
	ag, ok := e.Components.Agents.Get(rec.Agent)
	if !ok {
		return nil, &UnknownAgentError{Name: rec.Agent}
	}
	stepContext, err := e.resolveContext(rc, rec.Context, rec.ContextBuilder)
	if err != nil {
		return nil, fmt.Errorf("step %q: building context: %w", rec.Name, err)
	}
	return ag.Run(ctx, stepContext, func(chunk string) {
		rc.Emit("AgentStreamChunk", rec.Name, map[string]any{"chunk": chunk})
	})
}

func (e *Executor) runGenerate(ctx context.Context, rec schema.StepRecord, rc RunContext) (any, error) {
	gen, ok := e.Components.Generators.Get(rec.Generator)
	if !ok {
		return nil, &UnknownGeneratorError{Name: rec.Generator}
	}
	stepContext, err := e.resolveContext(rc, rec.Context, rec.ContextBuilder)
	if err != nil {
		return nil, fmt.Errorf("step %q: building context: %w", rec.Name, err)
	}
	return gen.Generate(ctx, stepContext)
}

func (e *Executor) resolveContext(rc RunContext, declared map[string]any, builderName string) (map[string]any, error) {
	resolved, err := e.buildContext(rc, declared)
	if err != nil {
		return nil, err
	}
	if builderName == "" {
		return resolved, nil
	}
	builder, ok := e.Components.ContextBuilders.Get(builderName)
	if !ok {
		return nil, fmt.Errorf("step: unknown context builder %q", builderName)
	}
	return builder(context.Background(), resolved)
}

func (e *Executor) runValidate(ctx context.Context, rec schema.StepRecord, rc RunContext) (any, error) {
	stages, err := resolveStages(rc.ValidationConfig(), rec.Stages)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", rec.Name, err)
	}

	// rec.Retry is the number of retries, not the total attempt count: a
	// retry of 1 means two attempts total.
	maxAttempts := rec.Retry + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last validation.Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = validation.RunStages(ctx, rc.StageRunner(), stages)
		if last.Passed {
			return last, nil
		}
		// Run on_failure between attempts so it gets a chance to fix whatever
		// made validation fail before the next attempt re-runs the stages. A
		// failure in on_failure itself is non-fatal here: it just means the
		// next attempt sees the same state as this one.
		if rec.OnFailure != nil && attempt < maxAttempts {
			_, _ = e.Run(ctx, *rec.OnFailure, rc)
		}
	}

	return last, &ValidationFailedError{StepName: rec.Name, Attempts: maxAttempts}
}

func resolveStages(cfg validation.Config, sel schema.StageSelector) ([]validation.Stage, error) {
	if sel.ConfigKey != "" {
		stages, ok := cfg.Profiles[sel.ConfigKey]
		if !ok {
			return nil, fmt.Errorf("unknown stage profile %q", sel.ConfigKey)
		}
		return stages, nil
	}
	var out []validation.Stage
	for _, name := range sel.Explicit {
		stages, ok := cfg.Profiles[name]
		if !ok {
			return nil, fmt.Errorf("unknown stage profile %q", name)
		}
		out = append(out, stages...)
	}
	return out, nil
}

func (e *Executor) runLoop(ctx context.Context, rec schema.StepRecord, rc RunContext) (any, error) {
	items, err := EvalExpr(rc, rec.ForEach)
	if err != nil {
		return nil, fmt.Errorf("step %q: evaluating for_each: %w", rec.Name, err)
	}
	list, ok := items.([]any)
	if !ok {
		return nil, fmt.Errorf("step %q: for_each must evaluate to a list, got %T", rec.Name, items)
	}

	// max_concurrency: 1 means sequential, 0 means unbounded, N>1 bounded.
	maxConcurrency := rec.MaxConcurrency
	if maxConcurrency < 0 {
		maxConcurrency = 1
	}
	if maxConcurrency == 0 {
		maxConcurrency = len(list)
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	results := make([]any, len(list))
	if maxConcurrency == 1 {
		var failures []error
		for i, item := range list {
			iterCtx := rc.WithIteration(item, i)
			out, err := e.runSteps(ctx, rec.Steps, iterCtx)
			if err != nil {
				failures = append(failures, &LoopIterationError{StepName: rec.Name, Index: i, Err: err})
				continue
			}
			results[i] = out
		}
		if len(failures) > 0 {
			return results, &LoopAggregateError{StepName: rec.Name, Total: len(list), Failures: failures}
		}
		return results, nil
	}

	// Every scheduled iteration runs to completion regardless of its
	// peers' outcome: a shared cancellable context (as errgroup.WithContext
	// would give us) would let the first failure stop the semaphore
	// acquisition loop from ever scheduling the rest, so plain sync
	// primitives are used instead.
	sem := semaphore.NewWeighted(int64(maxConcurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error
	for i, item := range list {
		i, item := i, item
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			failures = append(failures, &LoopIterationError{StepName: rec.Name, Index: i, Err: err})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			iterCtx := rc.WithIteration(item, i)
			out, err := e.runSteps(ctx, rec.Steps, iterCtx)
			if err != nil {
				mu.Lock()
				failures = append(failures, &LoopIterationError{StepName: rec.Name, Index: i, Err: err})
				mu.Unlock()
				return
			}
			results[i] = out
		}()
	}
	wg.Wait()
	if len(failures) > 0 {
		return results, &LoopAggregateError{StepName: rec.Name, Total: len(list), Failures: failures}
	}
	return results, nil
}

// runSteps runs a loop body's ordered child steps sequentially, returning
// the last one's output as the iteration's result.
func (e *Executor) runSteps(ctx context.Context, steps []schema.StepRecord, rc RunContext) (any, error) {
	var last any
	for _, s := range steps {
		res, err := e.Run(ctx, s, rc)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return res.Output, errors.New(res.Error)
		}
		last = res.Output
	}
	return last, nil
}

func (e *Executor) runBranch(ctx context.Context, rec schema.StepRecord, rc RunContext) (any, error) {
	for _, opt := range rec.Options {
		ok, err := EvalBool(rc, opt.When)
		if err != nil {
			return nil, fmt.Errorf("step %q: evaluating branch option: %w", rec.Name, err)
		}
		if ok {
			res, err := e.Run(ctx, opt.Step, rc)
			if err != nil {
				return nil, err
			}
			if !res.Success {
				return res.Output, errors.New(res.Error)
			}
			return res.Output, nil
		}
	}
	return nil, &BranchNoMatchError{StepName: rec.Name}
}

func (e *Executor) runCheckpoint(ctx context.Context, rec schema.StepRecord, rc RunContext) (any, error) {
	var out any
	if rec.Inner != nil {
		res, err := e.Run(ctx, *rec.Inner, rc)
		if err != nil {
			return nil, err
		}
		if !res.Success {
			return res.Output, errors.New(res.Error)
		}
		out = res.Output
	}
	if err := rc.SaveCheckpoint(ctx, rec.CheckpointID); err != nil {
		return nil, fmt.Errorf("step %q: saving checkpoint: %w", rec.Name, err)
	}
	rc.Emit("CheckpointSaved", rec.Name, map[string]any{"checkpoint_id": rec.CheckpointID})
	return out, nil
}

func (e *Executor) runSubWorkflow(ctx context.Context, rec schema.StepRecord, rc RunContext) (any, error) {
	inputs, err := evalKwargs(rc, rec.Inputs)
	if err != nil {
		return nil, fmt.Errorf("step %q: evaluating inputs: %w", rec.Name, err)
	}
	return rc.RunSubworkflow(ctx, rec.Workflow, inputs)
}
