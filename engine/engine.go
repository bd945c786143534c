// Package engine runs a parsed schema.WorkflowFile end to end: resolving
// inputs, dispatching each step through the step executor, coordinating
// checkpoint saves, unwinding rollbacks on failure, and evaluating the
// workflow's declared outputs once every step has completed.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maverickhq/maverick/checkpoint"
	"github.com/maverickhq/maverick/component"
	"github.com/maverickhq/maverick/schema"
	"github.com/maverickhq/maverick/step"
	"github.com/maverickhq/maverick/validation"
)

// WorkflowDiscoverer resolves a sub-workflow step's `workflow` name to a
// loaded WorkflowFile. *schema.Discoverer satisfies this directly; tests
// substitute a stub.
type WorkflowDiscoverer interface {
	Discover(name string) (*schema.WorkflowFile, schema.Source, error)
}

// Engine ties together the collaborators a run needs: the component
// registry, a workflow discoverer (for sub-workflow steps), a checkpoint
// store, and the validation config/runner pair.
type Engine struct {
	Components  *component.Registry
	Discoverer  WorkflowDiscoverer
	Checkpoints *checkpoint.Store
	Validation  validation.Config
	Runner      validation.StageRunner

	executor *step.Executor
	onEvent  func(Event)
}

// New creates an Engine. onEvent may be nil, in which case emitted events
// are simply dropped. discoverer may be nil if the workflow set has no
// sub-workflow steps.
func New(components *component.Registry, discoverer WorkflowDiscoverer, checkpoints *checkpoint.Store, valCfg validation.Config, runner validation.StageRunner, onEvent func(Event)) *Engine {
	return &Engine{
		Components:  components,
		Discoverer:  discoverer,
		Checkpoints: checkpoints,
		Validation:  valCfg,
		Runner:      runner,
		executor:    step.New(components),
		onEvent:     onEvent,
	}
}

func (e *Engine) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

// Run executes wf from the start with the given raw input values, applying
// input defaults, requiredness, and type coercion per wf.Inputs before the
// first step runs.
func (e *Engine) Run(ctx context.Context, wf *schema.WorkflowFile, rawInputs map[string]any) (*WorkflowResult, error) {
	inputs, err := resolveInputs(wf, rawInputs)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	wc := &WorkflowContext{
		engine: e,
		runID:  runID,
		wf:     wf,
		state:  newRunState(),
		inputs: inputs,
	}
	return e.execute(ctx, wf, wc)
}

// Resume restarts wf from its latest checkpoint, replaying recorded step
// results and continuing from the first step not yet marked completed. It
// fails with CheckpointMismatchError if rawInputs hash differently than the
// checkpoint's recorded inputs.
func (e *Engine) Resume(ctx context.Context, wf *schema.WorkflowFile, rawInputs map[string]any) (*WorkflowResult, error) {
	if e.Checkpoints == nil {
		return nil, &NoCheckpointError{WorkflowName: wf.Name}
	}
	cp, err := e.Checkpoints.LoadLatest(wf.Name)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, &NoCheckpointError{WorkflowName: wf.Name}
	}

	inputs, err := resolveInputs(wf, rawInputs)
	if err != nil {
		return nil, err
	}
	hash, err := checkpoint.InputsHash(inputs)
	if err != nil {
		return nil, err
	}
	if hash != cp.InputsHash {
		return nil, &CheckpointMismatchError{Expected: cp.InputsHash, Actual: hash}
	}

	state := newRunState()
	completed := make([]string, 0, len(cp.StepResults))
	for _, res := range cp.StepResults {
		state.recordResult(res)
		completed = append(completed, res.Name)
	}

	wc := &WorkflowContext{
		engine: e,
		runID:  cp.RunID,
		wf:     wf,
		state:  state,
		inputs: inputs,
	}
	return e.execute(ctx, wf, wc, completed...)
}

func completedSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func (e *Engine) execute(ctx context.Context, wf *schema.WorkflowFile, wc *WorkflowContext, skipCompleted ...string) (*WorkflowResult, error) {
	start := time.Now()
	e.emit(Event{Type: EventWorkflowStarted, RunID: wc.runID})

	skip := completedSet(skipCompleted)
	failed := false
	for _, s := range wf.Steps {
		if skip[s.Name] {
			continue
		}
		res, err := e.executor.Run(ctx, s, wc)
		if err != nil {
			// Workflow-fatal: the step executor couldn't even produce a
			// StepResult (e.g. a non-boolean `when`). Unwind and stop.
			e.rollback(ctx, wc)
			runErr := fmt.Errorf("engine: step %q: %w", s.Name, err)
			e.emit(Event{Type: EventWorkflowFailed, RunID: wc.runID, Data: map[string]any{"error": runErr.Error()}})
			return nil, runErr
		}
		if !res.Success {
			failed = true
			break
		}
	}

	var rollbackErrors []error
	if failed {
		rollbackErrors = e.rollback(ctx, wc)
	}

	result := &WorkflowResult{
		WorkflowName:    wf.Name,
		RunID:           wc.runID,
		Success:         !failed,
		StepResults:     wc.state.snapshotResults(),
		TotalDurationMS: time.Since(start).Milliseconds(),
		RollbackErrors:  rollbackErrors,
	}

	if failed {
		e.emit(Event{Type: EventWorkflowFailed, RunID: wc.runID, Data: map[string]any{"rollback_errors": len(rollbackErrors)}})
		return result, nil
	}

	finalOutput, err := evalOutputs(wf, wc)
	if err != nil {
		return nil, err
	}
	result.FinalOutput = finalOutput

	e.emit(Event{Type: EventWorkflowCompleted, RunID: wc.runID, Data: map[string]any{"final_output": finalOutput}})
	return result, nil
}

// rollback unwinds the run's recorded rollback actions in LIFO order,
// collecting every individual failure rather than stopping at the first. It
// is a no-op (and emits nothing) when nothing was pushed, so a successful
// run incurs no rollback events.
func (e *Engine) rollback(ctx context.Context, wc *WorkflowContext) []error {
	wc.state.mu.Lock()
	entries := append([]rollbackEntry(nil), wc.state.rollbacks...)
	wc.state.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	e.emit(Event{Type: EventRollbackStarted, RunID: wc.runID})
	var failures []error
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		action, ok := e.Components.Actions.Get(entry.action)
		if !ok {
			failures = append(failures, fmt.Errorf("rollback action %q (for step %q) not registered", entry.action, entry.stepName))
			continue
		}
		if _, err := action(ctx, nil, nil); err != nil {
			failures = append(failures, fmt.Errorf("rollback for step %q: %w", entry.stepName, err))
		}
	}
	e.emit(Event{Type: EventRollbackCompleted, RunID: wc.runID, Data: map[string]any{"failures": len(failures)}})
	return failures
}

// runNamed discovers and runs a sub-workflow by name, returning its final
// output, for use by a `subworkflow` step.
func (e *Engine) runNamed(ctx context.Context, name string, inputs map[string]any) (any, error) {
	if e.Discoverer == nil {
		return nil, fmt.Errorf("engine: no discoverer configured, cannot run sub-workflow %q", name)
	}
	wf, _, err := e.Discoverer.Discover(name)
	if err != nil {
		return nil, err
	}
	result, err := e.Run(ctx, wf, inputs)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result.FinalOutput, fmt.Errorf("engine: sub-workflow %q failed", name)
	}
	return result.FinalOutput, nil
}

// resolveInputs applies declared defaults and requiredness, then coerces
// every raw input value to its declared type; a missing required input or a
// coercion failure both raise InvalidInputError.
func resolveInputs(wf *schema.WorkflowFile, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(wf.Inputs))
	for _, decl := range wf.Inputs {
		v, ok := raw[decl.Name]
		if !ok {
			if decl.Required {
				return nil, &InvalidInputError{Name: decl.Name, Reason: "required input not supplied"}
			}
			v = decl.Default
		}
		if v == nil {
			out[decl.Name] = v
			continue
		}
		coerced, err := coerceInput(decl, v)
		if err != nil {
			return nil, &InvalidInputError{Name: decl.Name, Reason: err.Error()}
		}
		out[decl.Name] = coerced
	}
	return out, nil
}

// evalOutputs evaluates the workflow's declared `outputs:` expressions into
// the run's final output. A workflow with no outputs declared instead
// surfaces the last executed step's own output, unevaluated.
func evalOutputs(wf *schema.WorkflowFile, wc *WorkflowContext) (any, error) {
	if len(wf.Outputs) == 0 {
		return wc.state.lastOutput(), nil
	}
	outputs := make(map[string]any, len(wf.Outputs))
	for _, decl := range wf.Outputs {
		v, err := step.EvalExpr(wc, decl.Expr)
		if err != nil {
			return nil, &OutputEvalError{Name: decl.Name, Err: err}
		}
		outputs[decl.Name] = v
	}
	return outputs, nil
}
