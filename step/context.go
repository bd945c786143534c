// Package step executes a single schema.StepRecord against a workflow run,
// recursively handling each of the eight step types: python, agent,
// generate, validate, loop, branch, checkpoint, and subworkflow. It knows
// nothing about workflow-wide bookkeeping (input resolution, checkpoint
// storage, event sinks) beyond the narrow RunContext interface the engine
// package supplies at call time.
package step

import (
	"context"

	"github.com/maverickhq/maverick/expr"
	"github.com/maverickhq/maverick/validation"
)

// RunContext is the per-run state a step needs, supplied by the engine. It
// embeds expr.Context so step bodies can evaluate `${{ ... }}` expressions
// directly against the same backing state.
type RunContext interface {
	expr.Context

	// RecordResult stores a step's finished StepResult, both so later
	// `${{ steps.<name>.output }}` references can resolve its output and so
	// the engine can assemble the run's full, ordered step-result history.
	RecordResult(res StepResult)

	// WithIteration returns a child RunContext scoped to one loop iteration,
	// so nested `item`/`index` references resolve without mutating the
	// parent's state. Concurrent iterations each get their own child.
	WithIteration(item any, index int) RunContext

	// PushRollback records stepName's rollback action name for later LIFO
	// execution if the run fails downstream.
	PushRollback(stepName, rollbackAction string)

	// RunSubworkflow executes a named sub-workflow with the given resolved
	// inputs and returns its final output.
	RunSubworkflow(ctx context.Context, name string, inputs map[string]any) (any, error)

	// SaveCheckpoint persists a checkpoint under checkpointID at the current
	// point in execution.
	SaveCheckpoint(ctx context.Context, checkpointID string) error

	// Emit reports a lifecycle event (StepStarted, StepCompleted, ...) for
	// observability; the engine decides what, if anything, consumes it.
	Emit(eventType, stepName string, data map[string]any)

	// ValidationConfig returns the profile table a validate step's stage
	// selector is resolved against.
	ValidationConfig() validation.Config
	// StageRunner returns the collaborator used to execute resolved stages.
	StageRunner() validation.StageRunner
}

// EvalExpr parses and evaluates src (a full `${{ ... }}` or mixed-literal
// template string) against ctx in one step.
func EvalExpr(ctx RunContext, src string) (any, error) {
	tpl, err := expr.Parse(src)
	if err != nil {
		return nil, err
	}
	return tpl.Eval(ctx)
}

// EvalBool evaluates src and applies the spec's truthiness coercion, for use
// in branch conditions (which are gated by truthiness, not strict typing).
func EvalBool(ctx RunContext, src string) (bool, error) {
	v, err := EvalExpr(ctx, src)
	if err != nil {
		return false, err
	}
	return expr.Truthy(v), nil
}

// EvalStrictBool evaluates src and requires the result to already be a
// boolean, for use in `step.when` gating: a non-boolean result there is a
// workflow-fatal TypeMismatch rather than a truthiness coercion.
func EvalStrictBool(ctx RunContext, src string) (bool, error) {
	v, err := EvalExpr(ctx, src)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &expr.TypeMismatch{Op: "when", Actual: v}
	}
	return b, nil
}

// evalArgs evaluates a python step's positional args, resolving any string
// argument as a template and passing every other type through unevaluated.
func evalArgs(ctx RunContext, args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := evalAny(ctx, a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func evalKwargs(ctx RunContext, kwargs map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		val, err := evalAny(ctx, v)
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

// evalAny resolves templated strings; maps and slices are walked
// recursively so nested string templates (e.g. inside a `context:` block)
// also resolve.
func evalAny(ctx RunContext, v any) (any, error) {
	switch x := v.(type) {
	case string:
		return EvalExpr(ctx, x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			r, err := evalAny(ctx, vv)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, vv := range x {
			r, err := evalAny(ctx, vv)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}
