package step

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maverickhq/maverick/component"
	"github.com/maverickhq/maverick/expr"
	"github.com/maverickhq/maverick/schema"
	"github.com/maverickhq/maverick/validation"
)

type fakeRunContext struct {
	inputs       map[string]any
	outputs      map[string]any
	results      []StepResult
	item         any
	hasItem      bool
	index        any
	hasIdx       bool
	rollbacks    []string
	events       []string
	checkpoints  []string
	subworkflows map[string]any
	valCfg       validation.Config
	runner       validation.StageRunner
}

func newFakeRunContext() *fakeRunContext {
	return &fakeRunContext{
		inputs:       map[string]any{},
		outputs:      map[string]any{},
		subworkflows: map[string]any{},
	}
}

func (f *fakeRunContext) Input(name string) (any, bool) {
	v, ok := f.inputs[name]
	return v, ok
}

func (f *fakeRunContext) StepOutput(name string) (any, bool) {
	v, ok := f.outputs[name]
	return v, ok
}

func (f *fakeRunContext) Item() (any, bool)  { return f.item, f.hasItem }
func (f *fakeRunContext) Index() (any, bool) { return f.index, f.hasIdx }

func (f *fakeRunContext) RecordResult(res StepResult) {
	f.results = append(f.results, res)
	f.outputs[res.Name] = res.Output
}

func (f *fakeRunContext) WithIteration(item any, index int) RunContext {
	child := *f
	child.item = item
	child.hasItem = true
	child.index = index
	child.hasIdx = true
	childOutputs := make(map[string]any, len(f.outputs))
	for k, v := range f.outputs {
		childOutputs[k] = v
	}
	child.outputs = childOutputs
	return &child
}

func (f *fakeRunContext) PushRollback(stepName, rollbackAction string) {
	f.rollbacks = append(f.rollbacks, stepName+":"+rollbackAction)
}

func (f *fakeRunContext) RunSubworkflow(_ context.Context, name string, inputs map[string]any) (any, error) {
	return f.subworkflows[name], nil
}

func (f *fakeRunContext) SaveCheckpoint(_ context.Context, checkpointID string) error {
	f.checkpoints = append(f.checkpoints, checkpointID)
	return nil
}

func (f *fakeRunContext) Emit(eventType, stepName string, data map[string]any) {
	f.events = append(f.events, eventType+":"+stepName)
}

func (f *fakeRunContext) ValidationConfig() validation.Config { return f.valCfg }
func (f *fakeRunContext) StageRunner() validation.StageRunner { return f.runner }

func TestExecutor_PythonStep(t *testing.T) {
	comp := component.New()
	require.NoError(t, comp.RegisterAction("shout", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return args[0].(string) + "!", nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()

	rec := schema.StepRecord{Name: "s", Type: schema.StepPython, Action: "shout", Args: []any{"hi"}}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hi!", res.Output)
	assert.Equal(t, "hi!", rc.outputs["s"])
	assert.Contains(t, rc.events, "StepStarted:s")
	assert.Contains(t, rc.events, "StepCompleted:s")
}

func TestExecutor_PythonStepUnknownAction(t *testing.T) {
	ex := New(component.New())
	rc := newFakeRunContext()
	rec := schema.StepRecord{Name: "s", Type: schema.StepPython, Action: "missing"}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown action")
}

func TestExecutor_WhenSkipsStep(t *testing.T) {
	comp := component.New()
	called := false
	require.NoError(t, comp.RegisterAction("noop", func(context.Context, []any, map[string]any) (any, error) {
		called = true
		return nil, nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()
	rc.inputs["flag"] = false

	rec := schema.StepRecord{Name: "s", Type: schema.StepPython, Action: "noop", When: "${{ inputs.flag }}"}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, SkipMarker{Reason: "predicate_false"}, res.Output)
	assert.False(t, called)
	assert.Contains(t, rc.events, "StepSkipped:s")
}

func TestExecutor_WhenPredicateRaisesSkipsWithWarning(t *testing.T) {
	comp := component.New()
	called := false
	require.NoError(t, comp.RegisterAction("noop", func(context.Context, []any, map[string]any) (any, error) {
		called = true
		return nil, nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()

	rec := schema.StepRecord{Name: "s", Type: schema.StepPython, Action: "noop", When: "${{ inputs.undeclared }}"}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, SkipMarker{Reason: "predicate_exception"}, res.Output)
	assert.False(t, called)
	assert.Contains(t, rc.events, "StepSkipped:s")
}

func TestExecutor_WhenPredicateNonBoolIsFatal(t *testing.T) {
	ex := New(component.New())
	rc := newFakeRunContext()
	rc.inputs["count"] = int64(1)

	rec := schema.StepRecord{Name: "s", Type: schema.StepPython, Action: "noop", When: "${{ inputs.count }}"}
	_, err := ex.Run(context.Background(), rec, rc)
	require.Error(t, err)
	var mismatch *expr.TypeMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestExecutor_RollbackRegisteredOnSuccess(t *testing.T) {
	comp := component.New()
	require.NoError(t, comp.RegisterAction("noop", func(context.Context, []any, map[string]any) (any, error) {
		return "ok", nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()
	rec := schema.StepRecord{Name: "s", Type: schema.StepPython, Action: "noop", Rollback: "undo_s"}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"s:undo_s"}, rc.rollbacks)
}

func TestExecutor_BranchPicksFirstMatch(t *testing.T) {
	comp := component.New()
	require.NoError(t, comp.RegisterAction("prod_path", func(context.Context, []any, map[string]any) (any, error) {
		return "prod", nil
	}))
	require.NoError(t, comp.RegisterAction("dev_path", func(context.Context, []any, map[string]any) (any, error) {
		return "dev", nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()
	rc.inputs["env"] = "dev"

	rec := schema.StepRecord{
		Name: "b", Type: schema.StepBranch,
		Options: []schema.BranchOption{
			{When: "${{ inputs.env == 'prod' }}", Step: schema.StepRecord{Name: "p", Type: schema.StepPython, Action: "prod_path"}},
			{When: "true", Step: schema.StepRecord{Name: "d", Type: schema.StepPython, Action: "dev_path"}},
		},
	}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "dev", res.Output)
}

func TestExecutor_BranchNoMatchErrors(t *testing.T) {
	ex := New(component.New())
	rc := newFakeRunContext()
	rec := schema.StepRecord{
		Name: "b", Type: schema.StepBranch,
		Options: []schema.BranchOption{
			{When: "false", Step: schema.StepRecord{Name: "x", Type: schema.StepPython, Action: "x"}},
		},
	}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "no option matched")
}

func TestExecutor_LoopSequential(t *testing.T) {
	comp := component.New()
	require.NoError(t, comp.RegisterAction("identity", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return args[0], nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()
	rc.inputs["items"] = []any{int64(1), int64(2), int64(3)}

	rec := schema.StepRecord{
		Name: "loop", Type: schema.StepLoop, ForEach: "${{ inputs.items }}", MaxConcurrency: 1,
		Steps: []schema.StepRecord{
			{Name: "inner", Type: schema.StepPython, Action: "identity", Args: []any{"${{ item }}"}},
		},
	}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, res.Output)
}

func TestExecutor_LoopConcurrent(t *testing.T) {
	comp := component.New()
	require.NoError(t, comp.RegisterAction("identity", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return args[0], nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()
	rc.inputs["items"] = []any{int64(1), int64(2), int64(3), int64(4)}

	rec := schema.StepRecord{
		Name: "loop", Type: schema.StepLoop, ForEach: "${{ inputs.items }}", MaxConcurrency: 2,
		Steps: []schema.StepRecord{
			{Name: "inner", Type: schema.StepPython, Action: "identity", Args: []any{"${{ item }}"}},
		},
	}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4)}, res.Output)
}

func TestExecutor_LoopConcurrentRunsEveryIterationOnFailure(t *testing.T) {
	comp := component.New()
	var calls int
	require.NoError(t, comp.RegisterAction("maybe_fail", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		calls++
		n := args[0].(int64)
		if n == 2 {
			return nil, assert.AnError
		}
		return n, nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()
	rc.inputs["items"] = []any{int64(1), int64(2), int64(3), int64(4)}

	rec := schema.StepRecord{
		Name: "loop", Type: schema.StepLoop, ForEach: "${{ inputs.items }}", MaxConcurrency: 0,
		Steps: []schema.StepRecord{
			{Name: "inner", Type: schema.StepPython, Action: "maybe_fail", Args: []any{"${{ item }}"}},
		},
	}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 4, calls)
	assert.Contains(t, res.Error, "1/4 iteration(s) failed")
}

func TestExecutor_ValidateRetriesThenFails(t *testing.T) {
	attempts := 0
	runner := stageRunnerFunc(func(_ context.Context, s validation.Stage) validation.StageResult {
		attempts++
		return validation.StageResult{Stage: s.Name, Passed: false}
	})
	ex := New(component.New())
	rc := newFakeRunContext()
	rc.valCfg = validation.Config{Profiles: map[string][]validation.Stage{"lint": {{Name: "lint"}}}}
	rc.runner = runner

	rec := schema.StepRecord{
		Name: "v", Type: schema.StepValidate,
		Stages: schema.StageSelector{ConfigKey: "lint"},
		Retry:  3,
	}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "failed validation after 4 attempt(s)")
	// retry: 3 means 3 retries after the first attempt, i.e. 4 attempts total.
	assert.Equal(t, 4, attempts)
}

func TestExecutor_ValidatePassesOnSecondAttempt(t *testing.T) {
	attempts := 0
	runner := stageRunnerFunc(func(_ context.Context, s validation.Stage) validation.StageResult {
		attempts++
		return validation.StageResult{Stage: s.Name, Passed: attempts >= 2}
	})
	ex := New(component.New())
	rc := newFakeRunContext()
	rc.valCfg = validation.Config{Profiles: map[string][]validation.Stage{"lint": {{Name: "lint"}}}}
	rc.runner = runner

	rec := schema.StepRecord{
		Name: "v", Type: schema.StepValidate,
		Stages: schema.StageSelector{ConfigKey: "lint"},
		Retry:  3,
	}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, attempts)
}

func TestExecutor_ValidateRunsOnFailureBetweenAttemptsThenPasses(t *testing.T) {
	lintPassing := false
	runner := stageRunnerFunc(func(_ context.Context, s validation.Stage) validation.StageResult {
		return validation.StageResult{Stage: s.Name, Passed: lintPassing}
	})
	comp := component.New()
	fixCalls := 0
	require.NoError(t, comp.RegisterAction("autofix", func(context.Context, []any, map[string]any) (any, error) {
		fixCalls++
		lintPassing = true
		return nil, nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()
	rc.valCfg = validation.Config{Profiles: map[string][]validation.Stage{"lint": {{Name: "lint"}}}}
	rc.runner = runner

	rec := schema.StepRecord{
		Name: "v", Type: schema.StepValidate,
		Stages:    schema.StageSelector{ConfigKey: "lint"},
		Retry:     1,
		OnFailure: &schema.StepRecord{Name: "fix", Type: schema.StepPython, Action: "autofix"},
	}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, fixCalls)
	result := res.Output.(validation.Result)
	assert.True(t, result.Passed)
}

func TestExecutor_CheckpointSavesAndRunsInner(t *testing.T) {
	comp := component.New()
	require.NoError(t, comp.RegisterAction("noop", func(context.Context, []any, map[string]any) (any, error) {
		return "done", nil
	}))
	ex := New(comp)
	rc := newFakeRunContext()

	rec := schema.StepRecord{
		Name: "cp", Type: schema.StepCheckpoint, CheckpointID: "after-noop",
		Inner: &schema.StepRecord{Name: "inner", Type: schema.StepPython, Action: "noop"},
	}
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "done", res.Output)
	assert.Equal(t, []string{"after-noop"}, rc.checkpoints)
}

func TestExecutor_SubWorkflowDelegates(t *testing.T) {
	ex := New(component.New())
	rc := newFakeRunContext()
	rc.subworkflows["child"] = map[string]any{"result": "ok"}

	rec := schema.StepRecord{Name: "sw", Type: schema.StepSubWorkflow, Workflow: "child", Inputs: map[string]any{"x": "${{ inputs.y }}"}}
	rc.inputs["y"] = "val"
	res, err := ex.Run(context.Background(), rec, rc)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"result": "ok"}, res.Output)
}

type stageRunnerFunc func(ctx context.Context, s validation.Stage) validation.StageResult

func (f stageRunnerFunc) RunStage(ctx context.Context, s validation.Stage) validation.StageResult {
	return f(ctx, s)
}
