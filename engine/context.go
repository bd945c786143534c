package engine

import (
	"context"
	"sync"
	"time"

	"github.com/maverickhq/maverick/checkpoint"
	"github.com/maverickhq/maverick/schema"
	"github.com/maverickhq/maverick/step"
	"github.com/maverickhq/maverick/validation"
)

type rollbackEntry struct {
	stepName string
	action   string
}

// runState is the mutable state shared by every WorkflowContext derived from
// the same run (including loop-iteration children). Step outputs share one
// flat namespace per spec.md's unique-name rule, so a step re-executed
// across loop iterations overwrites its own prior entry in outputsByName
// (results keeps every execution); item/index are the only
// per-iteration-local values. results preserves execution
// order for WorkflowResult.StepResults and checkpoint replay; outputsByName
// gives `${{ steps.X.output }}` O(1) lookup without re-scanning results.
type runState struct {
	mu            sync.Mutex
	results       []step.StepResult
	outputsByName map[string]step.StepResult
	rollbacks     []rollbackEntry
}

func newRunState() *runState {
	return &runState{outputsByName: map[string]step.StepResult{}}
}

func (s *runState) recordResult(res step.StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	s.outputsByName[res.Name] = res
}

func (s *runState) getOutput(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.outputsByName[name]
	if !ok {
		return nil, false
	}
	return res.Output, true
}

func (s *runState) pushRollback(stepName, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollbacks = append(s.rollbacks, rollbackEntry{stepName: stepName, action: action})
}

func (s *runState) snapshotResults() []step.StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]step.StepResult(nil), s.results...)
}

// lastOutput returns the most recently recorded step's output, or nil if no
// step has run yet, for use as the workflow's final_output when no
// `outputs:` block was declared.
func (s *runState) lastOutput() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return nil
	}
	return s.results[len(s.results)-1].Output
}

// WorkflowContext is the concrete step.RunContext the engine hands to the
// step executor. It carries one run's inputs, shared output/rollback state,
// and (for children produced by WithIteration) the current loop item/index.
type WorkflowContext struct {
	engine *Engine
	runID  string
	state  *runState
	wf     *schema.WorkflowFile

	inputs map[string]any

	hasItem bool
	item    any
	hasIdx  bool
	index   any
}

func (c *WorkflowContext) Input(name string) (any, bool) {
	v, ok := c.inputs[name]
	return v, ok
}

func (c *WorkflowContext) StepOutput(name string) (any, bool) {
	return c.state.getOutput(name)
}

func (c *WorkflowContext) Item() (any, bool)  { return c.item, c.hasItem }
func (c *WorkflowContext) Index() (any, bool) { return c.index, c.hasIdx }

func (c *WorkflowContext) RecordResult(res step.StepResult) {
	c.state.recordResult(res)
}

func (c *WorkflowContext) WithIteration(item any, index int) step.RunContext {
	child := *c
	child.item = item
	child.hasItem = true
	child.index = int64(index)
	child.hasIdx = true
	return &child
}

func (c *WorkflowContext) PushRollback(stepName, rollbackAction string) {
	c.state.pushRollback(stepName, rollbackAction)
}

func (c *WorkflowContext) RunSubworkflow(ctx context.Context, name string, inputs map[string]any) (any, error) {
	return c.engine.runNamed(ctx, name, inputs)
}

func (c *WorkflowContext) SaveCheckpoint(ctx context.Context, checkpointID string) error {
	if c.engine.Checkpoints == nil {
		return nil
	}
	hash, err := checkpoint.InputsHash(c.inputs)
	if err != nil {
		return err
	}
	cp := checkpoint.Checkpoint{
		WorkflowName: c.wf.Name,
		CheckpointID: checkpointID,
		RunID:        c.runID,
		InputsHash:   hash,
		StepResults:  c.state.snapshotResults(),
		SavedAt:      time.Now().UTC(),
	}
	return c.engine.Checkpoints.Save(cp)
}

func (c *WorkflowContext) Emit(eventType, stepName string, data map[string]any) {
	c.engine.emit(Event{
		Type:      EventType(eventType),
		RunID:     c.runID,
		StepName:  stepName,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func (c *WorkflowContext) ValidationConfig() validation.Config { return c.engine.Validation }
func (c *WorkflowContext) StageRunner() validation.StageRunner { return c.engine.Runner }
