package step

import "fmt"

// ValidationFailedError reports that a validate step exhausted its retries
// without every stage passing.
type ValidationFailedError struct {
	StepName string
	Attempts int
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("step: %q failed validation after %d attempt(s)", e.StepName, e.Attempts)
}

// BranchNoMatchError reports that none of a branch step's options had a
// truthy `when` predicate.
type BranchNoMatchError struct {
	StepName string
}

func (e *BranchNoMatchError) Error() string {
	return fmt.Sprintf("step: branch %q: no option matched and no default (when: \"true\") was provided", e.StepName)
}

// UnknownActionError reports a python step naming an action that was never
// registered.
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("step: unknown action %q", e.Name)
}

// UnknownAgentError reports an agent step naming an agent that was never
// registered.
type UnknownAgentError struct {
	Name string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("step: unknown agent %q", e.Name)
}

// UnknownGeneratorError reports a generate step naming a generator that was
// never registered.
type UnknownGeneratorError struct {
	Name string
}

func (e *UnknownGeneratorError) Error() string {
	return fmt.Sprintf("step: unknown generator %q", e.Name)
}

// LoopIterationError wraps a failure from a single loop iteration with its
// index, so callers can tell which item in a `for_each` set failed.
type LoopIterationError struct {
	StepName string
	Index    int
	Err      error
}

func (e *LoopIterationError) Error() string {
	return fmt.Sprintf("step: loop %q: iteration %d: %v", e.StepName, e.Index, e.Err)
}

func (e *LoopIterationError) Unwrap() error { return e.Err }

// LoopAggregateError reports that one or more of a loop step's iterations
// failed. Every iteration runs to completion regardless of its peers'
// outcome; this aggregates whichever failed rather than short-circuiting on
// the first one.
type LoopAggregateError struct {
	StepName string
	Total    int
	Failures []error
}

func (e *LoopAggregateError) Error() string {
	return fmt.Sprintf("step: loop %q: %d/%d iteration(s) failed: %v", e.StepName, len(e.Failures), e.Total, e.Failures[0])
}

func (e *LoopAggregateError) Unwrap() []error { return e.Failures }
