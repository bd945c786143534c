package step

import "github.com/maverickhq/maverick/schema"

// StepResult is the immutable record the Executor produces for one step
// once it finishes (or is skipped). success=false implies Error is set and
// vice versa; a skipped step is always success=true with a SkipMarker
// output.
type StepResult struct {
	Name       string          `json:"name"`
	StepType   schema.StepType `json:"step_type"`
	Success    bool            `json:"success"`
	Output     any             `json:"output"`
	DurationMS int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

// SkipMarker is the output of a step that never actually ran because its
// `when` predicate was falsy, or raised and was skipped with a warning
// instead of aborting the run.
type SkipMarker struct {
	Reason string `json:"reason"`
}
