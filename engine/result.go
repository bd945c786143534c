package engine

import "github.com/maverickhq/maverick/step"

// WorkflowResult is what a completed (or checkpointed) run produces,
// whether every step succeeded or not: Success reports the AND of every
// StepResult, and FinalOutput is only meaningful once the run has stopped
// dispatching new steps.
type WorkflowResult struct {
	WorkflowName    string            `json:"workflow_name"`
	RunID           string            `json:"run_id"`
	Success         bool              `json:"success"`
	StepResults     []step.StepResult `json:"step_results"`
	TotalDurationMS int64             `json:"total_duration_ms"`
	FinalOutput     any               `json:"final_output"`
	RollbackErrors  []error           `json:"-"`
}
