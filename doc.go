// Package maverick provides a workflow DSL engine for driving AI-agent
// development tasks through a YAML-defined step graph.
//
// A workflow declares typed inputs, an ordered list of steps (python
// actions, agent/generate calls, validation gates, bounded-concurrency
// loops, branches, checkpoints, and sub-workflows), and a set of output
// expressions evaluated once every step completes. Steps and expressions
// use a small `${{ ... }}` templating language to reference prior step
// outputs, declared inputs, and loop iteration state.
//
// # Packages
//
//	schema     - workflow YAML decoding, validation, and discovery
//	expr       - the `${{ ... }}` expression parser and evaluator
//	component  - the action/agent/generator/context-builder registries
//	step       - the per-step-type execution dispatcher
//	engine     - run/resume orchestration, rollback, checkpoints, events
//	checkpoint - atomic on-disk checkpoint persistence
//	validation - the default external validation-stage runner
//
// This package intentionally says nothing about how agents call an LLM,
// which tools they invoke, or how they talk to each other — those are
// supplied by the host application through the component.Agent and
// component.Generator interfaces.
package maverick
