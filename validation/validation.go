// Package validation runs the external validation stages (lint, type-check,
// tests, and so on) a `validate` step drives. This package is the default,
// swappable implementation of the collaborator spec.md describes only as an
// interface; it shells out via os/exec the way a CI runner would.
package validation

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"gopkg.in/yaml.v3"
)

// StageResult is one stage's outcome.
type StageResult struct {
	Stage  string
	Passed bool
	Output string
	Err    error
}

// Result is the aggregate outcome of running a set of stages.
type Result struct {
	Passed bool
	Stages []StageResult
}

// Stage names one external command to run for a profile key.
type Stage struct {
	Name    string
	Command []string
	Timeout time.Duration
}

// Config maps a profile's config key to its ordered list of stages. The
// engine resolves a `validate` step's `stages` selector (either an explicit
// list of stage names, or a profile config key) against this table.
type Config struct {
	Profiles map[string][]Stage
}

// ProfileKeys returns the set of declared profile keys, for use as
// schema.LoadOptions.KnownStageProfiles so a workflow's validate-step
// config-key references are checked at load time.
func (c Config) ProfileKeys() map[string]bool {
	out := make(map[string]bool, len(c.Profiles))
	for k := range c.Profiles {
		out[k] = true
	}
	return out
}

// yamlStage and yamlConfig mirror Config/Stage with yaml tags and a string
// timeout, matching the document shape `validate.yaml` authors write
// (`timeout: 30s` rather than a raw duration integer).
type yamlStage struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Timeout string   `yaml:"timeout"`
}

type yamlConfig struct {
	Profiles map[string][]yamlStage `yaml:"profiles"`
}

// LoadConfig reads a validation profile document (stage name -> ordered
// command list, grouped under named profiles) from path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("validation: reading %s: %w", path, err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (Config, error) {
	var doc yamlConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("validation: invalid YAML: %w", err)
	}

	cfg := Config{Profiles: make(map[string][]Stage, len(doc.Profiles))}
	for profile, stages := range doc.Profiles {
		converted := make([]Stage, 0, len(stages))
		for _, s := range stages {
			stage := Stage{Name: s.Name, Command: s.Command}
			if s.Timeout != "" {
				d, err := time.ParseDuration(s.Timeout)
				if err != nil {
					return Config{}, fmt.Errorf("validation: profile %q stage %q: invalid timeout %q: %w", profile, s.Name, s.Timeout, err)
				}
				stage.Timeout = d
			}
			converted = append(converted, stage)
		}
		cfg.Profiles[profile] = converted
	}
	return cfg, nil
}

// StageRunner executes one Stage and reports its outcome. The default
// implementation shells out; tests and alternate hosts can substitute their
// own runner.
type StageRunner interface {
	RunStage(ctx context.Context, stage Stage) StageResult
}

// Runner is the default StageRunner, executing each stage as a subprocess
// bounded by stage.Timeout.
type Runner struct {
	Exec func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewRunner creates a Runner that shells out via os/exec.
func NewRunner() *Runner {
	return &Runner{Exec: execCommand}
}

// RunStage runs a single stage's command under a context bounded by its
// timeout (falling back to the parent context's deadline if Timeout is zero).
func (r *Runner) RunStage(ctx context.Context, stage Stage) StageResult {
	if len(stage.Command) == 0 {
		return StageResult{Stage: stage.Name, Passed: false, Err: fmt.Errorf("validation: stage %q has no command", stage.Name)}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if stage.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	out, err := r.Exec(runCtx, stage.Command[0], stage.Command[1:]...)
	return StageResult{
		Stage:  stage.Name,
		Passed: err == nil,
		Output: string(out),
		Err:    err,
	}
}

// Run executes every stage named by profileKey in order, stopping at the
// first failure and reporting every stage attempted so far.
func Run(ctx context.Context, cfg Config, runner StageRunner, profileKey string) (Result, error) {
	stages, ok := cfg.Profiles[profileKey]
	if !ok {
		return Result{}, fmt.Errorf("validation: unknown stage profile %q", profileKey)
	}
	return RunStages(ctx, runner, stages), nil
}

// RunStages executes an explicit, pre-resolved stage list in order, stopping
// at the first failure.
func RunStages(ctx context.Context, runner StageRunner, stages []Stage) Result {
	result := Result{Passed: true}
	for _, stage := range stages {
		sr := runner.RunStage(ctx, stage)
		result.Stages = append(result.Stages, sr)
		if !sr.Passed {
			result.Passed = false
			break
		}
	}
	return result
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}
