package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/maverickhq/maverick/checkpoint"
	"github.com/maverickhq/maverick/component"
	"github.com/maverickhq/maverick/engine"
	"github.com/maverickhq/maverick/internal/env"
	"github.com/maverickhq/maverick/schema"
	"github.com/maverickhq/maverick/validation"
)

// loadValidationConfig reads the CLI's validation profile document, if one
// was given, and wires its profile keys into opts so step-level config-key
// references are checked at workflow load time.
func loadValidationConfig(path string, opts *schema.LoadOptions) (validation.Config, error) {
	if path == "" {
		// Leave KnownStageProfiles nil: with no profile document configured,
		// config-key references are checked at validate-step runtime instead
		// (an "unknown stage profile" step failure) rather than rejected at
		// load time.
		return validation.Config{}, nil
	}
	cfg, err := validation.LoadConfig(path)
	if err != nil {
		return validation.Config{}, err
	}
	opts.KnownStageProfiles = cfg.ProfileKeys()
	return cfg, nil
}

// discoverer builds a schema.Discoverer over the three precedence-ordered
// roots a CLI invocation names.
func discoverer(cli *CLI, opts schema.LoadOptions) *schema.Discoverer {
	return &schema.Discoverer{
		ProjectDir: cli.ProjectDir,
		UserDir:    cli.UserDir,
		BuiltinDir: cli.BuiltinDir,
		Opts:       opts,
	}
}

// buildEngine wires a Registry (populated with the builtin local actions),
// the workflow Discoverer, a Checkpoint Store, and the ValidationConfig/
// Runner pair into an Engine ready to run or resume a workflow.
func buildEngine(cli *CLI) (*engine.Engine, error) {
	opts := schema.LoadOptions{}
	valCfg, err := loadValidationConfig(cli.ValidationCfg, &opts)
	if err != nil {
		return nil, fmt.Errorf("maverick: loading validation config: %w", err)
	}

	reg := component.New()
	registerBuiltinActions(reg)

	store, err := checkpoint.NewStore(cli.CheckpointDir)
	if err != nil {
		return nil, fmt.Errorf("maverick: opening checkpoint store: %w", err)
	}

	disc := discoverer(cli, opts)
	eng := engine.New(reg, disc, store, valCfg, validation.NewRunner(), logEvent)
	return eng, nil
}

// registerBuiltinActions registers the small set of python actions the CLI
// itself can satisfy without a host application: environment expansion and
// shell passthrough are the only step-level collaborators this module owns
// outright (everything LLM/agent-shaped is supplied by an embedder, not this
// CLI).
func registerBuiltinActions(reg *component.Registry) {
	_ = reg.RegisterAction("expand_env", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) == 0 {
			return "", nil
		}
		s, _ := args[0].(string)
		return env.Expand(s), nil
	})
	_ = reg.RegisterAction("shell", func(ctx context.Context, args []any, _ map[string]any) (any, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("shell: requires at least a command argument")
		}
		parts := make([]string, 0, len(args))
		for _, a := range args {
			s, _ := a.(string)
			parts = append(parts, s)
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("shell: %s: %w: %s", parts[0], err, out.String())
		}
		return out.String(), nil
	})
}

func logEvent(ev engine.Event) {
	fields := []any{"run_id", ev.RunID}
	if ev.StepName != "" {
		fields = append(fields, "step", ev.StepName)
	}
	slog.Debug(string(ev.Type), fields...)
}
