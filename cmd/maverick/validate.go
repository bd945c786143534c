package main

import (
	"fmt"

	"github.com/maverickhq/maverick/schema"
	"github.com/maverickhq/maverick/validation"
)

// ValidateCmd validates a single workflow file without running it: decode
// errors, duplicate step names, and unknown stage-profile references are all
// reported via schema's error types.
type ValidateCmd struct {
	File string `arg:"" help:"Path to a workflow YAML file." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	opts := schema.LoadOptions{}
	if cli.ValidationCfg != "" {
		cfg, err := validation.LoadConfig(cli.ValidationCfg)
		if err != nil {
			return err
		}
		opts.KnownStageProfiles = cfg.ProfileKeys()
	}

	wf, err := schema.Load(c.File, opts)
	if err != nil {
		fmt.Printf("%s: invalid: %v\n", c.File, err)
		return err
	}
	fmt.Printf("%s: valid (%s, %d step(s), %d input(s))\n", c.File, wf.Name, len(wf.Steps), len(wf.Inputs))
	return nil
}
