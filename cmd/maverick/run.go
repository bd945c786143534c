package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/maverickhq/maverick/engine"
)

// RunCmd runs a named workflow from the start.
type RunCmd struct {
	Workflow string   `arg:"" help:"Workflow name to run."`
	Input    []string `short:"i" help:"Input value as name=value, repeatable." placeholder:"NAME=VALUE"`
}

func (c *RunCmd) Run(cli *CLI) error {
	eng, err := buildEngine(cli)
	if err != nil {
		return err
	}
	wf, _, err := eng.Discoverer.Discover(c.Workflow)
	if err != nil {
		return err
	}

	inputs, err := parseInputs(c.Input)
	if err != nil {
		return err
	}

	result, err := eng.Run(context.Background(), wf, inputs)
	if err != nil {
		return err
	}
	return printRunResult(result)
}

// parseInputs decodes repeated "name=value" flags, JSON-decoding the value
// when it parses as JSON (so `-i count=3` becomes a float64 number, which
// the engine coerces to a declared input's type, and `-i tags=["a"]` becomes
// a list) and falling back to a raw string otherwise.
func parseInputs(raw []string) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		name, value, ok := splitKV(kv)
		if !ok {
			return nil, fmt.Errorf("maverick: invalid input %q, expected name=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			out[name] = decoded
		} else {
			out[name] = value
		}
	}
	return out, nil
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// printRunResult renders a run's full WorkflowResult as indented JSON to
// stdout.
func printRunResult(result *engine.WorkflowResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
