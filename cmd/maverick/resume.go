package main

import "context"

// ResumeCmd resumes a workflow from its latest checkpoint.
type ResumeCmd struct {
	Workflow string   `arg:"" help:"Workflow name to resume."`
	Input    []string `short:"i" help:"Input value as name=value, repeatable (must match the values used at checkpoint time)." placeholder:"NAME=VALUE"`
}

func (c *ResumeCmd) Run(cli *CLI) error {
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

	result, err := eng.Resume(context.Background(), wf, inputs)
	if err != nil {
		return err
	}
	return printRunResult(result)
}
