package main

import (
	"fmt"

	"github.com/maverickhq/maverick/schema"
)

// ListCmd lists every workflow discoverable across the project/user/builtin
// roots, annotated with which root it came from.
type ListCmd struct{}

func (c *ListCmd) Run(cli *CLI) error {
	opts := schema.LoadOptions{}
	disc := discoverer(cli, opts)
	found, err := disc.List()
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("no workflows found")
		return nil
	}
	for _, dw := range found {
		fmt.Printf("%-30s %-8s %s\n", dw.File.Name, dw.Source, dw.File.Path)
	}
	return nil
}
