// Command maverick is the CLI front door for the workflow DSL engine: it
// discovers workflow YAML files, wires the component registry an embedding
// application has populated in-process (here, a minimal built-in set of
// actions for local use), and drives the engine's run/resume/validate/list
// operations.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/maverickhq/maverick/internal/env"
	"github.com/maverickhq/maverick/internal/logging"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run a workflow from the start."`
	Resume   ResumeCmd   `cmd:"" help:"Resume a workflow from its last checkpoint."`
	Validate ValidateCmd `cmd:"" help:"Validate a workflow file without running it."`
	List     ListCmd     `cmd:"" help:"List workflows discoverable across project/user/builtin roots."`

	ProjectDir string `help:"Project workflow directory (highest precedence)." default:"./workflows" type:"path"`
	UserDir    string `help:"User workflow directory." type:"path"`
	BuiltinDir string `help:"Builtin workflow directory (lowest precedence)." type:"path"`

	CheckpointDir string `help:"Directory checkpoints are persisted under." default:"./.maverick/checkpoints" type:"path"`
	ValidationCfg string `name:"validation-config" help:"Path to a validation-stage profile YAML document." type:"path"`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

func main() {
	_ = env.LoadDotEnv()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("maverick"),
		kong.Description("Maverick workflow DSL engine"),
		kong.UsageOnError(),
	)

	level, err := logging.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "maverick: %v\n", err)
		os.Exit(1)
	}
	logging.Init(level, os.Stderr, cli.LogFormat)

	if err := ctx.Run(&cli); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
