// Command wagf is the CLI for the Water Agent Governance Framework: it
// loads skill_registry.yaml and agent_types.yaml, drives the Experiment
// Runner over a simulated population, and writes the audit trail to an
// output directory: a kong command struct per verb, a shared set of
// global flags, and a pre-run logger initialization.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/WenyuChiou/WAGF-sub002/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run an experiment: years x agents over a simulated population."`
	Validate ValidateCmd `cmd:"" help:"Validate skill_registry.yaml and agent_types.yaml."`
	Schema   SchemaCmd   `cmd:"" help:"Generate JSON Schemas for the agent_types.yaml and skill_registry.yaml document shapes."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("wagf"),
		kong.Description("Water Agent Governance Framework - skill-based agent decision runner"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --log-level: %v\n", err)
		os.Exit(1)
	}
	out := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open --log-file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		out = f
	}
	logger.Init(level, out, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
