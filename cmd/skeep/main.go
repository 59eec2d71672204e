package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/mvelimir/skeep/internal/cli"
	"github.com/mvelimir/skeep/internal/config"
)

const quickStart = `skeep - durable session keeping for human-in-the-loop AI feedback

Quick start:
  skeep list                            List stored sessions
  skeep show SESSION_ID                 Show a session record and payload
  skeep cleanup --max-age-hours 24      Prune expired/closed sessions

For help:
  skeep --help                          All commands and flags
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Apply config defaults before parsing
	// These will be overridden by CLI flags if specified
	vars := kong.Vars{
		"config_format":    cfg.Format,
		"config_store_dir": cfg.StoreDir,
	}

	ctx := kong.Parse(&c,
		kong.Name("skeep"),
		kong.Description("skeep: keep feedback sessions alive across unreliable transports"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	globals := cli.NewGlobals(&c, cfg)
	err = ctx.Run(globals)
	if err != nil {
		os.Exit(1)
	}
}
