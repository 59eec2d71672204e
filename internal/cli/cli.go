// Package cli implements the administrative surface consumed by
// operators and collaborator tooling: list, show (restore) and cleanup
// over the durable session store.
package cli

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/mvelimir/skeep/internal/config"
)

// CLI is the root kong command tree.
type CLI struct {
	Format   string `help:"Output format (table, json, auto)" enum:"table,json,auto" default:"${config_format}"`
	Quiet    bool   `short:"q" help:"Suppress informational output"`
	Verbose  bool   `short:"v" help:"Enable verbose debug logging"`
	StoreDir string `help:"Session store directory (default: user cache dir)" default:"${config_store_dir}"`

	List    ListCmd    `cmd:"" help:"List stored sessions"`
	Show    ShowCmd    `cmd:"" help:"Show a stored session record, including its payload"`
	Cleanup CleanupCmd `cmd:"" help:"Delete expired/closed sessions older than a maximum age"`
}

// Globals carries resolved settings and IO into every command.
type Globals struct {
	Format   string
	Quiet    bool
	Verbose  bool
	StoreDir string
	Config   *config.Config
	Logger   *zap.Logger
	Stdout   io.Writer
	Stderr   io.Writer
}

// NewGlobals resolves CLI flags against loaded configuration. The
// "auto" format picks a table on a terminal and JSON lines otherwise,
// so collaborator tooling always gets machine-readable output.
func NewGlobals(c *CLI, cfg *config.Config) *Globals {
	g := &Globals{
		Format:   c.Format,
		Quiet:    c.Quiet || cfg.Quiet,
		Verbose:  c.Verbose || cfg.Verbose,
		StoreDir: c.StoreDir,
		Config:   cfg,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
	if g.StoreDir == "" {
		g.StoreDir = cfg.StoreDir
	}
	if g.Format == "" || g.Format == "auto" {
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			g.Format = "table"
		} else {
			g.Format = "json"
		}
	}
	g.Logger = newLogger(g)
	return g
}
