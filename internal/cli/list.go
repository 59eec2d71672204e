package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/mvelimir/skeep/internal/manager"
	"github.com/mvelimir/skeep/internal/session"
)

// ListCmd lists every stored session with its state and timestamps.
type ListCmd struct{}

// newManager builds an offline manager over the configured store for
// administrative commands. No heartbeat or cleanup task is started.
func newManager(globals *Globals) (*manager.Manager, error) {
	cfg := *globals.Config
	cfg.StoreDir = globals.StoreDir
	return manager.New(&cfg, nil, globals.Logger)
}

// Run executes the list command
func (c *ListCmd) Run(globals *Globals) error {
	mgr, err := newManager(globals)
	if err != nil {
		return outputError(globals, "STORE_OPEN_FAILED", err.Error())
	}
	summaries, err := mgr.List()
	if err != nil {
		return outputError(globals, "LIST_FAILED", err.Error())
	}

	if globals.Format == "json" {
		for _, s := range summaries {
			line, err := json.Marshal(struct {
				Type string `json:"type"`
				session.Summary
			}{Type: "session", Summary: s})
			if err != nil {
				return err
			}
			fmt.Fprintln(globals.Stdout, string(line))
		}
		return nil
	}

	if len(summaries) == 0 {
		if !globals.Quiet {
			fmt.Fprintln(globals.Stdout, "No sessions stored.")
		}
		return nil
	}

	table := tablewriter.NewTable(globals.Stdout)
	table.Header("SESSION ID", "STATE", "CREATED", "LAST ACTIVITY")
	for _, s := range summaries {
		table.Append(
			s.SessionID,
			s.State.String(),
			s.CreatedAt.UTC().Format(time.RFC3339),
			s.LastActivityAt.UTC().Format(time.RFC3339),
		)
	}
	return table.Render()
}
