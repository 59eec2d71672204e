package cli

import (
	"encoding/json"
	"fmt"
	"time"
)

// CleanupCmd deletes EXPIRED/CLOSED sessions whose last activity is
// older than the maximum age. Live sessions are never touched
// regardless of age.
type CleanupCmd struct {
	MaxAgeHours int `help:"Maximum age in hours for terminal session records" default:"24"`
}

// Run executes the cleanup command
func (c *CleanupCmd) Run(globals *Globals) error {
	if c.MaxAgeHours < 0 {
		return outputError(globals, "INVALID_MAX_AGE", fmt.Sprintf("max age must not be negative: %d", c.MaxAgeHours))
	}
	mgr, err := newManager(globals)
	if err != nil {
		return outputError(globals, "STORE_OPEN_FAILED", err.Error())
	}
	deleted, err := mgr.Cleanup(time.Duration(c.MaxAgeHours) * time.Hour)
	if err != nil {
		return outputError(globals, "CLEANUP_FAILED", err.Error())
	}

	if globals.Format == "json" {
		line, _ := json.Marshal(map[string]any{
			"type":          "cleanup",
			"deleted":       deleted,
			"max_age_hours": c.MaxAgeHours,
		})
		fmt.Fprintln(globals.Stdout, string(line))
		return nil
	}
	if !globals.Quiet {
		fmt.Fprintf(globals.Stdout, "Deleted %d stale session(s) older than %dh.\n", deleted, c.MaxAgeHours)
	}
	return nil
}
