package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mvelimir/skeep/internal/session"
)

// ShowCmd prints the last durably committed record for one session,
// payload included, so a collaborator can restore the interaction.
type ShowCmd struct {
	SessionID string `arg:"" help:"Session id to show"`
}

// Run executes the show command
func (c *ShowCmd) Run(globals *Globals) error {
	mgr, err := newManager(globals)
	if err != nil {
		return outputError(globals, "STORE_OPEN_FAILED", err.Error())
	}
	rec, err := mgr.Get(c.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return outputError(globals, "NOT_FOUND", err.Error())
		case errors.Is(err, session.ErrCorruptRecord):
			return outputError(globals, "CORRUPT_RECORD", err.Error())
		default:
			return outputError(globals, "READ_FAILED", err.Error())
		}
	}

	if globals.Format == "json" {
		line, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		fmt.Fprintln(globals.Stdout, string(line))
		return nil
	}

	out := globals.Stdout
	fmt.Fprintf(out, "Session:        %s\n", rec.SessionID)
	fmt.Fprintf(out, "State:          %s\n", rec.State)
	fmt.Fprintf(out, "Created:        %s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Last activity:  %s\n", rec.LastActivityAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Last heartbeat: %s\n", rec.LastHeartbeatAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "Attempts:       %d\n", rec.ReconnectAttempts)
	switch {
	case rec.State == session.StateDisconnected && rec.GraceDeadline != nil:
		fmt.Fprintf(out, "Reattachable:   until %s\n", rec.GraceDeadline.UTC().Format(time.RFC3339))
	case rec.State.Terminal():
		fmt.Fprintf(out, "Reattachable:   no (%s)\n", session.UnavailableReason(rec.State))
	default:
		fmt.Fprintln(out, "Reattachable:   attached")
	}
	if len(rec.Payload) > 0 {
		fmt.Fprintf(out, "Payload:        %s\n", string(rec.Payload))
	}
	return nil
}
