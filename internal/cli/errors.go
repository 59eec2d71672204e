package cli

import (
	"encoding/json"
	"errors"
	"fmt"
)

// outputError normalizes error emission across commands, respecting
// json vs table formats so collaborator tooling always gets
// machine-readable failures.
func outputError(globals *Globals, code, message string) error {
	if globals != nil && globals.Format == "json" {
		line, _ := json.Marshal(map[string]string{
			"type":    "error",
			"code":    code,
			"message": message,
		})
		fmt.Fprintln(globals.Stdout, string(line))
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s\n", code, message)
	}
	return errors.New(message)
}
