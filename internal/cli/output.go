package cli

import (
	"encoding/json"
	"io"

	"github.com/fatih/color"
	"github.com/smallbiznis/schemashift/internal/migration"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func colorState(state migration.State) string {
	switch state {
	case migration.StateApplied:
		return green(string(state))
	case migration.StateFailed:
		return red(string(state))
	case migration.StateReverted:
		return yellow(string(state))
	default:
		return faint(string(state))
	}
}
