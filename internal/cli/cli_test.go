package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/smallbiznis/schemashift/internal/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"up", "down", "status", "verify", "seed", "version"}, names)
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, Version+"\n", out.String())
}

func TestPrintSummaryReportsFailedUnit(t *testing.T) {
	var out bytes.Buffer
	summary := migration.RunSummary{RunID: "42", Direction: migration.DirectionUp, Units: []string{"00000000000001_a"}}
	err := &migration.UnitError{Unit: "00000000000002_b", Direction: migration.DirectionUp, Err: errors.New("duplicate key")}

	printSummary(&out, &options{}, summary, err)

	assert.Contains(t, out.String(), "applied 00000000000001_a")
	assert.Contains(t, out.String(), "failed 00000000000002_b: duplicate key")
}

func TestPrintSummaryJSON(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, &options{jsonOutput: true}, migration.RunSummary{RunID: "7", Direction: migration.DirectionDown}, nil)
	assert.JSONEq(t, `{"run_id":"7","direction":"down","units":null}`, out.String())
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	updated := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, printStatus(&out, []migration.UnitStatus{
		{ID: "00000000000001_a", State: migration.StateApplied, UpdatedAt: &updated, Reversible: true, Known: true},
		{ID: "00000000000002_b", State: migration.StateFailed, Direction: migration.DirectionUp, Error: "boom", Reversible: true, Known: true},
		{ID: "00000000000003_c", State: migration.StatePending, Known: true},
	}))

	text := out.String()
	assert.Contains(t, text, "2024-05-01T09:00:00Z")
	assert.Contains(t, text, "up: boom")
	assert.Contains(t, text, "irreversible")
}
