package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMissingDatabaseFlag(t *testing.T) {
	_, defs := ordersFixture(t)

	_, err := runCommand(NewRunCommand(&RootOptions{Format: "text"}), defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestRunNonExistentDefinitions(t *testing.T) {
	hostDB := filepath.Join(t.TempDir(), "host.db")

	_, err := runCommand(NewRunCommand(&RootOptions{Format: "text"}), "--db", hostDB, "/nonexistent/triggers")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "E005")
}

func TestRunNothingSubmitted(t *testing.T) {
	_, defs := ordersFixture(t)
	hostDB := filepath.Join(t.TempDir(), "host.db")

	out, err := runCommand(NewRunCommand(&RootOptions{Format: "text"}),
		"--db", hostDB, "--scan-interval", "10ms", defs)
	require.NoError(t, err)
	assert.Contains(t, out, "events     0")
}

func TestRunSubmitAndClaim(t *testing.T) {
	db, defs := ordersFixture(t, 11)
	hostDB := filepath.Join(t.TempDir(), "host.db")

	out, err := runCommand(NewRunCommand(&RootOptions{Format: "json"}),
		"--db", hostDB, "--scan-interval", "10ms", "--submit", defs)
	require.NoError(t, err)

	var resp struct {
		Data RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]int{"done": 1}, resp.Data.Statuses)
	assert.Equal(t, 1, resp.Data.Events)
	assert.Equal(t, "claimed", db.Text(t, `SELECT status FROM orders WHERE id = 11`))

	out, err = runCommand(NewEventsCommand(&RootOptions{Format: "text"}), "--db", hostDB)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "\tclaimed\t")
	assert.Contains(t, lines[0], `"id":11`)
}

func TestRunFailedTrigger(t *testing.T) {
	hostDB := filepath.Join(t.TempDir(), "host.db")
	defs := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(defs, []byte(`trigger:
  claim-ledger:
    connection: ledger
    select: SELECT id FROM entries
    id_column: id
    update: UPDATE entries SET taken = 1 WHERE id = ? AND taken = 0
    interval_seconds: 0
`), 0644))

	out, err := runCommand(NewRunCommand(&RootOptions{Format: "text"}),
		"--db", hostDB, "--scan-interval", "10ms", "--max-retries", "0", "--submit", defs)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 trigger(s) failed")
	assert.Contains(t, out, "failed     1")
}
