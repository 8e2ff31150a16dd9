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

const claimScenario = `name: claim-first
description: The single NEW order is claimed on the first poll
setup:
  - CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT NOT NULL)
  - INSERT INTO orders (id, status) VALUES (4, 'NEW')
trigger:
  select: SELECT id, status FROM orders WHERE status = 'NEW' ORDER BY id
  id_column: id
  update: UPDATE orders SET status = 'CLAIMED' WHERE id = ? AND status = 'NEW'
  interval_seconds: 1
expect:
  kind: claimed
  record:
    id: 4
  polls: 1
`

const wrongScenario = `name: wrong-expectation
description: Expects a claim although the only row is already taken
setup:
  - CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT NOT NULL)
  - INSERT INTO orders (id, status) VALUES (4, 'CLAIMED')
trigger:
  select: SELECT id FROM orders
  id_column: id
  update: UPDATE orders SET status = 'CLAIMED' WHERE id = ? AND status = 'NEW'
  interval_seconds: 1
expect:
  kind: claimed
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	out, err := runCommand(NewTestCommand(&RootOptions{Format: "json"}), t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestTestCommandPassingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "claim-first.yaml", claimScenario)

	out, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ claim-first")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "claim-first.yaml", claimScenario)
	writeScenario(t, dir, "wrong.yaml", wrongScenario)

	out, err := runCommand(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)

	for _, sr := range resp.Data.Scenarios {
		if sr.Name == "wrong-expectation" {
			require.NotEmpty(t, sr.Errors)
			assert.Contains(t, sr.Errors[0], "expected claimed event, got claim_failed")
		}
	}
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: broken\ndescription: d\nunknown_key: 1\n")

	out, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandMissingDescription(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "bare.yaml", strings.Replace(claimScenario, "description: The single NEW order is claimed on the first poll\n", "", 1))

	out, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ bare.yaml")
	assert.Contains(t, out, "description is required")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}

func TestTestCommandGoldenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	scenario := writeScenario(t, dir, "claim-first.yaml", claimScenario)

	out, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), "--update", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ claim-first")

	golden, err := os.ReadFile(goldenFilePath(scenario))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(golden), `{"event":{"kind":"claimed"`))

	_, err = runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	// A stale golden file fails the scenario even though its expectations hold.
	require.NoError(t, os.WriteFile(goldenFilePath(scenario), []byte(`{}`), 0644))
	out, err = runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "claim-first.yaml", claimScenario)
	writeScenario(t, dir, "wrong.yaml", wrongScenario)

	out, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), "--filter", "claim-*", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestFindScenarioFiles(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	writeScenario(t, tmpDir, "test1.yaml", "")
	writeScenario(t, tmpDir, "test2.yml", "")
	writeScenario(t, tmpDir, "ignore.txt", "")
	writeScenario(t, subDir, "sub.yaml", "")

	files, err := findScenarioFiles(tmpDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	_, err = findScenarioFiles(tmpDir, "[")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"/path/to/scenario.yaml", "/path/to/golden/scenario.golden"},
		{"/path/to/scenario.yml", "/path/to/golden/scenario.golden"},
		{"scenarios/test.yaml", "scenarios/golden/test.golden"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, goldenFilePath(tc.input))
	}
}
