package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func TestTestCommandRunsScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ create_new_active")
	assert.Contains(t, out, "✓ lifecycle")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), scenariosDir, "--filter", "update_*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "update_phone", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(goldenFilePath(golden, "update_phone"), []byte("{}"), 0o644))

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}),
		scenariosDir, "--filter", "update_phone", "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ update_phone")
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	golden := filepath.Join(t.TempDir(), "golden")

	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}),
		scenariosDir, "--filter", "create_*", "--golden", golden, "--update")
	require.NoError(t, err)

	got, err := os.ReadFile(goldenFilePath(golden, "create_new_active"))
	require.NoError(t, err)
	want, err := os.ReadFile(goldenFilePath(defaultGoldenDir(scenariosDir), "create_new_active"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`name: wrong
description: expects a create that never happens
canonical:
  - external_id: E1
    full_name: Ivanov Ivan
    status: active
assertions:
  - type: plan_count
    kind: create
    count: 1
`), 0o644))

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandMissingDir(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFindScenarioFiles(t *testing.T) {
	files, err := findScenarioFiles(scenariosDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 5)

	files, err = findScenarioFiles(scenariosDir, "*_rerun")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "idempotent_rerun.yaml", filepath.Base(files[0]))

	_, err = findScenarioFiles(scenariosDir, "[")
	assert.Error(t, err)
}

func TestGoldenPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("testdata", "golden"), defaultGoldenDir("testdata/scenarios/"))
	assert.Equal(t, filepath.Join("g", "lifecycle.golden"), goldenFilePath("g", "lifecycle"))
}
