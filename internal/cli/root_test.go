package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "roster", cmd.Use)
	assert.Contains(t, cmd.Long, "canonical registry")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"validate"}, {"plan"}, {"sync"}, {"test"},
		{"report", "list"}, {"report", "show"}, {"report", "failures"}, {"report", "prune"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for name, def := range map[string]string{
		"db":           "roster.db",
		"pipeline":     "roster.cue",
		"log-format":   "text",
		"rate":         "0",
		"metrics-file": "",
	} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, def, f.DefValue, name)
	}
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	ws := newWorkspace(t, acsPipeline, registryCSV)

	_, err := execute(t, NewRootCommand(), "validate", ws.pipeline, "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootReadsEnvironment(t *testing.T) {
	ws := newWorkspace(t, acsPipeline, registryCSV)
	t.Setenv("ROSTER_PIPELINE", ws.pipeline)
	t.Setenv("ROSTER_FORMAT", "json")

	out, err := execute(t, NewRootCommand(), "validate")
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)
}

func TestRootFlagBeatsEnvironment(t *testing.T) {
	ws := newWorkspace(t, acsPipeline, registryCSV)
	t.Setenv("ROSTER_FORMAT", "json")

	out, err := execute(t, NewRootCommand(), "validate", ws.pipeline, "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Pipeline valid: 1 pair(s)")
}
