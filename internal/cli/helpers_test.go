package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const registryCSV = "external_id,full_name,phone,status\n" +
	"E1,Ivanov Ivan,+7 999 123-45-67,active\n" +
	"E2,Petrova Maria,+79992345678,enrolled\n"

const acsPipeline = `package roster

pair: acs: {
	source:    {path: "registry.csv"}
	directory: {kind: "file", path: "acs.json"}
}
`

// workspace is a temp directory holding a pipeline, its registry and the
// audit database path.
type workspace struct {
	dir      string
	pipeline string
	db       string
}

func newWorkspace(t *testing.T, pipeline, registry string) *workspace {
	t.Helper()
	dir := t.TempDir()
	ws := &workspace{
		dir:      dir,
		pipeline: filepath.Join(dir, "roster.cue"),
		db:       filepath.Join(dir, "roster.db"),
	}
	require.NoError(t, os.WriteFile(ws.pipeline, []byte(pipeline), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "registry.csv"), []byte(registry), 0o644))
	return ws
}

func (ws *workspace) opts(format string) *RootOptions {
	return &RootOptions{Format: format, DB: ws.db, Pipeline: ws.pipeline}
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
