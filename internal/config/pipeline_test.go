package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roster/internal/match"
	"github.com/roach88/roster/internal/merge"
	"github.com/roach88/roster/internal/normalize"
)

const twoPairs = `
package roster

pair: chat: {
	source:    {path: "registry.csv"}
	directory: {kind: "memory"}
}

pair: acs: {
	source: {
		path:     "registry.csv"
		format:   "csv"
		encoding: "cp1251"
		columns: {"Табельный №": "external_id"}
	}
	directory: {kind: "file", path: "acs.json", name: "acs-main", breaker: true}
	region:          "us"
	active_statuses: ["active", "on leave"]
	fields: [
		{field: "phone", kind: "phone"},
		{field: "pin", kind: "secret"},
		{field: "note"},
	]
	tie_policy:      "review"
	threshold:       0.9
	suspend_orphans: true
	rate: {per_second: 5, burst: 2, jitter: "200ms", seed: 42}
	ledger_window: "720h"
}
`

func TestCompileString(t *testing.T) {
	p, errs := CompileString(twoPairs, "roster.cue")
	require.Empty(t, errs)
	require.Equal(t, []string{"acs", "chat"}, p.Names(), "pairs sorted by name")

	acs, ok := p.Pair("acs")
	require.True(t, ok)
	assert.Equal(t, SourceConfig{
		Path:     "registry.csv",
		Format:   "csv",
		Encoding: "cp1251",
		Columns:  map[string]string{"Табельный №": "external_id"},
	}, acs.Source)
	assert.Equal(t, DirectoryConfig{Name: "acs-main", Kind: DirectoryFile, Path: "acs.json", Breaker: true}, acs.Directory)
	assert.Equal(t, "US", acs.Region)
	assert.Equal(t, []string{"active", "on leave"}, acs.ActiveStatuses)
	assert.Equal(t, []merge.FieldPolicy{
		{Field: "phone", Kind: merge.KindPhone},
		{Field: "pin", Kind: merge.KindSecret},
		{Field: "note", Kind: merge.KindPlain},
	}, acs.Fields)
	assert.Equal(t, match.TieReview, acs.TiePolicy)
	assert.Equal(t, 0.9, acs.Threshold)
	assert.True(t, acs.SuspendOrphans)
	assert.Equal(t, RateConfig{PerSecond: 5, Burst: 2, Jitter: 200 * time.Millisecond, Seed: 42}, acs.Rate)
	assert.Equal(t, 720*time.Hour, acs.LedgerWindow)
}

func TestCompileDefaults(t *testing.T) {
	p, errs := CompileString(twoPairs, "roster.cue")
	require.Empty(t, errs)

	chat, ok := p.Pair("chat")
	require.True(t, ok)
	assert.Equal(t, "chat", chat.Directory.Name, "target name defaults to pair name")
	assert.Equal(t, normalize.DefaultRegion, chat.Region)
	assert.Equal(t, merge.DefaultPolicies, chat.Fields)
	assert.Equal(t, match.TieFirst, chat.TiePolicy)
	assert.Equal(t, match.DefaultThreshold, chat.Threshold)
	assert.Equal(t, RateConfig{Burst: 1}, chat.Rate)
	assert.False(t, chat.SuspendOrphans)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{
			name:  "missing source",
			src:   `pair: a: directory: kind: "memory"`,
			field: "source",
			msg:   "source is required",
		},
		{
			name:  "missing directory path",
			src:   `pair: a: {source: path: "x.csv", directory: kind: "file"}`,
			field: "directory.path",
			msg:   "file directory needs a path",
		},
		{
			name:  "unknown directory kind",
			src:   `pair: a: {source: path: "x.csv", directory: kind: "ldap"}`,
			field: "kind",
			msg:   `unknown directory kind "ldap"`,
		},
		{
			name:  "bad tie policy",
			src:   `pair: a: {source: path: "x.csv", directory: kind: "memory", tie_policy: "coin"}`,
			field: "tie_policy",
			msg:   `must be "first" or "review", got "coin"`,
		},
		{
			name:  "threshold out of range",
			src:   `pair: a: {source: path: "x.csv", directory: kind: "memory", threshold: 1.5}`,
			field: "threshold",
			msg:   "must be in (0, 1]",
		},
		{
			name:  "duplicate field",
			src:   `pair: a: {source: path: "x.csv", directory: kind: "memory", fields: [{field: "phone"}, {field: "phone"}]}`,
			field: "fields.field",
			msg:   `duplicate field "phone"`,
		},
		{
			name:  "unknown field kind",
			src:   `pair: a: {source: path: "x.csv", directory: kind: "memory", fields: [{field: "phone", kind: "fax"}]}`,
			field: "kind",
			msg:   `unknown field kind "fax"`,
		},
		{
			name:  "bad jitter",
			src:   `pair: a: {source: path: "x.csv", directory: kind: "memory", rate: jitter: "soon"}`,
			field: "jitter",
			msg:   `invalid duration "soon"`,
		},
		{
			name:  "no pairs",
			src:   `other: 1`,
			field: "pair",
			msg:   "no pairs defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := CompileString(tt.src, "bad.cue")
			require.Len(t, errs, 1)

			var ce *CompileError
			require.True(t, errors.As(errs[0], &ce), "got %T", errs[0])
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestCompileErrorHasPosition(t *testing.T) {
	src := "pair: a: {\n\tsource: path: \"x.csv\"\n\tdirectory: kind: \"memory\"\n\ttie_policy: \"coin\"\n}\n"
	_, errs := CompileString(src, "pos.cue")
	require.Len(t, errs, 1)

	var ce *CompileError
	require.True(t, errors.As(errs[0], &ce))
	require.True(t, ce.Pos.IsValid())
	assert.Equal(t, 4, ce.Pos.Line())
	assert.Contains(t, ce.Error(), "pos.cue:4:")
}

func TestCompileCollectsAllPairErrors(t *testing.T) {
	src := `
pair: good: {source: path: "x.csv", directory: kind: "memory"}
pair: bad1: {directory: kind: "memory"}
pair: bad2: {source: path: "x.csv"}
`
	p, errs := CompileString(src, "mixed.cue")
	assert.Len(t, errs, 2)
	assert.Equal(t, []string{"good"}, p.Names())
}

func TestCompileTypeError(t *testing.T) {
	_, errs := CompileString(`pair: a: {source: path: 12, directory: kind: "memory"}`, "type.cue")
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
}

func TestLoadFileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.cue")
	require.NoError(t, os.WriteFile(path, []byte(twoPairs), 0o644))

	p, errs := Load(path)
	require.Empty(t, errs)
	assert.Equal(t, []string{"acs", "chat"}, p.Names())

	p, errs = Load(dir)
	require.Empty(t, errs)
	assert.Len(t, p.Pairs, 2)
}

func TestLoadMissing(t *testing.T) {
	_, errs := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "pipeline not found")
}
