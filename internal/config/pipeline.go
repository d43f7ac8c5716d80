// Package config compiles pipeline definitions written in CUE and binds
// runtime settings from flags and the environment.
//
// A pipeline file declares one or more pairs:
//
//	pair: acs: {
//		source:    {path: "registry.csv"}
//		directory: {kind: "file", path: "acs.json"}
//		region:    "RU"
//		fields: [{field: "phone", kind: "phone"}]
//		tie_policy: "review"
//		rate: {per_second: 5, burst: 1, jitter: "200ms"}
//	}
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/roster/internal/classify"
	"github.com/roach88/roster/internal/match"
	"github.com/roach88/roster/internal/merge"
	"github.com/roach88/roster/internal/normalize"
)

// Directory kinds.
const (
	DirectoryFile   = "file"
	DirectoryMemory = "memory"
)

// Pipeline is a compiled set of pairs, sorted by name.
type Pipeline struct {
	Pairs []Pair
}

// Pair returns the pair called name.
func (p *Pipeline) Pair(name string) (Pair, bool) {
	for _, pr := range p.Pairs {
		if pr.Name == name {
			return pr, true
		}
	}
	return Pair{}, false
}

// Names returns the pair names in order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.Pairs))
	for i, pr := range p.Pairs {
		names[i] = pr.Name
	}
	return names
}

// Pair is one canonical source paired with one target directory.
type Pair struct {
	Name           string
	Source         SourceConfig
	Directory      DirectoryConfig
	Region         string
	ActiveStatuses []string
	Fields         []merge.FieldPolicy
	TiePolicy      match.TiePolicy
	Threshold      float64
	SuspendOrphans bool
	Rate           RateConfig
	LedgerWindow   time.Duration
}

// SourceConfig locates the canonical extract.
type SourceConfig struct {
	Path     string
	Format   string
	Encoding string
	Columns  map[string]string
}

// DirectoryConfig locates the target directory.
type DirectoryConfig struct {
	// Name is the target name used in idempotency keys. Defaults to the
	// pair name.
	Name    string
	Kind    string
	Path    string
	Breaker bool
}

// RateConfig paces calls to the directory. PerSecond of zero means
// unlimited.
type RateConfig struct {
	PerSecond float64
	Burst     int
	Jitter    time.Duration
	Seed      int64
}

// Load compiles every .cue file in dir (or the single file at path) into a
// Pipeline. All pair errors are collected; the Pipeline holds the pairs
// that compiled.
func Load(path string) (*Pipeline, []error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, []error{&CompileError{Field: "path", Message: fmt.Sprintf("pipeline not found: %v", err)}}
	}

	dir, args := path, []string{"."}
	if !info.IsDir() {
		dir, args = filepath.Dir(path), []string{filepath.Base(path)}
	}

	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&CompileError{Field: "load", Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{formatCUEError("load", inst.Err)}
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	return Compile(v)
}

// CompileString compiles CUE source. filename is used in error positions.
func CompileString(src, filename string) (*Pipeline, []error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// Compile turns a built CUE value into a Pipeline.
func Compile(v cue.Value) (*Pipeline, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError("cue", err)}
	}

	pairs := v.LookupPath(cue.ParsePath("pair"))
	if !pairs.Exists() {
		return nil, []error{&CompileError{Field: "pair", Message: "no pairs defined", Pos: v.Pos()}}
	}

	iter, err := pairs.Fields()
	if err != nil {
		return nil, []error{formatCUEError("pair", err)}
	}

	var (
		p    = &Pipeline{}
		errs []error
	)
	for iter.Next() {
		pr, err := CompilePair(iter.Label(), iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Pairs = append(p.Pairs, *pr)
	}
	sort.Slice(p.Pairs, func(i, j int) bool { return p.Pairs[i].Name < p.Pairs[j].Name })

	if len(p.Pairs) == 0 && len(errs) == 0 {
		errs = append(errs, &CompileError{Field: "pair", Message: "no pairs defined", Pos: pairs.Pos()})
	}
	return p, errs
}

// CompilePair parses a single pair value.
func CompilePair(name string, v cue.Value) (*Pair, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("pair", err)
	}

	pr := &Pair{
		Name:           name,
		Region:         normalize.DefaultRegion,
		ActiveStatuses: classify.DefaultActiveStatuses,
		Fields:         merge.DefaultPolicies,
		TiePolicy:      match.TieFirst,
		Threshold:      match.DefaultThreshold,
		Rate:           RateConfig{Burst: 1},
	}
	var err error
	if pr.Source, err = parseSource(v); err != nil {
		return nil, err
	}
	if pr.Directory, err = parseDirectory(v, pr.Name); err != nil {
		return nil, err
	}
	if s, ok, err := optString(v, "region"); err != nil {
		return nil, err
	} else if ok {
		pr.Region = strings.ToUpper(s)
	}
	if list, ok, err := optStrings(v, "active_statuses"); err != nil {
		return nil, err
	} else if ok {
		pr.ActiveStatuses = list
	}
	if fields, ok, err := parseFields(v); err != nil {
		return nil, err
	} else if ok {
		pr.Fields = fields
	}
	if s, ok, err := optString(v, "tie_policy"); err != nil {
		return nil, err
	} else if ok {
		pr.TiePolicy = match.TiePolicy(s)
		if !pr.TiePolicy.Valid() {
			return nil, fieldError(v, "tie_policy", "must be %q or %q, got %q", match.TieFirst, match.TieReview, s)
		}
	}
	if f, ok, err := optFloat(v, "threshold"); err != nil {
		return nil, err
	} else if ok {
		if f <= 0 || f > 1 {
			return nil, fieldError(v, "threshold", "must be in (0, 1], got %v", f)
		}
		pr.Threshold = f
	}
	if b, ok, err := optBool(v, "suspend_orphans"); err != nil {
		return nil, err
	} else if ok {
		pr.SuspendOrphans = b
	}
	if pr.Rate, err = parseRate(v); err != nil {
		return nil, err
	}
	if d, ok, err := optDuration(v, "ledger_window"); err != nil {
		return nil, err
	} else if ok {
		pr.LedgerWindow = d
	}
	return pr, nil
}

func parseSource(v cue.Value) (SourceConfig, error) {
	var sc SourceConfig
	src := v.LookupPath(cue.ParsePath("source"))
	if !src.Exists() {
		return sc, &CompileError{Field: "source", Message: "source is required", Pos: v.Pos()}
	}

	path, ok, err := optString(src, "path")
	if err != nil {
		return sc, err
	}
	if !ok || path == "" {
		return sc, &CompileError{Field: "source.path", Message: "source path is required", Pos: src.Pos()}
	}
	sc.Path = path

	if sc.Format, _, err = optString(src, "format"); err != nil {
		return sc, err
	}
	switch sc.Format {
	case "", "csv", "yaml", "json":
	default:
		return sc, fieldError(src, "format", "unsupported format %q", sc.Format)
	}
	if sc.Encoding, _, err = optString(src, "encoding"); err != nil {
		return sc, err
	}

	cols := src.LookupPath(cue.ParsePath("columns"))
	if cols.Exists() {
		iter, err := cols.Fields()
		if err != nil {
			return sc, formatCUEError("source.columns", err)
		}
		sc.Columns = make(map[string]string)
		for iter.Next() {
			target, err := iter.Value().String()
			if err != nil {
				return sc, formatCUEError("source.columns."+iter.Label(), err)
			}
			sc.Columns[iter.Label()] = target
		}
	}
	return sc, nil
}

func parseDirectory(v cue.Value, pairName string) (DirectoryConfig, error) {
	dc := DirectoryConfig{Name: pairName, Kind: DirectoryFile}
	dir := v.LookupPath(cue.ParsePath("directory"))
	if !dir.Exists() {
		return dc, &CompileError{Field: "directory", Message: "directory is required", Pos: v.Pos()}
	}

	if s, ok, err := optString(dir, "name"); err != nil {
		return dc, err
	} else if ok && s != "" {
		dc.Name = s
	}
	if s, ok, err := optString(dir, "kind"); err != nil {
		return dc, err
	} else if ok {
		dc.Kind = s
	}
	switch dc.Kind {
	case DirectoryFile:
		path, ok, err := optString(dir, "path")
		if err != nil {
			return dc, err
		}
		if !ok || path == "" {
			return dc, &CompileError{Field: "directory.path", Message: "file directory needs a path", Pos: dir.Pos()}
		}
		dc.Path = path
	case DirectoryMemory:
	default:
		return dc, fieldError(dir, "kind", "unknown directory kind %q", dc.Kind)
	}

	if b, ok, err := optBool(dir, "breaker"); err != nil {
		return dc, err
	} else if ok {
		dc.Breaker = b
	}
	return dc, nil
}

func parseFields(v cue.Value) ([]merge.FieldPolicy, bool, error) {
	fv := v.LookupPath(cue.ParsePath("fields"))
	if !fv.Exists() {
		return nil, false, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, false, formatCUEError("fields", err)
	}

	var policies []merge.FieldPolicy
	seen := make(map[string]bool)
	for iter.Next() {
		item := iter.Value()
		name, _, err := optString(item, "field")
		if err != nil {
			return nil, false, err
		}
		if name == "" {
			return nil, false, &CompileError{Field: "fields.field", Message: "field name is required", Pos: item.Pos()}
		}
		if seen[name] {
			return nil, false, &CompileError{Field: "fields.field", Message: fmt.Sprintf("duplicate field %q", name), Pos: item.Pos()}
		}
		seen[name] = true

		kind := merge.KindPlain
		if s, ok, err := optString(item, "kind"); err != nil {
			return nil, false, err
		} else if ok {
			kind = merge.Kind(s)
		}
		if !kind.Valid() {
			return nil, false, fieldError(item, "kind", "unknown field kind %q", kind)
		}
		policies = append(policies, merge.FieldPolicy{Field: name, Kind: kind})
	}
	return policies, true, nil
}

func parseRate(v cue.Value) (RateConfig, error) {
	rc := RateConfig{Burst: 1}
	rv := v.LookupPath(cue.ParsePath("rate"))
	if !rv.Exists() {
		return rc, nil
	}

	if f, ok, err := optFloat(rv, "per_second"); err != nil {
		return rc, err
	} else if ok {
		if f < 0 {
			return rc, fieldError(rv, "per_second", "must not be negative")
		}
		rc.PerSecond = f
	}
	if n, ok, err := optInt(rv, "burst"); err != nil {
		return rc, err
	} else if ok {
		if n < 1 {
			return rc, fieldError(rv, "burst", "must be at least 1")
		}
		rc.Burst = int(n)
	}
	if d, ok, err := optDuration(rv, "jitter"); err != nil {
		return rc, err
	} else if ok {
		rc.Jitter = d
	}
	if n, ok, err := optInt(rv, "seed"); err != nil {
		return rc, err
	} else if ok {
		rc.Seed = n
	}
	return rc, nil
}

func fieldError(v cue.Value, field, format string, args ...any) *CompileError {
	pos := v.Pos()
	if fv := v.LookupPath(cue.ParsePath(field)); fv.Exists() {
		pos = fv.Pos()
	}
	return &CompileError{Field: field, Message: fmt.Sprintf(format, args...), Pos: pos}
}

func optString(v cue.Value, field string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(field, err)
	}
	return s, true, nil
}

func optStrings(v cue.Value, field string) ([]string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, false, nil
	}
	iter, err := fv.List()
	if err != nil {
		return nil, false, formatCUEError(field, err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, false, formatCUEError(field, err)
		}
		out = append(out, s)
	}
	return out, true, nil
}

func optFloat(v cue.Value, field string) (float64, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, false, formatCUEError(field, err)
	}
	return f, true, nil
}

func optInt(v cue.Value, field string) (int64, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, false, formatCUEError(field, err)
	}
	return n, true, nil
}

func optBool(v cue.Value, field string) (bool, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, false, formatCUEError(field, err)
	}
	return b, true, nil
}

func optDuration(v cue.Value, field string) (time.Duration, bool, error) {
	s, ok, err := optString(v, field)
	if err != nil || !ok {
		return 0, ok, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false, fieldError(v, field, "invalid duration %q", s)
	}
	if d < 0 {
		return 0, false, fieldError(v, field, "must not be negative")
	}
	return d, true, nil
}
