package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/roster/internal/config"
	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/pipeline"
	"github.com/roach88/roster/internal/store"
)

// loadPipeline compiles the pipeline at path. Definition errors are
// returned as a slice so callers can report all of them.
func loadPipeline(path string) (*config.Pipeline, []error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, []error{&config.CompileError{Field: "path", Message: fmt.Sprintf("pipeline not found: %s", path)}}
	}
	return config.Load(path)
}

// baseDir is where relative source and directory paths in the pipeline
// are resolved: the pipeline directory itself, or the file's directory.
func baseDir(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path
	}
	return filepath.Dir(path)
}

// selectPairs returns the named pairs in the given order, or every pair
// when names is empty.
func selectPairs(p *config.Pipeline, names []string) ([]config.Pair, error) {
	if len(names) == 0 {
		return p.Pairs, nil
	}
	out := make([]config.Pair, 0, len(names))
	for _, name := range names {
		pr, ok := p.Pair(name)
		if !ok {
			return nil, fmt.Errorf("unknown pair %q (have %v)", name, p.Names())
		}
		out = append(out, pr)
	}
	return out, nil
}

// buildPasses loads the pipeline and wires one pass per selected pair.
// st may be nil for commands that never execute.
func buildPasses(f *OutputFormatter, opts *RootOptions, names []string, st *store.Store) ([]*pipeline.Pass, error) {
	p, errs := loadPipeline(opts.Pipeline)
	if len(errs) > 0 {
		code := ErrCodeInvalidPipeline
		if p == nil && isNotFound(errs[0]) {
			code = ErrCodeNotFound
		}
		_ = f.Error(code, errs[0].Error(), errorStrings(errs))
		return nil, WrapExitError(ExitCommandError, "failed to load pipeline", errors.Join(errs...))
	}

	pairs, err := selectPairs(p, names)
	if err != nil {
		_ = f.Error(ErrCodeUnknownPair, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to select pairs", err)
	}

	base := baseDir(opts.Pipeline)
	passes := make([]*pipeline.Pass, 0, len(pairs))
	for _, pr := range pairs {
		f.VerboseLog("Building pair %s (%s -> %s)", pr.Name, pr.Source.Path, pr.Directory.Name)
		pass, err := pipeline.Build(pr, pipeline.BuildOptions{BaseDir: base, Store: st, Rate: opts.Rate})
		if err != nil {
			code := ErrCodeInvalidPipeline
			if directory.IsSourceUnavailable(err) {
				code = ErrCodeSourceUnavailable
			}
			_ = f.Error(code, err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, "failed to build pair "+pr.Name, err)
		}
		passes = append(passes, pass)
	}
	return passes, nil
}

// openStore opens the audit database, reporting failures through f.
func openStore(f *OutputFormatter, path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func isNotFound(err error) bool {
	var ce *config.CompileError
	return errors.As(err, &ce) && ce.Field == "path"
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
