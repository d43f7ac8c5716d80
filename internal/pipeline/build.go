package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/roster/internal/classify"
	"github.com/roach88/roster/internal/config"
	"github.com/roach88/roster/internal/diff"
	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/executor"
	"github.com/roach88/roster/internal/match"
	"github.com/roach88/roster/internal/merge"
	"github.com/roach88/roster/internal/normalize"
	"github.com/roach88/roster/internal/source"
	"github.com/roach88/roster/internal/store"
)

// BuildOptions carries what a Pass needs beyond its pair definition.
type BuildOptions struct {
	// BaseDir resolves relative source and directory paths, normally the
	// directory of the pipeline file.
	BaseDir string

	// Store backs the create-key ledger. Nil uses a per-run MemoryLedger.
	Store *store.Store

	// Rate overrides the pair's calls-per-second when positive.
	Rate float64
}

// Build wires a Pass from a compiled pair definition.
func Build(pr config.Pair, opts BuildOptions) (*Pass, error) {
	fallback, err := source.LookupFallback(pr.Source.Encoding)
	if err != nil {
		return nil, fmt.Errorf("pair %s: %w", pr.Name, err)
	}
	srcPath := resolve(opts.BaseDir, pr.Source.Path)
	src := source.NewFile(srcPath,
		source.WithFormat(source.Format(pr.Source.Format)),
		source.WithFallback(fallback),
		source.WithColumns(pr.Source.Columns),
	)

	dir, err := buildDirectory(pr.Directory, opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("pair %s: %w", pr.Name, err)
	}

	n := normalize.New(normalize.WithRegion(pr.Region))
	resolver, err := merge.New(n, pr.Fields...)
	if err != nil {
		return nil, fmt.Errorf("pair %s: %w", pr.Name, err)
	}
	engine := diff.New(pr.Directory.Name,
		classify.New(pr.ActiveStatuses...),
		match.New(match.WithThreshold(pr.Threshold), match.WithTiePolicy(pr.TiePolicy)),
		resolver,
		diff.WithSuspendOrphans(pr.SuspendOrphans),
	)

	var ledger executor.KeyLedger = executor.NewMemoryLedger()
	if opts.Store != nil {
		ledger = opts.Store.Ledger(pr.Directory.Name, store.WithWindow(pr.LedgerWindow))
	}

	return &Pass{
		Name:       pr.Name,
		SourceKey:  srcPath,
		Source:     src,
		Directory:  dir,
		Normalizer: n,
		Engine:     engine,
		Pacer:      buildPacer(pr.Rate, opts.Rate),
		Ledger:     ledger,
	}, nil
}

func buildDirectory(dc config.DirectoryConfig, baseDir string) (directory.Directory, error) {
	var dir directory.Directory
	switch dc.Kind {
	case config.DirectoryMemory:
		dir = directory.NewMemory(dc.Name)
	case config.DirectoryFile:
		f, err := directory.OpenFile(dc.Name, resolve(baseDir, dc.Path))
		if err != nil {
			return nil, err
		}
		dir = f
	default:
		return nil, fmt.Errorf("unknown directory kind %q", dc.Kind)
	}

	if dc.Breaker {
		dir = directory.NewBreaker(dir, directory.DefaultBreakerConfig)
	}
	return dir, nil
}

func buildPacer(rc config.RateConfig, override float64) executor.Pacer {
	perSecond := rc.PerSecond
	if override > 0 {
		perSecond = override
	}
	if perSecond <= 0 && rc.Jitter <= 0 {
		return executor.NoPacer{}
	}
	return executor.NewRatePacer(perSecond, rc.Burst, rc.Jitter, rc.Seed)
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
