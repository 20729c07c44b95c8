// Package scanner implements directory traversal and the per-file
// pipeline: Sniffer -> Parser -> Security Analyzer -> Resolver, fanned out
// across a bounded worker pool built on golang.org/x/sync/errgroup's
// SetLimit idiom for "N workers draining one queue."
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/19h/symwalker/internal/binfmt"
	"github.com/19h/symwalker/internal/binfmt/elf"
	"github.com/19h/symwalker/internal/binfmt/macho"
	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/resolver"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Record pairs a parsed binary with its resolved symbol location: the unit
// the Reporter and Exporter both consume.
type Record struct {
	Facts    *binfmt.BinaryFacts
	Location binfmt.SymbolLocation
}

// Result is the outcome of a full scan: the emitted records (already
// filtered per §4.7) plus the warnings collected along the way.
type Result struct {
	Records  []Record
	Warnings []scanerr.Warning
}

// Scanner walks cfg.Root and produces a Result.
type Scanner struct {
	cfg      config.Config
	resolver *resolver.Resolver
	logger   zerolog.Logger
}

// New builds a Scanner.
func New(cfg config.Config, res *resolver.Resolver, logger zerolog.Logger) *Scanner {
	return &Scanner{cfg: cfg, resolver: res, logger: logger.With().Str("component", "scanner").Logger()}
}

// Run traverses cfg.Root, processing every candidate regular file through
// the pipeline and returning the filtered result stream.
func (s *Scanner) Run(ctx context.Context) (*Result, error) {
	root := s.cfg.Root
	info, err := os.Stat(root)
	if err != nil {
		return nil, &scanerr.Fatal{Reason: "scan root " + root + " is not accessible: " + err.Error()}
	}
	if !info.IsDir() {
		return nil, &scanerr.Fatal{Reason: "scan root " + root + " is not a directory"}
	}

	paths, warnings := s.walk(root)

	limit := s.cfg.Parallelism
	if limit <= 0 {
		limit = 1
	}

	var mu sync.Mutex
	var records []Record

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, p := range paths {
		p := p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			default:
			}
			rec, warn, err := s.processFile(gctx, p)
			if err != nil {
				mu.Lock()
				warnings = append(warnings, scanerr.Warning{Path: p, Err: err})
				mu.Unlock()
				return nil
			}
			if warn != nil {
				mu.Lock()
				warnings = append(warnings, *warn)
				mu.Unlock()
			}
			if rec == nil {
				return nil
			}
			mu.Lock()
			records = append(records, rec...)
			mu.Unlock()
			return nil
		})
	}
	// errgroup's Wait error is always nil here: processFile errors are
	// captured as warnings rather than aborting the group.
	_ = g.Wait()

	filtered := s.filter(records)
	return &Result{Records: filtered, Warnings: warnings}, nil
}

// processFile runs one candidate file through Sniffer → Parser →
// Resolver, per §4.7. A file that isn't ELF/Mach-O is silently skipped
// (nil, nil, nil); a file that fails to open or parse returns a non-nil
// error so the caller can record a warning.
func (s *Scanner) processFile(ctx context.Context, path string) ([]Record, *scanerr.Warning, error) {
	if s.cfg.PerFileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PerFileTimeout)
		defer cancel()
	}

	mapping, err := binfmt.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer mapping.Close()

	data := mapping.Bytes()
	class := binfmt.Sniff(data)
	if class == binfmt.ClassUnknown {
		return nil, nil, nil
	}

	info, statErr := os.Stat(path)
	var mtime time.Time
	if statErr == nil {
		mtime = info.ModTime()
	}

	switch class {
	case binfmt.ClassELF:
		facts, err := elf.Parse(path, data, mapping.Size(), mtime)
		if err != nil {
			return nil, nil, err
		}
		loc := s.resolver.Resolve(ctx, facts)
		return []Record{{Facts: facts, Location: loc}}, nil, nil

	case binfmt.ClassMachOThin, binfmt.ClassMachOFat:
		factsList, err := macho.Parse(path, data, mapping.Size(), mtime)
		if err != nil {
			return nil, nil, err
		}
		recs := make([]Record, 0, len(factsList))
		for _, facts := range factsList {
			loc := s.resolver.Resolve(ctx, facts)
			recs = append(recs, Record{Facts: facts, Location: loc})
		}
		return recs, nil, nil
	}
	return nil, nil, nil
}

// filter applies the post-parse rules from §4.7: --local-only (records
// with embedded debug info count as local), --remote-only, and the default
// stripped-with-nothing-found omission.
func (s *Scanner) filter(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if s.cfg.LocalOnly && r.Location.LocalPath == "" && !r.Location.Embedded {
			continue
		}
		if s.cfg.RemoteOnly && r.Location.RemoteURL == "" {
			continue
		}
		if !s.cfg.ShowStripped && r.Location.IsEmpty() && r.Facts.IsStripped {
			continue
		}
		out = append(out, r)
	}
	return out
}

type dirKey struct {
	dev, ino uint64
}

// walk enumerates candidate regular files under root, honoring
// follow_symlinks/max_depth/cycle-detection per §4.7.
func (s *Scanner) walk(root string) ([]string, []scanerr.Warning) {
	var (
		paths    []string
		warnings []scanerr.Warning
		visited  = map[dirKey]bool{}
	)

	if key, ok := statKey(root); ok {
		visited[key] = true
	}

	var walkDir func(dir string, depth int)
	walkDir = func(dir string, depth int) {
		if s.cfg.HasMaxDepth && depth > s.cfg.MaxDepth {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			warnings = append(warnings, scanerr.Warning{Path: dir, Err: err})
			return
		}
		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			typ := e.Type()

			if typ&fs.ModeSymlink != 0 {
				if !s.cfg.FollowSymlinks {
					continue
				}
				target, err := filepath.EvalSymlinks(full)
				if err != nil {
					warnings = append(warnings, scanerr.Warning{Path: full, Err: err})
					continue
				}
				info, err := os.Stat(target)
				if err != nil {
					warnings = append(warnings, scanerr.Warning{Path: full, Err: err})
					continue
				}
				if info.IsDir() {
					key, ok := statKey(target)
					if ok {
						if visited[key] {
							continue
						}
						visited[key] = true
					}
					walkDir(target, depth+1)
					continue
				}
				if info.Mode().IsRegular() {
					paths = append(paths, full)
				}
				continue
			}

			if e.IsDir() {
				key, ok := statKey(full)
				if ok {
					if visited[key] {
						continue
					}
					visited[key] = true
				}
				walkDir(full, depth+1)
				continue
			}

			if e.Type().IsRegular() {
				paths = append(paths, full)
			}
		}
	}

	walkDir(root, 0)
	return paths, warnings
}
