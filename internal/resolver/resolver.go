// Package resolver orchestrates symbol-location resolution: for each
// BinaryFacts record, walk the ELF or Mach-O channel ordering until a
// channel succeeds, producing a binfmt.SymbolLocation. Written as
// straight-line, early-return control flow rather than a generic pipeline
// abstraction, since channel ordering is load-bearing behavior and not an
// implementation detail worth hiding behind an interface.
package resolver

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/19h/symwalker/internal/binfmt"
	"github.com/19h/symwalker/internal/binfmt/elf"
	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/debuginfod"
	"github.com/19h/symwalker/internal/dsym"
	"github.com/rs/zerolog"
)

// Resolver probes the local-filesystem and debuginfod channels in the
// strict order §4.5 specifies.
type Resolver struct {
	cfg    config.Config
	client *debuginfod.Client
	logger zerolog.Logger
}

// New builds a Resolver. client may be nil when neither --check-remote nor
// --remote-only is set; Resolve never dereferences it in that case.
func New(cfg config.Config, client *debuginfod.Client, logger zerolog.Logger) *Resolver {
	return &Resolver{cfg: cfg, client: client, logger: logger.With().Str("component", "resolver").Logger()}
}

// Resolve derives a SymbolLocation for facts, per §4.5.
func (r *Resolver) Resolve(ctx context.Context, facts *binfmt.BinaryFacts) binfmt.SymbolLocation {
	switch facts.Format {
	case binfmt.FormatMachO:
		return r.resolveMachO(facts)
	default:
		return r.resolveELF(ctx, facts)
	}
}

func (r *Resolver) resolveELF(ctx context.Context, facts *binfmt.BinaryFacts) binfmt.SymbolLocation {
	var loc binfmt.SymbolLocation

	if facts.HasEmbeddedDebug {
		loc.Embedded = true
		// Step 1 stops here by default; it never short-circuits the
		// remote check below, only the local filesystem channels.
		if !r.cfg.ContinuePastEmbedded {
			return r.maybeRemote(ctx, facts, loc)
		}
	}

	path := realPath(facts.Path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	if facts.BuildID != "" && len(facts.BuildID) > 2 {
		aa, rest := facts.BuildID[:2], facts.BuildID[2:]
		candidates := []string{
			filepath.Join("/usr/lib/debug/.build-id", aa, rest+".debug"),
			filepath.Join("/usr/lib/debug/.build-id", aa, rest),
			filepath.Join("/lib/debug/.build-id", aa, rest+".debug"),
		}
		if p := firstRegularFile(candidates); p != "" {
			loc.LocalPath = p
			return r.maybeRemote(ctx, facts, loc)
		}
	}

	// rejectedDebuglink records candidates step 3 CRC-rejected, so step 4's
	// adjacent fallback can't re-report the very same file unverified.
	rejectedDebuglink := make(map[string]bool)

	if facts.GNUDebugLink != nil && facts.GNUDebugLink.Name != "" {
		name := facts.GNUDebugLink.Name
		candidates := []string{
			filepath.Join(dir, name),
			filepath.Join(dir, ".debug", name),
			filepath.Join("/usr/lib/debug", dir, name),
		}
		for _, c := range candidates {
			if !isRegularFile(c) {
				continue
			}
			data, err := os.ReadFile(c)
			if err != nil {
				r.logger.Debug().Err(err).Str("path", c).Msg("debuglink candidate unreadable")
				continue
			}
			if elf.VerifyCRC32(data, facts.GNUDebugLink.CRC32) {
				loc.LocalPath = c
				return r.maybeRemote(ctx, facts, loc)
			}
			rejectedDebuglink[c] = true
		}
	}

	adjacent := []string{
		path + ".debug",
		filepath.Join(dir, ".debug", base),
	}
	for _, c := range adjacent {
		if rejectedDebuglink[c] || !isRegularFile(c) {
			continue
		}
		loc.LocalPath = c
		return r.maybeRemote(ctx, facts, loc)
	}

	return r.maybeRemote(ctx, facts, loc)
}

func (r *Resolver) maybeRemote(ctx context.Context, facts *binfmt.BinaryFacts, loc binfmt.SymbolLocation) binfmt.SymbolLocation {
	if !r.cfg.EffectiveCheckRemote() || facts.BuildID == "" || r.client == nil {
		return loc
	}
	loc.CheckedRemote = true
	if url, ok := r.client.Probe(ctx, facts.BuildID); ok {
		loc.RemoteURL = url
	}
	return loc
}

func (r *Resolver) resolveMachO(facts *binfmt.BinaryFacts) binfmt.SymbolLocation {
	var loc binfmt.SymbolLocation
	if facts.HasEmbeddedDebug {
		loc.Embedded = true
		// Embedded detection is identical to ELF step 1: stop by default.
		if !r.cfg.ContinuePastEmbedded {
			return loc
		}
	}
	if bundle := dsym.Locate(facts, r.cfg.CheckDSYM); bundle != "" {
		loc.LocalPath = bundle
	}
	return loc
}

func firstRegularFile(candidates []string) string {
	for _, c := range candidates {
		if isRegularFile(c) {
			return c
		}
	}
	return ""
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

func realPath(p string) string {
	if i := strings.Index(p, "#arch="); i >= 0 {
		return p[:i]
	}
	return p
}
