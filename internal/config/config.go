// Package config holds the immutable, process-wide configuration for a
// symwalker run. A Config is built once in cmd/symwalker and passed by
// value to every component that needs it; nothing in this package is
// package-level mutable state.
package config

import "time"

// Default debuginfod servers, consulted only when neither --debuginfod-urls
// nor DEBUGINFOD_URLS supplies a list.
var DefaultDebuginfodURLs = []string{
	"https://debuginfod.elfutils.org",
	"https://debuginfod.ubuntu.com",
	"https://debuginfod.fedoraproject.org",
	"https://debuginfod.debian.net",
}

// Config is the immutable configuration threaded through the scan.
type Config struct {
	// Root is the directory the Scanner walks.
	Root string

	// Filtering
	LocalOnly     bool
	RemoteOnly    bool
	ShowStripped  bool
	Security      bool
	Verbose       bool
	NoColor       bool
	JSON          bool

	// Traversal
	MaxDepth       int
	HasMaxDepth    bool
	FollowSymlinks bool

	// Resolution
	CheckRemote    bool
	CheckDSYM      bool
	DebuginfodURLs []string

	// ContinuePastEmbedded overrides the Resolver's default of stopping
	// after marking a binary's embedded debug info, per §4.5 step 1. No CLI
	// flag sets this; it exists for a caller that explicitly wants the
	// filesystem/remote channels probed even when embedded debug is present.
	ContinuePastEmbedded bool

	// Export
	OutputDir      string
	HasOutput      bool
	CopyBinaries   bool
	DownloadRemote bool
	Force          bool

	// Concurrency
	Parallelism int

	// Timeouts, per §5: request, per-server and per-file are all bounded.
	HTTPRequestTimeout time.Duration
	PerFileTimeout     time.Duration
	MaxDownloadBytes   int64
}

// EffectiveCheckRemote reports whether debuginfod probing is on, either
// directly via --check-remote or because --remote-only implicitly turned on
// --check-remote, per the §6 flag table.
func (c Config) EffectiveCheckRemote() bool {
	return c.CheckRemote || c.RemoteOnly
}
