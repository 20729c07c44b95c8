// Command symwalker scans a directory tree for ELF and Mach-O binaries,
// reports their security mitigations, and resolves debug-symbol locations
// across embedded sections, filesystem layout conventions, debuginfod, and
// dSYM bundles. See SPEC_FULL.md for the full component breakdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/debuginfod"
	"github.com/19h/symwalker/internal/exporter"
	"github.com/19h/symwalker/internal/report"
	"github.com/19h/symwalker/internal/resolver"
	"github.com/19h/symwalker/internal/scanner"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("symwalker", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		verbose        = fs.Bool("v", false, "human mode emits extended per-binary block")
		verboseLong    = fs.Bool("verbose", false, "human mode emits extended per-binary block")
		localOnly      = fs.Bool("local-only", false, "suppress records without local_path or embedded debug info")
		remoteOnly     = fs.Bool("remote-only", false, "suppress records without remote_url (implies --check-remote)")
		checkRemote    = fs.Bool("check-remote", false, "enable Debuginfod Client probes")
		output         = fs.String("o", "", "enable Exporter, writing into DIR")
		outputLong     = fs.String("output", "", "enable Exporter, writing into DIR")
		copyBinaries   = fs.Bool("copy-binaries", false, "copy binaries into output")
		downloadRemote = fs.Bool("download-remote", false, "fetch debuginfo bodies into output (requires --output)")
		force          = fs.Bool("f", false, "allow overwriting in output")
		forceLong      = fs.Bool("force", false, "allow overwriting in output")
		jsonOut        = fs.Bool("json", false, "JSON output mode")
		maxDepth       = fs.Int("max-depth", -1, "traversal depth cap")
		followSymlinks = fs.Bool("follow-symlinks", false, "follow symlinks with cycle detection")
		showStripped   = fs.Bool("show-stripped", false, "include stripped binaries with no symbols found")
		debuginfodURLs = fs.String("debuginfod-urls", "", "comma-separated override list")
		checkDSYM      = fs.Bool("check-dsym", false, "enable extended dSYM search locations")
		security       = fs.Bool("security", false, "populate mitigation fields in output")
	)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: symwalker [flags] <DIRECTORY>")
		return 2
	}
	root := fs.Arg(0)

	hasOutput := *output != "" || *outputLong != ""
	outDir := *output
	if outDir == "" {
		outDir = *outputLong
	}

	if *downloadRemote && !hasOutput {
		fmt.Fprintln(os.Stderr, "symwalker: --download-remote requires --output")
		return 2
	}

	parallelism := runtime.NumCPU()
	if parallelism > 16 {
		parallelism = 16
	}
	if parallelism < 1 {
		parallelism = 1
	}

	cfg := config.Config{
		Root:               root,
		LocalOnly:          *localOnly,
		RemoteOnly:         *remoteOnly,
		ShowStripped:       *showStripped,
		Security:           *security,
		Verbose:            *verbose || *verboseLong,
		NoColor:            report.NoColorFromEnv(),
		JSON:               *jsonOut,
		MaxDepth:           *maxDepth,
		HasMaxDepth:        *maxDepth >= 0,
		FollowSymlinks:     *followSymlinks,
		CheckRemote:        *checkRemote,
		CheckDSYM:          *checkDSYM,
		DebuginfodURLs:     debuginfod.ResolveServerList(*debuginfodURLs, os.Getenv("DEBUGINFOD_URLS")),
		OutputDir:          outDir,
		HasOutput:          hasOutput,
		CopyBinaries:       *copyBinaries,
		DownloadRemote:     *downloadRemote,
		Force:              *force || *forceLong,
		Parallelism:        parallelism,
		HTTPRequestTimeout: 5 * time.Second,
		PerFileTimeout:      30 * time.Second,
		MaxDownloadBytes:   512 * 1024 * 1024,
	}

	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var client *debuginfod.Client
	if cfg.EffectiveCheckRemote() || cfg.DownloadRemote {
		client = debuginfod.New(cfg.DebuginfodURLs, cfg.HTTPRequestTimeout, cfg.MaxDownloadBytes, logger)
	}

	res := resolver.New(cfg, client, logger)
	sc := scanner.New(cfg, res, logger)

	result, err := sc.Run(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "symwalker: "+err.Error())
		return 1
	}

	if cfg.HasOutput {
		exp := exporter.New(cfg, client, logger)
		warnings, err := exp.Run(ctx, result.Records)
		if err != nil {
			fmt.Fprintln(os.Stderr, "symwalker: "+err.Error())
			return 1
		}
		result.Warnings = append(result.Warnings, warnings...)
	}

	if cfg.JSON {
		if err := report.WriteJSON(os.Stdout, result.Records); err != nil {
			fmt.Fprintln(os.Stderr, "symwalker: "+err.Error())
			return 1
		}
		fmt.Fprintln(os.Stdout)
	} else {
		if err := report.WriteHuman(os.Stdout, result.Records, cfg); err != nil {
			fmt.Fprintln(os.Stderr, "symwalker: "+err.Error())
			return 1
		}
	}

	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, "symwalker: warning: "+w.Error())
	}

	return 0
}

func newLogger(cfg config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: cfg.NoColor}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
