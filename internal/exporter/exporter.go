// Package exporter implements §4.8: copying binaries and resolved debug
// artifacts into an output tree and writing a manifest.json describing
// what was copied. Atomic-write-via-temp-file-then-rename follows the
// same pattern internal/debuginfod uses for its own downloads, kept
// consistent across the two components that write into the output tree.
package exporter

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/debuginfod"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/19h/symwalker/internal/scanner"
	"github.com/rs/zerolog"
)

// manifestEntry mirrors §4.8's per-file manifest shape.
type manifestEntry struct {
	Binary             string `json:"binary"`
	BinaryCopied       bool   `json:"binary_copied,omitempty"`
	SymbolsCopied      string `json:"symbols_copied,omitempty"`
	SymbolsDownloaded  string `json:"symbols_downloaded,omitempty"`
}

type manifest struct {
	Count int             `json:"count"`
	Files []manifestEntry `json:"files"`
}

// Exporter copies binaries/debug artifacts into cfg.OutputDir.
type Exporter struct {
	cfg    config.Config
	client *debuginfod.Client
	logger zerolog.Logger
}

// New builds an Exporter. client may be nil when cfg.DownloadRemote is false.
func New(cfg config.Config, client *debuginfod.Client, logger zerolog.Logger) *Exporter {
	return &Exporter{cfg: cfg, client: client, logger: logger.With().Str("component", "exporter").Logger()}
}

// Run exports every record per §4.8 and writes manifest.json. It returns
// the non-fatal per-file errors it accumulated along the way.
func (ex *Exporter) Run(ctx context.Context, records []scanner.Record) ([]scanerr.Warning, error) {
	if err := os.MkdirAll(ex.cfg.OutputDir, 0o755); err != nil {
		return nil, &scanerr.Fatal{Reason: "cannot create output directory " + ex.cfg.OutputDir + ": " + err.Error()}
	}

	var warnings []scanerr.Warning
	var entries []manifestEntry

	for i := range records {
		r := &records[i]
		entry := manifestEntry{Binary: r.Facts.Path}

		if ex.cfg.CopyBinaries {
			dest := filepath.Join(ex.cfg.OutputDir, filepath.Base(r.Facts.Path))
			if err := ex.copyPreservingMTime(stripArchSuffix(r.Facts.Path), dest, r.Facts.MTime); err != nil {
				warnings = append(warnings, scanerr.Warning{Path: r.Facts.Path, Err: err})
			} else {
				entry.BinaryCopied = true
			}
		}

		if r.Location.LocalPath != "" {
			info, err := os.Stat(r.Location.LocalPath)
			if err == nil && info.IsDir() {
				dest := filepath.Join(ex.cfg.OutputDir, filepath.Base(r.Facts.Path)+".dSYM")
				if err := ex.copyDir(r.Location.LocalPath, dest); err != nil {
					warnings = append(warnings, scanerr.Warning{Path: r.Location.LocalPath, Err: err})
				} else {
					entry.SymbolsCopied = dest
				}
			} else {
				dest := filepath.Join(ex.cfg.OutputDir, filepath.Base(r.Facts.Path)+".debug")
				if err := ex.copyFile(r.Location.LocalPath, dest); err != nil {
					warnings = append(warnings, scanerr.Warning{Path: r.Location.LocalPath, Err: err})
				} else {
					entry.SymbolsCopied = dest
				}
			}
		}

		if ex.cfg.DownloadRemote && r.Location.RemoteURL != "" && ex.client != nil {
			basename := filepath.Base(r.Facts.Path)
			path, err := ex.client.Download(ctx, r.Location.RemoteURL, ex.cfg.OutputDir, basename)
			if err != nil {
				warnings = append(warnings, scanerr.Warning{Path: r.Location.RemoteURL, Err: err})
			} else {
				entry.SymbolsDownloaded = path
				r.Location.DownloadedPath = path
			}
		}

		entries = append(entries, entry)
	}

	if err := ex.writeManifest(entries); err != nil {
		return warnings, &scanerr.Fatal{Reason: "cannot write manifest: " + err.Error()}
	}
	return warnings, nil
}

func (ex *Exporter) writeManifest(entries []manifestEntry) error {
	if entries == nil {
		entries = []manifestEntry{}
	}
	m := manifest{Count: len(entries), Files: entries}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return ex.atomicWrite(filepath.Join(ex.cfg.OutputDir, "manifest.json"), data, true)
}

// copyFile copies src to dest, refusing to overwrite unless --force, per
// §4.8's exporter-owns-the-output-directory rule.
func (ex *Exporter) copyFile(src, dest string) error {
	if !ex.cfg.Force {
		if _, err := os.Stat(dest); err == nil {
			return &scanerr.OutputConflict{Path: dest}
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".symwalker-export-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (ex *Exporter) copyPreservingMTime(src, dest string, mtime time.Time) error {
	if err := ex.copyFile(src, dest); err != nil {
		return err
	}
	if !mtime.IsZero() {
		_ = os.Chtimes(dest, mtime, mtime)
	}
	return nil
}

// copyDir recursively copies a dSYM bundle directory tree.
func (ex *Exporter) copyDir(src, dest string) error {
	if !ex.cfg.Force {
		if _, err := os.Stat(dest); err == nil {
			return &scanerr.OutputConflict{Path: dest}
		}
	}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return ex.copyFile(path, target)
	})
}

func (ex *Exporter) atomicWrite(dest string, data []byte, force bool) error {
	if !ex.cfg.Force && !force {
		if _, err := os.Stat(dest); err == nil {
			return &scanerr.OutputConflict{Path: dest}
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".symwalker-manifest-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, dest)
}

func stripArchSuffix(p string) string {
	if i := strings.Index(p, "#arch="); i >= 0 {
		return p[:i]
	}
	return p
}
