// Package report implements the two Reporter output modes: a flattened
// JSON array and a human-readable block format with sentinel glyphs.
// Built on encoding/json's streaming Encoder, which writes a single
// well-formed JSON array without building every record as a map first.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/scanner"
)

// jsonRecord mirrors §6's flattened JSON schema exactly: field names,
// optionality (nil -> JSON null), and entry_point's hex-string encoding.
type jsonRecord struct {
	Path             string   `json:"path"`
	Size             int64    `json:"size"`
	MTime            string   `json:"mtime"`
	Format           string   `json:"format"`
	Arch             string   `json:"arch"`
	Bits             int      `json:"bits"`
	Kind             string   `json:"kind"`
	IsStripped       bool     `json:"is_stripped"`
	HasEmbeddedDebug bool     `json:"has_embedded_debug"`
	DebugSections    []string `json:"debug_sections"`
	EntryPoint       *string  `json:"entry_point"`
	Interpreter      *string  `json:"interpreter"`
	BuildID          *string  `json:"build_id"`
	GNUDebugLinkName *string  `json:"gnu_debuglink_name"`
	GNUDebugLinkCRC  *uint32  `json:"gnu_debuglink_crc32"`
	UUID             *string  `json:"uuid"`

	PIE     bool `json:"pie"`
	NX      bool `json:"nx"`
	Canary  bool `json:"canary"`
	RELRO   bool `json:"relro"`
	Fortify bool `json:"fortify"`

	Embedded             bool    `json:"embedded"`
	DebugFilePath        *string `json:"debug_file_path"`
	DebuginfodAvailable  *bool   `json:"debuginfod_available"`
	DebuginfodURL        *string `json:"debuginfod_url"`
	DownloadedPath       *string `json:"downloaded_path"`
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toJSONRecord(r scanner.Record) jsonRecord {
	f := r.Facts
	loc := r.Location

	jr := jsonRecord{
		Path:             f.Path,
		Size:             f.Size,
		MTime:            f.MTime.UTC().Format("2006-01-02T15:04:05Z"),
		Format:           f.Format.String(),
		Arch:             f.Arch,
		Bits:             f.Bits,
		Kind:             f.Kind.String(),
		IsStripped:       f.IsStripped,
		HasEmbeddedDebug: f.HasEmbeddedDebug,
		DebugSections:    f.DebugSections,
		Interpreter:      optStr(f.Interpreter),
		BuildID:          optStr(f.BuildID),
		UUID:             optStr(f.UUID),

		PIE:     f.Mitigations.PIE,
		NX:      f.Mitigations.NX,
		Canary:  f.Mitigations.Canary,
		RELRO:   f.Mitigations.RELRO,
		Fortify: f.Mitigations.Fortify,

		Embedded:       loc.Embedded,
		DebugFilePath:  optStr(loc.LocalPath),
		DebuginfodURL:  optStr(loc.RemoteURL),
		DownloadedPath: optStr(loc.DownloadedPath),
	}

	if f.EntryPoint != nil {
		hex := fmt.Sprintf("0x%x", *f.EntryPoint)
		jr.EntryPoint = &hex
	}
	if f.GNUDebugLink != nil {
		jr.GNUDebugLinkName = optStr(f.GNUDebugLink.Name)
		crc := f.GNUDebugLink.CRC32
		jr.GNUDebugLinkCRC = &crc
	}
	if loc.CheckedRemote {
		available := loc.RemoteURL != ""
		jr.DebuginfodAvailable = &available
	}

	return jr
}

// WriteJSON writes records as a single well-formed JSON array to w, per
// §4.9/§6. DebugSections is normalized to an empty (not nil) slice so it
// always renders as `[]`.
func WriteJSON(w io.Writer, records []scanner.Record) error {
	out := make([]jsonRecord, 0, len(records))
	for _, r := range records {
		jr := toJSONRecord(r)
		if jr.DebugSections == nil {
			jr.DebugSections = []string{}
		}
		out = append(out, jr)
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return err
	}
	trimmed := bytes.TrimRight(buf.Bytes(), "\n")
	_, err := w.Write(trimmed)
	return err
}

// WriteHuman writes the human-readable per-binary block format, using
// sentinel glyphs to indicate field presence/absence. With cfg.Verbose an
// extended block is printed. The output carries no ANSI color codes, so
// cfg.NoColor does not change it.
func WriteHuman(w io.Writer, records []scanner.Record, cfg config.Config) error {
	glyph := func(present bool) string {
		if present {
			return "✓" // ✓
		}
		return "✗" // ✗
	}
	unknown := "?"

	for _, r := range records {
		f := r.Facts
		loc := r.Location

		fmt.Fprintf(w, "%s\n", f.Path)
		fmt.Fprintf(w, "  format=%s arch=%s bits=%d kind=%s\n", f.Format, f.Arch, f.Bits, f.Kind)
		fmt.Fprintf(w, "  stripped=%s embedded_debug=%s\n", glyph(f.IsStripped), glyph(f.HasEmbeddedDebug))

		if loc.LocalPath != "" {
			fmt.Fprintf(w, "  local_debug=%s %s\n", glyph(true), loc.LocalPath)
		} else {
			fmt.Fprintf(w, "  local_debug=%s\n", glyph(false))
		}

		switch {
		case !loc.CheckedRemote:
			fmt.Fprintf(w, "  remote_debug=%s (not checked)\n", unknown)
		case loc.RemoteURL != "":
			fmt.Fprintf(w, "  remote_debug=%s %s\n", glyph(true), loc.RemoteURL)
		default:
			fmt.Fprintf(w, "  remote_debug=%s\n", glyph(false))
		}

		if cfg.Security {
			m := f.Mitigations
			fmt.Fprintf(w, "  pie=%s nx=%s canary=%s relro=%s fortify=%s\n",
				glyph(m.PIE), glyph(m.NX), glyph(m.Canary), glyph(m.RELRO), glyph(m.Fortify))
		}

		if cfg.Verbose {
			if f.EntryPoint != nil {
				fmt.Fprintf(w, "  entry_point=0x%x\n", *f.EntryPoint)
			}
			if f.Interpreter != "" {
				fmt.Fprintf(w, "  interpreter=%s\n", f.Interpreter)
			}
			if f.BuildID != "" {
				fmt.Fprintf(w, "  build_id=%s\n", f.BuildID)
			}
			if f.UUID != "" {
				fmt.Fprintf(w, "  uuid=%s\n", f.UUID)
			}
			if len(f.DebugSections) > 0 {
				fmt.Fprintf(w, "  debug_sections=%s\n", strings.Join(f.DebugSections, ","))
			}
		}

		fmt.Fprintln(w)
	}
	return nil
}

// NoColorFromEnv reports whether the NO_COLOR environment variable is set
// to any non-empty value, per §6.
func NoColorFromEnv() bool {
	return os.Getenv("NO_COLOR") != ""
}

