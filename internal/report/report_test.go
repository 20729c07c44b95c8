package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/19h/symwalker/internal/binfmt"
	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/scanner"
)

func TestWriteJSONFlattensFields(t *testing.T) {
	entry := uint64(0x401000)
	facts := &binfmt.BinaryFacts{
		Path:             "/fixtures/bin/hello",
		Size:             4096,
		MTime:            time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Format:           binfmt.FormatELF,
		Arch:             "x86_64",
		Bits:             64,
		Kind:             binfmt.KindExecutable,
		IsStripped:       false,
		HasEmbeddedDebug: true,
		DebugSections:    []string{".debug_info"},
		EntryPoint:       &entry,
		BuildID:          "4c3c4698",
		Mitigations:      binfmt.Mitigations{PIE: true, NX: true, Canary: true, RELRO: true, Fortify: true},
	}
	records := []scanner.Record{{Facts: facts, Location: binfmt.SymbolLocation{LocalPath: "/debug/hello.debug"}}}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, records); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if len(out) != 1 {
		t.Fatalf("got %d records, want 1", len(out))
	}
	rec := out[0]

	if rec["entry_point"] != "0x401000" {
		t.Errorf("entry_point = %v, want 0x401000", rec["entry_point"])
	}
	if rec["mtime"] != "2026-01-02T03:04:05Z" {
		t.Errorf("mtime = %v, want ISO-8601 Zulu", rec["mtime"])
	}
	if rec["uuid"] != nil {
		t.Errorf("uuid = %v, want null for an ELF record", rec["uuid"])
	}
	if rec["pie"] != true || rec["nx"] != true || rec["canary"] != true || rec["relro"] != true || rec["fortify"] != true {
		t.Errorf("mitigation booleans not lifted to top level: %+v", rec)
	}
	if rec["debug_file_path"] != "/debug/hello.debug" {
		t.Errorf("debug_file_path = %v, want /debug/hello.debug", rec["debug_file_path"])
	}

	if bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		t.Error("WriteJSON output should not have a trailing newline")
	}
}

func TestWriteJSONEmptyDebugSectionsIsEmptyArrayNotNull(t *testing.T) {
	facts := &binfmt.BinaryFacts{Path: "/fixtures/bin/stripped", Format: binfmt.FormatELF}
	var buf bytes.Buffer
	if err := WriteJSON(&buf, []scanner.Record{{Facts: facts}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"debug_sections":[]`) {
		t.Errorf("expected debug_sections to render as [], got %s", buf.String())
	}
}

func TestWriteHumanUsesGlyphs(t *testing.T) {
	facts := &binfmt.BinaryFacts{Path: "/fixtures/bin/hello", Format: binfmt.FormatELF, IsStripped: true}
	records := []scanner.Record{{Facts: facts, Location: binfmt.SymbolLocation{}}}

	var buf bytes.Buffer
	if err := WriteHuman(&buf, records, config.Config{}); err != nil {
		t.Fatalf("WriteHuman: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "✓") && !strings.Contains(out, "✗") {
		t.Errorf("expected sentinel glyphs in human output, got %q", out)
	}
	if !strings.Contains(out, "/fixtures/bin/hello") {
		t.Errorf("expected the binary path in human output, got %q", out)
	}
}
