package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/19h/symwalker/internal/binfmt"
	"github.com/19h/symwalker/internal/config"
	"github.com/19h/symwalker/internal/resolver"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/rs/zerolog"
)

func newRecord(localPath, remoteURL string, embedded, stripped bool) Record {
	return Record{
		Facts: &binfmt.BinaryFacts{IsStripped: stripped},
		Location: binfmt.SymbolLocation{
			Embedded:  embedded,
			LocalPath: localPath,
			RemoteURL: remoteURL,
		},
	}
}

func TestFilterLocalOnly(t *testing.T) {
	s := &Scanner{}
	s.cfg.LocalOnly = true
	in := []Record{
		newRecord("/debug/a", "", false, false),
		newRecord("", "https://example/buildid/x", false, false),
	}
	out := s.filter(in)
	if len(out) != 1 || out[0].Location.LocalPath != "/debug/a" {
		t.Errorf("filter(--local-only) = %+v, want only the record with a local_path", out)
	}
}

func TestFilterRemoteOnlyImplication(t *testing.T) {
	s := &Scanner{}
	s.cfg.RemoteOnly = true
	if !s.cfg.EffectiveCheckRemote() {
		t.Error("--remote-only should imply --check-remote")
	}
	in := []Record{
		newRecord("/debug/a", "", false, false),
		newRecord("", "https://example/buildid/x/debuginfo", false, false),
	}
	out := s.filter(in)
	if len(out) != 1 || out[0].Location.RemoteURL == "" {
		t.Errorf("filter(--remote-only) = %+v, want only the record with a remote_url", out)
	}
}

// TestFilterHidesStrippedWithNothingFound covers §4.7's default omission:
// a stripped binary whose SymbolLocation is entirely empty is dropped
// unless --show-stripped is set.
func TestFilterHidesStrippedWithNothingFound(t *testing.T) {
	s := &Scanner{}
	in := []Record{newRecord("", "", false, true)}

	out := s.filter(in)
	if len(out) != 0 {
		t.Errorf("filter() without --show-stripped = %+v, want empty", out)
	}

	s.cfg.ShowStripped = true
	out = s.filter(in)
	if len(out) != 1 {
		t.Errorf("filter() with --show-stripped = %+v, want the stripped record kept", out)
	}
}

func TestFilterKeepsStrippedWithEmbeddedDebug(t *testing.T) {
	s := &Scanner{}
	in := []Record{newRecord("", "", true, true)}
	out := s.filter(in)
	if len(out) != 1 {
		t.Error("a stripped binary with embedded debug info is not 'entirely empty' and must be kept")
	}
}

// TestWalkRespectsMaxDepth covers §4.7's max_depth contract (root = 0).
func TestWalkRespectsMaxDepth(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "top.bin"))
	mustMkdir(t, filepath.Join(root, "a"))
	mustWriteFile(t, filepath.Join(root, "a", "one.bin"))
	mustMkdir(t, filepath.Join(root, "a", "b"))
	mustWriteFile(t, filepath.Join(root, "a", "b", "two.bin"))

	s := &Scanner{}
	s.cfg.MaxDepth = 1
	s.cfg.HasMaxDepth = true

	paths, warnings := s.walk(root)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if !containsSuffix(paths, "top.bin") || !containsSuffix(paths, "one.bin") {
		t.Errorf("paths = %v, want top.bin and one.bin reachable within depth 1", paths)
	}
	if containsSuffix(paths, "two.bin") {
		t.Errorf("paths = %v, two.bin is at depth 2 and should be excluded by max_depth=1", paths)
	}
}

func TestWalkSkipsSymlinksByDefault(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real.bin")
	mustWriteFile(t, target)
	link := filepath.Join(root, "link.bin")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported on this filesystem: %v", err)
	}

	s := &Scanner{}
	paths, _ := s.walk(root)
	if containsSuffix(paths, "link.bin") {
		t.Errorf("paths = %v, symlinks should not be followed without --follow-symlinks", paths)
	}
	if !containsSuffix(paths, "real.bin") {
		t.Errorf("paths = %v, want real.bin present", paths)
	}
}

func TestRunRejectsMissingRoot(t *testing.T) {
	cfg := config.Config{Root: "/nonexistent/does/not/exist", Parallelism: 1}
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	res := resolver.New(cfg, nil, logger)
	s := New(cfg, res, logger)

	_, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected a Fatal error for a missing scan root")
	}
	if _, ok := err.(*scanerr.Fatal); !ok {
		t.Errorf("error type = %T, want *scanerr.Fatal", err)
	}
}

func mustWriteFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func containsSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if len(p) >= len(suffix) && p[len(p)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}
