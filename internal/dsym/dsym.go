// Package dsym implements the filesystem + UUID-match search for macOS
// dSYM bundles described in §4.5's Mach-O branch.
package dsym

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/19h/symwalker/internal/binfmt"
	"github.com/19h/symwalker/internal/binfmt/macho"
)

// Locate searches for a *.dSYM bundle matching facts' UUID, returning the
// bundle directory path (not the inner DWARF file) on success. Candidates
// are tried in the order §4.5 specifies; within a glob, matches are tried
// in lexicographic order and the first UUID match wins.
func Locate(facts *binfmt.BinaryFacts, checkExtended bool) string {
	if facts.UUID == "" {
		return ""
	}
	path := realPath(facts.Path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	var candidates []string
	candidates = append(candidates, filepath.Join(dir, base+".dSYM"))
	candidates = append(candidates, globSorted(filepath.Join(dir, "..", "..", "*.dSYM"))...)

	if checkExtended {
		if home, err := os.UserHomeDir(); err == nil {
			candidates = append(candidates, globSorted(filepath.Join(home,
				"Library/Developer/Xcode/DerivedData/*/Build/Products/Debug*/*.dSYM"))...)
			candidates = append(candidates, globSorted(filepath.Join(home,
				"Library/Developer/Xcode/DerivedData/*/Build/Products/Release*/*.dSYM"))...)
			candidates = append(candidates, globSorted(filepath.Join(home,
				"Library/Developer/Xcode/Archives/*/dSYMs/*.dSYM"))...)
		}
	}

	for _, bundle := range candidates {
		if info, err := os.Stat(bundle); err != nil || !info.IsDir() {
			continue
		}
		inner, err := soleDWARFFile(bundle)
		if err != nil {
			continue
		}
		if matchesUUID(inner, facts.UUID) {
			return bundle
		}
	}
	return ""
}

func globSorted(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	return matches
}

// soleDWARFFile returns the single regular file under
// <bundle>/Contents/Resources/DWARF/, per §4.5.
func soleDWARFFile(bundle string) (string, error) {
	dwarfDir := filepath.Join(bundle, "Contents", "Resources", "DWARF")
	entries, err := os.ReadDir(dwarfDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() {
			return filepath.Join(dwarfDir, e.Name()), nil
		}
	}
	return "", os.ErrNotExist
}

func matchesUUID(path, uuid string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	facts, err := macho.Parse(path, data, int64(len(data)), time.Time{})
	if err != nil || len(facts) == 0 {
		return false
	}
	return strings.EqualFold(facts[0].UUID, uuid)
}

func realPath(p string) string {
	if i := strings.Index(p, "#arch="); i >= 0 {
		return p[:i]
	}
	return p
}
