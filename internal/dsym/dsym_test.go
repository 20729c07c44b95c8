package dsym

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/19h/symwalker/internal/binfmt"
)

// buildMachOWithUUID assembles the same minimal Mach-O shape
// internal/binfmt/macho's tests use, carrying only an LC_UUID command.
func buildMachOWithUUID(uuid [16]byte) []byte {
	var cmds bytes.Buffer
	binary.Write(&cmds, binary.LittleEndian, uint32(0x1b)) // LC_UUID
	binary.Write(&cmds, binary.LittleEndian, uint32(24))
	cmds.Write(uuid[:])

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(0xfeedfacf)) // Magic64
	binary.Write(&buf, binary.LittleEndian, uint32(0x01000007)) // CPU_TYPE_X86_64
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, uint32(2)) // MH_EXECUTE
	binary.Write(&buf, binary.LittleEndian, uint32(1)) // ncmds
	binary.Write(&buf, binary.LittleEndian, uint32(cmds.Len()))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	buf.Write(cmds.Bytes())
	return buf.Bytes()
}

// TestLocateAdjacentUUIDMatch covers §8 scenario 3: an adjacent
// hello.dSYM bundle whose inner DWARF file carries the same UUID as the
// primary binary must resolve to the bundle directory, not the inner file.
func TestLocateAdjacentUUIDMatch(t *testing.T) {
	dir := t.TempDir()
	uuid := [16]byte{0x12, 0x34, 0x56, 0x78, 0x90, 0xAB, 0xCD, 0xEF, 0x12, 0x34, 0x56, 0x78, 0x90, 0xAB, 0xCD, 0xEF}

	binPath := filepath.Join(dir, "hello")
	if err := os.WriteFile(binPath, buildMachOWithUUID(uuid), 0o644); err != nil {
		t.Fatal(err)
	}

	bundle := filepath.Join(dir, "hello.dSYM")
	dwarfDir := filepath.Join(bundle, "Contents", "Resources", "DWARF")
	if err := os.MkdirAll(dwarfDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dwarfDir, "hello"), buildMachOWithUUID(uuid), 0o644); err != nil {
		t.Fatal(err)
	}

	facts := &binfmt.BinaryFacts{Path: binPath, Format: binfmt.FormatMachO, UUID: "12345678-90AB-CDEF-1234-567890ABCDEF"}
	got := Locate(facts, false)
	if got != bundle {
		t.Errorf("Locate() = %q, want bundle directory %q", got, bundle)
	}
}

// TestLocateUUIDMismatch covers the "equality is mandatory" rule: a
// candidate dSYM whose inner DWARF UUID differs must be rejected.
func TestLocateUUIDMismatch(t *testing.T) {
	dir := t.TempDir()
	uuidA := [16]byte{0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11}
	uuidB := [16]byte{0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22}

	binPath := filepath.Join(dir, "hello")
	os.WriteFile(binPath, buildMachOWithUUID(uuidA), 0o644)

	bundle := filepath.Join(dir, "hello.dSYM")
	dwarfDir := filepath.Join(bundle, "Contents", "Resources", "DWARF")
	os.MkdirAll(dwarfDir, 0o755)
	os.WriteFile(filepath.Join(dwarfDir, "hello"), buildMachOWithUUID(uuidB), 0o644)

	facts := &binfmt.BinaryFacts{Path: binPath, Format: binfmt.FormatMachO, UUID: "11111111-1111-1111-1111-111111111111"}
	if got := Locate(facts, false); got != "" {
		t.Errorf("Locate() = %q, want empty: UUIDs differ", got)
	}
}

func TestLocateNoUUIDReturnsEmpty(t *testing.T) {
	facts := &binfmt.BinaryFacts{Path: "/fixtures/bin/hello", Format: binfmt.FormatMachO}
	if got := Locate(facts, false); got != "" {
		t.Errorf("Locate() = %q, want empty when facts.UUID is unset", got)
	}
}

func TestLocateArchSuffixStripped(t *testing.T) {
	dir := t.TempDir()
	uuid := [16]byte{0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33, 0x33}

	binPath := filepath.Join(dir, "hello")
	os.WriteFile(binPath, buildMachOWithUUID(uuid), 0o644)

	bundle := filepath.Join(dir, "hello.dSYM")
	dwarfDir := filepath.Join(bundle, "Contents", "Resources", "DWARF")
	os.MkdirAll(dwarfDir, 0o755)
	os.WriteFile(filepath.Join(dwarfDir, "hello"), buildMachOWithUUID(uuid), 0o644)

	facts := &binfmt.BinaryFacts{
		Path:   binPath + "#arch=x86_64",
		Format: binfmt.FormatMachO,
		UUID:   "33333333-3333-3333-3333-333333333333",
	}
	if got := Locate(facts, false); got != bundle {
		t.Errorf("Locate() = %q, want %q", got, bundle)
	}
}
