// Package elf implements the ELF side of binary parsing: header/program/
// section table decoding via the standard library's debug/elf, extended
// with a hand-rolled ELF note reader for build-id extraction, which
// debug/elf does not expose.
package elf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"io"
	"strings"
	"time"

	"github.com/19h/symwalker/internal/binfmt"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/19h/symwalker/internal/security"
)

// noteTypeGNUBuildID (NT_GNU_BUILD_ID) is the note type carrying a build-id inside a note whose
// name is "GNU" (§4.2).
const noteTypeGNUBuildID = 3

var archNames = map[elf.Machine]string{
	elf.EM_X86_64:  "x86_64",
	elf.EM_386:     "x86",
	elf.EM_AARCH64: "ARM64",
	elf.EM_ARM:     "ARM",
	elf.EM_RISCV:   "RISC-V",
	elf.EM_PPC64:   "PowerPC",
	elf.EM_PPC:     "PowerPC",
	elf.EM_MIPS:    "MIPS",
	elf.EM_S390:    "S390",
}

// Parse decodes the ELF file at data and normalizes it into a BinaryFacts
// record, per §4.2. Truncated or structurally invalid headers produce a
// *scanerr.MalformedBinary error rather than a panic.
func Parse(path string, data []byte, size int64, mtime time.Time) (*binfmt.BinaryFacts, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, &scanerr.MalformedBinary{Path: path, Detail: err.Error()}
	}
	defer f.Close()

	facts := &binfmt.BinaryFacts{
		Path:   path,
		Size:   size,
		MTime:  mtime,
		Format: binfmt.FormatELF,
		Arch:   archName(f.Machine),
	}
	if f.Class == elf.ELFCLASS64 {
		facts.Bits = 64
	} else {
		facts.Bits = 32
	}

	hasInterp := false
	var interp string
	for _, p := range f.Progs {
		if p.Type == elf.PT_INTERP {
			hasInterp = true
			interp = readInterp(p)
		}
	}
	facts.Interpreter = interp

	switch {
	case f.Type == elf.ET_EXEC:
		facts.Kind = binfmt.KindExecutable
	case f.Type == elf.ET_DYN && hasInterp:
		facts.Kind = binfmt.KindExecutable
	case f.Type == elf.ET_DYN:
		facts.Kind = binfmt.KindLibrary
	case f.Type == elf.ET_REL:
		facts.Kind = binfmt.KindObject
	default:
		facts.Kind = binfmt.KindOther
	}

	if f.Entry != 0 {
		e := f.Entry
		facts.EntryPoint = &e
	}

	facts.BuildID = findBuildID(f)

	if dl, err := readDebugLink(f); err == nil {
		facts.GNUDebugLink = dl
	}

	var debugSections []string
	hasSymtab := false
	for _, s := range f.Sections {
		switch {
		case strings.HasPrefix(s.Name, ".debug_"), strings.HasPrefix(s.Name, ".zdebug_"):
			debugSections = append(debugSections, s.Name)
		case s.Type == elf.SHT_SYMTAB:
			hasSymtab = true
		}
	}
	facts.DebugSections = debugSections
	facts.HasEmbeddedDebug = len(debugSections) > 0
	facts.IsStripped = !hasSymtab

	facts.Mitigations = security.ELF(f)

	return facts, nil
}

func archName(m elf.Machine) string {
	if name, ok := archNames[m]; ok {
		return name
	}
	return m.String()
}

func readInterp(p *elf.Prog) string {
	buf := make([]byte, p.Filesz)
	if _, err := io.ReadFull(p.Open(), buf); err != nil {
		return ""
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

// findBuildID searches (a) a .note.gnu.build-id section and (b) any
// PT_NOTE segment for a GNU build-id note, per §4.2.
func findBuildID(f *elf.File) string {
	if s := f.Section(".note.gnu.build-id"); s != nil {
		if data, err := s.Data(); err == nil {
			if id := parseBuildIDNote(data, f.ByteOrder); id != "" {
				return id
			}
		}
	}
	for _, p := range f.Progs {
		if p.Type != elf.PT_NOTE {
			continue
		}
		data := make([]byte, p.Filesz)
		if _, err := io.ReadFull(p.Open(), data); err != nil {
			continue
		}
		if id := parseBuildIDNote(data, f.ByteOrder); id != "" {
			return id
		}
	}
	return ""
}

func align4(n int) int { return (n + 3) &^ 3 }

// parseBuildIDNote walks a sequence of ELF notes looking for one named
// "GNU" with type NT_GNU_BUILD_ID, returning its descriptor bytes as
// lowercase hex.
func parseBuildIDNote(data []byte, order binary.ByteOrder) string {
	off := 0
	for off+12 <= len(data) {
		namesz := int(order.Uint32(data[off : off+4]))
		descsz := int(order.Uint32(data[off+4 : off+8]))
		typ := order.Uint32(data[off+8 : off+12])
		off += 12

		nameEnd := off + namesz
		if nameEnd > len(data) {
			return ""
		}
		name := data[off:nameEnd]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		off = align4(nameEnd)

		descEnd := off + descsz
		if descEnd > len(data) {
			return ""
		}
		desc := data[off:descEnd]
		off = align4(descEnd)

		if string(name) == "GNU" && typ == noteTypeGNUBuildID && len(desc) >= 1 {
			return hex.EncodeToString(desc)
		}
	}
	return ""
}

// readDebugLink parses the .gnu_debuglink section: a NUL-terminated
// filename padded to 4 bytes, followed by a little-endian CRC32 (§4.2).
func readDebugLink(f *elf.File) (*binfmt.GNUDebugLink, error) {
	s := f.Section(".gnu_debuglink")
	if s == nil {
		return nil, errNoDebugLink
	}
	data, err := s.Data()
	if err != nil {
		return nil, err
	}
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return nil, errNoDebugLink
	}
	name := string(data[:i])
	crcOff := align4(i + 1)
	if crcOff+4 > len(data) {
		return nil, errNoDebugLink
	}
	crc := binary.LittleEndian.Uint32(data[crcOff : crcOff+4])
	return &binfmt.GNUDebugLink{Name: name, CRC32: crc}, nil
}

var errNoDebugLink = errDebugLink("no .gnu_debuglink section")

type errDebugLink string

func (e errDebugLink) Error() string { return string(e) }

// VerifyCRC32 reports whether data's CRC32 (the standard Ethernet/IEEE
// 802.3 polynomial, matching the GNU toolchain) equals want, per §4.5 step
// 3's mismatch-rejection rule.
func VerifyCRC32(data []byte, want uint32) bool {
	return crc32.ChecksumIEEE(data) == want
}
