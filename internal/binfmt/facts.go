// Package binfmt holds the normalized data model shared by every parser
// (BinaryFacts, SymbolLocation) plus the Mapper/Sniffer front door that
// classifies a candidate file before a format-specific parser runs.
package binfmt

import "time"

// Format identifies which object-file family produced a BinaryFacts record.
type Format int

const (
	FormatUnknown Format = iota
	FormatELF
	FormatMachO
)

func (f Format) String() string {
	switch f {
	case FormatELF:
		return "elf"
	case FormatMachO:
		return "macho"
	default:
		return "unknown"
	}
}

// Kind classifies the purpose of a parsed binary.
type Kind int

const (
	KindOther Kind = iota
	KindExecutable
	KindLibrary
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindExecutable:
		return "executable"
	case KindLibrary:
		return "library"
	case KindObject:
		return "object"
	default:
		return "other"
	}
}

// Mitigations holds the exploit-mitigation booleans derived by the Security
// Analyzer. relro and fortify are always false for Mach-O (§4.4).
type Mitigations struct {
	PIE     bool
	NX      bool
	Canary  bool
	RELRO   bool
	Fortify bool
}

// GNUDebugLink is the parsed .gnu_debuglink section contents.
type GNUDebugLink struct {
	Name  string
	CRC32 uint32
}

// BinaryFacts is the normalized, immutable record produced by a parser for
// one binary (or, for a fat Mach-O, one architecture slice). Once returned
// by a parser it is never mutated.
type BinaryFacts struct {
	Path  string
	Size  int64
	MTime time.Time

	Format Format
	Arch   string
	Bits   int
	Kind   Kind

	IsStripped        bool
	HasEmbeddedDebug  bool
	DebugSections     []string

	EntryPoint *uint64 // absolute virtual address, when known

	// ELF-only.
	Interpreter  string // empty if absent
	BuildID      string // lowercase hex, empty if absent
	GNUDebugLink *GNUDebugLink

	// Mach-O only.
	UUID string // canonical 8-4-4-4-12 uppercase, empty if absent

	Mitigations Mitigations
}

// SymbolLocation is produced by the Resolver after BinaryFacts exist. It
// never shares a memory-mapped window with the parser that produced the
// facts it was built from (§3 lifecycle, §9 memory-mapping ownership).
type SymbolLocation struct {
	Embedded       bool
	LocalPath      string // empty if absent
	RemoteURL      string // empty if absent
	DownloadedPath string // empty if absent; only set when Exporter ran
	CheckedRemote  bool
}

// IsEmpty reports whether no symbol-discovery channel produced anything:
// the "fully unresolved" case, which is not itself an error.
func (s SymbolLocation) IsEmpty() bool {
	return !s.Embedded && s.LocalPath == "" && s.RemoteURL == "" && s.DownloadedPath == ""
}
