package types

// Magic identifies the Mach-O container flavor by its leading 4 bytes.
type Magic uint32

const (
	Magic32  Magic = 0xfeedface
	Magic64  Magic = 0xfeedfacf
	MagicFat Magic = 0xcafebabe
	// MagicFatCigam is the second fat magic (CA FE BA BF), per §4.1. Its
	// fat_arch table is read with the same big-endian, 20-byte-entry layout
	// as MagicFat.
	MagicFatCigam Magic = 0xcafebabf
)

// HeaderFileType is the Mach-O file type field (an executable, a dylib, ...).
type HeaderFileType uint32

const (
	MH_OBJECT  HeaderFileType = 0x1
	MH_EXECUTE HeaderFileType = 0x2
	MH_DYLIB   HeaderFileType = 0x6
	MH_BUNDLE  HeaderFileType = 0x8
)

// FileHeader is the 32-byte 64-bit (or 28-byte 32-bit) Mach-O header, per
// §4.3.
type FileHeader struct {
	Magic        Magic
	CPU          CPU
	SubCPU       uint32
	Type         HeaderFileType
	NCommands    uint32
	SizeCommands uint32
	Flags        HeaderFlag
	Reserved     uint32 // only present for 64-bit headers
}

// HeaderFlag is the Mach-O header flags bitset. Only the bits the security
// analyzer consumes are given named accessors; the full ~30-bit table is
// not needed here.
type HeaderFlag uint32

const (
	FlagPIE                 HeaderFlag = 0x200000
	FlagNoHeapExecution     HeaderFlag = 0x1000000
	FlagAllowStackExecution HeaderFlag = 0x20000
)

func (f HeaderFlag) PIE() bool                 { return f&FlagPIE != 0 }
func (f HeaderFlag) NoHeapExecution() bool     { return f&FlagNoHeapExecution != 0 }
func (f HeaderFlag) AllowStackExecution() bool { return f&FlagAllowStackExecution != 0 }
