// Package macho implements just enough Mach-O decoding to produce a
// binfmt.BinaryFacts record: header/load-command walking, UUID, entry
// point, __DWARF section inventory and symtab presence. Structured as a
// single load-command walk that produces an immutable, normalized fact
// record rather than a rich introspectable File.
package macho

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/19h/symwalker/internal/binfmt"
	"github.com/19h/symwalker/internal/binfmt/macho/types"
	"github.com/19h/symwalker/internal/scanerr"
	"github.com/19h/symwalker/internal/security"
)

// Parse decodes the Mach-O container at data (thin or fat) and returns one
// BinaryFacts per architecture slice, per §4.1's "Fat archives iterate their
// slices; the Scanner emits one record per slice" rule.
func Parse(path string, data []byte, size int64, mtime time.Time) ([]*binfmt.BinaryFacts, error) {
	if len(data) < 4 {
		return nil, &scanerr.MalformedBinary{Path: path, Detail: "file too short for a magic number"}
	}
	magic := binary.BigEndian.Uint32(data[:4])

	switch types.Magic(magic) {
	case types.MagicFat, types.MagicFatCigam:
		return parseFat(path, data, size, mtime)
	default:
		facts, err := parseThin(path, data, size, mtime, "")
		if err != nil {
			return nil, err
		}
		return []*binfmt.BinaryFacts{facts}, nil
	}
}

func parseFat(path string, data []byte, size int64, mtime time.Time) ([]*binfmt.BinaryFacts, error) {
	if len(data) < 8 {
		return nil, &scanerr.MalformedBinary{Path: path, Detail: "truncated fat header"}
	}
	nArch := binary.BigEndian.Uint32(data[4:8])

	const fatArchSize = 20 // cputype, cpusubtype, offset, size, align (all uint32, big-endian)
	out := make([]*binfmt.BinaryFacts, 0, nArch)

	for i := uint32(0); i < nArch; i++ {
		off := 8 + int(i)*fatArchSize
		if off+fatArchSize > len(data) {
			return nil, &scanerr.MalformedBinary{Path: path, Detail: "truncated fat_arch table"}
		}
		cpu := types.CPU(binary.BigEndian.Uint32(data[off : off+4]))
		sliceOff := binary.BigEndian.Uint32(data[off+8 : off+12])
		sliceSize := binary.BigEndian.Uint32(data[off+12 : off+16])

		if uint64(sliceOff)+uint64(sliceSize) > uint64(len(data)) {
			return nil, &scanerr.MalformedBinary{Path: path, Detail: "fat_arch slice exceeds file bounds"}
		}

		slice := data[sliceOff : sliceOff+sliceSize]
		suffix := cpu.Canonical()
		facts, err := parseThin(fmt.Sprintf("%s#arch=%s", path, suffix), slice, int64(sliceSize), mtime, suffix)
		if err != nil {
			// A malformed slice does not invalidate the rest of the fat
			// archive's other slices; skip it.
			continue
		}
		facts.Path = fmt.Sprintf("%s#arch=%s", path, suffix)
		facts.Size = size
		out = append(out, facts)
	}

	if len(out) == 0 {
		return nil, &scanerr.MalformedBinary{Path: path, Detail: "no decodable slices in fat archive"}
	}
	return out, nil
}

func parseThin(path string, data []byte, size int64, mtime time.Time, _ string) (*binfmt.BinaryFacts, error) {
	if len(data) < 4 {
		return nil, &scanerr.MalformedBinary{Path: path, Detail: "file too short for a magic number"}
	}

	var order binary.ByteOrder
	var is64 bool
	switch types.Magic(binary.BigEndian.Uint32(data[:4])) {
	case types.Magic64:
		order, is64 = binary.BigEndian, true
	case 0xcffaedfe: // Magic64 byte-swapped
		order, is64 = binary.LittleEndian, true
	case types.Magic32:
		order, is64 = binary.BigEndian, false
	case 0xcefaedfe: // Magic32 byte-swapped
		order, is64 = binary.LittleEndian, false
	default:
		return nil, &scanerr.MalformedBinary{Path: path, Detail: "not a Mach-O magic number"}
	}

	headerSize := 28
	if is64 {
		headerSize = 32
	}
	if len(data) < headerSize {
		return nil, &scanerr.MalformedBinary{Path: path, Detail: "truncated Mach-O header"}
	}

	hdr := types.FileHeader{
		Magic:        types.Magic(order.Uint32(data[0:4])),
		CPU:          types.CPU(order.Uint32(data[4:8])),
		SubCPU:       order.Uint32(data[8:12]),
		Type:         types.HeaderFileType(order.Uint32(data[12:16])),
		NCommands:    order.Uint32(data[16:20]),
		SizeCommands: order.Uint32(data[20:24]),
		Flags:        types.HeaderFlag(order.Uint32(data[24:28])),
	}

	lc, err := walkLoadCommands(data, order, is64, headerSize, int(hdr.NCommands), int(hdr.SizeCommands))
	if err != nil {
		return nil, &scanerr.MalformedBinary{Path: path, Detail: err.Error()}
	}

	facts := &binfmt.BinaryFacts{
		Path:             path,
		Size:             size,
		MTime:            mtime,
		Format:           binfmt.FormatMachO,
		Arch:             hdr.CPU.Canonical(),
		Bits:             hdr.CPU.Bits(),
		DebugSections:    lc.debugSections,
		HasEmbeddedDebug: len(lc.debugSections) > 0,
		IsStripped:       !lc.hasSymtabWithSymbols,
		EntryPoint:       lc.entryPoint,
	}
	if facts.Bits == 0 {
		if is64 {
			facts.Bits = 64
		} else {
			facts.Bits = 32
		}
	}
	if !lc.uuid.IsNull() {
		facts.UUID = lc.uuid.String()
	}

	switch hdr.Type {
	case types.MH_EXECUTE:
		facts.Kind = binfmt.KindExecutable
	case types.MH_DYLIB, types.MH_BUNDLE:
		facts.Kind = binfmt.KindLibrary
	case types.MH_OBJECT:
		facts.Kind = binfmt.KindObject
	default:
		facts.Kind = binfmt.KindOther
	}

	facts.Mitigations = security.MachO(hdr, lc.dynamicSymbolNames)

	return facts, nil
}

type loadCommandResult struct {
	uuid                 types.UUID
	entryPoint           *uint64
	debugSections        []string
	hasSymtabWithSymbols bool
	dynamicSymbolNames   []string
}

// walkLoadCommands iterates the load-command table, refusing to step past
// ncmds/sizeofcmds, extracting the subset of commands this package needs.
func walkLoadCommands(data []byte, order binary.ByteOrder, is64 bool, start, ncmds, sizeofcmds int) (*loadCommandResult, error) {
	res := &loadCommandResult{}
	end := start + sizeofcmds
	if end > len(data) {
		return nil, fmt.Errorf("sizeofcmds %d exceeds file length", sizeofcmds)
	}

	off := start
	for i := 0; i < ncmds; i++ {
		if off+8 > end {
			return nil, fmt.Errorf("load command %d: truncated command header", i)
		}
		cmd := types.LoadCmd(order.Uint32(data[off : off+4]))
		cmdsize := order.Uint32(data[off+4 : off+8])
		if cmdsize < 8 || off+int(cmdsize) > end {
			return nil, fmt.Errorf("load command %d: invalid cmdsize %d", i, cmdsize)
		}
		body := data[off : off+int(cmdsize)]

		switch cmd {
		case types.LC_UUID:
			if len(body) >= 24 {
				copy(res.uuid[:], body[8:24])
			}
		case types.LC_MAIN:
			if len(body) >= 16 {
				v := order.Uint64(body[8:16])
				res.entryPoint = &v
			}
		case types.LC_UNIXTHREAD:
			if res.entryPoint == nil {
				if pc, ok := unixThreadPC(body, order, is64); ok {
					res.entryPoint = &pc
				}
			}
		case types.LC_SYMTAB:
			if len(body) < 24 {
				return nil, fmt.Errorf("load command %d: truncated symtab command", i)
			}
			symoff := order.Uint32(body[8:12])
			nsyms := order.Uint32(body[12:16])
			stroff := order.Uint32(body[16:20])
			strsize := order.Uint32(body[20:24])
			res.hasSymtabWithSymbols = nsyms > 0
			res.dynamicSymbolNames = readSymbolNames(data, order, is64, symoff, nsyms, stroff, strsize)
		case types.LC_SEGMENT, types.LC_SEGMENT_64:
			names, err := segmentDebugSections(body, order, is64)
			if err != nil {
				return nil, err
			}
			res.debugSections = append(res.debugSections, names...)
		}

		off += int(cmdsize)
	}
	return res, nil
}

// unixThreadPC extracts the PC/IP register from an LC_UNIXTHREAD's flavor
// payload; absent a flavor we recognize it is left unset (§4.3's "absent
// that" fallback).
func unixThreadPC(body []byte, order binary.ByteOrder, is64 bool) (uint64, bool) {
	// flavor, count, then the register state. Recognized flavors are
	// x86_THREAD_STATE64 (4), whose PC (rip) is its 17th 64-bit word
	// (state+16*8), and x86_THREAD_STATE32 (1, count 16), whose eip is its
	// 11th 32-bit word. Other flavors, arm64's included, are not read.
	const stateOff = 16
	if len(body) < stateOff {
		return 0, false
	}
	flavor, count := order.Uint32(body[8:12]), order.Uint32(body[12:16])
	if is64 {
		if flavor == 4 && len(body) >= stateOff+17*8 {
			return order.Uint64(body[stateOff+16*8 : stateOff+17*8]), true
		}
	} else if flavor == 1 && count == 16 && len(body) >= stateOff+11*4 {
		return uint64(order.Uint32(body[stateOff+10*4 : stateOff+11*4])), true
	}
	return 0, false
}

// segmentDebugSections returns the __DWARF segment's section names, in
// table order (__debug_info, __debug_abbrev, ...).
func segmentDebugSections(body []byte, order binary.ByteOrder, is64 bool) ([]string, error) {
	var segName [16]byte
	var nsect uint32
	var sectSize, headerSize int

	if is64 {
		headerSize = types.SegmentCommandSize64
		sectSize = types.Section64Size
		if len(body) < headerSize {
			return nil, fmt.Errorf("truncated segment_64 command")
		}
		copy(segName[:], body[8:24])
		nsect = order.Uint32(body[64:68])
	} else {
		headerSize = types.SegmentCommandSize32
		sectSize = types.Section32Size
		if len(body) < headerSize {
			return nil, fmt.Errorf("truncated segment command")
		}
		copy(segName[:], body[8:24])
		nsect = order.Uint32(body[48:52])
	}

	if cstr(segName[:]) != "__DWARF" {
		return nil, nil
	}

	var names []string
	off := headerSize
	for i := uint32(0); i < nsect; i++ {
		if off+sectSize > len(body) {
			return nil, fmt.Errorf("truncated section table in __DWARF segment")
		}
		var nameBuf [16]byte
		copy(nameBuf[:], body[off:off+16])
		names = append(names, cstr(nameBuf[:]))
		off += sectSize
	}
	return names, nil
}

// readSymbolNames reads the nlist symbol table's names, tolerating a
// truncated or absent string table by returning whatever it could read
// (§4.4 "must tolerate stripped dynamic tables by reporting false, never
// erroring").
func readSymbolNames(data []byte, order binary.ByteOrder, is64 bool, symoff, nsyms, stroff, strsize uint32) []string {
	entrySize := 12
	if is64 {
		entrySize = 16
	}
	strEnd := uint64(stroff) + uint64(strsize)
	if strEnd > uint64(len(data)) {
		strEnd = uint64(len(data))
	}
	if uint64(stroff) > strEnd {
		return nil
	}
	strtab := data[stroff:strEnd]

	var names []string
	for i := uint32(0); i < nsyms; i++ {
		off := uint64(symoff) + uint64(i)*uint64(entrySize)
		if off+4 > uint64(len(data)) {
			break
		}
		strx := order.Uint32(data[off : off+4])
		if uint64(strx) >= uint64(len(strtab)) {
			continue
		}
		names = append(names, cstr(strtab[strx:]))
	}
	return names
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
