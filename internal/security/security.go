// Package security derives the exploit-mitigation booleans from
// already-parsed ELF/Mach-O structures. It never opens a file itself and
// never errors: a stripped dynamic table simply yields false, using the
// same bit-test idiom as a HeaderFlag getter (PIE/NoHeapExecution/
// AllowStackExecution), retargeted from "describe this flag" to
// "derive this mitigation".
package security

import (
	"debug/elf"
	"strings"

	"github.com/19h/symwalker/internal/binfmt"
	mtypes "github.com/19h/symwalker/internal/binfmt/macho/types"
)

// ELF derives Mitigations from a parsed ELF file and its dynamic symbol
// table, per §4.4's ELF rules.
func ELF(f *elf.File) binfmt.Mitigations {
	var m binfmt.Mitigations

	hasInterp := false
	for _, p := range f.Progs {
		switch p.Type {
		case elf.PT_INTERP:
			hasInterp = true
		case elf.PT_GNU_STACK:
			m.NX = p.Flags&elf.PF_X == 0
		case elf.PT_GNU_RELRO:
			m.RELRO = true
		}
	}
	m.PIE = f.Type == elf.ET_DYN && hasInterp

	syms, err := f.DynamicSymbols()
	if err != nil {
		return m
	}
	for _, s := range syms {
		switch s.Name {
		case "__stack_chk_fail", "__stack_chk_guard":
			m.Canary = true
		}
		if strings.HasSuffix(s.Name, "_chk") {
			m.Fortify = true
		}
	}
	return m
}

// MachO derives Mitigations from a parsed Mach-O header and its symbol
// names, per §4.4's Mach-O rules. relro and fortify are always false.
func MachO(hdr mtypes.FileHeader, symbolNames []string) binfmt.Mitigations {
	m := binfmt.Mitigations{
		PIE: hdr.Flags.PIE(),
		NX:  hdr.Flags.NoHeapExecution() && !hdr.Flags.AllowStackExecution(),
	}
	for _, name := range symbolNames {
		if strings.Contains(name, "___stack_chk_fail") || strings.Contains(name, "___stack_chk_guard") {
			m.Canary = true
			break
		}
	}
	return m
}
