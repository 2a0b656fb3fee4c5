// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package report

import (
	"debug/elf"
	"fmt"
	"strings"
)

func trim(s, prefix string) string {
	return strings.TrimPrefix(s, prefix)
}

func dataName(d elf.Data) string {
	switch d {
	case elf.ELFDATA2LSB:
		return "2's complement, little endian"
	case elf.ELFDATA2MSB:
		return "2's complement, big endian"
	}
	return d.String()
}

func typeName(t elf.Type) string {
	switch t {
	case elf.ET_NONE:
		return "NONE (None)"
	case elf.ET_REL:
		return "REL (Relocatable file)"
	case elf.ET_EXEC:
		return "EXEC (Executable file)"
	case elf.ET_DYN:
		return "DYN (Shared object file)"
	case elf.ET_CORE:
		return "CORE (Core file)"
	}
	return trim(t.String(), "ET_")
}

var sectionFlagLetters = []struct {
	flag   elf.SectionFlag
	letter byte
}{
	{elf.SHF_WRITE, 'W'},
	{elf.SHF_ALLOC, 'A'},
	{elf.SHF_EXECINSTR, 'X'},
	{elf.SHF_MERGE, 'M'},
	{elf.SHF_STRINGS, 'S'},
	{elf.SHF_INFO_LINK, 'I'},
	{elf.SHF_LINK_ORDER, 'L'},
	{elf.SHF_OS_NONCONFORMING, 'O'},
	{elf.SHF_GROUP, 'G'},
	{elf.SHF_TLS, 'T'},
	{elf.SHF_COMPRESSED, 'C'},
}

// sectionFlags renders section flags the way readelf's key does.
func sectionFlags(f elf.SectionFlag) string {
	var sb strings.Builder
	for _, l := range sectionFlagLetters {
		if f&l.flag != 0 {
			sb.WriteByte(l.letter)
		}
	}
	return sb.String()
}

func segmentFlags(f elf.ProgFlag) string {
	b := []byte("   ")
	if f&elf.PF_R != 0 {
		b[0] = 'R'
	}
	if f&elf.PF_W != 0 {
		b[1] = 'W'
	}
	if f&elf.PF_X != 0 {
		b[2] = 'E'
	}
	return string(b)
}

func sectionIndex(i elf.SectionIndex) string {
	switch i {
	case elf.SHN_UNDEF:
		return "UND"
	case elf.SHN_ABS:
		return "ABS"
	case elf.SHN_COMMON:
		return "COM"
	}
	return fmt.Sprintf("%d", i)
}

// packInfo rebuilds r_info from its parts for display.
func packInfo(c elf.Class, sym, typ uint32) uint64 {
	if c == elf.ELFCLASS64 {
		return uint64(sym)<<32 | uint64(typ)
	}
	return uint64(sym)<<8 | uint64(typ&0xff)
}

// relocationType names a relocation type for the machines debug/elf knows
// relocation codes of. Other machines get the number.
func relocationType(m elf.Machine, t uint32) string {
	var s fmt.Stringer
	switch m {
	case elf.EM_X86_64:
		s = elf.R_X86_64(t)
	case elf.EM_AARCH64:
		s = elf.R_AARCH64(t)
	case elf.EM_386:
		s = elf.R_386(t)
	case elf.EM_ARM:
		s = elf.R_ARM(t)
	case elf.EM_PPC64:
		s = elf.R_PPC64(t)
	case elf.EM_PPC:
		s = elf.R_PPC(t)
	case elf.EM_RISCV:
		s = elf.R_RISCV(t)
	case elf.EM_MIPS:
		s = elf.R_MIPS(t)
	case elf.EM_S390:
		s = elf.R_390(t)
	case elf.EM_SPARC, elf.EM_SPARCV9:
		s = elf.R_SPARC(t)
	case elf.EM_LOONGARCH:
		s = elf.R_LARCH(t)
	default:
		return fmt.Sprintf("%#x", t)
	}
	return s.String()
}
