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

package elfreader

import (
	"debug/elf"
	"fmt"
)

// SectionHeader is one decoded entry of the section header table. The name
// is kept as an offset into the section name string table and resolved on
// demand with File.SectionName.
type SectionHeader struct {
	NameOff   uint32
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

// ProgHeader is one decoded entry of the program header table.
type ProgHeader struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// tableBounds checks that count records of entsize bytes starting at off
// fit into the view.
func tableBounds(v ByteView, off, entsize, count uint64, context string) error {
	total := entsize * count
	if count != 0 && total/count != entsize {
		return formatError(ErrMalformedTable, off, context, "%d entries of %d bytes overflow", count, entsize)
	}
	if err := v.check(off, total); err != nil {
		return withContext(err, context)
	}
	return nil
}

// DecodeSectionHeaders reads count section headers of stated entry size
// entsize starting at off. An absent table (off and count zero) decodes to
// an empty slice.
func DecodeSectionHeaders(v ByteView, id Ident, off uint64, entsize, count uint64) ([]SectionHeader, error) {
	if count == 0 {
		return []SectionHeader{}, nil
	}
	l := layoutFor(id.Class)
	if entsize == 0 {
		return nil, formatError(ErrMalformedTable, off, "section header table", "entry size is zero for %d entries", count)
	}
	stride, err := entrySize(entsize, l.shdrSize, off, "section header table")
	if err != nil {
		return nil, err
	}
	if err := tableBounds(v, off, stride, count, "section header table"); err != nil {
		return nil, err
	}

	sections := make([]SectionHeader, count)
	for i := range sections {
		c := newCursor(v, l, off+uint64(i)*stride)
		sections[i] = SectionHeader{
			NameOff:   c.u32(),
			Type:      elf.SectionType(c.u32()),
			Flags:     elf.SectionFlag(c.word()),
			Addr:      c.word(),
			Offset:    c.word(),
			Size:      c.word(),
			Link:      c.u32(),
			Info:      c.u32(),
			Addralign: c.word(),
			Entsize:   c.word(),
		}
		if c.err != nil {
			return nil, withContext(c.err, fmt.Sprintf("section header %d", i))
		}
	}
	return sections, nil
}

// DecodeProgHeaders reads count program headers of stated entry size entsize
// starting at off. ELF64 places p_flags right after p_type, ELF32 places it
// after p_memsz.
func DecodeProgHeaders(v ByteView, id Ident, off uint64, entsize, count uint64) ([]ProgHeader, error) {
	if count == 0 {
		return []ProgHeader{}, nil
	}
	l := layoutFor(id.Class)
	if entsize == 0 {
		return nil, formatError(ErrMalformedTable, off, "program header table", "entry size is zero for %d entries", count)
	}
	stride, err := entrySize(entsize, l.phdrSize, off, "program header table")
	if err != nil {
		return nil, err
	}
	if err := tableBounds(v, off, stride, count, "program header table"); err != nil {
		return nil, err
	}

	progs := make([]ProgHeader, count)
	for i := range progs {
		c := newCursor(v, l, off+uint64(i)*stride)
		p := &progs[i]
		p.Type = elf.ProgType(c.u32())
		if id.Class == elf.ELFCLASS64 {
			p.Flags = elf.ProgFlag(c.u32())
		}
		p.Off = c.word()
		p.Vaddr = c.word()
		p.Paddr = c.word()
		p.Filesz = c.word()
		p.Memsz = c.word()
		if id.Class == elf.ELFCLASS32 {
			p.Flags = elf.ProgFlag(c.u32())
		}
		p.Align = c.word()
		if c.err != nil {
			return nil, withContext(c.err, fmt.Sprintf("program header %d", i))
		}
	}
	return progs, nil
}
