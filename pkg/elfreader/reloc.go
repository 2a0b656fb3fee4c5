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

// Relocation is one decoded REL or RELA entry. Type is the raw,
// machine specific relocation code.
type Relocation struct {
	Off    uint64
	Sym    uint32
	Type   uint32
	Addend int64
}

// RelocationSection groups the relocations decoded from one section.
type RelocationSection struct {
	Index   int
	Name    string
	Header  SectionHeader
	Entries []Relocation
}

// splitInfo separates r_info into symbol index and type. ELF64 keeps the
// symbol in the upper 32 bits, ELF32 in the upper 24.
func splitInfo(class elf.Class, info uint64) (uint32, uint32) {
	if class == elf.ELFCLASS64 {
		return uint32(info >> 32), uint32(info)
	}
	return uint32(info >> 8), uint32(info & 0xff)
}

// DecodeRelocations decodes the relocation section bytes v. typ selects
// between SHT_REL, whose entries carry no addend, and SHT_RELA.
func DecodeRelocations(v ByteView, class elf.Class, typ elf.SectionType, entsize uint64) ([]Relocation, error) {
	l := layoutFor(class)
	natural := l.relaSize
	switch typ {
	case elf.SHT_RELA:
	case elf.SHT_REL:
		natural = l.relSize
	default:
		return nil, formatError(ErrMalformedTable, v.Base(), "relocation section", "section type %s", typ)
	}
	stride, err := entrySize(entsize, natural, v.Base(), "relocation section")
	if err != nil {
		return nil, err
	}
	n, err := tableCount(v.Len(), stride, v.Base(), "relocation section")
	if err != nil {
		return nil, err
	}

	relocs := make([]Relocation, n)
	for i := range relocs {
		c := newCursor(v, l, uint64(i)*stride)
		r := &relocs[i]
		r.Off = c.word()
		r.Sym, r.Type = splitInfo(class, c.word())
		if typ == elf.SHT_RELA {
			r.Addend = c.sword()
		}
		if c.err != nil {
			return nil, withContext(c.err, fmt.Sprintf("relocation %d", i))
		}
	}
	return relocs, nil
}

// Relocations decodes every SHT_REL and SHT_RELA section of the file, in
// section table order.
func (f *File) Relocations() ([]RelocationSection, error) {
	var out []RelocationSection
	for i := range f.Sections {
		s := f.Sections[i]
		if s.Type != elf.SHT_REL && s.Type != elf.SHT_RELA {
			continue
		}
		rs, err := f.relocationSection(i)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}

// RelocationsByName decodes the relocation section called name, e.g.
// ".rela.dyn" or ".rela.plt".
func (f *File) RelocationsByName(name string) (RelocationSection, error) {
	i, err := f.SectionByName(name)
	if err != nil {
		return RelocationSection{}, err
	}
	if t := f.Sections[i].Type; t != elf.SHT_REL && t != elf.SHT_RELA {
		return RelocationSection{}, formatError(ErrMissingRequiredSection, f.Sections[i].Offset, name, "section type is %s", t)
	}
	return f.relocationSection(i)
}

func (f *File) relocationSection(i int) (RelocationSection, error) {
	s := f.Sections[i]
	name, err := f.SectionName(i)
	if err != nil {
		return RelocationSection{}, err
	}
	d, err := f.SectionData(i)
	if err != nil {
		return RelocationSection{}, err
	}
	entries, err := DecodeRelocations(d, f.Class(), s.Type, s.Entsize)
	if err != nil {
		return RelocationSection{}, withContext(err, name)
	}
	return RelocationSection{
		Index:   i,
		Name:    name,
		Header:  s,
		Entries: entries,
	}, nil
}
