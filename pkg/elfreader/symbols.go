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

// Symbol is one decoded symbol table entry.
type Symbol struct {
	NameOff uint32
	Name    string
	Value   uint64
	Size    uint64
	Info    uint8
	Other   uint8
	Section elf.SectionIndex
}

// Type returns the symbol type stored in the low nibble of st_info.
func (s Symbol) Type() elf.SymType { return elf.SymType(s.Info & 0xf) }

// Bind returns the symbol binding stored in the high nibble of st_info.
func (s Symbol) Bind() elf.SymBind { return elf.SymBind(s.Info >> 4) }

// Visibility returns the symbol visibility stored in the low two bits of
// st_other.
func (s Symbol) Visibility() elf.SymVis { return elf.SymVis(s.Other & 0x3) }

// SymbolTable is a decoded SHT_SYMTAB or SHT_DYNSYM section.
type SymbolTable struct {
	Index   int
	Name    string
	Header  SectionHeader
	Symbols []Symbol
}

// DecodeSymbols decodes the symbol table bytes v and resolves every name
// through strtab. ELF64 stores st_info, st_other and st_shndx before the value
// and size, ELF32 after them.
func DecodeSymbols(v ByteView, class elf.Class, entsize uint64, strtab *StringTable) ([]Symbol, error) {
	l := layoutFor(class)
	stride, err := entrySize(entsize, l.symSize, v.Base(), "symbol table")
	if err != nil {
		return nil, err
	}
	n, err := tableCount(v.Len(), stride, v.Base(), "symbol table")
	if err != nil {
		return nil, err
	}

	syms := make([]Symbol, n)
	for i := range syms {
		c := newCursor(v, l, uint64(i)*stride)
		s := &syms[i]
		s.NameOff = c.u32()
		if class == elf.ELFCLASS64 {
			s.Info = c.u8()
			s.Other = c.u8()
			s.Section = elf.SectionIndex(c.u16())
			s.Value = c.u64()
			s.Size = c.u64()
		} else {
			s.Value = uint64(c.u32())
			s.Size = uint64(c.u32())
			s.Info = c.u8()
			s.Other = c.u8()
			s.Section = elf.SectionIndex(c.u16())
		}
		if c.err != nil {
			return nil, withContext(c.err, fmt.Sprintf("symbol %d", i))
		}
		if strtab == nil {
			continue
		}
		if s.Name, err = strtab.Get(uint64(s.NameOff)); err != nil {
			return nil, withContext(err, fmt.Sprintf("name of symbol %d", i))
		}
	}
	return syms, nil
}

// Symbols decodes the static symbol table (.symtab). It fails with
// ErrMissingRequiredSection when the file has none.
func (f *File) Symbols() (*SymbolTable, error) {
	return f.symbolTable(elf.SHT_SYMTAB)
}

// DynamicSymbols decodes the dynamic symbol table (.dynsym). It fails with
// ErrMissingRequiredSection when the file has none.
func (f *File) DynamicSymbols() (*SymbolTable, error) {
	return f.symbolTable(elf.SHT_DYNSYM)
}

// SymbolTableAt decodes the symbol table in section i, e.g. the one linked
// from a relocation section.
func (f *File) SymbolTableAt(i int) (*SymbolTable, error) {
	s, err := f.section(i)
	if err != nil {
		return nil, err
	}
	if s.Type != elf.SHT_SYMTAB && s.Type != elf.SHT_DYNSYM {
		return nil, formatError(ErrMissingRequiredSection, s.Offset, fmt.Sprintf("section %d", i), "type %s is not a symbol table", s.Type)
	}
	name, err := f.SectionName(i)
	if err != nil {
		return nil, err
	}
	d, err := f.SectionData(i)
	if err != nil {
		return nil, err
	}
	strtab, err := f.StringTable(int(s.Link))
	if err != nil {
		return nil, withContext(err, name+" string table")
	}
	syms, err := DecodeSymbols(d, f.Class(), s.Entsize, strtab)
	if err != nil {
		return nil, withContext(err, name)
	}
	return &SymbolTable{
		Index:   i,
		Name:    name,
		Header:  *s,
		Symbols: syms,
	}, nil
}

func (f *File) symbolTable(t elf.SectionType) (*SymbolTable, error) {
	i, ok := f.SectionByType(t)
	if !ok {
		return nil, formatError(ErrMissingRequiredSection, f.Header.Shoff, "section table", "no section of type %s", t)
	}
	return f.SymbolTableAt(i)
}
