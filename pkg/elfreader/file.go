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

// File is a parse session over the complete contents of one ELF file. It
// owns the backing buffer and is immutable once Parse returns, so all of its
// methods may be called concurrently.
type File struct {
	Ident    Ident
	Header   FileHeader
	Sections []SectionHeader
	Progs    []ProgHeader

	v        ByteView
	l        layout
	shstrndx uint32
	shstrtab *StringTable
}

// Parse decodes the identification, file header, both header tables and the
// section name string table of the ELF image in data. Everything else is
// decoded on demand. data must not be modified while the File is in use.
func Parse(data []byte) (*File, error) {
	id, err := DecodeIdent(data)
	if err != nil {
		return nil, err
	}
	v := NewByteView(data, id.ByteOrder())
	h, err := DecodeFileHeader(v, id)
	if err != nil {
		return nil, err
	}

	f := &File{
		Ident:    id,
		Header:   h,
		v:        v,
		l:        layoutFor(id.Class),
		shstrndx: uint32(h.Shstrndx),
	}

	shnum, phnum := uint64(h.Shnum), uint64(h.Phnum)
	if h.Shoff == 0 {
		shnum = 0
	}
	if h.Phoff == 0 {
		phnum = 0
	}

	// Extended numbering: counts and the name table index that do not fit
	// into the file header live in the null section header.
	if h.Shoff != 0 && (h.Shnum == 0 || h.Shstrndx == uint16(elf.SHN_XINDEX) || h.Phnum == 0xffff) {
		first, err := DecodeSectionHeaders(v, id, h.Shoff, uint64(h.Shentsize), 1)
		if err != nil {
			return nil, err
		}
		if h.Shnum == 0 {
			shnum = first[0].Size
		}
		if h.Shstrndx == uint16(elf.SHN_XINDEX) {
			f.shstrndx = first[0].Link
		}
		if h.Phnum == 0xffff {
			phnum = uint64(first[0].Info)
		}
	}

	if f.Sections, err = DecodeSectionHeaders(v, id, h.Shoff, uint64(h.Shentsize), shnum); err != nil {
		return nil, err
	}
	if f.Progs, err = DecodeProgHeaders(v, id, h.Phoff, uint64(h.Phentsize), phnum); err != nil {
		return nil, err
	}

	if f.shstrndx != uint32(elf.SHN_UNDEF) && len(f.Sections) > 0 {
		if f.shstrtab, err = f.StringTable(int(f.shstrndx)); err != nil {
			return nil, fmt.Errorf("section name table: %w", err)
		}
	}
	return f, nil
}

// Class returns the file class.
func (f *File) Class() elf.Class { return f.Ident.Class }

// Bytes returns the complete file contents. Callers must not modify them.
func (f *File) Bytes() []byte { return f.v.Raw() }

// Shstrndx returns the index of the section name string table, taking
// extended numbering into account.
func (f *File) Shstrndx() uint32 { return f.shstrndx }

func (f *File) section(i int) (*SectionHeader, error) {
	if i < 0 || i >= len(f.Sections) {
		return nil, formatError(ErrOutOfBounds, f.Header.Shoff, "section table", "index %d, table holds %d sections", i, len(f.Sections))
	}
	return &f.Sections[i], nil
}

// SectionName resolves the name of section i. Files without a section name
// table yield empty names.
func (f *File) SectionName(i int) (string, error) {
	s, err := f.section(i)
	if err != nil {
		return "", err
	}
	if f.shstrtab == nil {
		return "", nil
	}
	name, err := f.shstrtab.Get(uint64(s.NameOff))
	if err != nil {
		return "", withContext(err, fmt.Sprintf("name of section %d", i))
	}
	return name, nil
}

// SectionData returns a view over the file bytes of section i. SHT_NOBITS
// sections occupy no file space and yield an empty view.
func (f *File) SectionData(i int) (ByteView, error) {
	s, err := f.section(i)
	if err != nil {
		return ByteView{}, err
	}
	if s.Type == elf.SHT_NOBITS {
		return ByteView{base: s.Offset, order: f.v.order}, nil
	}
	d, err := f.v.Slice(s.Offset, s.Size)
	if err != nil {
		return ByteView{}, withContext(err, fmt.Sprintf("data of section %d", i))
	}
	return d, nil
}

// StringTable returns the string table stored in section i.
func (f *File) StringTable(i int) (*StringTable, error) {
	d, err := f.SectionData(i)
	if err != nil {
		return nil, err
	}
	return NewStringTable(d), nil
}

// SectionNameTable returns the section name string table, or nil if the file
// has none.
func (f *File) SectionNameTable() *StringTable { return f.shstrtab }

// SectionByType returns the index of the first section of type t.
func (f *File) SectionByType(t elf.SectionType) (int, bool) {
	for i := range f.Sections {
		if f.Sections[i].Type == t {
			return i, true
		}
	}
	return 0, false
}

// SectionByName returns the index of the first section called name.
func (f *File) SectionByName(name string) (int, error) {
	for i := range f.Sections {
		n, err := f.SectionName(i)
		if err != nil {
			return 0, err
		}
		if n == name {
			return i, nil
		}
	}
	return 0, formatError(ErrMissingRequiredSection, f.Header.Shoff, "section table", "no section named %q", name)
}
