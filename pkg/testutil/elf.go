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

package testutil

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/rzajac/flexbuf"
)

// Section describes a section of a synthetic ELF image. The section name
// table is appended automatically and the null section is always index 0.
type Section struct {
	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Data      []byte
	Size      uint64 // Overrides len(Data) when non-zero.
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

// Prog describes a program header of a synthetic ELF image.
type Prog struct {
	Type   elf.ProgType
	Flags  elf.ProgFlag
	Off    uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}

// ELFBuilder lays out a minimal but well formed ELF image: file header,
// program headers, section contents, section name table and finally the
// section header table.
type ELFBuilder struct {
	Class   elf.Class
	Order   binary.ByteOrder
	Type    elf.Type
	Machine elf.Machine
	Entry   uint64
	OSABI   elf.OSABI

	Sections []Section
	Progs    []Prog

	// NoSectionHeaders omits the section header table entirely, leaving
	// e_shoff and e_shnum zero.
	NoSectionHeaders bool

	offsets map[string]uint64
}

// NewELFBuilder returns a builder for a little endian x86-64 executable.
func NewELFBuilder() *ELFBuilder {
	return &ELFBuilder{
		Class:   elf.ELFCLASS64,
		Order:   binary.LittleEndian,
		Type:    elf.ET_EXEC,
		Machine: elf.EM_X86_64,
	}
}

// Offset returns the file offset at which the named section's data was
// placed by the last call to Build.
func (b *ELFBuilder) Offset(name string) uint64 {
	return b.offsets[name]
}

func (b *ELFBuilder) is64() bool { return b.Class == elf.ELFCLASS64 }

func (b *ELFBuilder) sizes() (ehdr, phdr, shdr uint64) {
	if b.is64() {
		return 64, 56, 64
	}
	return 52, 32, 40
}

// Build encodes the image.
func (b *ELFBuilder) Build() []byte {
	ehdrSize, phdrSize, shdrSize := b.sizes()
	b.offsets = map[string]uint64{}

	sections := b.Sections
	var shstrtab []byte
	nameOffs := make([]uint32, len(sections)+2)
	if !b.NoSectionHeaders {
		shstrtab = []byte{0}
		for i, s := range sections {
			nameOffs[i+1] = uint32(len(shstrtab))
			shstrtab = append(shstrtab, s.Name...)
			shstrtab = append(shstrtab, 0)
		}
		nameOffs[len(sections)+1] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, ".shstrtab\x00"...)
		sections = append(append([]Section{}, sections...), Section{
			Name: ".shstrtab",
			Type: elf.SHT_STRTAB,
			Data: shstrtab,
		})
	}

	phoff := uint64(0)
	off := ehdrSize
	if len(b.Progs) > 0 {
		phoff = off
		off += phdrSize * uint64(len(b.Progs))
	}
	dataOffs := make([]uint64, len(sections))
	for i, s := range sections {
		off = align8(off)
		dataOffs[i] = off
		b.offsets[s.Name] = off
		off += uint64(len(s.Data))
	}
	shoff := uint64(0)
	shnum := 0
	if !b.NoSectionHeaders {
		shoff = align8(off)
		shnum = len(sections) + 1
		off = shoff + shdrSize*uint64(shnum)
	}

	buf := flexbuf.With(make([]byte, off))
	w := &fieldWriter{buf: buf, order: b.Order, is64: b.is64()}

	order := elf.ELFDATA2LSB
	if b.Order == binary.BigEndian {
		order = elf.ELFDATA2MSB
	}
	w.at(0, []byte(elf.ELFMAG), uint8(b.Class), uint8(order), uint8(elf.EV_CURRENT), uint8(b.OSABI))
	shstrndx := uint16(0)
	if !b.NoSectionHeaders {
		shstrndx = uint16(shnum - 1)
	}
	w.at(elf.EI_NIDENT,
		uint16(b.Type), uint16(b.Machine), uint32(elf.EV_CURRENT),
		w.word(b.Entry), w.word(phoff), w.word(shoff),
		uint32(0), uint16(ehdrSize),
		uint16(phdrSize), uint16(len(b.Progs)),
		uint16(shdrSize), uint16(shnum), shstrndx,
	)

	for i, p := range b.Progs {
		at := phoff + uint64(i)*phdrSize
		if b.is64() {
			w.at(at, uint32(p.Type), uint32(p.Flags), p.Off, p.Vaddr, p.Paddr, p.Filesz, p.Memsz, p.Align)
		} else {
			w.at(at, uint32(p.Type), uint32(p.Off), uint32(p.Vaddr), uint32(p.Paddr), uint32(p.Filesz), uint32(p.Memsz), uint32(p.Flags), uint32(p.Align))
		}
	}

	for i, s := range sections {
		w.at(dataOffs[i], s.Data)
		size := uint64(len(s.Data))
		if s.Size != 0 {
			size = s.Size
		}
		if b.NoSectionHeaders {
			continue
		}
		at := shoff + uint64(i+1)*shdrSize
		w.at(at,
			nameOffs[i+1], uint32(s.Type), w.word(uint64(s.Flags)),
			w.word(s.Addr), w.word(dataOffs[i]), w.word(size),
			s.Link, s.Info, w.word(s.Addralign), w.word(s.Entsize),
		)
	}
	return buf.Release()
}

func align8(x uint64) uint64 { return (x + 7) &^ 7 }

type fieldWriter struct {
	buf   *flexbuf.Buffer
	order binary.ByteOrder
	is64  bool
}

// word encodes an address sized field.
func (w *fieldWriter) word(v uint64) interface{} {
	if w.is64 {
		return v
	}
	return uint32(v)
}

// at writes fixed size values back to back starting at off.
func (w *fieldWriter) at(off uint64, vals ...interface{}) {
	var bb bytes.Buffer
	for _, v := range vals {
		if err := binary.Write(&bb, w.order, v); err != nil {
			panic(err)
		}
	}
	if _, err := w.buf.WriteAt(bb.Bytes(), int64(off)); err != nil {
		panic(err)
	}
}
