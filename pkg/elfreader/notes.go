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
	"bytes"
	"debug/elf"
	"fmt"
)

const (
	NoteTypeGNUBuildID = 3
	NoteTypeGoBuildID  = 4
)

// Note is one entry of a SHT_NOTE section or PT_NOTE segment.
type Note struct {
	Name string
	Type uint32
	Desc []byte
}

func alignUp(x, align uint64) uint64 {
	return (x + align - 1) &^ (align - 1)
}

// ParseNotes decodes the notes stored in v. Each note starts on an align
// boundary and its descriptor is aligned as well; alignments other than 8
// are treated as 4.
func ParseNotes(v ByteView, align uint64) ([]Note, error) {
	if align != 8 {
		align = 4
	}

	var notes []Note
	c := newCursor(v, layout32, 0)
	for c.off < v.Len() {
		start := c.off
		namesz := uint64(c.u32())
		descsz := uint64(c.u32())
		typ := c.u32()
		if c.err != nil {
			return nil, withContext(c.err, fmt.Sprintf("note at %#x", v.Base()+start))
		}

		name, err := v.Bytes(c.off, namesz)
		if err != nil {
			return nil, withContext(err, "note name")
		}
		c.off = alignUp(c.off+namesz, align)

		desc, err := v.Bytes(c.off, descsz)
		if err != nil {
			return nil, withContext(err, "note descriptor")
		}
		c.off = alignUp(c.off+descsz, align)

		notes = append(notes, Note{
			Name: string(bytes.TrimRight(name, "\x00")),
			Type: typ,
			Desc: desc,
		})
	}
	return notes, nil
}

// Notes decodes every SHT_NOTE section of the file, keyed by section name.
func (f *File) Notes() (map[string][]Note, error) {
	out := map[string][]Note{}
	for i := range f.Sections {
		s := f.Sections[i]
		if s.Type != elf.SHT_NOTE {
			continue
		}
		name, err := f.SectionName(i)
		if err != nil {
			return nil, err
		}
		d, err := f.SectionData(i)
		if err != nil {
			return nil, err
		}
		notes, err := ParseNotes(d, s.Addralign)
		if err != nil {
			return nil, withContext(err, name)
		}
		out[name] = append(out[name], notes...)
	}
	return out, nil
}

// SegmentNotes decodes the notes of every PT_NOTE segment in table order.
func (f *File) SegmentNotes() ([]Note, error) {
	var out []Note
	for i, p := range f.Progs {
		if p.Type != elf.PT_NOTE {
			continue
		}
		d, err := f.v.Slice(p.Off, p.Filesz)
		if err != nil {
			return nil, withContext(err, fmt.Sprintf("note segment %d", i))
		}
		notes, err := ParseNotes(d, p.Align)
		if err != nil {
			return nil, withContext(err, fmt.Sprintf("note segment %d", i))
		}
		out = append(out, notes...)
	}
	return out, nil
}
