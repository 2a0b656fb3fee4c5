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

// DynamicEntry is one tag/value pair of the dynamic section.
type DynamicEntry struct {
	Tag elf.DynTag
	Val uint64
}

// IsString reports whether Val is an offset into the dynamic string table.
func (d DynamicEntry) IsString() bool {
	switch d.Tag {
	case elf.DT_NEEDED, elf.DT_SONAME, elf.DT_RPATH, elf.DT_RUNPATH:
		return true
	}
	return false
}

// tableCount returns the number of entries of size entsize in a section of
// size bytes.
func tableCount(size, entsize, off uint64, context string) (uint64, error) {
	if size%entsize != 0 {
		return 0, formatError(ErrMalformedTable, off, context, "size %d is not a multiple of entry size %d", size, entsize)
	}
	return size / entsize, nil
}

// DecodeDynamic decodes the entries of a dynamic section whose bytes are v
// and whose stated entry size is entsize. Decoding stops at the first DT_NULL
// entry, which is not part of the result, so trailing padding is dropped, or
// when no complete entry is left in v.
func DecodeDynamic(v ByteView, class elf.Class, entsize uint64) ([]DynamicEntry, error) {
	l := layoutFor(class)
	stride, err := entrySize(entsize, l.dynSize, v.Base(), "dynamic section")
	if err != nil {
		return nil, err
	}
	n := v.Len() / stride

	entries := make([]DynamicEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		c := newCursor(v, l, i*stride)
		d := DynamicEntry{
			Tag: elf.DynTag(c.sword()),
			Val: c.word(),
		}
		if c.err != nil {
			return nil, withContext(c.err, fmt.Sprintf("dynamic entry %d", i))
		}
		if d.Tag == elf.DT_NULL {
			break
		}
		entries = append(entries, d)
	}
	return entries, nil
}

// DynamicSection returns the index of the SHT_DYNAMIC section.
func (f *File) DynamicSection() (int, error) {
	i, ok := f.SectionByType(elf.SHT_DYNAMIC)
	if !ok {
		return 0, formatError(ErrMissingDynamicSection, f.Header.Shoff, "section table", "no section of type %s", elf.SHT_DYNAMIC)
	}
	return i, nil
}

// Dynamic decodes the dynamic section of the file.
func (f *File) Dynamic() ([]DynamicEntry, error) {
	i, err := f.DynamicSection()
	if err != nil {
		return nil, err
	}
	d, err := f.SectionData(i)
	if err != nil {
		return nil, err
	}
	return DecodeDynamic(d, f.Class(), f.Sections[i].Entsize)
}

// DynamicString resolves a string valued dynamic entry through the string
// table linked from the dynamic section.
func (f *File) DynamicString(d DynamicEntry) (string, error) {
	if !d.IsString() {
		return "", fmt.Errorf("dynamic tag %s does not hold a string", d.Tag)
	}
	i, err := f.DynamicSection()
	if err != nil {
		return "", err
	}
	strtab, err := f.StringTable(int(f.Sections[i].Link))
	if err != nil {
		return "", fmt.Errorf("dynamic string table: %w", err)
	}
	return strtab.Get(d.Val)
}
