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
)

// GNUHashHeader is the fixed header of a SHT_GNU_HASH section.
type GNUHashHeader struct {
	Nbuckets   uint32
	Symoffset  uint32
	Bloomsize  uint32
	Bloomshift uint32
}

// DecodeGNUHash decodes the four 32-bit header words of a GNU hash section.
// The words are 32 bits wide for both classes.
func DecodeGNUHash(v ByteView) (GNUHashHeader, error) {
	c := newCursor(v, layout32, 0)
	h := GNUHashHeader{
		Nbuckets:   c.u32(),
		Symoffset:  c.u32(),
		Bloomsize:  c.u32(),
		Bloomshift: c.u32(),
	}
	if c.err != nil {
		return GNUHashHeader{}, withContext(c.err, "gnu hash header")
	}
	return h, nil
}

// GNUHash decodes the header of the file's SHT_GNU_HASH section.
func (f *File) GNUHash() (GNUHashHeader, error) {
	i, ok := f.SectionByType(elf.SHT_GNU_HASH)
	if !ok {
		return GNUHashHeader{}, formatError(ErrMissingRequiredSection, f.Header.Shoff, "section table", "no section of type %s", elf.SHT_GNU_HASH)
	}
	d, err := f.SectionData(i)
	if err != nil {
		return GNUHashHeader{}, err
	}
	return DecodeGNUHash(d)
}
