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

// FileHeader is the decoded ELF file header, without the identification
// bytes.
type FileHeader struct {
	Type      elf.Type
	Machine   elf.Machine
	Version   elf.Version
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// DecodeFileHeader decodes the file header that follows the identification
// bytes. The field layout is the same for both classes apart from the width
// of the address and offset fields. Table offsets are not validated here,
// that happens when the tables are read.
func DecodeFileHeader(v ByteView, id Ident) (FileHeader, error) {
	l := layoutFor(id.Class)
	if v.Len() < l.ehdrSize {
		return FileHeader{}, formatError(ErrTruncatedHeader, 0, "file header", "%s header needs %d bytes, file has %d", id.Class, l.ehdrSize, v.Len())
	}

	c := newCursor(v, l, elf.EI_NIDENT)
	h := FileHeader{
		Type:      elf.Type(c.u16()),
		Machine:   elf.Machine(c.u16()),
		Version:   elf.Version(c.u32()),
		Entry:     c.word(),
		Phoff:     c.word(),
		Shoff:     c.word(),
		Flags:     c.u32(),
		Ehsize:    c.u16(),
		Phentsize: c.u16(),
		Phnum:     c.u16(),
		Shentsize: c.u16(),
		Shnum:     c.u16(),
		Shstrndx:  c.u16(),
	}
	if c.err != nil {
		return FileHeader{}, withContext(c.err, "file header")
	}
	return h, nil
}
