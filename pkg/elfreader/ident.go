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
	"encoding/binary"
)

// Ident is the decoded e_ident prefix of an ELF file.
type Ident struct {
	Raw        [elf.EI_NIDENT]byte
	Class      elf.Class
	Data       elf.Data
	Version    elf.Version
	OSABI      elf.OSABI
	ABIVersion uint8
}

// ByteOrder returns the byte order every other structure is encoded with.
func (id Ident) ByteOrder() binary.ByteOrder {
	if id.Data == elf.ELFDATA2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DecodeIdent validates and decodes the identification bytes at the start of
// data. The magic is checked before anything else is looked at.
func DecodeIdent(data []byte) (Ident, error) {
	var id Ident
	if len(data) < len(elf.ELFMAG) || !bytes.Equal(data[:len(elf.ELFMAG)], []byte(elf.ELFMAG)) {
		n := len(data)
		if n > len(elf.ELFMAG) {
			n = len(elf.ELFMAG)
		}
		return id, formatError(ErrInvalidMagic, 0, "ident", "got % x", data[:n])
	}
	if len(data) < elf.EI_NIDENT {
		return id, formatError(ErrTruncatedHeader, 0, "ident", "need %d bytes, have %d", elf.EI_NIDENT, len(data))
	}
	copy(id.Raw[:], data[:elf.EI_NIDENT])

	id.Class = elf.Class(data[elf.EI_CLASS])
	switch id.Class {
	case elf.ELFCLASS32, elf.ELFCLASS64:
	default:
		return id, formatError(ErrUnsupportedClass, elf.EI_CLASS, "ident", "class %d", uint8(id.Class))
	}

	id.Data = elf.Data(data[elf.EI_DATA])
	switch id.Data {
	case elf.ELFDATA2LSB, elf.ELFDATA2MSB:
	default:
		return id, formatError(ErrUnsupportedEncoding, elf.EI_DATA, "ident", "data encoding %d", uint8(id.Data))
	}

	id.Version = elf.Version(data[elf.EI_VERSION])
	if id.Version != elf.EV_CURRENT {
		return id, formatError(ErrUnsupportedVersion, elf.EI_VERSION, "ident", "version %d", uint8(id.Version))
	}

	id.OSABI = elf.OSABI(data[elf.EI_OSABI])
	id.ABIVersion = data[elf.EI_ABIVERSION]
	return id, nil
}
