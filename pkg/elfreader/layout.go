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

// layout carries the class dependent widths of every structure this package
// decodes, so a single decoder per structure serves both ELF32 and ELF64.
type layout struct {
	class    elf.Class
	wordSize uint64

	ehdrSize uint64
	shdrSize uint64
	phdrSize uint64
	dynSize  uint64
	relSize  uint64
	relaSize uint64
	symSize  uint64
}

var (
	layout32 = layout{
		class:    elf.ELFCLASS32,
		wordSize: 4,
		ehdrSize: 52,
		shdrSize: 40,
		phdrSize: 32,
		dynSize:  8,
		relSize:  8,
		relaSize: 12,
		symSize:  elf.Sym32Size,
	}
	layout64 = layout{
		class:    elf.ELFCLASS64,
		wordSize: 8,
		ehdrSize: 64,
		shdrSize: 64,
		phdrSize: 56,
		dynSize:  16,
		relSize:  16,
		relaSize: 24,
		symSize:  elf.Sym64Size,
	}
)

func layoutFor(c elf.Class) layout {
	if c == elf.ELFCLASS64 {
		return layout64
	}
	return layout32
}

// entrySize validates the entry size stated in a section or file header
// against the natural size of the record. Zero means "use the natural size";
// larger sizes are tolerated and the trailing bytes of each record ignored.
func entrySize(stated, natural uint64, off uint64, context string) (uint64, error) {
	if stated == 0 {
		return natural, nil
	}
	if stated < natural {
		return 0, formatError(ErrMalformedTable, off, context, "entry size %d is smaller than %d", stated, natural)
	}
	return stated, nil
}
