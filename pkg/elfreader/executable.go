// Copyright 2014 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package elfreader

import (
	"debug/elf"
	"errors"
)

// IsASLREligible returns whether the executable could be eligible for
// address space layout randomization (ASLR).
//
// Whether to enable ASLR for a process is decided in this kernel code
// path (https://github.com/torvalds/linux/blob/v5.0/fs/binfmt_elf.c#L955).
//
// Note(javierhonduco): This check is a bit simplistic and might not work
// for every case. It probably won't be correct for the dynamic loader itself.
func IsASLREligible(f *File) bool {
	return f.Header.Type == elf.ET_DYN
}

// FindTextProgHeader finds the executable PT_LOAD segment containing the
// .text section and returns its index in the program header table.
func FindTextProgHeader(f *File) (int, bool, error) {
	i, err := f.SectionByName(".text")
	if errors.Is(err, ErrMissingRequiredSection) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	s := f.Sections[i]
	for j, p := range f.Progs {
		// Type           Offset   VirtAddr           PhysAddr           FileSiz  MemSiz   Flg Align
		// LOAD           0x001000 0x0000000000001000 0x0000000000001000 0x0001ed 0x0001ed R E 0x1000
		if p.Type == elf.PT_LOAD && p.Flags&elf.PF_X != 0 && s.Addr >= p.Vaddr && s.Addr < p.Vaddr+p.Memsz {
			return j, true, nil
		}
	}
	return 0, false, nil
}
