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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parca-dev/elfinspect/pkg/testutil"
)

func TestIsASLREligible(t *testing.T) {
	for _, typ := range []elf.Type{elf.ET_REL, elf.ET_EXEC, elf.ET_DYN, elf.ET_CORE} {
		b := testutil.NewELFBuilder()
		b.Type = typ
		f, err := Parse(b.Build())
		require.NoError(t, err)
		require.Equal(t, typ == elf.ET_DYN, IsASLREligible(f), typ.String())
	}
}

func TestFindTextProgHeader(t *testing.T) {
	t.Parallel()

	text := testutil.Section{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x1040, Data: make([]byte, 0x1ad)}
	rodata := testutil.Section{Name: ".rodata", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC, Addr: 0x2000, Data: make([]byte, 0x10)}

	tests := []struct {
		name     string
		sections []testutil.Section
		progs    []testutil.Prog
		want     int
		found    bool
	}{
		{
			name:     "executable load segment",
			sections: []testutil.Section{rodata, text},
			progs: []testutil.Prog{
				{Type: elf.PT_PHDR, Flags: elf.PF_R, Vaddr: 0x40, Memsz: 0x2d8},
				{Type: elf.PT_LOAD, Flags: elf.PF_R, Vaddr: 0, Memsz: 0x628},
				{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Vaddr: 0x1000, Memsz: 0x1ed},
				{Type: elf.PT_LOAD, Flags: elf.PF_R, Vaddr: 0x2000, Memsz: 0x134},
			},
			want:  2,
			found: true,
		},
		{
			name:     "text outside any executable segment",
			sections: []testutil.Section{text},
			progs: []testutil.Prog{
				{Type: elf.PT_LOAD, Flags: elf.PF_R, Vaddr: 0x1000, Memsz: 0x1ed},
			},
		},
		{
			name:     "no text section",
			sections: []testutil.Section{rodata},
			progs: []testutil.Prog{
				{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Vaddr: 0x1000, Memsz: 0x1000},
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := testutil.NewELFBuilder()
			b.Type = elf.ET_DYN
			b.Sections = tt.sections
			b.Progs = tt.progs
			f, err := Parse(b.Build())
			require.NoError(t, err)

			got, found, err := FindTextProgHeader(f)
			require.NoError(t, err)
			require.Equal(t, tt.found, found)
			require.Equal(t, tt.want, got)
		})
	}
}
