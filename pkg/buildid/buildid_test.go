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

package buildid

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/elfinspect/pkg/elfreader"
	"github.com/parca-dev/elfinspect/pkg/testutil"
)

var (
	gnuID = []byte{0xea, 0x8a, 0x38, 0x01, 0x83, 0x12, 0xad, 0x15, 0x5f, 0xa7, 0x0e, 0x47, 0x1d, 0x4e, 0x00, 0x39, 0xff, 0x99, 0x71, 0xc6}
	goID  = []byte("8HZi_313fFZIwx9R85S5/pagPyamQ7GjRRvxkDrCh/VF65lKUDP8KhNqvmQ31J/Iv_9XZ3HkWjhOW0faRQX")
	text  = bytes.Repeat([]byte{0x55, 0x48, 0x89, 0xe5, 0xc3}, 13)
)

func note(name string, typ uint32, desc []byte) []byte {
	return testutil.EncodeNote(binary.LittleEndian, 4, name, typ, desc)
}

func textSection() testutil.Section {
	return testutil.Section{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x401000, Data: text}
}

func parse(t *testing.T, b *testutil.ELFBuilder) *elfreader.File {
	t.Helper()

	f, err := elfreader.Parse(b.Build())
	require.NoError(t, err)
	return f
}

func TestFromELF(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sections []testutil.Section
		want     BuildID
	}{
		{
			name: "go binary",
			sections: []testutil.Section{
				{Name: ".note.go.buildid", Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Addralign: 4, Data: note("Go", elfreader.NoteTypeGoBuildID, goID)},
				{Name: ".note.gnu.build-id", Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Addralign: 4, Data: note("GNU", elfreader.NoteTypeGNUBuildID, gnuID)},
				textSection(),
			},
			want: BuildID{Kind: KindGo, ID: hex.EncodeToString(goID)},
		},
		{
			name: "gnu build id",
			sections: []testutil.Section{
				{Name: ".note.gnu.build-id", Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Addralign: 4, Data: note("GNU", elfreader.NoteTypeGNUBuildID, gnuID)},
				textSection(),
			},
			want: BuildID{Kind: KindGNU, ID: "ea8a38018312ad155fa70e471d4e0039ff9971c6"},
		},
		{
			name: "gnu build id in a differently named note section",
			sections: []testutil.Section{
				{Name: ".note.ABI-tag", Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Addralign: 4, Data: note("GNU", 1, []byte{0, 0, 0, 0, 3, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0})},
				{Name: ".note.build", Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Addralign: 4, Data: note("GNU", elfreader.NoteTypeGNUBuildID, gnuID[:8])},
				textSection(),
			},
			want: BuildID{Kind: KindGNU, ID: "ea8a38018312ad15"},
		},
		{
			name: "go note without go id falls back to text hash",
			sections: []testutil.Section{
				{Name: ".note.go.buildid", Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Addralign: 4, Data: note("Go", 99, goID)},
				textSection(),
			},
			want: BuildID{Kind: KindHash, ID: fmt.Sprintf("%016x", xxhash.Sum64(text))},
		},
		{
			name:     "text hash",
			sections: []testutil.Section{textSection()},
			want:     BuildID{Kind: KindHash, ID: fmt.Sprintf("%016x", xxhash.Sum64(text))},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := testutil.NewELFBuilder()
			b.Sections = tt.sections
			got, err := FromELF(parse(t, b))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFromELFSegmentNote(t *testing.T) {
	b := testutil.NewELFBuilder()
	b.NoSectionHeaders = true
	b.Sections = []testutil.Section{
		{Name: "note", Data: note("GNU", elfreader.NoteTypeGNUBuildID, gnuID)},
	}
	n := uint64(len(b.Sections[0].Data))
	b.Progs = []testutil.Prog{{Type: elf.PT_NOTE, Flags: elf.PF_R, Align: 4, Filesz: n, Memsz: n}}
	b.Build()
	b.Progs[0].Off = b.Offset("note")

	got, err := FromELF(parse(t, b))
	require.NoError(t, err)
	require.Equal(t, BuildID{Kind: KindGNU, ID: hex.EncodeToString(gnuID)}, got)
	require.Equal(t, hex.EncodeToString(gnuID)+" (gnu)", got.String())
}

func TestFromELFErrors(t *testing.T) {
	b := testutil.NewELFBuilder()
	b.Sections = []testutil.Section{
		{Name: ".data", Type: elf.SHT_PROGBITS, Data: []byte{1, 2, 3, 4}},
	}
	_, err := FromELF(parse(t, b))
	require.ErrorIs(t, err, elfreader.ErrMissingRequiredSection)

	twice := append(note("GNU", elfreader.NoteTypeGNUBuildID, gnuID), note("GNU", elfreader.NoteTypeGNUBuildID, gnuID)...)
	b.Sections = []testutil.Section{
		{Name: ".notes", Type: elf.SHT_NOTE, Addralign: 4, Data: twice},
		textSection(),
	}
	_, err = FromELF(parse(t, b))
	require.ErrorIs(t, err, errMultipleBuildID)
}
