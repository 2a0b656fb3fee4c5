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
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/parca-dev/elfinspect/pkg/testutil"
)

func ident(class, data, version byte) []byte {
	b := make([]byte, elf.EI_NIDENT)
	copy(b, elf.ELFMAG)
	b[elf.EI_CLASS] = class
	b[elf.EI_DATA] = data
	b[elf.EI_VERSION] = version
	return b
}

func TestDecodeIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   []byte
		want    Ident
		wantErr error
	}{
		{
			name:  "64-bit little endian",
			input: append(ident(2, 1, 1), 0xff),
			want: Ident{
				Class:   elf.ELFCLASS64,
				Data:    elf.ELFDATA2LSB,
				Version: elf.EV_CURRENT,
				OSABI:   elf.ELFOSABI_NONE,
			},
		},
		{
			name:  "32-bit big endian",
			input: ident(1, 2, 1),
			want: Ident{
				Class:   elf.ELFCLASS32,
				Data:    elf.ELFDATA2MSB,
				Version: elf.EV_CURRENT,
				OSABI:   elf.ELFOSABI_NONE,
			},
		},
		{
			name:    "wrong last magic byte",
			input:   []byte{0x7f, 0x45, 0x4c, 0x40, 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			wantErr: ErrInvalidMagic,
		},
		{
			name:    "shorter than magic",
			input:   []byte{0x7f, 0x45},
			wantErr: ErrInvalidMagic,
		},
		{
			name:    "magic only",
			input:   []byte(elf.ELFMAG),
			wantErr: ErrTruncatedHeader,
		},
		{
			name:    "unknown class",
			input:   ident(3, 1, 1),
			wantErr: ErrUnsupportedClass,
		},
		{
			name:    "no class",
			input:   ident(0, 1, 1),
			wantErr: ErrUnsupportedClass,
		},
		{
			name:    "unknown data encoding",
			input:   ident(2, 0, 1),
			wantErr: ErrUnsupportedEncoding,
		},
		{
			name:    "unknown version",
			input:   ident(2, 1, 2),
			wantErr: ErrUnsupportedVersion,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeIdent(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.want.Raw = [elf.EI_NIDENT]byte(tt.input[:elf.EI_NIDENT])
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeIdent() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeIdentInvalidMagicReportsOffset(t *testing.T) {
	_, err := DecodeIdent([]byte{0x7f, 0x45, 0x4c, 0x40})
	require.ErrorIs(t, err, ErrInvalidMagic)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, uint64(0), fe.Off)
	require.Contains(t, err.Error(), "7f 45 4c 40")
}

func TestIdentByteOrder(t *testing.T) {
	require.Equal(t, binary.LittleEndian, Ident{Data: elf.ELFDATA2LSB}.ByteOrder())
	require.Equal(t, binary.BigEndian, Ident{Data: elf.ELFDATA2MSB}.ByteOrder())
}

func TestDecodeFileHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		builder func() *testutil.ELFBuilder
		want    FileHeader
	}{
		{
			name: "64-bit little endian executable",
			builder: func() *testutil.ELFBuilder {
				b := testutil.NewELFBuilder()
				b.Entry = 0x401000
				b.Progs = []testutil.Prog{{Type: elf.PT_LOAD}}
				return b
			},
			want: FileHeader{
				Type:      elf.ET_EXEC,
				Machine:   elf.EM_X86_64,
				Version:   elf.EV_CURRENT,
				Entry:     0x401000,
				Phoff:     64,
				Shoff:     136,
				Ehsize:    64,
				Phentsize: 56,
				Phnum:     1,
				Shentsize: 64,
				Shnum:     2,
				Shstrndx:  1,
			},
		},
		{
			name: "32-bit big endian shared object",
			builder: func() *testutil.ELFBuilder {
				b := testutil.NewELFBuilder()
				b.Class = elf.ELFCLASS32
				b.Order = binary.BigEndian
				b.Type = elf.ET_DYN
				b.Machine = elf.EM_PPC
				b.Entry = 0x10000400
				b.NoSectionHeaders = true
				return b
			},
			want: FileHeader{
				Type:      elf.ET_DYN,
				Machine:   elf.EM_PPC,
				Version:   elf.EV_CURRENT,
				Entry:     0x10000400,
				Ehsize:    52,
				Phentsize: 32,
				Shentsize: 40,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := tt.builder().Build()
			id, err := DecodeIdent(data)
			require.NoError(t, err)
			got, err := DecodeFileHeader(NewByteView(data, id.ByteOrder()), id)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeFileHeader() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeFileHeaderTruncated(t *testing.T) {
	data := testutil.NewELFBuilder().Build()[:63]
	id, err := DecodeIdent(data)
	require.NoError(t, err)

	_, err = DecodeFileHeader(NewByteView(data, id.ByteOrder()), id)
	require.ErrorIs(t, err, ErrTruncatedHeader)

	_, err = Parse(data)
	require.ErrorIs(t, err, ErrTruncatedHeader)
}

func TestParseIsIdempotent(t *testing.T) {
	b := testutil.NewELFBuilder()
	b.Sections = []testutil.Section{
		{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x1000, Data: make([]byte, 16)},
	}
	b.Progs = []testutil.Prog{{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Vaddr: 0x1000, Memsz: 16}}
	data := b.Build()

	first, err := Parse(data)
	require.NoError(t, err)
	second, err := Parse(data)
	require.NoError(t, err)

	require.Equal(t, first.Ident, second.Ident)
	require.Equal(t, first.Header, second.Header)
	require.Equal(t, first.Sections, second.Sections)
	require.Equal(t, first.Progs, second.Progs)
}
