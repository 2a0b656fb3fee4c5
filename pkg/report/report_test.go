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

package report

import (
	"bytes"
	"context"
	"debug/elf"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"

	"github.com/parca-dev/elfinspect/pkg/config"
	"github.com/parca-dev/elfinspect/pkg/elfreader"
	"github.com/parca-dev/elfinspect/pkg/objectfile"
	"github.com/parca-dev/elfinspect/pkg/testutil"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	goleak.VerifyTestMain(m)
}

const interp = "/lib64/ld-linux-x86-64.so.2"

func info(bind elf.SymBind, typ elf.SymType) uint8 {
	return uint8(bind)<<4 | uint8(typ)
}

// image builds a small dynamically linked executable. The .rela.dyn entries
// can be overridden to produce broken files.
func image(t *testing.T, rels ...testutil.Rel) *objectfile.ObjectFile {
	t.Helper()

	order := binary.LittleEndian
	dynstr, offs := testutil.StringTable("libc.so.6", "puts", "_ZN3foo3barEv")
	if rels == nil {
		rels = []testutil.Rel{
			{Off: 0x404018, Info: 1<<32 | uint64(elf.R_X86_64_JMP_SLOT)},
			{Off: 0x404020, Info: uint64(elf.R_X86_64_RELATIVE), Addend: 0x1130},
			{Off: 0x404028, Info: 2<<32 | uint64(elf.R_X86_64_GLOB_DAT)},
		}
	}

	b := testutil.NewELFBuilder()
	b.Sections = []testutil.Section{
		{Name: ".interp", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC, Addr: 0x400238, Data: append([]byte(interp), 0)},
		{Name: ".dynsym", Type: elf.SHT_DYNSYM, Flags: elf.SHF_ALLOC, Link: 3, Info: 1, Entsize: 24, Data: testutil.EncodeSymbols(elf.ELFCLASS64, order,
			testutil.Sym{},
			testutil.Sym{Name: offs["puts"], Info: info(elf.STB_GLOBAL, elf.STT_FUNC)},
			testutil.Sym{Name: offs["_ZN3foo3barEv"], Info: info(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: 5, Value: 0x401000, Size: 16},
		)},
		{Name: ".dynstr", Type: elf.SHT_STRTAB, Flags: elf.SHF_ALLOC, Data: dynstr},
		{Name: ".rela.dyn", Type: elf.SHT_RELA, Flags: elf.SHF_ALLOC, Link: 2, Entsize: 24, Data: testutil.EncodeRelocations(elf.ELFCLASS64, order, true, rels...)},
		{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x401000, Data: bytes.Repeat([]byte{0x90}, 16)},
		{Name: ".dynamic", Type: elf.SHT_DYNAMIC, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Link: 3, Entsize: 16, Data: testutil.EncodeDynamic(elf.ELFCLASS64, order,
			testutil.Dyn{Tag: int64(elf.DT_NEEDED), Val: uint64(offs["libc.so.6"])},
			testutil.Dyn{Tag: int64(elf.DT_STRSZ), Val: uint64(len(dynstr))},
			testutil.Dyn{Tag: int64(elf.DT_NULL)},
		)},
	}
	b.Progs = []testutil.Prog{
		{Type: elf.PT_INTERP, Flags: elf.PF_R, Vaddr: 0x400238, Paddr: 0x400238, Filesz: uint64(len(interp) + 1), Memsz: uint64(len(interp) + 1), Align: 1},
		{Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X, Vaddr: 0x401000, Paddr: 0x401000, Filesz: 16, Memsz: 16, Align: 0x1000},
	}
	b.Build()
	b.Progs[0].Off = b.Offset(".interp")
	b.Progs[1].Off = b.Offset(".text")

	data := b.Build()
	f, err := elfreader.Parse(data)
	require.NoError(t, err)
	return &objectfile.ObjectFile{
		Path:    "/usr/bin/demo",
		Size:    int64(len(data)),
		Modtime: testutil.ModTime,
		ELF:     f,
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	r, err := Build(context.Background(), log.NewNopLogger(), image(t), Options{Parts: config.AllParts})
	require.NoError(t, err)

	require.Equal(t, "/usr/bin/demo", r.File.Path)
	require.Len(t, r.File.Checksum, 16)
	require.False(t, r.File.ASLR)
	require.NotNil(t, r.File.TextSegment)
	require.Equal(t, 1, *r.File.TextSegment)
	require.Nil(t, r.File.Compiler)

	require.Equal(t, "ELF64", r.Header.Class)
	require.Equal(t, "2's complement, little endian", r.Header.Data)
	require.Equal(t, "EXEC (Executable file)", r.Header.Type)
	require.Equal(t, "X86_64", r.Header.Machine)
	require.Equal(t, 2, r.Header.Phnum)
	require.Equal(t, len(r.Sections), r.Header.Shnum)
	require.Equal(t, "7f 45 4c 46 02 01 01", r.Header.Magic[:20])

	require.Equal(t, ".rela.dyn", r.Sections[4].Name)
	require.Equal(t, "RELA", r.Sections[4].Type)
	require.Equal(t, "AX", r.Sections[5].Flags)

	require.Equal(t, "INTERP", r.Segments[0].Type)
	require.Equal(t, interp, r.Segments[0].Interpreter)
	require.Equal(t, "R E", r.Segments[1].Flags)
	require.Equal(t, []SegmentMapping{
		{Segment: 0, Sections: []string{".interp"}},
		{Segment: 1, Sections: []string{".text"}},
	}, r.Mapping)

	require.Equal(t, []DynamicEntry{
		{Tag: "NEEDED", Raw: 1, Value: "Shared library: [libc.so.6]"},
		{Tag: "STRSZ", Raw: uint64(len("libc.so.6\x00puts\x00_ZN3foo3barEv\x00") + 1), Value: "30 (bytes)"},
	}, r.Dynamic.Entries)

	require.Len(t, r.Relocations, 1)
	rt := r.Relocations[0]
	require.Equal(t, ".rela.dyn", rt.Name)
	require.True(t, rt.HasAddend)
	require.Equal(t, []Relocation{
		{Offset: 0x404018, Info: 1<<32 | 7, Type: "R_X86_64_JMP_SLOT", SymName: "puts"},
		{Offset: 0x404020, Info: 8, Type: "R_X86_64_RELATIVE", Addend: 0x1130},
		{Offset: 0x404028, Info: 2<<32 | 6, Type: "R_X86_64_GLOB_DAT", SymValue: 0x401000, SymName: "_ZN3foo3barEv"},
	}, rt.Entries)

	require.Nil(t, r.Symbols)
	require.Equal(t, ".dynsym", r.DynSyms.Name)
	require.Equal(t, Symbol{Num: 2, Value: 0x401000, Size: 16, Type: "FUNC", Bind: "GLOBAL", Vis: "DEFAULT", Ndx: "5", Name: "_ZN3foo3barEv"}, r.DynSyms.Entries[2])
	require.Equal(t, "UND", r.DynSyms.Entries[1].Ndx)

	require.Nil(t, r.GNUHash)
	require.Equal(t, []config.Part{config.PartSymbols, config.PartGNUHash}, r.Missing)
}

func TestBuildParts(t *testing.T) {
	t.Parallel()

	r, err := Build(context.Background(), log.NewNopLogger(), image(t), Options{Parts: []config.Part{config.PartDynamic}})
	require.NoError(t, err)
	require.Nil(t, r.Header)
	require.Nil(t, r.Sections)
	require.Nil(t, r.DynSyms)
	require.NotNil(t, r.Dynamic)
	require.Empty(t, r.Missing)
}

func TestBuildRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		part config.Part
	}{
		{name: "symbol table", part: config.PartSymbols},
		{name: "gnu hash", part: config.PartGNUHash},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Build(context.Background(), log.NewNopLogger(), image(t), Options{
				Parts:    []config.Part{tt.part},
				Required: []config.Part{tt.part},
			})
			require.ErrorIs(t, err, elfreader.ErrMissingRequiredSection)
			require.Contains(t, err.Error(), string(tt.part))
		})
	}
}

func TestBuildDynamicMissing(t *testing.T) {
	t.Parallel()

	b := testutil.NewELFBuilder()
	b.Sections = []testutil.Section{
		{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: 0x401000, Data: make([]byte, 16)},
	}
	data := b.Build()
	f, err := elfreader.Parse(data)
	require.NoError(t, err)
	obj := &objectfile.ObjectFile{Path: "/usr/bin/static", Size: int64(len(data)), Modtime: testutil.ModTime, ELF: f}

	tests := []struct {
		name string
		opts Options
	}{
		{name: "dynamic only", opts: Options{Parts: []config.Part{config.PartDynamic}}},
		{name: "all parts", opts: Options{Parts: config.AllParts}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Build(context.Background(), log.NewNopLogger(), obj, tt.opts)
			require.ErrorIs(t, err, elfreader.ErrMissingDynamicSection)
		})
	}

	// Other absent tables are still only reported as missing.
	r, err := Build(context.Background(), log.NewNopLogger(), obj, Options{Parts: []config.Part{config.PartSymbols, config.PartGNUHash}})
	require.NoError(t, err)
	require.Equal(t, []config.Part{config.PartSymbols, config.PartGNUHash}, r.Missing)
}

func TestBuildCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, log.NewNopLogger(), image(t), Options{Parts: config.AllParts})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	opts := OptionsFromConfig(&config.Config{
		Parts:    []config.Part{config.PartSymbols},
		Required: []config.Part{config.PartSymbols},
		Demangle: true,
	})
	require.True(t, opts.has(config.PartSymbols))
	require.False(t, opts.has(config.PartHeader))
	require.True(t, opts.required(config.PartSymbols))
	require.False(t, opts.required(config.PartGNUHash))
	require.True(t, opts.Demangle)
}

func TestBuildDemangle(t *testing.T) {
	t.Parallel()

	r, err := Build(context.Background(), log.NewNopLogger(), image(t), Options{
		Parts:    []config.Part{config.PartRelocs, config.PartDynSyms},
		Demangle: true,
	})
	require.NoError(t, err)
	require.Equal(t, "foo::bar()", r.DynSyms.Entries[2].Name)
	require.Equal(t, "foo::bar()", r.Relocations[0].Entries[2].SymName)
	require.Equal(t, "puts", r.Relocations[0].Entries[0].SymName)
}

func TestBuildRelocationSymbolOutOfRange(t *testing.T) {
	t.Parallel()

	obj := image(t, testutil.Rel{Off: 0x404018, Info: 9<<32 | uint64(elf.R_X86_64_JMP_SLOT)})
	_, err := Build(context.Background(), log.NewNopLogger(), obj, Options{Parts: []config.Part{config.PartRelocs}})
	require.ErrorIs(t, err, elfreader.ErrMalformedTable)

	var fe *elfreader.FormatError
	require.True(t, errors.As(err, &fe))
	require.Contains(t, fe.Detail, "symbol 9 of 3")
}

func TestWriteText(t *testing.T) {
	t.Parallel()

	r, err := Build(context.Background(), log.NewNopLogger(), image(t), Options{Parts: config.AllParts})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r))
	out := buf.String()

	for _, s := range []string{
		"File: /usr/bin/demo",
		"ELF Header:",
		"EXEC (Executable file)",
		"Advanced Micro Devices x86-64",
		"Section Headers:",
		".rela.dyn",
		"Program Headers:",
		"[Requesting program interpreter: " + interp + "]",
		"Section to Segment mapping:",
		"Dynamic section at offset 0x",
		"Shared library: [libc.so.6]",
		"Relocation section '.rela.dyn' at offset 0x",
		"contains 3 entries:",
		"R_X86_64_JMP_SLOT",
		"puts + 0",
		"_ZN3foo3barEv + 0",
		"Symbol table '.dynsym' contains 3 entries:",
		"There is no static symbol table in this file.",
		"There is no GNU hash section in this file.",
	} {
		require.Contains(t, out, s)
	}
}

func TestWriteTextSelectedParts(t *testing.T) {
	t.Parallel()

	r, err := Build(context.Background(), log.NewNopLogger(), image(t), Options{Parts: []config.Part{config.PartHeader}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r))
	require.Contains(t, buf.String(), "ELF Header:")
	require.NotContains(t, buf.String(), "Section Headers:")
	require.NotContains(t, buf.String(), "Relocation section")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteTextError(t *testing.T) {
	t.Parallel()

	r, err := Build(context.Background(), log.NewNopLogger(), image(t), Options{Parts: []config.Part{config.PartHeader}})
	require.NoError(t, err)
	require.EqualError(t, WriteText(failingWriter{}, r), "disk full")
}

func TestWriteYAML(t *testing.T) {
	t.Parallel()

	r, err := Build(context.Background(), log.NewNopLogger(), image(t), Options{Parts: []config.Part{config.PartHeader, config.PartSymbols}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, r))

	var got struct {
		File struct {
			Path string `yaml:"path"`
		} `yaml:"file"`
		Header struct {
			Class   string `yaml:"class"`
			Machine string `yaml:"machine"`
		} `yaml:"header"`
		Missing  []string    `yaml:"missing"`
		Sections interface{} `yaml:"sections"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, "/usr/bin/demo", got.File.Path)
	require.Equal(t, "ELF64", got.Header.Class)
	require.Equal(t, "X86_64", got.Header.Machine)
	require.Equal(t, []string{"symbols"}, got.Missing)
	require.Nil(t, got.Sections)
}
