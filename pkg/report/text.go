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
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/parca-dev/elfinspect/pkg/config"
)

var bold = color.New(color.Bold)

// errWriter remembers the first write error so rendering code can ignore
// errors until the end.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

type textWriter struct {
	w     *errWriter
	width int
}

// WriteText renders r as readelf style text.
func WriteText(w io.Writer, r *Report) error {
	t := &textWriter{w: &errWriter{w: w}, width: r.width}
	t.file(r.File)

	for _, p := range config.AllParts {
		if !r.has(p) {
			continue
		}
		fmt.Fprintln(t.w)
		if r.isMissing(p) {
			fmt.Fprintln(t.w, absentMessage[p])
			continue
		}
		switch p {
		case config.PartHeader:
			t.header(r.Header)
		case config.PartSections:
			t.sections(r.Sections)
		case config.PartSegments:
			t.segments(r.Segments, r.Mapping)
		case config.PartDynamic:
			t.dynamic(r.Dynamic)
		case config.PartRelocs:
			t.relocations(r.Relocations)
		case config.PartSymbols:
			t.symbols(r.Symbols)
		case config.PartDynSyms:
			t.symbols(r.DynSyms)
		case config.PartGNUHash:
			t.gnuHash(r.GNUHash)
		}
	}
	return t.w.err
}

var absentMessage = map[config.Part]string{
	config.PartSymbols: "There is no static symbol table in this file.",
	config.PartDynSyms: "There is no dynamic symbol table in this file.",
	config.PartGNUHash: "There is no GNU hash section in this file.",
}

func (r *Report) has(p config.Part) bool {
	for _, q := range r.parts {
		if q == p {
			return true
		}
	}
	return false
}

func (r *Report) isMissing(p config.Part) bool {
	for _, q := range r.Missing {
		if q == p {
			return true
		}
	}
	return false
}

func (t *textWriter) title(format string, args ...interface{}) {
	bold.Fprintf(t.w, format, args...)
	fmt.Fprintln(t.w)
}

func (t *textWriter) addr(v uint64) string {
	return fmt.Sprintf("%0*x", t.width, v)
}

func (t *textWriter) table(header []string, rows [][]string) {
	tw := tablewriter.NewWriter(t.w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetBorder(false)
	tw.SetHeaderLine(false)
	tw.SetColumnSeparator("")
	tw.SetCenterSeparator("")
	tw.SetRowSeparator("")
	tw.SetTablePadding("  ")
	tw.SetNoWhiteSpace(true)
	if header != nil {
		tw.SetHeader(header)
	}
	tw.AppendBulk(rows)
	tw.Render()
}

func (t *textWriter) keyValues(rows [][]string) {
	for _, r := range rows {
		r[0] = "  " + r[0] + ":"
	}
	t.table(nil, rows)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (t *textWriter) file(f FileInfo) {
	t.title("File: %s", f.Path)
	rows := [][]string{
		{"Size", fmt.Sprintf("%s (%d bytes)", f.HumanSize, f.Size)},
		{"Checksum", f.Checksum},
	}
	if f.BuildID != "" {
		rows = append(rows, []string{"Build ID", fmt.Sprintf("%s (%s)", f.BuildID, f.BuildIDKind)})
	}
	rows = append(rows, []string{"ASLR eligible", yesNo(f.ASLR)})
	if f.TextSegment != nil {
		rows = append(rows, []string{"Text segment", strconv.Itoa(*f.TextSegment)})
	}
	if c := f.Compiler; c != nil {
		rows = append(rows, []string{"Compiler", fmt.Sprintf("%s (static: %s, stripped: %s)", c.Type, yesNo(c.Static), yesNo(c.Stripped))})
	}
	t.keyValues(rows)
}

func (t *textWriter) header(h *Header) {
	t.title("ELF Header:")
	t.keyValues([][]string{
		{"Magic", h.Magic},
		{"Class", h.Class},
		{"Data", h.Data},
		{"Version", fmt.Sprintf("%d (current)", h.Version)},
		{"OS/ABI", h.OSABI},
		{"ABI Version", strconv.Itoa(int(h.ABIVersion))},
		{"Type", h.Type},
		{"Machine", h.MachineDescription},
		{"Version", fmt.Sprintf("%#x", h.FileVersion)},
		{"Entry point address", fmt.Sprintf("%#x", h.Entry)},
		{"Start of program headers", fmt.Sprintf("%d (bytes into file)", h.Phoff)},
		{"Start of section headers", fmt.Sprintf("%d (bytes into file)", h.Shoff)},
		{"Flags", fmt.Sprintf("%#x", h.Flags)},
		{"Size of this header", fmt.Sprintf("%d (bytes)", h.Ehsize)},
		{"Size of program headers", fmt.Sprintf("%d (bytes)", h.Phentsize)},
		{"Number of program headers", strconv.Itoa(h.Phnum)},
		{"Size of section headers", fmt.Sprintf("%d (bytes)", h.Shentsize)},
		{"Number of section headers", strconv.Itoa(h.Shnum)},
		{"Section header string table index", strconv.FormatUint(uint64(h.Shstrndx), 10)},
	})
}

func (t *textWriter) sections(sections []Section) {
	if len(sections) == 0 {
		fmt.Fprintln(t.w, "There are no sections in this file.")
		return
	}
	t.title("Section Headers:")
	rows := make([][]string, len(sections))
	for i, s := range sections {
		rows[i] = []string{
			fmt.Sprintf("[%2d]", s.Index),
			s.Name,
			s.Type,
			t.addr(s.Addr),
			fmt.Sprintf("%08x", s.Offset),
			fmt.Sprintf("%016x", s.Size),
			fmt.Sprintf("%016x", s.Entsize),
			s.Flags,
			strconv.FormatUint(uint64(s.Link), 10),
			strconv.FormatUint(uint64(s.Info), 10),
			strconv.FormatUint(s.Align, 10),
		}
	}
	t.table([]string{"[Nr]", "Name", "Type", "Address", "Offset", "Size", "EntSize", "Flags", "Link", "Info", "Align"}, rows)
	fmt.Fprintln(t.w, "Key to Flags:")
	fmt.Fprintln(t.w, "  W (write), A (alloc), X (execute), M (merge), S (strings), I (info),")
	fmt.Fprintln(t.w, "  L (link order), O (extra OS processing required), G (group), T (TLS), C (compressed)")
}

func (t *textWriter) segments(segments []Segment, mapping []SegmentMapping) {
	if len(segments) == 0 {
		fmt.Fprintln(t.w, "There are no program headers in this file.")
		return
	}
	t.title("Program Headers:")
	rows := make([][]string, len(segments))
	var interp []string
	for i, s := range segments {
		rows[i] = []string{
			s.Type,
			fmt.Sprintf("%#016x", s.Offset),
			fmt.Sprintf("%#0*x", t.width, s.Vaddr),
			fmt.Sprintf("%#0*x", t.width, s.Paddr),
			fmt.Sprintf("%#016x", s.Filesz),
			fmt.Sprintf("%#016x", s.Memsz),
			s.Flags,
			fmt.Sprintf("%#x", s.Align),
		}
		if s.Interpreter != "" {
			interp = append(interp, s.Interpreter)
		}
	}
	t.table([]string{"Type", "Offset", "VirtAddr", "PhysAddr", "FileSiz", "MemSiz", "Flags", "Align"}, rows)
	for _, i := range interp {
		fmt.Fprintf(t.w, "  [Requesting program interpreter: %s]\n", i)
	}

	fmt.Fprintln(t.w)
	t.title("Section to Segment mapping:")
	rows = make([][]string, len(mapping))
	for i, m := range mapping {
		rows[i] = []string{fmt.Sprintf("%02d", m.Segment), strings.Join(m.Sections, " ")}
	}
	t.table([]string{"Segment", "Sections..."}, rows)
}

func (t *textWriter) dynamic(d *Dynamic) {
	t.title("Dynamic section at offset %#x contains %d entries:", d.Offset, len(d.Entries))
	rows := make([][]string, len(d.Entries))
	for i, e := range d.Entries {
		rows[i] = []string{"(" + e.Tag + ")", e.Value}
	}
	t.table([]string{"Type", "Name/Value"}, rows)
}

func (t *textWriter) relocations(tables []RelocationTable) {
	if len(tables) == 0 {
		fmt.Fprintln(t.w, "There are no relocations in this file.")
		return
	}
	for i, rt := range tables {
		if i > 0 {
			fmt.Fprintln(t.w)
		}
		t.title("Relocation section '%s' at offset %#x contains %d entries:", rt.Name, rt.Offset, len(rt.Entries))
		rows := make([][]string, len(rt.Entries))
		for j, r := range rt.Entries {
			rows[j] = []string{
				fmt.Sprintf("%012x", r.Offset),
				fmt.Sprintf("%012x", r.Info),
				r.Type,
				t.addr(r.SymValue),
				symbolAndAddend(r, rt.HasAddend),
			}
		}
		header := []string{"Offset", "Info", "Type", "Sym. Value", "Sym. Name"}
		if rt.HasAddend {
			header[4] = "Sym. Name + Addend"
		}
		t.table(header, rows)
	}
}

func symbolAndAddend(r Relocation, hasAddend bool) string {
	if !hasAddend {
		return r.SymName
	}
	sign, addend := "+", r.Addend
	if addend < 0 {
		sign, addend = "-", -addend
	}
	if r.SymName == "" {
		if sign == "-" {
			return fmt.Sprintf("-%x", addend)
		}
		return fmt.Sprintf("%x", addend)
	}
	return fmt.Sprintf("%s %s %x", r.SymName, sign, addend)
}

func (t *textWriter) symbols(st *SymbolTable) {
	t.title("Symbol table '%s' contains %d entries:", st.Name, len(st.Entries))
	rows := make([][]string, len(st.Entries))
	for i, s := range st.Entries {
		rows[i] = []string{
			fmt.Sprintf("%d:", s.Num),
			t.addr(s.Value),
			strconv.FormatUint(s.Size, 10),
			s.Type,
			s.Bind,
			s.Vis,
			s.Ndx,
			s.Name,
		}
	}
	t.table([]string{"Num:", "Value", "Size", "Type", "Bind", "Vis", "Ndx", "Name"}, rows)
}

func (t *textWriter) gnuHash(h *GNUHash) {
	t.title("GNU hash section:")
	t.keyValues([][]string{
		{"Buckets", strconv.FormatUint(uint64(h.Nbuckets), 10)},
		{"Symbol offset", strconv.FormatUint(uint64(h.Symoffset), 10)},
		{"Bloom size", strconv.FormatUint(uint64(h.Bloomsize), 10)},
		{"Bloom shift", strconv.FormatUint(uint64(h.Bloomshift), 10)},
	})
}
