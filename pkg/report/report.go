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
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/ianlancetaylor/demangle"
	"github.com/xyproto/ainur"
	"golang.org/x/sync/errgroup"

	"github.com/parca-dev/elfinspect/pkg/buildid"
	"github.com/parca-dev/elfinspect/pkg/config"
	"github.com/parca-dev/elfinspect/pkg/elfreader"
	"github.com/parca-dev/elfinspect/pkg/hash"
	"github.com/parca-dev/elfinspect/pkg/objectfile"
	"github.com/parca-dev/elfinspect/pkg/runtime"
)

// Options selects what Build decodes. It carries the effective configuration.
type Options config.Config

// OptionsFromConfig converts the effective configuration into Options.
func OptionsFromConfig(c *config.Config) Options {
	return Options(*c)
}

func (o Options) has(p config.Part) bool {
	for _, q := range o.Parts {
		if q == p {
			return true
		}
	}
	return false
}

func (o Options) required(p config.Part) bool {
	c := config.Config(o)
	return c.IsRequired(p)
}

// Report is the decoded, name resolved view of one ELF file. Only the parts
// that were asked for are set.
type Report struct {
	File        FileInfo          `yaml:"file"`
	Header      *Header           `yaml:"header,omitempty"`
	Sections    []Section         `yaml:"sections,omitempty"`
	Segments    []Segment         `yaml:"segments,omitempty"`
	Mapping     []SegmentMapping  `yaml:"mapping,omitempty"`
	Dynamic     *Dynamic          `yaml:"dynamic,omitempty"`
	Relocations []RelocationTable `yaml:"relocations,omitempty"`
	Symbols     *SymbolTable      `yaml:"symbols,omitempty"`
	DynSyms     *SymbolTable      `yaml:"dynsyms,omitempty"`
	GNUHash     *GNUHash          `yaml:"gnu_hash,omitempty"`
	// Missing lists requested parts whose table does not exist in the file.
	Missing []config.Part `yaml:"missing,omitempty"`

	parts []config.Part
	// width is the number of hex digits of an address.
	width int
}

type FileInfo struct {
	Path        string            `yaml:"path"`
	Size        int64             `yaml:"size"`
	HumanSize   string            `yaml:"human_size"`
	Modified    time.Time         `yaml:"modified"`
	Checksum    string            `yaml:"checksum"`
	BuildID     string            `yaml:"build_id,omitempty"`
	BuildIDKind buildid.Kind      `yaml:"build_id_kind,omitempty"`
	ASLR        bool              `yaml:"aslr_eligible"`
	TextSegment *int              `yaml:"text_segment,omitempty"`
	Compiler    *runtime.Compiler `yaml:"compiler,omitempty"`
}

type Header struct {
	Magic              string `yaml:"magic"`
	Class              string `yaml:"class"`
	Data               string `yaml:"data"`
	Version            uint8  `yaml:"version"`
	OSABI              string `yaml:"os_abi"`
	ABIVersion         uint8  `yaml:"abi_version"`
	Type               string `yaml:"type"`
	Machine            string `yaml:"machine"`
	MachineDescription string `yaml:"machine_description"`
	FileVersion        uint32 `yaml:"file_version"`
	Entry              uint64 `yaml:"entry"`
	Phoff              uint64 `yaml:"phoff"`
	Shoff              uint64 `yaml:"shoff"`
	Flags              uint32 `yaml:"flags"`
	Ehsize             uint16 `yaml:"ehsize"`
	Phentsize          uint16 `yaml:"phentsize"`
	Phnum              int    `yaml:"phnum"`
	Shentsize          uint16 `yaml:"shentsize"`
	Shnum              int    `yaml:"shnum"`
	Shstrndx           uint32 `yaml:"shstrndx"`
}

type Section struct {
	Index   int    `yaml:"index"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Addr    uint64 `yaml:"addr"`
	Offset  uint64 `yaml:"offset"`
	Size    uint64 `yaml:"size"`
	Entsize uint64 `yaml:"entsize"`
	Flags   string `yaml:"flags"`
	Link    uint32 `yaml:"link"`
	Info    uint32 `yaml:"info"`
	Align   uint64 `yaml:"align"`
}

type Segment struct {
	Type        string `yaml:"type"`
	Offset      uint64 `yaml:"offset"`
	Vaddr       uint64 `yaml:"vaddr"`
	Paddr       uint64 `yaml:"paddr"`
	Filesz      uint64 `yaml:"filesz"`
	Memsz       uint64 `yaml:"memsz"`
	Flags       string `yaml:"flags"`
	Align       uint64 `yaml:"align"`
	Interpreter string `yaml:"interpreter,omitempty"`
}

type SegmentMapping struct {
	Segment  int      `yaml:"segment"`
	Sections []string `yaml:"sections"`
}

type Dynamic struct {
	Offset  uint64         `yaml:"offset"`
	Entries []DynamicEntry `yaml:"entries"`
}

type DynamicEntry struct {
	Tag   string `yaml:"tag"`
	Raw   uint64 `yaml:"raw"`
	Value string `yaml:"value"`
}

type RelocationTable struct {
	Name      string       `yaml:"name"`
	Offset    uint64       `yaml:"offset"`
	HasAddend bool         `yaml:"has_addend"`
	Entries   []Relocation `yaml:"entries"`
}

type Relocation struct {
	Offset   uint64 `yaml:"offset"`
	Info     uint64 `yaml:"info"`
	Type     string `yaml:"type"`
	SymValue uint64 `yaml:"sym_value"`
	SymName  string `yaml:"sym_name"`
	Addend   int64  `yaml:"addend"`
}

type SymbolTable struct {
	Name    string   `yaml:"name"`
	Entries []Symbol `yaml:"entries"`
}

type Symbol struct {
	Num   int    `yaml:"num"`
	Value uint64 `yaml:"value"`
	Size  uint64 `yaml:"size"`
	Type  string `yaml:"type"`
	Bind  string `yaml:"bind"`
	Vis   string `yaml:"vis"`
	Ndx   string `yaml:"ndx"`
	Name  string `yaml:"name"`
}

type GNUHash struct {
	Nbuckets   uint32 `yaml:"nbuckets"`
	Symoffset  uint32 `yaml:"symoffset"`
	Bloomsize  uint32 `yaml:"bloomsize"`
	Bloomshift uint32 `yaml:"bloomshift"`
}

// builder carries the state shared by the part decoders. The decoders run
// concurrently; each one writes only its own fields of r.
type builder struct {
	ctx    context.Context
	logger log.Logger
	f      *elfreader.File
	opts   Options
	r      *Report

	mtx     sync.Mutex
	missing map[config.Part]bool
}

// Build decodes the requested parts of obj. Independent tables are decoded
// concurrently and the first failure, or the cancellation of ctx, aborts the
// build. Optional tables that are absent are recorded in Report.Missing
// unless they are required; a requested dynamic section must exist.
func Build(ctx context.Context, logger log.Logger, obj *objectfile.ObjectFile, opts Options) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, ctx := errgroup.WithContext(ctx)

	f := obj.ELF
	b := &builder{
		ctx:     ctx,
		logger:  logger,
		f:       f,
		opts:    opts,
		r:       &Report{parts: opts.Parts, width: 16},
		missing: map[config.Part]bool{},
	}
	if f.Class() == elf.ELFCLASS32 {
		b.r.width = 8
	}
	level.Debug(logger).Log("msg", "building report", "path", obj.Path, "size", obj.Size, "sections", len(f.Sections), "segments", len(f.Progs), "parts", fmt.Sprint(opts.Parts))

	g.Go(func() error { return b.fileInfo(obj) })
	decoders := map[config.Part]func() error{
		config.PartHeader:   b.header,
		config.PartSections: b.sections,
		config.PartSegments: b.segments,
		config.PartDynamic:  b.dynamic,
		config.PartRelocs:   b.relocations,
		config.PartSymbols:  func() error { return b.symbols(config.PartSymbols, f.Symbols, &b.r.Symbols) },
		config.PartDynSyms:  func() error { return b.symbols(config.PartDynSyms, f.DynamicSymbols, &b.r.DynSyms) },
		config.PartGNUHash:  b.gnuHash,
	}
	for _, p := range config.AllParts {
		if !opts.has(p) {
			continue
		}
		g.Go(decoders[p])
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, p := range config.AllParts {
		if b.missing[p] {
			b.r.Missing = append(b.r.Missing, p)
		}
	}
	return b.r, nil
}

// absent decides what to do with a table that does not exist: an error if
// the part is required, otherwise a note in the report.
func (b *builder) absent(p config.Part, err error) error {
	if b.opts.required(p) {
		return fmt.Errorf("%s: %w", p, err)
	}
	level.Debug(b.logger).Log("msg", "skipping absent table", "part", p, "reason", err)
	b.mtx.Lock()
	b.missing[p] = true
	b.mtx.Unlock()
	return nil
}

// canceled checks ctx every few thousand entries of a table.
func (b *builder) canceled(i int) error {
	if i%4096 != 0 {
		return nil
	}
	return b.ctx.Err()
}

func (b *builder) name(s string) string {
	if b.opts.Demangle {
		return demangle.Filter(s)
	}
	return s
}

func (b *builder) fileInfo(obj *objectfile.ObjectFile) error {
	f := b.f
	sum, err := hash.Bytes(obj.Data())
	if err != nil {
		return fmt.Errorf("checksum: %w", err)
	}
	info := FileInfo{
		Path:      obj.Path,
		Size:      obj.Size,
		HumanSize: humanize.IBytes(uint64(obj.Size)),
		Modified:  obj.Modtime,
		Checksum:  hash.Hex(sum),
		ASLR:      elfreader.IsASLREligible(f),
	}

	id, err := buildid.FromELF(f)
	if err != nil {
		level.Debug(b.logger).Log("msg", "no build id", "err", err)
	} else {
		info.BuildID, info.BuildIDKind = id.ID, id.Kind
	}

	i, ok, err := elfreader.FindTextProgHeader(f)
	if err != nil {
		return fmt.Errorf("text segment: %w", err)
	}
	if ok {
		info.TextSegment = &i
	}

	if b.opts.Compiler {
		c, err := runtime.DetectCompiler(obj.Data())
		if err != nil {
			level.Warn(b.logger).Log("msg", "failed to detect compiler", "err", err)
		} else {
			info.Compiler = c
		}
	}

	b.r.File = info
	return nil
}

func (b *builder) header() error {
	f := b.f
	id, h := f.Ident, f.Header
	magic := make([]string, len(id.Raw))
	for i, c := range id.Raw {
		magic[i] = fmt.Sprintf("%02x", c)
	}
	b.r.Header = &Header{
		Magic:              strings.Join(magic, " "),
		Class:              strings.Replace(id.Class.String(), "ELFCLASS", "ELF", 1),
		Data:               dataName(id.Data),
		Version:            uint8(id.Version),
		OSABI:              trim(id.OSABI.String(), "ELFOSABI_"),
		ABIVersion:         id.ABIVersion,
		Type:               typeName(h.Type),
		Machine:            trim(h.Machine.String(), "EM_"),
		MachineDescription: ainur.Describe(h.Machine),
		FileVersion:        uint32(h.Version),
		Entry:              h.Entry,
		Phoff:              h.Phoff,
		Shoff:              h.Shoff,
		Flags:              h.Flags,
		Ehsize:             h.Ehsize,
		Phentsize:          h.Phentsize,
		Phnum:              len(f.Progs),
		Shentsize:          h.Shentsize,
		Shnum:              len(f.Sections),
		Shstrndx:           f.Shstrndx(),
	}
	return nil
}

func (b *builder) sections() error {
	f := b.f
	out := make([]Section, len(f.Sections))
	for i, s := range f.Sections {
		name, err := f.SectionName(i)
		if err != nil {
			return err
		}
		out[i] = Section{
			Index:   i,
			Name:    name,
			Type:    trim(s.Type.String(), "SHT_"),
			Addr:    s.Addr,
			Offset:  s.Offset,
			Size:    s.Size,
			Entsize: s.Entsize,
			Flags:   sectionFlags(s.Flags),
			Link:    s.Link,
			Info:    s.Info,
			Align:   s.Addralign,
		}
	}
	b.r.Sections = out
	return nil
}

func (b *builder) segments() error {
	f := b.f
	v := elfreader.NewByteView(f.Bytes(), f.Ident.ByteOrder())
	out := make([]Segment, len(f.Progs))
	for i, p := range f.Progs {
		out[i] = Segment{
			Type:   trim(p.Type.String(), "PT_"),
			Offset: p.Off,
			Vaddr:  p.Vaddr,
			Paddr:  p.Paddr,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
			Flags:  segmentFlags(p.Flags),
			Align:  p.Align,
		}
		if p.Type == elf.PT_INTERP {
			interp, err := v.Bytes(p.Off, p.Filesz)
			if err != nil {
				return fmt.Errorf("program interpreter: %w", err)
			}
			out[i].Interpreter = strings.TrimRight(string(interp), "\x00")
		}
	}

	mapping, err := f.SegmentSections()
	if err != nil {
		return err
	}
	b.r.Segments = out
	b.r.Mapping = make([]SegmentMapping, len(mapping))
	for i, m := range mapping {
		b.r.Mapping[i] = SegmentMapping{Segment: m.Segment, Sections: m.Sections}
	}
	return nil
}

func (b *builder) dynamic() error {
	f := b.f
	i, err := f.DynamicSection()
	if err != nil {
		return fmt.Errorf("%s: %w", config.PartDynamic, err)
	}
	entries, err := f.Dynamic()
	if err != nil {
		return err
	}
	d := &Dynamic{
		Offset:  f.Sections[i].Offset,
		Entries: make([]DynamicEntry, len(entries)),
	}
	for j, e := range entries {
		value, err := b.dynamicValue(e)
		if err != nil {
			return err
		}
		d.Entries[j] = DynamicEntry{
			Tag:   trim(e.Tag.String(), "DT_"),
			Raw:   e.Val,
			Value: value,
		}
	}
	b.r.Dynamic = d
	return nil
}

func (b *builder) dynamicValue(e elfreader.DynamicEntry) (string, error) {
	if e.IsString() {
		s, err := b.f.DynamicString(e)
		if err != nil {
			return "", fmt.Errorf("dynamic %s: %w", e.Tag, err)
		}
		return fmt.Sprintf("%s: [%s]", dynamicStringLabel[e.Tag], s), nil
	}
	switch e.Tag {
	case elf.DT_PLTRELSZ, elf.DT_RELASZ, elf.DT_RELAENT, elf.DT_STRSZ, elf.DT_SYMENT,
		elf.DT_RELSZ, elf.DT_RELENT, elf.DT_INIT_ARRAYSZ, elf.DT_FINI_ARRAYSZ, elf.DT_PREINIT_ARRAYSZ:
		return fmt.Sprintf("%d (bytes)", e.Val), nil
	case elf.DT_VERNEEDNUM, elf.DT_VERDEFNUM, elf.DT_RELACOUNT, elf.DT_RELCOUNT:
		return fmt.Sprintf("%d", e.Val), nil
	case elf.DT_PLTREL:
		return trim(elf.DynTag(e.Val).String(), "DT_"), nil
	}
	return fmt.Sprintf("%#x", e.Val), nil
}

var dynamicStringLabel = map[elf.DynTag]string{
	elf.DT_NEEDED:  "Shared library",
	elf.DT_SONAME:  "Library soname",
	elf.DT_RPATH:   "Library rpath",
	elf.DT_RUNPATH: "Library runpath",
}

func (b *builder) relocations() error {
	f := b.f
	sections, err := f.Relocations()
	if err != nil {
		return err
	}
	if len(sections) == 0 && b.opts.required(config.PartRelocs) {
		return fmt.Errorf("%s: %w", config.PartRelocs, elfreader.ErrMissingRequiredSection)
	}

	symtabs := map[uint32]*elfreader.SymbolTable{}
	out := make([]RelocationTable, 0, len(sections))
	for _, rs := range sections {
		var syms []elfreader.Symbol
		if link := rs.Header.Link; link != 0 {
			st, ok := symtabs[link]
			if !ok {
				if st, err = f.SymbolTableAt(int(link)); err != nil {
					return fmt.Errorf("symbols of %s: %w", rs.Name, err)
				}
				symtabs[link] = st
			}
			syms = st.Symbols
		}

		t := RelocationTable{
			Name:      rs.Name,
			Offset:    rs.Header.Offset,
			HasAddend: rs.Header.Type == elf.SHT_RELA,
			Entries:   make([]Relocation, len(rs.Entries)),
		}
		for j, r := range rs.Entries {
			if err := b.canceled(j); err != nil {
				return err
			}
			e := Relocation{
				Offset: r.Off,
				Info:   packInfo(f.Class(), r.Sym, r.Type),
				Type:   relocationType(f.Header.Machine, r.Type),
				Addend: r.Addend,
			}
			if r.Sym != 0 {
				if int(r.Sym) >= len(syms) {
					return &elfreader.FormatError{
						Kind:    elfreader.ErrMalformedTable,
						Off:     rs.Header.Offset,
						Context: rs.Name,
						Detail:  fmt.Sprintf("relocation %d references symbol %d of %d", j, r.Sym, len(syms)),
					}
				}
				s := syms[r.Sym]
				e.SymValue = s.Value
				e.SymName = b.name(s.Name)
			}
			t.Entries[j] = e
		}
		out = append(out, t)
	}
	b.r.Relocations = out
	return nil
}

func (b *builder) symbols(p config.Part, decode func() (*elfreader.SymbolTable, error), dst **SymbolTable) error {
	st, err := decode()
	if errors.Is(err, elfreader.ErrMissingRequiredSection) {
		return b.absent(p, err)
	}
	if err != nil {
		return err
	}
	t := &SymbolTable{
		Name:    st.Name,
		Entries: make([]Symbol, len(st.Symbols)),
	}
	for i, s := range st.Symbols {
		if err := b.canceled(i); err != nil {
			return err
		}
		t.Entries[i] = Symbol{
			Num:   i,
			Value: s.Value,
			Size:  s.Size,
			Type:  trim(s.Type().String(), "STT_"),
			Bind:  trim(s.Bind().String(), "STB_"),
			Vis:   trim(s.Visibility().String(), "STV_"),
			Ndx:   sectionIndex(s.Section),
			Name:  b.name(s.Name),
		}
	}
	*dst = t
	return nil
}

func (b *builder) gnuHash() error {
	h, err := b.f.GNUHash()
	if errors.Is(err, elfreader.ErrMissingRequiredSection) {
		return b.absent(config.PartGNUHash, err)
	}
	if err != nil {
		return err
	}
	b.r.GNUHash = &GNUHash{
		Nbuckets:   h.Nbuckets,
		Symoffset:  h.Symoffset,
		Bloomsize:  h.Bloomsize,
		Bloomshift: h.Bloomshift,
	}
	return nil
}
