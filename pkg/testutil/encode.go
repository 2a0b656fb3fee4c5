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

package testutil

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Sym is a symbol table entry to encode.
type Sym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

// Rel is a REL or RELA entry to encode. Info is the already packed r_info.
type Rel struct {
	Off    uint64
	Info   uint64
	Addend int64
}

// Dyn is a dynamic section entry to encode.
type Dyn struct {
	Tag int64
	Val uint64
}

func encoder(class elf.Class, order binary.ByteOrder) (*bytes.Buffer, *fieldWriter) {
	return &bytes.Buffer{}, &fieldWriter{order: order, is64: class == elf.ELFCLASS64}
}

func put(bb *bytes.Buffer, order binary.ByteOrder, vals ...interface{}) {
	for _, v := range vals {
		if err := binary.Write(bb, order, v); err != nil {
			panic(err)
		}
	}
}

// EncodeSymbols encodes syms in the symbol table layout of class.
func EncodeSymbols(class elf.Class, order binary.ByteOrder, syms ...Sym) []byte {
	bb, w := encoder(class, order)
	for _, s := range syms {
		if w.is64 {
			put(bb, order, s.Name, s.Info, s.Other, s.Shndx, s.Value, s.Size)
		} else {
			put(bb, order, s.Name, uint32(s.Value), uint32(s.Size), s.Info, s.Other, s.Shndx)
		}
	}
	return bb.Bytes()
}

// EncodeRelocations encodes rels as RELA entries, or as REL entries when
// addend is false.
func EncodeRelocations(class elf.Class, order binary.ByteOrder, addend bool, rels ...Rel) []byte {
	bb, w := encoder(class, order)
	for _, r := range rels {
		put(bb, order, w.word(r.Off), w.word(r.Info))
		if !addend {
			continue
		}
		if w.is64 {
			put(bb, order, r.Addend)
		} else {
			put(bb, order, int32(r.Addend))
		}
	}
	return bb.Bytes()
}

// EncodeDynamic encodes dynamic section entries.
func EncodeDynamic(class elf.Class, order binary.ByteOrder, dyns ...Dyn) []byte {
	bb, w := encoder(class, order)
	for _, d := range dyns {
		if w.is64 {
			put(bb, order, d.Tag, d.Val)
		} else {
			put(bb, order, int32(d.Tag), uint32(d.Val))
		}
	}
	return bb.Bytes()
}

// EncodeWords encodes 32-bit words, e.g. a GNU hash header.
func EncodeWords(order binary.ByteOrder, words ...uint32) []byte {
	var bb bytes.Buffer
	put(&bb, order, words)
	return bb.Bytes()
}

// EncodeNote encodes one note padded to align.
func EncodeNote(order binary.ByteOrder, align int, name string, typ uint32, desc []byte) []byte {
	var bb bytes.Buffer
	n := append([]byte(name), 0)
	put(&bb, order, uint32(len(n)), uint32(len(desc)), typ)
	bb.Write(n)
	for bb.Len()%align != 0 {
		bb.WriteByte(0)
	}
	bb.Write(desc)
	for bb.Len()%align != 0 {
		bb.WriteByte(0)
	}
	return bb.Bytes()
}

// StringTable builds a string table holding strs and returns the offset of
// each string.
func StringTable(strs ...string) ([]byte, map[string]uint32) {
	b := []byte{0}
	offs := map[string]uint32{"": 0}
	for _, s := range strs {
		if _, ok := offs[s]; ok {
			continue
		}
		offs[s] = uint32(len(b))
		b = append(b, s...)
		b = append(b, 0)
	}
	return b, offs
}
