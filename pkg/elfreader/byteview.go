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
	"encoding/binary"
)

// ByteView is a read-only window over the bytes of an ELF file. All reads
// are bounds checked and multi-byte values are decoded with the view's byte
// order. Offsets passed to a ByteView are relative to the start of the view;
// offsets reported in errors are absolute file offsets.
type ByteView struct {
	data  []byte
	base  uint64
	order binary.ByteOrder
}

// NewByteView returns a view over data starting at file offset zero.
func NewByteView(data []byte, order binary.ByteOrder) ByteView {
	return ByteView{data: data, order: order}
}

// Len returns the number of bytes in the view.
func (v ByteView) Len() uint64 { return uint64(len(v.data)) }

// Base returns the file offset of the first byte of the view.
func (v ByteView) Base() uint64 { return v.base }

// Order returns the byte order used for multi-byte reads.
func (v ByteView) Order() binary.ByteOrder { return v.order }

// Raw returns the bytes backing the view. Callers must not modify them.
func (v ByteView) Raw() []byte { return v.data }

func (v ByteView) check(off, n uint64) error {
	if off > v.Len() || n > v.Len()-off {
		return formatError(ErrOutOfBounds, v.base+off, "", "read of %d bytes, view holds %d", n, v.Len())
	}
	return nil
}

func (v ByteView) Uint8(off uint64) (uint8, error) {
	if err := v.check(off, 1); err != nil {
		return 0, err
	}
	return v.data[off], nil
}

func (v ByteView) Uint16(off uint64) (uint16, error) {
	if err := v.check(off, 2); err != nil {
		return 0, err
	}
	return v.order.Uint16(v.data[off:]), nil
}

func (v ByteView) Uint32(off uint64) (uint32, error) {
	if err := v.check(off, 4); err != nil {
		return 0, err
	}
	return v.order.Uint32(v.data[off:]), nil
}

func (v ByteView) Uint64(off uint64) (uint64, error) {
	if err := v.check(off, 8); err != nil {
		return 0, err
	}
	return v.order.Uint64(v.data[off:]), nil
}

// Bytes returns the n bytes starting at off. The returned slice aliases the
// view.
func (v ByteView) Bytes(off, n uint64) ([]byte, error) {
	if err := v.check(off, n); err != nil {
		return nil, err
	}
	return v.data[off : off+n : off+n], nil
}

// Slice returns a view restricted to [off, off+n).
func (v ByteView) Slice(off, n uint64) (ByteView, error) {
	b, err := v.Bytes(off, n)
	if err != nil {
		return ByteView{}, err
	}
	return ByteView{data: b, base: v.base + off, order: v.order}, nil
}

// cursor walks a view sequentially, decoding fields whose width depends on
// the file class. The first failed read sticks; later reads return zero.
type cursor struct {
	v   ByteView
	l   layout
	off uint64
	err error
}

func newCursor(v ByteView, l layout, off uint64) *cursor {
	return &cursor{v: v, l: l, off: off}
}

func (c *cursor) u8() uint8 {
	if c.err != nil {
		return 0
	}
	x, err := c.v.Uint8(c.off)
	c.err = err
	c.off++
	return x
}

func (c *cursor) u16() uint16 {
	if c.err != nil {
		return 0
	}
	x, err := c.v.Uint16(c.off)
	c.err = err
	c.off += 2
	return x
}

func (c *cursor) u32() uint32 {
	if c.err != nil {
		return 0
	}
	x, err := c.v.Uint32(c.off)
	c.err = err
	c.off += 4
	return x
}

func (c *cursor) u64() uint64 {
	if c.err != nil {
		return 0
	}
	x, err := c.v.Uint64(c.off)
	c.err = err
	c.off += 8
	return x
}

// word reads an address-sized unsigned value: Elf32_Addr/Off/Word or
// Elf64_Addr/Off/Xword.
func (c *cursor) word() uint64 {
	if c.l.wordSize == 8 {
		return c.u64()
	}
	return uint64(c.u32())
}

// sword reads an address-sized signed value, sign extending on ELF32.
func (c *cursor) sword() int64 {
	if c.l.wordSize == 8 {
		return int64(c.u64())
	}
	return int64(int32(c.u32()))
}
