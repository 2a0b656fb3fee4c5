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
	"bytes"
)

// StringTable resolves offsets into a string table section.
type StringTable struct {
	v ByteView
}

// NewStringTable returns a string table over the bytes of v.
func NewStringTable(v ByteView) *StringTable {
	return &StringTable{v: v}
}

// Len returns the size of the table in bytes.
func (t *StringTable) Len() uint64 { return t.v.Len() }

// Get returns the string starting at off. The string ends at the first zero
// byte or at the end of the table, whichever comes first.
func (t *StringTable) Get(off uint64) (string, error) {
	if off >= t.v.Len() {
		return "", formatError(ErrStringOffsetOutOfBounds, t.v.Base()+off, "string table", "offset %d, table holds %d bytes", off, t.v.Len())
	}
	b := t.v.Raw()[off:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}
