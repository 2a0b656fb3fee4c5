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
	"io"
	"io/fs"
	"time"
)

// ModTime is the modification time reported for every file of a fake FS.
var ModTime = time.Date(2024, time.March, 29, 11, 48, 20, 0, time.UTC)

type fakeinfo struct {
	name string
	size int64
}

func (i fakeinfo) Name() string       { return i.name }
func (i fakeinfo) Size() int64        { return i.size }
func (i fakeinfo) Mode() fs.FileMode  { return 0o755 }
func (i fakeinfo) ModTime() time.Time { return ModTime }
func (i fakeinfo) IsDir() bool        { return false }
func (i fakeinfo) Sys() any           { return nil }

type fakefile struct {
	info    fakeinfo
	content io.Reader
}

func (f *fakefile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *fakefile) Read(b []byte) (int, error) { return f.content.Read(b) }
func (f *fakefile) Close() error               { return nil }

type fakefs struct {
	data map[string][]byte
}

func (f *fakefs) Open(name string) (fs.File, error) {
	d, ok := f.data[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &fakefile{
		info:    fakeinfo{name: name, size: int64(len(d))},
		content: bytes.NewReader(d),
	}, nil
}

type errorfs struct{ err error }

func (f *errorfs) Open(name string) (fs.File, error) {
	return nil, f.err
}

// NewFakeFS returns an in-memory fs.FS serving files by exact name.
func NewFakeFS(files map[string][]byte) fs.FS {
	return &fakefs{files}
}

// NewErrorFS returns an fs.FS whose Open always fails with err.
func NewErrorFS(err error) fs.FS {
	return &errorfs{err}
}
