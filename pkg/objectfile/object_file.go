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

package objectfile

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/parca-dev/elfinspect/pkg/elfreader"
)

// ObjectFile is an ELF file read completely into memory.
type ObjectFile struct {
	Path    string
	Size    int64
	Modtime time.Time

	// ELF is parsed from Data and borrows it.
	ELF *elfreader.File
}

// Data returns the file contents.
func (o *ObjectFile) Data() []byte { return o.ELF.Bytes() }

// Open reads and parses the ELF file at path.
func Open(path string) (*ObjectFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	o, err := OpenFS(os.DirFS(filepath.Dir(abs)), filepath.Base(abs))
	if err != nil {
		return nil, err
	}
	o.Path = path
	return o, nil
}

// OpenFS reads and parses the named ELF file of fsys. The magic number is
// checked before the rest of the file is read.
func OpenFS(fsys fs.FS, name string) (_ *ObjectFile, err error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil {
			err = errors.Join(err, cErr)
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat the file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s is a directory", name)
	}

	header, err := readMagic(f)
	if err != nil {
		return nil, fmt.Errorf("failed check whether file is an ELF file %s: %w", name, err)
	}
	if string(header) != elf.ELFMAG {
		return nil, fmt.Errorf("unrecognized binary format: %s: %w", name, elfreader.ErrInvalidMagic)
	}

	buf := bytes.NewBuffer(make([]byte, 0, stat.Size()))
	buf.Write(header)
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	ef, err := elfreader.Parse(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", name, err)
	}
	return &ObjectFile{
		Path:    name,
		Size:    int64(buf.Len()),
		Modtime: stat.ModTime(),
		ELF:     ef,
	}, nil
}

// readMagic reads the first 4 bytes of the file. Shorter files yield what
// they have.
func readMagic(r io.Reader) ([]byte, error) {
	var header [4]byte
	n, err := io.ReadFull(r, header[:])
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return header[:n], err
}
