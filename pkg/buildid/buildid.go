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
	"debug/elf"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/parca-dev/elfinspect/pkg/elfreader"
)

// Kind tells where a build ID came from.
type Kind string

const (
	KindGo   Kind = "go"
	KindGNU  Kind = "gnu"
	KindHash Kind = "text-hash"
)

var (
	errNoBuildID       = errors.New("failed to find build id")
	errMultipleBuildID = errors.New("multiple build ids found, don't know which to use")
)

// BuildID is the hex encoded identifier of a binary.
type BuildID struct {
	Kind Kind
	ID   string
}

func (b BuildID) String() string {
	return fmt.Sprintf("%s (%s)", b.ID, b.Kind)
}

// FromELF returns the build ID of f. Go build IDs take precedence, then the
// GNU build ID note. Binaries without either are identified by the xxhash of
// their .text section.
func FromELF(f *elfreader.File) (BuildID, error) {
	// First, try fast methods.
	if _, err := f.SectionByName(".note.go.buildid"); err == nil {
		if id, err := fastGo(f); err == nil && len(id) > 0 {
			return BuildID{Kind: KindGo, ID: hex.EncodeToString(id)}, nil
		}
	}
	if id, err := fastGNU(f); err == nil && len(id) > 0 {
		return BuildID{Kind: KindGNU, ID: hex.EncodeToString(id)}, nil
	}

	// If that fails, try the slow methods.
	return buildid(f)
}

// buildid returns the build id for an ELF binary by:
// 1. First, looking for a GNU build-id note.
// 2. If fails, hashing the .text section.
func buildid(f *elfreader.File) (BuildID, error) {
	// Search through all the notes for a GNU build ID.
	b, err := slowGNU(f)
	if err != nil && !errors.Is(err, errNoBuildID) {
		return BuildID{}, fmt.Errorf("get elf build id: %w", err)
	}
	if b != nil {
		return BuildID{Kind: KindGNU, ID: hex.EncodeToString(b)}, nil
	}

	// Hash the .text section.
	i, err := f.SectionByName(".text")
	if err != nil {
		return BuildID{}, fmt.Errorf("could not find .text section: %w", err)
	}
	text, err := f.SectionData(i)
	if err != nil {
		return BuildID{}, fmt.Errorf("hash elf .text section: %w", err)
	}
	h := xxhash.New()
	_, _ = h.Write(text.Raw())

	return BuildID{Kind: KindHash, ID: hex.EncodeToString(h.Sum(nil))}, nil
}

func find(name string, typ uint32) func([]elfreader.Note) ([]byte, error) {
	return func(notes []elfreader.Note) ([]byte, error) {
		var buildID []byte
		for _, note := range notes {
			if note.Name != name || note.Type != typ {
				continue
			}
			if buildID != nil {
				return nil, errMultipleBuildID
			}
			buildID = note.Desc
		}
		return buildID, nil
	}
}

var (
	findGo  = find("Go", elfreader.NoteTypeGoBuildID)
	findGNU = find("GNU", elfreader.NoteTypeGNUBuildID)
)

// fastGo returns the Go build-ID for an ELF binary by searching specific locations.
func fastGo(f *elfreader.File) ([]byte, error) {
	return findInNotes(f, ".note.go.buildid", findGo)
}

// fastGNU returns the GNU build-ID for an ELF binary by searching specific locations.
func fastGNU(f *elfreader.File) ([]byte, error) {
	return findInNotes(f, ".note.gnu.build-id", findGNU)
}

func findInNotes(f *elfreader.File, section string, find func([]elfreader.Note) ([]byte, error)) ([]byte, error) {
	i, err := f.SectionByName(section)
	if err != nil {
		return nil, err
	}
	d, err := f.SectionData(i)
	if err != nil {
		return nil, err
	}
	notes, err := elfreader.ParseNotes(d, f.Sections[i].Addralign)
	if err != nil {
		return nil, err
	}
	if b, err := find(notes); b != nil || err != nil {
		return b, err
	}
	return nil, errNoBuildID
}

// slowGNU returns the GNU build-ID for an ELF binary by searching through all
// note segments and then all note sections.
func slowGNU(f *elfreader.File) ([]byte, error) {
	notes, err := f.SegmentNotes()
	if err != nil {
		return nil, err
	}
	if b, err := findGNU(notes); b != nil || err != nil {
		return b, err
	}

	for i := range f.Sections {
		if f.Sections[i].Type != elf.SHT_NOTE {
			continue
		}
		d, err := f.SectionData(i)
		if err != nil {
			return nil, err
		}
		notes, err := elfreader.ParseNotes(d, f.Sections[i].Addralign)
		if err != nil {
			return nil, err
		}
		if b, err := findGNU(notes); b != nil || err != nil {
			return b, err
		}
	}
	return nil, errNoBuildID
}
