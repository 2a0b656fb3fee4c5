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

// SegmentSections lists the names of the sections contained in one segment.
type SegmentSections struct {
	Segment  int
	Sections []string
}

// contains reports whether the section's address range lies within the
// segment's memory image. The comparison is done on offsets from the segment
// start so that ranges near the top of the address space do not wrap.
func contains(p ProgHeader, s SectionHeader) bool {
	return s.Addr >= p.Vaddr && s.Size <= p.Memsz && s.Addr-p.Vaddr <= p.Memsz-s.Size
}

// MapSectionsToSegments computes, for every segment in table order, the
// sections whose virtual address range falls inside the segment, in section
// table order. name resolves a section index to its name; sections whose
// name is empty are left out once containment has been decided.
func MapSectionsToSegments(progs []ProgHeader, sections []SectionHeader, name func(int) (string, error)) ([]SegmentSections, error) {
	out := make([]SegmentSections, len(progs))
	for i, p := range progs {
		out[i] = SegmentSections{Segment: i, Sections: []string{}}
		for j, s := range sections {
			if !contains(p, s) {
				continue
			}
			n, err := name(j)
			if err != nil {
				return nil, err
			}
			if n == "" {
				continue
			}
			out[i].Sections = append(out[i].Sections, n)
		}
	}
	return out, nil
}

// SegmentSections maps the file's sections onto its segments.
func (f *File) SegmentSections() ([]SegmentSections, error) {
	return MapSectionsToSegments(f.Progs, f.Sections, f.SectionName)
}
