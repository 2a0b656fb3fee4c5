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

package runtime

import (
	"bytes"
	"debug/elf"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/xyproto/ainur"
)

type Compiler struct {
	Runtime `yaml:",inline"`

	Type     string `yaml:"type"`
	Stripped bool   `yaml:"stripped"`
	Static   bool   `yaml:"static"`
}

// DetectCompiler probes the ELF image in data for the compiler that produced
// it. The image is opened with debug/elf because that is what the probes
// expect.
func DetectCompiler(data []byte) (*Compiler, error) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	defer ef.Close()

	cType := ainur.Compiler(ef)
	compiler := &Compiler{
		Runtime: Runtime{
			Name: RuntimeName(name(cType)),
		},
		Type:     cType,
		Static:   ainur.Static(ef),
		Stripped: ainur.Stripped(ef),
	}
	if v := version(cType); v != nil {
		compiler.Version = v.String()
	}
	return compiler, nil
}

func name(cType string) string {
	parts := strings.Split(cType, " ")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "unknown"
}

func version(cType string) *semver.Version {
	parts := strings.Split(cType, " ")
	if len(parts) < 2 {
		return nil
	}
	ver, err := semver.NewVersion(parts[1])
	if err != nil {
		return nil
	}
	return ver
}
