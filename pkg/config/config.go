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

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyConfig = errors.New("empty config")
	ErrUnknownPart = errors.New("unknown report part")
)

// Part names one section of the report.
type Part string

const (
	PartHeader   Part = "header"
	PartSections Part = "sections"
	PartSegments Part = "segments"
	PartDynamic  Part = "dynamic"
	PartRelocs   Part = "relocs"
	PartSymbols  Part = "symbols"
	PartDynSyms  Part = "dynsyms"
	PartGNUHash  Part = "gnu-hash"
)

// AllParts lists every report part in output order.
var AllParts = []Part{
	PartHeader,
	PartSections,
	PartSegments,
	PartDynamic,
	PartRelocs,
	PartSymbols,
	PartDynSyms,
	PartGNUHash,
}

func (p Part) valid() bool {
	for _, q := range AllParts {
		if p == q {
			return true
		}
	}
	return false
}

// Config holds the report defaults read from the configuration file. Command
// line flags take precedence over every field.
type Config struct {
	// Parts selects the report parts to print.
	Parts []Part `yaml:"parts,omitempty"`
	// Demangle turns C++ and Rust symbol names into their source form.
	Demangle bool `yaml:"demangle,omitempty"`
	// Compiler enables compiler detection.
	Compiler bool `yaml:"compiler,omitempty"`
	// Required lists parts whose backing table must exist. A missing table
	// that is not required is reported as absent instead of failing.
	Required []Part `yaml:"required,omitempty"`
}

func (c Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<error creating config string: %s>", err)
	}
	return string(b)
}

// Validate checks that every part named in the configuration exists.
func (c *Config) Validate() error {
	var errs []error
	for _, p := range c.Parts {
		if !p.valid() {
			errs = append(errs, fmt.Errorf("parts: %w %q", ErrUnknownPart, p))
		}
	}
	for _, p := range c.Required {
		if !p.valid() {
			errs = append(errs, fmt.Errorf("required: %w %q", ErrUnknownPart, p))
		}
	}
	return errors.Join(errs...)
}

// IsRequired reports whether the table backing part p must be present.
func (c *Config) IsRequired(p Part) bool {
	for _, r := range c.Required {
		if r == p {
			return true
		}
	}
	return false
}

// Load parses the YAML input b into a Config.
func Load(b []byte) (*Config, error) {
	if len(b) == 0 {
		return nil, ErrEmptyConfig
	}

	cfg := &Config{}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile parses the given YAML file into a Config.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(content)
	if err != nil {
		return nil, fmt.Errorf("parsing YAML file %s: %w", filename, err)
	}
	return cfg, nil
}
