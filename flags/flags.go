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

package flags

import (
	"fmt"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/parca-dev/elfinspect/pkg/config"
	"github.com/parca-dev/elfinspect/pkg/logger"
)

const (
	OutputText = "text"
	OutputYAML = "yaml"
)

// Parse parses the command line into Flags. It exits the process on usage
// errors and after printing help.
func Parse() Flags {
	flags := Flags{}
	kong.Parse(&flags, options()...)
	return flags
}

func options() []kong.Option {
	return []kong.Option{
		kong.Name("elfinspect"),
		kong.Description("Display information about the contents of ELF format files."),
		kong.UsageOnError(),
		kong.Vars{
			"default_output":     OutputText,
			"default_log_level":  "info",
			"default_log_format": logger.LogFormatLogfmt,
		},
	}
}

type Flags struct {
	Log     FlagsLogs   `embed:"" prefix:"log-"`
	Report  FlagsReport `embed:""`
	Version bool        `help:"Show application version."`

	File       string `short:"f" type:"path" help:"Path of the ELF file to inspect."`
	ConfigPath string `name:"config" type:"path" help:"Path to config file."`
	Output     string `default:"${default_output}" enum:"text,yaml" help:"Output format."`
}

// FlagsLogs provides logging configuration flags.
type FlagsLogs struct {
	Level  string `default:"${default_log_level}"  enum:"error,warn,info,debug" help:"Log level."`
	Format string `default:"${default_log_format}" enum:"logfmt,json"           help:"Configure if structured logging as JSON or as logfmt"`
}

// NewLogger builds the process logger from the log flags.
func (f FlagsLogs) NewLogger(name string) log.Logger {
	return logger.NewLogger(f.Level, f.Format, name)
}

// FlagsReport selects the parts of the report to print.
type FlagsReport struct {
	Header   bool `help:"Display the ELF file header."`
	Sections bool `help:"Display the section headers."`
	Segments bool `help:"Display the program headers and the section to segment mapping."`
	Dynamic  bool `help:"Display the dynamic section."`
	Relocs   bool `help:"Display the relocations."`
	Symbols  bool `help:"Display the symbol table."`
	DynSyms  bool `name:"dyn-syms" help:"Display the dynamic symbol table."`
	GNUHash  bool `name:"gnu-hash" help:"Display the GNU hash table header."`
	All      bool `short:"a"       help:"Equivalent to all of the selection flags above."`

	Demangle bool `short:"C" help:"Decode low-level symbol names into user-level names."`
	Compiler bool `help:"Detect the compiler that produced the file."`
}

func (f FlagsReport) selected() map[config.Part]bool {
	return map[config.Part]bool{
		config.PartHeader:   f.Header,
		config.PartSections: f.Sections,
		config.PartSegments: f.Segments,
		config.PartDynamic:  f.Dynamic,
		config.PartRelocs:   f.Relocs,
		config.PartSymbols:  f.Symbols,
		config.PartDynSyms:  f.DynSyms,
		config.PartGNUHash:  f.GNUHash,
	}
}

// Merge resolves the effective report configuration. Selection flags replace
// the parts listed in cfg; without either, only the file header is printed.
// Boolean options are enabled by either source. cfg may be nil.
func (f FlagsReport) Merge(cfg *config.Config) *config.Config {
	out := &config.Config{}
	if cfg != nil {
		*out = *cfg
	}
	out.Demangle = out.Demangle || f.Demangle
	out.Compiler = out.Compiler || f.Compiler

	if f.All {
		out.Parts = append([]config.Part{}, config.AllParts...)
		return out
	}
	sel := f.selected()
	var parts []config.Part
	for _, p := range config.AllParts {
		if sel[p] {
			parts = append(parts, p)
		}
	}
	switch {
	case len(parts) > 0:
		out.Parts = parts
	case len(out.Parts) == 0:
		out.Parts = []config.Part{config.PartHeader}
	}
	return out
}

type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitFailure ExitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	ExitParseError ExitCode = 2
)

func ParseError(logger log.Logger, msg string, args ...interface{}) ExitCode {
	level.Error(logger).Log("msg", fmt.Sprintf(msg, args...))
	return ExitParseError
}

func Failure(logger log.Logger, msg string, args ...interface{}) ExitCode {
	level.Error(logger).Log("msg", fmt.Sprintf(msg, args...))
	return ExitFailure
}

// Validate checks flag combinations kong cannot express.
func (f Flags) Validate(logger log.Logger) ExitCode {
	if f.Version {
		return ExitSuccess
	}
	if f.File == "" {
		return ParseError(logger, "The --file flag is required")
	}
	return ExitSuccess
}
