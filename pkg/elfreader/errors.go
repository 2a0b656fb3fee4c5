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
	"errors"
	"fmt"
)

var (
	ErrInvalidMagic            = errors.New("invalid ELF magic")
	ErrUnsupportedClass        = errors.New("unsupported ELF class")
	ErrUnsupportedEncoding     = errors.New("unsupported ELF data encoding")
	ErrUnsupportedVersion      = errors.New("unsupported ELF version")
	ErrTruncatedHeader         = errors.New("truncated ELF header")
	ErrOutOfBounds             = errors.New("read out of bounds")
	ErrMalformedTable          = errors.New("malformed table")
	ErrStringOffsetOutOfBounds = errors.New("string offset out of bounds")
	ErrMissingDynamicSection   = errors.New("no dynamic section")
	ErrMissingRequiredSection  = errors.New("required section not found")
)

// FormatError reports a decoding failure together with the file offset and
// the structure being decoded when it happened. Kind is one of the Err*
// sentinels of this package and can be matched with errors.Is.
type FormatError struct {
	Kind    error
	Off     uint64
	Context string
	Detail  string
}

func (e *FormatError) Error() string {
	msg := e.Kind.Error()
	if e.Context != "" {
		msg = e.Context + ": " + msg
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return fmt.Sprintf("%s at offset %#x", msg, e.Off)
}

func (e *FormatError) Unwrap() error { return e.Kind }

func formatError(kind error, off uint64, context, format string, args ...interface{}) *FormatError {
	return &FormatError{
		Kind:    kind,
		Off:     off,
		Context: context,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// withContext labels an error coming from a lower level read with the
// structure that was being decoded. Existing labels are kept as a suffix, so
// the outermost structure reads first.
func withContext(err error, context string) error {
	var fe *FormatError
	if !errors.As(err, &fe) {
		return err
	}
	c := *fe
	if c.Context == "" {
		c.Context = context
	} else {
		c.Context = context + ": " + c.Context
	}
	return &c
}
