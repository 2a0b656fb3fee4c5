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

package buildinfo

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version                            string
	GoVersion                          string
	GoArch, GoOs, VcsRevision, VcsTime string
	VcsModified                        bool
}

func FetchBuildInfo() (*BuildInfo, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("can't read the build info")
	}
	return fromDebug(bi), nil
}

func fromDebug(bi *debug.BuildInfo) *BuildInfo {
	buildInfo := BuildInfo{
		Version:   bi.Main.Version,
		GoVersion: bi.GoVersion,
	}

	for _, setting := range bi.Settings {
		key := setting.Key
		value := setting.Value

		switch key {
		case "GOARCH":
			buildInfo.GoArch = value
		case "GOOS":
			buildInfo.GoOs = value
		case "vcs.revision":
			buildInfo.VcsRevision = value
		case "vcs.time":
			buildInfo.VcsTime = value
		case "vcs.modified":
			buildInfo.VcsModified = value == "true"
		}
	}

	return &buildInfo
}

// Override replaces fields with values injected at link time. Empty values
// are ignored.
func (b *BuildInfo) Override(version, commit, date string) {
	if version != "" {
		b.Version = version
	}
	if commit != "" {
		b.VcsRevision = commit
	}
	if date != "" {
		b.VcsTime = date
	}
}

func (b *BuildInfo) String() string {
	rev := b.VcsRevision
	if rev == "" {
		rev = "unknown"
	}
	if b.VcsModified {
		rev += "-dirty"
	}
	return fmt.Sprintf("%s (commit %s, built %s, %s %s/%s)", b.Version, rev, b.VcsTime, b.GoVersion, b.GoOs, b.GoArch)
}
