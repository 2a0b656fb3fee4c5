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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"

	"github.com/parca-dev/elfinspect/flags"
	"github.com/parca-dev/elfinspect/pkg/buildinfo"
	"github.com/parca-dev/elfinspect/pkg/config"
	"github.com/parca-dev/elfinspect/pkg/objectfile"
	"github.com/parca-dev/elfinspect/pkg/report"
)

var (
	version string
	commit  string
	date    string
)

func main() {
	f := flags.Parse()
	logger := f.Log.NewLogger("elfinspect")

	if code := f.Validate(logger); code != flags.ExitSuccess {
		os.Exit(int(code))
	}

	if f.Version {
		bi, err := buildinfo.FetchBuildInfo()
		if err != nil {
			bi = &buildinfo.BuildInfo{}
		}
		bi.Override(version, commit, date)
		fmt.Fprintf(os.Stdout, "elfinspect, version %s\n", bi)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return inspect(ctx, logger, f, os.Stdout)
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, os.Kill))

	if err := g.Run(); err != nil {
		var sig run.SignalError
		if errors.As(err, &sig) {
			level.Info(logger).Log("msg", "interrupted", "signal", sig.Signal)
		} else {
			level.Error(logger).Log("err", err)
		}
		os.Exit(int(flags.ExitFailure))
	}
}

func inspect(ctx context.Context, logger log.Logger, f flags.Flags, w io.Writer) error {
	var cfg *config.Config
	if f.ConfigPath != "" {
		c, err := config.LoadFile(f.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		cfg = c
	}
	cfg = f.Report.Merge(cfg)
	level.Debug(logger).Log("msg", "effective configuration", "config", cfg.String())

	obj, err := objectfile.Open(f.File)
	if err != nil {
		return err
	}

	r, err := report.Build(ctx, logger, obj, report.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("%s: %w", f.File, err)
	}

	if f.Output == flags.OutputYAML {
		return report.WriteYAML(w, r)
	}
	return report.WriteText(w, r)
}
