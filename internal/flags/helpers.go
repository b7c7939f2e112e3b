// Copyright 2020 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package flags

import (
	"fmt"
	"os"
	"strings"

	"github.com/sunyihoo/go-wsrpc/internal/version"
	"github.com/sunyihoo/go-wsrpc/log"
	"github.com/urfave/cli/v2"
)

// NewApp creates an app with sane defaults.
func NewApp(usage string) *cli.App {
	git, _ := version.VCS()
	app := cli.NewApp()
	app.EnableBashCompletion = true
	app.Version = version.WithCommit(git.Commit, git.Date)
	app.Usage = usage
	app.Copyright = "Copyright 2024-2026 The go-wsrpc Authors"
	return app
}

// Merge merges the given flag slices.
func Merge(groups ...[]cli.Flag) []cli.Flag {
	var ret []cli.Flag
	for _, group := range groups {
		ret = append(ret, group...)
	}
	return ret
}

// CheckEnvVars iterates over all the environment variables and checks if any of
// them look like a CLI flag but is not consumed. This can be used to detect
// typos or mistakes in the environment.
func CheckEnvVars(ctx *cli.Context, flags []cli.Flag, prefix string) {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	var known = make(map[string]string)
	for _, f := range flags {
		docflag, ok := f.(cli.DocGenerationFlag)
		if !ok {
			continue
		}
		for _, envVar := range docflag.GetEnvVars() {
			known[envVar] = f.Names()[0]
		}
	}
	keyvals := os.Environ()
	for _, keyval := range keyvals {
		key, _, _ := strings.Cut(keyval, "=")
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if flag, ok := known[key]; ok {
			if ctx.Count(flag) > 0 {
				log.Info("Config environment variable found, but overridden by command line", "envvar", key, "flag", flag)
			} else {
				log.Info("Config environment variable found", "envvar", key)
			}
			continue
		}
		log.Warn("Unknown config environment variable", "envvar", key)
	}
}

// EnvName derives the environment variable of a flag, e.g. "connect-wait"
// becomes WSRPC_CONNECT_WAIT.
func EnvName(prefix, flagName string) string {
	name := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(flagName))
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), name)
}

// AutoEnvVars extends all the specific CLI flags with automatically generated
// env vars by capitalizing the flag, replacing . and - with _ and prefixing it
// with the specified string.
func AutoEnvVars(flags []cli.Flag, prefix string) {
	for _, flag := range flags {
		envvar := EnvName(prefix, flag.Names()[0])

		switch flag := flag.(type) {
		case *cli.StringFlag:
			flag.EnvVars = append(flag.EnvVars, envvar)
		case *cli.StringSliceFlag:
			flag.EnvVars = append(flag.EnvVars, envvar)
		case *cli.BoolFlag:
			flag.EnvVars = append(flag.EnvVars, envvar)
		case *cli.IntFlag:
			flag.EnvVars = append(flag.EnvVars, envvar)
		case *cli.Float64Flag:
			flag.EnvVars = append(flag.EnvVars, envvar)
		case *cli.DurationFlag:
			flag.EnvVars = append(flag.EnvVars, envvar)
		case *PathFlag:
			flag.EnvVars = append(flag.EnvVars, envvar)
		}
	}
}
