// Copyright 2022 The go-ethereum Authors
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
	"flag"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
)

// PathString is a flag value that expands to a clean path when it is parsed.
type PathString string

func (s *PathString) String() string {
	return string(*s)
}

func (s *PathString) Set(value string) error {
	*s = PathString(expandPath(value))
	return nil
}

var (
	_ cli.Flag              = (*PathFlag)(nil)
	_ cli.RequiredFlag      = (*PathFlag)(nil)
	_ cli.VisibleFlag       = (*PathFlag)(nil)
	_ cli.DocGenerationFlag = (*PathFlag)(nil)
	_ cli.CategorizableFlag = (*PathFlag)(nil)
)

// PathFlag is a cli.Flag for file paths. The received string is expanded,
// e.g. ~/.wsrpc/jwt.hex -> /home/username/.wsrpc/jwt.hex
type PathFlag struct {
	Name string

	Category    string
	DefaultText string
	Usage       string

	Required   bool
	Hidden     bool
	HasBeenSet bool

	Value PathString

	Aliases []string
	EnvVars []string
}

// For cli.Flag:

func (f *PathFlag) Names() []string { return append([]string{f.Name}, f.Aliases...) }
func (f *PathFlag) IsSet() bool     { return f.HasBeenSet }
func (f *PathFlag) String() string  { return cli.FlagStringer(f) }

// Apply called by cli library, grabs variable from environment (if in env)
// and adds variable to flag set for parsing.
func (f *PathFlag) Apply(set *flag.FlagSet) error {
	for _, envVar := range f.EnvVars {
		envVar = strings.TrimSpace(envVar)
		if value, found := syscall.Getenv(envVar); found {
			f.Value.Set(value)
			f.HasBeenSet = true
			break
		}
	}
	eachName(f, func(name string) {
		set.Var(&f.Value, name, f.Usage)
	})
	return nil
}

// For cli.RequiredFlag:

func (f *PathFlag) IsRequired() bool { return f.Required }

// For cli.VisibleFlag:

func (f *PathFlag) IsVisible() bool { return !f.Hidden }

// For cli.CategorizableFlag:

func (f *PathFlag) GetCategory() string { return f.Category }

// For cli.DocGenerationFlag:

func (f *PathFlag) TakesValue() bool     { return true }
func (f *PathFlag) GetUsage() string     { return f.Usage }
func (f *PathFlag) GetValue() string     { return f.Value.String() }
func (f *PathFlag) GetEnvVars() []string { return f.EnvVars }
func (f *PathFlag) GetDefaultText() string {
	if f.DefaultText != "" {
		return f.DefaultText
	}
	return f.GetValue()
}

// Expands a file path
// 1. replace tilde with users home dir
// 2. expands embedded environment variables
// 3. cleans the path, e.g. /a/b/../c -> /a/c
// Note, it has limitations, e.g. ~someuser/tmp will not be expanded
func expandPath(p string) string {
	if p == "" {
		return p
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~\\") {
		if home := HomeDir(); home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Clean(os.ExpandEnv(p))
}

func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

func eachName(f cli.Flag, fn func(string)) {
	for _, name := range f.Names() {
		name = strings.Trim(name, " ")
		fn(name)
	}
}
