// Copyright 2024 The go-ethereum Authors
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

package debug

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunyihoo/go-wsrpc/log"
	"github.com/urfave/cli/v2"
)

func runSetup(t *testing.T, args ...string) error {
	t.Helper()
	app := cli.NewApp()
	app.Flags = Flags
	app.Action = Setup
	defer log.SetDefault(log.NewLogger(log.DiscardHandler()))
	return app.Run(append([]string{"test"}, args...))
}

func TestSetupLogFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "wsrpc.log")
	app := cli.NewApp()
	app.Flags = Flags
	app.Action = func(ctx *cli.Context) error {
		if err := Setup(ctx); err != nil {
			return err
		}
		log.Warn("Visible", "n", 1)
		log.Debug("Hidden")
		Exit()
		return nil
	}
	defer log.SetDefault(log.NewLogger(log.DiscardHandler()))
	require.NoError(t, app.Run([]string{"test", "--log.format", "json", "--log.file", file, "--verbosity", "2"}))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Visible"`)
	assert.NotContains(t, string(data), "Hidden")
}

func TestSetupUnknownFormat(t *testing.T) {
	assert.ErrorContains(t, runSetup(t, "--log.format", "xml"), "unknown log format")
}

func TestSetupBadVmodule(t *testing.T) {
	assert.Error(t, runSetup(t, "--log.vmodule", "rpc"))
}

func TestSetupRotatedLogFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wsrpc.log")
	app := cli.NewApp()
	app.Flags = Flags
	app.Action = func(ctx *cli.Context) error {
		if err := Setup(ctx); err != nil {
			return err
		}
		log.Warn("Rotated", "conn", "abc")
		Exit()
		return nil
	}
	defer log.SetDefault(log.NewLogger(log.DiscardHandler()))
	require.NoError(t, app.Run([]string{"test", "--log.format", "logfmt", "--log.rotate", "--log.file", file}))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=Rotated")
	assert.Contains(t, string(data), "conn=abc")
}
