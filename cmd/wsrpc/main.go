// Copyright 2014 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// wsrpc is a command line client for JSON-RPC servers reachable over websocket.
package main

import (
	"os"
	"sort"

	"github.com/sunyihoo/go-wsrpc/cmd/utils"
	"github.com/sunyihoo/go-wsrpc/internal/debug"
	"github.com/sunyihoo/go-wsrpc/internal/flags"
	"github.com/urfave/cli/v2"
)

const (
	clientIdentifier = "wsrpc" // Client identifier to advertise over the network
)

var app = flags.NewApp("the go-wsrpc command line interface")

func init() {
	app.Commands = []*cli.Command{
		// See commands.go:
		callCommand,
		subscribeCommand,
		// See config.go:
		dumpConfigCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	app.Flags = flags.Merge(
		utils.TransportFlags,
		[]cli.Flag{configFileFlag},
		debug.Flags,
	)
	flags.AutoEnvVars(app.Flags, "WSRPC")

	app.Before = func(ctx *cli.Context) error {
		flags.CheckEnvVars(ctx, app.Flags, "WSRPC")
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		utils.Fatalf("%v", err)
	}
}
