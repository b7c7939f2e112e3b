// Copyright 2024 The go-ethereum Authors
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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/holiman/uint256"
	"github.com/sunyihoo/go-wsrpc/internal/flags"
	"github.com/sunyihoo/go-wsrpc/log"
	"github.com/sunyihoo/go-wsrpc/rpc"
	"github.com/urfave/cli/v2"
)

var (
	countFlag = &cli.IntFlag{
		Name:     "count",
		Usage:    "Exit after receiving this many notifications (0 = run until interrupted)",
		Category: flags.MiscCategory,
	}

	quantityFlag = &cli.BoolFlag{
		Name:     "quantity",
		Usage:    "Print a hex quantity result (e.g. \"0x1b4\") as a decimal number",
		Category: flags.MiscCategory,
	}

	callCommand = &cli.Command{
		Action:    call,
		Name:      "call",
		Usage:     "Send a JSON-RPC request and print its result",
		ArgsUsage: "<method> [arguments...]",
		Flags:     []cli.Flag{quantityFlag},
		Description: `
The call command sends one request and prints the JSON result.

Arguments are sent as JSON values when they parse as JSON, and as strings
otherwise, so the following are equivalent:

    wsrpc call eth_getBlockByNumber latest false
    wsrpc call eth_getBlockByNumber '"latest"' false

With --quantity the result must be a JSON-RPC quantity, which is printed in
decimal:

    wsrpc call --quantity eth_blockNumber`,
	}

	subscribeCommand = &cli.Command{
		Action:    subscribe,
		Name:      "subscribe",
		Usage:     "Create a subscription and print its notifications",
		ArgsUsage: "<namespace> [arguments...]",
		Flags:     []cli.Flag{countFlag},
		Description: `
The subscribe command calls <namespace>_subscribe with the given arguments and
prints every notification of the returned subscription, one JSON value per
line. On interrupt, or when --count notifications were received, it calls
<namespace>_unsubscribe before exiting.

    wsrpc subscribe eth newHeads`,
	}
)

// parseArgs turns command line arguments into request parameters.
func parseArgs(args []string) []interface{} {
	params := make([]interface{}, len(args))
	for i, arg := range args {
		if json.Valid([]byte(arg)) {
			params[i] = json.RawMessage(arg)
		} else {
			params[i] = arg
		}
	}
	return params
}

// dial connects to the configured endpoint, waiting at most the request
// timeout for the connection to open.
func dial(ctx *cli.Context) (*rpc.Client, *wsrpcConfig, error) {
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	opts, err := clientOptions(&cfg)
	if err != nil {
		return nil, nil, err
	}
	dialCtx := ctx.Context
	if cfg.Transport.RequestTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(dialCtx, cfg.Transport.RequestTimeout)
		defer cancel()
	}
	client, err := rpc.DialContext(dialCtx, cfg.Transport.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("can't connect to %s: %w", cfg.Transport.URL, err)
	}
	return client, &cfg, nil
}

func call(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return errors.New("method name required")
	}
	client, _, err := dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	method := ctx.Args().First()
	var result json.RawMessage
	if err := client.Call(ctx.Context, &result, method, parseArgs(ctx.Args().Tail())...); err != nil {
		return err
	}
	if !ctx.Bool(quantityFlag.Name) {
		fmt.Fprintln(ctx.App.Writer, string(result))
		return nil
	}
	var q uint256.Int
	if err := json.Unmarshal(result, &q); err != nil {
		return fmt.Errorf("result of %s is not a quantity: %w", method, err)
	}
	log.Debug("Decoded quantity", "method", method, "value", &q)
	fmt.Fprintln(ctx.App.Writer, q.Dec())
	return nil
}

func subscribe(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return errors.New("namespace required")
	}
	client, cfg, err := dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	var (
		namespace = ctx.Args().First()
		limit     = ctx.Int(countFlag.Name)
		events    = make(chan rpc.LifecycleEvent, 16)
		sigc      = make(chan os.Signal, 1)
	)
	lsub := client.SubscribeLifecycle(events)
	defer lsub.Unsubscribe()
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	l, err := client.SubscribeNamespace(ctx.Context, namespace, parseArgs(ctx.Args().Tail())...)
	if err != nil {
		return err
	}
	defer l.Unsubscribe()
	subid := l.ID()
	log.Info("Subscription created", "namespace", namespace, "id", subid, "url", cfg.Transport.URL)

loop:
	for received := 0; limit == 0 || received < limit; {
		select {
		case n := <-l.Notifications():
			fmt.Fprintln(ctx.App.Writer, string(n.Result))
			received++
		case ev := <-events:
			switch ev.Kind {
			case rpc.EventError:
				log.Warn("Connection error", "conn", ev.Conn, "err", ev.Err)
			case rpc.EventClose:
				log.Warn("Connection closed", "conn", ev.Conn, "code", ev.Code, "reason", ev.Reason)
			default:
				log.Debug("Connection event", "kind", ev.Kind, "conn", ev.Conn)
			}
		case err := <-l.Err():
			return fmt.Errorf("subscription %s ended: %w", subid, err)
		case sig := <-sigc:
			log.Info("Got interrupt, unsubscribing", "signal", sig)
			break loop
		}
	}

	var ok bool
	if err := client.Call(ctx.Context, &ok, namespace+"_unsubscribe", subid); err != nil {
		return fmt.Errorf("unsubscribe failed: %w", err)
	}
	log.Debug("Subscription removed", "id", subid, "ok", ok)
	return nil
}
