// Copyright 2015 The go-ethereum Authors
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

/*
Package rpc implements a JSON-RPC 2.0 client on a single persistent websocket.

The client owns one connection at a time. Requests are correlated with their replies by
request id, and subscription notifications are routed to listeners by subscription id.
Inbound data is reassembled from partial or merged chunks before it is decoded, so a
server may split one JSON value over several websocket messages or pack several values
into one.

# Connecting

NewClient creates a client without dialing. Connect starts the websocket handshake and
WaitOpen blocks until it completes:

	client, err := rpc.NewClient("wss://node.example.com/ws", rpc.WithConnectWait(time.Second))
	if err != nil { ... }
	if err := client.Connect(); err != nil { ... }

Dial and DialContext do all three steps. Credentials in the URL are sent as Basic
authorization, custom headers and an Authorization hook can be set with WithHeader and
WithHTTPAuth.

# Requests

Send writes an encoded request object, or a batch array of them, and waits for the reply
with the same id. A batch is matched by the id of its first element.

	resp, err := client.Send(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":7,"method":"eth_chainId"}`))

Call allocates the id itself and decodes the result:

	var number string
	err := client.Call(ctx, &number, "eth_blockNumber")

A request sent while the connection is being established is held back and written as
soon as it opens. If it does not open within the connect wait, the request fails with
ErrRequestDropped. In any other state than open or connecting, Send fails with
ErrNotOpen. When the socket fails, every pending request is rejected with an error
wrapping ErrConnectionClosed.

# Subscriptions

SubscribeNamespace calls "<namespace>_subscribe" and registers a listener for the id
in the reply before any later message is processed:

	l, err := client.SubscribeNamespace(ctx, "eth", "newHeads")
	for n := range l.Notifications() { ... }

The client does not otherwise track server-side subscriptions. For a subscription
created by other means, Subscribe registers a listener for its id. Notifications that
arrive before that call are dropped.

Every notification for the id is delivered until the listener is unsubscribed. Several
listeners may share an id. Listeners survive connection failures, but Reset ends them
with ErrConnectionReset.

# Lifecycle

SubscribeLifecycle reports open, connect, error and close events. Disconnect runs the
websocket close handshake, Reset drops the connection and dials again, and Close shuts
the client down for good.
*/
package rpc
