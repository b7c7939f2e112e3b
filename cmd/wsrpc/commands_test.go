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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunyihoo/go-wsrpc/rpc"
)

// newTestServer starts a websocket JSON-RPC server implementing test_echo and
// the test_subscribe/test_unsubscribe pair. A subscription sends its first
// notification right after the reply, then ticks every 10ms until it is
// removed.
func newTestServer(t *testing.T) string {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var (
			mu   sync.Mutex
			stop = make(chan struct{})
			once sync.Once
		)
		defer once.Do(func() { close(stop) })
		write := func(v interface{}) error {
			mu.Lock()
			defer mu.Unlock()
			return conn.WriteJSON(v)
		}
		for {
			var msg rpc.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			var (
				reply = rpc.Message{Version: "2.0", ID: msg.ID}
				after func()
			)
			switch msg.Method {
			case "test_echo":
				reply.Result = msg.Params
			case "test_quantity":
				reply.Result = json.RawMessage(`"0x1b4"`)
			case "test_subscribe":
				reply.Result = json.RawMessage(`"0x1"`)
				notify := func(i int) error {
					params, _ := json.Marshal(map[string]interface{}{"subscription": "0x1", "result": i})
					return write(rpc.Message{Version: "2.0", Method: "test_subscription", Params: params})
				}
				// The first notification follows the reply immediately.
				after = func() {
					if notify(1) != nil {
						return
					}
					go func() {
						ticker := time.NewTicker(10 * time.Millisecond)
						defer ticker.Stop()
						for i := 2; ; i++ {
							select {
							case <-ticker.C:
								if notify(i) != nil {
									return
								}
							case <-stop:
								return
							}
						}
					}()
				}
			case "test_unsubscribe":
				once.Do(func() { close(stop) })
				reply.Result = json.RawMessage("true")
			default:
				reply.Error = &rpc.JsonError{Code: -32601, Message: "the method " + msg.Method + " does not exist/is not available"}
			}
			if err := write(reply); err != nil {
				return
			}
			if after != nil {
				after()
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app.Writer = &out
	defer func() { app.Writer = nil }()
	err := app.Run(append([]string{"wsrpc"}, args...))
	return out.String(), err
}

func TestParseArgs(t *testing.T) {
	params := parseArgs([]string{"1", "latest", `"quoted"`, `{"a":true}`, "0x10"})
	assert.Equal(t, []interface{}{
		json.RawMessage("1"),
		"latest",
		json.RawMessage(`"quoted"`),
		json.RawMessage(`{"a":true}`),
		"0x10",
	}, params)
}

func TestCallCommand(t *testing.T) {
	url := newTestServer(t)
	out, err := runApp(t, "--url", url, "call", "test_echo", "1", "abc")
	require.NoError(t, err)
	assert.Equal(t, "[1,\"abc\"]\n", out)
}

func TestCallCommandQuantity(t *testing.T) {
	url := newTestServer(t)
	out, err := runApp(t, "--url", url, "call", "--quantity", "test_quantity")
	require.NoError(t, err)
	assert.Equal(t, "436\n", out)

	_, err = runApp(t, "--url", url, "call", "--quantity", "test_echo", "x")
	assert.ErrorContains(t, err, "is not a quantity")
}

func TestCallCommandError(t *testing.T) {
	url := newTestServer(t)
	_, err := runApp(t, "--url", url, "call", "test_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	var rpcErr rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.ErrorCode())
}

func TestCallCommandNoMethod(t *testing.T) {
	url := newTestServer(t)
	_, err := runApp(t, "--url", url, "call")
	assert.EqualError(t, err, "method name required")
}

func TestCallCommandBadURL(t *testing.T) {
	_, err := runApp(t, "--url", "http://127.0.0.1:1", "call", "test_echo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no known transport")
}

func TestSubscribeCommand(t *testing.T) {
	url := newTestServer(t)
	out, err := runApp(t, "--url", url, "subscribe", "--count", "2", "test")
	require.NoError(t, err)

	assert.Equal(t, "1\n2\n", out)
}
