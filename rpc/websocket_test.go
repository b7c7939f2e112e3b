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

package rpc

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunyihoo/go-wsrpc/log"
)

// testServer is a websocket endpoint for client tests. Every handshake is
// recorded, then the connection is passed to handle. The connection is closed
// when handle returns.
type testServer struct {
	*httptest.Server
	url     string
	headers chan http.Header
	conns   atomic.Int32
}

const testProtocol = "wsrpc.v1"

func newTestServer(t *testing.T, handle func(*websocket.Conn), gate <-chan struct{}) *testServer {
	t.Helper()
	ts := &testServer{headers: make(chan http.Header, 16)}
	upgrader := websocket.Upgrader{
		CheckOrigin:  func(*http.Request) bool { return true },
		Subprotocols: []string{testProtocol},
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gate != nil {
			<-gate
		}
		select {
		case ts.headers <- r.Header.Clone():
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns.Add(1)
		defer conn.Close()
		handle(conn)
	}))
	ts.url = "ws" + strings.TrimPrefix(ts.Server.URL, "http")
	t.Cleanup(ts.Server.Close)
	return ts
}

func (ts *testServer) handshake(t *testing.T) http.Header {
	t.Helper()
	select {
	case h := <-ts.headers:
		return h
	case <-time.After(5 * time.Second):
		t.Fatal("no handshake")
		return nil
	}
}

func testConnManager(t *testing.T, rawurl string, opts ...ClientOption) *connManager {
	t.Helper()
	u, err := url.Parse(rawurl)
	require.NoError(t, err)
	cfg := new(clientConfig)
	for _, opt := range opts {
		opt.applyOption(cfg)
	}
	cfg.setDefaults()
	return newConnManager(u, cfg, log.Root())
}

func TestWebsocketClientHeaders(t *testing.T) {
	m := testConnManager(t, "ws://user:p%40ss@localhost:8546/ws?x=1", WithHeader("x-test", "1"))
	assert.Equal(t, "ws://localhost:8546/ws?x=1", m.dialURL, "credentials left in dial URL")

	h, err := m.handshakeHeader()
	require.NoError(t, err)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:p@ss"))
	assert.Equal(t, want, h.Get("Authorization"))
	assert.Equal(t, "1", h.Get("X-Test"))
}

func TestWebsocketURLCredentialsOverrideAuth(t *testing.T) {
	auth := func(h http.Header) error {
		h.Set("Authorization", "Bearer provider")
		return nil
	}
	m := testConnManager(t, "ws://alice:secret@localhost/", WithHeader("Authorization", "Bearer option"), WithHTTPAuth(auth))
	h, err := m.handshakeHeader()
	require.NoError(t, err)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:secret")), h.Get("Authorization"))

	m = testConnManager(t, "ws://localhost/", WithHeader("Authorization", "Bearer option"), WithHTTPAuth(auth))
	h, err = m.handshakeHeader()
	require.NoError(t, err)
	assert.Equal(t, "Bearer provider", h.Get("Authorization"))
}

func TestWebsocketReservedHeadersDropped(t *testing.T) {
	ts := newTestServer(t, func(conn *websocket.Conn) { conn.ReadMessage() }, nil)
	c, err := Dial(ts.url,
		WithHeader("Sec-WebSocket-Key", "bogus"),
		WithHeader("Connection", "keep-alive"),
		WithHeader("X-Kept", "yes"),
	)
	require.NoError(t, err, "handshake failed with reserved headers")
	defer c.Close()

	h := ts.handshake(t)
	assert.NotEqual(t, "bogus", h.Get("Sec-Websocket-Key"))
	assert.Equal(t, "yes", h.Get("X-Kept"))
}

func TestWebsocketProtocol(t *testing.T) {
	negotiated := make(chan string, 1)
	ts := newTestServer(t, func(conn *websocket.Conn) {
		negotiated <- conn.Subprotocol()
		conn.ReadMessage()
	}, nil)
	c, err := Dial(ts.url, WithProtocol(testProtocol))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, testProtocol, ts.handshake(t).Get("Sec-Websocket-Protocol"))
	select {
	case p := <-negotiated:
		assert.Equal(t, testProtocol, p)
	case <-time.After(5 * time.Second):
		t.Fatal("handler not reached")
	}
}

func TestWebsocketJWTAuth(t *testing.T) {
	var secret [32]byte
	copy(secret[:], "0123456789abcdef0123456789abcdef")

	ts := newTestServer(t, func(conn *websocket.Conn) { conn.ReadMessage() }, nil)
	c, err := Dial(ts.url, WithHTTPAuth(NewJWTAuth(secret)))
	require.NoError(t, err)
	defer c.Close()

	header := ts.handshake(t).Get("Authorization")
	require.True(t, strings.HasPrefix(header, "Bearer "), "header %q", header)
	token, err := jwt.Parse(strings.TrimPrefix(header, "Bearer "), func(token *jwt.Token) (interface{}, error) {
		assert.Equal(t, jwt.SigningMethodHS256, token.Method)
		return secret[:], nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Contains(t, claims, "iat")
}

func TestLoadJWTSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jwt.hex")
	hexSecret := strings.Repeat("ab", 32)

	require.NoError(t, os.WriteFile(path, []byte("0x"+hexSecret+"\n"), 0600))
	secret, err := LoadJWTSecret(path)
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), secret[31])

	require.NoError(t, os.WriteFile(path, []byte("abcd"), 0600))
	_, err = LoadJWTSecret(path)
	assert.Error(t, err)
}

func TestWebsocketMessageSizeLimit(t *testing.T) {
	ts := newTestServer(t, func(conn *websocket.Conn) {
		conn.ReadMessage()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"result":"`+strings.Repeat("x", 256)+`"}`))
		conn.ReadMessage()
	}, nil)
	c, err := Dial(ts.url, WithWebsocketMessageSizeLimit(64))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(contextWithTimeout(t, 5*time.Second), []byte(`{"jsonrpc":"2.0","id":1,"method":"test_big"}`))
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, err, websocket.ErrReadLimit)
}
