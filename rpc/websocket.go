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

package rpc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker/v2"
	"github.com/sunyihoo/go-wsrpc/common/mclock"
	"github.com/sunyihoo/go-wsrpc/log"
)

const (
	wsReadBuffer       = 1024
	wsWriteBuffer      = 1024
	wsPingInterval     = 30 * time.Second
	wsPingWriteTimeout = 5 * time.Second
	wsPongTimeout      = 30 * time.Second
	wsDefaultReadLimit = 32 * 1024 * 1024
)

var wsBufferPool = new(sync.Pool)

// reservedHeaders are generated by the websocket handshake itself. Supplying
// them makes the dialer fail, so they are dropped from caller headers.
var reservedHeaders = mapset.NewSet(
	"Upgrade",
	"Connection",
	"Sec-Websocket-Key",
	"Sec-Websocket-Version",
	"Sec-Websocket-Extensions",
)

type wsHandshakeError struct {
	err    error
	status string
}

func (e wsHandshakeError) Error() string {
	s := e.err.Error()
	if e.status != "" {
		s += " (HTTP status " + e.status + ")"
	}
	return s
}

func (e wsHandshakeError) Unwrap() error {
	return e.err
}

// connManager establishes sockets. It holds everything derived from the URL
// and options, so a reset dials exactly like the first connect did.
type connManager struct {
	dialer    websocket.Dialer
	dialURL   string // endpoint without credentials
	redacted  string
	header    http.Header
	basicAuth string // derived from URL userinfo, empty if none
	auth      HTTPAuth
	readLimit int64
	breaker   *gobreaker.CircuitBreaker[*websocket.Conn]
	log       log.Logger
}

func newConnManager(endpoint *url.URL, cfg *clientConfig, logger log.Logger) *connManager {
	var dialer websocket.Dialer
	if cfg.wsDialer != nil {
		dialer = *cfg.wsDialer
	} else {
		dialer = websocket.Dialer{
			ReadBufferSize:  wsReadBuffer,
			WriteBufferSize: wsWriteBuffer,
			WriteBufferPool: wsBufferPool,
			Proxy:           http.ProxyFromEnvironment,
		}
	}
	header := make(http.Header, len(cfg.httpHeaders))
	for key, values := range cfg.httpHeaders {
		header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	if cfg.protocol != "" {
		dialer.Subprotocols = []string{cfg.protocol}
		header.Del("Sec-Websocket-Protocol")
	}
	dialURL, basicAuth := wsClientHeaders(endpoint)
	m := &connManager{
		dialer:    dialer,
		dialURL:   dialURL,
		redacted:  endpoint.Redacted(),
		header:    header,
		basicAuth: basicAuth,
		auth:      cfg.httpAuth,
		readLimit: cfg.readLimit(),
		log:       logger,
	}
	threshold := cfg.dialFailures
	m.breaker = gobreaker.NewCircuitBreaker[*websocket.Conn](gobreaker.Settings{
		Name:        "dial:" + m.redacted,
		MaxRequests: 1,
		Timeout:     cfg.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Dial circuit breaker state change", "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return m
}

// wsClientHeaders strips the userinfo from the endpoint and turns it into a
// Basic authorization value.
func wsClientHeaders(endpoint *url.URL) (dialURL, basicAuth string) {
	u := *endpoint
	if u.User != nil {
		password, _ := u.User.Password()
		creds := u.User.Username() + ":" + password
		basicAuth = "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
		u.User = nil
	}
	return u.String(), basicAuth
}

// handshakeHeader builds the headers for one dial. Credentials from the URL
// override any authorization set by the options or the auth provider.
func (m *connManager) handshakeHeader() (http.Header, error) {
	header := m.header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if m.auth != nil {
		if err := m.auth(header); err != nil {
			return nil, err
		}
	}
	if m.basicAuth != "" {
		header.Set("Authorization", m.basicAuth)
	}
	for key := range header {
		canonical := http.CanonicalHeaderKey(key)
		if reservedHeaders.Contains(canonical) {
			m.log.Warn("Dropping reserved handshake header", "header", canonical)
			delete(header, key)
		}
	}
	return header, nil
}

// dial opens a new socket. After too many consecutive failures the circuit
// breaker rejects attempts without dialing until its cooldown has passed.
func (m *connManager) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, err := m.breaker.Execute(func() (*websocket.Conn, error) {
		header, err := m.handshakeHeader()
		if err != nil {
			return nil, err
		}
		conn, resp, err := m.dialer.DialContext(ctx, m.dialURL, header)
		if err != nil {
			hErr := wsHandshakeError{err: err}
			if resp != nil {
				hErr.status = resp.Status
			}
			return nil, hErr
		}
		return conn, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("dial %s: circuit open: %w", m.redacted, err)
		}
		return nil, err
	}
	conn.SetReadLimit(m.readLimit)
	return conn, nil
}

// wsConn is one established socket. Reads happen on its read loop, writes
// on the client's dispatch goroutine. Ping and close frames go through
// WriteControl, which may be called concurrently with the other methods.
type wsConn struct {
	id   string
	conn *websocket.Conn

	wg           sync.WaitGroup
	pingReset    chan struct{}
	pongReceived chan struct{}
	closeOnce    sync.Once
	closed       chan struct{}
}

func newWSConn(id string, conn *websocket.Conn) *wsConn {
	wc := &wsConn{
		id:           id,
		conn:         conn,
		pingReset:    make(chan struct{}, 1),
		pongReceived: make(chan struct{}),
		closed:       make(chan struct{}),
	}
	conn.SetPongHandler(func(appData string) error {
		select {
		case wc.pongReceived <- struct{}{}:
		case <-wc.closed:
		}
		return nil
	})
	return wc
}

// start launches the read loop and the pinger. Inbound messages and the
// terminal read error are posted to the client.
func (wc *wsConn) start(c *Client) {
	wc.wg.Add(2)
	go wc.readLoop(c)
	go wc.pingLoop(c.clock)
}

func (wc *wsConn) readLoop(c *Client) {
	defer wc.wg.Done()
	for {
		_, data, err := wc.conn.ReadMessage()
		if err != nil {
			select {
			case c.readErr <- connError{wc, err}:
			case <-wc.closed:
			}
			return
		}
		select {
		case c.readOp <- readOp{wc, data}:
		case <-wc.closed:
			return
		}
	}
}

func (wc *wsConn) write(payload []byte, timeout time.Duration) error {
	wc.conn.SetWriteDeadline(time.Now().Add(timeout))
	err := wc.conn.WriteMessage(websocket.TextMessage, payload)
	if err == nil {
		// Notify pingLoop to delay the next idle ping.
		select {
		case wc.pingReset <- struct{}{}:
		default:
		}
	}
	return err
}

// writeClose starts the close handshake.
func (wc *wsConn) writeClose(code int, reason string) error {
	msg := websocket.FormatCloseMessage(code, reason)
	return wc.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsPingWriteTimeout))
}

// close drops the socket and waits for its goroutines to exit.
func (wc *wsConn) close() {
	wc.closeOnce.Do(func() {
		close(wc.closed)
		wc.conn.Close()
	})
	wc.wg.Wait()
}

// pingLoop sends periodic ping frames when the connection is idle.
func (wc *wsConn) pingLoop(clock mclock.Clock) {
	pingTimer := clock.NewTimer(wsPingInterval)
	defer wc.wg.Done()
	defer pingTimer.Stop()

	for {
		select {
		case <-wc.closed:
			return

		case <-wc.pingReset:
			if !pingTimer.Stop() {
				select {
				case <-pingTimer.C():
				default:
				}
			}
			pingTimer.Reset(wsPingInterval)

		case <-pingTimer.C():
			wc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsPingWriteTimeout))
			wc.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
			pingTimer.Reset(wsPingInterval)

		case <-wc.pongReceived:
			wc.conn.SetReadDeadline(time.Time{})
		}
	}
}
