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

package rpc

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sunyihoo/go-wsrpc/common/mclock"
	"github.com/sunyihoo/go-wsrpc/log"
	"golang.org/x/time/rate"
)

const (
	defaultConnectWait     = 500 * time.Millisecond
	defaultMaxQueued       = 1024
	defaultCloseTimeout    = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultDialFailures    = 5
	defaultBreakerCooldown = 30 * time.Second
)

// ClientOption is a configuration option for the RPC client.
type ClientOption interface {
	applyOption(*clientConfig)
}

// clientConfig is fixed once the client is created. Reset reconnects with the
// same configuration.
type clientConfig struct {
	httpHeaders http.Header
	httpAuth    HTTPAuth
	protocol    string

	// WebSocket options
	wsDialer           *websocket.Dialer
	wsMessageSizeLimit *int64 // nil = default, 0 = no limit

	requestTimeout time.Duration // 0 = only the caller's context applies
	connectWait    time.Duration
	maxQueued      int
	frameLimit     *int // nil = default, 0 = no limit
	closeTimeout   time.Duration

	clock      mclock.Clock
	logger     log.Logger
	registerer prometheus.Registerer

	sendLimit rate.Limit
	sendBurst int

	dialFailures    uint32
	breakerCooldown time.Duration
}

func (cfg *clientConfig) initHeaders() {
	if cfg.httpHeaders == nil {
		cfg.httpHeaders = make(http.Header)
	}
}

func (cfg *clientConfig) setDefaults() {
	if cfg.connectWait <= 0 {
		cfg.connectWait = defaultConnectWait
	}
	if cfg.maxQueued <= 0 {
		cfg.maxQueued = defaultMaxQueued
	}
	if cfg.closeTimeout <= 0 {
		cfg.closeTimeout = defaultCloseTimeout
	}
	if cfg.clock == nil {
		cfg.clock = mclock.System{}
	}
	if cfg.logger == nil {
		cfg.logger = log.Root()
	}
	if cfg.dialFailures == 0 {
		cfg.dialFailures = defaultDialFailures
	}
	if cfg.breakerCooldown <= 0 {
		cfg.breakerCooldown = defaultBreakerCooldown
	}
}

func (cfg *clientConfig) readLimit() int64 {
	if cfg.wsMessageSizeLimit != nil && *cfg.wsMessageSizeLimit >= 0 {
		return *cfg.wsMessageSizeLimit
	}
	return wsDefaultReadLimit
}

func (cfg *clientConfig) frameBufferLimit() int {
	if cfg.frameLimit != nil && *cfg.frameLimit >= 0 {
		return *cfg.frameLimit
	}
	return defaultFrameBufferLimit
}

type optionFunc func(*clientConfig)

func (fn optionFunc) applyOption(opt *clientConfig) {
	fn(opt)
}

// WithWebsocketDialer configures the websocket.Dialer used by the RPC client.
func WithWebsocketDialer(dialer websocket.Dialer) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.wsDialer = &dialer
	})
}

// WithWebsocketMessageSizeLimit configures the websocket message size limit used by the RPC
// client. Passing a limit of 0 means no limit.
func WithWebsocketMessageSizeLimit(messageSizeLimit int64) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.wsMessageSizeLimit = &messageSizeLimit
	})
}

// WithHeader configures a header sent with the websocket handshake.
func WithHeader(key, value string) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.initHeaders()
		cfg.httpHeaders.Set(key, value)
	})
}

// WithHeaders configures headers sent with the websocket handshake.
func WithHeaders(headers http.Header) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.initHeaders()
		for k, vs := range headers {
			cfg.httpHeaders[k] = vs
		}
	})
}

// WithProtocol sets the websocket sub-protocol requested during the handshake.
func WithProtocol(protocol string) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.protocol = protocol
	})
}

// WithHTTPAuth configures handshake authentication. The given provider is
// called before every dial. Credentials in the URL take precedence over any
// authorization header it sets.
func WithHTTPAuth(a HTTPAuth) ClientOption {
	if a == nil {
		panic("nil auth")
	}
	return optionFunc(func(cfg *clientConfig) {
		cfg.httpAuth = a
	})
}

// A HTTPAuth function is called by the client whenever it dials. The function
// must be safe for concurrent use.
//
// Usually, HTTPAuth functions will call h.Set("authorization", "...") to add
// auth information to the request.
type HTTPAuth func(h http.Header) error

// WithRequestTimeout bounds how long Send waits for a response when the
// caller's context has no deadline.
func WithRequestTimeout(d time.Duration) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.requestTimeout = d
	})
}

// WithConnectWait sets how long a request sent while connecting may wait for
// the connection to open before it fails with ErrRequestDropped.
func WithConnectWait(d time.Duration) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.connectWait = d
	})
}

// WithMaxQueuedRequests limits the number of requests waiting for the
// connection to open.
func WithMaxQueuedRequests(n int) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.maxQueued = n
	})
}

// WithFrameBufferLimit limits the size of an incomplete inbound value carried
// between reads. Passing a limit of 0 means no limit.
func WithFrameBufferLimit(limit int) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.frameLimit = &limit
	})
}

// WithCloseTimeout sets how long Disconnect waits for the server to finish
// the close handshake before the socket is closed anyway.
func WithCloseTimeout(d time.Duration) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.closeTimeout = d
	})
}

// WithClock sets the clock used for the client's timers.
func WithClock(clock mclock.Clock) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.clock = clock
	})
}

// WithLogger sets the logger. The default is the root logger.
func WithLogger(logger log.Logger) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.logger = logger
	})
}

// WithMetrics registers the client's transport metrics with reg.
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.registerer = reg
	})
}

// WithSendRateLimit paces outbound requests to limit per second with the
// given burst.
func WithSendRateLimit(limit rate.Limit, burst int) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.sendLimit = limit
		cfg.sendBurst = burst
	})
}

// WithDialFailureThreshold sets after how many consecutive failed dials
// further attempts fail fast, and for how long.
func WithDialFailureThreshold(failures uint32, cooldown time.Duration) ClientOption {
	return optionFunc(func(cfg *clientConfig) {
		cfg.dialFailures = failures
		cfg.breakerCooldown = cooldown
	})
}
