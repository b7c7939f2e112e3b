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

// Package utils contains internal helper functions for wsrpc commands.
package utils

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sunyihoo/go-wsrpc/internal/flags"
	"github.com/sunyihoo/go-wsrpc/rpc"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"
)

// These are all the command line flags we support.
// If you add to this list, please remember to include the
// flag in the appropriate command definition.
//
// The flags are defined here so their names and help texts
// are the same for all commands.

var (
	// Transport settings
	URLFlag = &cli.StringFlag{
		Name:     "url",
		Usage:    "Websocket endpoint of the JSON-RPC server (ws:// or wss://)",
		Value:    DefaultTransportConfig.URL,
		Category: flags.TransportCategory,
	}
	HeaderFlag = &cli.StringSliceFlag{
		Name:     "header",
		Aliases:  []string{"H"},
		Usage:    "Pass custom header to the server, e.g. -H 'X-Api-Key: secret' (may be repeated)",
		Category: flags.TransportCategory,
	}
	ProtocolFlag = &cli.StringFlag{
		Name:     "protocol",
		Usage:    "Websocket subprotocol to request",
		Category: flags.TransportCategory,
	}
	TimeoutFlag = &cli.DurationFlag{
		Name:     "timeout",
		Usage:    "Time to wait for a response to each request",
		Value:    DefaultTransportConfig.RequestTimeout,
		Category: flags.TransportCategory,
	}
	ConnectWaitFlag = &cli.DurationFlag{
		Name:     "connect-wait",
		Usage:    "Time a request sent while connecting waits for the connection to open",
		Value:    DefaultTransportConfig.ConnectWait,
		Category: flags.TransportCategory,
	}
	MaxQueuedFlag = &cli.IntFlag{
		Name:     "max-queued",
		Usage:    "Maximum number of requests waiting for the connection to open",
		Value:    DefaultTransportConfig.MaxQueued,
		Category: flags.TransportCategory,
	}
	FrameLimitFlag = &cli.IntFlag{
		Name:     "frame-limit",
		Usage:    "Maximum size in bytes of an incomplete inbound JSON value (0 = unlimited)",
		Value:    DefaultTransportConfig.FrameLimit,
		Category: flags.TransportCategory,
	}
	SendRateFlag = &cli.Float64Flag{
		Name:     "rate",
		Usage:    "Maximum requests per second (0 = unlimited)",
		Category: flags.TransportCategory,
	}

	// Authentication
	JWTSecretFlag = &flags.PathFlag{
		Name:     "jwt-secret",
		Usage:    "Path to a hex encoded 32 byte secret used to sign an engine-API style bearer token",
		Category: flags.AuthCategory,
	}

	// Metrics
	MetricsEnabledFlag = &cli.BoolFlag{
		Name:     "metrics",
		Usage:    "Collect transport metrics (served by --pprof under /debug/metrics/prometheus)",
		Category: flags.MetricsCategory,
	}
)

// TransportFlags are the flags configuring the client connection.
var TransportFlags = []cli.Flag{
	URLFlag,
	HeaderFlag,
	ProtocolFlag,
	TimeoutFlag,
	ConnectWaitFlag,
	MaxQueuedFlag,
	FrameLimitFlag,
	SendRateFlag,
	JWTSecretFlag,
	MetricsEnabledFlag,
}

// TransportConfig is the [Transport] section of the config file.
type TransportConfig struct {
	URL            string
	Headers        []string `toml:",omitempty"`
	Protocol       string   `toml:",omitempty"`
	RequestTimeout time.Duration
	ConnectWait    time.Duration
	CloseTimeout   time.Duration
	MaxQueued      int
	FrameLimit     int
	SendRate       float64 `toml:",omitempty"`
	SendBurst      int     `toml:",omitempty"`
	JWTSecret      string  `toml:",omitempty"`
	Metrics        bool
}

// DefaultTransportConfig contains reasonable default settings.
var DefaultTransportConfig = TransportConfig{
	URL:            "ws://127.0.0.1:8546",
	RequestTimeout: 30 * time.Second,
	ConnectWait:    500 * time.Millisecond,
	CloseTimeout:   5 * time.Second,
	MaxQueued:      1024,
	FrameLimit:     32 * 1024 * 1024,
}

// SetTransportConfig applies transport related command line flags to the config.
func SetTransportConfig(ctx *cli.Context, cfg *TransportConfig) {
	if ctx.IsSet(URLFlag.Name) {
		cfg.URL = ctx.String(URLFlag.Name)
	}
	if ctx.IsSet(HeaderFlag.Name) {
		cfg.Headers = append(cfg.Headers, ctx.StringSlice(HeaderFlag.Name)...)
	}
	if ctx.IsSet(ProtocolFlag.Name) {
		cfg.Protocol = ctx.String(ProtocolFlag.Name)
	}
	if ctx.IsSet(TimeoutFlag.Name) {
		cfg.RequestTimeout = ctx.Duration(TimeoutFlag.Name)
	}
	if ctx.IsSet(ConnectWaitFlag.Name) {
		cfg.ConnectWait = ctx.Duration(ConnectWaitFlag.Name)
	}
	if ctx.IsSet(MaxQueuedFlag.Name) {
		cfg.MaxQueued = ctx.Int(MaxQueuedFlag.Name)
	}
	if ctx.IsSet(FrameLimitFlag.Name) {
		cfg.FrameLimit = ctx.Int(FrameLimitFlag.Name)
	}
	if ctx.IsSet(SendRateFlag.Name) {
		cfg.SendRate = ctx.Float64(SendRateFlag.Name)
	}
	if ctx.IsSet(JWTSecretFlag.Name) {
		cfg.JWTSecret = ctx.String(JWTSecretFlag.Name)
	}
	if ctx.IsSet(MetricsEnabledFlag.Name) {
		cfg.Metrics = ctx.Bool(MetricsEnabledFlag.Name)
	}
}

// ClientOptions turns the config into client options.
func (cfg *TransportConfig) ClientOptions() ([]rpc.ClientOption, error) {
	header, err := ParseHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}
	opts := []rpc.ClientOption{
		rpc.WithHeaders(header),
		rpc.WithRequestTimeout(cfg.RequestTimeout),
		rpc.WithConnectWait(cfg.ConnectWait),
		rpc.WithCloseTimeout(cfg.CloseTimeout),
		rpc.WithMaxQueuedRequests(cfg.MaxQueued),
		rpc.WithFrameBufferLimit(cfg.FrameLimit),
	}
	if cfg.Protocol != "" {
		opts = append(opts, rpc.WithProtocol(cfg.Protocol))
	}
	if cfg.SendRate > 0 {
		opts = append(opts, rpc.WithSendRateLimit(rate.Limit(cfg.SendRate), max(cfg.SendBurst, 1)))
	}
	if cfg.JWTSecret != "" {
		secret, err := rpc.LoadJWTSecret(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rpc.WithHTTPAuth(rpc.NewJWTAuth(secret)))
	}
	if cfg.Metrics {
		opts = append(opts, rpc.WithMetrics(prometheus.DefaultRegisterer))
	}
	return opts, nil
}

// ParseHeaders parses "Key: Value" strings.
func ParseHeaders(list []string) (http.Header, error) {
	header := make(http.Header, len(list))
	for _, h := range list {
		key, value, ok := strings.Cut(h, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Key: Value\"", h)
		}
		header.Add(key, strings.TrimSpace(value))
	}
	return header, nil
}

// SplitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func SplitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}
