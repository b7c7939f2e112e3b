// Copyright 2020 The go-ethereum Authors
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
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Reasons a request was rejected without a response.
const (
	dropConnectTimeout = "connect_timeout"
	dropQueueFull      = "queue_full"
	dropTransport      = "transport"
	dropWrite          = "write"
)

// transportMetrics holds the Prometheus metrics of one client. A nil
// *transportMetrics is valid and records nothing.
type transportMetrics struct {
	requests      prometheus.Counter
	responses     prometheus.Counter
	stray         prometheus.Counter
	dropped       *prometheus.CounterVec
	notifications prometheus.Counter
	unrouted      prometheus.Counter
	frameErrors   prometheus.Counter
	reconnects    prometheus.Counter
	pending       prometheus.Gauge
	roundTrip     prometheus.Histogram
}

// newTransportMetrics creates the client metrics and registers them with reg.
// Collectors that are already registered, e.g. by a previous client on the
// same registry, are reused.
func newTransportMetrics(reg prometheus.Registerer) (*transportMetrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsrpc", Subsystem: "transport", Name: name, Help: help,
		})
	}
	m := &transportMetrics{
		requests:      counter("requests_total", "Requests written to the socket"),
		responses:     counter("responses_total", "Responses matched to a pending request"),
		stray:         counter("stray_responses_total", "Responses no request was waiting for"),
		notifications: counter("notifications_total", "Notifications delivered to at least one listener"),
		unrouted:      counter("unrouted_notifications_total", "Notifications without a listener"),
		frameErrors:   counter("frame_errors_total", "Discarded malformed segments and frame buffer overflows"),
		reconnects:    counter("reconnects_total", "Connection resets"),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsrpc",
			Subsystem: "transport",
			Name:      "dropped_requests_total",
			Help:      "Requests rejected without a response",
		}, []string{"reason"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsrpc",
			Subsystem: "transport",
			Name:      "pending_requests",
			Help:      "Requests waiting for a response",
		}),
		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wsrpc",
			Subsystem: "transport",
			Name:      "round_trip_seconds",
			Help:      "Time from writing a request to matching its response",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}
	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.responses, err = register(reg, m.responses); err != nil {
		return nil, err
	}
	if m.stray, err = register(reg, m.stray); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, m.notifications); err != nil {
		return nil, err
	}
	if m.unrouted, err = register(reg, m.unrouted); err != nil {
		return nil, err
	}
	if m.frameErrors, err = register(reg, m.frameErrors); err != nil {
		return nil, err
	}
	if m.reconnects, err = register(reg, m.reconnects); err != nil {
		return nil, err
	}
	if m.dropped, err = register(reg, m.dropped); err != nil {
		return nil, err
	}
	if m.pending, err = register(reg, m.pending); err != nil {
		return nil, err
	}
	if m.roundTrip, err = register(reg, m.roundTrip); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, returning the existing collector if an identical
// one is already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *transportMetrics) requestWritten() {
	if m == nil {
		return
	}
	m.requests.Inc()
}

func (m *transportMetrics) responseMatched(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.responses.Inc()
	m.roundTrip.Observe(elapsed.Seconds())
}

func (m *transportMetrics) strayResponse() {
	if m == nil {
		return
	}
	m.stray.Inc()
}

func (m *transportMetrics) requestDropped(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

func (m *transportMetrics) notification(delivered int) {
	if m == nil {
		return
	}
	if delivered == 0 {
		m.unrouted.Inc()
	} else {
		m.notifications.Inc()
	}
}

func (m *transportMetrics) frameError(n int) {
	if m == nil || n == 0 {
		return
	}
	m.frameErrors.Add(float64(n))
}

func (m *transportMetrics) reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *transportMetrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
