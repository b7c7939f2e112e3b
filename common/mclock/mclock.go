// Copyright 2016 The go-ethereum Authors
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

// Package mclock is a wrapper for a monotonic clock source. The transport takes
// all of its timers from a Clock so tests can drive them with a Simulated clock.
package mclock

import (
	"time"
)

// epoch anchors AbsTime to the monotonic reading taken at process start.
var epoch = time.Now()

// AbsTime is a point on the monotonic clock, in nanoseconds since epoch.
type AbsTime int64

// Now returns the current absolute monotonic time.
func Now() AbsTime {
	return AbsTime(time.Since(epoch))
}

// Add returns t + d as absolute time.
func (t AbsTime) Add(d time.Duration) AbsTime {
	return t + AbsTime(d)
}

// Sub returns t - t2 as a duration.
func (t AbsTime) Sub(t2 AbsTime) time.Duration {
	return time.Duration(t - t2)
}

// Clock is the source of time and timers. System is the real one.
type Clock interface {
	Now() AbsTime
	Sleep(time.Duration)
	NewTimer(time.Duration) ChanTimer
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback created by AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer, false means it already fired or was stopped.
	Stop() bool
}

// ChanTimer delivers its expiry time on a channel. It is created by NewTimer.
type ChanTimer interface {
	Timer

	// C receives the expiry time.
	C() <-chan AbsTime
	// Reset rearms the timer. Stop it and drain C first.
	Reset(time.Duration)
}

// System is the monotonic system clock.
type System struct{}

func (System) Now() AbsTime          { return Now() }
func (System) Sleep(d time.Duration) { time.Sleep(d) }

func (System) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (System) NewTimer(d time.Duration) ChanTimer {
	st := &systemTimer{ch: make(chan AbsTime, 1)}
	st.Timer = time.AfterFunc(d, st.fire)
	return st
}

type systemTimer struct {
	*time.Timer
	ch chan AbsTime
}

// fire never blocks, so a Reset without draining C drops the older expiry.
func (st *systemTimer) fire() {
	select {
	case st.ch <- Now():
	default:
	}
}

func (st *systemTimer) Reset(d time.Duration) { st.Timer.Reset(d) }
func (st *systemTimer) C() <-chan AbsTime     { return st.ch }
