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

import "fmt"

// ConnectionState is the state of the client's socket.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("<invalid state %d>", int32(s))
	}
}

// EventKind identifies a connection lifecycle event.
type EventKind int

const (
	// EventOpen is sent when the websocket handshake completed.
	EventOpen EventKind = iota
	// EventConnect is sent after EventOpen, once requests queued while
	// connecting have been written.
	EventConnect
	// EventError is sent when the socket fails. An EventClose follows.
	EventError
	// EventClose is sent when the socket is gone, for whatever reason.
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventConnect:
		return "connect"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("<invalid event %d>", int(k))
	}
}

// LifecycleEvent describes a change of the connection.
type LifecycleEvent struct {
	Kind EventKind
	Conn string // id of the socket the event belongs to, empty if none was established
	Err  error  // set for EventError, and for EventClose when the close was not clean

	// Close code and reason, set for EventClose.
	Code   int
	Reason string
}
