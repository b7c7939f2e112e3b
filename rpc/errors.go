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
	"errors"
	"fmt"
)

var (
	// ErrNotOpen is returned by Send when the connection is neither open nor
	// in the middle of being established.
	ErrNotOpen = errors.New("connection not open")

	// ErrConnectionClosed rejects requests that were pending when the socket
	// failed or closed. The underlying cause is wrapped alongside it.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnectionReset rejects pending requests and ends listeners when
	// Reset tears the connection down.
	ErrConnectionReset = errors.New("connection reset")

	// ErrRequestDropped is returned for a request sent while connecting when
	// the connection did not open within the connect wait.
	ErrRequestDropped = errors.New("request dropped: connection did not open in time")

	// ErrQueueFull is returned when too many requests are waiting for the
	// connection to open.
	ErrQueueFull = errors.New("connect queue full")

	// ErrDuplicateID is returned when a request id is already outstanding.
	ErrDuplicateID = errors.New("duplicate request id")

	// ErrMissingID is returned when a payload carries no usable id.
	ErrMissingID = errors.New("request has no id")

	// ErrClientQuit is returned when the client is closed.
	ErrClientQuit = errors.New("client is closed")

	// ErrSubscriptionQueueOverflow ends a listener that does not keep up with
	// its notifications.
	ErrSubscriptionQueueOverflow = errors.New("subscription queue overflow")

	// ErrFrameTooLarge is wrapped by FrameError when an incomplete inbound
	// value outgrows the frame buffer.
	ErrFrameTooLarge = errors.New("frame buffer limit exceeded")

	// ErrRequestTimeout is returned when no response arrived within the
	// request timeout.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrNoResult is returned by Response.Decode when the response carries
	// neither a result nor an error.
	ErrNoResult = errors.New("JSON-RPC response has no result")

	errClosing = fmt.Errorf("%w: closing", ErrNotOpen)
)

// Error wraps RPC errors, which contain an error code in addition to the message.
type Error interface {
	Error() string  // returns the message
	ErrorCode() int // returns the code
}

// A DataError contains some data in addition to the error message.
type DataError interface {
	Error() string          // returns the message
	ErrorData() interface{} // returns the error data
}

var (
	_ Error     = new(JsonError)
	_ DataError = new(JsonError)
)

// FrameError is a fatal framing failure. It tears the connection down.
type FrameError struct {
	Size  int // bytes held when the limit was hit
	Limit int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%v: %d bytes buffered, limit %d", e.Err, e.Size, e.Limit)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// closedError is the error pending requests are rejected with when the
// socket goes away.
func closedError(cause error) error {
	if cause == nil {
		return ErrConnectionClosed
	}
	if errors.Is(cause, ErrConnectionClosed) || errors.Is(cause, ErrClientQuit) || errors.Is(cause, ErrConnectionReset) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrConnectionClosed, cause)
}
