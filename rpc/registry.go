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
	"github.com/sunyihoo/go-wsrpc/common/mclock"
)

// requestOp represents a pending request. This is used for both batch and non-batch
// requests.
type requestOp struct {
	key     string
	payload []byte
	result  chan opResult // the response goes here, buffered so dispatch never blocks

	// The fields below are owned by the dispatch goroutine.
	done    bool         // true once result has a value
	queued  bool         // waiting in the connect queue
	expiry  mclock.Timer // connect wait deadline while queued
	written mclock.AbsTime
	listen  *Listener // registered for the subscription id in the reply
}

type opResult struct {
	resp *Response
	err  error
}

func newRequestOp(key string, payload []byte) *requestOp {
	return &requestOp{key: key, payload: payload, result: make(chan opResult, 1)}
}

// fulfill settles the request. Only the first call has an effect.
func (op *requestOp) fulfill(resp *Response, err error) bool {
	if op.done {
		return false
	}
	op.done = true
	if op.expiry != nil {
		op.expiry.Stop()
		op.expiry = nil
	}
	op.result <- opResult{resp, err}
	return true
}

// requestRegistry tracks outstanding requests by id. Every entry is settled
// exactly once: by its response, by dropAll, or by its caller giving up.
type requestRegistry struct {
	ops map[string]*requestOp
}

func newRequestRegistry() *requestRegistry {
	return &requestRegistry{ops: make(map[string]*requestOp)}
}

// register adds op under its id. An id that is still outstanding is a caller
// error.
func (r *requestRegistry) register(op *requestOp) error {
	if _, ok := r.ops[op.key]; ok {
		return ErrDuplicateID
	}
	r.ops[op.key] = op
	return nil
}

// resolve fulfills and removes the request waiting for key. A key nobody
// waits for is a stray reply and resolve reports false.
func (r *requestRegistry) resolve(key string, resp *Response) (*requestOp, bool) {
	op, ok := r.ops[key]
	if !ok {
		return nil, false
	}
	delete(r.ops, key)
	op.fulfill(resp, nil)
	return op, true
}

// lookup returns the request waiting for key, if any.
func (r *requestRegistry) lookup(key string) *requestOp {
	return r.ops[key]
}

// remove forgets op without settling it. It does nothing when the id has
// since been taken by a different request.
func (r *requestRegistry) remove(op *requestOp) bool {
	if cur, ok := r.ops[op.key]; ok && cur == op {
		delete(r.ops, op.key)
		return true
	}
	return false
}

// dropAll rejects every outstanding request with err and empties the registry.
func (r *requestRegistry) dropAll(err error) int {
	n := 0
	for key, op := range r.ops {
		if op.fulfill(nil, err) {
			n++
		}
		delete(r.ops, key)
	}
	return n
}

func (r *requestRegistry) len() int {
	return len(r.ops)
}
