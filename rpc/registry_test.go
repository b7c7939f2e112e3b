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
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	reg := newRequestRegistry()
	op7 := newRequestOp("7", nil)
	op8 := newRequestOp("8", nil)
	require.NoError(t, reg.register(op7))
	require.NoError(t, reg.register(op8))

	resp := classify(json.RawMessage(`{"jsonrpc":"2.0","id":7,"result":true}`)).resp
	got, ok := reg.resolve("7", resp)
	require.True(t, ok)
	assert.Same(t, op7, got)
	assert.Equal(t, 1, reg.len())

	res := <-op7.result
	assert.Same(t, resp, res.resp)
	assert.Len(t, op8.result, 0, "other request settled")

	_, ok = reg.resolve("7", resp)
	assert.False(t, ok, "resolved twice")
}

func TestRegistryDuplicate(t *testing.T) {
	reg := newRequestRegistry()
	require.NoError(t, reg.register(newRequestOp("1", nil)))
	assert.ErrorIs(t, reg.register(newRequestOp("1", nil)), ErrDuplicateID)
	assert.NoError(t, reg.register(newRequestOp(`"1"`, nil)), "string and number ids collide")
}

func TestRegistryRemove(t *testing.T) {
	reg := newRequestRegistry()
	op := newRequestOp("1", nil)
	require.NoError(t, reg.register(op))
	require.True(t, reg.remove(op))
	assert.Zero(t, reg.len())

	// A newer request with the same id is not removed by the old one.
	op2 := newRequestOp("1", nil)
	require.NoError(t, reg.register(op2))
	assert.False(t, reg.remove(op))
	assert.Equal(t, 1, reg.len())
}

func TestRegistryDropAll(t *testing.T) {
	reg := newRequestRegistry()
	ops := []*requestOp{newRequestOp("1", nil), newRequestOp("2", nil), newRequestOp("3", nil)}
	for _, op := range ops {
		require.NoError(t, reg.register(op))
	}
	// Already settled requests are not counted.
	ops[2].fulfill(nil, errors.New("gone"))

	fail := errors.New("socket died")
	assert.Equal(t, 2, reg.dropAll(fail))
	assert.Zero(t, reg.len())
	for _, op := range ops[:2] {
		res := <-op.result
		assert.ErrorIs(t, res.err, fail)
	}
}

func TestRequestOpFulfillOnce(t *testing.T) {
	op := newRequestOp("1", nil)
	assert.True(t, op.fulfill(nil, ErrNotOpen))
	assert.False(t, op.fulfill(nil, ErrQueueFull))
	res := <-op.result
	assert.ErrorIs(t, res.err, ErrNotOpen)
}
