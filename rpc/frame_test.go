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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, p *frameParser, chunks ...string) []string {
	t.Helper()
	var out []string
	for _, c := range chunks {
		values, malformed, err := p.decode([]byte(c))
		require.NoError(t, err)
		require.Empty(t, malformed)
		for _, v := range values {
			out = append(out, string(v))
		}
	}
	return out
}

func TestFrameSingleValue(t *testing.T) {
	p := newFrameParser(0)
	got := decodeAll(t, p, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
	assert.Equal(t, []string{`{"jsonrpc":"2.0","id":1,"result":"0x1"}`}, got)
	assert.Zero(t, p.pending())
}

func TestFrameBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  []string
	}{
		{"object-object", `{"a":1}{"b":2}`, []string{`{"a":1}`, `{"b":2}`}},
		{"object-object newline", "{\"a\":1}\n{\"b\":2}", []string{`{"a":1}`, `{"b":2}`}},
		{"object-array", `{"a":1}[{"b":2}]`, []string{`{"a":1}`, `[{"b":2}]`}},
		{"object-array newline", "{\"a\":1}\n[{\"b\":2}]", []string{`{"a":1}`, `[{"b":2}]`}},
		{"array-object", `[{"a":1}]{"b":2}`, []string{`[{"a":1}]`, `{"b":2}`}},
		{"array-object newline", "[{\"a\":1}]\n{\"b\":2}", []string{`[{"a":1}]`, `{"b":2}`}},
		{"array-array", `[{"a":1}][{"b":2}]`, []string{`[{"a":1}]`, `[{"b":2}]`}},
		{"array-array newline", "[{\"a\":1}]\n[{\"b\":2}]", []string{`[{"a":1}]`, `[{"b":2}]`}},
		{"crlf and tabs", "{\"a\":1}\r\n\t {\"b\":2}\n", []string{`{"a":1}`, `{"b":2}`}},
		{"three values", `{"a":1}{"b":2}{"c":3}`, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := newFrameParser(0)
			assert.Equal(t, test.want, decodeAll(t, p, test.chunk))
			assert.Zero(t, p.pending())
		})
	}
}

func TestFrameSplitAtEveryOffset(t *testing.T) {
	stream := `{"jsonrpc":"2.0","id":1,"result":{"x":"}{"}}` + "\n" +
		`[{"jsonrpc":"2.0","id":2,"result":[1,2]}]` +
		`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xab","result":"\"]["}}`
	want := []string{
		`{"jsonrpc":"2.0","id":1,"result":{"x":"}{"}}`,
		`[{"jsonrpc":"2.0","id":2,"result":[1,2]}]`,
		`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xab","result":"\"]["}}`,
	}
	for i := 1; i < len(stream); i++ {
		p := newFrameParser(0)
		got := decodeAll(t, p, stream[:i], stream[i:])
		require.Equal(t, want, got, "split at offset %d", i)
		require.Zero(t, p.pending(), "split at offset %d", i)
	}
}

func TestFrameByteByByte(t *testing.T) {
	stream := `{"id":1,"result":"a b"}` + "\n" + `{"id":2,"result":null}`
	p := newFrameParser(0)
	var chunks []string
	for i := range stream {
		chunks = append(chunks, stream[i:i+1])
	}
	got := decodeAll(t, p, chunks...)
	assert.Equal(t, []string{`{"id":1,"result":"a b"}`, `{"id":2,"result":null}`}, got)
}

func TestFrameWhitespaceChunk(t *testing.T) {
	p := newFrameParser(0)
	assert.Empty(t, decodeAll(t, p, " \n\t"))
	assert.Zero(t, p.pending())

	// Outside a string the leftover is left as it was.
	assert.Empty(t, decodeAll(t, p, `{"result":1,`))
	before := p.pending()
	assert.Empty(t, decodeAll(t, p, "  \n"))
	assert.Equal(t, before, p.pending())
	assert.Equal(t, []string{`{"result":1,"x":2}`}, decodeAll(t, p, `"x":2}`))

	// Inside a string literal the whitespace belongs to the value.
	got := decodeAll(t, p, `{"result":"a`, "  ", `b"}`)
	assert.Equal(t, []string{`{"result":"a  b"}`}, got)
}

func TestEndsInString(t *testing.T) {
	assert.False(t, endsInString([]byte(`{"a":1,`)))
	assert.True(t, endsInString([]byte(`{"a":"x`)))
	assert.True(t, endsInString([]byte(`{"a":"x\"`)))
	assert.False(t, endsInString([]byte(`{"a":"x\\"`)))
}

func TestFrameNullValue(t *testing.T) {
	p := newFrameParser(0)
	assert.Equal(t, []string{"null"}, decodeAll(t, p, "null"))
	assert.Equal(t, kindUnknown, classify([]byte("null")).kind)
}

func TestFrameMalformedSegment(t *testing.T) {
	p := newFrameParser(0)
	values, malformed, err := p.decode([]byte(`{"id":1}{"id":}{"id":2}`))
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, `{"id":1}`, string(values[0]))
	assert.Equal(t, `{"id":2}`, string(values[1]))
	require.Len(t, malformed, 1)
	assert.Equal(t, `{"id":}`, string(malformed[0]))
}

func TestFrameLimit(t *testing.T) {
	p := newFrameParser(16)
	_, _, err := p.decode([]byte(`{"result":"0123`))
	require.NoError(t, err)

	_, _, err = p.decode([]byte(`456789abcdef`))
	var ferr *FrameError
	require.True(t, errors.As(err, &ferr), "expected *FrameError, got %v", err)
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
	assert.Equal(t, 16, ferr.Limit)
	assert.Zero(t, p.pending(), "leftover not cleared")

	// The parser is usable again afterwards.
	assert.Equal(t, []string{`{"id":1}`}, decodeAll(t, p, `{"id":1}`))
}

func TestFrameReset(t *testing.T) {
	p := newFrameParser(0)
	decodeAll(t, p, `{"id":1,"res`)
	require.NotZero(t, p.pending())
	p.reset()
	assert.Equal(t, []string{`{"id":2}`}, decodeAll(t, p, `{"id":2}`))
}

func TestSplitValuesStrings(t *testing.T) {
	data := `{"a":"}{"}{"b":"\\\"}{"}`
	segs := splitValues([]byte(data))
	require.Len(t, segs, 2)
	assert.Equal(t, `{"a":"}{"}`, string(segs[0]))
	assert.Equal(t, `{"b":"\\\"}{"}`, string(segs[1]))
	assert.Equal(t, data, strings.Join([]string{string(segs[0]), string(segs[1])}, ""))
}
