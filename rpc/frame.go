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
	"bytes"
	"encoding/json"
)

// defaultFrameBufferLimit bounds the incomplete value carried between reads.
// It matches the default websocket read limit.
const defaultFrameBufferLimit = wsDefaultReadLimit

// frameParser recovers discrete JSON values from inbound text that may hold
// several values back to back, or only part of one.
//
// Values are split where a closing '}' or ']' is followed, after optional
// whitespace, by an opening '{' or '['. Such adjacency cannot occur inside a
// single valid value, and the scan ignores brackets within strings. A trailing
// segment that does not parse yet is kept as the leftover and prepended to the
// next chunk.
//
// The parser is not safe for concurrent use. The client only touches it from
// its dispatch goroutine.
type frameParser struct {
	leftover []byte
	limit    int
}

func newFrameParser(limit int) *frameParser {
	return &frameParser{limit: limit}
}

// decode feeds one inbound chunk to the parser. It returns the complete values
// in arrival order and any segments that sat between two boundaries but were
// not valid JSON. Those are discarded. A non-nil error is a *FrameError and
// means the leftover outgrew the limit. The leftover is cleared in that case.
func (p *frameParser) decode(chunk []byte) (values []json.RawMessage, malformed [][]byte, err error) {
	if len(bytes.TrimSpace(chunk)) == 0 {
		// Whitespace leaves the leftover untouched unless it continues an
		// open string literal, where it is part of the value.
		if len(p.leftover) > 0 && endsInString(p.leftover) {
			p.leftover = append(p.leftover, chunk...)
			return nil, nil, p.checkLimit()
		}
		return nil, nil, nil
	}
	data := chunk
	if len(p.leftover) > 0 {
		data = append(p.leftover, chunk...)
		p.leftover = nil
	}
	segments := splitValues(data)
	for i, seg := range segments {
		seg = bytes.TrimSpace(seg)
		if len(seg) == 0 {
			continue
		}
		if json.Valid(seg) {
			values = append(values, json.RawMessage(bytes.Clone(seg)))
			continue
		}
		if i == len(segments)-1 {
			p.leftover = bytes.Clone(seg)
			break
		}
		malformed = append(malformed, seg)
	}
	return values, malformed, p.checkLimit()
}

func (p *frameParser) checkLimit() error {
	if p.limit > 0 && len(p.leftover) > p.limit {
		err := &FrameError{Size: len(p.leftover), Limit: p.limit, Err: ErrFrameTooLarge}
		p.leftover = nil
		return err
	}
	return nil
}

// pending returns the size of the carried leftover.
func (p *frameParser) pending() int {
	return len(p.leftover)
}

// reset discards the leftover. It is called whenever a new socket takes over.
func (p *frameParser) reset() {
	p.leftover = nil
}

// splitValues cuts data at every value boundary. The returned segments alias
// data.
func splitValues(data []byte) [][]byte {
	var (
		segments [][]byte
		start    int
		inString bool
		escaped  bool
	)
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '}', ']':
			j := i + 1
			for j < len(data) && isSpace(data[j]) {
				j++
			}
			if j < len(data) && (data[j] == '{' || data[j] == '[') {
				segments = append(segments, data[start:i+1])
				start = i + 1
			}
		}
	}
	return append(segments, data[start:])
}

// endsInString reports whether data stops inside a string literal.
func endsInString(data []byte) bool {
	inString, escaped := false, false
	for _, c := range data {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		}
	}
	return inString
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
