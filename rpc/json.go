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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	vsn                      = "2.0"
	subscribeMethodSuffix    = "_subscribe"
	unsubscribeMethodSuffix  = "_unsubscribe"
	notificationMethodSuffix = "_subscription"
)

// Message is a JSON-RPC 2.0 envelope. Which kind of message it is depends on
// the fields that are set.
type Message struct {
	Version string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Error   *JsonError      `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

func (msg *Message) hasValidID() bool {
	return len(msg.ID) > 0 && msg.ID[0] != '{' && msg.ID[0] != '['
}

func (msg *Message) isNotification() bool {
	return msg.ID == nil && strings.HasSuffix(msg.Method, notificationMethodSuffix)
}

func (msg *Message) String() string {
	b, _ := json.Marshal(msg)
	return string(b)
}

// JsonError is the error object of a JSON-RPC response.
type JsonError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (err *JsonError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("json-rpc error %d", err.Code)
	}
	return err.Message
}

func (err *JsonError) ErrorCode() int {
	return err.Code
}

func (err *JsonError) ErrorData() interface{} {
	return err.Data
}

// Response is a reply matched to a request. For a batch reply Raw holds the
// whole array and Messages every element; the reply is keyed by the id of the
// first element.
type Response struct {
	Raw   json.RawMessage
	Batch bool
	msgs  []*Message
}

// Messages returns the decoded reply messages, one for a single reply.
func (r *Response) Messages() []*Message {
	return r.msgs
}

// ID returns the id the response was matched by.
func (r *Response) ID() json.RawMessage {
	if len(r.msgs) == 0 {
		return nil
	}
	return r.msgs[0].ID
}

// Err returns the error object of a single reply, or nil. Batch replies carry
// per-element errors, see Messages.
func (r *Response) Err() error {
	if r.Batch || len(r.msgs) == 0 || r.msgs[0].Error == nil {
		return nil
	}
	return r.msgs[0].Error
}

// Decode unmarshals the result of a single reply into result. A reply with an
// error object returns that error. For a batch the whole array is decoded.
func (r *Response) Decode(result interface{}) error {
	if r.Batch {
		return json.Unmarshal(r.Raw, result)
	}
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.msgs) == 0 || len(r.msgs[0].Result) == 0 {
		return ErrNoResult
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(r.msgs[0].Result, result)
}

// Notification is a subscription push message:
//
//	{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xabc","result":{...}}}
type Notification struct {
	Method       string
	Subscription string
	Result       json.RawMessage
}

type subscriptionParams struct {
	ID     json.RawMessage `json:"subscription"`
	Result json.RawMessage `json:"result,omitempty"`
}

type inboundKind int

const (
	kindUnknown inboundKind = iota
	kindResponse
	kindNotification
)

func (k inboundKind) String() string {
	switch k {
	case kindResponse:
		return "response"
	case kindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// inbound is a classified inbound value. Exactly one of resp and note is set
// unless kind is kindUnknown. key is the registry key of a response or the
// subscription id of a notification.
type inbound struct {
	kind inboundKind
	key  string
	resp *Response
	note *Notification
}

// classify decodes a complete inbound JSON value once and decides where it
// goes. Arrays are batch replies keyed by their first element. Objects whose
// method ends in "_subscription" are notifications, objects with an id are
// responses. Everything else, JSON null included, is unknown.
func classify(raw json.RawMessage) inbound {
	if isBatch(raw) {
		var msgs []*Message
		if err := json.Unmarshal(raw, &msgs); err != nil || len(msgs) == 0 || msgs[0] == nil || !msgs[0].hasValidID() {
			return inbound{}
		}
		for i := range msgs {
			if msgs[i] == nil {
				msgs[i] = new(Message)
			}
		}
		return inbound{
			kind: kindResponse,
			key:  idKey(msgs[0].ID),
			resp: &Response{Raw: raw, Batch: true, msgs: msgs},
		}
	}
	var msg *Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg == nil {
		return inbound{}
	}
	switch {
	case msg.isNotification():
		var params subscriptionParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || len(params.ID) == 0 {
			return inbound{}
		}
		subid := subscriptionKey(params.ID)
		return inbound{
			kind: kindNotification,
			key:  subid,
			note: &Notification{Method: msg.Method, Subscription: subid, Result: params.Result},
		}
	case msg.hasValidID():
		return inbound{
			kind: kindResponse,
			key:  idKey(msg.ID),
			resp: &Response{Raw: raw, msgs: []*Message{msg}},
		}
	}
	return inbound{}
}

// requestID extracts the correlation id from an encoded outbound payload. For
// a batch it is the id of the first element.
func requestID(payload []byte) (string, error) {
	var target struct {
		ID json.RawMessage `json:"id"`
	}
	if isBatch(payload) {
		var batch []json.RawMessage
		if err := json.Unmarshal(payload, &batch); err != nil {
			return "", err
		}
		if len(batch) == 0 {
			return "", fmt.Errorf("%w: empty batch", ErrMissingID)
		}
		payload = batch[0]
	}
	if err := json.Unmarshal(payload, &target); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMissingID, err)
	}
	msg := Message{ID: target.ID}
	if !msg.hasValidID() || string(bytes.TrimSpace(target.ID)) == "null" {
		return "", ErrMissingID
	}
	return idKey(target.ID), nil
}

// idKey normalizes a raw id for registry lookups. Numbers and strings stay
// distinct, so 7 and "7" are different requests.
func idKey(id json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, id); err != nil {
		return string(bytes.TrimSpace(id))
	}
	return buf.String()
}

// subscriptionKey returns the subscription id as sent by the server: the
// string value when it is a JSON string, the literal text otherwise.
func subscriptionKey(id json.RawMessage) string {
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return idKey(id)
}

// isBatch returns true when the first non-whitespace characters is '['
func isBatch(raw []byte) bool {
	for _, c := range raw {
		// skip insignificant whitespace (http://www.ietf.org/rfc/rfc4627.txt)
		if c == 0x20 || c == 0x09 || c == 0x0a || c == 0x0d {
			continue
		}
		return c == '['
	}
	return false
}
