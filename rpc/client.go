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

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sunyihoo/go-wsrpc/common/mclock"
	"github.com/sunyihoo/go-wsrpc/event"
	"github.com/sunyihoo/go-wsrpc/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// errAbandoned settles requests whose caller stopped waiting.
var errAbandoned = errors.New("request abandoned")

// Client is a JSON-RPC client on a single persistent websocket.
//
// All socket events, timer expiries and caller requests are funnelled into one
// dispatch goroutine. It owns the frame parser, the pending request registry,
// the subscription bus and the connect queue, so none of them needs locking.
type Client struct {
	cfg     *clientConfig
	log     log.Logger
	clock   mclock.Clock
	metrics *transportMetrics
	limiter *rate.Limiter
	conns   *connManager

	idCounter atomic.Uint64
	state     atomic.Int32 // ConnectionState, written only by dispatch

	lifecycle      event.FeedOf[LifecycleEvent]
	lifecycleScope event.SubscriptionScope
	resetGroup     singleflight.Group

	// for dispatch
	close        chan struct{}
	didQuit      chan struct{}   // closed when client quits
	connectOp    chan connectOp  // begin dialing
	waitOp       chan chan error // wait for the connection to open
	reqInit      chan *requestOp // register and write or queue requests
	reqTimeout   chan *requestOp // removes requests whose caller gave up
	queueTimeout chan *requestOp // connect wait of a queued request expired
	dialDone     chan dialResult
	readOp       chan readOp    // inbound messages
	readErr      chan connError // terminal read errors
	subOp        chan subOp
	disconnectOp chan disconnectOp
	resetOp      chan chan error
	closeTimeout chan *wsConn // close handshake did not finish in time
}

type connectOp struct {
	reply chan error
	wait  chan error // optional, receives the outcome of the attempt
}

type dialResult struct {
	attempt uint64
	conn    *websocket.Conn
	err     error
}

type readOp struct {
	conn *wsConn
	data []byte
}

type connError struct {
	conn *wsConn
	err  error
}

type subOp struct {
	add         *Listener
	remove      *Listener
	unsubscribe string
	done        chan struct{}
}

type disconnectOp struct {
	code   int
	reason string
	reply  chan error
}

// Dial creates a new client for the given websocket URL and waits until the
// connection is open.
func Dial(rawurl string, options ...ClientOption) (*Client, error) {
	return DialContext(context.Background(), rawurl, options...)
}

// DialContext creates a new client for the given websocket URL and waits
// until the connection is open or ctx is done.
//
// The context only bounds the initial connection establishment. It does not
// affect subsequent interactions with the client.
func DialContext(ctx context.Context, rawurl string, options ...ClientOption) (*Client, error) {
	c, err := NewClient(rawurl, options...)
	if err != nil {
		return nil, err
	}
	wait := make(chan error, 1)
	if err := c.connect(wait); err != nil {
		c.Close()
		return nil, err
	}
	select {
	case err = <-wait:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// NewClient creates a client for a "ws" or "wss" URL. It does not dial, call
// Connect for that. Credentials in the URL are sent as Basic authorization.
func NewClient(rawurl string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("no known transport for URL scheme %q", u.Scheme)
	}
	cfg := new(clientConfig)
	for _, opt := range options {
		opt.applyOption(cfg)
	}
	cfg.setDefaults()

	metrics, err := newTransportMetrics(cfg.registerer)
	if err != nil {
		return nil, err
	}
	logger := cfg.logger.New("url", u.Redacted())
	c := &Client{
		cfg:          cfg,
		log:          logger,
		clock:        cfg.clock,
		metrics:      metrics,
		conns:        newConnManager(u, cfg, logger),
		close:        make(chan struct{}),
		didQuit:      make(chan struct{}),
		connectOp:    make(chan connectOp),
		waitOp:       make(chan chan error),
		reqInit:      make(chan *requestOp),
		reqTimeout:   make(chan *requestOp),
		queueTimeout: make(chan *requestOp),
		dialDone:     make(chan dialResult),
		readOp:       make(chan readOp),
		readErr:      make(chan connError),
		subOp:        make(chan subOp),
		disconnectOp: make(chan disconnectOp),
		resetOp:      make(chan chan error),
		closeTimeout: make(chan *wsConn),
	}
	if cfg.sendLimit > 0 {
		c.limiter = rate.NewLimiter(cfg.sendLimit, max(cfg.sendBurst, 1))
	}
	c.state.Store(int32(StateClosed))
	go c.dispatch()
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Connected reports whether the connection is open.
func (c *Client) Connected() bool {
	return c.State() == StateOpen
}

// IsConnecting reports whether a connection is being established.
func (c *Client) IsConnecting() bool {
	return c.State() == StateConnecting
}

// Connect starts dialing if the client is closed. It does not wait for the
// connection to open, see WaitOpen.
func (c *Client) Connect() error {
	return c.connect(nil)
}

func (c *Client) connect(wait chan error) error {
	reply := make(chan error, 1)
	select {
	case c.connectOp <- connectOp{reply, wait}:
		return <-reply
	case <-c.didQuit:
		return ErrClientQuit
	}
}

// WaitOpen blocks until the connection is open. It fails with the reason if
// the current connection attempt ends without opening, and with ErrNotOpen if
// no attempt is in progress.
func (c *Client) WaitOpen(ctx context.Context) error {
	w := make(chan error, 1)
	select {
	case c.waitOp <- w:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.didQuit:
		return ErrClientQuit
	}
	select {
	case err := <-w:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.didQuit:
		return ErrClientQuit
	}
}

// Send writes payload and waits for the response carrying the same id.
//
// The payload is any value that encodes to a JSON-RPC request object, or to a
// batch array of them. Raw JSON can be passed as json.RawMessage or []byte.
// A batch is matched by the id of its first element, and the whole array
// received in reply is returned.
//
// While the connection is open the request is written immediately. While it
// is connecting the request is queued until it opens; if that takes longer
// than the connect wait the request fails with ErrRequestDropped. In any other
// state Send fails with ErrNotOpen. Pending requests are rejected when the
// connection fails or closes.
//
// If ctx has no deadline, the request timeout configured with
// WithRequestTimeout applies.
func (c *Client) Send(ctx context.Context, payload interface{}) (*Response, error) {
	return c.send(ctx, payload, nil)
}

// send submits payload to the dispatcher. A non-nil listen is registered on
// the bus for the subscription id in a successful reply.
func (c *Client) send(ctx context.Context, payload interface{}, listen *Listener) (*Response, error) {
	msg, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	key, err := requestID(msg)
	if err != nil {
		return nil, err
	}
	if s := c.State(); s == StateClosed || s == StateClosing {
		return nil, ErrNotOpen
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	op := newRequestOp(key, msg)
	op.listen = listen
	select {
	case c.reqInit <- op:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.didQuit:
		return nil, ErrClientQuit
	}
	return c.wait(ctx, op)
}

func (c *Client) wait(ctx context.Context, op *requestOp) (*Response, error) {
	var timeout <-chan mclock.AbsTime
	if _, ok := ctx.Deadline(); !ok && c.cfg.requestTimeout > 0 {
		timer := c.clock.NewTimer(c.cfg.requestTimeout)
		defer timer.Stop()
		timeout = timer.C()
	}
	var err error
	select {
	case res := <-op.result:
		return res.resp, res.err
	case <-ctx.Done():
		err = ctx.Err()
	case <-timeout:
		err = fmt.Errorf("%w after %v", ErrRequestTimeout, c.cfg.requestTimeout)
	case <-c.didQuit:
		select {
		case res := <-op.result:
			return res.resp, res.err
		default:
			return nil, ErrClientQuit
		}
	}
	select {
	case c.reqTimeout <- op:
	case <-c.didQuit:
	}
	return nil, err
}

// Call performs a JSON-RPC call with the given arguments and unmarshals into
// result if no error occurred. The request id is allocated by the client.
//
// The result must be a pointer so that package json can unmarshal into it. You
// can also pass nil, in which case the result is ignored.
func (c *Client) Call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if result != nil && reflect.TypeOf(result).Kind() != reflect.Ptr {
		return fmt.Errorf("call result parameter must be pointer or nil interface: %v", result)
	}
	msg, err := c.newMessage(method, args...)
	if err != nil {
		return err
	}
	resp, err := c.Send(ctx, msg)
	if err != nil {
		return err
	}
	return resp.Decode(result)
}

func (c *Client) nextID() json.RawMessage {
	id := c.idCounter.Add(1)
	return strconv.AppendUint(nil, id, 10)
}

func (c *Client) newMessage(method string, paramsIn ...interface{}) (*Message, error) {
	msg := &Message{Version: vsn, ID: c.nextID(), Method: method}
	if paramsIn != nil { // prevent sending "params":null
		var err error
		if msg.Params, err = json.Marshal(paramsIn); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// SubscribeNamespace calls "<namespace>_subscribe" with the given arguments
// and returns a listener for the subscription id the server replies with. The
// listener is registered before any later message from the server is
// processed, so notifications sent right after the reply are delivered.
//
// Ending the listener does not cancel the subscription on the server, call
// "<namespace>_unsubscribe" for that.
func (c *Client) SubscribeNamespace(ctx context.Context, namespace string, args ...interface{}) (*Listener, error) {
	msg, err := c.newMessage(namespace+subscribeMethodSuffix, args...)
	if err != nil {
		return nil, err
	}
	l := newListener("", c.detachListener)
	resp, err := c.send(ctx, msg, l)
	if err == nil {
		err = resp.Err()
	}
	if err == nil && l.id == "" {
		err = fmt.Errorf("invalid subscription id in reply: %s", resp.Raw)
	}
	if err != nil {
		// The reply may have registered l even though the caller gave up.
		l.Unsubscribe()
		return nil, err
	}
	return l, nil
}

// Subscribe registers a listener for notifications carrying the given
// subscription id. Several listeners may share an id. The subscription itself
// must be established by the caller, usually by calling "<ns>_subscribe".
func (c *Client) Subscribe(id string) (*Listener, error) {
	l := newListener(id, c.detachListener)
	done := make(chan struct{})
	select {
	case c.subOp <- subOp{add: l, done: done}:
		<-done
		return l, nil
	case <-c.didQuit:
		l.end(ErrClientQuit)
		return nil, ErrClientQuit
	}
}

// Unsubscribe removes all listeners for the subscription id. Their error
// channels are closed.
func (c *Client) Unsubscribe(id string) {
	done := make(chan struct{})
	select {
	case c.subOp <- subOp{unsubscribe: id, done: done}:
		<-done
	case <-c.didQuit:
	}
}

func (c *Client) detachListener(l *Listener) {
	done := make(chan struct{})
	select {
	case c.subOp <- subOp{remove: l, done: done}:
		<-done
	case <-c.didQuit:
	}
}

// SubscribeLifecycle delivers connection lifecycle events to ch. Events are
// sent from the client's dispatch goroutine, so ch should be buffered and
// drained promptly.
func (c *Client) SubscribeLifecycle(ch chan<- LifecycleEvent) event.Subscription {
	if sub := c.lifecycleScope.Track(c.lifecycle.Subscribe(ch)); sub != nil {
		return sub
	}
	return event.NewSubscription(func(<-chan struct{}) error { return ErrClientQuit })
}

// Disconnect starts the close handshake with the given close code and reason.
// The socket is dropped when the server answers, or after the close timeout.
// Disconnect does nothing if there is no connection.
func (c *Client) Disconnect(code int, reason string) error {
	reply := make(chan error, 1)
	select {
	case c.disconnectOp <- disconnectOp{code, reason, reply}:
		return <-reply
	case <-c.didQuit:
		return nil
	}
}

// Reset drops the current connection, rejects all pending requests and ends
// all listeners with ErrConnectionReset, then dials again with the original
// URL and options. Concurrent calls are coalesced into one reset.
func (c *Client) Reset() error {
	_, err, _ := c.resetGroup.Do("reset", func() (interface{}, error) {
		reply := make(chan error, 1)
		select {
		case c.resetOp <- reply:
			return nil, <-reply
		case <-c.didQuit:
			return nil, ErrClientQuit
		}
	})
	return err
}

// Close terminates the client. Pending requests fail and listeners end with
// ErrClientQuit.
func (c *Client) Close() {
	select {
	case c.close <- struct{}{}:
		<-c.didQuit
	case <-c.didQuit:
	}
}

// dispatch is the main loop of the client.
func (c *Client) dispatch() {
	d := &dispatcher{
		c:        c,
		parser:   newFrameParser(c.cfg.frameBufferLimit()),
		registry: newRequestRegistry(),
		bus:      newSubscriptionBus(),
	}
	defer close(c.didQuit)

	for {
		select {
		case <-c.close:
			d.shutdown()
			return

		case op := <-c.connectOp:
			err := d.connect()
			op.reply <- err
			if err == nil && op.wait != nil {
				d.waitOpen(op.wait)
			}

		case w := <-c.waitOp:
			d.waitOpen(w)

		case op := <-c.reqInit:
			d.send(op)

		case op := <-c.reqTimeout:
			d.abandon(op)

		case op := <-c.queueTimeout:
			d.expire(op)

		case res := <-c.dialDone:
			d.dialed(res)

		case msg := <-c.readOp:
			if msg.conn == d.conn {
				d.read(msg.data)
			}

		case e := <-c.readErr:
			if e.conn == d.conn {
				d.connFailed(e.err)
			}

		case op := <-c.subOp:
			d.subscription(op)

		case op := <-c.disconnectOp:
			op.reply <- d.disconnect(op.code, op.reason)

		case reply := <-c.resetOp:
			reply <- d.reset()

		case wc := <-c.closeTimeout:
			if wc == d.conn && c.State() == StateClosing {
				c.log.Debug("Close handshake timed out", "conn", wc.id)
				d.teardown(ErrConnectionClosed, dropTransport)
				d.emit(LifecycleEvent{Kind: EventClose, Conn: wc.id, Code: d.closeCode, Reason: d.closeReason})
			}
		}
		c.metrics.setPending(d.registry.len())
	}
}

// dispatcher is the state owned by the dispatch goroutine.
type dispatcher struct {
	c        *Client
	parser   *frameParser
	registry *requestRegistry
	bus      *subscriptionBus

	queue       []*requestOp // requests waiting for the connection to open
	waiters     []chan error // WaitOpen callers
	conn        *wsConn      // current socket, nil unless open or closing
	attempt     uint64       // dial attempt counter, stale dial results are discarded
	dialCancel  context.CancelFunc
	closeTimer  mclock.Timer
	closeCode   int
	closeReason string
}

func (d *dispatcher) setState(s ConnectionState) {
	d.c.state.Store(int32(s))
}

func (d *dispatcher) emit(ev LifecycleEvent) {
	d.c.lifecycle.Send(ev)
}

func (d *dispatcher) connect() error {
	switch d.c.State() {
	case StateOpen, StateConnecting:
		return nil
	case StateClosing:
		return errClosing
	}
	d.attempt++
	attempt := d.attempt
	ctx, cancel := context.WithCancel(context.Background())
	d.dialCancel = cancel
	d.setState(StateConnecting)
	d.c.log.Debug("Connecting")

	go func() {
		conn, err := d.c.conns.dial(ctx)
		select {
		case d.c.dialDone <- dialResult{attempt, conn, err}:
		case <-d.c.didQuit:
			if conn != nil {
				conn.Close()
			}
		}
	}()
	return nil
}

func (d *dispatcher) dialed(res dialResult) {
	if res.attempt != d.attempt || d.c.State() != StateConnecting {
		if res.conn != nil {
			res.conn.Close()
		}
		return
	}
	d.dialCancel()
	d.dialCancel = nil

	if res.err != nil {
		d.c.log.Debug("Dial failed", "err", res.err)
		d.teardown(closedError(res.err), dropTransport)
		d.emit(LifecycleEvent{Kind: EventError, Err: res.err})
		d.emit(LifecycleEvent{Kind: EventClose, Err: res.err, Code: websocket.CloseAbnormalClosure})
		return
	}
	wc := newWSConn(uuid.NewString(), res.conn)
	d.conn = wc
	d.parser.reset()
	wc.start(d.c)
	d.setState(StateOpen)
	d.c.log.Debug("Connection open", "conn", wc.id)
	d.emit(LifecycleEvent{Kind: EventOpen, Conn: wc.id})

	queue := d.queue
	d.queue = nil
	for _, op := range queue {
		op.queued = false
		if op.expiry != nil {
			op.expiry.Stop()
			op.expiry = nil
		}
		if op.done {
			continue
		}
		if d.conn != wc {
			// A write failure below tore the connection down. The rest
			// were rejected with it.
			break
		}
		d.write(op)
	}
	if d.conn != wc {
		return
	}
	d.emit(LifecycleEvent{Kind: EventConnect, Conn: wc.id})
	d.notifyWaiters(nil)
}

func (d *dispatcher) waitOpen(w chan error) {
	switch d.c.State() {
	case StateOpen:
		w <- nil
	case StateConnecting:
		d.waiters = append(d.waiters, w)
	default:
		w <- ErrNotOpen
	}
}

func (d *dispatcher) notifyWaiters(err error) {
	for _, w := range d.waiters {
		w <- err
	}
	d.waiters = nil
}

func (d *dispatcher) send(op *requestOp) {
	state := d.c.State()
	if state == StateClosed || state == StateClosing {
		op.fulfill(nil, ErrNotOpen)
		return
	}
	if err := d.registry.register(op); err != nil {
		op.fulfill(nil, err)
		return
	}
	if state == StateOpen {
		d.write(op)
		return
	}
	if len(d.queue) >= d.c.cfg.maxQueued {
		d.registry.remove(op)
		op.fulfill(nil, ErrQueueFull)
		d.c.metrics.requestDropped(dropQueueFull, 1)
		return
	}
	op.queued = true
	op.expiry = d.c.clock.AfterFunc(d.c.cfg.connectWait, func() {
		select {
		case d.c.queueTimeout <- op:
		case <-d.c.didQuit:
		}
	})
	d.queue = append(d.queue, op)
}

func (d *dispatcher) write(op *requestOp) {
	if err := d.conn.write(op.payload, defaultWriteTimeout); err != nil {
		d.registry.remove(op)
		op.fulfill(nil, closedError(err))
		d.c.metrics.requestDropped(dropWrite, 1)
		d.connFailed(err)
		return
	}
	op.written = d.c.clock.Now()
	d.c.metrics.requestWritten()
}

// expire rejects a request that waited too long for the connection to open.
func (d *dispatcher) expire(op *requestOp) {
	if !op.queued || op.done {
		return
	}
	d.dequeue(op)
	d.registry.remove(op)
	op.expiry = nil
	op.fulfill(nil, ErrRequestDropped)
	d.c.log.Debug("Dropping request, connection not open", "id", op.key, "wait", d.c.cfg.connectWait)
	d.c.metrics.requestDropped(dropConnectTimeout, 1)
}

// abandon forgets a request whose caller stopped waiting.
func (d *dispatcher) abandon(op *requestOp) {
	if op.queued {
		d.dequeue(op)
	}
	d.registry.remove(op)
	op.fulfill(nil, errAbandoned)
}

func (d *dispatcher) dequeue(op *requestOp) {
	for i, q := range d.queue {
		if q == op {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			break
		}
	}
	op.queued = false
}

func (d *dispatcher) read(data []byte) {
	values, malformed, err := d.parser.decode(data)
	for _, seg := range malformed {
		d.c.log.Debug("Discarding malformed inbound segment", "conn", d.conn.id, "len", len(seg))
	}
	d.c.metrics.frameError(len(malformed))
	for _, v := range values {
		d.handle(classify(v))
	}
	if err != nil {
		d.c.log.Warn("Inbound frame too large", "conn", d.conn.id, "err", err)
		d.c.metrics.frameError(1)
		d.connFailed(err)
	}
}

func (d *dispatcher) handle(in inbound) {
	switch in.kind {
	case kindResponse:
		// The listener must be on the bus before the caller sees the reply.
		if op := d.registry.lookup(in.key); op != nil && op.listen != nil {
			d.startListener(op.listen, in.resp)
		}
		op, ok := d.registry.resolve(in.key, in.resp)
		if !ok {
			d.c.log.Debug("Discarding stray response", "id", in.key)
			d.c.metrics.strayResponse()
			return
		}
		d.c.metrics.responseMatched(d.c.clock.Now().Sub(op.written))
	case kindNotification:
		n := d.bus.notify(in.note)
		if n == 0 {
			d.c.log.Trace("No listener for notification", "sub", in.key, "method", in.note.Method)
		}
		d.c.metrics.notification(n)
	default:
		d.c.log.Debug("Ignoring unclassifiable inbound message")
	}
}

// startListener registers l for the subscription id carried in a subscribe
// reply. Error replies and replies without a string id leave it unregistered.
func (d *dispatcher) startListener(l *Listener, resp *Response) {
	var id string
	if resp.Err() != nil || resp.Decode(&id) != nil || id == "" {
		return
	}
	l.id = id
	d.bus.subscribe(l)
}

// connFailed handles the end of the current socket, reported by the read
// loop or caused by a write or framing failure.
func (d *dispatcher) connFailed(err error) {
	wc := d.conn
	if wc == nil {
		return
	}
	code, reason := websocket.CloseAbnormalClosure, ""
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	}
	clean := ce != nil && (d.c.State() == StateClosing || ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway)
	ev := LifecycleEvent{Kind: EventClose, Conn: wc.id, Code: code, Reason: reason}

	// Subscribers observe the error with the socket gone and every pending
	// request already rejected.
	d.teardown(closedError(err), dropTransport)
	if clean {
		d.c.log.Debug("Connection closed", "conn", wc.id, "code", code, "reason", reason)
	} else {
		d.c.log.Debug("Connection failed", "conn", wc.id, "err", err)
		d.emit(LifecycleEvent{Kind: EventError, Conn: wc.id, Err: err})
		ev.Err = err
	}
	d.emit(ev)
}

// teardown drops the socket or dial in progress and rejects everything that
// was waiting on it. Listeners survive.
func (d *dispatcher) teardown(err error, reason string) {
	if d.conn != nil {
		d.conn.close()
		d.conn = nil
	}
	if d.dialCancel != nil {
		d.dialCancel()
		d.dialCancel = nil
	}
	if d.closeTimer != nil {
		d.closeTimer.Stop()
		d.closeTimer = nil
	}
	d.parser.reset()
	for _, op := range d.queue {
		op.queued = false
	}
	d.queue = nil
	n := d.registry.dropAll(err)
	d.c.metrics.requestDropped(reason, n)
	d.setState(StateClosed)
	d.notifyWaiters(err)
}

func (d *dispatcher) disconnect(code int, reason string) error {
	switch d.c.State() {
	case StateClosed, StateClosing:
		return nil
	case StateConnecting:
		// No socket yet, abandon the dial.
		d.attempt++
		d.teardown(ErrConnectionClosed, dropTransport)
		d.emit(LifecycleEvent{Kind: EventClose, Code: code, Reason: reason})
		return nil
	}
	wc := d.conn
	if err := wc.writeClose(code, reason); err != nil {
		d.connFailed(err)
		return err
	}
	d.setState(StateClosing)
	d.closeCode, d.closeReason = code, reason
	d.closeTimer = d.c.clock.AfterFunc(d.c.cfg.closeTimeout, func() {
		select {
		case d.c.closeTimeout <- wc:
		case <-d.c.didQuit:
		}
	})
	return nil
}

func (d *dispatcher) reset() error {
	if wc := d.conn; wc != nil {
		wc.writeClose(websocket.CloseNormalClosure, "reset")
		d.teardown(ErrConnectionReset, dropTransport)
		d.emit(LifecycleEvent{Kind: EventClose, Conn: wc.id, Code: websocket.CloseNormalClosure, Reason: "reset"})
	} else {
		d.attempt++
		d.teardown(ErrConnectionReset, dropTransport)
	}
	d.bus.endAll(ErrConnectionReset)
	d.c.metrics.reconnect()
	d.c.log.Debug("Resetting connection")
	return d.connect()
}

func (d *dispatcher) subscription(op subOp) {
	switch {
	case op.add != nil:
		d.bus.subscribe(op.add)
	case op.remove != nil:
		d.bus.remove(op.remove)
	default:
		d.bus.unsubscribe(op.unsubscribe)
	}
	close(op.done)
}

func (d *dispatcher) shutdown() {
	wc := d.conn
	if wc != nil {
		wc.writeClose(websocket.CloseNormalClosure, "")
	}
	d.attempt++
	d.teardown(ErrClientQuit, dropTransport)
	d.bus.endAll(ErrClientQuit)
	if wc != nil {
		d.emit(LifecycleEvent{Kind: EventClose, Conn: wc.id, Code: websocket.CloseNormalClosure})
	}
	d.c.lifecycleScope.Close()
}

// encodePayload turns a Send payload into the bytes written to the socket.
func encodePayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, ErrMissingID
	case json.RawMessage:
		return p, nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
