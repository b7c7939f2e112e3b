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
	"container/list"
	"errors"
	"slices"
	"sync"

	"github.com/sunyihoo/go-wsrpc/event"
)

// maxListenerBuffer is the number of notifications a listener buffers before
// it is ended with ErrSubscriptionQueueOverflow.
const maxListenerBuffer = 20000

// This is the sentinel value sent on Listener.quit when Unsubscribe is called.
var errUnsubscribed = errors.New("unsubscribed")

var _ event.Subscription = (*Listener)(nil)

// Listener receives every notification pushed for one subscription id until
// it is unsubscribed. It is created by Client.SubscribeNamespace, or by
// Client.Subscribe after the caller has established the subscription on the
// server.
//
// Notifications are buffered per listener. A listener that falls more than
// maxListenerBuffer notifications behind is ended with
// ErrSubscriptionQueueOverflow.
type Listener struct {
	id     string
	ch     chan *Notification
	detach func(*Listener)

	// The in channel receives notifications from the client dispatcher.
	in chan *Notification

	// The error channel receives the error that ended the forwarding loop.
	// It is closed by Unsubscribe.
	err        chan error
	errOnce    sync.Once
	detachOnce sync.Once

	quit        chan error
	forwardDone chan struct{}
}

func newListener(id string, detach func(*Listener)) *Listener {
	l := &Listener{
		id:          id,
		ch:          make(chan *Notification),
		detach:      detach,
		in:          make(chan *Notification),
		err:         make(chan error, 1),
		quit:        make(chan error),
		forwardDone: make(chan struct{}),
	}
	go l.run()
	return l
}

// ID returns the subscription id the listener is registered for.
func (l *Listener) ID() string {
	return l.id
}

// Notifications returns the channel notifications are delivered on.
func (l *Listener) Notifications() <-chan *Notification {
	return l.ch
}

// Err returns the listener error channel. It receives a value when the
// listener ended for a reason other than Unsubscribe: ErrConnectionReset after
// Client.Reset, ErrClientQuit after Client.Close, or
// ErrSubscriptionQueueOverflow. It is closed by Unsubscribe.
func (l *Listener) Err() <-chan error {
	return l.err
}

// Unsubscribe stops delivery and closes the error channel. It does not tell
// the server anything. It can safely be called more than once.
func (l *Listener) Unsubscribe() {
	select {
	case l.quit <- errUnsubscribed:
	case <-l.forwardDone:
	}
	<-l.forwardDone
	// Detaching waits for the dispatcher, which may itself be ending this
	// listener. It must not run under errOnce.
	if l.detach != nil {
		l.detachOnce.Do(func() { l.detach(l) })
	}
	l.errOnce.Do(func() { close(l.err) })
}

// deliver is called by the dispatcher. It reports false once the listener
// has stopped forwarding.
func (l *Listener) deliver(n *Notification) bool {
	select {
	case l.in <- n:
		return true
	case <-l.forwardDone:
		return false
	}
}

// end stops the forwarding loop with err. Ending with errUnsubscribed closes
// the error channel as Unsubscribe would.
func (l *Listener) end(err error) {
	select {
	case l.quit <- err:
	case <-l.forwardDone:
	}
	if err == errUnsubscribed {
		l.errOnce.Do(func() {
			<-l.forwardDone
			close(l.err)
		})
	}
}

func (l *Listener) run() {
	err := l.forward()
	if err != nil && err != errUnsubscribed {
		l.err <- err
	}
	close(l.forwardDone)
}

// forward is the forwarding loop. It moves notifications from the dispatcher
// onto the listener channel, buffering while the consumer is busy.
func (l *Listener) forward() error {
	buffer := list.New()
	for {
		var (
			out  chan<- *Notification
			next *Notification
		)
		if buffer.Len() > 0 {
			out = l.ch
			next = buffer.Front().Value.(*Notification)
		}
		select {
		case err := <-l.quit:
			return err
		case n := <-l.in:
			if buffer.Len() == maxListenerBuffer {
				return ErrSubscriptionQueueOverflow
			}
			buffer.PushBack(n)
		case out <- next:
			buffer.Remove(buffer.Front())
		}
	}
}

// subscriptionBus routes notifications to listeners by subscription id.
// Listeners are multi-shot: delivery does not remove them.
type subscriptionBus struct {
	listeners map[string][]*Listener
}

func newSubscriptionBus() *subscriptionBus {
	return &subscriptionBus{listeners: make(map[string][]*Listener)}
}

func (b *subscriptionBus) subscribe(l *Listener) {
	b.listeners[l.id] = append(b.listeners[l.id], l)
}

// unsubscribe ends and removes every listener for id.
func (b *subscriptionBus) unsubscribe(id string) int {
	ls := b.listeners[id]
	delete(b.listeners, id)
	for _, l := range ls {
		l.end(errUnsubscribed)
	}
	return len(ls)
}

// remove drops a single listener without ending it.
func (b *subscriptionBus) remove(l *Listener) {
	ls := b.listeners[l.id]
	for i := range ls {
		if ls[i] == l {
			ls = append(ls[:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(b.listeners, l.id)
	} else {
		b.listeners[l.id] = ls
	}
}

// notify hands n to every listener registered for its subscription id and
// returns how many accepted it. Listeners that have stopped are removed.
// Notifications for unknown ids are dropped.
func (b *subscriptionBus) notify(n *Notification) int {
	delivered := 0
	for _, l := range slices.Clone(b.listeners[n.Subscription]) {
		if l.deliver(n) {
			delivered++
		} else {
			b.remove(l)
		}
	}
	return delivered
}

// endAll ends every listener with err and empties the bus.
func (b *subscriptionBus) endAll(err error) {
	for id, ls := range b.listeners {
		for _, l := range ls {
			l.end(err)
		}
		delete(b.listeners, id)
	}
}

func (b *subscriptionBus) count() int {
	n := 0
	for _, ls := range b.listeners {
		n += len(ls)
	}
	return n
}
