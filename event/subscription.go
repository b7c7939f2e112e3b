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

package event

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Subscription represents a stream of events. The carrier of the events is typically a
// channel, but isn't part of the interface.
//
// Subscriptions can fail while established. Failures are reported through an error
// channel, which receives at most one value. The error channel is closed when the
// subscription ends, whether by failure, by the source of events going away, or by a
// call to Unsubscribe.
//
// The Unsubscribe method cancels the sending of events. You must call Unsubscribe in all
// cases to ensure that resources related to the subscription are released. It can be
// called any number of times.
type Subscription interface {
	Err() <-chan error // returns the error channel
	Unsubscribe()      // cancels sending of events, closing the error channel
}

// NewSubscription runs a producer function as a subscription in a new goroutine. The
// channel given to the producer is closed when Unsubscribe is called. If the producer
// returns an error before that, it is sent on the subscription's error channel.
func NewSubscription(producer func(quit <-chan struct{}) error) Subscription {
	s := &funcSub{
		quit: make(chan struct{}),
		done: make(chan struct{}),
		err:  make(chan error, 1),
	}
	go s.run(producer)
	return s
}

type funcSub struct {
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{} // closed when the producer has returned
	err      chan error
}

func (s *funcSub) run(producer func(<-chan struct{}) error) {
	err := producer(s.quit)
	select {
	case <-s.quit:
		// Errors after Unsubscribe are not reported.
	default:
		if err != nil {
			s.err <- err
		}
	}
	close(s.err)
	close(s.done)
}

func (s *funcSub) Unsubscribe() {
	s.quitOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *funcSub) Err() <-chan error {
	return s.err
}

// SubscriptionScope unsubscribes a group of subscriptions at once. A client uses it
// to end every subscription it handed out when it shuts down.
//
// The zero value is ready to use.
type SubscriptionScope struct {
	mu     sync.Mutex
	subs   mapset.Set[*scopeSub]
	closed bool
}

type scopeSub struct {
	sc *SubscriptionScope
	Subscription
}

// Track starts tracking a subscription. If the scope is closed, Track returns nil. The
// returned subscription is a wrapper. Unsubscribing the wrapper removes it from the
// scope.
func (sc *SubscriptionScope) Track(s Subscription) Subscription {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil
	}
	if sc.subs == nil {
		sc.subs = mapset.NewThreadUnsafeSet[*scopeSub]()
	}
	ss := &scopeSub{sc: sc, Subscription: s}
	sc.subs.Add(ss)
	return ss
}

// Close calls Unsubscribe on all tracked subscriptions and prevents further additions to
// the tracked set. Calls to Track after Close return nil.
func (sc *SubscriptionScope) Close() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	var subs []*scopeSub
	if sc.subs != nil {
		subs = sc.subs.ToSlice()
		sc.subs.Clear()
	}
	sc.mu.Unlock()

	for _, s := range subs {
		s.Subscription.Unsubscribe()
	}
}

// Count returns the number of tracked subscriptions.
func (sc *SubscriptionScope) Count() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.subs == nil {
		return 0
	}
	return sc.subs.Cardinality()
}

func (s *scopeSub) Unsubscribe() {
	s.Subscription.Unsubscribe()
	s.sc.mu.Lock()
	defer s.sc.mu.Unlock()
	if s.sc.subs != nil {
		s.sc.subs.Remove(s)
	}
}
