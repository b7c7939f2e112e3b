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

// Package event deals with subscriptions to real-time events.
package event

import (
	"sync"
)

// FeedOf implements one-to-many subscriptions where the carrier of events is a channel.
// Values sent to a feed are delivered to every subscribed channel, in the order the
// channels were subscribed.
//
// The zero value is ready to use.
//
// Send blocks until every subscriber has accepted the value or unsubscribed, so
// subscribers are expected to drain their channel promptly or use a buffered one.
type FeedOf[T any] struct {
	sendMu sync.Mutex // serializes Send so all subscribers see the same order

	mu   sync.Mutex
	subs []*feedOfSub[T]
}

// Subscribe adds a channel to the feed. Future sends will be delivered on the channel
// until the subscription is canceled.
//
// Slow subscribers are not dropped.
func (f *FeedOf[T]) Subscribe(channel chan<- T) Subscription {
	sub := &feedOfSub[T]{
		feed:    f,
		channel: channel,
		removed: make(chan struct{}),
		err:     make(chan error),
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub
}

func (f *FeedOf[T]) remove(sub *feedOfSub[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s == sub {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

// Send delivers value to all subscribed channels.
// It returns the number of subscribers that the value was sent to.
func (f *FeedOf[T]) Send(value T) (nsent int) {
	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	f.mu.Lock()
	subs := f.subs
	f.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.channel <- value:
			nsent++
		case <-sub.removed:
		}
	}
	return nsent
}

// Len returns the number of active subscriptions.
func (f *FeedOf[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type feedOfSub[T any] struct {
	feed    *FeedOf[T]
	channel chan<- T
	once    sync.Once
	removed chan struct{} // closed by Unsubscribe, interrupts a blocked Send
	err     chan error
}

func (sub *feedOfSub[T]) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.removed)
		sub.feed.remove(sub)
		close(sub.err)
	})
}

func (sub *feedOfSub[T]) Err() <-chan error {
	return sub.err
}
