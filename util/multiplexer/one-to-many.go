// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package multiplexer

import (
	"errors"
	"sync"
)

var ErrReceiverExists = errors.New("receiver with that name already exists")

type OneToMany[T any] struct {
	inbound   chan T
	outbound  map[string]chan T // Use map here to give names to outbound channels
	lock      sync.Mutex
	closeChan chan struct{}
	closeOnce sync.Once
	closed    bool
	// Lossy plexers skip receivers that still have the previous message buffered
	lossy bool
}

func NewOneToMany[T any]() *OneToMany[T] {
	return &OneToMany[T]{
		inbound:   make(chan T),
		outbound:  make(map[string]chan T),
		closeChan: make(chan struct{}),
	}
}

// NewLossyOneToMany creates a plexer that never waits for slow receivers.
// Useful for ticks, where only the latest one matters
func NewLossyOneToMany[T any]() *OneToMany[T] {
	o := NewOneToMany[T]()
	o.lossy = true
	return o
}

// Send a message to all receivers
// Blocks until the distribution goroutine picks it up or the plexer is closed
func (o *OneToMany[T]) Send(msg T) error {
	select {
	case o.inbound <- msg:
		return nil
	case <-o.closeChan:
		return ErrClosed
	}
}

// Create a new receiver for the multiplexer to send messages to.
// Please do not close this manually, instead use the CloseReceiver func
func (o *OneToMany[T]) MakeReceiver(name string) (<-chan T, error) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	// Only allow new receivers to be made
	if _, ok := o.outbound[name]; ok {
		return nil, ErrReceiverExists
	}
	var rec chan T
	if o.lossy {
		rec = make(chan T, 1)
	} else {
		rec = make(chan T)
	}
	o.outbound[name] = rec

	return rec, nil
}

// Closes a receiver channel with the given name and removes it from the multiplexer
func (o *OneToMany[T]) CloseReceiver(name string) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if val, ok := o.outbound[name]; ok {
		close(val)
		delete(o.outbound, name)
	}
}

// Start this one to many multiplexer
// intended to run as a goroutine (`go plexer.StartPlexer()`)
// Returns once CloseSender has been called
func (o *OneToMany[T]) StartPlexer() {
	for {
		select {
		// Message gotten from inbound channel
		case msg := <-o.inbound:
			o.lock.Lock()
			// Send it to all outbound channels
			for _, c := range o.outbound {
				if o.lossy {
					select {
					case c <- msg:
					default:
					}
					continue
				}
				c <- msg
			}
			o.lock.Unlock()
		// Told to close the plexer including sender
		case <-o.closeChan:
			o.lock.Lock()
			// Close all outbound channels
			// No need to send any signal there as readers will just stop
			for name, c := range o.outbound {
				close(c)
				delete(o.outbound, name)
			}
			o.closed = true
			o.lock.Unlock()
			return
		}
	}
}

// Close the sender and all receiver channels, mark the plexer as closed and stop the distribution goroutine (all by sending one signal)
// Senders are never closed under, Send just starts failing
func (o *OneToMany[T]) CloseSender() {
	o.closeOnce.Do(func() {
		close(o.closeChan)
	})
}
