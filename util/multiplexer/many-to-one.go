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

var ErrClosed = errors.New("multiplexer has been closed")

// A many to one multiplexer
// Yes, channels technically already are that, but there are a bunch of problems with using raw channels as multiplexer:
// If any of the senders tries to send to a closed channel, it explodes
// Thus, wrap it inside a struct that handles that case of a closed channel
type ManyToOne[T any] struct {
	outbound  chan T
	lock      sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
}

// NewManyToOne creates a new ManyToOne multiplexer
// The given channel will be where all messages will be sent to
func NewManyToOne[T any](receiver chan T) *ManyToOne[T] {
	return &ManyToOne[T]{
		outbound: receiver,
		done:     make(chan struct{}),
	}
}

// Send a message to this many to one plexer
// If closed, the message won't get sent. A send blocked on a full channel gives up once the plexer closes
func (m *ManyToOne[T]) Send(msg T) error {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.outbound <- msg:
		return nil
	case <-m.done:
		return ErrClosed
	}
}

// Closes the channel and marks the plexer as closed
// Safe to call more than once
func (m *ManyToOne[T]) Close() {
	m.closeOnce.Do(func() {
		// Wake blocked senders first, they hold the read lock
		close(m.done)
		m.lock.Lock()
		m.closed = true
		close(m.outbound)
		m.lock.Unlock()
	})
}
