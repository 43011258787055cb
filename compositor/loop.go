// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compositor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Frames scheduled beyond this are folded into the pending ones
const MaxPendingFrames = 3

// Composer composites a single frame
type Composer interface {
	Composite() error
}

// CompositingLoop runs one Composite cycle per scheduled frame.
// A loop runs once, after Stop a new one has to be made
type CompositingLoop struct {
	composer Composer

	mu      sync.Mutex
	wake    *sync.Cond
	pending int
	stopped bool

	frames atomic.Uint64
}

func NewCompositingLoop(composer Composer) *CompositingLoop {
	l := &CompositingLoop{composer: composer}
	l.wake = sync.NewCond(&l.mu)
	return l
}

func (l *CompositingLoop) Run() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		for !l.stopped && l.pending == 0 {
			l.wake.Wait()
		}
		if l.stopped {
			return nil
		}
		l.pending--

		l.mu.Unlock()
		err := l.composer.Composite()
		l.mu.Lock()

		if err != nil {
			return fmt.Errorf("compositing frame %d: %w", l.frames.Load()+1, err)
		}
		l.frames.Add(1)
	}
}

func (l *CompositingLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	l.wake.Broadcast()
}

// ScheduleCompositing makes sure at least n frames are pending
func (l *CompositingLoop) ScheduleCompositing(n int) {
	n = min(n, MaxPendingFrames)
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > l.pending {
		l.pending = n
		l.wake.Broadcast()
	}
}

// Frames returns the number of frames composited so far
func (l *CompositingLoop) Frames() uint64 {
	return l.frames.Load()
}
