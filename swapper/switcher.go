// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package swapper

import (
	"errors"
	"sync"

	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/sirupsen/logrus"
)

// Switcher forwards to a BufferSwapper that can be replaced at runtime.
//
// Regular calls share the read side of rw and run concurrently, the wrapped swapper
// serializes them itself. ChangeSwapper takes the write side, so no call ever sees two
// swappers and no buffer is visible to both.
type Switcher struct {
	rw      sync.RWMutex
	swapper BufferSwapper

	// changing serializes ChangeSwapper calls
	changing sync.Mutex

	mu        sync.Mutex
	switched  *sync.Cond
	gen       uint64
	switching bool
	// abortedGen is the generation ForceClientAbort was last called on, plus one.
	// Zero means no abort was requested
	abortedGen uint64

	// stranded holds the buffers of a retired swapper nothing could be built from
	stranded *Handoff
}

func NewSwitcher(initial BufferSwapper) *Switcher {
	s := &Switcher{swapper: initial}
	s.switched = sync.NewCond(&s.mu)
	return s
}

// ClientAcquire forwards to the current swapper. A client aborted because the swapper
// was being replaced retries on the replacement, only an abort requested through
// ForceClientAbort reaches the caller
func (s *Switcher) ClientAcquire() (graphics.Buffer, error) {
	for {
		s.rw.RLock()
		current, gen := s.swapper, s.gen
		b, err := current.ClientAcquire()
		s.rw.RUnlock()

		if err == nil || !errors.Is(err, ErrAborted) {
			return b, err
		}
		if !s.waitForSwitch(gen) {
			return nil, err
		}
	}
}

// waitForSwitch reports whether the swapper of generation gen has been replaced,
// waiting for a replacement that is in progress
func (s *Switcher) waitForSwitch(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.switching && s.gen == gen && s.abortedGen != gen+1 {
		s.switched.Wait()
	}
	return s.gen != gen && s.abortedGen != gen+1
}

func (s *Switcher) ClientRelease(b graphics.Buffer) error {
	s.rw.RLock()
	defer s.rw.RUnlock()
	return s.swapper.ClientRelease(b)
}

func (s *Switcher) CompositorAcquire() (graphics.Buffer, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()
	return s.swapper.CompositorAcquire()
}

func (s *Switcher) CompositorRelease(b graphics.Buffer) error {
	s.rw.RLock()
	defer s.rw.RUnlock()
	return s.swapper.CompositorRelease(b)
}

// ForceClientAbort aborts the current swapper. Clients blocked on it get ErrAborted
// instead of moving on to a replacement. A swapper installed later by ChangeSwapper
// accepts clients again
func (s *Switcher) ForceClientAbort() {
	// The read lock pins the generation to the swapper being aborted
	s.rw.RLock()
	defer s.rw.RUnlock()

	s.mu.Lock()
	s.abortedGen = s.gen + 1
	s.switched.Broadcast()
	s.mu.Unlock()

	s.swapper.ForceClientAbort()
}

func (s *Switcher) ForceRequestsToComplete() error {
	s.rw.RLock()
	defer s.rw.RUnlock()
	return s.swapper.ForceRequestsToComplete()
}

func (s *Switcher) EndResponsibility() Handoff {
	// Blocked clients hold the read lock, same as in ChangeSwapper
	s.rw.RLock()
	s.swapper.ForceClientAbort()
	s.rw.RUnlock()

	s.rw.Lock()
	defer s.rw.Unlock()
	if s.stranded != nil {
		h := *s.stranded
		s.stranded = nil
		return h
	}
	return s.swapper.EndResponsibility()
}

func (s *Switcher) Stats() Stats {
	s.rw.RLock()
	defer s.rw.RUnlock()
	return s.swapper.Stats()
}

// ChangeSwapper retires the current swapper and installs the one factory builds from
// its buffers. Clients blocked in ClientAcquire move over to the new swapper.
// If factory fails the buffers go into a plain Multi of the old size and the
// factory's error is returned. If that fails too the retired swapper stays installed
// and its buffers are kept for the next ChangeSwapper or EndResponsibility
func (s *Switcher) ChangeSwapper(factory Factory) error {
	s.changing.Lock()
	defer s.changing.Unlock()

	s.mu.Lock()
	s.switching = true
	s.mu.Unlock()

	// Blocked clients hold the read lock, get them out before taking the write lock
	s.rw.RLock()
	s.swapper.ForceClientAbort()
	s.rw.RUnlock()

	s.rw.Lock()
	defer s.rw.Unlock()

	var handoff Handoff
	if s.stranded != nil {
		handoff = *s.stranded
	} else {
		handoff = s.swapper.EndResponsibility()
	}
	next, err := factory(handoff)
	if err != nil {
		logrus.WithError(err).Warnln("Swapper factory failed, keeping the buffer set")
		fallback, ferr := NewMultiFromHandoff(handoff)
		if ferr != nil {
			logrus.WithError(ferr).WithFields(logrus.Fields{
				"size":            handoff.Size,
				"buffers":         graphics.IDs(handoff.Buffers),
				"posted":          graphics.IDs(handoff.Posted),
				"client-held":     graphics.IDs(handoff.ClientHeld),
				"compositor-held": graphics.IDs(handoff.CompositorHeld),
			}).Errorln("Cannot rebuild swapper from handoff, clients are stopped until the next change")
			s.stranded = &handoff
			s.finishSwitch()
			return errors.Join(err, ferr)
		}
		next = fallback
	}
	s.stranded = nil
	s.swapper = next
	s.finishSwitch()

	logrus.WithField("size", handoff.Size).Debugln("Swapper replaced")
	return err
}

func (s *Switcher) finishSwitch() {
	s.mu.Lock()
	s.gen++
	s.switching = false
	s.switched.Broadcast()
	s.mu.Unlock()
}
