// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package swapper

import (
	"fmt"
	"sync"

	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/sirupsen/logrus"
)

type location uint8

const (
	inClientQueue location = iota
	inCompositorQueue
	withClient
	withCompositor
	retired
)

// Multi exchanges a pool of 2 or 3 buffers between clients and the compositor.
//
// The two queues alone would fit a pair of buffered channels, but CompositorAcquire
// picks from up to four sources in priority order and must never wait, which a single
// channel receive cannot express. All state therefore sits behind one mutex and only
// ClientAcquire ever waits, on clientAvailable.
//
// Clients may never hold more than size-1 buffers, so the compositor always has
// something to show.
type Multi struct {
	mu              sync.Mutex
	clientAvailable *sync.Cond

	// Buffers never leave the arena, queues and the acquired set store indexes into it
	arena []graphics.Buffer
	where []location
	size  int

	clientQueue     indexQueue
	compositorQueue indexQueue
	acquired        acquiredBuffers

	inUseByClient          int
	clientsTryingToAcquire int
	forceClientsToComplete bool
	isRetired              bool
}

// NewMulti creates a swapper owning buffers. size has to be 2 or 3 and match the number of buffers
func NewMulti(buffers []graphics.Buffer, size int) (*Multi, error) {
	s, err := newMulti(buffers, size)
	if err != nil {
		return nil, err
	}
	for i := range s.arena {
		s.clientQueue.pushBack(i)
	}
	return s, nil
}

// NewMultiFromHandoff creates a swapper adopting the buffers of a retired one,
// including the ones still held by clients and the compositor
func NewMultiFromHandoff(h Handoff) (*Multi, error) {
	s, err := newMulti(h.Buffers, h.Size)
	if err != nil {
		return nil, err
	}
	if len(h.ClientHeld) > h.Size-1 {
		return nil, fmt.Errorf("%w: clients hold %d buffers, at most %d allowed", ErrConstruction, len(h.ClientHeld), h.Size-1)
	}

	assigned := make([]bool, len(s.arena))
	assign := func(b graphics.Buffer, loc location) (int, error) {
		index, ok := s.indexOf(b)
		if !ok {
			return 0, fmt.Errorf("%w: %s is not part of the handoff", ErrConstruction, b.ID())
		}
		if assigned[index] && !(loc == withCompositor && s.where[index] == withCompositor) {
			return 0, fmt.Errorf("%w: %s listed twice", ErrConstruction, b.ID())
		}
		assigned[index] = true
		s.where[index] = loc
		return index, nil
	}

	for _, b := range h.ClientHeld {
		if _, err := assign(b, withClient); err != nil {
			return nil, err
		}
		s.inUseByClient++
	}
	for _, b := range h.CompositorHeld {
		index, err := assign(b, withCompositor)
		if err != nil {
			return nil, err
		}
		s.acquired.acquire(index)
	}
	// Adopted compositor buffers are on their way out, new posts take priority
	for i := range s.acquired.infos {
		s.acquired.infos[i].canBeReacquired = false
	}
	for _, b := range h.Posted {
		index, err := assign(b, inCompositorQueue)
		if err != nil {
			return nil, err
		}
		s.compositorQueue.pushBack(index)
	}
	for i := range s.arena {
		if !assigned[i] {
			s.where[i] = inClientQueue
			s.clientQueue.pushBack(i)
		}
	}
	return s, nil
}

func newMulti(buffers []graphics.Buffer, size int) (*Multi, error) {
	if size != 2 && size != 3 {
		return nil, fmt.Errorf("%w: only validated for 2 or 3 buffers, got %d", ErrConstruction, size)
	}
	if len(buffers) != size {
		return nil, fmt.Errorf("%w: got %d buffers for a swapper of size %d", ErrConstruction, len(buffers), size)
	}
	seen := map[graphics.BufferID]bool{}
	for _, b := range buffers {
		if b == nil {
			return nil, fmt.Errorf("%w: nil buffer", ErrConstruction)
		}
		if seen[b.ID()] {
			return nil, fmt.Errorf("%w: %s supplied twice", ErrConstruction, b.ID())
		}
		seen[b.ID()] = true
	}

	s := &Multi{
		arena: append([]graphics.Buffer(nil), buffers...),
		where: make([]location, len(buffers)),
		size:  size,
	}
	s.clientAvailable = sync.NewCond(&s.mu)
	return s, nil
}

func (s *Multi) indexOf(b graphics.Buffer) (int, bool) {
	if b == nil {
		return 0, false
	}
	id := b.ID()
	for i, owned := range s.arena {
		if owned.ID() == id {
			return i, true
		}
	}
	return 0, false
}

// ClientAcquire blocks until a buffer is free and the client is below its quota
func (s *Multi) ClientAcquire() (graphics.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clientsTryingToAcquire++

	// Never let clients take every buffer, the compositor would have nothing to display
	for !s.forceClientsToComplete &&
		(s.clientQueue.len() == 0 || s.inUseByClient == s.size-1) {
		s.clientAvailable.Wait()
	}

	if s.forceClientsToComplete {
		s.clientsTryingToAcquire--
		if s.isRetired {
			return nil, fmt.Errorf("%w: swapper retired", ErrAborted)
		}
		return nil, ErrAborted
	}

	index := s.clientQueue.popFront()
	s.where[index] = withClient
	s.inUseByClient++
	s.clientsTryingToAcquire--

	return s.arena[index], nil
}

// ClientRelease posts a buffer the client finished rendering
func (s *Multi) ClientRelease(b graphics.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.ownedIndex(b)
	if err != nil {
		return err
	}
	if s.where[index] != withClient {
		return fmt.Errorf("%w: %s is not held by a client", ErrIllegalState, b.ID())
	}

	s.compositorQueue.pushBack(index)
	s.where[index] = inCompositorQueue
	s.inUseByClient--

	// Dropping below the quota can unblock a waiter while a free buffer is queued.
	// Without this such a waiter depends on the compositor releasing something
	if s.clientsTryingToAcquire > 0 && s.clientQueue.len() > 0 {
		s.clientAvailable.Signal()
	}
	return nil
}

// CompositorAcquire returns a buffer for display without ever waiting for one.
// In order of preference it returns the frame it is already showing, the oldest posted
// frame, an idle buffer, or a second use of the most recently acquired buffer
func (s *Multi) CompositorAcquire() (graphics.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRetired {
		return nil, fmt.Errorf("%w: swapper retired", ErrIllegalState)
	}

	index, ok := s.acquired.findReacquirable()
	switch {
	case ok:
	case s.compositorQueue.len() > 0:
		index = s.compositorQueue.popFront()
	case s.clientQueue.len() > 0:
		index = s.clientQueue.popBack()
	default:
		index, ok = s.acquired.last()
		if !ok {
			// Clients are capped at size-1 buffers, so one of the above always holds
			panic(fmt.Sprintf("swapper: no buffer for the compositor (size %d, %d with clients)", s.size, s.inUseByClient))
		}
	}

	s.acquired.acquire(index)
	s.where[index] = withCompositor
	return s.arena[index], nil
}

// CompositorRelease gives back one compositor use of a buffer.
// The buffer returns to the clients once its last use is released
func (s *Multi) CompositorRelease(b graphics.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.ownedIndex(b)
	if err != nil {
		return err
	}

	released, found := s.acquired.release(index)
	switch {
	case released:
		s.clientQueue.pushBack(index)
		s.where[index] = inClientQueue
		s.clientAvailable.Signal()
	case !found:
		// Already back in rotation. Queueing it again would duplicate it
		logrus.WithField("buffer", b.ID()).Debugln("Compositor released a buffer it does not hold")
		s.clientAvailable.Signal()
	}
	return nil
}

func (s *Multi) ownedIndex(b graphics.Buffer) (int, error) {
	if s.isRetired {
		return 0, fmt.Errorf("%w: swapper retired", ErrIllegalState)
	}
	index, ok := s.indexOf(b)
	if !ok {
		return 0, fmt.Errorf("%w: buffer does not belong to this swapper", ErrIllegalState)
	}
	return index, nil
}

// ForceClientAbort fails every blocked and future ClientAcquire. It cannot be undone
func (s *Multi) ForceClientAbort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.forceClientsToComplete {
		logrus.WithField("size", s.size).Debugln("Aborting client acquires")
	}
	s.forceClientsToComplete = true
	s.clientAvailable.Broadcast()
}

// ForceRequestsToComplete makes sure a free buffer is queued for clients and wakes
// them up, without aborting anyone
func (s *Multi) ForceRequestsToComplete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRetired {
		return fmt.Errorf("%w: swapper retired", ErrIllegalState)
	}
	if s.inUseByClient == s.size-1 && s.clientsTryingToAcquire > 0 {
		return fmt.Errorf("%w: cannot force requests to complete, the client is trying to acquire all buffers", ErrIllegalState)
	}

	if s.clientQueue.len() == 0 {
		if s.compositorQueue.len() == 0 {
			return fmt.Errorf("%w: cannot force requests to complete, all buffers are acquired", ErrIllegalState)
		}
		index := s.compositorQueue.popFront()
		s.clientQueue.pushBack(index)
		s.where[index] = inClientQueue
	}

	s.clientAvailable.Broadcast()
	return nil
}

// EndResponsibility retires the swapper and returns all of its buffers.
// Blocked clients fail with ErrAborted, every later call fails
func (s *Multi) EndResponsibility() Handoff {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := Handoff{Size: s.size}
	if s.isRetired {
		logrus.Warnln("EndResponsibility called on a retired swapper")
		return h
	}

	for _, index := range s.compositorQueue.drain() {
		h.Posted = append(h.Posted, s.arena[index])
		h.Buffers = append(h.Buffers, s.arena[index])
	}
	for _, index := range s.clientQueue.drain() {
		h.Buffers = append(h.Buffers, s.arena[index])
	}
	for index, loc := range s.where {
		if loc == withClient {
			h.ClientHeld = append(h.ClientHeld, s.arena[index])
			h.Buffers = append(h.Buffers, s.arena[index])
		}
	}
	for _, info := range s.acquired.infos {
		h.Buffers = append(h.Buffers, s.arena[info.index])
		for i := 0; i < info.useCount; i++ {
			h.CompositorHeld = append(h.CompositorHeld, s.arena[info.index])
		}
	}
	s.acquired.clear()
	for index := range s.where {
		s.where[index] = retired
	}

	s.isRetired = true
	s.forceClientsToComplete = true
	s.clientAvailable.Broadcast()

	logrus.WithFields(logrus.Fields{
		"size":            s.size,
		"posted":          len(h.Posted),
		"client_held":     len(h.ClientHeld),
		"compositor_held": len(h.CompositorHeld),
	}).Debugln("Swapper handed off its buffers")
	return h
}

func (s *Multi) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Size:                   s.size,
		InUseByClient:          s.inUseByClient,
		ClientsTryingToAcquire: s.clientsTryingToAcquire,
		Aborted:                s.forceClientsToComplete,
		Retired:                s.isRetired,
	}
	for _, index := range s.clientQueue.items {
		st.ClientQueue = append(st.ClientQueue, s.arena[index].ID())
	}
	for _, index := range s.compositorQueue.items {
		st.CompositorQueue = append(st.CompositorQueue, s.arena[index].ID())
	}
	for _, info := range s.acquired.infos {
		st.Acquired = append(st.Acquired, AcquiredStat{
			ID:              s.arena[info.index].ID(),
			UseCount:        info.useCount,
			CanBeReacquired: info.canBeReacquired,
		})
	}
	return st
}
