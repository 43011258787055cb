// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package swapper

import (
	"errors"
	"sync"
	"testing"

	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/zeebo/assert"
	"github.com/zeebo/pcg"
)

func newSwitcher(t *testing.T, size int) (*Switcher, []graphics.Buffer) {
	t.Helper()
	// Away from the IDs the software allocator hands out
	buffers := stubBuffers(100, size)
	m, err := NewMulti(buffers, size)
	assert.NoError(t, err)
	return NewSwitcher(m), buffers
}

func TestSwitcherForwards(t *testing.T) {
	s, buffers := newSwitcher(t, 2)

	b := mustAcquire(t, s.ClientAcquire)
	assert.Equal(t, b.ID(), buffers[0].ID())
	assert.NoError(t, s.ClientRelease(b))

	shown := mustAcquire(t, s.CompositorAcquire)
	assert.Equal(t, shown.ID(), b.ID())
	assert.NoError(t, s.CompositorRelease(shown))

	assert.Equal(t, s.Stats().Size, 2)
	assert.NoError(t, s.ForceRequestsToComplete())
}

func TestSwitcherMovesBlockedClientToNewSwapper(t *testing.T) {
	s, buffers := newSwitcher(t, 2)
	held := mustAcquire(t, s.ClientAcquire)

	ch := acquireAsync(s)
	waitForWaiters(t, s, 1)

	assert.NoError(t, s.ChangeSwapper(MultiFactory(graphics.NewSoftwareAllocator(), 3)))

	res := expectResult(t, ch)
	assert.NoError(t, res.err)
	assert.Equal(t, res.buffer.ID(), buffers[1].ID())

	st := s.Stats()
	assert.Equal(t, st.Size, 3)
	assert.Equal(t, st.InUseByClient, 2)

	// Buffers held across the change are owned by the new swapper
	assert.NoError(t, s.ClientRelease(held))
	assert.NoError(t, s.ClientRelease(res.buffer))

	shown := mustAcquire(t, s.CompositorAcquire)
	assert.Equal(t, shown.ID(), held.ID())
}

func TestSwitcherKeepsCompositorBuffers(t *testing.T) {
	s, _ := newSwitcher(t, 3)
	b := mustAcquire(t, s.ClientAcquire)
	assert.NoError(t, s.ClientRelease(b))
	shown := mustAcquire(t, s.CompositorAcquire)

	assert.NoError(t, s.ChangeSwapper(MultiFactory(nil, 2)))
	assert.Equal(t, s.Stats().Size, 2)

	// The shown frame survived, a fresh post replaces it
	next := mustAcquire(t, s.ClientAcquire)
	assert.That(t, next.ID() != shown.ID())
	assert.NoError(t, s.ClientRelease(next))

	got := mustAcquire(t, s.CompositorAcquire)
	assert.Equal(t, got.ID(), next.ID())
	assert.NoError(t, s.CompositorRelease(shown))
	assert.NoError(t, s.CompositorRelease(got))
}

func TestSwitcherForceClientAbortReachesCaller(t *testing.T) {
	s, _ := newSwitcher(t, 2)
	mustAcquire(t, s.ClientAcquire)

	ch := acquireAsync(s)
	waitForWaiters(t, s, 1)
	s.ForceClientAbort()

	res := expectResult(t, ch)
	assert.That(t, errors.Is(res.err, ErrAborted))
	_, err := s.ClientAcquire()
	assert.That(t, errors.Is(err, ErrAborted))
}

func TestSwitcherResumesClientsOnFreshSwapper(t *testing.T) {
	s, _ := newSwitcher(t, 2)
	held := mustAcquire(t, s.ClientAcquire)
	s.ForceClientAbort()

	assert.NoError(t, s.ChangeSwapper(MultiFactory(nil, 0)))
	assert.That(t, !s.Stats().Aborted)

	// The held buffer moved over, so the client has to post it first
	assert.NoError(t, s.ClientRelease(held))
	b := mustAcquire(t, s.ClientAcquire)
	assert.That(t, b.ID() != held.ID())
}

func TestSwitcherAbortDuringChangeReachesCaller(t *testing.T) {
	s, _ := newSwitcher(t, 2)
	mustAcquire(t, s.ClientAcquire)

	ch := acquireAsync(s)
	waitForWaiters(t, s, 1)

	entered, release := make(chan struct{}), make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.ChangeSwapper(func(h Handoff) (BufferSwapper, error) {
			close(entered)
			<-release
			return NewMultiFromHandoff(h)
		})
	}()
	<-entered

	// The waiter was moved off the old swapper and waits for the new one
	expectBlocked(t, ch)
	go s.ForceClientAbort()
	close(release)
	assert.NoError(t, <-done)

	// The abort waits for the change and lands on the new swapper
	res := expectResult(t, ch)
	assert.That(t, errors.Is(res.err, ErrAborted))
}

// handoffBreaker hands out a handoff no Multi can be built from
type handoffBreaker struct{ *Multi }

func (b handoffBreaker) EndResponsibility() Handoff {
	h := b.Multi.EndResponsibility()
	h.Size = len(h.Buffers) + 2
	return h
}

func TestSwitcherKeepsStrandedBuffers(t *testing.T) {
	buffers := stubBuffers(100, 2)
	m, err := NewMulti(buffers, 2)
	assert.NoError(t, err)
	s := NewSwitcher(handoffBreaker{m})
	held := mustAcquire(t, s.ClientAcquire)

	boom := errors.New("boom")
	err = s.ChangeSwapper(func(Handoff) (BufferSwapper, error) { return nil, boom })
	assert.That(t, errors.Is(err, boom))
	assert.That(t, errors.Is(err, ErrConstruction))

	_, err = s.ClientAcquire()
	assert.That(t, errors.Is(err, ErrAborted))

	// A later change starts from the kept buffers
	assert.NoError(t, s.ChangeSwapper(func(h Handoff) (BufferSwapper, error) {
		assert.Equal(t, len(h.Buffers), 2)
		assert.Equal(t, len(h.ClientHeld), 1)
		h.Size = len(h.Buffers)
		return NewMultiFromHandoff(h)
	}))
	assert.Equal(t, s.Stats().InUseByClient, 1)
	assert.NoError(t, s.ClientRelease(held))
	assert.Equal(t, mustAcquire(t, s.CompositorAcquire).ID(), held.ID())
}

func TestSwitcherEndResponsibilityReturnsStrandedBuffers(t *testing.T) {
	buffers := stubBuffers(100, 2)
	m, err := NewMulti(buffers, 2)
	assert.NoError(t, err)
	s := NewSwitcher(handoffBreaker{m})

	err = s.ChangeSwapper(func(Handoff) (BufferSwapper, error) { return nil, errors.New("boom") })
	assert.Error(t, err)

	h := s.EndResponsibility()
	assert.DeepEqual(t, sortedIDs(h.Buffers), sortedIDs(buffers))
}

func TestSwitcherFactoryFailureKeepsBuffers(t *testing.T) {
	s, buffers := newSwitcher(t, 2)
	held := mustAcquire(t, s.ClientAcquire)

	boom := errors.New("boom")
	err := s.ChangeSwapper(func(Handoff) (BufferSwapper, error) { return nil, boom })
	assert.That(t, errors.Is(err, boom))

	assert.Equal(t, s.Stats().Size, 2)
	assert.NoError(t, s.ClientRelease(held))
	b := mustAcquire(t, s.ClientAcquire)
	assert.Equal(t, b.ID(), buffers[1].ID())
}

func TestSwitcherCannotShrinkBelowHeldBuffers(t *testing.T) {
	s, _ := newSwitcher(t, 3)
	mustAcquire(t, s.ClientAcquire)
	mustAcquire(t, s.ClientAcquire)

	err := s.ChangeSwapper(MultiFactory(nil, 2))
	assert.That(t, errors.Is(err, ErrConstruction))
	assert.Equal(t, s.Stats().Size, 3)
	assert.Equal(t, s.Stats().InUseByClient, 2)
}

func TestSwitcherConcurrentChanges(t *testing.T) {
	s, _ := newSwitcher(t, 2)
	alloc := graphics.NewSoftwareAllocator()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				b, err := s.ClientAcquire()
				if err != nil {
					if !errors.Is(err, ErrAborted) {
						errs <- err
					}
					return
				}
				if err := s.ClientRelease(b); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		var held []graphics.Buffer
		for {
			select {
			case <-stop:
				for _, b := range held {
					if err := s.CompositorRelease(b); err != nil {
						errs <- err
					}
				}
				return
			default:
			}
			b, err := s.CompositorAcquire()
			if err != nil {
				errs <- err
				return
			}
			held = append(held, b)
			if len(held) > 1 {
				if err := s.CompositorRelease(held[0]); err != nil {
					errs <- err
					return
				}
				held = held[1:]
			}
		}
	}()

	rng := pcg.New(7)
	for i := 0; i < 100; i++ {
		size := 2 + int(rng.Uint32n(2))
		err := s.ChangeSwapper(MultiFactory(alloc, size))
		if err != nil && !errors.Is(err, ErrConstruction) && !errors.Is(err, ErrIllegalState) {
			t.Fatal(err)
		}
	}

	close(stop)
	s.ForceClientAbort()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	h := s.EndResponsibility()
	assert.Equal(t, len(h.Buffers), h.Size)
	assert.Equal(t, len(h.CompositorHeld), 0)
	seen := map[graphics.BufferID]bool{}
	for _, b := range h.Buffers {
		assert.False(t, seen[b.ID()])
		seen[b.ID()] = true
	}
}
