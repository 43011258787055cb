// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compositor

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zeebo/assert"
)

type fakeLoop struct {
	started  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	inRun    atomic.Bool
	returned atomic.Bool

	fail      error
	panicWith any
	// Return right away instead of waiting for Stop
	quick bool

	mu        sync.Mutex
	scheduled []int
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{started: make(chan struct{}), stop: make(chan struct{})}
}

func (l *fakeLoop) Run() error {
	l.inRun.Store(true)
	defer l.inRun.Store(false)
	defer l.returned.Store(true)
	close(l.started)

	if l.fail != nil {
		return l.fail
	}
	if l.panicWith != nil {
		panic(l.panicWith)
	}
	if !l.quick {
		<-l.stop
	}
	return nil
}

func (l *fakeLoop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *fakeLoop) ScheduleCompositing(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scheduled = append(l.scheduled, n)
}

func (l *fakeLoop) schedules() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.scheduled...)
}

func waitStarted(t *testing.T, l *fakeLoop) {
	t.Helper()
	select {
	case <-l.started:
	case <-time.After(time.Second):
		t.Fatal("loop did not start")
	}
}

func faultRecorder() (FaultHandler, <-chan error) {
	faults := make(chan error, 1)
	return func(err error) { faults <- err }, faults
}

func TestThreadPauseIsDeterministic(t *testing.T) {
	loop := newFakeLoop()
	th := NewThread(loop)
	defer th.Close()
	waitStarted(t, loop)
	assert.True(t, th.IsRunning())

	th.Pause()
	// Once Pause returns the loop is out of Run
	assert.False(t, loop.inRun.Load())
	assert.True(t, loop.returned.Load())
	assert.False(t, th.IsRunning())

	// Pausing a paused thread is a no-op
	th.Pause()

	next := newFakeLoop()
	assert.NoError(t, th.Run(next))
	waitStarted(t, next)
	assert.True(t, th.IsRunning())
}

func TestThreadRunStates(t *testing.T) {
	loop := newFakeLoop()
	th := NewThread(loop)
	waitStarted(t, loop)

	err := th.Run(newFakeLoop())
	assert.That(t, errors.Is(err, ErrIllegalState))
	assert.False(t, errors.Is(err, ErrStopped))

	assert.That(t, errors.Is(th.Run(nil), ErrIllegalState))

	th.Close()
	assert.False(t, th.IsRunning())
	assert.True(t, loop.returned.Load())

	err = th.Run(newFakeLoop())
	assert.That(t, errors.Is(err, ErrStopped))
	assert.That(t, errors.Is(err, ErrIllegalState))

	// Closing twice is fine
	th.Close()
}

func TestThreadStartsPausedWithoutLoop(t *testing.T) {
	th := NewThread(nil)
	defer th.Close()
	assert.False(t, th.IsRunning())
	th.ScheduleCompositing(1)

	loop := newFakeLoop()
	assert.NoError(t, th.Run(loop))
	waitStarted(t, loop)
}

func TestThreadScheduleOnlyWhileRunning(t *testing.T) {
	loop := newFakeLoop()
	th := NewThread(loop)
	defer th.Close()
	waitStarted(t, loop)

	th.ScheduleCompositing(2)
	th.Pause()
	th.ScheduleCompositing(5)

	assert.DeepEqual(t, loop.schedules(), []int{2})
}

func TestThreadLoopReturningOnItsOwnPauses(t *testing.T) {
	loop := newFakeLoop()
	loop.quick = true
	th := NewThread(loop)
	defer th.Close()
	waitStarted(t, loop)

	deadline := time.Now().Add(time.Second)
	for th.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("thread still running")
		}
		time.Sleep(time.Millisecond)
	}

	next := newFakeLoop()
	assert.NoError(t, th.Run(next))
	waitStarted(t, next)
}

func TestThreadFaults(t *testing.T) {
	boom := errors.New("boom")
	cases := map[string]func(*fakeLoop){
		"error": func(l *fakeLoop) { l.fail = boom },
		"panic": func(l *fakeLoop) { l.panicWith = "boom" },
	}

	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			loop := newFakeLoop()
			setup(loop)
			handler, faults := faultRecorder()
			th := NewThread(loop, WithName(name), WithFaultHandler(handler))

			var err error
			select {
			case err = <-faults:
			case <-time.After(time.Second):
				t.Fatal("fault handler not called")
			}
			assert.That(t, errors.Is(err, ErrLoopFault))
			if loop.fail != nil {
				assert.That(t, errors.Is(err, boom))
			}

			// A fault is terminal
			assert.False(t, th.IsRunning())
			assert.That(t, errors.Is(th.Run(newFakeLoop()), ErrStopped))
			th.Pause()
			th.Close()
		})
	}
}
