// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package compositor drives composite loops on their own goroutines and hands
// client frames to outputs.
package compositor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrIllegalState = errors.New("illegal compositor thread state")
	// Returned by Run once the thread has been closed or its loop faulted
	ErrStopped = fmt.Errorf("%w: thread stopped", ErrIllegalState)
	// Wraps every error and panic coming out of a Loop
	ErrLoopFault = errors.New("compositor loop fault")
)

// Loop is the work a Thread drives.
// Run blocks until Stop is called. Stop and ScheduleCompositing must not block
type Loop interface {
	Run() error
	Stop()
	ScheduleCompositing(n int)
}

type threadState uint8

const (
	stateRunning threadState = iota
	statePausing
	statePaused
	stateStopping
)

func (s threadState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case statePausing:
		return "pausing"
	case statePaused:
		return "paused"
	case stateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("threadState(%d)", uint8(s))
	}
}

// FaultHandler receives the error of a failed loop. It runs on the thread's goroutine
// and must not call Close on that thread
type FaultHandler func(error)

// A faulty loop leaves the process in an unknown state, so the default is to exit
func fatalFault(err error) {
	logrus.WithError(err).Fatalln("Compositor loop failed")
}

type ThreadOption func(*Thread)

func WithFaultHandler(h FaultHandler) ThreadOption {
	return func(t *Thread) {
		t.onFault = h
	}
}

// WithName sets the name used in log messages
func WithName(name string) ThreadOption {
	return func(t *Thread) {
		t.name = name
	}
}

// Thread runs a Loop on a dedicated goroutine under a run/pause/stop state machine
type Thread struct {
	mu      sync.Mutex
	changed *sync.Cond
	state   threadState
	loop    Loop

	name    string
	onFault FaultHandler
	done    chan struct{}
}

// NewThread starts a thread running loop. A nil loop starts the thread paused
func NewThread(loop Loop, opts ...ThreadOption) *Thread {
	t := &Thread{
		state:   stateRunning,
		loop:    loop,
		name:    "compositor",
		onFault: fatalFault,
		done:    make(chan struct{}),
	}
	t.changed = sync.NewCond(&t.mu)
	for _, opt := range opts {
		opt(t)
	}
	if loop == nil {
		t.state = statePaused
	}
	go t.run()
	return t
}

func (t *Thread) run() {
	defer close(t.done)
	t.mu.Lock()
	for t.state != stateStopping {
		for t.state == statePaused {
			t.changed.Wait()
		}

		switch t.state {
		case stateRunning:
			loop := t.loop
			t.mu.Unlock()
			err := runLoop(loop)
			t.mu.Lock()

			if err != nil {
				t.state = stateStopping
				t.loop = nil
				t.changed.Broadcast()
				t.mu.Unlock()

				logrus.WithError(err).WithField("thread", t.name).Errorln("Compositor loop faulted, stopping thread")
				t.onFault(err)
				return
			}
			if t.state == stateRunning {
				// The loop ended without being asked to
				logrus.WithField("thread", t.name).Debugln("Loop returned on its own, pausing")
				t.state = statePaused
				t.loop = nil
				t.changed.Broadcast()
			}
		case statePausing:
			t.state = statePaused
			t.changed.Broadcast()
			logrus.WithField("thread", t.name).Debugln("Thread paused")
		}
	}
	t.mu.Unlock()
}

func runLoop(loop Loop) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrLoopFault, r)
		}
	}()
	if err := loop.Run(); err != nil {
		return fmt.Errorf("%w: %w", ErrLoopFault, err)
	}
	return nil
}

// Pause stops the running loop and waits until the thread has let go of it.
// Does nothing unless the thread is running
func (t *Thread) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != stateRunning {
		return
	}
	t.loop.Stop()
	t.state = statePausing

	for t.state != statePaused && t.state != stateStopping {
		t.changed.Wait()
	}
	if t.state == statePaused {
		t.loop = nil
	}
}

// Run resumes a paused thread with loop
func (t *Thread) Run(loop Loop) error {
	if loop == nil {
		return fmt.Errorf("%w: nil loop", ErrIllegalState)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case stateStopping:
		return ErrStopped
	case stateRunning, statePausing:
		return fmt.Errorf("%w: thread is %s", ErrIllegalState, t.state)
	}
	t.loop = loop
	t.state = stateRunning
	t.changed.Broadcast()
	logrus.WithField("thread", t.name).Debugln("Thread running")
	return nil
}

// ScheduleCompositing forwards to the running loop. Requests while not running are dropped
func (t *Thread) ScheduleCompositing(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == stateRunning {
		t.loop.ScheduleCompositing(n)
	}
}

func (t *Thread) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == stateRunning
}

// Close stops the thread for good and waits for its goroutine to exit
func (t *Thread) Close() {
	t.mu.Lock()
	if t.state == stateRunning {
		t.loop.Stop()
	}
	if t.state != stateStopping {
		logrus.WithField("thread", t.name).Debugln("Stopping thread")
	}
	t.state = stateStopping
	t.changed.Broadcast()
	t.mu.Unlock()

	<-t.done
}
