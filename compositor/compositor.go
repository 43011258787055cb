// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compositor

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrUnknownOutput = errors.New("unknown output")

type outputThread struct {
	output   Output
	composer Composer
	thread   *Thread
}

// Compositor runs one Thread per output
type Compositor struct {
	mu      sync.Mutex
	outputs []*outputThread
	running bool
	closed  bool
	onFault FaultHandler
}

// NewCompositor creates a compositor without outputs.
// onFault gets the errors of all output threads, nil exits the process on a fault
func NewCompositor(onFault FaultHandler) *Compositor {
	if onFault == nil {
		onFault = fatalFault
	}
	return &Compositor{onFault: onFault}
}

// Add creates the thread for out. It starts compositing right away if the compositor is running
func (c *Compositor) Add(out Output, composer Composer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStopped
	}
	name := out.Name()
	if slices.ContainsFunc(c.outputs, func(o *outputThread) bool { return o.output.Name() == name }) {
		return fmt.Errorf("output %s already exists", name)
	}

	ot := &outputThread{
		output:   out,
		composer: composer,
		thread: NewThread(nil, WithName(name), WithFaultHandler(func(err error) {
			c.onFault(fmt.Errorf("output %s: %w", name, err))
		})),
	}
	c.outputs = append(c.outputs, ot)
	logrus.WithField("output", name).Infoln("Added output")

	if c.running {
		return ot.thread.Run(NewCompositingLoop(composer))
	}
	return nil
}

// Start runs a fresh loop on every output thread. If any thread refuses, for example
// because its loop faulted, the others are paused again and the compositor stays stopped
func (c *Compositor) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrStopped
	}
	if c.running {
		return fmt.Errorf("%w: compositor already running", ErrIllegalState)
	}
	var g errgroup.Group
	for _, ot := range c.outputs {
		g.Go(func() error {
			return ot.thread.Run(NewCompositingLoop(ot.composer))
		})
	}
	if err := g.Wait(); err != nil {
		for _, ot := range c.outputs {
			ot.thread.Pause()
		}
		return err
	}
	c.running = true
	return nil
}

// Stop pauses all output threads and waits until none of them composites anymore
func (c *Compositor) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return fmt.Errorf("%w: compositor not running", ErrIllegalState)
	}
	var g errgroup.Group
	for _, ot := range c.outputs {
		g.Go(func() error {
			ot.thread.Pause()
			return nil
		})
	}
	c.running = false
	return g.Wait()
}

func (c *Compositor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ScheduleCompositing asks every output for n frames
func (c *Compositor) ScheduleCompositing(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ot := range c.outputs {
		ot.thread.ScheduleCompositing(n)
	}
}

// Schedule asks a single output for n frames
func (c *Compositor) Schedule(name string, n int) error {
	ot, err := c.find(name)
	if err != nil {
		return err
	}
	ot.thread.ScheduleCompositing(n)
	return nil
}

// OutputRunning reports whether the thread of an output is compositing
func (c *Compositor) OutputRunning(name string) bool {
	ot, err := c.find(name)
	return err == nil && ot.thread.IsRunning()
}

func (c *Compositor) find(name string) (*outputThread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.outputs, func(o *outputThread) bool { return o.output.Name() == name })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutput, name)
	}
	return c.outputs[i], nil
}

func (c *Compositor) Outputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.outputs))
	for _, ot := range c.outputs {
		names = append(names, ot.output.Name())
	}
	return names
}

// Close stops all output threads for good
func (c *Compositor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	var g errgroup.Group
	for _, ot := range c.outputs {
		g.Go(func() error {
			ot.thread.Close()
			return nil
		})
	}
	_ = g.Wait()
	c.closed = true
	c.running = false
}
