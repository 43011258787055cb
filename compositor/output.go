// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compositor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/mstarongithub/w2g-compositor/swapper"
)

var (
	ErrNilFrame     = errors.New("nil frame")
	ErrNothingShown = errors.New("no frame shown yet")
)

// Output is something composited frames get shown on
type Output interface {
	Name() string
	// Post shows buf. The buffer may be reused once Post returns
	Post(buf graphics.Buffer) error
}

// HeadlessOutput only counts the frames it is given
type HeadlessOutput struct {
	name string
	size graphics.Size

	mu     sync.Mutex
	frames uint64
	last   graphics.BufferID
}

func NewHeadlessOutput(name string, size graphics.Size) *HeadlessOutput {
	return &HeadlessOutput{name: name, size: size}
}

func (o *HeadlessOutput) Name() string {
	return o.name
}

func (o *HeadlessOutput) Size() graphics.Size {
	return o.size
}

func (o *HeadlessOutput) Post(buf graphics.Buffer) error {
	if buf == nil {
		return ErrNilFrame
	}
	if buf.Size() != o.size {
		return fmt.Errorf("%s does not fit output %s (%s)", buf.Size(), o.name, o.size)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames++
	o.last = buf.ID()
	return nil
}

// Frames returns how many frames were posted and the ID of the last one
func (o *HeadlessOutput) Frames() (uint64, graphics.BufferID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.frames, o.last
}

// SwapperCompositor shows the frames posted into a swapper on one output.
// The frame on screen stays acquired until the next cycle replaces it, so clients
// never paint into it and ReadShown can look at it without taking a posted frame
type SwapperCompositor struct {
	swapper swapper.BufferSwapper
	output  Output

	mu    sync.Mutex
	shown graphics.Buffer
}

func NewSwapperCompositor(s swapper.BufferSwapper, out Output) *SwapperCompositor {
	return &SwapperCompositor{swapper: s, output: out}
}

func (c *SwapperCompositor) Composite() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Let go of the old frame first. Holding it would make it the preferred pick,
	// released it is still the fallback when nothing new was posted
	if c.shown != nil {
		prev := c.shown
		c.shown = nil
		if err := c.swapper.CompositorRelease(prev); err != nil {
			return fmt.Errorf("releasing %s: %w", prev.ID(), err)
		}
	}

	buf, err := c.swapper.CompositorAcquire()
	if err != nil {
		return err
	}
	if postErr := c.output.Post(buf); postErr != nil {
		postErr = fmt.Errorf("posting %s to %s: %w", buf.ID(), c.output.Name(), postErr)
		if err := c.swapper.CompositorRelease(buf); err != nil {
			return errors.Join(postErr, err)
		}
		return postErr
	}
	c.shown = buf
	return nil
}

// ReadShown calls read with the frame currently on screen. No cycle runs until read returns
func (c *SwapperCompositor) ReadShown(read func(graphics.Buffer) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shown == nil {
		return fmt.Errorf("%w on %s", ErrNothingShown, c.output.Name())
	}
	return read(c.shown)
}
