// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package client holds the rendering side of the buffer exchange
package client

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync/atomic"

	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/mstarongithub/w2g-compositor/swapper"
	"github.com/sirupsen/logrus"
)

// Palette the painter cycles through, one colour per frame
var DefaultPalette = []color.Color{
	color.RGBA{R: 0x5b, G: 0xce, B: 0xfa, A: 0xff},
	color.RGBA{R: 0xf5, G: 0xa9, B: 0xb8, A: 0xff},
	color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	color.RGBA{R: 0xf5, G: 0xa9, B: 0xb8, A: 0xff},
}

// Painter is a client rendering frames into the buffers of a swapper as fast as
// the swapper hands them out
type Painter struct {
	name    string
	swapper swapper.BufferSwapper
	palette []color.Color
	frames  atomic.Uint64

	// Called after every posted frame
	onPost func(frame uint64)
}

type PainterOption func(*Painter)

func WithPalette(palette []color.Color) PainterOption {
	return func(p *Painter) {
		p.palette = palette
	}
}

func WithPostHook(hook func(frame uint64)) PainterOption {
	return func(p *Painter) {
		p.onPost = hook
	}
}

func NewPainter(name string, s swapper.BufferSwapper, opts ...PainterOption) *Painter {
	p := &Painter{
		name:    name,
		swapper: s,
		palette: DefaultPalette,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run paints until the swapper aborts its clients or ctx is done.
// Cancelling ctx aborts the swapper's clients, every other client of it stops too
func (p *Painter) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, p.swapper.ForceClientAbort)
	defer stop()

	log := logrus.WithField("painter", p.name)
	log.Debugln("Painter started")
	for {
		buf, err := p.swapper.ClientAcquire()
		if errors.Is(err, swapper.ErrAborted) {
			log.WithField("frames", p.frames.Load()).Debugln("Painter stopped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("painter %s: %w", p.name, err)
		}

		frame := p.frames.Load() + 1
		p.paint(buf, frame)
		if err := p.swapper.ClientRelease(buf); err != nil {
			return fmt.Errorf("painter %s: posting frame %d: %w", p.name, frame, err)
		}
		p.frames.Store(frame)
		if p.onPost != nil {
			p.onPost(frame)
		}
	}
}

func (p *Painter) paint(buf graphics.Buffer, frame uint64) {
	sb, ok := buf.(*graphics.SoftwareBuffer)
	if !ok || len(p.palette) == 0 {
		// Nothing to draw on, the frame is still posted
		return
	}
	sb.Fill(p.palette[frame%uint64(len(p.palette))])
}

// Frames returns the number of frames posted so far
func (p *Painter) Frames() uint64 {
	return p.frames.Load()
}

func (p *Painter) Name() string {
	return p.name
}
