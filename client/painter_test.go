// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/mstarongithub/w2g-compositor/swapper"
	"github.com/zeebo/assert"
)

func newSwapper(t *testing.T) *swapper.Multi {
	t.Helper()
	buffers, err := graphics.NewSoftwareAllocator().Alloc(2, graphics.Size{Width: 2, Height: 2})
	assert.NoError(t, err)
	s, err := swapper.NewMulti(buffers, 2)
	assert.NoError(t, err)
	return s
}

func TestPainterPostsUntilBlockedAndStopsOnCancel(t *testing.T) {
	s := newSwapper(t)
	red := color.RGBA{R: 0xff, A: 0xff}
	posted := make(chan uint64, 8)
	p := NewPainter("test", s, WithPalette([]color.Color{red}), WithPostHook(func(f uint64) { posted <- f }))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- p.Run(ctx) }()

	// Nobody composites, so both buffers end up posted and the painter waits
	for want := uint64(1); want <= 2; want++ {
		select {
		case got := <-posted:
			assert.Equal(t, got, want)
		case <-time.After(time.Second):
			t.Fatal("no frame posted")
		}
	}

	shown, err := s.CompositorAcquire()
	assert.NoError(t, err)
	sb := shown.(*graphics.SoftwareBuffer)
	assert.Equal(t, sb.Image().RGBAAt(0, 0), red)

	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("painter did not stop")
	}
	assert.Equal(t, p.Frames(), uint64(2))
	assert.Equal(t, p.Name(), "test")
}

func TestPainterStopsWhenSwapperAborts(t *testing.T) {
	s := newSwapper(t)
	p := NewPainter("aborted", s)
	s.ForceClientAbort()
	assert.NoError(t, p.Run(context.Background()))
	assert.Equal(t, p.Frames(), uint64(0))
}
