// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package swapper

import (
	"fmt"
	"slices"

	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/sirupsen/logrus"
)

// MultiFactory returns a Factory building a Multi with size buffers out of a handoff.
// A size of 0 keeps the retired swapper's size. Growing the pool needs an allocator.
// Shrinking drops idle buffers first and posted frames after that, buffers still held
// by a client or the compositor are never dropped
func MultiFactory(alloc graphics.Allocator, size int) Factory {
	return func(h Handoff) (BufferSwapper, error) {
		if size == 0 || size == len(h.Buffers) {
			if size != 0 {
				h.Size = size
			}
			return NewMultiFromHandoff(h)
		}
		resized, err := resizeHandoff(h, alloc, size)
		if err != nil {
			return nil, err
		}
		logrus.WithFields(logrus.Fields{
			"from": len(h.Buffers),
			"to":   size,
		}).Debugln("Resizing buffer pool")
		return NewMultiFromHandoff(resized)
	}
}

func resizeHandoff(h Handoff, alloc graphics.Allocator, size int) (Handoff, error) {
	out := Handoff{
		Buffers:        slices.Clone(h.Buffers),
		Size:           size,
		Posted:         slices.Clone(h.Posted),
		ClientHeld:     h.ClientHeld,
		CompositorHeld: h.CompositorHeld,
	}
	if size > len(h.Buffers) {
		if alloc == nil {
			return h, fmt.Errorf("%w: growing to %d buffers needs an allocator", ErrConstruction, size)
		}
		if len(h.Buffers) == 0 {
			return h, fmt.Errorf("%w: no buffer to take the size from", ErrConstruction)
		}
		extra, err := alloc.Alloc(size-len(h.Buffers), h.Buffers[0].Size())
		if err != nil {
			return h, fmt.Errorf("%w: %w", ErrConstruction, err)
		}
		out.Buffers = append(out.Buffers, extra...)
		return out, nil
	}

	held := map[graphics.BufferID]bool{}
	for _, b := range h.ClientHeld {
		held[b.ID()] = true
	}
	for _, b := range h.CompositorHeld {
		held[b.ID()] = true
	}
	posted := map[graphics.BufferID]bool{}
	for _, b := range h.Posted {
		posted[b.ID()] = true
	}
	drop := func(id graphics.BufferID) {
		out.Buffers = slices.DeleteFunc(out.Buffers, func(b graphics.Buffer) bool { return b.ID() == id })
		out.Posted = slices.DeleteFunc(out.Posted, func(b graphics.Buffer) bool { return b.ID() == id })
	}
	for _, b := range slices.Backward(h.Buffers) {
		if len(out.Buffers) == size {
			break
		}
		if !held[b.ID()] && !posted[b.ID()] {
			drop(b.ID())
		}
	}
	// Oldest posted frames go next, they would have been replaced soon anyway
	for _, b := range h.Posted {
		if len(out.Buffers) == size {
			break
		}
		drop(b.ID())
	}
	if len(out.Buffers) > size {
		return h, fmt.Errorf("%w: %d buffers are in flight, cannot shrink to %d", ErrIllegalState, len(out.Buffers), size)
	}
	return out, nil
}
