// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package graphics

import (
	"fmt"
	"image"
	"image/color"
	"sync/atomic"

	"golang.org/x/image/draw"
)

// SoftwareBuffer is a buffer backed by plain memory.
// Writers must hold the buffer through a swapper, the pixels themselves are not locked
type SoftwareBuffer struct {
	id  BufferID
	img *image.RGBA
}

func (b *SoftwareBuffer) ID() BufferID {
	return b.id
}

func (b *SoftwareBuffer) Size() Size {
	bounds := b.img.Bounds()
	return Size{Width: bounds.Dx(), Height: bounds.Dy()}
}

func (b *SoftwareBuffer) Image() *image.RGBA {
	return b.img
}

// Fill paints the whole buffer in one colour
func (b *SoftwareBuffer) Fill(c color.Color) {
	draw.Draw(b.img, b.img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// SoftwareAllocator creates SoftwareBuffers. The zero value is ready to use
type SoftwareAllocator struct {
	lastID atomic.Uint32
}

func NewSoftwareAllocator() *SoftwareAllocator {
	return &SoftwareAllocator{}
}

func (a *SoftwareAllocator) Alloc(count int, size Size) ([]Buffer, error) {
	if size.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSize, size)
	}
	if count <= 0 {
		return nil, fmt.Errorf("cannot allocate %d buffers", count)
	}
	buffers := make([]Buffer, 0, count)
	for i := 0; i < count; i++ {
		buffers = append(buffers, &SoftwareBuffer{
			id:  BufferID(a.lastID.Add(1)),
			img: image.NewRGBA(image.Rect(0, 0, size.Width, size.Height)),
		})
	}
	return buffers, nil
}
