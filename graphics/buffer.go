// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package graphics holds the buffer handles exchanged between clients and the compositor.
// Allocation and pixel storage live here; the swapper only ever looks at a buffer's ID.
package graphics

import (
	"errors"
	"fmt"
)

var ErrInvalidSize = errors.New("invalid buffer size")

// BufferID identifies a buffer for its whole lifetime. IDs are never reused by an allocator
type BufferID uint32

func (id BufferID) String() string {
	return fmt.Sprintf("buffer#%d", uint32(id))
}

type Size struct {
	Width  int `json:"width" toml:"width"`
	Height int `json:"height" toml:"height"`
}

func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Buffer is an opaque pixel storage handle.
// Two handles refer to the same buffer exactly when their IDs are equal
type Buffer interface {
	ID() BufferID
	Size() Size
}

// Allocator hands out sets of buffers for a swapper. It is the only place buffers get created
type Allocator interface {
	Alloc(count int, size Size) ([]Buffer, error)
}

// IDs returns the IDs of the given buffers, in order
func IDs(buffers []Buffer) []BufferID {
	ids := make([]BufferID, 0, len(buffers))
	for _, b := range buffers {
		ids = append(ids, b.ID())
	}
	return ids
}
