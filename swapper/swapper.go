// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package swapper implements the hand-off of a fixed pool of buffers between
// rendering clients and the compositor.
//
// A client takes a buffer with ClientAcquire, renders into it and posts it with
// ClientRelease. The compositor picks up posted buffers with CompositorAcquire and
// gives them back with CompositorRelease. A swapper never allocates or frees buffers,
// it only moves the ownership of the N buffers it was created with.
package swapper

import (
	"errors"

	"github.com/mstarongithub/w2g-compositor/graphics"
)

var (
	// ErrConstruction is returned when a swapper is created with an unsupported buffer set
	ErrConstruction = errors.New("invalid swapper construction")
	// ErrAborted is returned from ClientAcquire once clients have been forced to complete.
	// Callers should stop trying to acquire from that swapper
	ErrAborted = errors.New("client acquire aborted")
	// ErrIllegalState marks a call that cannot be served in the current state.
	// Seeing it means the caller is misusing the swapper
	ErrIllegalState = errors.New("illegal swapper state")
)

// BufferSwapper is the contract shared by Multi and Switcher
type BufferSwapper interface {
	// ClientAcquire blocks until a buffer can be handed to a client
	ClientAcquire() (graphics.Buffer, error)
	// ClientRelease posts a rendered buffer for the compositor
	ClientRelease(graphics.Buffer) error
	// CompositorAcquire never blocks waiting for a buffer
	CompositorAcquire() (graphics.Buffer, error)
	CompositorRelease(graphics.Buffer) error
	// ForceClientAbort makes every pending and future ClientAcquire fail with ErrAborted
	ForceClientAbort()
	// ForceRequestsToComplete wakes blocked clients without aborting them
	ForceRequestsToComplete() error
	// EndResponsibility hands all buffers back. The swapper is unusable afterwards
	EndResponsibility() Handoff
	Stats() Stats
}

// Handoff is what a retired swapper gives back to its owner.
// Buffers always holds the complete original set. The other lists are subsets of it:
// Posted are buffers a client posted that the compositor has not picked up yet, oldest
// first. ClientHeld and CompositorHeld name the buffers still out with a client or the
// compositor, the latter once per outstanding compositor use
type Handoff struct {
	Buffers        []graphics.Buffer
	Size           int
	Posted         []graphics.Buffer
	ClientHeld     []graphics.Buffer
	CompositorHeld []graphics.Buffer
}

// Factory builds the successor of a retired swapper
type Factory func(Handoff) (BufferSwapper, error)

// Stats is a consistent snapshot of a swapper's bookkeeping
type Stats struct {
	Size                   int
	ClientQueue            []graphics.BufferID
	CompositorQueue        []graphics.BufferID
	Acquired               []AcquiredStat
	InUseByClient          int
	ClientsTryingToAcquire int
	Aborted                bool
	Retired                bool
}

type AcquiredStat struct {
	ID              graphics.BufferID
	UseCount        int
	CanBeReacquired bool
}
