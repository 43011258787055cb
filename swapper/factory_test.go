// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package swapper

import (
	"errors"
	"testing"

	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/zeebo/assert"
)

func TestMultiFactoryKeepsSize(t *testing.T) {
	buffers := stubBuffers(100, 3)
	h := Handoff{Buffers: buffers, Size: 3, Posted: buffers[:1]}

	next, err := MultiFactory(nil, 0)(h)
	assert.NoError(t, err)
	st := next.Stats()
	assert.Equal(t, st.Size, 3)
	assert.DeepEqual(t, st.CompositorQueue, []graphics.BufferID{100})
	assert.DeepEqual(t, st.ClientQueue, []graphics.BufferID{101, 102})
}

func TestMultiFactoryGrows(t *testing.T) {
	buffers := stubBuffers(100, 2)
	h := Handoff{Buffers: buffers, Size: 2, ClientHeld: buffers[:1]}

	_, err := MultiFactory(nil, 3)(h)
	assert.That(t, errors.Is(err, ErrConstruction))

	next, err := MultiFactory(graphics.NewSoftwareAllocator(), 3)(h)
	assert.NoError(t, err)
	st := next.Stats()
	assert.Equal(t, st.Size, 3)
	assert.Equal(t, st.InUseByClient, 1)
	assert.Equal(t, len(st.ClientQueue), 2)
}

func TestMultiFactoryShrinks(t *testing.T) {
	buffers := stubBuffers(100, 3)

	t.Run("idle buffers first", func(t *testing.T) {
		h := Handoff{Buffers: buffers, Size: 3, Posted: buffers[:1]}
		next, err := MultiFactory(nil, 2)(h)
		assert.NoError(t, err)
		st := next.Stats()
		assert.DeepEqual(t, st.CompositorQueue, []graphics.BufferID{100})
		assert.DeepEqual(t, st.ClientQueue, []graphics.BufferID{101})
	})

	t.Run("then the oldest posted frame", func(t *testing.T) {
		h := Handoff{
			Buffers:        buffers,
			Size:           3,
			Posted:         buffers[:2],
			CompositorHeld: buffers[2:],
		}
		next, err := MultiFactory(nil, 2)(h)
		assert.NoError(t, err)
		st := next.Stats()
		assert.DeepEqual(t, st.CompositorQueue, []graphics.BufferID{101})
		assert.Equal(t, len(st.ClientQueue), 0)
		assert.Equal(t, len(st.Acquired), 1)
		assert.False(t, st.Acquired[0].CanBeReacquired)
	})

	t.Run("never held buffers", func(t *testing.T) {
		h := Handoff{
			Buffers:        buffers,
			Size:           3,
			ClientHeld:     buffers[:1],
			CompositorHeld: []graphics.Buffer{buffers[1], buffers[1], buffers[2]},
		}
		_, err := MultiFactory(nil, 2)(h)
		assert.That(t, errors.Is(err, ErrIllegalState))
	})
}

func TestNewMultiFromHandoffRejectsForeignBuffers(t *testing.T) {
	buffers := stubBuffers(100, 2)
	h := Handoff{Buffers: buffers, Size: 2, Posted: []graphics.Buffer{&stubBuffer{id: 7}}}
	_, err := NewMultiFromHandoff(h)
	assert.That(t, errors.Is(err, ErrConstruction))

	h = Handoff{Buffers: buffers, Size: 2, ClientHeld: buffers}
	_, err = NewMultiFromHandoff(h)
	assert.That(t, errors.Is(err, ErrConstruction))
}

func TestAcquiredBuffers(t *testing.T) {
	var a acquiredBuffers
	a.acquire(1)
	a.acquire(1)
	a.acquire(2)

	index, ok := a.findReacquirable()
	assert.True(t, ok)
	assert.Equal(t, index, 1)

	released, found := a.release(1)
	assert.False(t, released)
	assert.True(t, found)

	index, ok = a.findReacquirable()
	assert.True(t, ok)
	assert.Equal(t, index, 2)

	released, found = a.release(1)
	assert.True(t, released)
	assert.True(t, found)

	_, found = a.release(1)
	assert.False(t, found)

	index, ok = a.last()
	assert.True(t, ok)
	assert.Equal(t, index, 2)
}
