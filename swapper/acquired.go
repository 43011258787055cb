// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package swapper

// acquiredInfo tracks one buffer held by the compositor.
// index points into the owning swapper's arena
type acquiredInfo struct {
	index           int
	canBeReacquired bool
	useCount        int
}

// acquiredBuffers is the set of buffers currently checked out to the compositor,
// in acquisition order. A buffer appears at most once, concurrent reads only raise its useCount
type acquiredBuffers struct {
	infos []acquiredInfo
}

func (a *acquiredBuffers) find(index int) int {
	for i := range a.infos {
		if a.infos[i].index == index {
			return i
		}
	}
	return -1
}

func (a *acquiredBuffers) acquire(index int) {
	if i := a.find(index); i >= 0 {
		a.infos[i].useCount++
		return
	}
	a.infos = append(a.infos, acquiredInfo{index: index, canBeReacquired: true, useCount: 1})
}

// release drops one use of the buffer.
// released reports that the last use is gone, found that the buffer was held at all
func (a *acquiredBuffers) release(index int) (released bool, found bool) {
	i := a.find(index)
	if i < 0 {
		return false, false
	}
	info := &a.infos[i]
	info.useCount--
	if info.useCount == 0 {
		a.infos = append(a.infos[:i], a.infos[i+1:]...)
		return true, true
	}
	// Someone let go of it, so it is on its way out of rotation
	info.canBeReacquired = false
	return false, true
}

func (a *acquiredBuffers) findReacquirable() (int, bool) {
	for _, info := range a.infos {
		if info.canBeReacquired {
			return info.index, true
		}
	}
	return 0, false
}

// last returns the most recently acquired buffer
func (a *acquiredBuffers) last() (int, bool) {
	if len(a.infos) == 0 {
		return 0, false
	}
	return a.infos[len(a.infos)-1].index, true
}

func (a *acquiredBuffers) clear() {
	a.infos = nil
}
