// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package swapper

// indexQueue is a tiny deque of arena indexes. It never holds more than a swapper's size
type indexQueue struct {
	items []int
}

func (q *indexQueue) len() int {
	return len(q.items)
}

func (q *indexQueue) pushBack(index int) {
	q.items = append(q.items, index)
}

func (q *indexQueue) popFront() int {
	index := q.items[0]
	q.items = append(q.items[:0], q.items[1:]...)
	return index
}

func (q *indexQueue) popBack() int {
	index := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return index
}

// drain empties the queue and returns its former contents front to back
func (q *indexQueue) drain() []int {
	items := q.items
	q.items = nil
	return items
}
