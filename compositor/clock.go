// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package compositor

import (
	"fmt"
	"sync"
	"time"

	"github.com/mstarongithub/w2g-compositor/util/multiplexer"
	"github.com/sirupsen/logrus"
)

// Clock stands in for the vblank of outputs without a display.
// Every subscriber gets the ticks, one that falls behind skips ticks instead of queueing them
type Clock struct {
	interval time.Duration
	plexer   *multiplexer.OneToMany[time.Time]

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewClock creates a clock ticking refreshRate times per second
func NewClock(refreshRate int) (*Clock, error) {
	if refreshRate <= 0 || refreshRate > 1000 {
		return nil, fmt.Errorf("refresh rate %d out of range", refreshRate)
	}
	return &Clock{
		interval: time.Second / time.Duration(refreshRate),
		plexer:   multiplexer.NewLossyOneToMany[time.Time](),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Subscribe returns the tick channel for name. It is closed when the clock closes
func (c *Clock) Subscribe(name string) (<-chan time.Time, error) {
	return c.plexer.MakeReceiver(name)
}

func (c *Clock) Unsubscribe(name string) {
	c.plexer.CloseReceiver(name)
}

// Start begins ticking. Later calls do nothing
func (c *Clock) Start() {
	c.startOnce.Do(func() {
		go c.plexer.StartPlexer()
		go c.tick()
	})
}

func (c *Clock) tick() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	logrus.WithField("interval", c.interval).Debugln("Clock started")
	for {
		select {
		case now := <-ticker.C:
			if err := c.plexer.Send(now); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}

// Close stops the clock and closes every subscription
func (c *Clock) Close() {
	c.closeOnce.Do(func() {
		// A clock that never ticked still needs the plexer to close its subscriptions
		c.startOnce.Do(func() {
			go c.plexer.StartPlexer()
			close(c.done)
		})
		close(c.stop)
		<-c.done
		c.plexer.CloseSender()
	})
}
