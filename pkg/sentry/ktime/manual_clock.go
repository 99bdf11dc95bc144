// Copyright 2026 The Kestrel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ktime

import (
	"sync"
	"time"
)

// ManualClock is a Clock that only advances when told to. Timers expire
// synchronously inside Advance and Set.
type ManualClock struct {
	mu     sync.Mutex
	now    Time
	timers map[*manualTimer]struct{}
}

// NewManualClock returns a ManualClock starting at now.
func NewManualClock(now Time) *ManualClock {
	return &ManualClock{
		now:    now,
		timers: make(map[*manualTimer]struct{}),
	}
}

// Now implements Clock.Now.
func (c *ManualClock) Now() Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires every timer whose deadline
// has passed.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var expired []*manualTimer
	for mt := range c.timers {
		if !mt.deadline.After(c.now) {
			expired = append(expired, mt)
			delete(c.timers, mt)
		}
	}
	c.mu.Unlock()
	for _, mt := range expired {
		mt.listener.NotifyTimer()
	}
}

// Armed returns the number of timers waiting to expire.
func (c *ManualClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NewTimer implements Clock.NewTimer.
func (c *ManualClock) NewTimer(l Listener) Timer {
	return &manualTimer{clock: c, listener: l}
}

type manualTimer struct {
	clock    *ManualClock
	listener Listener

	// deadline is protected by clock.mu.
	deadline Time
}

// Set implements Timer.Set.
func (mt *manualTimer) Set(deadline Time) {
	c := mt.clock
	c.mu.Lock()
	mt.deadline = deadline
	if deadline.After(c.now) {
		c.timers[mt] = struct{}{}
		c.mu.Unlock()
		return
	}
	delete(c.timers, mt)
	c.mu.Unlock()
	mt.listener.NotifyTimer()
}

// Cancel implements Timer.Cancel.
func (mt *manualTimer) Cancel() {
	mt.clock.mu.Lock()
	delete(mt.clock.timers, mt)
	mt.clock.mu.Unlock()
}

// Destroy implements Timer.Destroy.
func (mt *manualTimer) Destroy() {
	mt.Cancel()
}
