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

// HostClock is a Clock backed by the host's clock. A realtime HostClock
// reports Unix time; a monotonic one reports time since it was created.
type HostClock struct {
	realtime bool
	base     time.Time
}

// NewRealtimeClock returns a HostClock reporting wall time.
func NewRealtimeClock() *HostClock {
	return &HostClock{realtime: true}
}

// NewMonotonicClock returns a HostClock counting from zero at creation.
func NewMonotonicClock() *HostClock {
	return &HostClock{base: time.Now()}
}

// Now implements Clock.Now.
func (c *HostClock) Now() Time {
	if c.realtime {
		return FromNanoseconds(time.Now().UnixNano())
	}
	return FromNanoseconds(int64(time.Since(c.base)))
}

// NewTimer implements Clock.NewTimer.
func (c *HostClock) NewTimer(l Listener) Timer {
	return &hostTimer{clock: c, listener: l}
}

type hostTimer struct {
	clock    *HostClock
	listener Listener

	mu        sync.Mutex
	t         *time.Timer
	destroyed bool
}

// Set implements Timer.Set.
func (ht *hostTimer) Set(deadline Time) {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if ht.destroyed {
		return
	}
	if ht.t != nil {
		ht.t.Stop()
	}
	d := deadline.Sub(ht.clock.Now())
	if d < 0 {
		d = 0
	}
	ht.t = time.AfterFunc(d, ht.fire)
}

func (ht *hostTimer) fire() {
	ht.mu.Lock()
	destroyed := ht.destroyed
	ht.mu.Unlock()
	if !destroyed {
		ht.listener.NotifyTimer()
	}
}

// Cancel implements Timer.Cancel.
func (ht *hostTimer) Cancel() {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	if ht.t != nil {
		ht.t.Stop()
		ht.t = nil
	}
}

// Destroy implements Timer.Destroy.
func (ht *hostTimer) Destroy() {
	ht.mu.Lock()
	defer ht.mu.Unlock()
	ht.destroyed = true
	if ht.t != nil {
		ht.t.Stop()
		ht.t = nil
	}
}
