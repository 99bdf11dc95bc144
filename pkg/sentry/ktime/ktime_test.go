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
	"testing"
	"time"

	"kestrel.dev/kestrel/pkg/abi/sk"
)

func TestTimespecRoundTrip(t *testing.T) {
	ts := sk.Timespec{Sec: 3, Nsec: 500}
	if got := FromTimespec(ts).Timespec(); got != ts {
		t.Errorf("round trip = %+v, want %+v", got, ts)
	}
}

func TestAddSaturates(t *testing.T) {
	if got := MaxTime.Add(time.Second); got != MaxTime {
		t.Errorf("MaxTime.Add(1s) = %v, want MaxTime", got)
	}
	if got := FromNanoseconds(10).Sub(FromNanoseconds(4)); got != 6 {
		t.Errorf("Sub = %v, want 6ns", got)
	}
}

func TestManualClockTimer(t *testing.T) {
	c := NewManualClock(FromNanoseconds(100))
	l, ch := NewChannelNotifier()
	timer := c.NewTimer(l)
	defer timer.Destroy()

	timer.Set(c.Now().Add(10 * time.Nanosecond))
	c.Advance(5 * time.Nanosecond)
	select {
	case <-ch:
		t.Fatalf("timer fired early")
	default:
	}
	c.Advance(5 * time.Nanosecond)
	select {
	case <-ch:
	default:
		t.Fatalf("timer did not fire at deadline")
	}
	if got := c.Armed(); got != 0 {
		t.Errorf("Armed() = %d, want 0", got)
	}
}

func TestManualClockPastDeadline(t *testing.T) {
	c := NewManualClock(FromNanoseconds(100))
	l, ch := NewChannelNotifier()
	timer := c.NewTimer(l)
	timer.Set(FromNanoseconds(50))
	select {
	case <-ch:
	default:
		t.Fatalf("timer with past deadline did not fire")
	}
}

func TestHostClockTimer(t *testing.T) {
	c := NewMonotonicClock()
	l, ch := NewChannelNotifier()
	timer := c.NewTimer(l)
	defer timer.Destroy()
	timer.Set(c.Now().Add(time.Millisecond))
	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatalf("host timer did not fire")
	}
}
