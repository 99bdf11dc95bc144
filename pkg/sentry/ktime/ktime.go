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

// Package ktime provides the kernel's clocks and timers.
package ktime

import (
	"fmt"
	"math"
	"time"

	"kestrel.dev/kestrel/pkg/abi/sk"
)

// Time represents an instant in time with nanosecond precision.
//
// Time may represent time with respect to any clock and may not have any
// meaning in the real world.
type Time struct {
	ns int64
}

var (
	// MinTime is the zero time instant, the lowest possible time that can
	// be represented by Time.
	MinTime = Time{ns: math.MinInt64}

	// MaxTime is the highest possible time that can be represented by
	// Time.
	MaxTime = Time{ns: math.MaxInt64}

	// ZeroTime represents the zero time in an unspecified Clock's domain.
	ZeroTime = Time{ns: 0}
)

// FromNanoseconds returns a Time representing the point ns nanoseconds after
// an unspecified Clock's zero time.
func FromNanoseconds(ns int64) Time {
	return Time{ns}
}

// FromTimespec converts from sk.Timespec to Time.
func FromTimespec(ts sk.Timespec) Time {
	return Time{ts.ToNsecCapped()}
}

// Nanoseconds returns nanoseconds elapsed since the zero time in t's Clock
// domain.
func (t Time) Nanoseconds() int64 {
	return t.ns
}

// Timespec converts Time to an sk.Timespec.
func (t Time) Timespec() sk.Timespec {
	return sk.NsecToTimespec(t.ns)
}

// Add adds the duration of d to t.
func (t Time) Add(d time.Duration) Time {
	if t.ns > 0 && d.Nanoseconds() > math.MaxInt64-int64(t.ns) {
		return MaxTime
	}
	if t.ns < 0 && d.Nanoseconds() < math.MinInt64-int64(t.ns) {
		return MinTime
	}
	return Time{t.ns + d.Nanoseconds()}
}

// Sub returns the duration of t - u, saturating on overflow.
func (t Time) Sub(u Time) time.Duration {
	dur := time.Duration(t.ns-u.ns) * time.Nanosecond
	switch {
	case u.Add(dur).Equal(t):
		return dur
	case t.Before(u):
		return math.MinInt64
	default:
		return math.MaxInt64
	}
}

// Equal reports whether the two times represent the same instant in time.
func (t Time) Equal(u Time) bool {
	return t.ns == u.ns
}

// Before reports whether the instant t is before the instant u.
func (t Time) Before(u Time) bool {
	return t.ns < u.ns
}

// After reports whether the instant t is after the instant u.
func (t Time) After(u Time) bool {
	return t.ns > u.ns
}

// String returns the time represented in nanoseconds as a string.
func (t Time) String() string {
	return fmt.Sprintf("%dns", t.Nanoseconds())
}

// A Clock is an abstract time source.
type Clock interface {
	// Now returns the current time in nanoseconds according to the Clock.
	Now() Time

	// NewTimer returns a Timer on this clock that notifies l when it
	// expires. The Timer is initially disarmed.
	NewTimer(l Listener) Timer
}

// Timer is a one-shot timer driven by a Clock.
type Timer interface {
	// Set arms the Timer to expire at deadline, replacing any previous
	// deadline. A deadline that has already passed expires immediately.
	Set(deadline Time)

	// Cancel disarms the Timer.
	Cancel()

	// Destroy releases resources owned by the Timer. A Destroyed Timer
	// never notifies its Listener again.
	Destroy()
}

// A Listener receives expirations from a Timer.
type Listener interface {
	// NotifyTimer is called when its associated Timer expires.
	//
	// NotifyTimer must not block or call any Timer methods.
	NotifyTimer()
}

// ChannelNotifier is a Listener that sends on a channel.
type ChannelNotifier chan struct{}

// NewChannelNotifier creates a new channel notifier. Notifications that
// arrive while one is already pending are dropped.
func NewChannelNotifier() (Listener, <-chan struct{}) {
	tchan := make(chan struct{}, 1)
	return ChannelNotifier(tchan), tchan
}

// NotifyTimer implements Listener.NotifyTimer.
func (c ChannelNotifier) NotifyTimer() {
	select {
	case c <- struct{}{}:
	default:
	}
}
