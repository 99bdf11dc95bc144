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

package sk

import (
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/ktime"
	"kestrel.dev/kestrel/pkg/usermem"
)

// Yield implements yield().
func Yield(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	t.Yield()
	return 0, nil
}

// copyInTimespec reads a Timespec at addr and rejects malformed values.
func copyInTimespec(t *kernel.Task, a arch.SyscallArgument) (sk.Timespec, error) {
	var ts sk.Timespec
	r, err := usermem.NewReadRegion(t.IO(), a.Pointer(), sk.SizeOfTimespec)
	if err != nil {
		return ts, err
	}
	if err := r.ReadObject(t, &ts); err != nil {
		return ts, err
	}
	if !ts.Valid() {
		return ts, kerr.EINVAL
	}
	return ts, nil
}

// Nanosleep implements nanosleep(req, rem).
func Nanosleep(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	req, err := copyInTimespec(t, args[0])
	if err != nil {
		return 0, err
	}
	rem, err := usermem.NewWriteRegion(t.IO(), args[1].Pointer(), sk.SizeOfTimespec)
	if err != nil {
		return 0, err
	}
	rem, haveRem := rem.NoneIfNull()

	clock := t.Kernel().MonotonicClock()
	deadline := clock.Now().Add(req.ToDuration())
	switch err := t.BlockWithDeadline(nil, clock, deadline); err {
	case kerr.ETIMEDOUT:
		return 0, nil
	case kerr.ErrInterrupted:
		if haveRem {
			left := deadline.Sub(clock.Now())
			if left < 0 {
				left = 0
			}
			ts := sk.DurationToTimespec(left)
			if err := rem.WriteObject(t, &ts); err != nil {
				return 0, err
			}
		}
		return 0, kerr.EINTR
	default:
		return 0, err
	}
}

// clockFor returns the kernel clock selected by id.
func clockFor(t *kernel.Task, id uintptr) (ktime.Clock, error) {
	switch id {
	case sk.CLOCK_REALTIME:
		return t.Kernel().RealtimeClock(), nil
	case sk.CLOCK_MONOTONIC:
		return t.Kernel().MonotonicClock(), nil
	default:
		return nil, kerr.EINVAL
	}
}

// ClockGettime implements clock_gettime(id, tp).
func ClockGettime(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	dst, err := usermem.NewWriteRegion(t.IO(), args[1].Pointer(), sk.SizeOfTimespec)
	if err != nil {
		return 0, err
	}
	clock, err := clockFor(t, args[0].Value)
	if err != nil {
		return 0, err
	}
	ts := clock.Now().Timespec()
	return 0, dst.WriteObject(t, &ts)
}
