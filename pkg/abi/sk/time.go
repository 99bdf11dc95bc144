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
	"math"
	"time"

	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/marshal"
)

// SizeOfTimespec is the size of a Timespec struct in bytes.
const SizeOfTimespec = 16

const maxSecInDuration = math.MaxInt64 / int64(time.Second)

// Timespec is a point in time or a duration, in seconds and nanoseconds.
type Timespec struct {
	Sec  int64
	Nsec int64
}

var _ marshal.Marshallable = (*Timespec)(nil)

// ToNsec returns the nanosecond representation.
func (ts Timespec) ToNsec() int64 {
	return ts.Sec*1e9 + ts.Nsec
}

// ToNsecCapped returns the safe nanosecond representation.
func (ts Timespec) ToNsecCapped() int64 {
	if ts.Sec > maxSecInDuration {
		return math.MaxInt64
	}
	return ts.ToNsec()
}

// ToDuration returns the safe nanosecond representation as time.Duration.
func (ts Timespec) ToDuration() time.Duration {
	return time.Duration(ts.ToNsecCapped())
}

// Valid returns whether the timespec contains valid values.
func (ts Timespec) Valid() bool {
	return !(ts.Sec < 0 || ts.Nsec < 0 || ts.Nsec >= int64(time.Second))
}

// NsecToTimespec translates nanoseconds to Timespec.
func NsecToTimespec(nsec int64) (ts Timespec) {
	ts.Sec = nsec / 1e9
	ts.Nsec = nsec % 1e9
	return
}

// DurationToTimespec translates time.Duration to Timespec.
func DurationToTimespec(dur time.Duration) Timespec {
	return NsecToTimespec(dur.Nanoseconds())
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (ts *Timespec) SizeBytes() int {
	return SizeOfTimespec
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (ts *Timespec) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[0:8], uint64(ts.Sec))
	hostarch.ByteOrder.PutUint64(dst[8:16], uint64(ts.Nsec))
	return dst[16:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (ts *Timespec) UnmarshalBytes(src []byte) []byte {
	ts.Sec = int64(hostarch.ByteOrder.Uint64(src[0:8]))
	ts.Nsec = int64(hostarch.ByteOrder.Uint64(src[8:16]))
	return src[16:]
}
