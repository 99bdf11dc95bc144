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

// Package primitive defines marshal.Marshallable implementations for primitive
// types.
package primitive

import (
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/marshal"
)

// Uint32 is a marshal.Marshallable implementation for uint32.
type Uint32 uint32

var _ marshal.Marshallable = (*Uint32)(nil)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (u *Uint32) SizeBytes() int {
	return 4
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (u *Uint32) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], uint32(*u))
	return dst[4:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (u *Uint32) UnmarshalBytes(src []byte) []byte {
	*u = Uint32(hostarch.ByteOrder.Uint32(src[:4]))
	return src[4:]
}

// Uint64 is a marshal.Marshallable implementation for uint64.
type Uint64 uint64

var _ marshal.Marshallable = (*Uint64)(nil)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (u *Uint64) SizeBytes() int {
	return 8
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (u *Uint64) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[:8], uint64(*u))
	return dst[8:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (u *Uint64) UnmarshalBytes(src []byte) []byte {
	*u = Uint64(hostarch.ByteOrder.Uint64(src[:8]))
	return src[8:]
}

// Uint64Slice is a marshal.Marshallable view of a slice of uint64s with a
// fixed length.
type Uint64Slice []uint64

var _ marshal.Marshallable = (*Uint64Slice)(nil)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (s *Uint64Slice) SizeBytes() int {
	if s == nil {
		return 0
	}
	return 8 * len(*s)
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (s *Uint64Slice) MarshalBytes(dst []byte) []byte {
	for _, v := range *s {
		hostarch.ByteOrder.PutUint64(dst[:8], v)
		dst = dst[8:]
	}
	return dst
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (s *Uint64Slice) UnmarshalBytes(src []byte) []byte {
	for i := range *s {
		(*s)[i] = hostarch.ByteOrder.Uint64(src[:8])
		src = src[8:]
	}
	return src
}
