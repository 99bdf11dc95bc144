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
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/marshal"
)

// SizeOfMap is the size of a Map struct in bytes.
const SizeOfMap = 32

// Map describes a mapping request for fmap.
type Map struct {
	// Offset is the offset into the object being mapped.
	Offset uint64

	// Size is the length of the mapping in bytes.
	Size uint64

	// Flags are the protection and sharing flags.
	Flags MapFlags

	// Address is the requested address, or 0 to let the kernel choose.
	Address uint64
}

var _ marshal.Marshallable = (*Map)(nil)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (m *Map) SizeBytes() int {
	return SizeOfMap
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (m *Map) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[0:8], m.Offset)
	hostarch.ByteOrder.PutUint64(dst[8:16], m.Size)
	hostarch.ByteOrder.PutUint64(dst[16:24], uint64(m.Flags))
	hostarch.ByteOrder.PutUint64(dst[24:32], m.Address)
	return dst[32:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (m *Map) UnmarshalBytes(src []byte) []byte {
	m.Offset = hostarch.ByteOrder.Uint64(src[0:8])
	m.Size = hostarch.ByteOrder.Uint64(src[8:16])
	m.Flags = MapFlags(hostarch.ByteOrder.Uint64(src[16:24]))
	m.Address = hostarch.ByteOrder.Uint64(src[24:32])
	return src[32:]
}

// SizeOfNsPair is the size of an NsPair in bytes. mkns reads an array of
// them.
const SizeOfNsPair = 16

// NsPair grants a namespace access to the scheme root open at FD.
type NsPair struct {
	FD    uint64
	Perms uint64
}

var _ marshal.Marshallable = (*NsPair)(nil)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (p *NsPair) SizeBytes() int {
	return SizeOfNsPair
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (p *NsPair) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[0:8], p.FD)
	hostarch.ByteOrder.PutUint64(dst[8:16], p.Perms)
	return dst[16:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (p *NsPair) UnmarshalBytes(src []byte) []byte {
	p.FD = hostarch.ByteOrder.Uint64(src[0:8])
	p.Perms = hostarch.ByteOrder.Uint64(src[8:16])
	return src[16:]
}
