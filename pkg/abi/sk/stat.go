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

// SizeOfStat is the size of a Stat struct in bytes.
const SizeOfStat = 104

// Stat is the result of fstat.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Size    uint64
	Blocks  uint64
	Blksize uint32
	_       uint32
	Atime   Timespec
	Mtime   Timespec
	Ctime   Timespec
}

var _ marshal.Marshallable = (*Stat)(nil)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (s *Stat) SizeBytes() int {
	return SizeOfStat
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (s *Stat) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[0:8], s.Dev)
	hostarch.ByteOrder.PutUint64(dst[8:16], s.Ino)
	hostarch.ByteOrder.PutUint32(dst[16:20], s.Mode)
	hostarch.ByteOrder.PutUint32(dst[20:24], s.Nlink)
	hostarch.ByteOrder.PutUint32(dst[24:28], s.UID)
	hostarch.ByteOrder.PutUint32(dst[28:32], s.GID)
	hostarch.ByteOrder.PutUint64(dst[32:40], s.Size)
	hostarch.ByteOrder.PutUint64(dst[40:48], s.Blocks)
	hostarch.ByteOrder.PutUint32(dst[48:52], s.Blksize)
	// Padding: dst[52:56] ~ uint32
	hostarch.ByteOrder.PutUint32(dst[52:56], 0)
	dst = s.Atime.MarshalBytes(dst[56:])
	dst = s.Mtime.MarshalBytes(dst)
	return s.Ctime.MarshalBytes(dst)
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (s *Stat) UnmarshalBytes(src []byte) []byte {
	s.Dev = hostarch.ByteOrder.Uint64(src[0:8])
	s.Ino = hostarch.ByteOrder.Uint64(src[8:16])
	s.Mode = hostarch.ByteOrder.Uint32(src[16:20])
	s.Nlink = hostarch.ByteOrder.Uint32(src[20:24])
	s.UID = hostarch.ByteOrder.Uint32(src[24:28])
	s.GID = hostarch.ByteOrder.Uint32(src[28:32])
	s.Size = hostarch.ByteOrder.Uint64(src[32:40])
	s.Blocks = hostarch.ByteOrder.Uint64(src[40:48])
	s.Blksize = hostarch.ByteOrder.Uint32(src[48:52])
	src = s.Atime.UnmarshalBytes(src[56:])
	src = s.Mtime.UnmarshalBytes(src)
	return s.Ctime.UnmarshalBytes(src)
}

// SizeOfStatVfs is the size of a StatVfs struct in bytes.
const SizeOfStatVfs = 32

// StatVfs is the result of fstatvfs.
type StatVfs struct {
	Bsize  uint32
	_      uint32
	Blocks uint64
	Bfree  uint64
	Bavail uint64
}

var _ marshal.Marshallable = (*StatVfs)(nil)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (s *StatVfs) SizeBytes() int {
	return SizeOfStatVfs
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (s *StatVfs) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[0:4], s.Bsize)
	hostarch.ByteOrder.PutUint32(dst[4:8], 0)
	hostarch.ByteOrder.PutUint64(dst[8:16], s.Blocks)
	hostarch.ByteOrder.PutUint64(dst[16:24], s.Bfree)
	hostarch.ByteOrder.PutUint64(dst[24:32], s.Bavail)
	return dst[32:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (s *StatVfs) UnmarshalBytes(src []byte) []byte {
	s.Bsize = hostarch.ByteOrder.Uint32(src[0:4])
	s.Blocks = hostarch.ByteOrder.Uint64(src[8:16])
	s.Bfree = hostarch.ByteOrder.Uint64(src[16:24])
	s.Bavail = hostarch.ByteOrder.Uint64(src[24:32])
	return src[32:]
}
