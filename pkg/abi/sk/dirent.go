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

// DirentHeaderSize is the size of a packed DirentHeader. getdents rejects any
// other header size.
const DirentHeaderSize = 19

// Dirent kinds.
const (
	DT_UNSPEC  = 0
	DT_REG     = 1
	DT_DIR     = 2
	DT_SYMLINK = 3
	DT_CHR     = 4
	DT_FIFO    = 5
)

// DirentHeader precedes each entry returned by getdents. It is followed by
// the NUL-terminated name; RecordLen covers the header, the name and the NUL.
type DirentHeader struct {
	Inode        uint64
	NextOpaqueID uint64
	RecordLen    uint16
	Kind         uint8
}

var _ marshal.Marshallable = (*DirentHeader)(nil)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (d *DirentHeader) SizeBytes() int {
	return DirentHeaderSize
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (d *DirentHeader) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[0:8], d.Inode)
	hostarch.ByteOrder.PutUint64(dst[8:16], d.NextOpaqueID)
	hostarch.ByteOrder.PutUint16(dst[16:18], d.RecordLen)
	dst[18] = d.Kind
	return dst[19:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (d *DirentHeader) UnmarshalBytes(src []byte) []byte {
	d.Inode = hostarch.ByteOrder.Uint64(src[0:8])
	d.NextOpaqueID = hostarch.ByteOrder.Uint64(src[8:16])
	d.RecordLen = hostarch.ByteOrder.Uint16(src[16:18])
	d.Kind = src[18]
	return src[19:]
}
