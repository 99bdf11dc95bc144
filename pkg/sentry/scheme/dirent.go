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

package scheme

import (
	"kestrel.dev/kestrel/pkg/abi/sk"
)

// DirentSize returns the encoded size of an entry named name.
func DirentSize(name string) int {
	return sk.DirentHeaderSize + len(name) + 1
}

// AppendDirent encodes one directory entry into buf and returns the number
// of bytes used. ok is false if the entry does not fit.
func AppendDirent(buf []byte, inode, next uint64, kind uint8, name string) (int, bool) {
	n := DirentSize(name)
	if n > len(buf) || n > 0xFFFF {
		return 0, false
	}
	hdr := sk.DirentHeader{
		Inode:        inode,
		NextOpaqueID: next,
		RecordLen:    uint16(n),
		Kind:         kind,
	}
	rest := hdr.MarshalBytes(buf)
	copy(rest, name)
	rest[len(name)] = 0
	return n, true
}
