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

// Flags that may be passed to open and openat. The low 16 bits carry the
// mode used when creating a file.
const (
	O_RDONLY    = 0x0001_0000
	O_WRONLY    = 0x0002_0000
	O_RDWR      = 0x0003_0000
	O_NONBLOCK  = 0x0004_0000
	O_APPEND    = 0x0008_0000
	O_FSYNC     = 0x0080_0000
	O_CLOEXEC   = 0x0100_0000
	O_CREAT     = 0x0200_0000
	O_TRUNC     = 0x0400_0000
	O_EXCL      = 0x0800_0000
	O_DIRECTORY = 0x1000_0000
	O_STAT      = 0x2000_0000

	O_ACCMODE = O_RDONLY | O_WRONLY | O_RDWR
	O_MODE    = 0xFFFF
)

// File mode bits.
const (
	MODE_TYPE    = 0xF000
	MODE_FIFO    = 0x1000
	MODE_CHR     = 0x2000
	MODE_DIR     = 0x4000
	MODE_FILE    = 0x8000
	MODE_SYMLINK = 0xA000

	MODE_PERM = 0x0FFF
)

// RwFlags override descriptor flags for a single read2/write2.
type RwFlags uint32

// RwFlags bits. They use the same bit positions as the corresponding O_*
// flags.
const (
	RWF_NONBLOCK RwFlags = O_NONBLOCK
	RWF_APPEND   RwFlags = O_APPEND
	RWF_UNCACHED RwFlags = O_FSYNC

	RWF_ALL = RWF_NONBLOCK | RWF_APPEND | RWF_UNCACHED
)

// RwFlagsFromWord decodes the flags word of read2/write2. ok is false if the
// word does not fit in 32 bits or has unknown bits set.
func RwFlagsFromWord(w uintptr) (RwFlags, bool) {
	if uint64(w) > 0xFFFF_FFFF {
		return 0, false
	}
	f := RwFlags(w)
	if f&^RWF_ALL != 0 {
		return 0, false
	}
	return f, true
}

// CallFlags are the flag bits of the call operation. The low byte of the
// flags word is the metadata word count and is not part of CallFlags.
type CallFlags uintptr

// CallFlags bits.
const (
	CALL_WRITE CallFlags = 1 << 8
	CALL_READ  CallFlags = 1 << 9
	CALL_FD    CallFlags = 1 << 10

	CALL_ALL = CALL_WRITE | CALL_READ | CALL_FD

	// CallCountMask selects the metadata word count.
	CallCountMask = 0xFF
)

// CallFlagsFromWord splits the flags word of call into its flags and the
// metadata word count. ok is false if unknown flag bits are set.
func CallFlagsFromWord(w uintptr) (flags CallFlags, count uintptr, ok bool) {
	flags = CallFlags(w &^ CallCountMask)
	if flags&^CALL_ALL != 0 {
		return 0, 0, false
	}
	return flags, w & CallCountMask, true
}

// MapFlags describe a mapping's protection and sharing.
type MapFlags uintptr

// MapFlags bits.
const (
	PROT_NONE  MapFlags = 0
	PROT_EXEC  MapFlags = 0x0001_0000
	PROT_WRITE MapFlags = 0x0002_0000
	PROT_READ  MapFlags = 0x0004_0000

	MAP_SHARED          MapFlags = 0x0001
	MAP_PRIVATE         MapFlags = 0x0002
	MAP_FIXED           MapFlags = 0x0004
	MAP_FIXED_NOREPLACE MapFlags = 0x000C

	PROT_ALL = PROT_EXEC | PROT_WRITE | PROT_READ
	MAP_ALL  = MAP_SHARED | MAP_PRIVATE | MAP_FIXED | MAP_FIXED_NOREPLACE
)

// Truncate drops unknown bits.
func (f MapFlags) Truncate() MapFlags {
	return f & (PROT_ALL | MAP_ALL)
}

// Prot returns only the protection bits of f.
func (f MapFlags) Prot() MapFlags {
	return f & PROT_ALL
}

// Fixed reports whether f requests a fixed address.
func (f MapFlags) Fixed() bool {
	return f&MAP_FIXED != 0
}

// NoReplace reports whether f forbids replacing existing mappings.
func (f MapFlags) NoReplace() bool {
	return f&MAP_FIXED_NOREPLACE == MAP_FIXED_NOREPLACE
}

// EventFlags are readiness events.
type EventFlags uintptr

// EventFlags bits.
const (
	EVENT_NONE  EventFlags = 0
	EVENT_READ  EventFlags = 1
	EVENT_WRITE EventFlags = 2

	EVENT_ALL = EVENT_READ | EVENT_WRITE
)

// Commands for fcntl.
const (
	F_DUPFD         = 0
	F_GETFD         = 1
	F_SETFD         = 2
	F_GETFL         = 3
	F_SETFL         = 4
	F_DUPFD_CLOEXEC = 1030

	// FD_CLOEXEC is the descriptor flag for F_GETFD/F_SETFD.
	FD_CLOEXEC = O_CLOEXEC
)

// Whence values for lseek.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// Futex operations.
const (
	FUTEX_WAIT    = 0
	FUTEX_WAKE    = 1
	FUTEX_REQUEUE = 2
)

// Clock IDs.
const (
	CLOCK_REALTIME  = 1
	CLOCK_MONOTONIC = 4
)

// Namespace permissions for mkns pairs.
const (
	NS_READ  = 1
	NS_WRITE = 2

	NS_ALL = NS_READ | NS_WRITE
)
