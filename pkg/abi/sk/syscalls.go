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

// Syscall number classes. The class bits make the number self-describing for
// tracing: which argument is a handle, which a buffer, and what is returned.
const (
	SYS_CLASS      = 0xF000_0000
	SYS_CLASS_PATH = 0x1000_0000
	SYS_CLASS_FILE = 0x2000_0000

	SYS_ARG        = 0x0F00_0000
	SYS_ARG_SLICE  = 0x0100_0000
	SYS_ARG_MSLICE = 0x0200_0000
	SYS_ARG_PATH   = 0x0300_0000

	SYS_RET      = 0x00F0_0000
	SYS_RET_FILE = 0x0010_0000
)

// Syscall numbers.
const (
	SYS_OPEN   = SYS_CLASS_PATH | SYS_RET_FILE | 5
	SYS_OPENAT = SYS_CLASS_PATH | SYS_RET_FILE | 7
	SYS_RMDIR  = SYS_CLASS_PATH | 84
	SYS_UNLINK = SYS_CLASS_PATH | 10

	SYS_CLOSE     = SYS_CLASS_FILE | 6
	SYS_DUP       = SYS_CLASS_FILE | SYS_RET_FILE | 41
	SYS_DUP2      = SYS_CLASS_FILE | SYS_RET_FILE | 63
	SYS_SENDFD    = SYS_CLASS_FILE | 34
	SYS_READ      = SYS_CLASS_FILE | SYS_ARG_MSLICE | 3
	SYS_READ2     = SYS_CLASS_FILE | SYS_ARG_MSLICE | 35
	SYS_WRITE     = SYS_CLASS_FILE | SYS_ARG_SLICE | 4
	SYS_WRITE2    = SYS_CLASS_FILE | SYS_ARG_SLICE | 45
	SYS_LSEEK     = SYS_CLASS_FILE | 19
	SYS_FCHMOD    = SYS_CLASS_FILE | 94
	SYS_FCHOWN    = SYS_CLASS_FILE | 207
	SYS_FCNTL     = SYS_CLASS_FILE | 55
	SYS_FEVENT    = SYS_CLASS_FILE | 927
	SYS_FLINK     = SYS_CLASS_FILE | SYS_ARG_PATH | 9
	SYS_FRENAME   = SYS_CLASS_FILE | SYS_ARG_PATH | 38
	SYS_FMAP      = SYS_CLASS_FILE | SYS_ARG_SLICE | 900
	SYS_FUNMAP    = SYS_CLASS_FILE | 92
	SYS_FPATH     = SYS_CLASS_FILE | SYS_ARG_MSLICE | 928
	SYS_FSTAT     = SYS_CLASS_FILE | SYS_ARG_MSLICE | 28
	SYS_FSTATVFS  = SYS_CLASS_FILE | SYS_ARG_MSLICE | 100
	SYS_FSYNC     = SYS_CLASS_FILE | 118
	SYS_FTRUNCATE = SYS_CLASS_FILE | 93
	SYS_FUTIMENS  = SYS_CLASS_FILE | SYS_ARG_SLICE | 320
	SYS_GETDENTS  = SYS_CLASS_FILE | SYS_ARG_MSLICE | 43
	SYS_CALL      = SYS_CLASS_FILE | SYS_ARG_MSLICE | 929

	SYS_YIELD         = 158
	SYS_NANOSLEEP     = 162
	SYS_CLOCK_GETTIME = 265
	SYS_FUTEX         = 240
	SYS_MPROTECT      = 125
	SYS_MKNS          = 984
	SYS_MREMAP        = 155
)

// SyscallNames maps syscall numbers to their names.
var SyscallNames = map[uintptr]string{
	SYS_OPEN:          "open",
	SYS_OPENAT:        "openat",
	SYS_RMDIR:         "rmdir",
	SYS_UNLINK:        "unlink",
	SYS_CLOSE:         "close",
	SYS_DUP:           "dup",
	SYS_DUP2:          "dup2",
	SYS_SENDFD:        "sendfd",
	SYS_READ:          "read",
	SYS_READ2:         "read2",
	SYS_WRITE:         "write",
	SYS_WRITE2:        "write2",
	SYS_LSEEK:         "lseek",
	SYS_FCHMOD:        "fchmod",
	SYS_FCHOWN:        "fchown",
	SYS_FCNTL:         "fcntl",
	SYS_FEVENT:        "fevent",
	SYS_FLINK:         "flink",
	SYS_FRENAME:       "frename",
	SYS_FMAP:          "fmap",
	SYS_FUNMAP:        "funmap",
	SYS_FPATH:         "fpath",
	SYS_FSTAT:         "fstat",
	SYS_FSTATVFS:      "fstatvfs",
	SYS_FSYNC:         "fsync",
	SYS_FTRUNCATE:     "ftruncate",
	SYS_FUTIMENS:      "futimens",
	SYS_GETDENTS:      "getdents",
	SYS_CALL:          "call",
	SYS_YIELD:         "yield",
	SYS_NANOSLEEP:     "nanosleep",
	SYS_CLOCK_GETTIME: "clock_gettime",
	SYS_FUTEX:         "futex",
	SYS_MPROTECT:      "mprotect",
	SYS_MKNS:          "mkns",
	SYS_MREMAP:        "mremap",
}
