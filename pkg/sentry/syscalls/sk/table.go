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

// Package sk provides syscall tables for the sk ABI.
//
// Handlers validate every user buffer they are given before resolving the
// handle argument, so a request that carries both a bad buffer and a bad
// handle reports EFAULT. Operations whose buffer shape depends on the
// resolved description validate inside the resolution closure instead.
package sk

import (
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/syscalls"
)

// Table is the sk syscall table. Numbers that are not listed fail with
// ENOSYS.
var Table = &kernel.SyscallTable{
	Name:    "sk",
	Version: 1,
	Table: map[uintptr]kernel.Syscall{
		sk.SYS_OPEN:          syscalls.Supported("open", Open),
		sk.SYS_OPENAT:        syscalls.Supported("openat", Openat),
		sk.SYS_RMDIR:         syscalls.Supported("rmdir", Rmdir),
		sk.SYS_UNLINK:        syscalls.Supported("unlink", Unlink),
		sk.SYS_CLOSE:         syscalls.Supported("close", Close),
		sk.SYS_DUP:           syscalls.Supported("dup", Dup),
		sk.SYS_DUP2:          syscalls.Supported("dup2", Dup2),
		sk.SYS_SENDFD:        syscalls.Supported("sendfd", Sendfd),
		sk.SYS_READ:          syscalls.Supported("read", Read),
		sk.SYS_READ2:         syscalls.Supported("read2", Read2),
		sk.SYS_WRITE:         syscalls.Supported("write", Write),
		sk.SYS_WRITE2:        syscalls.Supported("write2", Write2),
		sk.SYS_LSEEK:         syscalls.Supported("lseek", Lseek),
		sk.SYS_FCHMOD:        syscalls.Supported("fchmod", Fchmod),
		sk.SYS_FCHOWN:        syscalls.Supported("fchown", Fchown),
		sk.SYS_FCNTL:         syscalls.Supported("fcntl", Fcntl),
		sk.SYS_FEVENT:        syscalls.Supported("fevent", Fevent),
		sk.SYS_FLINK:         syscalls.Supported("flink", Flink),
		sk.SYS_FRENAME:       syscalls.Supported("frename", Frename),
		sk.SYS_FMAP:          syscalls.PartiallySupported("fmap", Fmap, "Shared file mappings are not supported."),
		sk.SYS_FUNMAP:        syscalls.Supported("funmap", Funmap),
		sk.SYS_FPATH:         syscalls.Supported("fpath", Fpath),
		sk.SYS_FSTAT:         syscalls.Supported("fstat", Fstat),
		sk.SYS_FSTATVFS:      syscalls.Supported("fstatvfs", Fstatvfs),
		sk.SYS_FSYNC:         syscalls.Supported("fsync", Fsync),
		sk.SYS_FTRUNCATE:     syscalls.Supported("ftruncate", Ftruncate),
		sk.SYS_FUTIMENS:      syscalls.Supported("futimens", Futimens),
		sk.SYS_GETDENTS:      syscalls.Supported("getdents", Getdents),
		sk.SYS_CALL:          syscalls.Supported("call", Call),
		sk.SYS_YIELD:         syscalls.Supported("yield", Yield),
		sk.SYS_NANOSLEEP:     syscalls.Supported("nanosleep", Nanosleep),
		sk.SYS_CLOCK_GETTIME: syscalls.Supported("clock_gettime", ClockGettime),
		sk.SYS_FUTEX:         syscalls.Supported("futex", Futex),
		sk.SYS_MPROTECT:      syscalls.Supported("mprotect", Mprotect),
		sk.SYS_MKNS:          syscalls.Supported("mkns", Mkns),
		sk.SYS_MREMAP:        syscalls.Supported("mremap", Mremap),
	},
}

func init() {
	kernel.RegisterSyscallTable(Table)
}
