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

package strace

import (
	"fmt"
	"sort"

	"kestrel.dev/kestrel/pkg/abi/sk"
)

// FormatSpecifier values describe how an individual syscall argument should be
// formatted.
type FormatSpecifier int

// Valid FormatSpecifiers.
//
// Unless otherwise specified, values are formatted before syscall execution
// and not updated after syscall execution (the same value is output).
const (
	// Hex is just a hexadecimal number.
	Hex FormatSpecifier = iota

	// Oct is just an octal number.
	Oct

	// FD is a handle.
	FD

	// ReadBuffer is a buffer for a read-style call. The syscall return
	// value is used for the length.
	//
	// Formatted after syscall execution.
	ReadBuffer

	// WriteBuffer is a buffer for a write-style call. The following arg is
	// used for the length.
	//
	// Contents omitted after syscall execution.
	WriteBuffer

	// Path is a pointer to a path. The following arg is used for the
	// length.
	Path

	// PostPath is a path written by the syscall, such as the result of
	// fpath. The return value is used for the length.
	//
	// Formatted after syscall execution.
	PostPath

	// OpenFlags are open flags.
	OpenFlags

	// Mode is a file mode.
	Mode

	// Timespec is a pointer to a struct timespec.
	Timespec

	// PostTimespec is a pointer to a struct timespec, formatted after
	// syscall execution.
	PostTimespec

	// Stat is a pointer to a struct stat, formatted after syscall execution.
	Stat

	// MapDesc is a pointer to a struct map.
	MapDesc

	// MapFlags are mapping protection and sharing flags.
	MapFlags

	// EventFlags are fevent flags.
	EventFlags

	// FcntlCmd is an fcntl command.
	FcntlCmd

	// Whence is an lseek whence.
	Whence

	// FutexOp is the futex operation.
	FutexOp

	// ClockID is a clock identifier.
	ClockID

	// CallFlags is the call flags word, including the metadata count.
	CallFlags

	// RWFlags is the flags word of read2 and write2.
	RWFlags
)

// defaultFormat is the syscall argument format to use if the actual format is
// not known. It formats all five arguments as hex.
var defaultFormat = []FormatSpecifier{Hex, Hex, Hex, Hex, Hex}

// SyscallInfo captures the name and printing format of a syscall.
type SyscallInfo struct {
	// name is the name of the syscall.
	name string

	// format contains the format specifiers for each argument.
	//
	// Syscalls have up to five arguments. Arguments without a corresponding
	// entry in format will not be printed.
	format []FormatSpecifier
}

// makeSyscallInfo returns a SyscallInfo for a syscall.
func makeSyscallInfo(name string, f ...FormatSpecifier) SyscallInfo {
	return SyscallInfo{name: name, format: f}
}

// Name returns the syscall name.
func (i SyscallInfo) Name() string {
	return i.name
}

// SyscallMap maps syscalls into names and printing formats.
type SyscallMap map[uintptr]SyscallInfo

// skSyscalls describes the sk table.
var skSyscalls = SyscallMap{
	sk.SYS_OPEN:          makeSyscallInfo("open", Path, Hex, OpenFlags),
	sk.SYS_OPENAT:        makeSyscallInfo("openat", FD, Path, Hex, OpenFlags, OpenFlags),
	sk.SYS_RMDIR:         makeSyscallInfo("rmdir", Path, Hex),
	sk.SYS_UNLINK:        makeSyscallInfo("unlink", Path, Hex),
	sk.SYS_CLOSE:         makeSyscallInfo("close", FD),
	sk.SYS_DUP:           makeSyscallInfo("dup", FD, Path, Hex),
	sk.SYS_DUP2:          makeSyscallInfo("dup2", FD, FD, Path, Hex),
	sk.SYS_SENDFD:        makeSyscallInfo("sendfd", FD, FD, Hex, Hex),
	sk.SYS_READ:          makeSyscallInfo("read", FD, ReadBuffer, Hex),
	sk.SYS_READ2:         makeSyscallInfo("read2", FD, ReadBuffer, Hex, Hex, RWFlags),
	sk.SYS_WRITE:         makeSyscallInfo("write", FD, WriteBuffer, Hex),
	sk.SYS_WRITE2:        makeSyscallInfo("write2", FD, WriteBuffer, Hex, Hex, RWFlags),
	sk.SYS_LSEEK:         makeSyscallInfo("lseek", FD, Hex, Whence),
	sk.SYS_FCHMOD:        makeSyscallInfo("fchmod", FD, Mode),
	sk.SYS_FCHOWN:        makeSyscallInfo("fchown", FD, Hex, Hex),
	sk.SYS_FCNTL:         makeSyscallInfo("fcntl", FD, FcntlCmd, Hex),
	sk.SYS_FEVENT:        makeSyscallInfo("fevent", FD, EventFlags),
	sk.SYS_FLINK:         makeSyscallInfo("flink", FD, Path, Hex),
	sk.SYS_FRENAME:       makeSyscallInfo("frename", FD, Path, Hex),
	sk.SYS_FMAP:          makeSyscallInfo("fmap", FD, MapDesc, Hex),
	sk.SYS_FUNMAP:        makeSyscallInfo("funmap", Hex, Hex),
	sk.SYS_FPATH:         makeSyscallInfo("fpath", FD, PostPath, Hex),
	sk.SYS_FSTAT:         makeSyscallInfo("fstat", FD, Stat, Hex),
	sk.SYS_FSTATVFS:      makeSyscallInfo("fstatvfs", FD, Hex, Hex),
	sk.SYS_FSYNC:         makeSyscallInfo("fsync", FD),
	sk.SYS_FTRUNCATE:     makeSyscallInfo("ftruncate", FD, Hex),
	sk.SYS_FUTIMENS:      makeSyscallInfo("futimens", FD, Hex, Hex),
	sk.SYS_GETDENTS:      makeSyscallInfo("getdents", FD, Hex, Hex, Hex, Hex),
	sk.SYS_CALL:          makeSyscallInfo("call", FD, Hex, Hex, CallFlags, Hex),
	sk.SYS_YIELD:         makeSyscallInfo("yield"),
	sk.SYS_NANOSLEEP:     makeSyscallInfo("nanosleep", Timespec, PostTimespec),
	sk.SYS_CLOCK_GETTIME: makeSyscallInfo("clock_gettime", ClockID, PostTimespec),
	sk.SYS_FUTEX:         makeSyscallInfo("futex", Hex, FutexOp, Hex, Hex, Hex),
	sk.SYS_MPROTECT:      makeSyscallInfo("mprotect", Hex, Hex, MapFlags),
	sk.SYS_MKNS:          makeSyscallInfo("mkns", Hex, Hex),
	sk.SYS_MREMAP:        makeSyscallInfo("mremap", Hex, Hex, Hex, Hex, MapFlags),
}

// Syscalls returns the SyscallMap for the sk table. The returned map must
// not be changed.
func Syscalls() SyscallMap {
	return skSyscalls
}

// ConvertToSysnoMap converts the names to a map keyed on the syscall number
// and value set to true.
//
// The map is in a convenient format to pass to Tracer.SetFilter.
func (s SyscallMap) ConvertToSysnoMap(syscalls []string) (map[uintptr]bool, error) {
	if syscalls == nil {
		// Sentinel: no list.
		return nil, nil
	}

	l := make(map[uintptr]bool)
	for _, sc := range syscalls {
		// Try to match this system call.
		sysno, ok := s.ConvertToSysno(sc)
		if !ok {
			return nil, fmt.Errorf("syscall %q not found", sc)
		}
		l[sysno] = true
	}

	// Success.
	return l, nil
}

// ConvertToSysno converts the name to system call number. Returns false
// if syscall with same name is not found.
func (s SyscallMap) ConvertToSysno(syscall string) (uintptr, bool) {
	for sysno, info := range s {
		if info.name != "" && info.name == syscall {
			return sysno, true
		}
	}
	return 0, false
}

// Names returns the names of every syscall in s, sorted.
func (s SyscallMap) Names() []string {
	names := make([]string, 0, len(s))
	for _, info := range s {
		names = append(names, info.name)
	}
	sort.Strings(names)
	return names
}
