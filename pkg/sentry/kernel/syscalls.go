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

package kernel

import (
	"fmt"
	"sync"
	"time"

	"kestrel.dev/kestrel/pkg/abi/errno"
	"kestrel.dev/kestrel/pkg/errors"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/log"
	"kestrel.dev/kestrel/pkg/sentry/arch"
)

// maxSyscallNum is the highest supported syscall number served by the dense
// lookup slice. Numbers above it fall back to the map.
const maxSyscallNum = 2000

// SyscallFn is a syscall implementation.
//
// sysno is passed through so that one implementation may serve several
// numbers; args holds request words b through f.
type SyscallFn func(t *Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error)

// SyscallSupportLevel is a syscall support levels.
type SyscallSupportLevel int

// String returns a human readable representation of the support level.
func (l SyscallSupportLevel) String() string {
	switch l {
	case SupportUnimplemented:
		return "Unimplemented"
	case SupportPartial:
		return "Partial Support"
	case SupportFull:
		return "Full Support"
	default:
		return "Undocumented"
	}
}

const (
	// SupportUndocumented indicates the syscall is not documented yet.
	SupportUndocumented SyscallSupportLevel = iota

	// SupportUnimplemented indicates the syscall is unimplemented.
	SupportUnimplemented

	// SupportPartial indicates the syscall is partially supported.
	SupportPartial

	// SupportFull indicates the syscall is fully supported.
	SupportFull
)

// Syscall includes the syscall implementation and compatibility information.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation of the syscall.
	Fn SyscallFn

	// SupportLevel is the level of support implemented in this kernel.
	SupportLevel SyscallSupportLevel

	// Note describes the compatibility of the syscall.
	Note string
}

// SyscallTable is a lookup table of system calls.
//
// Tables are registered globally by name, so that the host binary can
// select one from its configuration.
type SyscallTable struct {
	// Name identifies the table (ABI and version).
	Name string

	// Version is the ABI version served by the table.
	Version uint32

	// Table is the collection of functions.
	Table map[uintptr]Syscall

	// lookup is a fixed-size array that holds the syscalls (indexed by
	// their numbers). It is used for fast look ups.
	lookup [maxSyscallNum + 1]SyscallFn

	// Missing is called when a syscall is not found in the table, it
	// returns ENOSYS by default.
	Missing SyscallFn
}

// allSyscallTables contains all known tables.
var allSyscallTables []*SyscallTable

var syscallTablesMu sync.Mutex

// SyscallTables returns a read-only slice of registered SyscallTables.
func SyscallTables() []*SyscallTable {
	syscallTablesMu.Lock()
	defer syscallTablesMu.Unlock()
	return append([]*SyscallTable(nil), allSyscallTables...)
}

// LookupSyscallTable returns the SyscallTable registered under name.
func LookupSyscallTable(name string) (*SyscallTable, bool) {
	syscallTablesMu.Lock()
	defer syscallTablesMu.Unlock()
	for _, s := range allSyscallTables {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// RegisterSyscallTable registers a new syscall table for use by a Kernel.
func RegisterSyscallTable(s *SyscallTable) {
	s.Init()
	syscallTablesMu.Lock()
	defer syscallTablesMu.Unlock()
	allSyscallTables = append(allSyscallTables, s)
}

// Init initializes the system call table.
//
// This should normally be called only during registration.
func (s *SyscallTable) Init() {
	if s.Table == nil {
		// Ensure non-nil lookup table.
		s.Table = make(map[uintptr]Syscall)
	}
	if s.Missing == nil {
		s.Missing = func(*Task, uintptr, arch.SyscallArguments) (uintptr, error) {
			return 0, kerr.ENOSYS
		}
	}

	for num, sc := range s.Table {
		if num <= maxSyscallNum {
			s.lookup[num] = sc.Fn
		}
	}
}

// Lookup returns the syscall implementation, if one exists.
func (s *SyscallTable) Lookup(sysno uintptr) SyscallFn {
	if sysno <= maxSyscallNum {
		return s.lookup[sysno]
	}
	return s.mapLookup(sysno)
}

// mapLookup returns the syscall implementation for sysno from the map.
func (s *SyscallTable) mapLookup(sysno uintptr) SyscallFn {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Fn
	}
	return nil
}

// LookupName looks up a syscall name.
func (s *SyscallTable) LookupName(sysno uintptr) string {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Name
	}
	return fmt.Sprintf("sys_%#x", sysno)
}

// LookupNo looks up a syscall number by name.
func (s *SyscallTable) LookupNo(name string) (uintptr, error) {
	for i, syscall := range s.Table {
		if syscall.Name == name {
			return uintptr(i), nil
		}
	}
	return 0, fmt.Errorf("syscall %q not found", name)
}

// SyscallTracer observes every syscall dispatched by a Task. Implementations
// must not change the outcome of the syscall.
type SyscallTracer interface {
	// SyscallEnter is called before the syscall is dispatched.
	SyscallEnter(t *Task, regs arch.Registers)

	// SyscallExit is called after the syscall has been dispatched.
	SyscallExit(t *Task, regs arch.Registers, val uintptr, err error)
}

// untranslatedLog reports errors that have no errno.
var untranslatedLog = log.BasicRateLimitedLogger(time.Minute)

// ErrnoOf returns the errno that err is reported as.
func ErrnoOf(err error) errno.Errno {
	if e, ok := err.(*errors.Error); ok {
		return e.Errno()
	}
	if e, ok := kerr.TranslateError(err); ok {
		return e.Errno()
	}
	untranslatedLog.Warningf("Untranslated error %T: %v, reporting EIO", err, err)
	return errno.EIO
}

// Mux converts the result of a syscall into the single machine word
// returned to the caller: val on success, and the two's complement negation
// of the errno on failure.
func Mux(val uintptr, err error) uintptr {
	if err == nil {
		return val
	}
	return -uintptr(ErrnoOf(err))
}

// maxErrno bounds the range of words that decode as errors.
const maxErrno = 4095

// ReturnErrno decodes a word produced by Mux. Words in the top 4095 values of
// the address space are errors.
func ReturnErrno(word uintptr) (uintptr, error) {
	if word > ^uintptr(0)-maxErrno {
		e := errno.Errno(-word)
		if err := kerr.FromErrno(e); err != nil {
			return 0, err
		}
		return 0, errors.New(e, fmt.Sprintf("errno %d", e))
	}
	return word, nil
}
