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

// Package syscalls is the interface from the application to the kernel.
// Traditionally, syscalls is the interface that is used by applications to
// request services from the kernel of a operating system.
//
// This package holds helpers shared by syscall tables; the tables themselves
// live in subpackages.
package syscalls

import (
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/waiter"
)

// Supported returns a syscall that is fully supported.
func Supported(name string, fn kernel.SyscallFn) kernel.Syscall {
	return kernel.Syscall{
		Name:         name,
		Fn:           fn,
		SupportLevel: kernel.SupportFull,
	}
}

// PartiallySupported returns a syscall that has a partial implementation.
func PartiallySupported(name string, fn kernel.SyscallFn, note string) kernel.Syscall {
	return kernel.Syscall{
		Name:         name,
		Fn:           fn,
		SupportLevel: kernel.SupportPartial,
		Note:         note,
	}
}

// Error returns a syscall handler that will always give the passed error.
func Error(name string, err error) kernel.Syscall {
	return kernel.Syscall{
		Name: name,
		Fn: func(*kernel.Task, uintptr, arch.SyscallArguments) (uintptr, error) {
			return 0, err
		},
		SupportLevel: kernel.SupportUnimplemented,
	}
}

// BlockingIO runs op until it stops returning kerr.ErrWouldBlock, blocking
// t on events in mask for the description between attempts.
//
// If nonblock is set, or the scheme cannot deliver events, ErrWouldBlock is
// returned as is. A kill while blocked fails with kerr.ErrInterrupted.
func BlockingIO(t *kernel.Task, fd *kernel.FileDescription, mask waiter.EventMask, nonblock bool, op func() (int, error)) (int, error) {
	n, err := op()
	if err != kerr.ErrWouldBlock || nonblock {
		return n, err
	}

	s, number := fd.Scheme(), fd.Number()
	e, ch := waiter.NewChannelEntry(nil)
	if err := s.EventRegister(number, &e, mask); err != nil {
		return 0, kerr.ErrWouldBlock
	}
	defer s.EventUnregister(number, &e)

	// We need to try again after registration because the object may have
	// become ready between the last attempt and registration.
	for {
		n, err = op()
		if err != kerr.ErrWouldBlock {
			return n, err
		}
		if err := t.Block(ch); err != nil {
			return 0, err
		}
	}
}
