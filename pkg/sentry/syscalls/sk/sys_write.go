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
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/sentry/syscalls"
	"kestrel.dev/kestrel/pkg/usermem"
	"kestrel.dev/kestrel/pkg/waiter"
)

// EventMaskWrite contains events that can be triggered on writes.
const EventMaskWrite = waiter.EventOut | waiter.EventHUp | waiter.EventErr

// write writes src to desc at offset, blocking unless flags has O_NONBLOCK.
// It returns the number of bytes written and the offset after them.
func write(t *kernel.Task, desc *kernel.FileDescription, src usermem.ReadRegion, offset int64, flags uint32) (int, int64, error) {
	buf := ioBuffer(src.Len())
	if _, err := src.CopyIn(t, buf); err != nil {
		return 0, 0, err
	}
	var end int64
	n, err := syscalls.BlockingIO(t, desc, EventMaskWrite, flags&sk.O_NONBLOCK != 0, func() (int, error) {
		var (
			n   int
			err error
		)
		n, end, err = desc.Scheme().Write(t, desc.Number(), buf, offset, flags)
		return n, err
	})
	if err != nil {
		return 0, 0, err
	}
	return n, end, nil
}

// Write implements write(fd, buf, len). It writes at the description's
// offset, or at the end with O_APPEND, and advances the offset.
func Write(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	src, err := readRegion(t, args[1], args[2])
	if err != nil {
		return 0, err
	}
	return fileOpGenericExt(t, args[0], func(_ scheme.Scheme, _ uintptr, desc *kernel.FileDescription) (uintptr, error) {
		n, end, err := write(t, desc, src, desc.Offset(), desc.Flags())
		if err != nil {
			return 0, err
		}
		desc.SetOffset(end)
		return uintptr(n), nil
	})
}

// Write2 implements write2(fd, buf, len, offset, flags). The description's
// offset is not used or changed.
func Write2(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	return fileOpGenericExt(t, args[0], func(_ scheme.Scheme, _ uintptr, desc *kernel.FileDescription) (uintptr, error) {
		flags, err := callFlags(desc, args[4].Value)
		if err != nil {
			return 0, err
		}
		src, err := readRegion(t, args[1], args[2])
		if err != nil {
			return 0, err
		}
		off, err := explicitOffset(args[3])
		if err != nil {
			return 0, err
		}
		n, _, err := write(t, desc, src, off, flags)
		return uintptr(n), err
	})
}
