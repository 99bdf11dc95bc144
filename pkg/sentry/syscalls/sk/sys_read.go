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
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/sentry/syscalls"
	"kestrel.dev/kestrel/pkg/usermem"
	"kestrel.dev/kestrel/pkg/waiter"
)

// EventMaskRead contains events that can be triggered on reads.
const EventMaskRead = waiter.EventIn | waiter.EventHUp | waiter.EventErr

// callFlags decodes the flags word of read2 and write2. noHandle keeps the
// descriptor's own flags.
func callFlags(desc *kernel.FileDescription, w uintptr) (uint32, error) {
	if w == noHandle {
		return desc.Flags(), nil
	}
	f, ok := sk.RwFlagsFromWord(w)
	if !ok {
		return 0, kerr.EINVAL
	}
	return desc.RWFlags(f), nil
}

// explicitOffset decodes the offset word of read2 and write2.
func explicitOffset(a arch.SyscallArgument) (int64, error) {
	off := a.Int64()
	if off < 0 {
		return 0, kerr.EINVAL
	}
	return off, nil
}

// read reads from desc at offset into dst, blocking unless flags has
// O_NONBLOCK.
func read(t *kernel.Task, desc *kernel.FileDescription, dst usermem.WriteRegion, offset int64, flags uint32) (int, error) {
	buf := ioBuffer(dst.Len())
	n, err := syscalls.BlockingIO(t, desc, EventMaskRead, flags&sk.O_NONBLOCK != 0, func() (int, error) {
		return desc.Scheme().Read(t, desc.Number(), buf, offset, flags)
	})
	if err != nil {
		return 0, err
	}
	if _, err := dst.CopyOut(t, buf[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

// Read implements read(fd, buf, len). It reads at the description's offset
// and advances it.
func Read(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	dst, err := writeRegion(t, args[1], args[2])
	if err != nil {
		return 0, err
	}
	return fileOpGenericExt(t, args[0], func(_ scheme.Scheme, _ uintptr, desc *kernel.FileDescription) (uintptr, error) {
		off := desc.Offset()
		n, err := read(t, desc, dst, off, desc.Flags())
		if err != nil {
			return 0, err
		}
		desc.SetOffset(off + int64(n))
		return uintptr(n), nil
	})
}

// Read2 implements read2(fd, buf, len, offset, flags). The description's
// offset is not used or changed.
func Read2(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	return fileOpGenericExt(t, args[0], func(_ scheme.Scheme, _ uintptr, desc *kernel.FileDescription) (uintptr, error) {
		flags, err := callFlags(desc, args[4].Value)
		if err != nil {
			return 0, err
		}
		dst, err := writeRegion(t, args[1], args[2])
		if err != nil {
			return 0, err
		}
		off, err := explicitOffset(args[3])
		if err != nil {
			return 0, err
		}
		n, err := read(t, desc, dst, off, flags)
		return uintptr(n), err
	})
}
