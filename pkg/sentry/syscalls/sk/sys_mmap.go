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
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/mm"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
)

// accessType converts the PROT_* bits of f.
func accessType(f sk.MapFlags) hostarch.AccessType {
	return hostarch.AccessType{
		Read:    f&sk.PROT_READ != 0,
		Write:   f&sk.PROT_WRITE != 0,
		Execute: f&sk.PROT_EXEC != 0,
	}
}

// Fmap implements fmap(fd, map, len).
func Fmap(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	src, err := readRegion(t, args[1], args[2])
	if err != nil {
		return 0, err
	}
	var m sk.Map
	if err := src.ReadObject(t, &m); err != nil {
		return 0, err
	}
	if m.Flags != m.Flags.Truncate() {
		return 0, kerr.EINVAL
	}
	opts := mm.MMapOpts{
		Length:    m.Size,
		Addr:      hostarch.Addr(m.Address),
		Fixed:     m.Flags.Fixed(),
		NoReplace: m.Flags.NoReplace(),
		Perms:     accessType(m.Flags),
		Private:   m.Flags&sk.MAP_SHARED == 0,
	}

	if args[0].Value == noHandle {
		opts.Name = "[anon]"
		addr, err := t.MemoryManager().MMap(t, opts)
		return uintptr(addr), err
	}

	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		if m.Size == 0 {
			return 0, kerr.EINVAL
		}
		data, err := s.Mmap(t, number, m.Offset, m.Size, m.Flags)
		if err != nil {
			return 0, err
		}
		opts.Data = data
		if name, err := s.Fpath(t, number); err == nil {
			opts.Name = name
		}
		addr, err := t.MemoryManager().MMap(t, opts)
		return uintptr(addr), err
	})
}

// Funmap implements funmap(addr, len).
func Funmap(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	return 0, t.MemoryManager().MUnmap(t, args[0].Pointer(), args[1].Uint64())
}

// Mprotect implements mprotect(addr, len, flags). Bits other than PROT_* are
// ignored.
func Mprotect(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	flags := sk.MapFlags(args[2].Value).Truncate()
	return 0, t.MemoryManager().MProtect(t, args[0].Pointer(), args[1].Uint64(), accessType(flags))
}

// Mremap implements mremap(old, oldlen, new, newlen, flags).
//
// MAP_FIXED moves the mapping to new, replacing whatever is there;
// MAP_FIXED_NOREPLACE moves it only if the destination is free. Without
// either flag new is a hint and the mapping may move.
func Mremap(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	flags := sk.MapFlags(args[4].Value)
	if flags != flags.Truncate() {
		return 0, kerr.EINVAL
	}
	opts := mm.MRemapOpts{
		Move:    mm.MRemapMayMove,
		NewAddr: args[2].Pointer(),
	}
	if flags.Fixed() {
		opts.Move = mm.MRemapMustMove
		opts.NoReplace = flags.NoReplace()
	}
	addr, err := t.MemoryManager().MRemap(t, args[0].Pointer(), args[1].Uint64(), args[3].Uint64(), opts)
	if err != nil {
		return 0, err
	}
	if flags.Prot() != 0 {
		if err := t.MemoryManager().MProtect(t, addr, args[3].Uint64(), accessType(flags)); err != nil {
			return 0, err
		}
	}
	return uintptr(addr), nil
}
