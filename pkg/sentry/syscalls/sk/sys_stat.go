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
)

// Fstat implements fstat(fd, stat, len). len must be the size of sk.Stat.
func Fstat(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	dst, err := writeRegion(t, args[1], args[2])
	if err != nil {
		return 0, err
	}
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		st, err := s.Fstat(t, number)
		if err != nil {
			return 0, err
		}
		return 0, dst.WriteObject(t, &st)
	})
}

// Fstatvfs implements fstatvfs(fd, statvfs, len). len must be the size of
// sk.StatVfs.
func Fstatvfs(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		dst, err := writeRegion(t, args[1], args[2])
		if err != nil {
			return 0, err
		}
		st, err := s.Fstatvfs(t, number)
		if err != nil {
			return 0, err
		}
		return 0, dst.WriteObject(t, &st)
	})
}

// Fpath implements fpath(fd, buf, len). The canonical "name:path" of fd is
// copied to buf, truncated to len, and the number of bytes copied is
// returned.
func Fpath(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		dst, err := writeRegion(t, args[1], args[2])
		if err != nil {
			return 0, err
		}
		path, err := s.Fpath(t, number)
		if err != nil {
			return 0, err
		}
		n, err := dst.CopyOut(t, []byte(path))
		return uintptr(n), err
	})
}

// Getdents implements getdents(fd, buf, len, header size, cursor).
//
// header size must equal sk.DirentHeaderSize. Entries are copied to buf
// back to back, each a sk.DirentHeader followed by a NUL-terminated name;
// the NextOpaqueID of the last entry is the cursor for the next call.
func Getdents(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	if args[3].Value > 0xFFFF {
		return 0, kerr.EINVAL
	}
	if args[3].Uint16() != sk.DirentHeaderSize {
		return 0, kerr.EINVAL
	}
	cursor := args[4].Uint64()
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		dst, err := writeRegion(t, args[1], args[2])
		if err != nil {
			return 0, err
		}
		buf := ioBuffer(dst.Len())
		n, err := s.Getdents(t, number, buf, cursor)
		if err != nil {
			return 0, err
		}
		if _, err := dst.CopyOut(t, buf[:n]); err != nil {
			return 0, err
		}
		return uintptr(n), nil
	})
}
