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

// Fchmod implements fchmod(fd, mode).
func Fchmod(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	mode := args[1].Uint16()
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		return 0, s.Fchmod(t, number, mode)
	})
}

// Fchown implements fchown(fd, uid, gid).
func Fchown(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	uid, gid := args[1].Uint(), args[2].Uint()
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		return 0, s.Fchown(t, number, uid, gid)
	})
}

// Fsync implements fsync(fd).
func Fsync(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		return 0, s.Fsync(t, number)
	})
}

// Ftruncate implements ftruncate(fd, length).
func Ftruncate(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	length := args[1].Int64()
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		if length < 0 {
			return 0, kerr.EINVAL
		}
		return 0, s.Ftruncate(t, number, length)
	})
}

// Futimens implements futimens(fd, times, len). times holds zero, one or two
// sk.Timespec values: access time then modification time.
func Futimens(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		src, err := readRegion(t, args[1], args[2])
		if err != nil {
			return 0, err
		}
		if src.Len()%sk.SizeOfTimespec != 0 || src.Len()/sk.SizeOfTimespec > 2 {
			return 0, kerr.EINVAL
		}
		times := make([]sk.Timespec, src.Len()/sk.SizeOfTimespec)
		for i := range times {
			if err := src.Sub(i*sk.SizeOfTimespec, sk.SizeOfTimespec).ReadObject(t, &times[i]); err != nil {
				return 0, err
			}
			if !times[i].Valid() {
				return 0, kerr.EINVAL
			}
		}
		return 0, s.Futimens(t, number, times)
	})
}

// linkTarget resolves the destination path of flink and frename, which
// must be in the same scheme as desc.
func linkTarget(t *kernel.Task, desc *kernel.FileDescription, args arch.SyscallArguments) (string, error) {
	path, err := readPath(t, args[1], args[2])
	if err != nil {
		return "", err
	}
	b, rest, err := t.Namespace().Resolve(path, sk.O_WRONLY)
	if err != nil {
		return "", err
	}
	if b.ID != desc.SchemeID() {
		return "", kerr.EXDEV
	}
	return rest, nil
}

// Flink implements flink(fd, path, len).
func Flink(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	return fileOpGenericExt(t, args[0], func(s scheme.Scheme, number uintptr, desc *kernel.FileDescription) (uintptr, error) {
		path, err := linkTarget(t, desc, args)
		if err != nil {
			return 0, err
		}
		return 0, s.Flink(t, number, path)
	})
}

// Frename implements frename(fd, path, len).
func Frename(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	return fileOpGenericExt(t, args[0], func(s scheme.Scheme, number uintptr, desc *kernel.FileDescription) (uintptr, error) {
		path, err := linkTarget(t, desc, args)
		if err != nil {
			return 0, err
		}
		return 0, s.Frename(t, number, path)
	})
}
