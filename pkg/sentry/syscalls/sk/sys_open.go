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
	"math/bits"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/usermem"
)

// openIn opens path in ns and installs the result.
func openIn(t *kernel.Task, ns *scheme.Namespace, path string, flags uint32, fdFlags kernel.FDFlags) (uintptr, error) {
	b, rest, err := ns.Resolve(path, flags)
	if err != nil {
		return 0, err
	}
	res, err := b.Scheme.Open(t, rest, flags)
	if err != nil {
		return 0, err
	}
	fd, err := newDescription(b.Scheme, b.ID, res, flags, rest == "")
	if err != nil {
		return 0, err
	}
	return install(t, fd, fdFlags)
}

// Open implements open(path, len, flags).
func Open(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	path, err := readPath(t, args[0], args[1])
	if err != nil {
		return 0, err
	}
	flags := args[2].Uint()
	return openIn(t, t.Namespace(), path, flags, kernel.FDFlagsFromOpenFlags(flags))
}

// Openat implements openat(fd, path, len, flags, fcntl flags).
//
// If fd is a namespace handle from mkns, path is resolved as "name:path" in
// that namespace; otherwise it is opened relative to fd by fd's scheme.
func Openat(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	path, err := readPath(t, args[1], args[2])
	if err != nil {
		return 0, err
	}
	flags := args[3].Uint()
	fdFlags := kernel.FDFlagsFromOpenFlags(flags | args[4].Uint())

	return fileOpGenericExt(t, args[0], func(s scheme.Scheme, number uintptr, desc *kernel.FileDescription) (uintptr, error) {
		if ns, ok := s.(*scheme.Namespace); ok {
			return openIn(t, ns, path, flags, fdFlags)
		}
		res, err := s.OpenAt(t, number, path, flags)
		if err != nil {
			return 0, err
		}
		fd, err := newDescription(s, desc.SchemeID(), res, flags, false)
		if err != nil {
			return 0, err
		}
		return install(t, fd, fdFlags)
	})
}

// Rmdir implements rmdir(path, len).
func Rmdir(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	path, err := readPath(t, args[0], args[1])
	if err != nil {
		return 0, err
	}
	b, rest, err := t.Namespace().Resolve(path, sk.O_WRONLY)
	if err != nil {
		return 0, err
	}
	return 0, b.Scheme.Rmdir(t, rest)
}

// Unlink implements unlink(path, len).
func Unlink(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	path, err := readPath(t, args[0], args[1])
	if err != nil {
		return 0, err
	}
	b, rest, err := t.Namespace().Resolve(path, sk.O_WRONLY)
	if err != nil {
		return 0, err
	}
	return 0, b.Scheme.Unlink(t, rest)
}

// Mkns implements mkns(pairs, count).
//
// Each pair names a scheme root handle and the permissions (NS_READ,
// NS_WRITE) the new namespace grants on it. The result is a namespace
// handle usable with openat.
func Mkns(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	count := args[1].Uint64()
	hi, length := bits.Mul64(count, sk.SizeOfNsPair)
	if hi != 0 {
		return 0, kerr.EOVERFLOW
	}
	r, err := usermem.NewReadRegion(t.IO(), args[0].Pointer(), length)
	if err != nil {
		return 0, err
	}

	var bs []scheme.Binding
	for i := 0; i < r.Len(); i += sk.SizeOfNsPair {
		var pair sk.NsPair
		if err := r.Sub(i, sk.SizeOfNsPair).ReadObject(t, &pair); err != nil {
			return 0, err
		}
		b, err := nsBinding(t, pair)
		if err != nil {
			return 0, err
		}
		bs = append(bs, b)
	}

	ns, err := scheme.NewNamespace(bs)
	if err != nil {
		return 0, err
	}
	fd := kernel.NewFileDescription(kernel.FileDescriptionOptions{
		Scheme:   ns,
		SchemeID: kernel.NamespaceSchemeID,
		Flags:    sk.O_RDONLY,
	})
	return install(t, fd, kernel.FDFlags{})
}

// nsBinding resolves one mkns pair.
func nsBinding(t *kernel.Task, pair sk.NsPair) (scheme.Binding, error) {
	if pair.Perms&^sk.NS_ALL != 0 {
		return scheme.Binding{}, kerr.EINVAL
	}
	desc, err := getDesc(t, arch.SyscallArgument{Value: uintptr(pair.FD)})
	if err != nil {
		return scheme.Binding{}, err
	}
	defer desc.DecRef()
	if !desc.IsSchemeRoot() {
		return scheme.Binding{}, kerr.EINVAL
	}
	_, name, ok := t.Kernel().Registry().Get(desc.SchemeID())
	if !ok {
		return scheme.Binding{}, kerr.EBADF
	}
	return scheme.Binding{
		Name:   name,
		ID:     desc.SchemeID(),
		Scheme: desc.Scheme(),
		Perms:  scheme.Perms(pair.Perms),
	}, nil
}
