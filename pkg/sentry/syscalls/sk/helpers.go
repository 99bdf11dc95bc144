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
	"math"

	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/usermem"
)

const (
	// maxPathLen is the longest path accepted by path operations.
	maxPathLen = 4096

	// maxIOChunk bounds the kernel buffer used by a single read or write.
	// Larger requests complete short.
	maxIOChunk = 1 << 20

	// noHandle is the handle word that selects an anonymous mapping in fmap
	// and the descriptor's own flags in read2 and write2.
	noHandle = ^uintptr(0)
)

// handle decodes a handle word. Words that cannot name a descriptor fail
// with EBADF.
func handle(a arch.SyscallArgument) (int32, error) {
	if a.Value > math.MaxInt32 {
		return 0, kerr.EBADF
	}
	return int32(a.Value), nil
}

// getDesc resolves a handle word to a description. The caller must DecRef
// the result.
func getDesc(t *kernel.Task, a arch.SyscallArgument) (*kernel.FileDescription, error) {
	fd, err := handle(a)
	if err != nil {
		return nil, err
	}
	desc, _ := t.FDTable().Get(fd)
	if desc == nil {
		return nil, kerr.EBADF
	}
	return desc, nil
}

// fileOpGeneric resolves the handle in a and runs fn with the scheme and the
// scheme-local number. The reference taken by resolution is released when fn
// returns.
func fileOpGeneric(t *kernel.Task, a arch.SyscallArgument, fn func(s scheme.Scheme, number uintptr) (uintptr, error)) (uintptr, error) {
	return fileOpGenericExt(t, a, func(s scheme.Scheme, number uintptr, _ *kernel.FileDescription) (uintptr, error) {
		return fn(s, number)
	})
}

// fileOpGenericExt is fileOpGeneric for operations that need the rest of
// the description: its flags, offset or scheme ID.
func fileOpGenericExt(t *kernel.Task, a arch.SyscallArgument, fn func(s scheme.Scheme, number uintptr, desc *kernel.FileDescription) (uintptr, error)) (uintptr, error) {
	desc, err := getDesc(t, a)
	if err != nil {
		return 0, err
	}
	defer desc.DecRef()
	return fn(desc.Scheme(), desc.Number(), desc)
}

// readRegion validates a user buffer the kernel reads from.
func readRegion(t *kernel.Task, addr, length arch.SyscallArgument) (usermem.ReadRegion, error) {
	return usermem.NewReadRegion(t.IO(), addr.Pointer(), length.Uint64())
}

// writeRegion validates a user buffer the kernel writes to.
func writeRegion(t *kernel.Task, addr, length arch.SyscallArgument) (usermem.WriteRegion, error) {
	return usermem.NewWriteRegion(t.IO(), addr.Pointer(), length.Uint64())
}

// copyInPath reads a path from a validated region.
func copyInPath(t *kernel.Task, r usermem.ReadRegion) (string, error) {
	if r.Len() > maxPathLen {
		return "", kerr.ENAMETOOLONG
	}
	return r.ReadString(t)
}

// readPath validates and reads a (pointer, length) path.
func readPath(t *kernel.Task, addr, length arch.SyscallArgument) (string, error) {
	r, err := readRegion(t, addr, length)
	if err != nil {
		return "", err
	}
	return copyInPath(t, r)
}

// ioBuffer returns a kernel buffer for a transfer of length bytes.
func ioBuffer(length int) []byte {
	if length > maxIOChunk {
		length = maxIOChunk
	}
	return make([]byte, length)
}

// install adds a description produced by an open or dup to t's table and
// returns its handle. The caller's reference on fd is consumed.
func install(t *kernel.Task, fd *kernel.FileDescription, flags kernel.FDFlags) (uintptr, error) {
	defer fd.DecRef()
	n, err := t.FDTable().NewFD(fd, flags)
	if err != nil {
		return 0, err
	}
	return uintptr(n), nil
}

// newDescription converts the result of an open or dup into a description
// holding one reference.
func newDescription(s scheme.Scheme, id scheme.ID, res scheme.OpenResult, flags uint32, root bool) (*kernel.FileDescription, error) {
	if res.External != nil {
		fd, ok := res.External.(*kernel.FileDescription)
		if !ok {
			res.External.DecRef()
			return nil, kerr.EBADF
		}
		return fd, nil
	}
	return kernel.NewFileDescription(kernel.FileDescriptionOptions{
		Scheme:   s,
		SchemeID: id,
		Number:   res.Number,
		Flags:    flags,
		Root:     root,
	}), nil
}
