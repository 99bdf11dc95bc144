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
	"sync/atomic"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/log"
	"kestrel.dev/kestrel/pkg/refs"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
)

// NamespaceSchemeID is the scheme ID of descriptions that refer to a
// namespace created by mkns.
const NamespaceSchemeID = ^scheme.ID(0)

// settableFlags are the open flags that may change after open.
const settableFlags = sk.O_NONBLOCK | sk.O_APPEND

// FileDescription is an open handle on a scheme object. It is shared by
// every descriptor that aliases it, through dup or fork.
//
// FileDescription implements scheme.Description.
type FileDescription struct {
	refs.AtomicRefCount

	// The following fields are immutable.
	scheme   scheme.Scheme
	schemeID scheme.ID
	number   uintptr
	root     bool

	// flags are the open flags.
	flags atomic.Uint32

	// offsetMu protects offset.
	offsetMu sync.Mutex
	offset   int64
}

// FileDescriptionOptions holds the arguments of NewFileDescription.
type FileDescriptionOptions struct {
	Scheme   scheme.Scheme
	SchemeID scheme.ID
	Number   uintptr
	Flags    uint32

	// Root is set if the description refers to the root of its scheme.
	Root bool
}

// NewFileDescription returns a description holding one reference.
func NewFileDescription(opts FileDescriptionOptions) *FileDescription {
	fd := &FileDescription{
		scheme:   opts.Scheme,
		schemeID: opts.SchemeID,
		number:   opts.Number,
		root:     opts.Root,
	}
	fd.flags.Store(opts.Flags &^ sk.O_CLOEXEC)
	refs.Register(fd)
	return fd
}

// DecRef implements refs.RefCounter.DecRef. The scheme handle is closed when
// the last reference is dropped.
func (fd *FileDescription) DecRef() {
	fd.DecRefWithDestructor(fd.destroy)
}

func (fd *FileDescription) destroy() {
	refs.Unregister(fd)
	if err := fd.scheme.Close(fd.number); err != nil {
		log.Warningf("Closing %v: %v", fd, err)
	}
}

// RefType implements refs.CheckedObject.RefType.
func (fd *FileDescription) RefType() string {
	return "kernel.FileDescription"
}

// LeakMessage implements refs.CheckedObject.LeakMessage.
func (fd *FileDescription) LeakMessage() string {
	return fmt.Sprintf("[%v] reference count of %d instead of 0", fd, fd.ReadRefs())
}

// String implements fmt.Stringer.
func (fd *FileDescription) String() string {
	return fmt.Sprintf("description{scheme %d, number %#x}", fd.schemeID, fd.number)
}

// Scheme returns the scheme that owns the handle.
func (fd *FileDescription) Scheme() scheme.Scheme {
	return fd.scheme
}

// SchemeID returns the ID of the owning scheme.
func (fd *FileDescription) SchemeID() scheme.ID {
	return fd.schemeID
}

// Number returns the scheme-local handle.
func (fd *FileDescription) Number() uintptr {
	return fd.number
}

// IsSchemeRoot returns true if fd was opened as "name:".
func (fd *FileDescription) IsSchemeRoot() bool {
	return fd.root
}

// Flags returns the open flags.
func (fd *FileDescription) Flags() uint32 {
	return fd.flags.Load()
}

// SetFlags replaces the settable open flags (O_NONBLOCK and O_APPEND) with
// those in flags. Other bits in flags are ignored.
func (fd *FileDescription) SetFlags(flags uint32) {
	for {
		old := fd.flags.Load()
		new := old&^settableFlags | flags&settableFlags
		if fd.flags.CompareAndSwap(old, new) {
			return
		}
	}
}

// RWFlags returns the open flags for a single read2 or write2 call with
// per-call flags f, which replace the description's O_NONBLOCK and
// O_APPEND.
func (fd *FileDescription) RWFlags(f sk.RwFlags) uint32 {
	flags := fd.Flags() &^ settableFlags
	if f&sk.RWF_NONBLOCK != 0 {
		flags |= sk.O_NONBLOCK
	}
	if f&sk.RWF_APPEND != 0 {
		flags |= sk.O_APPEND
	}
	if f&sk.RWF_UNCACHED != 0 {
		flags |= sk.O_FSYNC
	}
	return flags
}

// Offset returns the shared file offset.
func (fd *FileDescription) Offset() int64 {
	fd.offsetMu.Lock()
	defer fd.offsetMu.Unlock()
	return fd.offset
}

// SetOffset sets the shared file offset.
func (fd *FileDescription) SetOffset(off int64) {
	fd.offsetMu.Lock()
	defer fd.offsetMu.Unlock()
	fd.offset = off
}
