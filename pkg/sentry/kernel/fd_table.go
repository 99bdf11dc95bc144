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
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/refs"
)

// FDFlags define flags for an individual descriptor.
type FDFlags struct {
	// CloseOnExec indicates the descriptor should be closed on exec.
	CloseOnExec bool
}

// ToFDFlags converts a kernel.FDFlags object to an F_GETFD flags
// representation.
func (f FDFlags) ToFDFlags() (mask uint32) {
	if f.CloseOnExec {
		mask |= sk.FD_CLOEXEC
	}
	return
}

// FDFlagsFromOpenFlags returns the descriptor flags requested by open flags.
func FDFlagsFromOpenFlags(flags uint32) FDFlags {
	return FDFlags{CloseOnExec: flags&sk.O_CLOEXEC != 0}
}

// descriptor holds the details about a file descriptor, namely a pointer to
// the file description and the descriptor flags.
//
// Note that this is immutable and can only be changed via operations on the
// descriptorTable.
type descriptor struct {
	file  *FileDescription
	flags FDFlags
}

// FDTable is used to manage FileDescription references and flags.
type FDTable struct {
	refs.AtomicRefCount
	k *Kernel

	// uid is a unique identifier.
	uid uint64

	// limit is the number of descriptors that may be allocated; descriptor
	// numbers are in [0, limit).
	limit atomic.Int32

	// mu protects below.
	mu sync.Mutex

	// used contains the number of non-nil entries. It may be read
	// atomically without holding mu (but not written).
	used atomic.Int32

	// descriptorTable holds descriptors.
	descriptorTable
}

// drop drops the table reference.
func (f *FDTable) drop(file *FileDescription) {
	file.DecRef()
}

// ID returns a unique identifier for this FDTable.
func (f *FDTable) ID() uint64 {
	return f.uid
}

// NewFDTable allocates a new FDTable that may be used by tasks in k.
func (k *Kernel) NewFDTable() *FDTable {
	f := &FDTable{
		k:   k,
		uid: k.fdMapUids.Add(1),
	}
	f.limit.Store(k.maxFiles)
	f.init()
	return f
}

// destroy removes all of the file descriptors from the map.
func (f *FDTable) destroy() {
	f.RemoveIf(func(*FileDescription, FDFlags) bool {
		return true
	})
}

// DecRef implements RefCounter.DecRef with destructor f.destroy.
func (f *FDTable) DecRef() {
	f.DecRefWithDestructor(f.destroy)
}

// Size returns the number of file descriptor slots currently allocated.
func (f *FDTable) Size() int {
	return int(f.used.Load())
}

// Limit returns the descriptor limit.
func (f *FDTable) Limit() int32 {
	return f.limit.Load()
}

// SetLimit sets the descriptor limit. Existing descriptors above the new
// limit are left in place.
func (f *FDTable) SetLimit(limit int32) {
	f.limit.Store(limit)
}

// forEach iterates over all non-nil files.
//
// It is the caller's responsibility to acquire an appropriate lock.
func (f *FDTable) forEach(fn func(fd int32, file *FileDescription, flags FDFlags)) {
	fd := int32(0)
	for {
		file, flags, ok := f.get(fd)
		if !ok {
			break
		}
		if file != nil {
			if !file.TryIncRef() {
				continue // Race caught.
			}
			fn(fd, file, flags)
			file.DecRef()
		}
		fd++
	}
}

// String is a stringer for FDTable.
func (f *FDTable) String() string {
	var b bytes.Buffer
	f.forEach(func(fd int32, file *FileDescription, flags FDFlags) {
		b.WriteString(fmt.Sprintf("\tfd:%d => %v\n", fd, file))
	})
	return b.String()
}

// NewFDs allocates new FDs guaranteed to be the lowest number available
// greater than or equal to the fd parameter. All files will share the set
// flags. Success is guaranteed to be all or none.
func (f *FDTable) NewFDs(fd int32, files []*FileDescription, flags FDFlags) (fds []int32, err error) {
	if fd < 0 {
		// Don't accept negative FDs.
		return nil, kerr.EINVAL
	}

	// Ensure we don't get past the limit.
	end := f.limit.Load()
	if fd >= end {
		return nil, kerr.EMFILE
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Install all entries.
	for i := fd; i < end && len(fds) < len(files); i++ {
		if d, _, _ := f.get(i); d == nil {
			f.set(i, files[len(fds)], flags) // Set the descriptor.
			fds = append(fds, i)             // Record the file descriptor.
		}
	}

	// Failure? Unwind existing FDs.
	if len(fds) < len(files) {
		for _, i := range fds {
			f.set(i, nil, FDFlags{}) // Zap entry.
		}
		return nil, kerr.EMFILE
	}

	return fds, nil
}

// NewFD allocates the lowest available descriptor for file.
func (f *FDTable) NewFD(file *FileDescription, flags FDFlags) (int32, error) {
	fds, err := f.NewFDs(0, []*FileDescription{file}, flags)
	if err != nil {
		return -1, err
	}
	return fds[0], nil
}

// NewFDAt sets the file reference for the given FD. If there is an active
// reference for that FD, the ref count for that existing reference is
// decremented.
func (f *FDTable) NewFDAt(fd int32, file *FileDescription, flags FDFlags) error {
	if fd < 0 {
		// Don't accept negative FDs.
		return kerr.EBADF
	}

	// Check the limit for the provided file.
	if fd >= f.limit.Load() {
		return kerr.EMFILE
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Install the entry.
	f.set(fd, file, flags)
	return nil
}

// SetFlags sets the flags for the given file descriptor.
func (f *FDTable) SetFlags(fd int32, flags FDFlags) error {
	if fd < 0 {
		// Don't accept negative FDs.
		return kerr.EBADF
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, _, _ := f.get(fd)
	if file == nil {
		// No file found.
		return kerr.EBADF
	}

	// Update the flags.
	f.set(fd, file, flags)
	return nil
}

// Get returns a reference to the file and the flags for the FD or nil if no
// file is defined for the given fd.
//
// N.B. Callers are required to use DecRef when they are done.
//
//go:nosplit
func (f *FDTable) Get(fd int32) (*FileDescription, FDFlags) {
	if fd < 0 {
		return nil, FDFlags{}
	}

	for {
		file, flags, _ := f.get(fd)
		if file != nil {
			if !file.TryIncRef() {
				continue // Race caught.
			}
			// Reference acquired.
			return file, flags
		}
		// No file available.
		return nil, FDFlags{}
	}
}

// GetFDs returns a list of valid fds.
func (f *FDTable) GetFDs() []int32 {
	fds := make([]int32, 0, int(f.used.Load()))
	f.forEach(func(fd int32, file *FileDescription, flags FDFlags) {
		fds = append(fds, fd)
	})
	return fds
}

// GetRefs returns a stable slice of references to all files and bumps the
// reference count on each. The caller must use DecRef on each reference when
// they're done using the slice.
func (f *FDTable) GetRefs() []*FileDescription {
	files := make([]*FileDescription, 0, f.Size())
	f.forEach(func(_ int32, file *FileDescription, flags FDFlags) {
		file.IncRef() // Acquire a reference for caller.
		files = append(files, file)
	})
	return files
}

// Fork returns an independent FDTable with the same descriptors, which
// alias the same descriptions.
func (f *FDTable) Fork() *FDTable {
	clone := f.k.NewFDTable()
	clone.limit.Store(f.limit.Load())

	f.mu.Lock()
	defer f.mu.Unlock()
	f.forEach(func(fd int32, file *FileDescription, flags FDFlags) {
		// The set function here will acquire an appropriate table
		// reference for the clone. We don't need anything else.
		clone.set(fd, file, flags)
	})
	return clone
}

// Remove removes an FD from and returns a non-file iff successful.
//
// N.B. Callers are required to use DecRef when they are done.
func (f *FDTable) Remove(fd int32) *FileDescription {
	if fd < 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	orig, _, _ := f.get(fd)
	if orig != nil {
		orig.IncRef()             // Reference for caller.
		f.set(fd, nil, FDFlags{}) // Zap entry.
	}
	return orig
}

// RemoveIfSame removes fd only if it still refers to file, and reports
// whether it did. The table's reference on file is dropped.
func (f *FDTable) RemoveIfSame(fd int32, file *FileDescription) bool {
	if fd < 0 || file == nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if orig, _, _ := f.get(fd); orig != file {
		return false
	}
	f.set(fd, nil, FDFlags{})
	return true
}

// RemoveIf removes all FDs where cond is true.
func (f *FDTable) RemoveIf(cond func(*FileDescription, FDFlags) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.forEach(func(fd int32, file *FileDescription, flags FDFlags) {
		if cond(file, flags) {
			f.set(fd, nil, FDFlags{}) // Clear from table.
		}
	})
}
