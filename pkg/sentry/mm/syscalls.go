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

package mm

import (
	"context"

	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/hostarch"
)

// MMapOpts specifies options to MMap.
type MMapOpts struct {
	// Length is the length of the mapping.
	Length uint64

	// Addr is the suggested address for the mapping.
	Addr hostarch.Addr

	// Fixed specifies whether this is a fixed mapping (it must be located at
	// Addr).
	Fixed bool

	// NoReplace makes a Fixed mapping fail with EEXIST instead of replacing
	// existing mappings.
	NoReplace bool

	// Perms is the set of permissions to the applied to this mapping.
	Perms hostarch.AccessType

	// MaxPerms limits the set of permissions that may ever apply to this
	// mapping. If MaxPerms is the zero value, hostarch.AnyAccess is used.
	MaxPerms hostarch.AccessType

	// Private is true if this is a MAP_PRIVATE mapping.
	Private bool

	// Data holds the initial contents of the mapping. Bytes past len(Data)
	// are zero.
	Data []byte

	// Name describes the source of the mapping.
	Name string
}

// MMap establishes a memory mapping.
func (mm *MemoryManager) MMap(ctx context.Context, opts MMapOpts) (hostarch.Addr, error) {
	if opts.Length == 0 {
		return 0, kerr.EINVAL
	}
	length, ok := hostarch.Addr(opts.Length).RoundUp()
	if !ok {
		return 0, kerr.ENOMEM
	}
	opts.Length = uint64(length)

	if !opts.Addr.IsPageAligned() {
		// MAP_FIXED requires addr to be page-aligned; non-fixed mappings
		// don't.
		if opts.Fixed {
			return 0, kerr.EINVAL
		}
		opts.Addr = opts.Addr.RoundDown()
	}

	if opts.MaxPerms == hostarch.NoAccess {
		opts.MaxPerms = hostarch.AnyAccess
	}
	if !opts.MaxPerms.SupersetOf(opts.Perms) {
		return 0, kerr.EACCES
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()

	var ar hostarch.AddrRange
	if opts.Fixed {
		ar, ok = opts.Addr.ToRange(opts.Length)
		if !ok || ar.End > hostarch.MaxUserAddress {
			return 0, kerr.ENOMEM
		}
		if opts.NoReplace {
			if !mm.isFreeLocked(ar) {
				return 0, kerr.EEXIST
			}
		}
		if mm.usageAS-mm.mappedLengthLocked(ar)+opts.Length > mm.limitAS {
			return 0, kerr.ENOMEM
		}
		mm.unmapLocked(ar)
	} else {
		if mm.usageAS+opts.Length > mm.limitAS {
			return 0, kerr.ENOMEM
		}
		addr, err := mm.findAvailableLocked(opts.Length, opts.Addr)
		if err != nil {
			return 0, err
		}
		ar, _ = addr.ToRange(opts.Length)
	}

	mm.insertLocked(&vma{
		ar:             ar,
		realPerms:      opts.Perms,
		effectivePerms: opts.Perms.Effective(),
		maxPerms:       opts.MaxPerms,
		private:        opts.Private,
		name:           opts.Name,
	})
	mm.fillLocked(ar.Start, opts.Data[:min(uint64(len(opts.Data)), opts.Length)])
	return ar.Start, nil
}

// MUnmap implements the semantics of Linux's munmap(2).
func (mm *MemoryManager) MUnmap(ctx context.Context, addr hostarch.Addr, length uint64) error {
	if !addr.IsPageAligned() {
		return kerr.EINVAL
	}
	if length == 0 {
		return kerr.EINVAL
	}
	la, ok := hostarch.Addr(length).RoundUp()
	if !ok {
		return kerr.EINVAL
	}
	ar, ok := addr.ToRange(uint64(la))
	if !ok {
		return kerr.EINVAL
	}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()
	mm.unmapLocked(ar)
	return nil
}

// MProtect implements the semantics of Linux's mprotect(2).
func (mm *MemoryManager) MProtect(ctx context.Context, addr hostarch.Addr, length uint64, realPerms hostarch.AccessType) error {
	if !addr.IsPageAligned() {
		return kerr.EINVAL
	}
	if length == 0 {
		return nil
	}
	rlength, ok := hostarch.Addr(length).RoundUp()
	if !ok {
		return kerr.ENOMEM
	}
	ar, ok := addr.ToRange(uint64(rlength))
	if !ok {
		return kerr.ENOMEM
	}
	effectivePerms := realPerms.Effective()

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()

	// All of ar must be mapped. Check before splitting anything, so that a
	// failed mprotect leaves the address space untouched.
	vs := mm.overlappingLocked(ar)
	next := ar.Start
	for _, v := range vs {
		if v.ar.Start > next {
			return kerr.ENOMEM
		}
		if !v.maxPerms.SupersetOf(effectivePerms) {
			return kerr.EACCES
		}
		next = v.ar.End
	}
	if next < ar.End {
		return kerr.ENOMEM
	}

	for _, v := range vs {
		v = mm.isolateLocked(v, ar)
		v.realPerms = realPerms
		v.effectivePerms = effectivePerms
	}
	return nil
}

// MRemapOpts specifies options to MRemap.
type MRemapOpts struct {
	// Move controls whether MRemap moves the remapped mapping to a new address.
	Move MRemapMoveMode

	// NewAddr is the new address for the remapping. NewAddr is a hint
	// unless Move is MRemapMustMove.
	NewAddr hostarch.Addr

	// NoReplace makes MRemapMustMove fail with EEXIST instead of replacing
	// existing mappings at NewAddr.
	NoReplace bool
}

// MRemapMoveMode controls MRemap's moving behavior.
type MRemapMoveMode int

const (
	// MRemapNoMove prevents MRemap from moving the remapped mapping.
	MRemapNoMove MRemapMoveMode = iota

	// MRemapMayMove allows MRemap to move the remapped mapping.
	MRemapMayMove

	// MRemapMustMove requires MRemap to move the remapped mapping to
	// MRemapOpts.NewAddr, replacing any existing mappings in the remapped
	// range.
	MRemapMustMove
)

// MRemap implements the semantics of Linux's mremap(2), restricted to
// ranges that lie within a single mapping.
func (mm *MemoryManager) MRemap(ctx context.Context, oldAddr hostarch.Addr, oldSize uint64, newSize uint64, opts MRemapOpts) (hostarch.Addr, error) {
	// "Note that old_address has to be page aligned." - mremap(2)
	if !oldAddr.IsPageAligned() {
		return 0, kerr.EINVAL
	}

	// Linux treats an old_size that rounds up to 0 as referring to no
	// mapping. We only support moving existing mappings.
	oldSizeAddr, ok := hostarch.Addr(oldSize).RoundUp()
	if !ok || oldSizeAddr == 0 {
		return 0, kerr.EINVAL
	}
	oldSize = uint64(oldSizeAddr)
	newSizeAddr, ok := hostarch.Addr(newSize).RoundUp()
	if !ok || newSizeAddr == 0 {
		return 0, kerr.EINVAL
	}
	newSize = uint64(newSizeAddr)

	oldEnd, ok := oldAddr.AddLength(oldSize)
	if !ok {
		return 0, kerr.EINVAL
	}
	oldAR := hostarch.AddrRange{Start: oldAddr, End: oldEnd}

	mm.mappingMu.Lock()
	defer mm.mappingMu.Unlock()

	v := mm.findLocked(oldAddr)
	if v == nil || !v.ar.IsSupersetOf(oldAR) {
		return 0, kerr.EFAULT
	}

	if opts.Move != MRemapMustMove {
		// Shrinking never needs to move.
		if newSize <= oldSize {
			if newSize < oldSize {
				mm.unmapLocked(hostarch.AddrRange{Start: oldAddr + hostarch.Addr(newSize), End: oldEnd})
			}
			return oldAddr, nil
		}

		// Try to grow in place.
		if newEnd, ok := oldAddr.AddLength(newSize); ok && newEnd <= hostarch.MaxUserAddress {
			growAR := hostarch.AddrRange{Start: oldEnd, End: newEnd}
			if mm.isFreeLocked(growAR) {
				if mm.usageAS+newSize-oldSize > mm.limitAS {
					return 0, kerr.ENOMEM
				}
				v = mm.isolateLocked(v, oldAR)
				v.ar.End = newEnd
				mm.usageAS += newSize - oldSize
				return oldAddr, nil
			}
		}
		if opts.Move == MRemapNoMove {
			return 0, kerr.ENOMEM
		}
	}

	// Moving.
	var newAR hostarch.AddrRange
	if opts.Move == MRemapMustMove {
		if !opts.NewAddr.IsPageAligned() {
			return 0, kerr.EINVAL
		}
		newAR, ok = opts.NewAddr.ToRange(newSize)
		if !ok || newAR.End > hostarch.MaxUserAddress {
			return 0, kerr.EINVAL
		}
		// "If new_address overlaps old_address, the behavior is undefined";
		// Linux fails with EINVAL.
		if newAR.Overlaps(oldAR) {
			return 0, kerr.EINVAL
		}
		if opts.NoReplace && !mm.isFreeLocked(newAR) {
			return 0, kerr.EEXIST
		}
	} else {
		addr, err := mm.findAvailableLocked(newSize, opts.NewAddr)
		if err != nil {
			return 0, err
		}
		newAR, _ = addr.ToRange(newSize)
	}

	replaced := uint64(0)
	if opts.Move == MRemapMustMove {
		replaced = mm.mappedLengthLocked(newAR)
	}
	if mm.usageAS-oldSize-replaced+newSize > mm.limitAS {
		return 0, kerr.ENOMEM
	}

	v = mm.isolateLocked(v, oldAR)
	moved := *v
	moved.ar = newAR

	mm.vmas.Delete(v)
	mm.usageAS -= oldSize
	mm.unmapLocked(newAR)
	mm.movePagesLocked(oldAR, newAR)
	mm.insertLocked(&moved)
	return newAR.Start, nil
}
