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
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/hostarch"
)

// findLocked returns the vma containing addr, or nil.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) findLocked(addr hostarch.Addr) *vma {
	var found *vma
	mm.vmas.DescendLessOrEqual(&vma{ar: hostarch.AddrRange{Start: addr}}, func(v *vma) bool {
		if v.ar.Contains(addr) {
			found = v
		}
		return false
	})
	return found
}

// overlappingLocked returns the vmas that overlap ar, in ascending order.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) overlappingLocked(ar hostarch.AddrRange) []*vma {
	var vs []*vma
	if v := mm.findLocked(ar.Start); v != nil {
		vs = append(vs, v)
	}
	mm.vmas.AscendGreaterOrEqual(&vma{ar: hostarch.AddrRange{Start: ar.Start + 1}}, func(v *vma) bool {
		if v.ar.Start >= ar.End {
			return false
		}
		vs = append(vs, v)
		return true
	})
	return vs
}

// splitLocked splits v at addr and returns the upper half. v keeps the lower
// half.
//
// Preconditions:
//   - mm.mappingMu must be locked for writing.
//   - v.ar.CanSplitAt(addr).
func (mm *MemoryManager) splitLocked(v *vma, addr hostarch.Addr) *vma {
	upper := *v
	upper.ar.Start = addr
	v.ar.End = addr
	mm.vmas.ReplaceOrInsert(&upper)
	return &upper
}

// isolateLocked splits v so that the returned vma covers exactly
// v.ar.Intersect(ar).
//
// Preconditions: mm.mappingMu must be locked for writing.
func (mm *MemoryManager) isolateLocked(v *vma, ar hostarch.AddrRange) *vma {
	if v.ar.CanSplitAt(ar.Start) {
		v = mm.splitLocked(v, ar.Start)
	}
	if v.ar.CanSplitAt(ar.End) {
		mm.splitLocked(v, ar.End)
	}
	return v
}

// unmapLocked removes all mappings in ar.
//
// Preconditions: mm.mappingMu must be locked for writing.
func (mm *MemoryManager) unmapLocked(ar hostarch.AddrRange) {
	for _, v := range mm.overlappingLocked(ar) {
		v = mm.isolateLocked(v, ar)
		mm.vmas.Delete(v)
		mm.usageAS -= uint64(v.ar.Length())
		mm.dropPagesLocked(v.ar)
	}
}

// mappedLengthLocked returns the number of bytes in ar covered by vmas.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) mappedLengthLocked(ar hostarch.AddrRange) uint64 {
	var n uint64
	for _, v := range mm.overlappingLocked(ar) {
		n += uint64(v.ar.Intersect(ar).Length())
	}
	return n
}

// insertLocked adds v to the tree.
//
// Preconditions:
//   - mm.mappingMu must be locked for writing.
//   - v does not overlap any existing vma.
func (mm *MemoryManager) insertLocked(v *vma) {
	mm.vmas.ReplaceOrInsert(v)
	mm.usageAS += uint64(v.ar.Length())
}

// isFreeLocked returns true if no vma overlaps ar.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) isFreeLocked(ar hostarch.AddrRange) bool {
	return len(mm.overlappingLocked(ar)) == 0
}

// findAvailableLocked returns an unmapped page-aligned range of the given
// length. If hint is non-zero and the range at hint is free, it is used.
//
// Preconditions:
//   - mm.mappingMu must be locked.
//   - length is page-aligned and non-zero.
func (mm *MemoryManager) findAvailableLocked(length uint64, hint hostarch.Addr) (hostarch.Addr, error) {
	if hint != 0 {
		if ar, ok := hint.RoundDown().ToRange(length); ok && ar.End <= hostarch.MaxUserAddress && mm.isFreeLocked(ar) {
			return ar.Start, nil
		}
	}

	start := mm.mmapBase
	if v := mm.findLocked(start); v != nil {
		start = v.ar.End
	}
	var found bool
	mm.vmas.AscendGreaterOrEqual(&vma{ar: hostarch.AddrRange{Start: start}}, func(v *vma) bool {
		if uint64(v.ar.Start-start) >= length {
			found = true
			return false
		}
		start = v.ar.End
		return true
	})
	if found {
		return start, nil
	}
	end, ok := start.AddLength(length)
	if !ok || end > hostarch.MaxUserAddress {
		return 0, kerr.ENOMEM
	}
	return start, nil
}
