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

// Package mm provides a memory management subsystem.
//
// Lock order:
//
//	mappingMu
//		pagesMu
//			page contents (unsynchronized; user memory)
package mm

import (
	"sync"

	"github.com/google/btree"

	"kestrel.dev/kestrel/pkg/hostarch"
)

const (
	// DefaultMmapBase is the lowest address at which non-fixed mappings are
	// placed.
	DefaultMmapBase hostarch.Addr = 0x0000_1000_0000

	// DefaultAddressSpaceLimit is the default limit on the combined length
	// of all mappings in a MemoryManager.
	DefaultAddressSpaceLimit = 1 << 36

	// btreeDegree is the degree of the vma and page trees.
	btreeDegree = 8
)

// MemoryManager implements a virtual address space.
type MemoryManager struct {
	// mmapBase is the lowest address considered by non-fixed mappings.
	// mmapBase is immutable.
	mmapBase hostarch.Addr

	// mappingMu is analogous to Linux's struct mm_struct::mmap_sem.
	mappingMu sync.RWMutex

	// vmas stores virtual memory areas, ordered by start address. vmas never
	// overlap.
	//
	// vmas is protected by mappingMu.
	vmas *btree.BTreeG[*vma]

	// usageAS is the total length of vmas.
	//
	// usageAS is protected by mappingMu.
	usageAS uint64

	// limitAS bounds usageAS. MMap and MRemap fail with ENOMEM rather than
	// exceed it. limitAS is immutable.
	limitAS uint64

	pagesMu sync.Mutex

	// pages holds the backing memory that has been written, ordered by
	// address. Every page lies inside a vma.
	//
	// pages is protected by pagesMu.
	pages *btree.BTreeG[*page]
}

// vma represents a virtual memory area.
type vma struct {
	// ar is the range covered by the vma. ar is page-aligned.
	ar hostarch.AddrRange

	// realPerms are the memory permissions on this vma, as defined by the
	// application.
	realPerms hostarch.AccessType

	// effectivePerms are the memory permissions on this vma which are
	// actually used to control access.
	//
	// Invariant: effectivePerms == realPerms.Effective().
	effectivePerms hostarch.AccessType

	// maxPerms limits the set of permissions that may ever apply to this
	// vma.
	maxPerms hostarch.AccessType

	// private is true if this is a MAP_PRIVATE mapping.
	private bool

	// name is the source of the mapping, reported by Mappings.
	name string
}

func vmaLess(a, b *vma) bool {
	return a.ar.Start < b.ar.Start
}

// NewMemoryManager returns a new MemoryManager with no mappings and the
// default address space limit.
func NewMemoryManager() *MemoryManager {
	return NewMemoryManagerLimit(DefaultAddressSpaceLimit)
}

// NewMemoryManagerLimit returns a new MemoryManager whose mappings may not
// exceed limit bytes in total.
func NewMemoryManagerLimit(limit uint64) *MemoryManager {
	return &MemoryManager{
		mmapBase: DefaultMmapBase,
		limitAS:  limit,
		vmas:     btree.NewG[*vma](btreeDegree, vmaLess),
		pages:    btree.NewG[*page](btreeDegree, pageLess),
	}
}

// Mapping describes one vma.
type Mapping struct {
	Range   hostarch.AddrRange
	Perms   hostarch.AccessType
	Private bool
	Name    string
}

// Mappings returns all mappings in ascending address order.
func (mm *MemoryManager) Mappings() []Mapping {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	ms := make([]Mapping, 0, mm.vmas.Len())
	mm.vmas.Ascend(func(v *vma) bool {
		ms = append(ms, Mapping{
			Range:   v.ar,
			Perms:   v.realPerms,
			Private: v.private,
			Name:    v.name,
		})
		return true
	})
	return ms
}

// VirtualMemorySize returns the combined length in bytes of all mappings in
// mm.
func (mm *MemoryManager) VirtualMemorySize() uint64 {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	return mm.usageAS
}
