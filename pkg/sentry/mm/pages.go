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
	"kestrel.dev/kestrel/pkg/hostarch"
)

// page is one page of backing memory. Pages are allocated on first write and
// keyed by the user address they back.
type page struct {
	addr hostarch.Addr
	data *[hostarch.PageSize]byte
}

func pageLess(a, b *page) bool {
	return a.addr < b.addr
}

// zeroPage backs reads of pages that were never written. It is never
// written.
var zeroPage [hostarch.PageSize]byte

// pageFor returns the backing page containing addr. If the page was never
// written, pageFor allocates it when alloc is true and returns nil
// otherwise.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) pageFor(addr hostarch.Addr, alloc bool) *[hostarch.PageSize]byte {
	key := &page{addr: addr.RoundDown()}
	mm.pagesMu.Lock()
	defer mm.pagesMu.Unlock()
	if p, ok := mm.pages.Get(key); ok {
		return p.data
	}
	if !alloc {
		return nil
	}
	key.data = new([hostarch.PageSize]byte)
	mm.pages.ReplaceOrInsert(key)
	return key.data
}

// pagesInLocked returns the allocated pages in ar, in ascending order.
//
// Preconditions: mm.mappingMu and mm.pagesMu must be locked.
func (mm *MemoryManager) pagesInLocked(ar hostarch.AddrRange) []*page {
	var ps []*page
	mm.pages.AscendRange(&page{addr: ar.Start}, &page{addr: ar.End}, func(p *page) bool {
		ps = append(ps, p)
		return true
	})
	return ps
}

// dropPagesLocked frees the backing pages in ar.
//
// Preconditions: mm.mappingMu must be locked for writing.
func (mm *MemoryManager) dropPagesLocked(ar hostarch.AddrRange) {
	mm.pagesMu.Lock()
	defer mm.pagesMu.Unlock()
	for _, p := range mm.pagesInLocked(ar) {
		mm.pages.Delete(p)
	}
}

// movePagesLocked moves the backing pages of from so that they back the
// same offsets in to. Pages past the end of to are freed.
//
// Preconditions:
//   - mm.mappingMu must be locked for writing.
//   - to holds no allocated pages.
func (mm *MemoryManager) movePagesLocked(from, to hostarch.AddrRange) {
	mm.pagesMu.Lock()
	defer mm.pagesMu.Unlock()
	ps := mm.pagesInLocked(from)
	for _, p := range ps {
		mm.pages.Delete(p)
	}
	for _, p := range ps {
		off := uint64(p.addr - from.Start)
		if off >= uint64(to.Length()) {
			continue
		}
		p.addr = to.Start + hostarch.Addr(off)
		mm.pages.ReplaceOrInsert(p)
	}
}

// fillLocked copies data into the pages starting at addr.
//
// Preconditions:
//   - mm.mappingMu must be locked for writing.
//   - addr is page-aligned.
func (mm *MemoryManager) fillLocked(addr hostarch.Addr, data []byte) {
	for len(data) > 0 {
		n := copy(mm.pageFor(addr, true)[:], data)
		data = data[n:]
		addr += hostarch.PageSize
	}
}

// ResidentSize returns the number of bytes of backing memory allocated for
// mm.
func (mm *MemoryManager) ResidentSize() uint64 {
	mm.pagesMu.Lock()
	defer mm.pagesMu.Unlock()
	return uint64(mm.pages.Len()) * hostarch.PageSize
}
