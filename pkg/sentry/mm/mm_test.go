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
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/usermem"
)

func mustMMap(t *testing.T, mm *MemoryManager, opts MMapOpts) hostarch.Addr {
	t.Helper()
	addr, err := mm.MMap(context.Background(), opts)
	if err != nil {
		t.Fatalf("MMap(%+v) failed: %v", opts, err)
	}
	return addr
}

func ranges(mm *MemoryManager) []hostarch.AddrRange {
	var ars []hostarch.AddrRange
	for _, m := range mm.Mappings() {
		ars = append(ars, m.Range)
	}
	return ars
}

func TestMMapPlacement(t *testing.T) {
	mm := NewMemoryManager()
	a := mustMMap(t, mm, MMapOpts{Length: 1, Perms: hostarch.ReadWrite})
	b := mustMMap(t, mm, MMapOpts{Length: 2 * hostarch.PageSize, Perms: hostarch.ReadWrite})
	if a != DefaultMmapBase {
		t.Errorf("first mapping at %v, want %v", a, DefaultMmapBase)
	}
	if b != a+hostarch.PageSize {
		t.Errorf("second mapping at %v, want %v", b, a+hostarch.PageSize)
	}
	if got, want := mm.VirtualMemorySize(), uint64(3*hostarch.PageSize); got != want {
		t.Errorf("VirtualMemorySize() = %d, want %d", got, want)
	}
}

func TestMMapFixed(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	const at = hostarch.Addr(0x400000)
	mustMMap(t, mm, MMapOpts{Length: 4 * hostarch.PageSize, Addr: at, Fixed: true, Perms: hostarch.ReadWrite})

	if _, err := mm.MMap(ctx, MMapOpts{Length: hostarch.PageSize, Addr: at + 1, Fixed: true, Perms: hostarch.Read}); err != kerr.EINVAL {
		t.Errorf("unaligned fixed MMap: got %v, want EINVAL", err)
	}
	if _, err := mm.MMap(ctx, MMapOpts{Length: hostarch.PageSize, Addr: at + hostarch.PageSize, Fixed: true, NoReplace: true, Perms: hostarch.Read}); err != kerr.EEXIST {
		t.Errorf("fixed noreplace MMap over mapping: got %v, want EEXIST", err)
	}

	// Replace the second page.
	mustMMap(t, mm, MMapOpts{Length: hostarch.PageSize, Addr: at + hostarch.PageSize, Fixed: true, Perms: hostarch.Read})
	want := []hostarch.AddrRange{
		{Start: at, End: at + hostarch.PageSize},
		{Start: at + hostarch.PageSize, End: at + 2*hostarch.PageSize},
		{Start: at + 2*hostarch.PageSize, End: at + 4*hostarch.PageSize},
	}
	if diff := cmp.Diff(want, ranges(mm)); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

func TestCopyAcrossMappings(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	const at = hostarch.Addr(0x10000)
	mustMMap(t, mm, MMapOpts{Length: hostarch.PageSize, Addr: at, Fixed: true, Perms: hostarch.ReadWrite})
	mustMMap(t, mm, MMapOpts{Length: hostarch.PageSize, Addr: at + hostarch.PageSize, Fixed: true, Perms: hostarch.ReadWrite})

	src := bytes.Repeat([]byte{0xab}, 64)
	addr := at + hostarch.PageSize - 32
	if n, err := mm.CopyOut(ctx, addr, src, usermem.IOOpts{}); n != len(src) || err != nil {
		t.Fatalf("CopyOut = (%d, %v), want (%d, nil)", n, err, len(src))
	}
	dst := make([]byte, len(src))
	if n, err := mm.CopyIn(ctx, addr, dst, usermem.IOOpts{}); n != len(dst) || err != nil {
		t.Fatalf("CopyIn = (%d, %v), want (%d, nil)", n, err, len(dst))
	}
	if !bytes.Equal(src, dst) {
		t.Errorf("CopyIn got %x, want %x", dst, src)
	}
}

func TestCopyFaults(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	const at = hostarch.Addr(0x10000)
	mustMMap(t, mm, MMapOpts{Length: hostarch.PageSize, Addr: at, Fixed: true, Perms: hostarch.Read})

	// Unmapped.
	if _, err := mm.CopyIn(ctx, 0x1000, make([]byte, 4), usermem.IOOpts{}); err != kerr.EFAULT {
		t.Errorf("CopyIn from unmapped: got %v, want EFAULT", err)
	}
	// Read-only.
	if _, err := mm.CopyOut(ctx, at, []byte{1}, usermem.IOOpts{}); err != kerr.EFAULT {
		t.Errorf("CopyOut to read-only: got %v, want EFAULT", err)
	}
	if _, err := mm.CopyOut(ctx, at, []byte{1}, usermem.IOOpts{IgnorePermissions: true}); err != nil {
		t.Errorf("CopyOut ignoring permissions: got %v, want nil", err)
	}
	// Partial.
	n, err := mm.CopyIn(ctx, at+hostarch.PageSize-2, make([]byte, 4), usermem.IOOpts{})
	if n != 2 || err != kerr.EFAULT {
		t.Errorf("CopyIn past end = (%d, %v), want (2, EFAULT)", n, err)
	}
}

func TestMProtect(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	const at = hostarch.Addr(0x10000)
	mustMMap(t, mm, MMapOpts{Length: 3 * hostarch.PageSize, Addr: at, Fixed: true, Perms: hostarch.ReadWrite})

	if err := mm.MProtect(ctx, at+hostarch.PageSize, hostarch.PageSize, hostarch.Read); err != nil {
		t.Fatalf("MProtect failed: %v", err)
	}
	ms := mm.Mappings()
	if len(ms) != 3 {
		t.Fatalf("got %d mappings after split, want 3", len(ms))
	}
	if ms[1].Perms != hostarch.Read {
		t.Errorf("middle perms = %v, want %v", ms[1].Perms, hostarch.Read)
	}
	if _, err := mm.CopyOut(ctx, at+hostarch.PageSize, []byte{1}, usermem.IOOpts{}); err != kerr.EFAULT {
		t.Errorf("write to protected page: got %v, want EFAULT", err)
	}
	if _, err := mm.CopyOut(ctx, at, []byte{1}, usermem.IOOpts{}); err != nil {
		t.Errorf("write to writable page: got %v, want nil", err)
	}

	// A hole makes the whole call fail without changes.
	if err := mm.MProtect(ctx, at, 8*hostarch.PageSize, hostarch.NoAccess); err != kerr.ENOMEM {
		t.Errorf("MProtect over hole: got %v, want ENOMEM", err)
	}
	if got := mm.Mappings()[0].Perms; got != hostarch.ReadWrite {
		t.Errorf("perms after failed MProtect = %v, want %v", got, hostarch.ReadWrite)
	}
}

func TestMUnmapSplits(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	const at = hostarch.Addr(0x10000)
	mustMMap(t, mm, MMapOpts{Length: 3 * hostarch.PageSize, Addr: at, Fixed: true, Perms: hostarch.ReadWrite, Data: []byte("abc")})

	if err := mm.MUnmap(ctx, at+1, hostarch.PageSize); err != kerr.EINVAL {
		t.Errorf("unaligned MUnmap: got %v, want EINVAL", err)
	}
	if err := mm.MUnmap(ctx, at+hostarch.PageSize, hostarch.PageSize); err != nil {
		t.Fatalf("MUnmap failed: %v", err)
	}
	want := []hostarch.AddrRange{
		{Start: at, End: at + hostarch.PageSize},
		{Start: at + 2*hostarch.PageSize, End: at + 3*hostarch.PageSize},
	}
	if diff := cmp.Diff(want, ranges(mm)); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
	buf := make([]byte, 3)
	if _, err := mm.CopyIn(ctx, at, buf, usermem.IOOpts{}); err != nil || string(buf) != "abc" {
		t.Errorf("CopyIn after split = (%q, %v), want (\"abc\", nil)", buf, err)
	}
}

func TestMRemap(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	const at = hostarch.Addr(0x10000)
	mustMMap(t, mm, MMapOpts{Length: hostarch.PageSize, Addr: at, Fixed: true, Perms: hostarch.ReadWrite, Data: []byte("data")})
	mustMMap(t, mm, MMapOpts{Length: hostarch.PageSize, Addr: at + 2*hostarch.PageSize, Fixed: true, Perms: hostarch.ReadWrite})

	// Grow in place into the free page.
	addr, err := mm.MRemap(ctx, at, hostarch.PageSize, 2*hostarch.PageSize, MRemapOpts{Move: MRemapNoMove})
	if err != nil || addr != at {
		t.Fatalf("MRemap grow in place = (%v, %v), want (%v, nil)", addr, err, at)
	}
	// Growing further collides and may not move.
	if _, err := mm.MRemap(ctx, at, 2*hostarch.PageSize, 3*hostarch.PageSize, MRemapOpts{Move: MRemapNoMove}); err != kerr.ENOMEM {
		t.Errorf("MRemap NoMove into mapping: got %v, want ENOMEM", err)
	}
	// Must move.
	const dest = hostarch.Addr(0x100000)
	addr, err = mm.MRemap(ctx, at, 2*hostarch.PageSize, 2*hostarch.PageSize, MRemapOpts{Move: MRemapMustMove, NewAddr: dest})
	if err != nil || addr != dest {
		t.Fatalf("MRemap must move = (%v, %v), want (%v, nil)", addr, err, dest)
	}
	buf := make([]byte, 4)
	if _, err := mm.CopyIn(ctx, dest, buf, usermem.IOOpts{}); err != nil || string(buf) != "data" {
		t.Errorf("contents after move = (%q, %v), want (\"data\", nil)", buf, err)
	}
	if _, err := mm.CopyIn(ctx, at, buf, usermem.IOOpts{}); err != kerr.EFAULT {
		t.Errorf("old range after move: got %v, want EFAULT", err)
	}
	if _, err := mm.MRemap(ctx, 0x7000_0000, hostarch.PageSize, hostarch.PageSize, MRemapOpts{}); err != kerr.EFAULT {
		t.Errorf("MRemap of unmapped range: got %v, want EFAULT", err)
	}
}

func TestAtomics(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	addr := mustMMap(t, mm, MMapOpts{Length: hostarch.PageSize, Perms: hostarch.ReadWrite})
	if _, err := mm.LoadUint32(ctx, addr+2, usermem.IOOpts{}); err != kerr.EINVAL {
		t.Errorf("misaligned LoadUint32: got %v, want EINVAL", err)
	}
	if prev, err := mm.CompareAndSwapUint32(ctx, addr, 0, 7, usermem.IOOpts{}); prev != 0 || err != nil {
		t.Errorf("CompareAndSwapUint32 = (%d, %v), want (0, nil)", prev, err)
	}
	if v, err := mm.LoadUint32(ctx, addr, usermem.IOOpts{}); v != 7 || err != nil {
		t.Errorf("LoadUint32 = (%d, %v), want (7, nil)", v, err)
	}
	if prev, err := mm.SwapUint32(ctx, addr, 9, usermem.IOOpts{}); prev != 7 || err != nil {
		t.Errorf("SwapUint32 = (%d, %v), want (7, nil)", prev, err)
	}
}

func TestRegionsOverMemoryManager(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	addr := mustMMap(t, mm, MMapOpts{Length: hostarch.PageSize, Perms: hostarch.ReadWrite})
	w, err := usermem.NewWriteRegion(mm, addr, 5)
	if err != nil {
		t.Fatalf("NewWriteRegion failed: %v", err)
	}
	if _, err := w.CopyOut(ctx, []byte("hello")); err != nil {
		t.Fatalf("CopyOut failed: %v", err)
	}
	r, err := usermem.NewReadRegion(mm, addr, 5)
	if err != nil {
		t.Fatalf("NewReadRegion failed: %v", err)
	}
	if s, err := r.ReadString(ctx); err != nil || s != "hello" {
		t.Errorf("ReadString = (%q, %v), want (\"hello\", nil)", s, err)
	}
}

func TestAddressSpaceLimit(t *testing.T) {
	mm := NewMemoryManagerLimit(4 * hostarch.PageSize)
	ctx := context.Background()
	if _, err := mm.MMap(ctx, MMapOpts{Length: 1 << 45, Perms: hostarch.ReadWrite, Private: true}); err != kerr.ENOMEM {
		t.Errorf("MMap past limit: got %v, want ENOMEM", err)
	}
	addr := mustMMap(t, mm, MMapOpts{Length: 3 * hostarch.PageSize, Perms: hostarch.ReadWrite})
	if _, err := mm.MMap(ctx, MMapOpts{Length: 2 * hostarch.PageSize, Perms: hostarch.ReadWrite}); err != kerr.ENOMEM {
		t.Errorf("second MMap past limit: got %v, want ENOMEM", err)
	}
	// Replacing existing mappings only counts the growth.
	mustMMap(t, mm, MMapOpts{Length: 4 * hostarch.PageSize, Addr: addr, Fixed: true, Perms: hostarch.Read})
	if got, want := mm.VirtualMemorySize(), uint64(4*hostarch.PageSize); got != want {
		t.Errorf("VirtualMemorySize() = %d, want %d", got, want)
	}
	if _, err := mm.MRemap(ctx, addr, 4*hostarch.PageSize, 5*hostarch.PageSize, MRemapOpts{Move: MRemapMayMove}); err != kerr.ENOMEM {
		t.Errorf("MRemap past limit: got %v, want ENOMEM", err)
	}
	if _, err := mm.MRemap(ctx, addr, 4*hostarch.PageSize, 2*hostarch.PageSize, MRemapOpts{}); err != nil {
		t.Errorf("MRemap shrink: got %v, want nil", err)
	}
}

func TestSparseBacking(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	const length = 1 << 32
	addr := mustMMap(t, mm, MMapOpts{Length: length, Perms: hostarch.ReadWrite, Private: true})
	if got := mm.ResidentSize(); got != 0 {
		t.Errorf("ResidentSize() after MMap = %d, want 0", got)
	}

	last := addr + length - 8
	if _, err := mm.CopyOut(ctx, last, []byte("lastpage"), usermem.IOOpts{}); err != nil {
		t.Fatalf("CopyOut to last page failed: %v", err)
	}
	if got, want := mm.ResidentSize(), uint64(hostarch.PageSize); got != want {
		t.Errorf("ResidentSize() after one write = %d, want %d", got, want)
	}

	// Reads and zeroing of untouched pages don't allocate.
	buf := bytes.Repeat([]byte{0xff}, 16)
	if _, err := mm.CopyIn(ctx, addr+hostarch.PageSize-8, buf, usermem.IOOpts{}); err != nil {
		t.Fatalf("CopyIn failed: %v", err)
	}
	if !bytes.Equal(buf, make([]byte, 16)) {
		t.Errorf("untouched memory = %x, want zeros", buf)
	}
	if _, err := mm.ZeroOut(ctx, addr, 1<<20, usermem.IOOpts{}); err != nil {
		t.Fatalf("ZeroOut failed: %v", err)
	}
	if v, err := mm.LoadUint32(ctx, addr, usermem.IOOpts{}); v != 0 || err != nil {
		t.Errorf("LoadUint32 = (%d, %v), want (0, nil)", v, err)
	}
	if got, want := mm.ResidentSize(), uint64(hostarch.PageSize); got != want {
		t.Errorf("ResidentSize() after reads = %d, want %d", got, want)
	}

	got := make([]byte, 8)
	if _, err := mm.CopyIn(ctx, last, got, usermem.IOOpts{}); err != nil || string(got) != "lastpage" {
		t.Errorf("CopyIn = (%q, %v), want (\"lastpage\", nil)", got, err)
	}

	if err := mm.MUnmap(ctx, addr, length); err != nil {
		t.Fatalf("MUnmap failed: %v", err)
	}
	if got := mm.ResidentSize(); got != 0 {
		t.Errorf("ResidentSize() after MUnmap = %d, want 0", got)
	}
}

func TestMRemapMovesPages(t *testing.T) {
	mm := NewMemoryManager()
	ctx := context.Background()
	const at = hostarch.Addr(0x10000)
	mustMMap(t, mm, MMapOpts{Length: 2 * hostarch.PageSize, Addr: at, Fixed: true, Perms: hostarch.ReadWrite})
	if _, err := mm.CopyOut(ctx, at+hostarch.PageSize, []byte("second"), usermem.IOOpts{}); err != nil {
		t.Fatalf("CopyOut failed: %v", err)
	}

	// Shrinking while moving frees the pages that no longer fit.
	const dest = hostarch.Addr(0x200000)
	if _, err := mm.MRemap(ctx, at, 2*hostarch.PageSize, 2*hostarch.PageSize, MRemapOpts{Move: MRemapMustMove, NewAddr: dest}); err != nil {
		t.Fatalf("MRemap failed: %v", err)
	}
	buf := make([]byte, 6)
	if _, err := mm.CopyIn(ctx, dest+hostarch.PageSize, buf, usermem.IOOpts{}); err != nil || string(buf) != "second" {
		t.Errorf("contents after move = (%q, %v), want (\"second\", nil)", buf, err)
	}
	if _, err := mm.MRemap(ctx, dest, 2*hostarch.PageSize, hostarch.PageSize, MRemapOpts{Move: MRemapMustMove, NewAddr: at}); err != nil {
		t.Fatalf("MRemap shrink and move failed: %v", err)
	}
	if got := mm.ResidentSize(); got != 0 {
		t.Errorf("ResidentSize() = %d, want 0", got)
	}
}
