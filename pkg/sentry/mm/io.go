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
	"kestrel.dev/kestrel/pkg/usermem"
)

// There are two supported ways to copy data to/from application virtual
// memory:
//
// 1. Through a usermem region (usermem.NewReadRegion and friends), which
// validates the range once and then calls the IO methods below.
//
// 2. Directly through the IO methods, for kernel-internal callers that have
// already validated the range.
//
// Either way, every access checks that the pages are mapped with the
// required permissions and fails with EFAULT otherwise.

// checkPerms returns EFAULT if v does not permit at.
func checkPerms(v *vma, at hostarch.AccessType, opts usermem.IOOpts) error {
	if opts.IgnorePermissions {
		return nil
	}
	if !v.effectivePerms.SupersetOf(at) {
		return kerr.EFAULT
	}
	return nil
}

// withMappings calls f for each piece of [addr, addr+length) that lies in a
// single page, passing the offset into the transfer, the piece length and
// the backing bytes. Pages that were never written are allocated if alloc is
// true and passed as nil otherwise. It stops at the first unmapped or
// inaccessible byte with EFAULT.
func (mm *MemoryManager) withMappings(addr hostarch.Addr, length int, at hostarch.AccessType, alloc bool, opts usermem.IOOpts, f func(done, n int, b []byte)) (int, error) {
	if length == 0 {
		return 0, nil
	}
	if length < 0 {
		return 0, kerr.EFAULT
	}
	end, ok := addr.AddLength(uint64(length))
	if !ok {
		return 0, kerr.EFAULT
	}

	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	done := 0
	for cur := addr; cur < end; {
		v := mm.findLocked(cur)
		if v == nil {
			return done, kerr.EFAULT
		}
		if err := checkPerms(v, at, opts); err != nil {
			return done, err
		}
		chunkEnd := min(v.ar.End, end)
		for cur < chunkEnd {
			off := cur.PageOffset()
			n := int(min(uint64(chunkEnd-cur), hostarch.PageSize-off))
			var b []byte
			if p := mm.pageFor(cur, alloc); p != nil {
				b = p[off : off+uint64(n)]
			}
			f(done, n, b)
			done += n
			cur += hostarch.Addr(n)
		}
	}
	return done, nil
}

// CopyOut implements usermem.IO.CopyOut.
func (mm *MemoryManager) CopyOut(ctx context.Context, addr hostarch.Addr, src []byte, opts usermem.IOOpts) (int, error) {
	return mm.withMappings(addr, len(src), hostarch.Write, true, opts, func(done, _ int, b []byte) {
		copy(b, src[done:])
	})
}

// CopyIn implements usermem.IO.CopyIn.
func (mm *MemoryManager) CopyIn(ctx context.Context, addr hostarch.Addr, dst []byte, opts usermem.IOOpts) (int, error) {
	return mm.withMappings(addr, len(dst), hostarch.Read, false, opts, func(done, n int, b []byte) {
		if b == nil {
			clear(dst[done : done+n])
			return
		}
		copy(dst[done:], b)
	})
}

// ZeroOut implements usermem.IO.ZeroOut.
func (mm *MemoryManager) ZeroOut(ctx context.Context, addr hostarch.Addr, toZero int64, opts usermem.IOOpts) (int64, error) {
	if toZero > int64(^uint(0)>>1) {
		return 0, kerr.EINVAL
	}
	n, err := mm.withMappings(addr, int(toZero), hostarch.Write, false, opts, func(_, _ int, b []byte) {
		clear(b)
	})
	return int64(n), err
}

// wordLocked returns the backing bytes of the aligned uint32 at addr.
//
// Preconditions: mm.mappingMu must be locked.
func (mm *MemoryManager) wordLocked(addr hostarch.Addr, at hostarch.AccessType, opts usermem.IOOpts) ([]byte, error) {
	if !addr.IsAligned(4) {
		return nil, kerr.EINVAL
	}
	v := mm.findLocked(addr)
	if v == nil {
		return nil, kerr.EFAULT
	}
	if err := checkPerms(v, at, opts); err != nil {
		return nil, err
	}
	p := mm.pageFor(addr, at.Write)
	if p == nil {
		p = &zeroPage
	}
	off := addr.PageOffset()
	return p[off : off+4], nil
}
