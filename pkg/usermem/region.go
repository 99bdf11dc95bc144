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

package usermem

import (
	"context"

	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/marshal"
)

// RegionOpts controls how a raw (address, length) pair is validated.
type RegionOpts struct {
	// Align, if non-zero, is the required alignment of the start address.
	// It must be a power of two.
	Align uint64

	// NonEmpty rejects zero-length regions.
	NonEmpty bool

	// IO is passed to every copy made through the region.
	IO IOOpts
}

// region is the direction-agnostic part of every region type.
type region struct {
	uio  IO
	ar   hostarch.AddrRange
	opts IOOpts
}

// validate checks that [addr, addr+length) lies in the user half of the
// address space and satisfies opts. It is the only place raw user
// addresses are inspected.
func validate(uio IO, addr hostarch.Addr, length uint64, opts RegionOpts) (region, error) {
	if opts.NonEmpty && length == 0 {
		return region{}, kerr.EFAULT
	}
	if opts.Align > 1 && !addr.IsAligned(opts.Align) {
		return region{}, kerr.EFAULT
	}
	ar, ok := addr.ToRange(length)
	if !ok || ar.End > hostarch.MaxUserAddress {
		return region{}, kerr.EFAULT
	}
	return region{uio: uio, ar: ar, opts: opts.IO}, nil
}

// Addr returns the start address.
func (r region) Addr() hostarch.Addr {
	return r.ar.Start
}

// Len returns the length of the region in bytes.
func (r region) Len() int {
	return int(r.ar.Length())
}

// Range returns the address range covered by the region.
func (r region) Range() hostarch.AddrRange {
	return r.ar
}

// IsNull returns true if the region starts at address 0.
func (r region) IsNull() bool {
	return r.ar.Start == 0
}

// sub returns the part of r that starts off bytes in and is at most length
// bytes long. The result is clamped to r, so it never needs validation.
func (r region) sub(off, length int) region {
	if off < 0 {
		off = 0
	}
	if off > r.Len() {
		off = r.Len()
	}
	if length < 0 || length > r.Len()-off {
		length = r.Len() - off
	}
	start := r.ar.Start + hostarch.Addr(off)
	return region{uio: r.uio, ar: hostarch.AddrRange{Start: start, End: start + hostarch.Addr(length)}, opts: r.opts}
}

func (r region) copyIn(ctx context.Context, dst []byte) (int, error) {
	if len(dst) > r.Len() {
		dst = dst[:r.Len()]
	}
	if len(dst) == 0 {
		return 0, nil
	}
	return r.uio.CopyIn(ctx, r.ar.Start, dst, r.opts)
}

func (r region) copyOut(ctx context.Context, src []byte) (int, error) {
	if len(src) > r.Len() {
		src = src[:r.Len()]
	}
	if len(src) == 0 {
		return 0, nil
	}
	return r.uio.CopyOut(ctx, r.ar.Start, src, r.opts)
}

// ReadRegion is a validated range of user memory that the kernel may read
// from.
type ReadRegion struct {
	region
}

// NewReadRegion validates [addr, addr+length) for kernel reads.
func NewReadRegion(uio IO, addr hostarch.Addr, length uint64) (ReadRegion, error) {
	return NewReadRegionOpts(uio, addr, length, RegionOpts{})
}

// NewReadRegionAligned is NewReadRegion with an alignment requirement on addr.
func NewReadRegionAligned(uio IO, addr hostarch.Addr, length, align uint64) (ReadRegion, error) {
	return NewReadRegionOpts(uio, addr, length, RegionOpts{Align: align})
}

// NewReadRegionOpts validates [addr, addr+length) for kernel reads under
// opts.
func NewReadRegionOpts(uio IO, addr hostarch.Addr, length uint64, opts RegionOpts) (ReadRegion, error) {
	r, err := validate(uio, addr, length, opts)
	return ReadRegion{r}, err
}

// CopyIn copies min(len(dst), r.Len()) bytes out of the region into dst.
func (r ReadRegion) CopyIn(ctx context.Context, dst []byte) (int, error) {
	return r.copyIn(ctx, dst)
}

// ReadBytes returns a copy of the whole region.
func (r ReadRegion) ReadBytes(ctx context.Context) ([]byte, error) {
	buf := make([]byte, r.Len())
	n, err := r.copyIn(ctx, buf)
	return buf[:n], err
}

// ReadString returns the contents of the region as a string. Paths are
// passed as (pointer, length) and are not NUL-terminated.
func (r ReadRegion) ReadString(ctx context.Context) (string, error) {
	buf, err := r.ReadBytes(ctx)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadObject fills m from the region. The region must be exactly
// m.SizeBytes() long; otherwise ReadObject fails with EINVAL without
// touching user memory.
func (r ReadRegion) ReadObject(ctx context.Context, m marshal.Marshallable) error {
	if r.Len() != m.SizeBytes() {
		return kerr.EINVAL
	}
	buf := make([]byte, r.Len())
	if _, err := r.copyIn(ctx, buf); err != nil {
		return err
	}
	m.UnmarshalBytes(buf)
	return nil
}

// Sub returns the part of the region that starts off bytes in and is at most
// length bytes long. A negative length selects the rest of the region.
func (r ReadRegion) Sub(off, length int) ReadRegion {
	return ReadRegion{r.sub(off, length)}
}

// WriteRegion is a validated range of user memory that the kernel may write
// to.
type WriteRegion struct {
	region
}

// NewWriteRegion validates [addr, addr+length) for kernel writes.
func NewWriteRegion(uio IO, addr hostarch.Addr, length uint64) (WriteRegion, error) {
	return NewWriteRegionOpts(uio, addr, length, RegionOpts{})
}

// NewWriteRegionAligned is NewWriteRegion with an alignment requirement on
// addr.
func NewWriteRegionAligned(uio IO, addr hostarch.Addr, length, align uint64) (WriteRegion, error) {
	return NewWriteRegionOpts(uio, addr, length, RegionOpts{Align: align})
}

// NewWriteRegionOpts validates [addr, addr+length) for kernel writes under
// opts.
func NewWriteRegionOpts(uio IO, addr hostarch.Addr, length uint64, opts RegionOpts) (WriteRegion, error) {
	r, err := validate(uio, addr, length, opts)
	return WriteRegion{r}, err
}

// NoneIfNull returns (r, true) unless r starts at address 0, in which case it
// returns ok == false. It is used for optional output arguments.
func (r WriteRegion) NoneIfNull() (WriteRegion, bool) {
	if r.IsNull() {
		return WriteRegion{}, false
	}
	return r, true
}

// CopyOut copies min(len(src), r.Len()) bytes of src into the region.
func (r WriteRegion) CopyOut(ctx context.Context, src []byte) (int, error) {
	return r.copyOut(ctx, src)
}

// WriteObject stores m in the region. The region must be exactly
// m.SizeBytes() long; otherwise WriteObject fails with EINVAL.
func (r WriteRegion) WriteObject(ctx context.Context, m marshal.Marshallable) error {
	if r.Len() != m.SizeBytes() {
		return kerr.EINVAL
	}
	_, err := r.copyOut(ctx, marshal.Marshal(m))
	return err
}

// ZeroOut zeroes the whole region.
func (r WriteRegion) ZeroOut(ctx context.Context) (int64, error) {
	if r.Len() == 0 {
		return 0, nil
	}
	return r.uio.ZeroOut(ctx, r.ar.Start, int64(r.Len()), r.opts)
}

// Sub returns the part of the region that starts off bytes in and is at most
// length bytes long. A negative length selects the rest of the region.
func (r WriteRegion) Sub(off, length int) WriteRegion {
	return WriteRegion{r.sub(off, length)}
}

// RWRegion is a validated range of user memory that the kernel may both read
// and write.
type RWRegion struct {
	region
}

// NewRWRegion validates [addr, addr+length) for kernel reads and writes.
func NewRWRegion(uio IO, addr hostarch.Addr, length uint64) (RWRegion, error) {
	r, err := validate(uio, addr, length, RegionOpts{})
	return RWRegion{r}, err
}

// Read narrows r to a ReadRegion.
func (r RWRegion) Read() ReadRegion {
	return ReadRegion{r.region}
}

// Write narrows r to a WriteRegion.
func (r RWRegion) Write() WriteRegion {
	return WriteRegion{r.region}
}

// AtomicUint32 is a validated, 4-byte aligned user word used by futex.
type AtomicUint32 struct {
	region
}

// NewAtomicUint32 validates addr as a futex word. Misalignment fails with
// EINVAL rather than EFAULT.
func NewAtomicUint32(uio IO, addr hostarch.Addr) (AtomicUint32, error) {
	if !addr.IsAligned(4) {
		return AtomicUint32{}, kerr.EINVAL
	}
	r, err := validate(uio, addr, 4, RegionOpts{})
	return AtomicUint32{r}, err
}

// Load atomically loads the word.
func (r AtomicUint32) Load(ctx context.Context) (uint32, error) {
	return r.uio.LoadUint32(ctx, r.ar.Start, r.opts)
}

// CompareAndSwap atomically replaces the word with new if it equals old, and
// returns the previous value.
func (r AtomicUint32) CompareAndSwap(ctx context.Context, old, new uint32) (uint32, error) {
	return r.uio.CompareAndSwapUint32(ctx, r.ar.Start, old, new, r.opts)
}
