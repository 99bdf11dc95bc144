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
	"bytes"
	"testing"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/hostarch"
)

func TestRegionOutOfUserSpace(t *testing.T) {
	b := newBytesIOString("")
	for _, test := range []struct {
		name   string
		addr   hostarch.Addr
		length uint64
	}{
		{"kernel start", hostarch.MaxUserAddress, 1},
		{"straddles boundary", hostarch.MaxUserAddress - 8, 16},
		{"kernel address", ^hostarch.Addr(0) - 0xfff, 8},
		{"wraps", ^hostarch.Addr(0) - 1, 4},
		{"huge length", 0x1000, ^uint64(0)},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := NewReadRegion(b, test.addr, test.length); err != kerr.EFAULT {
				t.Errorf("NewReadRegion: got %v, wanted %v", err, kerr.EFAULT)
			}
			if _, err := NewWriteRegion(b, test.addr, test.length); err != kerr.EFAULT {
				t.Errorf("NewWriteRegion: got %v, wanted %v", err, kerr.EFAULT)
			}
			if _, err := NewRWRegion(b, test.addr, test.length); err != kerr.EFAULT {
				t.Errorf("NewRWRegion: got %v, wanted %v", err, kerr.EFAULT)
			}
		})
	}
}

func TestRegionRoundTrip(t *testing.T) {
	ctx := newContext()
	b := &BytesIO{make([]byte, 64)}
	for _, test := range []struct {
		addr  hostarch.Addr
		data  string
		align uint64
	}{
		{0, "hello", 1},
		{8, "aligned", 8},
		{16, "sixteen bytes!!!", 16},
		{60, "end!", 4},
	} {
		w, err := NewWriteRegionAligned(b, test.addr, uint64(len(test.data)), test.align)
		if err != nil {
			t.Fatalf("NewWriteRegionAligned(%v, %d): %v", test.addr, len(test.data), err)
		}
		if n, err := w.CopyOut(ctx, []byte(test.data)); n != len(test.data) || err != nil {
			t.Fatalf("CopyOut: got (%d, %v), wanted (%d, nil)", n, err, len(test.data))
		}
		r, err := NewReadRegionAligned(b, test.addr, uint64(len(test.data)), test.align)
		if err != nil {
			t.Fatalf("NewReadRegionAligned: %v", err)
		}
		got, err := r.ReadString(ctx)
		if got != test.data || err != nil {
			t.Errorf("ReadString: got (%q, %v), wanted (%q, nil)", got, err, test.data)
		}
	}
}

func TestRegionMisaligned(t *testing.T) {
	b := &BytesIO{make([]byte, 64)}
	if _, err := NewReadRegionAligned(b, 3, 8, 8); err != kerr.EFAULT {
		t.Errorf("NewReadRegionAligned: got %v, wanted %v", err, kerr.EFAULT)
	}
	if _, err := NewWriteRegionAligned(b, 12, 16, 16); err != kerr.EFAULT {
		t.Errorf("NewWriteRegionAligned: got %v, wanted %v", err, kerr.EFAULT)
	}
}

func TestRegionNonEmpty(t *testing.T) {
	b := &BytesIO{make([]byte, 8)}
	if _, err := NewReadRegion(b, 4, 0); err != nil {
		t.Errorf("NewReadRegion of zero length: %v", err)
	}
	if _, err := NewReadRegionOpts(b, 4, 0, RegionOpts{NonEmpty: true}); err != kerr.EFAULT {
		t.Errorf("NewReadRegionOpts(NonEmpty): got %v, wanted %v", err, kerr.EFAULT)
	}
}

func TestRegionUnmappedFaults(t *testing.T) {
	// Validation only checks the address layout; accesses to memory the IO
	// does not back still fault.
	ctx := newContext()
	b := &BytesIO{make([]byte, 8)}
	r, err := NewReadRegion(b, 0x1000, 4)
	if err != nil {
		t.Fatalf("NewReadRegion: %v", err)
	}
	if _, err := r.ReadBytes(ctx); err != kerr.EFAULT {
		t.Errorf("ReadBytes: got %v, wanted %v", err, kerr.EFAULT)
	}
}

func TestReadObjectExactSize(t *testing.T) {
	ctx := newContext()
	b := &BytesIO{make([]byte, 64)}
	want := sk.Timespec{Sec: 3, Nsec: 4}
	w, err := NewWriteRegion(b, 0, sk.SizeOfTimespec)
	if err != nil {
		t.Fatalf("NewWriteRegion: %v", err)
	}
	if err := w.WriteObject(ctx, &want); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}

	r, err := NewReadRegion(b, 0, sk.SizeOfTimespec)
	if err != nil {
		t.Fatalf("NewReadRegion: %v", err)
	}
	var got sk.Timespec
	if err := r.ReadObject(ctx, &got); err != nil || got != want {
		t.Errorf("ReadObject: got (%+v, %v), wanted (%+v, nil)", got, err, want)
	}

	short, _ := NewReadRegion(b, 0, sk.SizeOfTimespec-1)
	if err := short.ReadObject(ctx, &got); err != kerr.EINVAL {
		t.Errorf("ReadObject of short region: got %v, wanted %v", err, kerr.EINVAL)
	}
	long, _ := NewWriteRegion(b, 0, sk.SizeOfTimespec+1)
	if err := long.WriteObject(ctx, &want); err != kerr.EINVAL {
		t.Errorf("WriteObject of long region: got %v, wanted %v", err, kerr.EINVAL)
	}
}

func TestNoneIfNull(t *testing.T) {
	b := &BytesIO{make([]byte, 64)}
	w, err := NewWriteRegion(b, 0, sk.SizeOfTimespec)
	if err != nil {
		t.Fatalf("NewWriteRegion: %v", err)
	}
	if _, ok := w.NoneIfNull(); ok {
		t.Errorf("NoneIfNull of a null region returned a region")
	}
	w, _ = NewWriteRegion(b, 16, sk.SizeOfTimespec)
	if got, ok := w.NoneIfNull(); !ok || got.Addr() != 16 {
		t.Errorf("NoneIfNull: got (%v, %t), wanted (0x10, true)", got.Addr(), ok)
	}
}

func TestSubStaysInside(t *testing.T) {
	ctx := newContext()
	b := &BytesIO{[]byte("0123456789")}
	r, _ := NewRWRegion(b, 2, 6)
	if got, want := r.Read().Sub(2, 100).Range(), (hostarch.AddrRange{Start: 4, End: 8}); got != want {
		t.Errorf("Sub range: got %v, wanted %v", got, want)
	}
	n, err := r.Write().Sub(4, -1).CopyOut(ctx, []byte("abcdef"))
	if n != 2 || err != nil {
		t.Errorf("CopyOut: got (%d, %v), wanted (2, nil)", n, err)
	}
	if got, want := b.Bytes, []byte("012345ab89"); !bytes.Equal(got, want) {
		t.Errorf("Bytes: got %q, wanted %q", got, want)
	}
}

func TestAtomicUint32Alignment(t *testing.T) {
	b := &BytesIO{make([]byte, 8)}
	if _, err := NewAtomicUint32(b, 2); err != kerr.EINVAL {
		t.Errorf("NewAtomicUint32(2): got %v, wanted %v", err, kerr.EINVAL)
	}
	if _, err := NewAtomicUint32(b, hostarch.MaxUserAddress); err != kerr.EFAULT {
		t.Errorf("NewAtomicUint32(MaxUserAddress): got %v, wanted %v", err, kerr.EFAULT)
	}
}
