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

package pipe

import (
	"context"
	"testing"

	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/refs"
	"kestrel.dev/kestrel/pkg/waiter"
)

// testDescription counts its references.
type testDescription struct {
	refs.AtomicRefCount
	destroyed bool
}

func (d *testDescription) DecRef() {
	d.DecRefWithDestructor(func() { d.destroyed = true })
}

func newTestPipe(t *testing.T, s *Scheme) (r, w uintptr) {
	t.Helper()
	ctx := context.Background()
	res, err := s.Open(ctx, "", 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	wres, err := s.Dup(ctx, res.Number, []byte("write"))
	if err != nil {
		t.Fatalf("Dup(write) failed: %v", err)
	}
	return res.Number, wres.Number
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	r, w := newTestPipe(t, s)

	buf := make([]byte, 8)
	if _, err := s.Read(ctx, r, buf, 0, 0); err != kerr.ErrWouldBlock {
		t.Fatalf("Read of empty pipe got %v, want ErrWouldBlock", err)
	}
	if n, _, err := s.Write(ctx, w, []byte("hello"), 0, 0); err != nil || n != 5 {
		t.Fatalf("Write = (%d, %v), want (5, nil)", n, err)
	}
	n, err := s.Read(ctx, r, buf[:3], 0, 0)
	if err != nil || string(buf[:n]) != "hel" {
		t.Fatalf("Read = (%q, %v), want hel", buf[:n], err)
	}
	n, err = s.Read(ctx, r, buf, 0, 0)
	if err != nil || string(buf[:n]) != "lo" {
		t.Fatalf("Read = (%q, %v), want lo", buf[:n], err)
	}

	if _, err := s.Read(ctx, w, buf, 0, 0); err != kerr.EBADF {
		t.Errorf("Read of write end got %v, want EBADF", err)
	}
	if _, _, err := s.Write(ctx, r, buf, 0, 0); err != kerr.EBADF {
		t.Errorf("Write of read end got %v, want EBADF", err)
	}
	if _, err := s.Size(ctx, r); err != kerr.ESPIPE {
		t.Errorf("Size got %v, want ESPIPE", err)
	}
}

func TestCapacity(t *testing.T) {
	ctx := context.Background()
	s := New(4)
	r, w := newTestPipe(t, s)

	if n, _, err := s.Write(ctx, w, []byte("abcdef"), 0, 0); err != nil || n != 4 {
		t.Fatalf("Write = (%d, %v), want (4, nil)", n, err)
	}
	if _, _, err := s.Write(ctx, w, []byte("x"), 0, 0); err != kerr.ErrWouldBlock {
		t.Fatalf("Write to full pipe got %v, want ErrWouldBlock", err)
	}
	if got := s.Readiness(w, waiter.EventOut); got != 0 {
		t.Errorf("Readiness of full pipe = %#x, want 0", got)
	}
	if _, err := s.Read(ctx, r, make([]byte, 1), 0, 0); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := s.Readiness(w, waiter.EventOut); got != waiter.EventOut {
		t.Errorf("Readiness after Read = %#x, want EventOut", got)
	}
}

func TestHangup(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	r, w := newTestPipe(t, s)

	if _, _, err := s.Write(ctx, w, []byte("x"), 0, 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Close(w); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	buf := make([]byte, 4)
	if n, err := s.Read(ctx, r, buf, 0, 0); err != nil || n != 1 {
		t.Fatalf("Read of buffered data = (%d, %v), want (1, nil)", n, err)
	}
	if n, err := s.Read(ctx, r, buf, 0, 0); err != nil || n != 0 {
		t.Errorf("Read after writer closed = (%d, %v), want EOF", n, err)
	}
	if got := s.Readiness(r, waiter.EventIn); got&waiter.EventHUp == 0 {
		t.Errorf("Readiness = %#x, want EventHUp", got)
	}

	w2, err := s.Dup(ctx, r, []byte("write"))
	if err != nil {
		t.Fatalf("Dup(write) failed: %v", err)
	}
	if err := s.Close(r); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, _, err := s.Write(ctx, w2.Number, []byte("x"), 0, 0); err != kerr.EPIPE {
		t.Errorf("Write without readers got %v, want EPIPE", err)
	}
}

func TestNotify(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	r, w := newTestPipe(t, s)

	e, ch := waiter.NewChannelEntry(nil)
	if err := s.EventRegister(r, &e, waiter.EventIn); err != nil {
		t.Fatalf("EventRegister failed: %v", err)
	}
	defer s.EventUnregister(r, &e)

	if _, _, err := s.Write(ctx, w, []byte("x"), 0, 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	select {
	case <-ch:
	default:
		t.Errorf("reader was not notified")
	}
}

func TestSendFD(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	r, w := newTestPipe(t, s)

	d := &testDescription{}
	if _, err := s.SendFD(ctx, r, d, 0, 0); err != kerr.EBADF {
		t.Errorf("SendFD on read end got %v, want EBADF", err)
	}
	if _, err := s.SendFD(ctx, w, d, 1, 0); err != kerr.EINVAL {
		t.Errorf("SendFD with flags got %v, want EINVAL", err)
	}
	if _, err := s.SendFD(ctx, w, d, 0, 0); err != nil {
		t.Fatalf("SendFD failed: %v", err)
	}
	if got := s.Readiness(r, waiter.EventIn); got != waiter.EventIn {
		t.Errorf("Readiness with a queued description = %#x, want EventIn", got)
	}

	res, err := s.Dup(ctx, r, []byte("recvfd"))
	if err != nil {
		t.Fatalf("Dup(recvfd) failed: %v", err)
	}
	if res.External != d {
		t.Errorf("Dup(recvfd) returned %v, want the sent description", res.External)
	}
	if _, err := s.Dup(ctx, r, []byte("recvfd")); err != kerr.EAGAIN {
		t.Errorf("Dup(recvfd) on an empty queue got %v, want EAGAIN", err)
	}
	if _, err := s.Dup(ctx, r, []byte("bogus")); err != kerr.EINVAL {
		t.Errorf("Dup(bogus) got %v, want EINVAL", err)
	}
}

func TestCloseReleasesQueued(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	r, w := newTestPipe(t, s)

	d := &testDescription{}
	if _, err := s.SendFD(ctx, w, d, 0, 0); err != nil {
		t.Fatalf("SendFD failed: %v", err)
	}
	s.Close(w)
	if d.destroyed {
		t.Fatalf("description released while a reader remains")
	}
	s.Close(r)
	if !d.destroyed {
		t.Errorf("description not released after the last end closed")
	}
	if err := s.Close(r); err != kerr.EBADF {
		t.Errorf("second Close got %v, want EBADF", err)
	}
}
