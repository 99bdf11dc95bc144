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

// Package kerneltest provides utilities for testing code that runs in
// kernel tasks.
package kerneltest

import (
	"testing"
	"time"

	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/ktime"
	"kestrel.dev/kestrel/pkg/sentry/mm"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/usermem"
)

// Options configures New.
type Options struct {
	// NumCPUs defaults to 2.
	NumCPUs int

	// Schemes are registered in the kernel's registry by name.
	Schemes map[string]scheme.Scheme

	// Table is the syscall table. Required.
	Table *kernel.SyscallTable

	// Tracer is optional.
	Tracer kernel.SyscallTracer

	// Clock is used as both the realtime and the monotonic clock. It
	// defaults to a ManualClock at time zero.
	Clock ktime.Clock

	// MaxFiles is the descriptor limit.
	MaxFiles int32
}

// New returns a kernel for tests.
func New(t testing.TB, opts Options) *kernel.Kernel {
	t.Helper()
	if opts.NumCPUs == 0 {
		opts.NumCPUs = 2
	}
	if opts.Clock == nil {
		opts.Clock = ktime.NewManualClock(ktime.ZeroTime)
	}
	r := scheme.NewRegistry()
	for name, s := range opts.Schemes {
		if _, err := r.Register(name, s); err != nil {
			t.Fatalf("registering scheme %q: %v", name, err)
		}
	}
	k, err := kernel.New(kernel.InitKernelArgs{
		NumCPUs:        opts.NumCPUs,
		Registry:       r,
		SyscallTable:   opts.Table,
		RealtimeClock:  opts.Clock,
		MonotonicClock: opts.Clock,
		Tracer:         opts.Tracer,
		MaxFiles:       opts.MaxFiles,
	})
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	t.Cleanup(k.WaitExited)
	return k
}

// Start starts a task running fn and returns it.
func Start(k *kernel.Kernel, cfg kernel.TaskConfig, fn func(*kernel.Task)) *kernel.Task {
	task := k.NewTask(cfg)
	task.Start(fn)
	return task
}

// Run runs fn in a new task and waits for the task to exit. It fails the
// test if the task does not exit within a minute.
func Run(t testing.TB, k *kernel.Kernel, cfg kernel.TaskConfig, fn func(*kernel.Task)) {
	t.Helper()
	task := Start(k, cfg, fn)
	select {
	case <-task.Exited():
	case <-time.After(time.Minute):
		t.Fatalf("%v did not exit", task)
	}
}

// Map maps length bytes of read-write anonymous memory in t's address space
// and returns its address.
func Map(tb testing.TB, t *kernel.Task, length uint64) hostarch.Addr {
	tb.Helper()
	addr, err := t.MemoryManager().MMap(t, mm.MMapOpts{
		Length:  length,
		Perms:   hostarch.ReadWrite,
		Private: true,
		Name:    "test",
	})
	if err != nil {
		tb.Fatalf("MMap(%d): %v", length, err)
	}
	return addr
}

// Buffer is a region of task memory used to pass data to syscalls.
type Buffer struct {
	t    *kernel.Task
	Addr hostarch.Addr
	Len  uint64
}

// NewBuffer maps a buffer of length bytes.
func NewBuffer(tb testing.TB, t *kernel.Task, length uint64) *Buffer {
	tb.Helper()
	return &Buffer{t: t, Addr: Map(tb, t, length), Len: length}
}

// Put copies b into the buffer at off and returns the address of the copy.
func (b *Buffer) Put(tb testing.TB, off uint64, data []byte) hostarch.Addr {
	tb.Helper()
	addr := b.Addr + hostarch.Addr(off)
	if _, err := b.t.MemoryManager().CopyOut(b.t, addr, data, usermem.IOOpts{}); err != nil {
		tb.Fatalf("copying %d bytes to %v: %v", len(data), addr, err)
	}
	return addr
}

// PutString copies s into the buffer at off and returns its address.
func (b *Buffer) PutString(tb testing.TB, off uint64, s string) hostarch.Addr {
	tb.Helper()
	return b.Put(tb, off, []byte(s))
}

// Get copies length bytes at off out of the buffer.
func (b *Buffer) Get(tb testing.TB, off, length uint64) []byte {
	tb.Helper()
	addr := b.Addr + hostarch.Addr(off)
	data := make([]byte, length)
	if _, err := b.t.MemoryManager().CopyIn(b.t, addr, data, usermem.IOOpts{}); err != nil {
		tb.Fatalf("copying %d bytes from %v: %v", length, addr, err)
	}
	return data
}
