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

package strace

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"kestrel.dev/kestrel/pkg/abi/errno"
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/kernel/kerneltest"
	"kestrel.dev/kestrel/pkg/sentry/ktime"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/sentry/schemes/ramfs"
	sksys "kestrel.dev/kestrel/pkg/sentry/syscalls/sk"
)

func TestSyscallNames(t *testing.T) {
	for sysno, name := range sk.SyscallNames {
		info, ok := skSyscalls[sysno]
		if !ok {
			t.Errorf("syscall %s (%#x) has no format", name, sysno)
			continue
		}
		if info.Name() != name {
			t.Errorf("syscall %#x: got name %q, want %q", sysno, info.Name(), name)
		}
	}
	if len(skSyscalls) != len(sk.SyscallNames) {
		t.Errorf("got %d formats, want %d", len(skSyscalls), len(sk.SyscallNames))
	}
}

func TestConvertToSysnoMap(t *testing.T) {
	m, err := Syscalls().ConvertToSysnoMap(nil)
	if err != nil || m != nil {
		t.Errorf("ConvertToSysnoMap(nil) = (%v, %v), want (nil, nil)", m, err)
	}
	m, err = Syscalls().ConvertToSysnoMap([]string{"open", "write"})
	if err != nil {
		t.Fatalf("ConvertToSysnoMap: %v", err)
	}
	want := map[uintptr]bool{sk.SYS_OPEN: true, sk.SYS_WRITE: true}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("ConvertToSysnoMap mismatch (-want +got):\n%s", diff)
	}
	if _, err := Syscalls().ConvertToSysnoMap([]string{"fork"}); err == nil {
		t.Errorf("ConvertToSysnoMap(fork) succeeded")
	}
}

func TestFlagFormatting(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  string
		want string
	}{
		{"open rdwr", open(sk.O_RDWR | sk.O_CREAT | 0o644), "O_RDWR|O_CREAT 0644"},
		{"open rdonly", open(sk.O_RDONLY), "O_RDONLY"},
		{"open unknown", open(sk.O_WRONLY | 0x4000_0000), "O_WRONLY|0x40000000"},
		{"map none", mapFlags(0), "PROT_NONE"},
		{"map rw private", mapFlags(uint64(sk.PROT_READ | sk.PROT_WRITE | sk.MAP_PRIVATE)), "PROT_READ|PROT_WRITE|MAP_PRIVATE"},
		{"map noreplace", mapFlags(uint64(sk.PROT_READ | sk.MAP_FIXED_NOREPLACE)), "PROT_READ|MAP_FIXED_NOREPLACE"},
		{"map fixed", mapFlags(uint64(sk.MAP_FIXED)), "MAP_FIXED"},
		{"call", callFlags(uint64(sk.CALL_READ|sk.CALL_WRITE) | 2), "CALL_WRITE|CALL_READ count=2"},
		{"call none", callFlags(0), "0 count=0"},
		{"whence", Whences.Parse(sk.SEEK_END), "SEEK_END"},
		{"whence unknown", Whences.Parse(42), "0x2a"},
	} {
		if tc.got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}
}

// traceEnv is a kernel with a Tracer writing to out.
type traceEnv struct {
	k      *kernel.Kernel
	tracer *Tracer
	out    bytes.Buffer
	on     bool
}

func newTraceEnv(t *testing.T, syscalls []string) *traceEnv {
	t.Helper()
	e := &traceEnv{on: true}
	tr, err := New(Options{
		Out:      &e.out,
		Enabled:  func() bool { return e.on },
		Syscalls: syscalls,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	e.tracer = tr
	clock := ktime.NewManualClock(ktime.ZeroTime)
	e.k = kerneltest.New(t, kerneltest.Options{
		Table:   sksys.Table,
		Clock:   clock,
		Tracer:  tr,
		Schemes: map[string]scheme.Scheme{"file": ramfs.New(ramfs.Options{Clock: clock})},
	})
	return e
}

// lines returns the trace output split into lines.
func (e *traceEnv) lines() []string {
	return strings.Split(strings.TrimSuffix(e.out.String(), "\n"), "\n")
}

func syscall(t *kernel.Task, sysno uintptr, args ...uintptr) uintptr {
	var a arch.SyscallArguments
	for i, v := range args {
		a[i].Value = v
	}
	return t.Syscall(sysno, a)
}

func TestTraceOpenWrite(t *testing.T) {
	e := newTraceEnv(t, nil)
	var (
		name  string
		path  hostarch.Addr
		data  hostarch.Addr
		fd    uintptr
		wrote uintptr
	)
	kerneltest.Run(t, e.k, kernel.TaskConfig{Name: "tracee"}, func(task *kernel.Task) {
		name = task.String()
		buf := kerneltest.NewBuffer(t, task, hostarch.PageSize)
		path = buf.PutString(t, 0, "file:/a")
		data = buf.PutString(t, 64, "hello")
		fd = syscall(task, sk.SYS_OPEN, uintptr(path), 7, sk.O_RDWR|sk.O_CREAT|0o644)
		wrote = syscall(task, sk.SYS_WRITE, fd, uintptr(data), 5)
	})
	if wrote != 5 {
		t.Fatalf("write returned %d, want 5", wrote)
	}
	open := fmt.Sprintf("open(%#x \"file:/a\", 0x7, O_RDWR|O_CREAT 0644)", uintptr(path))
	want := []string{
		fmt.Sprintf("%s E %s", name, open),
		fmt.Sprintf("%s X %s = %d (%#x)", name, open, fd, fd),
		fmt.Sprintf("%s E write(%d, %#x \"hello\", 0x5)", name, fd, uintptr(data)),
		fmt.Sprintf("%s X write(%d, %#x, 0x5) = 5 (0x5)", name, fd, uintptr(data)),
	}
	if diff := cmp.Diff(want, e.lines()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceErrno(t *testing.T) {
	e := newTraceEnv(t, []string{"close"})
	var name string
	kerneltest.Run(t, e.k, kernel.TaskConfig{Name: "tracee"}, func(task *kernel.Task) {
		name = task.String()
		syscall(task, sk.SYS_YIELD)
		syscall(task, sk.SYS_CLOSE, 99)
	})
	want := []string{
		fmt.Sprintf("%s E close(99)", name),
		fmt.Sprintf("%s X close(99) = -%d EBADF", name, errno.EBADF),
	}
	if diff := cmp.Diff(want, e.lines()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceRaw(t *testing.T) {
	e := newTraceEnv(t, []string{"close"})
	e.tracer.raw = true
	var name string
	kerneltest.Run(t, e.k, kernel.TaskConfig{Name: "tracee"}, func(task *kernel.Task) {
		name = task.String()
		syscall(task, sk.SYS_CLOSE, 99)
	})
	regs := fmt.Sprintf("[%#x 0x63 0x0 0x0 0x0 0x0]", uintptr(sk.SYS_CLOSE))
	want := []string{
		fmt.Sprintf("%s E close %s", name, regs),
		fmt.Sprintf("%s X close %s = -%d", name, regs, errno.EBADF),
	}
	if diff := cmp.Diff(want, e.lines()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceReadBufferTruncated(t *testing.T) {
	old := LogMaximumSize
	LogMaximumSize = 4
	defer func() { LogMaximumSize = old }()

	e := newTraceEnv(t, []string{"read"})
	var (
		name string
		fd   uintptr
		dst  hostarch.Addr
	)
	kerneltest.Run(t, e.k, kernel.TaskConfig{Name: "tracee"}, func(task *kernel.Task) {
		name = task.String()
		buf := kerneltest.NewBuffer(t, task, hostarch.PageSize)
		path := buf.PutString(t, 0, "file:/b")
		fd = syscall(task, sk.SYS_OPEN, uintptr(path), 7, sk.O_RDWR|sk.O_CREAT)
		src := buf.PutString(t, 64, "truncated")
		syscall(task, sk.SYS_WRITE, fd, uintptr(src), 9)
		syscall(task, sk.SYS_LSEEK, fd, 0, sk.SEEK_SET)
		dst = buf.Addr + 128
		syscall(task, sk.SYS_READ, fd, uintptr(dst), 9)
	})
	want := []string{
		fmt.Sprintf("%s E read(%d, %#x, 0x9)", name, fd, uintptr(dst)),
		fmt.Sprintf("%s X read(%d, %#x \"trun\"..., 0x9) = 9 (0x9)", name, fd, uintptr(dst)),
	}
	if diff := cmp.Diff(want, e.lines()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestTraceDisabled(t *testing.T) {
	e := newTraceEnv(t, nil)
	e.on = false
	kerneltest.Run(t, e.k, kernel.TaskConfig{Name: "tracee"}, func(task *kernel.Task) {
		syscall(task, sk.SYS_YIELD)
	})
	if e.out.Len() != 0 {
		t.Errorf("disabled tracer wrote %q", e.out.String())
	}
}

func TestSetFilter(t *testing.T) {
	e := newTraceEnv(t, []string{"close"})
	if err := e.tracer.SetFilter([]string{"yield"}); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	if err := e.tracer.SetFilter([]string{"nope"}); err == nil {
		t.Errorf("SetFilter(nope) succeeded")
	}
	var name string
	kerneltest.Run(t, e.k, kernel.TaskConfig{Name: "tracee"}, func(task *kernel.Task) {
		name = task.String()
		syscall(task, sk.SYS_CLOSE, 99)
		syscall(task, sk.SYS_YIELD)
	})
	want := []string{
		fmt.Sprintf("%s E yield()", name),
		fmt.Sprintf("%s X yield() = 0 (0x0)", name),
	}
	if diff := cmp.Diff(want, e.lines()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownSyscall(t *testing.T) {
	i := info(0xdead)
	if i.Name() != "sys_0xdead" || len(i.format) != 5 {
		t.Errorf("info(0xdead) = %+v", i)
	}
}

func TestTraceDoesNotChangeResults(t *testing.T) {
	run := func(on, raw bool) []uintptr {
		e := newTraceEnv(t, nil)
		e.on = on
		e.tracer.raw = raw
		var words []uintptr
		kerneltest.Run(t, e.k, kernel.TaskConfig{Name: "tracee"}, func(task *kernel.Task) {
			buf := kerneltest.NewBuffer(t, task, hostarch.PageSize)
			missing := buf.PutString(t, 0, "file:/missing")
			path := buf.PutString(t, 64, "file:/a")
			data := buf.PutString(t, 128, "hello")
			out := uintptr(buf.Addr) + 256
			words = append(words, syscall(task, sk.SYS_OPEN, uintptr(missing), 13, sk.O_RDONLY))
			fd := syscall(task, sk.SYS_OPEN, uintptr(path), 7, sk.O_RDWR|sk.O_CREAT|0o644)
			words = append(words,
				fd,
				syscall(task, sk.SYS_WRITE, fd, uintptr(data), 5),
				syscall(task, sk.SYS_READ2, fd, out, 5, 0, sk.UseDescriptorFlags),
				syscall(task, sk.SYS_READ, fd, 0x10, 5),
				syscall(task, sk.SYS_CLOSE, fd),
				syscall(task, sk.SYS_CLOSE, fd),
				syscall(task, 0x7ff),
			)
		})
		return words
	}
	want := run(false, false)
	for _, raw := range []bool{false, true} {
		if diff := cmp.Diff(want, run(true, raw)); diff != "" {
			t.Errorf("raw=%t: traced results differ (-untraced +traced):\n%s", raw, diff)
		}
	}
}
