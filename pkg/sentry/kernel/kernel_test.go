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

package kernel

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"
	"kestrel.dev/kestrel/pkg/abi/errno"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/ktime"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
)

const (
	sysGuard uintptr = 1
	sysBlock uintptr = 2
	sysFail  uintptr = 3
)

// testKernel returns a kernel whose syscall table holds the handlers in m.
func testKernel(t *testing.T, ncpu int, m map[uintptr]Syscall) *Kernel {
	t.Helper()
	table := &SyscallTable{Name: "kernel-test", Table: m}
	table.Init()
	k, err := New(InitKernelArgs{
		NumCPUs:        ncpu,
		Registry:       scheme.NewRegistry(),
		SyscallTable:   table,
		MonotonicClock: ktime.NewManualClock(ktime.ZeroTime),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k
}

// errnoWord returns the result word that carries e.
func errnoWord(e errno.Errno) uintptr {
	return -uintptr(e)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMux(t *testing.T) {
	for _, tc := range []struct {
		name string
		val  uintptr
		err  error
		want uintptr
	}{
		{name: "success", val: 42, want: 42},
		{name: "errno", err: kerr.EBADF, want: errnoWord(errno.EBADF)},
		{name: "would block", err: kerr.ErrWouldBlock, want: errnoWord(errno.EAGAIN)},
		{name: "interrupted", err: kerr.ErrInterrupted, want: errnoWord(errno.EINTR)},
		{name: "untranslated", err: fmt.Errorf("opaque failure"), want: errnoWord(errno.EIO)},
		{name: "value ignored on error", val: 5, err: kerr.ENOSYS, want: errnoWord(errno.ENOSYS)},
		{name: "host errno", err: &os.PathError{Op: "write", Path: "/dev/pts/3", Err: unix.EPIPE}, want: errnoWord(errno.EPIPE)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Mux(tc.val, tc.err); got != tc.want {
				t.Errorf("Mux(%d, %v) = %#x, want %#x", tc.val, tc.err, got, tc.want)
			}
		})
	}
}

func TestReturnErrno(t *testing.T) {
	if v, err := ReturnErrno(Mux(3, nil)); v != 3 || err != nil {
		t.Errorf("ReturnErrno(3) = %d, %v, want 3, nil", v, err)
	}
	if _, err := ReturnErrno(Mux(0, kerr.EFAULT)); err != kerr.EFAULT {
		t.Errorf("ReturnErrno(-EFAULT) error = %v, want EFAULT", err)
	}
}

func TestSyscallGuard(t *testing.T) {
	var sawInside atomic.Bool
	k := testKernel(t, 1, map[uintptr]Syscall{
		sysGuard: {Name: "guard", Fn: func(t *Task, _ uintptr, args arch.SyscallArguments) (uintptr, error) {
			sawInside.Store(t.CPU().InsideSyscall())
			return args[0].Value + 1, nil
		}},
		sysFail: {Name: "fail", Fn: func(*Task, uintptr, arch.SyscallArguments) (uintptr, error) {
			return 0, kerr.EINVAL
		}},
	})

	var results [3]uintptr
	var insideAfter atomic.Bool
	task := k.NewTask(TaskConfig{Name: "guard"})
	task.Start(func(t *Task) {
		results[0] = t.Syscall(sysGuard, arch.SyscallArguments{{Value: 10}})
		insideAfter.Store(t.CPU().InsideSyscall())
		results[1] = t.Syscall(sysFail, arch.SyscallArguments{})
		results[2] = t.Syscall(999, arch.SyscallArguments{})
	})
	task.Wait()

	if !sawInside.Load() {
		t.Errorf("InsideSyscall was not set during dispatch")
	}
	if insideAfter.Load() {
		t.Errorf("InsideSyscall still set after dispatch")
	}
	want := [3]uintptr{11, errnoWord(errno.EINVAL), errnoWord(errno.ENOSYS)}
	if results != want {
		t.Errorf("results = %#x, want %#x", results, want)
	}
	if got := syscallCounter.Value("unknown", "error"); got == 0 {
		t.Errorf("syscall counter for unknown errors was not incremented")
	}
}

func TestKillWhileBlocked(t *testing.T) {
	blocked := make(chan struct{})
	var blockErr atomic.Value
	k := testKernel(t, 1, map[uintptr]Syscall{
		sysBlock: {Name: "block", Fn: func(t *Task, _ uintptr, _ arch.SyscallArguments) (uintptr, error) {
			close(blocked)
			err := t.Block(make(chan struct{}))
			blockErr.Store(err)
			return 0, err
		}},
	})

	closer := &closeCounter{}
	fdTable := k.NewFDTable()
	file := newTestFile(closer)
	if _, err := fdTable.NewFD(file, FDFlags{}); err != nil {
		t.Fatalf("NewFD: %v", err)
	}
	file.DecRef()

	var returned atomic.Bool
	task := k.NewTask(TaskConfig{Name: "victim", FDTable: fdTable})
	task.Start(func(t *Task) {
		t.Syscall(sysBlock, arch.SyscallArguments{})
		returned.Store(true)
	})

	<-blocked
	k.Kill(task)
	task.Wait()

	if returned.Load() {
		t.Errorf("Syscall returned to a killed task")
	}
	if err, _ := blockErr.Load().(error); err != kerr.ErrInterrupted {
		t.Errorf("Block returned %v, want ErrInterrupted", err)
	}
	if got := closer.closed.Load(); got != 1 {
		t.Errorf("descriptor closes after kill: got %d, want 1", got)
	}
	if k.TaskWithID(task.ThreadID()) != nil {
		t.Errorf("killed task still registered")
	}
	for _, c := range k.CPUs() {
		if c.InsideSyscall() || c.BeingKilled() {
			t.Errorf("%v: flags not cleared after exit", c)
		}
	}
}

func TestKillBeforeSyscallCompletes(t *testing.T) {
	k := testKernel(t, 1, map[uintptr]Syscall{
		sysGuard: {Name: "guard", Fn: func(t *Task, _ uintptr, _ arch.SyscallArguments) (uintptr, error) {
			t.Kernel().Kill(t)
			if !t.CPU().BeingKilled() {
				return 0, kerr.EINVAL
			}
			return 0, nil
		}},
	})

	var returned atomic.Bool
	task := k.NewTask(TaskConfig{})
	task.Start(func(t *Task) {
		t.Syscall(sysGuard, arch.SyscallArguments{})
		returned.Store(true)
	})
	task.Wait()
	if returned.Load() {
		t.Errorf("Syscall returned with a kill pending")
	}
}

func TestBlockReleasesCPU(t *testing.T) {
	release := make(chan struct{})
	k := testKernel(t, 1, map[uintptr]Syscall{
		sysBlock: {Name: "block", Fn: func(t *Task, _ uintptr, _ arch.SyscallArguments) (uintptr, error) {
			return 0, t.Block(release)
		}},
		sysGuard: {Name: "guard", Fn: func(*Task, uintptr, arch.SyscallArguments) (uintptr, error) {
			return 1, nil
		}},
	})

	var first, second uintptr
	a := k.NewTask(TaskConfig{Name: "sleeper"})
	a.Start(func(t *Task) {
		first = t.Syscall(sysBlock, arch.SyscallArguments{})
	})
	waitFor(t, "sleeper to block", func() bool {
		return a.TaskGoroutineState() == TaskGoroutineBlockedInterruptible
	})

	// With a single CPU, b can only run while a is blocked.
	b := k.NewTask(TaskConfig{Name: "runner"})
	b.Start(func(t *Task) {
		second = t.Syscall(sysGuard, arch.SyscallArguments{})
	})
	b.Wait()
	close(release)
	a.Wait()
	k.WaitExited()

	if first != 0 || second != 1 {
		t.Errorf("results = %d, %d, want 0, 1", first, second)
	}
}

func TestBlockWithDeadline(t *testing.T) {
	k := testKernel(t, 1, map[uintptr]Syscall{
		sysBlock: {Name: "block", Fn: func(t *Task, _ uintptr, _ arch.SyscallArguments) (uintptr, error) {
			clock := t.Kernel().MonotonicClock()
			return 0, t.BlockWithDeadline(nil, clock, clock.Now().Add(time.Second))
		}},
	})
	clock := k.MonotonicClock().(*ktime.ManualClock)

	var ret uintptr
	task := k.NewTask(TaskConfig{})
	task.Start(func(t *Task) {
		ret = t.Syscall(sysBlock, arch.SyscallArguments{})
	})
	waitFor(t, "timer to be armed", func() bool { return clock.Armed() == 1 })
	clock.Advance(time.Second)
	task.Wait()

	if want := errnoWord(errno.ETIMEDOUT); ret != want {
		t.Errorf("ret = %#x, want %#x", ret, want)
	}
}

// killOnExit kills the traced task once its syscall has produced a result.
type killOnExit struct {
	results atomic.Int32
}

func (*killOnExit) SyscallEnter(*Task, arch.Registers) {}

func (k *killOnExit) SyscallExit(t *Task, _ arch.Registers, _ uintptr, _ error) {
	k.results.Add(1)
	t.Kernel().Kill(t)
}

func TestKillAfterResult(t *testing.T) {
	table := &SyscallTable{Name: "kernel-test", Table: map[uintptr]Syscall{
		sysGuard: {Name: "guard", Fn: func(*Task, uintptr, arch.SyscallArguments) (uintptr, error) {
			return 1, nil
		}},
	}}
	table.Init()
	tracer := &killOnExit{}
	k, err := New(InitKernelArgs{
		NumCPUs:        1,
		Registry:       scheme.NewRegistry(),
		SyscallTable:   table,
		MonotonicClock: ktime.NewManualClock(ktime.ZeroTime),
		Tracer:         tracer,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var returned atomic.Bool
	task := k.NewTask(TaskConfig{Name: "victim"})
	task.Start(func(t *Task) {
		t.Syscall(sysGuard, arch.SyscallArguments{})
		returned.Store(true)
	})
	task.Wait()

	if got := tracer.results.Load(); got != 1 {
		t.Errorf("SyscallExit called %d times, want 1", got)
	}
	if returned.Load() {
		t.Errorf("Syscall returned after a kill set during its exit")
	}
	for _, c := range k.CPUs() {
		if c.InsideSyscall() || c.BeingKilled() {
			t.Errorf("%v: flags not cleared after exit", c)
		}
	}
}
