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

package sk

import (
	"sync/atomic"
	"testing"
	"time"

	"kestrel.dev/kestrel/pkg/abi/errno"
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/kernel/futex"
	"kestrel.dev/kestrel/pkg/sentry/kernel/kerneltest"
	"kestrel.dev/kestrel/pkg/sentry/mm"
)

func blocked(task *kernel.Task) func() bool {
	return func() bool {
		return task.TaskGoroutineState() == kernel.TaskGoroutineBlockedInterruptible
	}
}

func TestClockGettime(t *testing.T) {
	e := newTestEnv(t)
	e.clock.Advance(1500 * time.Millisecond)
	e.run(t, func(c *caller) {
		addr := c.alloc(sk.SizeOfTimespec)
		for _, id := range []uintptr{sk.CLOCK_REALTIME, sk.CLOCK_MONOTONIC} {
			c.must("clock_gettime", sk.SYS_CLOCK_GETTIME, id, addr)
			var ts sk.Timespec
			c.getObj(addr, &ts)
			if want := (sk.Timespec{Sec: 1, Nsec: 5e8}); ts != want {
				t.Errorf("clock %d = %+v, want %+v", id, ts, want)
			}
		}
		c.expect("unknown clock", errno.EINVAL, sk.SYS_CLOCK_GETTIME, 99, addr)
		c.expect("clock id above 32 bits", errno.EINVAL, sk.SYS_CLOCK_GETTIME, 1<<32|sk.CLOCK_MONOTONIC, addr)
		c.expect("unknown clock, bad buffer", errno.EFAULT, sk.SYS_CLOCK_GETTIME, 99, badAddr)
		c.must("yield", sk.SYS_YIELD)
	})
}

func TestNanosleep(t *testing.T) {
	e := newTestEnv(t)
	done := make(chan errno.Errno, 1)
	task := kerneltest.Start(e.k, kernel.TaskConfig{Name: "sleeper"}, func(task *kernel.Task) {
		c := newCaller(t, task)
		req, _ := c.obj(&sk.Timespec{Sec: 2})
		_, errn := c.sys(sk.SYS_NANOSLEEP, req, 0)
		done <- errn
	})

	waitFor(t, "sleep timer", func() bool { return e.clock.Armed() == 1 })
	e.clock.Advance(time.Second)
	select {
	case errn := <-done:
		t.Fatalf("nanosleep returned early with errno %v", errn)
	default:
	}
	e.clock.Advance(time.Second)
	task.Wait()
	if errn := <-done; errn != 0 {
		t.Errorf("nanosleep: errno %v, want success", errn)
	}
	if n := e.clock.Armed(); n != 0 {
		t.Errorf("%d timers left armed", n)
	}
}

func TestNanosleepErrors(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, func(c *caller) {
		zero, _ := c.obj(&sk.Timespec{})
		c.must("zero sleep", sk.SYS_NANOSLEEP, zero, 0)

		bad, _ := c.obj(&sk.Timespec{Nsec: 1e9})
		c.expect("invalid nsec", errno.EINVAL, sk.SYS_NANOSLEEP, bad, 0)
		neg, _ := c.obj(&sk.Timespec{Sec: -1})
		c.expect("negative", errno.EINVAL, sk.SYS_NANOSLEEP, neg, 0)
		c.expect("bad request", errno.EFAULT, sk.SYS_NANOSLEEP, badAddr, 0)
		c.expect("bad remainder", errno.EFAULT, sk.SYS_NANOSLEEP, zero, badAddr)
	})
}

func TestNanosleepKilled(t *testing.T) {
	e := newTestEnv(t)
	var returned atomic.Bool
	task := kerneltest.Start(e.k, kernel.TaskConfig{Name: "sleeper"}, func(task *kernel.Task) {
		c := newCaller(t, task)
		req, _ := c.obj(&sk.Timespec{Sec: 100})
		c.sys(sk.SYS_NANOSLEEP, req, c.alloc(sk.SizeOfTimespec))
		returned.Store(true)
	})

	waitFor(t, "sleeper to block", blocked(task))
	e.k.Kill(task)
	task.Wait()
	if returned.Load() {
		t.Errorf("nanosleep returned to a killed task")
	}
	if n := e.clock.Armed(); n != 0 {
		t.Errorf("%d timers left armed after kill", n)
	}
}

func TestFutexErrors(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, func(c *caller) {
		word := c.alloc(8)
		c.expect("wait value mismatch", errno.EAGAIN, sk.SYS_FUTEX, word, sk.FUTEX_WAIT, 1, 0)
		c.expect("misaligned", errno.EINVAL, sk.SYS_FUTEX, word+1, sk.FUTEX_WAKE, 1)
		c.expect("unknown op", errno.EINVAL, sk.SYS_FUTEX, word, 7, 0)
		if n := c.must("wake", sk.SYS_FUTEX, word, sk.FUTEX_WAKE, 1); n != 0 {
			t.Errorf("wake with no waiters = %d, want 0", n)
		}
		bad, _ := c.obj(&sk.Timespec{Nsec: -1})
		c.expect("invalid timeout", errno.EINVAL, sk.SYS_FUTEX, word, sk.FUTEX_WAIT, 0, bad)
		c.expect("requeue misaligned target", errno.EINVAL, sk.SYS_FUTEX, word, sk.FUTEX_REQUEUE, 0, 1, word+2)
	})
}

func TestFutexWaitTimeout(t *testing.T) {
	e := newTestEnv(t)
	done := make(chan errno.Errno, 1)
	task := kerneltest.Start(e.k, kernel.TaskConfig{Name: "waiter"}, func(task *kernel.Task) {
		c := newCaller(t, task)
		word := c.alloc(4)
		timeout, _ := c.obj(&sk.Timespec{Sec: 1})
		_, errn := c.sys(sk.SYS_FUTEX, word, sk.FUTEX_WAIT, 0, timeout)
		done <- errn
	})
	waitFor(t, "futex timer", func() bool { return e.clock.Armed() == 1 })
	e.clock.Advance(time.Second)
	task.Wait()
	if errn := <-done; errn != errno.ETIMEDOUT {
		t.Errorf("futex wait: errno %v, want ETIMEDOUT", errn)
	}
}

// sharedTasks returns task configs that share one address space.
func sharedTasks() (kernel.TaskConfig, kernel.TaskConfig) {
	m, f := mm.NewMemoryManager(), futex.NewManager()
	return kernel.TaskConfig{Name: "waiter", MemoryManager: m, Futex: f},
		kernel.TaskConfig{Name: "waker", MemoryManager: m, Futex: f}
}

func TestFutexWake(t *testing.T) {
	e := newTestEnv(t)
	waitCfg, wakeCfg := sharedTasks()
	wordc := make(chan uintptr, 1)
	woke := make(chan errno.Errno, 1)
	waiter := kerneltest.Start(e.k, waitCfg, func(task *kernel.Task) {
		c := newCaller(t, task)
		word := c.alloc(4)
		wordc <- word
		_, errn := c.sys(sk.SYS_FUTEX, word, sk.FUTEX_WAIT, 0, 0)
		woke <- errn
	})
	word := <-wordc
	waitFor(t, "waiter to block", blocked(waiter))

	kerneltest.Run(t, e.k, wakeCfg, func(task *kernel.Task) {
		c := newCaller(t, task)
		c.expect("wait with stale value", errno.EAGAIN, sk.SYS_FUTEX, word, sk.FUTEX_WAIT, 1, 0)
		if n := c.must("wake", sk.SYS_FUTEX, word, sk.FUTEX_WAKE, 10); n != 1 {
			t.Errorf("wake = %d, want 1", n)
		}
	})
	waiter.Wait()
	if errn := <-woke; errn != 0 {
		t.Errorf("futex wait: errno %v, want success", errn)
	}
}

func TestFutexRequeue(t *testing.T) {
	e := newTestEnv(t)
	waitCfg, wakeCfg := sharedTasks()
	wordc := make(chan uintptr, 1)
	woke := make(chan errno.Errno, 1)
	waiter := kerneltest.Start(e.k, waitCfg, func(task *kernel.Task) {
		c := newCaller(t, task)
		word := c.alloc(8)
		wordc <- word
		_, errn := c.sys(sk.SYS_FUTEX, word, sk.FUTEX_WAIT, 0, 0)
		woke <- errn
	})
	word := <-wordc
	target := word + 4
	waitFor(t, "waiter to block", blocked(waiter))

	kerneltest.Run(t, e.k, wakeCfg, func(task *kernel.Task) {
		c := newCaller(t, task)
		if n := c.must("requeue", sk.SYS_FUTEX, word, sk.FUTEX_REQUEUE, 0, 1, target); n != 0 {
			t.Errorf("requeue woke %d, want 0", n)
		}
		if n := c.must("wake old", sk.SYS_FUTEX, word, sk.FUTEX_WAKE, 1); n != 0 {
			t.Errorf("wake on original word = %d, want 0", n)
		}
		if n := c.must("wake target", sk.SYS_FUTEX, target, sk.FUTEX_WAKE, 1); n != 1 {
			t.Errorf("wake on target = %d, want 1", n)
		}
	})
	waiter.Wait()
	if errn := <-woke; errn != 0 {
		t.Errorf("futex wait: errno %v, want success", errn)
	}
}
