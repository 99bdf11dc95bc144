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
	"runtime"

	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/sentry/ktime"
)

// TaskGoroutineState is a coarse representation of the current execution
// status of a kernel.Task goroutine.
type TaskGoroutineState int32

const (
	// TaskGoroutineNonexistent indicates that the task goroutine has either
	// not yet been created by Task.Start() or has returned from Task.run().
	// This must be the zero value for TaskGoroutineState.
	TaskGoroutineNonexistent TaskGoroutineState = iota

	// TaskGoroutineRunningApp indicates that the task goroutine is running
	// the task's code outside of a syscall.
	TaskGoroutineRunningApp

	// TaskGoroutineRunningSys indicates that the task goroutine is executing
	// a syscall.
	TaskGoroutineRunningSys

	// TaskGoroutineBlockedInterruptible indicates that the task goroutine is
	// blocked in Task.block(), and hence may be woken by Kernel.Kill.
	TaskGoroutineBlockedInterruptible

	// TaskGoroutineExited indicates that the task goroutine is tearing down
	// the task.
	TaskGoroutineExited
)

var taskGoroutineStateNames = [...]string{
	TaskGoroutineNonexistent:          "nonexistent",
	TaskGoroutineRunningApp:           "running-app",
	TaskGoroutineRunningSys:           "running-sys",
	TaskGoroutineBlockedInterruptible: "blocked",
	TaskGoroutineExited:               "exited",
}

// String implements fmt.Stringer.
func (s TaskGoroutineState) String() string {
	if s >= 0 && int(s) < len(taskGoroutineStateNames) {
		return taskGoroutineStateNames[s]
	}
	return "unknown"
}

// TaskGoroutineState returns the current state of t's goroutine.
func (t *Task) TaskGoroutineState() TaskGoroutineState {
	return TaskGoroutineState(t.goroutineState.Load())
}

func (t *Task) setGoroutineState(s TaskGoroutineState) {
	t.goroutineState.Store(int32(s))
}

// CPU returns the CPU the task goroutine is currently running on.
//
// The result must be fetched again after anything that may block, since
// the task may resume on a different CPU.
//
// Preconditions: The caller must be running on the task goroutine.
func (t *Task) CPU() *CPU {
	c := t.cpu.Load()
	if c == nil {
		panic(t.String() + " is not running on a CPU")
	}
	return c
}

// acquireCPU blocks until a CPU is free and installs t on it.
func (t *Task) acquireCPU() {
	c := <-t.k.cpuPool
	c.install(t)
}

// releaseCPU returns t's CPU to the pool. It is a no-op if t holds no CPU.
func (t *Task) releaseCPU() {
	c := t.cpu.Load()
	if c == nil {
		return
	}
	c.uninstall(t)
	t.k.cpuPool <- c
}

// Start starts the task goroutine, which runs fn on a CPU. When fn returns,
// or the task is killed at a syscall exit, the task is torn down.
func (t *Task) Start(fn func(t *Task)) {
	t.k.tasksWG.Add(1)
	go t.run(fn)
}

func (t *Task) run(fn func(t *Task)) {
	defer t.k.tasksWG.Done()
	defer close(t.exited)
	defer t.teardown()
	defer t.releaseCPU()

	t.acquireCPU()
	t.setGoroutineState(TaskGoroutineRunningApp)
	fn(t)
}

// teardown releases the resources of t. It runs once, on the task goroutine,
// after t has released its CPU.
func (t *Task) teardown() {
	t.setGoroutineState(TaskGoroutineExited)
	t.Debugf("Exiting")
	t.fdTable.DecRef()

	t.k.tasksMu.Lock()
	delete(t.k.tasks, t.tid)
	t.k.tasksMu.Unlock()
	t.setGoroutineState(TaskGoroutineNonexistent)
}

// exitContext terminates the task goroutine. Deferred cleanup in run
// releases the CPU and tears the task down. It never returns.
func (t *Task) exitContext() {
	t.Debugf("Killed at syscall exit")
	runtime.Goexit()
}

// Exited returns a channel that is closed when the task goroutine has
// returned.
func (t *Task) Exited() <-chan struct{} {
	return t.exited
}

// Wait blocks until the task goroutine has returned.
func (t *Task) Wait() {
	<-t.exited
}

// Block blocks t until an event is received from C or t is killed. It
// returns nil if an event was received from C, and kerr.ErrInterrupted if t
// was killed.
//
// The CPU is released while t is blocked.
//
// Preconditions: The caller must be running on the task goroutine.
func (t *Task) Block(C <-chan struct{}) error {
	return t.block(C, nil)
}

// BlockWithDeadline blocks t until an event is received from C, the clock
// reaches deadline, or t is killed. It returns kerr.ETIMEDOUT if the
// deadline was reached.
//
// Preconditions: The caller must be running on the task goroutine.
func (t *Task) BlockWithDeadline(C <-chan struct{}, clock ktime.Clock, deadline ktime.Time) error {
	l, timerChan := ktime.NewChannelNotifier()
	timer := clock.NewTimer(l)
	defer timer.Destroy()
	timer.Set(deadline)
	return t.block(C, timerChan)
}

// block blocks a task on one of many events.
func (t *Task) block(C <-chan struct{}, timerChan <-chan struct{}) error {
	if t.killed.Load() {
		return kerr.ErrInterrupted
	}

	prev := t.TaskGoroutineState()
	t.releaseCPU()
	t.setGoroutineState(TaskGoroutineBlockedInterruptible)
	defer func() {
		t.acquireCPU()
		t.setGoroutineState(prev)
	}()

	select {
	case <-C:
		return nil
	case <-t.interruptChan:
		return kerr.ErrInterrupted
	case <-timerChan:
		return kerr.ETIMEDOUT
	}
}

// Yield releases t's CPU and acquires one again, letting other runnable
// tasks make progress.
//
// Preconditions: The caller must be running on the task goroutine.
func (t *Task) Yield() {
	t.releaseCPU()
	runtime.Gosched()
	t.acquireCPU()
}
