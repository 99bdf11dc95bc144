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
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"kestrel.dev/kestrel/pkg/log"
	"kestrel.dev/kestrel/pkg/sentry/kernel/futex"
	"kestrel.dev/kestrel/pkg/sentry/mm"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/usermem"
)

// contextID is the kernel package's type for context.Context.Value keys.
type contextID int

const (
	// CtxKernel is a Context.Value key for a Kernel.
	CtxKernel contextID = iota

	// CtxTask is a Context.Value key for a Task.
	CtxTask
)

// Task represents a thread of execution in the kernel.
//
// Each Task is run by its own goroutine, which holds a CPU while it is not
// blocked. Task implements context.Context so that it can be passed to
// schemes and the memory manager.
type Task struct {
	k    *Kernel
	tid  ThreadID
	name string

	// The following fields are immutable after NewTask.
	fdTable *FDTable
	mm      *mm.MemoryManager
	futex   *futex.Manager
	ns      *scheme.Namespace

	// cpu is the CPU the task goroutine is running on, or nil while it is
	// blocked or not running.
	cpu atomic.Pointer[CPU]

	// killed is set by Kernel.Kill.
	killed atomic.Bool

	// inSyscall is only accessed by the task goroutine.
	inSyscall bool

	// interruptChan is notified by Kernel.Kill to wake a blocked task.
	interruptChan chan struct{}

	// goroutineState is a TaskGoroutineState.
	goroutineState atomic.Int32

	// exited is closed when the task goroutine has returned.
	exited chan struct{}
}

// TaskConfig defines the configuration of a new Task.
type TaskConfig struct {
	// Name is used in logs.
	Name string

	// FDTable is the task's descriptor table. NewTask takes ownership of
	// the caller's reference. If nil, a new empty table is used.
	FDTable *FDTable

	// MemoryManager is the task's address space. If nil, a new empty
	// address space is used.
	MemoryManager *mm.MemoryManager

	// Futex is the futex manager for MemoryManager. Tasks sharing an
	// address space must share it. If nil, a new manager is used.
	Futex *futex.Manager

	// Namespace is the set of schemes the task can open. If nil, every
	// scheme in the kernel's registry is reachable.
	Namespace *scheme.Namespace
}

// NewTask creates a new task. The task goroutine is not started.
func (k *Kernel) NewTask(cfg TaskConfig) *Task {
	t := &Task{
		k:             k,
		name:          cfg.Name,
		fdTable:       cfg.FDTable,
		mm:            cfg.MemoryManager,
		futex:         cfg.Futex,
		ns:            cfg.Namespace,
		interruptChan: make(chan struct{}, 1),
		exited:        make(chan struct{}),
	}
	if t.fdTable == nil {
		t.fdTable = k.NewFDTable()
	}
	if t.mm == nil {
		t.mm = mm.NewMemoryManager()
	}
	if t.futex == nil {
		t.futex = futex.NewManager()
	}
	if t.ns == nil {
		t.ns = scheme.NewRootNamespace(k.registry)
	}

	k.tasksMu.Lock()
	t.tid = k.nextTID
	k.nextTID++
	k.tasks[t.tid] = t
	k.tasksMu.Unlock()
	return t
}

// Kernel returns the kernel that t belongs to.
func (t *Task) Kernel() *Kernel {
	return t.k
}

// ThreadID returns t's ID.
func (t *Task) ThreadID() ThreadID {
	return t.tid
}

// Name returns t's name.
func (t *Task) Name() string {
	return t.name
}

// FDTable returns t's descriptor table.
func (t *Task) FDTable() *FDTable {
	return t.fdTable
}

// MemoryManager returns t's address space.
func (t *Task) MemoryManager() *mm.MemoryManager {
	return t.mm
}

// IO returns a usermem.IO for t's address space.
func (t *Task) IO() usermem.IO {
	return t.mm
}

// Futex returns t's futex manager.
func (t *Task) Futex() *futex.Manager {
	return t.futex
}

// Namespace returns the schemes t can open.
func (t *Task) Namespace() *scheme.Namespace {
	return t.ns
}

// Killed returns true if a kill is pending for t.
func (t *Task) Killed() bool {
	return t.killed.Load()
}

// String implements fmt.Stringer.
func (t *Task) String() string {
	if t.name == "" {
		return fmt.Sprintf("task %d", t.tid)
	}
	return fmt.Sprintf("task %d (%s)", t.tid, t.name)
}

// Deadline implements context.Context.Deadline.
func (*Task) Deadline() (time.Time, bool) {
	return time.Time{}, false
}

// Done implements context.Context.Done.
func (*Task) Done() <-chan struct{} {
	return nil
}

// Err implements context.Context.Err.
func (*Task) Err() error {
	return nil
}

// Value implements context.Context.Value.
func (t *Task) Value(key any) any {
	switch key {
	case CtxKernel:
		return t.k
	case CtxTask:
		return t
	default:
		return nil
	}
}

// TaskFromContext returns the Task associated with ctx, or nil if there is
// none.
func TaskFromContext(ctx context.Context) *Task {
	if v := ctx.Value(CtxTask); v != nil {
		return v.(*Task)
	}
	return nil
}

// Debugf logs a debug message prefixed with t.
func (t *Task) Debugf(format string, v ...any) {
	if log.IsLogging(log.Debug) {
		log.DebugfAtDepth(1, "[%5d] "+format, append([]any{t.tid}, v...)...)
	}
}

// Warningf logs a warning prefixed with t.
func (t *Task) Warningf(format string, v ...any) {
	log.WarningfAtDepth(1, "[%5d] "+format, append([]any{t.tid}, v...)...)
}
