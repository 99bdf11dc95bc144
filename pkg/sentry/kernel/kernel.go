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

// Package kernel provides the core of the kernel: tasks, the CPUs they run
// on, their file descriptor tables and the syscall entry path.
//
// Lock order:
//
//	FDTable.mu
//	  CPU.mu
package kernel

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"kestrel.dev/kestrel/pkg/log"
	"kestrel.dev/kestrel/pkg/sentry/ktime"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
)

// DefaultMaxFiles is the default per-table descriptor limit.
const DefaultMaxFiles = 1024

// ThreadID is a task identifier.
type ThreadID int32

// Kernel represents an emulated kernel instance.
type Kernel struct {
	// The following fields are immutable after New.
	registry       *scheme.Registry
	cpus           []*CPU
	realtimeClock  ktime.Clock
	monotonicClock ktime.Clock
	syscallTable   *SyscallTable
	tracer         SyscallTracer
	maxFiles       int32

	// cpuPool holds the CPUs that are not running a task.
	cpuPool chan *CPU

	// fdMapUids is the source of FDTable.uid.
	fdMapUids atomic.Uint64

	// tasksMu protects the fields below.
	tasksMu sync.Mutex
	nextTID ThreadID
	tasks   map[ThreadID]*Task

	// tasksWG counts started task goroutines that have not exited.
	tasksWG sync.WaitGroup
}

// InitKernelArgs holds arguments to New.
type InitKernelArgs struct {
	// NumCPUs is the number of CPUs. If zero, runtime.NumCPU() is used.
	NumCPUs int

	// Registry holds the schemes reachable by tasks. Required.
	Registry *scheme.Registry

	// SyscallTable is the table used by Task.Syscall. Required.
	SyscallTable *SyscallTable

	// RealtimeClock and MonotonicClock default to host clocks.
	RealtimeClock  ktime.Clock
	MonotonicClock ktime.Clock

	// Tracer, if not nil, observes every syscall.
	Tracer SyscallTracer

	// MaxFiles is the default descriptor limit of new FDTables. If zero,
	// DefaultMaxFiles is used.
	MaxFiles int32
}

// New returns a Kernel configured by args.
func New(args InitKernelArgs) (*Kernel, error) {
	if args.Registry == nil {
		return nil, fmt.Errorf("scheme registry is required")
	}
	if args.SyscallTable == nil {
		return nil, fmt.Errorf("syscall table is required")
	}
	if args.NumCPUs < 0 {
		return nil, fmt.Errorf("invalid CPU count %d", args.NumCPUs)
	}
	if args.MaxFiles < 0 {
		return nil, fmt.Errorf("invalid file limit %d", args.MaxFiles)
	}
	k := &Kernel{
		registry:       args.Registry,
		realtimeClock:  args.RealtimeClock,
		monotonicClock: args.MonotonicClock,
		syscallTable:   args.SyscallTable,
		tracer:         args.Tracer,
		maxFiles:       args.MaxFiles,
		nextTID:        1,
		tasks:          make(map[ThreadID]*Task),
	}
	if k.realtimeClock == nil {
		k.realtimeClock = ktime.NewRealtimeClock()
	}
	if k.monotonicClock == nil {
		k.monotonicClock = ktime.NewMonotonicClock()
	}
	if k.maxFiles == 0 {
		k.maxFiles = DefaultMaxFiles
	}
	n := args.NumCPUs
	if n == 0 {
		n = runtime.NumCPU()
	}
	k.cpus = make([]*CPU, n)
	k.cpuPool = make(chan *CPU, n)
	for i := range k.cpus {
		c := &CPU{id: i}
		k.cpus[i] = c
		k.cpuPool <- c
	}
	log.Infof("Kernel created: %d CPUs, syscall table %q", n, k.syscallTable.Name)
	return k, nil
}

// Registry returns the scheme registry.
func (k *Kernel) Registry() *scheme.Registry {
	return k.registry
}

// RealtimeClock returns the clock used for CLOCK_REALTIME.
func (k *Kernel) RealtimeClock() ktime.Clock {
	return k.realtimeClock
}

// MonotonicClock returns the clock used for CLOCK_MONOTONIC and sleeps.
func (k *Kernel) MonotonicClock() ktime.Clock {
	return k.monotonicClock
}

// SyscallTable returns the syscall table used by tasks in k.
func (k *Kernel) SyscallTable() *SyscallTable {
	return k.syscallTable
}

// CPUs returns all CPUs of k.
func (k *Kernel) CPUs() []*CPU {
	return append([]*CPU(nil), k.cpus...)
}

// TaskWithID returns the live task with the given ID, or nil.
func (k *Kernel) TaskWithID(tid ThreadID) *Task {
	k.tasksMu.Lock()
	defer k.tasksMu.Unlock()
	return k.tasks[tid]
}

// Tasks returns all live tasks ordered by ID.
func (k *Kernel) Tasks() []*Task {
	k.tasksMu.Lock()
	ts := make([]*Task, 0, len(k.tasks))
	for _, t := range k.tasks {
		ts = append(ts, t)
	}
	k.tasksMu.Unlock()
	sort.Slice(ts, func(i, j int) bool { return ts[i].tid < ts[j].tid })
	return ts
}

// Kill arranges for t to exit at its next syscall exit. A blocked task is
// woken and its blocking operation fails with EINTR.
func (k *Kernel) Kill(t *Task) {
	if t.k != k {
		panic(fmt.Sprintf("task %v does not belong to this kernel", t))
	}
	if t.killed.Swap(true) {
		return
	}
	log.Debugf("%v: kill requested", t)
	if c := t.cpu.Load(); c != nil {
		c.markKilled(t)
	}
	select {
	case t.interruptChan <- struct{}{}:
	default:
	}
}

// WaitExited blocks until all started tasks have exited.
func (k *Kernel) WaitExited() {
	k.tasksWG.Wait()
}
