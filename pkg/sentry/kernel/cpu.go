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
	"sync"
	"sync/atomic"
)

// CPU is a slot on which one task goroutine runs at a time.
//
// CPUs are created by New and live as long as the Kernel. The per-CPU flags
// are read without locking; mu serializes changes of the current task with
// Kernel.Kill.
type CPU struct {
	id int

	// mu protects current.
	mu      sync.Mutex
	current *Task

	// insideSyscall is set while the current task is executing a syscall.
	insideSyscall atomic.Bool

	// beingKilled is set when the current task has a pending kill.
	beingKilled atomic.Bool
}

// ID returns the CPU index.
func (c *CPU) ID() int {
	return c.id
}

// InsideSyscall returns true if the task running on c is inside a syscall.
func (c *CPU) InsideSyscall() bool {
	return c.insideSyscall.Load()
}

// BeingKilled returns true if the task running on c has a pending kill.
func (c *CPU) BeingKilled() bool {
	return c.beingKilled.Load()
}

// String implements fmt.Stringer.
func (c *CPU) String() string {
	return fmt.Sprintf("cpu%d", c.id)
}

// install makes t the current task of c and copies t's state into the
// per-CPU flags.
func (c *CPU) install(t *Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	// t.cpu must be published before t.killed is sampled, so that a
	// concurrent Kill either sees c or its flag is sampled here.
	t.cpu.Store(c)
	c.insideSyscall.Store(t.inSyscall)
	c.beingKilled.Store(t.killed.Load())
}

// uninstall detaches t from c.
func (c *CPU) uninstall(t *Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != t {
		panic(fmt.Sprintf("%v: releasing task %v, current task is %v", c, t, c.current))
	}
	c.current = nil
	c.insideSyscall.Store(false)
	c.beingKilled.Store(false)
	t.cpu.Store(nil)
}

// markKilled sets beingKilled if t is still current on c.
func (c *CPU) markKilled(t *Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == t {
		c.beingKilled.Store(true)
	}
}
