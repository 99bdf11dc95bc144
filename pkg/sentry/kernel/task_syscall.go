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
	"sort"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/metric"
	"kestrel.dev/kestrel/pkg/sentry/arch"
)

const unknownSyscallName = "unknown"

func syscallMetricNames() []string {
	names := make([]string, 0, len(sk.SyscallNames)+1)
	for _, name := range sk.SyscallNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return append(names, unknownSyscallName)
}

var syscallCounter = metric.MustCreateNewUint64Metric(
	"/kernel/syscalls",
	"Number of syscalls dispatched, by syscall and result.",
	metric.NewField("syscall", syscallMetricNames()),
	metric.NewField("result", []string{"ok", "error"}),
)

// Syscall dispatches the syscall sysno with arguments args and returns the
// word handed back to the caller: the result on success, or the negated
// errno on failure.
//
// If a kill is pending when the syscall completes, Syscall does not return;
// the task goroutine exits instead.
//
// Preconditions: The caller must be running on the task goroutine.
func (t *Task) Syscall(sysno uintptr, args arch.SyscallArguments) uintptr {
	t.inSyscall = true
	t.CPU().insideSyscall.Store(true)
	t.setGoroutineState(TaskGoroutineRunningSys)

	regs := arch.MakeRegisters(sysno, args)
	if t.k.tracer != nil {
		t.k.tracer.SyscallEnter(t, regs)
	}

	val, err := t.executeSyscall(sysno, args)

	if t.k.tracer != nil {
		t.k.tracer.SyscallExit(t, regs, val, err)
	}

	// The task may have blocked and resumed on another CPU.
	cpu := t.CPU()
	t.inSyscall = false
	cpu.insideSyscall.Store(false)
	t.setGoroutineState(TaskGoroutineRunningApp)
	if cpu.beingKilled.Load() {
		t.exitContext()
	}
	return Mux(val, err)
}

// executeSyscall looks up and runs the handler for sysno.
func (t *Task) executeSyscall(sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	s := t.k.syscallTable
	fn := s.Lookup(sysno)
	if fn == nil {
		fn = s.Missing
	}
	val, err := fn(t, sysno, args)

	name, ok := sk.SyscallNames[sysno]
	if !ok {
		name = unknownSyscallName
	}
	if err != nil {
		syscallCounter.Increment(name, "error")
	} else {
		syscallCounter.Increment(name, "ok")
	}
	return val, err
}
