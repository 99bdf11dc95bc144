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
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/kernel/futex"
	"kestrel.dev/kestrel/pkg/usermem"
)

// futexWord implements futex.Checker for a word of the task's address space.
type futexWord struct {
	t    *kernel.Task
	word usermem.AtomicUint32
}

// Check implements futex.Checker.Check.
func (f futexWord) Check(addr hostarch.Addr, val uint32) error {
	cur, err := f.word.Load(f.t)
	if err != nil {
		return err
	}
	if cur != val {
		return kerr.EAGAIN
	}
	return nil
}

// Futex implements futex(addr, op, val, val2, addr2).
//
// For FUTEX_WAIT, val2 is a pointer to a relative Timespec timeout, or 0 to
// wait indefinitely. For FUTEX_REQUEUE, val is the number of waiters to wake
// and val2 the number to move to addr2.
func Futex(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	addr := args[0].Pointer()
	word, err := usermem.NewAtomicUint32(t.IO(), addr)
	if err != nil {
		return 0, err
	}
	val := args[2].Value

	switch args[1].Value {
	case sk.FUTEX_WAIT:
		return 0, futexWait(t, futexWord{t, word}, addr, uint32(val), args[3])

	case sk.FUTEX_WAKE:
		n, err := t.Futex().Wake(addr, clampCount(val))
		return uintptr(n), err

	case sk.FUTEX_REQUEUE:
		addr2 := args[4].Pointer()
		if _, err := usermem.NewAtomicUint32(t.IO(), addr2); err != nil {
			return 0, err
		}
		n, err := t.Futex().Requeue(addr, addr2, clampCount(val), clampCount(args[3].Value))
		return uintptr(n), err

	default:
		return 0, kerr.EINVAL
	}
}

// futexWait blocks t until addr is woken, the optional timeout expires or t
// is killed.
func futexWait(t *kernel.Task, c futexWord, addr hostarch.Addr, val uint32, timeout arch.SyscallArgument) error {
	var (
		haveTimeout bool
		ts          sk.Timespec
	)
	if timeout.Value != 0 {
		var err error
		if ts, err = copyInTimespec(t, timeout); err != nil {
			return err
		}
		haveTimeout = true
	}

	w := futex.NewWaiter()
	if err := t.Futex().WaitPrepare(w, c, addr, val); err != nil {
		return err
	}
	defer t.Futex().WaitComplete(w)

	if haveTimeout {
		clock := t.Kernel().MonotonicClock()
		return t.BlockWithDeadline(w.C, clock, clock.Now().Add(ts.ToDuration()))
	}
	return t.Block(w.C)
}

// clampCount converts a waiter count word to an int.
func clampCount(v uintptr) int {
	const maxCount = int(^uint32(0) >> 1)
	if v > uintptr(maxCount) {
		return maxCount
	}
	return int(v)
}
