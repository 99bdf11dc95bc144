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
	"testing"

	"kestrel.dev/kestrel/pkg/sentry/arch"
)

const (
	maxTestSyscall = 1000
)

func createSyscallTable() *SyscallTable {
	m := make(map[uintptr]Syscall)
	for i := uintptr(0); i <= maxTestSyscall; i++ {
		j := i
		m[i] = Syscall{
			Fn: func(*Task, uintptr, arch.SyscallArguments) (uintptr, error) {
				return j, nil
			},
		}
	}

	s := &SyscallTable{
		Name:  "test",
		Table: m,
	}

	RegisterSyscallTable(s)
	return s
}

func TestTable(t *testing.T) {
	table := createSyscallTable()
	defer func() {
		// Cleanup registered tables to keep tests separate.
		allSyscallTables = []*SyscallTable{}
	}()

	// Go through all functions and check that they return the right value.
	for i := uintptr(0); i < maxTestSyscall; i++ {
		fn := table.Lookup(i)
		if fn == nil {
			t.Errorf("Syscall %v is set to nil", i)
			continue
		}

		v, _ := fn(nil, i, arch.SyscallArguments{})
		if v != i {
			t.Errorf("Wrong return value for syscall %v: expected %v, got %v", i, i, v)
		}
	}

	// Check that values outside the range return nil.
	for i := uintptr(maxTestSyscall + 1); i < maxTestSyscall+100; i++ {
		fn := table.Lookup(i)
		if fn != nil {
			t.Errorf("Syscall %v is not nil", i)
			continue
		}
	}

	if got, ok := LookupSyscallTable("test"); !ok || got != table {
		t.Errorf("LookupSyscallTable(test): got %p, %v, want %p, true", got, ok, table)
	}
}

func TestTableAboveDenseRange(t *testing.T) {
	const high = maxSyscallNum + 10
	s := &SyscallTable{
		Table: map[uintptr]Syscall{
			high: {
				Name: "high",
				Fn: func(*Task, uintptr, arch.SyscallArguments) (uintptr, error) {
					return 7, nil
				},
			},
		},
	}
	s.Init()
	fn := s.Lookup(high)
	if fn == nil {
		t.Fatalf("Lookup(%d) = nil, want handler", high)
	}
	if v, _ := fn(nil, high, arch.SyscallArguments{}); v != 7 {
		t.Errorf("handler returned %d, want 7", v)
	}
	if got := s.LookupName(high); got != "high" {
		t.Errorf("LookupName(%d) = %q, want %q", high, got, "high")
	}
	if _, err := s.Missing(nil, 1, arch.SyscallArguments{}); err == nil {
		t.Errorf("Missing returned nil error, want ENOSYS")
	}
}

func BenchmarkTableLookup(b *testing.B) {
	table := createSyscallTable()

	b.ResetTimer()

	j := uintptr(0)
	for i := 0; i < b.N; i++ {
		table.Lookup(j)
		j = (j + 1) % 310
	}

	b.StopTimer()
	// Cleanup registered tables to keep tests separate.
	allSyscallTables = []*SyscallTable{}
}

func BenchmarkTableMapLookup(b *testing.B) {
	table := createSyscallTable()

	b.ResetTimer()

	j := uintptr(0)
	for i := 0; i < b.N; i++ {
		table.mapLookup(j)
		j = (j + 1) % 310
	}

	b.StopTimer()
	// Cleanup registered tables to keep tests separate.
	allSyscallTables = []*SyscallTable{}
}
