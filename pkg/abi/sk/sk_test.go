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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestStructSizes(t *testing.T) {
	for _, test := range []struct {
		name string
		got  int
		want int
	}{
		{"Timespec", (*Timespec)(nil).SizeBytes(), 16},
		{"Map", (*Map)(nil).SizeBytes(), 32},
		{"NsPair", (*NsPair)(nil).SizeBytes(), 16},
		{"DirentHeader", (*DirentHeader)(nil).SizeBytes(), DirentHeaderSize},
		{"Stat", (*Stat)(nil).SizeBytes(), 104},
		{"StatVfs", (*StatVfs)(nil).SizeBytes(), 32},
	} {
		if test.got != test.want {
			t.Errorf("%s.SizeBytes() = %d, want %d", test.name, test.got, test.want)
		}
	}
}

func TestStatLayout(t *testing.T) {
	want := Stat{
		Dev:     1,
		Ino:     2,
		Mode:    MODE_FILE | 0644,
		Nlink:   1,
		Size:    5,
		Blksize: 4096,
		Mtime:   Timespec{Sec: 10, Nsec: 20},
	}
	buf := make([]byte, SizeOfStat)
	if rest := want.MarshalBytes(buf); len(rest) != 0 {
		t.Fatalf("MarshalBytes left %d bytes", len(rest))
	}
	// Mtime.Sec lives after the 56 byte prefix and Atime.
	if got := buf[72]; got != 10 {
		t.Errorf("Mtime.Sec byte = %d, want 10", got)
	}
	var got Stat
	got.UnmarshalBytes(buf)
	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(Stat{})); diff != "" {
		t.Errorf("Stat mismatch (-want +got):\n%s", diff)
	}
}

func TestRwFlagsFromWord(t *testing.T) {
	for _, test := range []struct {
		word uintptr
		want RwFlags
		ok   bool
	}{
		{0, 0, true},
		{uintptr(RWF_NONBLOCK), RWF_NONBLOCK, true},
		{uintptr(RWF_APPEND | RWF_UNCACHED), RWF_APPEND | RWF_UNCACHED, true},
		{1, 0, false},
		{1 << 32, 0, false},
		{UseDescriptorFlags, 0, false},
	} {
		got, ok := RwFlagsFromWord(test.word)
		if got != test.want || ok != test.ok {
			t.Errorf("RwFlagsFromWord(%#x) = (%#x, %t), want (%#x, %t)", test.word, got, ok, test.want, test.ok)
		}
	}
}

func TestCallFlagsFromWord(t *testing.T) {
	flags, count, ok := CallFlagsFromWord(uintptr(CALL_READ|CALL_WRITE) | 3)
	if !ok || flags != CALL_READ|CALL_WRITE || count != 3 {
		t.Errorf("CallFlagsFromWord = (%#x, %d, %t), want (%#x, 3, true)", flags, count, ok, CALL_READ|CALL_WRITE)
	}
	if _, _, ok := CallFlagsFromWord(1 << 20); ok {
		t.Errorf("CallFlagsFromWord accepted an unknown flag")
	}
}
