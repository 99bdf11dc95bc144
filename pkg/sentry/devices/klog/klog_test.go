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

package klog

import (
	"bytes"
	"testing"
)

func TestWriteWithinCapacity(t *testing.T) {
	l := New(16)
	l.Write([]byte("hello "))
	l.Write([]byte("world"))
	if got, want := string(l.Bytes()), "hello world"; got != want {
		t.Errorf("Bytes = %q, want %q", got, want)
	}
	if got := l.Written(); got != 11 {
		t.Errorf("Written = %d, want 11", got)
	}
}

func TestWrap(t *testing.T) {
	l := New(8)
	l.Write([]byte("0123456"))
	l.Write([]byte("789ab"))
	if got, want := string(l.Bytes()), "456789ab"; got != want {
		t.Errorf("Bytes = %q, want %q", got, want)
	}

	buf := make([]byte, 3)
	n, pos := l.ReadAt(buf, 0)
	if pos != 4 || string(buf[:n]) != "456" {
		t.Errorf("ReadAt(0) = (%q, %d), want (456, 4)", buf[:n], pos)
	}
	n, pos = l.ReadAt(buf, 10)
	if pos != 10 || string(buf[:n]) != "ab" {
		t.Errorf("ReadAt(10) = (%q, %d), want (ab, 10)", buf[:n], pos)
	}
	if n, _ := l.ReadAt(buf, 12); n != 0 {
		t.Errorf("ReadAt at the end returned %d bytes, want 0", n)
	}
}

func TestOversizedWrite(t *testing.T) {
	l := New(4)
	if n, err := l.Write([]byte("abcdefgh")); n != 8 || err != nil {
		t.Fatalf("Write = (%d, %v), want (8, nil)", n, err)
	}
	if got := string(l.Bytes()); got != "efgh" {
		t.Errorf("Bytes = %q, want efgh", got)
	}
}

func TestMirror(t *testing.T) {
	var mirror bytes.Buffer
	l := New(4)
	l.SetMirror(&mirror)
	l.Write([]byte("ab"))
	l.Write([]byte("cdefg"))
	if got := mirror.String(); got != "abcdefg" {
		t.Errorf("mirror got %q, want abcdefg", got)
	}
}
