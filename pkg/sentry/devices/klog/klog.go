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

// Package klog implements the persistent kernel log: a fixed-size ring of
// the most recent debug output, readable from the debug scheme.
package klog

import (
	"io"
	"sync"
)

// DefaultSize is the capacity of a Log created with size zero.
const DefaultSize = 1 << 20

// Log is a ring buffer holding the last Size() bytes written to it. Bytes
// are numbered from the start of the stream; readers use these positions
// as offsets.
type Log struct {
	mu sync.Mutex

	// The fields below are protected by mu.
	buf     []byte
	written uint64
	mirror  io.Writer
}

// New returns an empty Log of the given capacity.
func New(size int) *Log {
	if size <= 0 {
		size = DefaultSize
	}
	return &Log{buf: make([]byte, size)}
}

// SetMirror sets a writer that receives a copy of everything written. Errors
// from the mirror are ignored. A nil w removes the mirror.
func (l *Log) SetMirror(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mirror = w
}

// Size returns the capacity of the ring.
func (l *Log) Size() int {
	return len(l.buf)
}

// Write implements io.Writer.Write. It never fails; old bytes are
// overwritten.
func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mirror != nil {
		l.mirror.Write(p)
	}
	n := len(p)
	if n > len(l.buf) {
		l.written += uint64(n - len(l.buf))
		p = p[n-len(l.buf):]
	}
	for len(p) > 0 {
		off := int(l.written % uint64(len(l.buf)))
		c := copy(l.buf[off:], p)
		p = p[c:]
		l.written += uint64(c)
	}
	return n, nil
}

// tailLocked returns a copy of the last n bytes written, limited to what
// the ring holds.
//
// Preconditions: l.mu must be locked.
func (l *Log) tailLocked(n int) []byte {
	n = min(n, len(l.buf))
	out := make([]byte, n)
	l.readAtLocked(out, l.written-uint64(n))
	return out
}

// Written returns the stream position just past the last byte written.
func (l *Log) Written() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// ReadAt copies bytes starting at stream position pos into dst and returns
// the number copied and the position they actually started at. Positions
// older than the ring are moved forward to the oldest byte still held.
func (l *Log) ReadAt(dst []byte, pos uint64) (int, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if oldest := l.oldestLocked(); pos < oldest {
		pos = oldest
	}
	if pos >= l.written {
		return 0, pos
	}
	n := int(min(uint64(len(dst)), l.written-pos))
	l.readAtLocked(dst[:n], pos)
	return n, pos
}

// Preconditions: l.mu must be locked.
func (l *Log) oldestLocked() uint64 {
	if l.written < uint64(len(l.buf)) {
		return 0
	}
	return l.written - uint64(len(l.buf))
}

// Preconditions: l.mu must be locked, and [pos, pos+len(dst)) must be held
// by the ring.
func (l *Log) readAtLocked(dst []byte, pos uint64) {
	for len(dst) > 0 {
		off := int(pos % uint64(len(l.buf)))
		c := copy(dst, l.buf[off:])
		dst = dst[c:]
		pos += uint64(c)
	}
}

// Bytes returns the contents of the ring, oldest byte first.
func (l *Log) Bytes() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tailLocked(int(l.written - l.oldestLocked()))
}
