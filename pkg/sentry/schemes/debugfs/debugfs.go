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

// Package debugfs provides the "debug:" scheme, the kernel console.
//
// Paths:
//
//	""             reads typed input and writes preserved debug output
//	"no-preserve"  as "", but output does not reach the persistent log
//	"log"          reads the persistent log
package debugfs

import (
	"context"
	"sync"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/sentry/devices/debug"
	"kestrel.dev/kestrel/pkg/sentry/devices/klog"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/waiter"
)

// Name is the scheme name the console is usually registered under.
const Name = "debug"

// maxInput bounds the bytes queued for readers; older input is discarded.
const maxInput = 4096

type handleKind int

const (
	handleConsole handleKind = iota
	handleConsoleNoPreserve
	handleLog
)

var kindPaths = map[handleKind]string{
	handleConsole:           "",
	handleConsoleNoPreserve: "no-preserve",
	handleLog:               "log",
}

// Input is the queue of bytes typed at the console. It implements
// serial.Input.
type Input struct {
	waiter.Queue

	mu  sync.Mutex
	buf []byte
}

// Input implements serial.Input.Input.
func (in *Input) Input(b byte) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.buf) >= maxInput {
		in.buf = in.buf[1:]
	}
	in.buf = append(in.buf, b)
}

// Notify implements serial.Input.Notify.
func (in *Input) Notify() {
	in.Queue.Notify(waiter.EventIn)
}

func (in *Input) read(dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.buf) == 0 {
		return 0, kerr.ErrWouldBlock
	}
	n := copy(dst, in.buf)
	in.buf = in.buf[n:]
	if len(in.buf) == 0 {
		in.buf = nil
	}
	return n, nil
}

func (in *Input) ready() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.buf) != 0
}

// Scheme implements scheme.Scheme for the console.
type Scheme struct {
	scheme.Unsupported

	writer *debug.Writer
	log    *klog.Log
	input  Input

	mu sync.Mutex

	// The fields below are protected by mu.
	handles map[uintptr]handleKind
	next    uintptr
}

var _ scheme.Scheme = (*Scheme)(nil)

// New returns a console writing to w and reading the persistent log from
// l. l may be nil.
func New(w *debug.Writer, l *klog.Log) *Scheme {
	return &Scheme{
		writer:  w,
		log:     l,
		handles: make(map[uintptr]handleKind),
	}
}

// Input returns the console input queue, for connecting to a serial port.
func (s *Scheme) Input() *Input {
	return &s.input
}

func (s *Scheme) handle(number uintptr) (handleKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.handles[number]
	if !ok {
		return 0, kerr.EBADF
	}
	return k, nil
}

// Open implements scheme.Scheme.Open.
func (s *Scheme) Open(ctx context.Context, path string, flags uint32) (scheme.OpenResult, error) {
	var kind handleKind
	switch path {
	case "", "/":
		kind = handleConsole
	case "no-preserve", "/no-preserve":
		kind = handleConsoleNoPreserve
	case "log", "/log":
		if s.log == nil {
			return scheme.OpenResult{}, kerr.ENOENT
		}
		if flags&sk.O_ACCMODE&sk.O_WRONLY != 0 {
			return scheme.OpenResult{}, kerr.EACCES
		}
		kind = handleLog
	default:
		return scheme.OpenResult{}, kerr.ENOENT
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.handles[s.next] = kind
	return scheme.OpenResult{Number: s.next}, nil
}

// Read implements scheme.Scheme.Read.
func (s *Scheme) Read(ctx context.Context, number uintptr, dst []byte, offset int64, flags uint32) (int, error) {
	kind, err := s.handle(number)
	if err != nil {
		return 0, err
	}
	if kind == handleLog {
		n, _ := s.log.ReadAt(dst, uint64(offset))
		return n, nil
	}
	return s.input.read(dst)
}

// Write implements scheme.Scheme.Write.
func (s *Scheme) Write(ctx context.Context, number uintptr, src []byte, offset int64, flags uint32) (int, int64, error) {
	kind, err := s.handle(number)
	if err != nil {
		return 0, 0, err
	}
	if kind == handleLog {
		return 0, 0, kerr.EBADF
	}
	s.writer.WriteDebug(src, kind == handleConsole)
	return len(src), offset + int64(len(src)), nil
}

// Size implements scheme.Scheme.Size. Only the log is seekable.
func (s *Scheme) Size(ctx context.Context, number uintptr) (int64, error) {
	kind, err := s.handle(number)
	if err != nil {
		return 0, err
	}
	if kind != handleLog {
		return 0, kerr.ESPIPE
	}
	return int64(s.log.Written()), nil
}

// Fpath implements scheme.Scheme.Fpath.
func (s *Scheme) Fpath(ctx context.Context, number uintptr) (string, error) {
	kind, err := s.handle(number)
	if err != nil {
		return "", err
	}
	return Name + ":" + kindPaths[kind], nil
}

// Fstat implements scheme.Scheme.Fstat.
func (s *Scheme) Fstat(ctx context.Context, number uintptr) (sk.Stat, error) {
	kind, err := s.handle(number)
	if err != nil {
		return sk.Stat{}, err
	}
	if kind == handleLog {
		return sk.Stat{Mode: sk.MODE_FILE | 0o400, Nlink: 1, Size: s.log.Written()}, nil
	}
	return sk.Stat{Mode: sk.MODE_CHR | 0o600, Nlink: 1}, nil
}

// Fsync implements scheme.Scheme.Fsync.
func (s *Scheme) Fsync(ctx context.Context, number uintptr) error {
	_, err := s.handle(number)
	return err
}

// Readiness implements scheme.Scheme.Readiness.
func (s *Scheme) Readiness(number uintptr, mask waiter.EventMask) waiter.EventMask {
	kind, err := s.handle(number)
	if err != nil {
		return waiter.EventErr
	}
	ready := waiter.EventOut
	if kind == handleLog || s.input.ready() {
		ready |= waiter.EventIn
	}
	return ready & mask
}

// EventRegister implements scheme.Scheme.EventRegister.
func (s *Scheme) EventRegister(number uintptr, e *waiter.Entry, mask waiter.EventMask) error {
	if _, err := s.handle(number); err != nil {
		return err
	}
	s.input.EventRegister(e, mask)
	return nil
}

// EventUnregister implements scheme.Scheme.EventUnregister.
func (s *Scheme) EventUnregister(number uintptr, e *waiter.Entry) {
	s.input.EventUnregister(e)
}

// Close implements scheme.Scheme.Close.
func (s *Scheme) Close(number uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[number]; !ok {
		return kerr.EBADF
	}
	delete(s.handles, number)
	return nil
}
