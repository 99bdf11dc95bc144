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

// Package pipe provides the "pipe:" scheme: in-memory unidirectional pipes
// that can also carry file descriptions between tasks.
//
// Opening "pipe:" creates a pipe and returns its read end. Further ends are
// obtained with dup: "read" and "write" return new read and write ends of
// the same pipe, and "recvfd" on a read end receives the oldest description
// sent to the pipe with sendfd.
package pipe

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/waiter"
)

const (
	// Name is the scheme name pipes are usually registered under.
	Name = "pipe"

	// DefaultPipeSize is the default capacity of a pipe in bytes.
	DefaultPipeSize = 65536
)

// Pipe is a buffered byte queue shared between readers and writers.
type Pipe struct {
	waiter.Queue

	// max is the capacity of the pipe in bytes. When it is reached, writers
	// get ErrWouldBlock.
	max int

	mu sync.Mutex

	// The fields below are protected by mu.
	data      []byte
	fds       []scheme.Description
	readers   int
	writers   int
	hadWriter bool
}

// read copies queued bytes into dst.
func (p *Pipe) read(dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.data) == 0 {
		// A pipe that never had a writer blocks rather than reporting EOF,
		// since its write end may not have been created yet.
		if p.writers == 0 && p.hadWriter {
			return 0, nil
		}
		return 0, kerr.ErrWouldBlock
	}
	n := copy(dst, p.data)
	p.data = p.data[n:]
	if len(p.data) == 0 {
		p.data = nil
	}
	p.Notify(waiter.EventOut)
	return n, nil
}

// write queues as much of src as fits.
func (p *Pipe) write(src []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readers == 0 {
		return 0, kerr.EPIPE
	}
	if len(src) == 0 {
		return 0, nil
	}
	room := p.max - len(p.data)
	if room == 0 {
		return 0, kerr.ErrWouldBlock
	}
	if len(src) > room {
		src = src[:room]
	}
	p.data = append(p.data, src...)
	p.Notify(waiter.EventIn)
	return len(src), nil
}

// sendFD queues d for a reader.
func (p *Pipe) sendFD(d scheme.Description) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readers == 0 {
		return kerr.EPIPE
	}
	p.fds = append(p.fds, d)
	p.Notify(waiter.EventIn)
	return nil
}

// recvFD dequeues the oldest sent description.
func (p *Pipe) recvFD() (scheme.Description, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fds) == 0 {
		return nil, kerr.EAGAIN
	}
	d := p.fds[0]
	p.fds[0] = nil
	p.fds = p.fds[1:]
	return d, nil
}

// rReadinessLocked returns the readiness of a read end.
//
// Preconditions: p.mu must be locked.
func (p *Pipe) rReadinessLocked() waiter.EventMask {
	var ready waiter.EventMask
	if len(p.data) != 0 || len(p.fds) != 0 {
		ready |= waiter.EventIn
	}
	if p.writers == 0 && p.hadWriter {
		// HUp is suppressed until the pipe has had a writer, so a reader
		// polling before the write end exists does not see a hangup.
		ready |= waiter.EventHUp
	}
	return ready
}

// wReadinessLocked returns the readiness of a write end.
//
// Preconditions: p.mu must be locked.
func (p *Pipe) wReadinessLocked() waiter.EventMask {
	var ready waiter.EventMask
	if len(p.data) < p.max {
		ready |= waiter.EventOut
	}
	if p.readers == 0 {
		ready |= waiter.EventErr
	}
	return ready
}

// open registers a new end.
func (p *Pipe) open(reader bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reader {
		p.readers++
		return
	}
	p.writers++
	p.hadWriter = true
}

// release unregisters an end. It returns the descriptions still queued if
// the pipe has no ends left.
func (p *Pipe) release(reader bool) []scheme.Description {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reader {
		p.readers--
		if p.readers < 0 {
			panic(fmt.Sprintf("Refcounting bug, pipe has negative readers: %d", p.readers))
		}
		p.Notify(waiter.EventOut | waiter.EventErr)
	} else {
		p.writers--
		if p.writers < 0 {
			panic(fmt.Sprintf("Refcounting bug, pipe has negative writers: %d", p.writers))
		}
		p.Notify(waiter.EventIn | waiter.EventHUp)
	}
	if p.readers != 0 || p.writers != 0 {
		return nil
	}
	fds := p.fds
	p.fds = nil
	return fds
}

// end is one handle on a pipe.
type end struct {
	pipe   *Pipe
	reader bool
}

// Scheme implements scheme.Scheme for pipes.
type Scheme struct {
	scheme.Unsupported

	size int

	mu sync.Mutex

	// The fields below are protected by mu.
	ends map[uintptr]*end
	next uintptr
}

var _ scheme.Scheme = (*Scheme)(nil)

// New returns a pipe scheme whose pipes hold size bytes. A size of zero
// selects DefaultPipeSize.
func New(size int) *Scheme {
	if size <= 0 {
		size = DefaultPipeSize
	}
	return &Scheme{
		size: size,
		ends: make(map[uintptr]*end),
	}
}

func (s *Scheme) newEnd(p *Pipe, reader bool) uintptr {
	p.open(reader)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.ends[s.next] = &end{pipe: p, reader: reader}
	return s.next
}

func (s *Scheme) end(number uintptr) (*end, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ends[number]
	if !ok {
		return nil, kerr.EBADF
	}
	return e, nil
}

// Open implements scheme.Scheme.Open. Only the scheme root can be opened;
// each open creates a new pipe and returns its read end.
func (s *Scheme) Open(ctx context.Context, path string, flags uint32) (scheme.OpenResult, error) {
	if path != "" && path != "/" {
		return scheme.OpenResult{}, kerr.ENOENT
	}
	p := &Pipe{max: s.size}
	return scheme.OpenResult{Number: s.newEnd(p, true)}, nil
}

// Dup implements scheme.Scheme.Dup.
func (s *Scheme) Dup(ctx context.Context, number uintptr, buf []byte) (scheme.OpenResult, error) {
	e, err := s.end(number)
	if err != nil {
		return scheme.OpenResult{}, err
	}
	switch {
	case bytes.Equal(buf, []byte("read")):
		return scheme.OpenResult{Number: s.newEnd(e.pipe, true)}, nil
	case bytes.Equal(buf, []byte("write")):
		return scheme.OpenResult{Number: s.newEnd(e.pipe, false)}, nil
	case bytes.Equal(buf, []byte("recvfd")):
		if !e.reader {
			return scheme.OpenResult{}, kerr.EBADF
		}
		d, err := e.pipe.recvFD()
		if err != nil {
			return scheme.OpenResult{}, err
		}
		return scheme.OpenResult{External: d}, nil
	default:
		return scheme.OpenResult{}, kerr.EINVAL
	}
}

// SendFD implements scheme.Scheme.SendFD. Descriptions are sent through a
// write end and received on a read end with dup "recvfd".
func (s *Scheme) SendFD(ctx context.Context, number uintptr, d scheme.Description, flags, arg uintptr) (uintptr, error) {
	if flags != 0 {
		return 0, kerr.EINVAL
	}
	e, err := s.end(number)
	if err != nil {
		return 0, err
	}
	if e.reader {
		return 0, kerr.EBADF
	}
	if err := e.pipe.sendFD(d); err != nil {
		return 0, err
	}
	return 0, nil
}

// Read implements scheme.Scheme.Read.
func (s *Scheme) Read(ctx context.Context, number uintptr, dst []byte, offset int64, flags uint32) (int, error) {
	e, err := s.end(number)
	if err != nil {
		return 0, err
	}
	if !e.reader {
		return 0, kerr.EBADF
	}
	return e.pipe.read(dst)
}

// Write implements scheme.Scheme.Write.
func (s *Scheme) Write(ctx context.Context, number uintptr, src []byte, offset int64, flags uint32) (int, int64, error) {
	e, err := s.end(number)
	if err != nil {
		return 0, 0, err
	}
	if e.reader {
		return 0, 0, kerr.EBADF
	}
	n, err := e.pipe.write(src)
	return n, offset + int64(n), err
}

// Fpath implements scheme.Scheme.Fpath.
func (s *Scheme) Fpath(ctx context.Context, number uintptr) (string, error) {
	e, err := s.end(number)
	if err != nil {
		return "", err
	}
	if e.reader {
		return Name + ":read", nil
	}
	return Name + ":write", nil
}

// Fstat implements scheme.Scheme.Fstat.
func (s *Scheme) Fstat(ctx context.Context, number uintptr) (sk.Stat, error) {
	e, err := s.end(number)
	if err != nil {
		return sk.Stat{}, err
	}
	e.pipe.mu.Lock()
	defer e.pipe.mu.Unlock()
	return sk.Stat{
		Mode:    sk.MODE_FIFO | 0o600,
		Nlink:   1,
		Size:    uint64(len(e.pipe.data)),
		Blksize: uint32(e.pipe.max),
	}, nil
}

// Readiness implements scheme.Scheme.Readiness.
func (s *Scheme) Readiness(number uintptr, mask waiter.EventMask) waiter.EventMask {
	e, err := s.end(number)
	if err != nil {
		return waiter.EventErr
	}
	e.pipe.mu.Lock()
	defer e.pipe.mu.Unlock()
	var ready waiter.EventMask
	if e.reader {
		ready = e.pipe.rReadinessLocked()
	} else {
		ready = e.pipe.wReadinessLocked()
	}
	return ready & (mask | waiter.EventErr | waiter.EventHUp)
}

// EventRegister implements scheme.Scheme.EventRegister.
func (s *Scheme) EventRegister(number uintptr, we *waiter.Entry, mask waiter.EventMask) error {
	e, err := s.end(number)
	if err != nil {
		return err
	}
	e.pipe.EventRegister(we, mask)
	return nil
}

// EventUnregister implements scheme.Scheme.EventUnregister.
func (s *Scheme) EventUnregister(number uintptr, we *waiter.Entry) {
	if e, err := s.end(number); err == nil {
		e.pipe.EventUnregister(we)
	}
}

// Close implements scheme.Scheme.Close. Descriptions still queued when the
// last end of a pipe closes are released.
func (s *Scheme) Close(number uintptr) error {
	s.mu.Lock()
	e, ok := s.ends[number]
	delete(s.ends, number)
	s.mu.Unlock()
	if !ok {
		return kerr.EBADF
	}
	for _, d := range e.pipe.release(e.reader) {
		d.DecRef()
	}
	return nil
}
