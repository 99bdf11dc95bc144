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

// Package skcall issues sk syscalls from inside a task, the way a program's
// system library would: arguments are staged in a scratch region of the
// task's address space and results are decoded from the returned word.
//
// A Caller is not safe for concurrent use.
package skcall

import (
	"fmt"
	"time"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/marshal"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/mm"
	"kestrel.dev/kestrel/pkg/usermem"
)

// ScratchSize is the size of a Caller's argument staging region. Reads and
// writes larger than this are split.
const ScratchSize = 16 * hostarch.PageSize

// Caller issues syscalls on behalf of a task.
type Caller struct {
	t       *kernel.Task
	scratch hostarch.Addr
}

// New maps a scratch region in t's address space and returns a Caller for
// t. It must be called from t's goroutine.
func New(t *kernel.Task) (*Caller, error) {
	addr, err := t.MemoryManager().MMap(t, mm.MMapOpts{
		Length:  ScratchSize,
		Perms:   hostarch.ReadWrite,
		Private: true,
		Name:    "skcall scratch",
	})
	if err != nil {
		return nil, fmt.Errorf("mapping scratch region: %w", err)
	}
	return &Caller{t: t, scratch: addr}, nil
}

// Task returns the calling task.
func (c *Caller) Task() *kernel.Task {
	return c.t
}

// Syscall issues a raw syscall.
func (c *Caller) Syscall(sysno uintptr, args ...uintptr) (uintptr, error) {
	var a arch.SyscallArguments
	if len(args) > len(a) {
		panic(fmt.Sprintf("syscall %#x: %d arguments", sysno, len(args)))
	}
	for i, v := range args {
		a[i].Value = v
	}
	return kernel.ReturnErrno(c.t.Syscall(sysno, a))
}

// stage copies chunks into consecutive, 8-byte aligned scratch slots and
// returns their addresses.
func (c *Caller) stage(chunks ...[]byte) ([]uintptr, error) {
	addrs := make([]uintptr, len(chunks))
	var off uint64
	for i, b := range chunks {
		if off+uint64(len(b)) > ScratchSize {
			return nil, fmt.Errorf("%d bytes of arguments do not fit in scratch", off+uint64(len(b)))
		}
		addr := c.scratch + hostarch.Addr(off)
		if _, err := c.t.MemoryManager().CopyOut(c.t, addr, b, usermem.IOOpts{}); err != nil {
			return nil, err
		}
		addrs[i] = uintptr(addr)
		off = (off + uint64(len(b)) + 7) &^ 7
	}
	return addrs, nil
}

// fetch copies n bytes out of scratch at off.
func (c *Caller) fetch(off uint64, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := c.t.MemoryManager().CopyIn(c.t, c.scratch+hostarch.Addr(off), b, usermem.IOOpts{}); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Caller) pathCall(sysno uintptr, path string, args ...uintptr) (uintptr, error) {
	addrs, err := c.stage([]byte(path))
	if err != nil {
		return 0, err
	}
	return c.Syscall(sysno, append([]uintptr{addrs[0], uintptr(len(path))}, args...)...)
}

// Open opens path and returns the new descriptor.
func (c *Caller) Open(path string, flags uint32) (uintptr, error) {
	return c.pathCall(sk.SYS_OPEN, path, uintptr(flags))
}

// Openat opens path relative to the directory dirfd.
func (c *Caller) Openat(dirfd uintptr, path string, flags uint32) (uintptr, error) {
	addrs, err := c.stage([]byte(path))
	if err != nil {
		return 0, err
	}
	return c.Syscall(sk.SYS_OPENAT, dirfd, addrs[0], uintptr(len(path)), uintptr(flags), 0)
}

// Close closes fd.
func (c *Caller) Close(fd uintptr) error {
	_, err := c.Syscall(sk.SYS_CLOSE, fd)
	return err
}

// Dup duplicates fd. A non-empty path asks the scheme for a derived
// description instead of a plain copy.
func (c *Caller) Dup(fd uintptr, path string) (uintptr, error) {
	addrs, err := c.stage([]byte(path))
	if err != nil {
		return 0, err
	}
	return c.Syscall(sk.SYS_DUP, fd, addrs[0], uintptr(len(path)))
}

// Unlink removes the file at path.
func (c *Caller) Unlink(path string) error {
	_, err := c.pathCall(sk.SYS_UNLINK, path)
	return err
}

// Rmdir removes the empty directory at path.
func (c *Caller) Rmdir(path string) error {
	_, err := c.pathCall(sk.SYS_RMDIR, path)
	return err
}

func (c *Caller) fdPathCall(sysno, fd uintptr, path string) error {
	addrs, err := c.stage([]byte(path))
	if err != nil {
		return err
	}
	_, err = c.Syscall(sysno, fd, addrs[0], uintptr(len(path)))
	return err
}

// Frename moves the file behind fd to path, in the same scheme.
func (c *Caller) Frename(fd uintptr, path string) error {
	return c.fdPathCall(sk.SYS_FRENAME, fd, path)
}

// Flink creates a hard link at path to the file behind fd.
func (c *Caller) Flink(fd uintptr, path string) error {
	return c.fdPathCall(sk.SYS_FLINK, fd, path)
}

// Fchmod changes the permission bits of the file behind fd.
func (c *Caller) Fchmod(fd uintptr, mode uint16) error {
	_, err := c.Syscall(sk.SYS_FCHMOD, fd, uintptr(mode))
	return err
}

// Read reads up to len(p) bytes from fd at the description offset. It
// returns after the first short transfer.
func (c *Caller) Read(fd uintptr, p []byte) (int, error) {
	var done int
	for done < len(p) {
		chunk := min(len(p)-done, ScratchSize)
		n, err := c.Syscall(sk.SYS_READ, fd, uintptr(c.scratch), uintptr(chunk))
		if err != nil {
			return done, err
		}
		b, err := c.fetch(0, int(n))
		if err != nil {
			return done, err
		}
		done += copy(p[done:], b)
		if int(n) < chunk {
			break
		}
	}
	return done, nil
}

// Write writes p to fd at the description offset.
func (c *Caller) Write(fd uintptr, p []byte) (int, error) {
	var done int
	for done < len(p) {
		chunk := p[done:min(len(p), done+ScratchSize)]
		if _, err := c.stage(chunk); err != nil {
			return done, err
		}
		n, err := c.Syscall(sk.SYS_WRITE, fd, uintptr(c.scratch), uintptr(len(chunk)))
		done += int(n)
		if err != nil {
			return done, err
		}
		if int(n) < len(chunk) {
			break
		}
	}
	return done, nil
}

// WriteString is Write for strings.
func (c *Caller) WriteString(fd uintptr, s string) (int, error) {
	return c.Write(fd, []byte(s))
}

// Lseek repositions the offset of fd.
func (c *Caller) Lseek(fd uintptr, offset int64, whence int) (int64, error) {
	n, err := c.Syscall(sk.SYS_LSEEK, fd, uintptr(offset), uintptr(whence))
	return int64(n), err
}

// Ftruncate sets the size of the file behind fd.
func (c *Caller) Ftruncate(fd uintptr, size int64) error {
	_, err := c.Syscall(sk.SYS_FTRUNCATE, fd, uintptr(size))
	return err
}

// Fsync flushes fd.
func (c *Caller) Fsync(fd uintptr) error {
	_, err := c.Syscall(sk.SYS_FSYNC, fd)
	return err
}

// outObject issues a call whose output is the Marshallable m, passed as
// (fd, addr, len).
func (c *Caller) outObject(sysno, fd uintptr, m marshal.Marshallable) error {
	if _, err := c.Syscall(sysno, fd, uintptr(c.scratch), uintptr(m.SizeBytes())); err != nil {
		return err
	}
	b, err := c.fetch(0, m.SizeBytes())
	if err != nil {
		return err
	}
	m.UnmarshalBytes(b)
	return nil
}

// Fstat returns the attributes of the file behind fd.
func (c *Caller) Fstat(fd uintptr) (sk.Stat, error) {
	var s sk.Stat
	err := c.outObject(sk.SYS_FSTAT, fd, &s)
	return s, err
}

// Fstatvfs returns the attributes of the filesystem behind fd.
func (c *Caller) Fstatvfs(fd uintptr) (sk.StatVfs, error) {
	var s sk.StatVfs
	err := c.outObject(sk.SYS_FSTATVFS, fd, &s)
	return s, err
}

// Fpath returns the canonical path of fd.
func (c *Caller) Fpath(fd uintptr) (string, error) {
	const size = 4096
	n, err := c.Syscall(sk.SYS_FPATH, fd, uintptr(c.scratch), size)
	if err != nil {
		return "", err
	}
	b, err := c.fetch(0, int(n))
	return string(b), err
}

// Dirent is a decoded directory entry.
type Dirent struct {
	Inode uint64
	Kind  uint8
	Name  string
}

// Getdents returns every entry of the directory fd.
func (c *Caller) Getdents(fd uintptr) ([]Dirent, error) {
	const size = 4096
	var (
		ents   []Dirent
		cursor uintptr
	)
	for {
		n, err := c.Syscall(sk.SYS_GETDENTS, fd, uintptr(c.scratch), size, sk.DirentHeaderSize, cursor)
		if err != nil {
			return ents, err
		}
		if n == 0 {
			return ents, nil
		}
		raw, err := c.fetch(0, int(n))
		if err != nil {
			return ents, err
		}
		for len(raw) >= sk.DirentHeaderSize {
			var hdr sk.DirentHeader
			rest := hdr.UnmarshalBytes(raw)
			nameLen := int(hdr.RecordLen) - sk.DirentHeaderSize - 1
			if nameLen < 0 || nameLen >= len(rest) {
				return ents, fmt.Errorf("malformed directory entry of %d bytes", hdr.RecordLen)
			}
			ents = append(ents, Dirent{Inode: hdr.Inode, Kind: hdr.Kind, Name: string(rest[:nameLen])})
			cursor = uintptr(hdr.NextOpaqueID)
			raw = raw[hdr.RecordLen:]
		}
	}
}

// Call issues a scheme-defined request on fd. payload is passed in and, with
// sk.CALL_READ, overwritten by the reply; metadata holds at most
// sk.CallCountMask words.
func (c *Caller) Call(fd uintptr, payload []byte, flags sk.CallFlags, metadata ...uint64) (int, error) {
	meta := make([]byte, 8*len(metadata))
	for i, w := range metadata {
		hostarch.ByteOrder.PutUint64(meta[8*i:], w)
	}
	addrs, err := c.stage(payload, meta)
	if err != nil {
		return 0, err
	}
	n, err := c.Syscall(sk.SYS_CALL, fd, addrs[0], uintptr(len(payload)), uintptr(flags)|uintptr(len(metadata)), addrs[1])
	if err != nil {
		return 0, err
	}
	if flags&sk.CALL_READ != 0 {
		b, err := c.fetch(0, len(payload))
		if err != nil {
			return 0, err
		}
		copy(payload, b)
	}
	return int(n), nil
}

// Yield gives up the CPU.
func (c *Caller) Yield() error {
	_, err := c.Syscall(sk.SYS_YIELD)
	return err
}

// ClockGettime reads clock.
func (c *Caller) ClockGettime(clock int32) (sk.Timespec, error) {
	var ts sk.Timespec
	if _, err := c.Syscall(sk.SYS_CLOCK_GETTIME, uintptr(clock), uintptr(c.scratch)); err != nil {
		return ts, err
	}
	b, err := c.fetch(0, sk.SizeOfTimespec)
	if err != nil {
		return ts, err
	}
	ts.UnmarshalBytes(b)
	return ts, nil
}

// Nanosleep sleeps for d.
func (c *Caller) Nanosleep(d time.Duration) error {
	req := sk.NsecToTimespec(d.Nanoseconds())
	buf := make([]byte, sk.SizeOfTimespec)
	req.MarshalBytes(buf)
	addrs, err := c.stage(buf)
	if err != nil {
		return err
	}
	_, err = c.Syscall(sk.SYS_NANOSLEEP, addrs[0], 0)
	return err
}
