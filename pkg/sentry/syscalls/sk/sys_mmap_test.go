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
	"bytes"
	"testing"

	"kestrel.dev/kestrel/pkg/abi/errno"
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/usermem"
)

// fmap maps m from fd.
func (c *caller) fmap(fd uintptr, m sk.Map) (uintptr, errno.Errno) {
	addr, n := c.obj(&m)
	return c.sys(sk.SYS_FMAP, fd, addr, n)
}

// peek reads n bytes of task memory at addr.
func (c *caller) peek(addr uintptr, n int) ([]byte, error) {
	buf := make([]byte, n)
	_, err := c.t.MemoryManager().CopyIn(c.t, hostarch.Addr(addr), buf, usermem.IOOpts{})
	return buf, err
}

// poke writes data to task memory at addr.
func (c *caller) poke(addr uintptr, data []byte) error {
	_, err := c.t.MemoryManager().CopyOut(c.t, hostarch.Addr(addr), data, usermem.IOOpts{})
	return err
}

func TestFmapAnonymous(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, func(c *caller) {
		rw := sk.PROT_READ | sk.PROT_WRITE | sk.MAP_PRIVATE
		addr, errn := c.fmap(sk.NoFD, sk.Map{Size: hostarch.PageSize, Flags: rw})
		if errn != 0 {
			t.Errorf("fmap: errno %v", errn)
			return
		}
		if addr%hostarch.PageSize != 0 {
			t.Errorf("fmap address %#x is not page aligned", addr)
		}
		if err := c.poke(addr, []byte("anon")); err != nil {
			t.Errorf("writing mapping: %v", err)
		}
		if got, err := c.peek(addr, 4); err != nil || string(got) != "anon" {
			t.Errorf("reading mapping = %q, %v, want anon", got, err)
		}

		c.must("mprotect", sk.SYS_MPROTECT, addr, hostarch.PageSize, uintptr(sk.PROT_READ))
		if err := c.poke(addr, []byte("x")); err == nil {
			t.Errorf("write to read-only mapping succeeded")
		}

		// Growing may move the mapping but keeps its contents.
		moved := c.must("mremap", sk.SYS_MREMAP, addr, hostarch.PageSize, 0, 2*hostarch.PageSize, uintptr(sk.PROT_READ|sk.PROT_WRITE))
		if got, err := c.peek(moved, 4); err != nil || string(got) != "anon" {
			t.Errorf("reading remapped = %q, %v, want anon", got, err)
		}
		if err := c.poke(moved+hostarch.PageSize, []byte("tail")); err != nil {
			t.Errorf("writing grown part: %v", err)
		}

		other, _ := c.fmap(sk.NoFD, sk.Map{Size: hostarch.PageSize, Flags: rw})
		c.expect("mremap onto mapping with NOREPLACE", errno.EEXIST, sk.SYS_MREMAP, moved, 2*hostarch.PageSize, other, hostarch.PageSize, uintptr(sk.MAP_FIXED_NOREPLACE))
		c.expect("mremap unknown flags", errno.EINVAL, sk.SYS_MREMAP, moved, 2*hostarch.PageSize, 0, hostarch.PageSize, 1<<40)

		c.must("funmap", sk.SYS_FUNMAP, moved, 2*hostarch.PageSize)
		if _, err := c.peek(moved, 1); err == nil {
			t.Errorf("read of unmapped memory succeeded")
		}

		c.expect("fmap zero length", errno.EINVAL, sk.SYS_FMAP, sk.NoFD, c.alloc(sk.SizeOfMap), sk.SizeOfMap)
		if _, got := c.fmap(sk.NoFD, sk.Map{Size: hostarch.PageSize, Flags: 1 << 40}); got != errno.EINVAL {
			t.Errorf("fmap with unknown flags: errno %v, want EINVAL", got)
		}
		short, _ := c.obj(&sk.Map{Size: hostarch.PageSize})
		c.expect("fmap short map", errno.EINVAL, sk.SYS_FMAP, sk.NoFD, short, sk.SizeOfMap-1)
		if _, got := c.fmap(sk.NoFD, sk.Map{Size: hostarch.PageSize, Flags: rw | sk.MAP_FIXED, Address: 1}); got != errno.EINVAL {
			t.Errorf("fmap fixed at unaligned address: errno %v, want EINVAL", got)
		}
	})
}

func TestFmapFile(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, func(c *caller) {
		fd := c.mustOpen("/data", sk.O_CREAT|sk.O_RDWR)
		c.write(fd, "mapped file")

		addr, errn := c.fmap(fd, sk.Map{Size: hostarch.PageSize, Flags: sk.PROT_READ})
		if errn != 0 {
			t.Errorf("fmap: errno %v", errn)
			return
		}
		got, err := c.peek(addr, hostarch.PageSize)
		if err != nil {
			t.Errorf("reading mapping: %v", err)
		}
		want := make([]byte, hostarch.PageSize)
		copy(want, "mapped file")
		if !bytes.Equal(got, want) {
			t.Errorf("mapping starts %q, want %q padded with zeroes", got[:16], "mapped file")
		}
		if err := c.poke(addr, []byte("x")); err == nil {
			t.Errorf("write to PROT_READ file mapping succeeded")
		}

		if _, got := c.fmap(fd, sk.Map{Flags: sk.PROT_READ}); got != errno.EINVAL {
			t.Errorf("zero-size file map: errno %v, want EINVAL", got)
		}
		if _, got := c.fmap(fd, sk.Map{Size: hostarch.PageSize, Flags: sk.PROT_READ | sk.MAP_SHARED}); got != errno.EOPNOTSUPP {
			t.Errorf("shared file map: errno %v, want EOPNOTSUPP", got)
		}
		if _, got := c.fmap(99, sk.Map{Size: hostarch.PageSize, Flags: sk.PROT_READ}); got != errno.EBADF {
			t.Errorf("fmap of closed handle: errno %v, want EBADF", got)
		}

		p := c.mustOpen("pipe:", sk.O_RDONLY)
		if _, got := c.fmap(p, sk.Map{Size: hostarch.PageSize, Flags: sk.PROT_READ}); got != errno.ENODEV {
			t.Errorf("fmap of pipe: errno %v, want ENODEV", got)
		}
	})
}

func TestFmapMemory(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, func(c *caller) {
		fd := c.mustOpen("memory:", sk.O_RDWR)
		before := c.t.MemoryManager().VirtualMemorySize()
		addr, errn := c.fmap(fd, sk.Map{Size: 2 * hostarch.PageSize, Flags: sk.PROT_READ | sk.PROT_WRITE})
		if errn != 0 {
			t.Errorf("fmap: errno %v", errn)
			return
		}
		if got := c.t.MemoryManager().VirtualMemorySize() - before; got != 2*hostarch.PageSize {
			t.Errorf("address space grew by %d, want %d", got, 2*hostarch.PageSize)
		}
		got, err := c.peek(addr, 2*hostarch.PageSize)
		if err != nil || !bytes.Equal(got, make([]byte, 2*hostarch.PageSize)) {
			t.Errorf("memory mapping is not zero filled: %v", err)
		}
		if _, got := c.fmap(fd, sk.Map{Offset: hostarch.PageSize, Size: hostarch.PageSize, Flags: sk.PROT_READ}); got != errno.EINVAL {
			t.Errorf("memory map at offset: errno %v, want EINVAL", got)
		}

		var vfs sk.StatVfs
		vaddr := c.alloc(sk.SizeOfStatVfs)
		c.must("fstatvfs", sk.SYS_FSTATVFS, fd, vaddr, sk.SizeOfStatVfs)
		c.getObj(vaddr, &vfs)
		used := c.t.MemoryManager().VirtualMemorySize() / hostarch.PageSize
		if vfs.Blocks-vfs.Bfree != used {
			t.Errorf("fstatvfs used blocks = %d, want %d", vfs.Blocks-vfs.Bfree, used)
		}
	})
}

func TestFmapLarge(t *testing.T) {
	e := newTestEnv(t)
	e.run(t, func(c *caller) {
		rw := sk.PROT_READ | sk.PROT_WRITE | sk.MAP_PRIVATE
		if _, got := c.fmap(sk.NoFD, sk.Map{Size: 1 << 45, Flags: rw}); got != errno.ENOMEM {
			t.Errorf("fmap past the address space limit: errno %v, want ENOMEM", got)
		}

		// Large mappings are backed only where they are touched.
		const size = 1 << 32
		addr, errn := c.fmap(sk.NoFD, sk.Map{Size: size, Flags: rw})
		if errn != 0 {
			t.Errorf("fmap of %#x bytes: errno %v", size, errn)
			return
		}
		if err := c.poke(addr+size-4, []byte("tail")); err != nil {
			t.Errorf("writing last page: %v", err)
		}
		if got, err := c.peek(addr+size-4, 4); err != nil || string(got) != "tail" {
			t.Errorf("reading last page = %q, %v, want tail", got, err)
		}
		c.expect("mremap past the address space limit", errno.ENOMEM, sk.SYS_MREMAP, addr, size, 0, 1<<45, 0)
		c.must("funmap", sk.SYS_FUNMAP, addr, size)
	})
}
