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

// Package memory provides the "memory:" scheme. Mapping a memory handle
// creates zero-filled memory, and fstatvfs and call report the address
// space usage of the calling task.
package memory

import (
	"context"
	"sync"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
)

// Name is the scheme name memory is usually registered under.
const Name = "memory"

// CallUsage is the call request, selected by the first metadata word, that
// writes the caller's usage into the payload as two little-endian 64-bit
// words: mapped bytes and mapping count.
const CallUsage = 0

// usageSize is the payload size of a CallUsage request.
const usageSize = 16

// DefaultCapacity is the memory size reported when none is configured.
const DefaultCapacity = 1 << 30

// Scheme implements scheme.Scheme for memory.
type Scheme struct {
	scheme.Unsupported

	capacity uint64

	mu sync.Mutex

	// The fields below are protected by mu.
	handles map[uintptr]struct{}
	next    uintptr
}

var _ scheme.Scheme = (*Scheme)(nil)

// New returns a memory scheme reporting capacity bytes in total.
func New(capacity uint64) *Scheme {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	return &Scheme{
		capacity: capacity,
		handles:  make(map[uintptr]struct{}),
	}
}

func (s *Scheme) check(number uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handles[number]; !ok {
		return kerr.EBADF
	}
	return nil
}

// Open implements scheme.Scheme.Open. Only the root can be opened.
func (s *Scheme) Open(ctx context.Context, path string, flags uint32) (scheme.OpenResult, error) {
	if path != "" && path != "/" {
		return scheme.OpenResult{}, kerr.ENOENT
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.handles[s.next] = struct{}{}
	return scheme.OpenResult{Number: s.next}, nil
}

// Mmap implements scheme.Scheme.Mmap. The mapping starts zero-filled.
func (s *Scheme) Mmap(ctx context.Context, number uintptr, offset, length uint64, flags sk.MapFlags) ([]byte, error) {
	if err := s.check(number); err != nil {
		return nil, err
	}
	if offset != 0 {
		return nil, kerr.EINVAL
	}
	return nil, nil
}

// Fpath implements scheme.Scheme.Fpath.
func (s *Scheme) Fpath(ctx context.Context, number uintptr) (string, error) {
	if err := s.check(number); err != nil {
		return "", err
	}
	return Name + ":", nil
}

// usage returns the address space usage of the task in ctx.
func usage(ctx context.Context) (size uint64, count int, err error) {
	t := kernel.TaskFromContext(ctx)
	if t == nil {
		return 0, 0, kerr.ESRCH
	}
	mm := t.MemoryManager()
	return mm.VirtualMemorySize(), len(mm.Mappings()), nil
}

// Fstatvfs implements scheme.Scheme.Fstatvfs. Free space is the capacity
// less what the caller has mapped.
func (s *Scheme) Fstatvfs(ctx context.Context, number uintptr) (sk.StatVfs, error) {
	if err := s.check(number); err != nil {
		return sk.StatVfs{}, err
	}
	used, _, err := usage(ctx)
	if err != nil {
		return sk.StatVfs{}, err
	}
	var free uint64
	if used < s.capacity {
		free = (s.capacity - used) / hostarch.PageSize
	}
	return sk.StatVfs{
		Bsize:  hostarch.PageSize,
		Blocks: s.capacity / hostarch.PageSize,
		Bfree:  free,
		Bavail: free,
	}, nil
}

// Call implements scheme.Scheme.Call.
func (s *Scheme) Call(ctx context.Context, number uintptr, payload []byte, flags sk.CallFlags, metadata []uint64) (uintptr, error) {
	if err := s.check(number); err != nil {
		return 0, err
	}
	if len(metadata) == 0 || metadata[0] != CallUsage {
		return 0, kerr.EINVAL
	}
	if len(payload) != usageSize || flags&sk.CALL_READ == 0 {
		return 0, kerr.EINVAL
	}
	size, count, err := usage(ctx)
	if err != nil {
		return 0, err
	}
	hostarch.ByteOrder.PutUint64(payload[0:8], size)
	hostarch.ByteOrder.PutUint64(payload[8:16], uint64(count))
	return usageSize, nil
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
