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

package mm

import (
	"context"
	"sync/atomic"
	"unsafe"

	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/usermem"
)

func wordPtr(b []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&b[0]))
}

// SwapUint32 implements usermem.IO.SwapUint32.
func (mm *MemoryManager) SwapUint32(ctx context.Context, addr hostarch.Addr, new uint32, opts usermem.IOOpts) (uint32, error) {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	b, err := mm.wordLocked(addr, hostarch.ReadWrite, opts)
	if err != nil {
		return 0, err
	}
	return atomic.SwapUint32(wordPtr(b), new), nil
}

// CompareAndSwapUint32 implements usermem.IO.CompareAndSwapUint32.
func (mm *MemoryManager) CompareAndSwapUint32(ctx context.Context, addr hostarch.Addr, old, new uint32, opts usermem.IOOpts) (uint32, error) {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	b, err := mm.wordLocked(addr, hostarch.ReadWrite, opts)
	if err != nil {
		return 0, err
	}
	p := wordPtr(b)
	for {
		prev := atomic.LoadUint32(p)
		if prev != old {
			return prev, nil
		}
		if atomic.CompareAndSwapUint32(p, old, new) {
			return prev, nil
		}
	}
}

// LoadUint32 implements usermem.IO.LoadUint32.
func (mm *MemoryManager) LoadUint32(ctx context.Context, addr hostarch.Addr, opts usermem.IOOpts) (uint32, error) {
	mm.mappingMu.RLock()
	defer mm.mappingMu.RUnlock()
	b, err := mm.wordLocked(addr, hostarch.Read, opts)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(wordPtr(b)), nil
}
