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
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
	"kestrel.dev/kestrel/pkg/usermem"
)

// Call implements call(fd, payload, len, flags|count, metadata).
//
// The low byte of the flags word is the number of 64-bit metadata words at
// metadata; the remaining bits are sk.CallFlags. The payload is passed to
// the scheme and copied back afterwards unless the call only writes it.
func Call(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	payload, err := usermem.NewRWRegion(t.IO(), args[1].Pointer(), args[2].Uint64())
	if err != nil {
		return 0, err
	}
	flags, count, ok := sk.CallFlagsFromWord(args[3].Value)
	if !ok {
		return 0, kerr.EINVAL
	}
	meta, err := usermem.NewReadRegion(t.IO(), args[4].Pointer(), uint64(count)*8)
	if err != nil {
		return 0, err
	}
	if payload.Len() > maxIOChunk {
		return 0, kerr.EINVAL
	}

	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		raw, err := meta.ReadBytes(t)
		if err != nil {
			return 0, err
		}
		metadata := make([]uint64, count)
		for i := range metadata {
			metadata[i] = hostarch.ByteOrder.Uint64(raw[i*8:])
		}

		buf, err := payload.Read().ReadBytes(t)
		if err != nil {
			return 0, err
		}
		v, err := s.Call(t, number, buf, flags, metadata)
		if err != nil {
			return 0, err
		}
		if flags&sk.CALL_WRITE == 0 || flags&sk.CALL_READ != 0 {
			if _, err := payload.Write().CopyOut(t, buf); err != nil {
				return 0, err
			}
		}
		return v, nil
	})
}
