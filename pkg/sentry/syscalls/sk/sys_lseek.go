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
	"kestrel.dev/kestrel/pkg/sentry/arch"
	"kestrel.dev/kestrel/pkg/sentry/kernel"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
)

// Lseek implements lseek(fd, offset, whence).
func Lseek(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	offset := args[1].Int64()
	whence := args[2].Value
	return fileOpGenericExt(t, args[0], func(s scheme.Scheme, number uintptr, desc *kernel.FileDescription) (uintptr, error) {
		size, err := s.Size(t, number)
		if err != nil {
			return 0, err
		}
		var base int64
		switch whence {
		case sk.SEEK_SET:
		case sk.SEEK_CUR:
			base = desc.Offset()
		case sk.SEEK_END:
			base = size
		default:
			return 0, kerr.EINVAL
		}
		off := base + offset
		if (offset > 0 && off < base) || off < 0 {
			return 0, kerr.EINVAL
		}
		desc.SetOffset(off)
		return uintptr(off), nil
	})
}
