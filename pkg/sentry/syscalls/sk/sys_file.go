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
	"kestrel.dev/kestrel/pkg/usermem"
	"kestrel.dev/kestrel/pkg/waiter"
)

// Close implements close(fd).
func Close(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	fd, err := handle(args[0])
	if err != nil {
		return 0, err
	}
	desc := t.FDTable().Remove(fd)
	if desc == nil {
		return 0, kerr.EBADF
	}
	desc.DecRef()
	return 0, nil
}

// dupDesc returns the description a dup request produces. An empty request
// aliases desc; otherwise the scheme derives a new handle from it.
func dupDesc(t *kernel.Task, r usermem.ReadRegion, desc *kernel.FileDescription) (*kernel.FileDescription, error) {
	if r.Len() == 0 {
		desc.IncRef()
		return desc, nil
	}
	if r.Len() > maxPathLen {
		return nil, kerr.ENAMETOOLONG
	}
	buf, err := r.ReadBytes(t)
	if err != nil {
		return nil, err
	}
	res, err := desc.Scheme().Dup(t, desc.Number(), buf)
	if err != nil {
		return nil, err
	}
	return newDescription(desc.Scheme(), desc.SchemeID(), res, desc.Flags(), false)
}

// Dup implements dup(fd, buf, len).
func Dup(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	r, err := readRegion(t, args[1], args[2])
	if err != nil {
		return 0, err
	}
	return fileOpGenericExt(t, args[0], func(_ scheme.Scheme, _ uintptr, desc *kernel.FileDescription) (uintptr, error) {
		fd, err := dupDesc(t, r, desc)
		if err != nil {
			return 0, err
		}
		return install(t, fd, kernel.FDFlags{})
	})
}

// Dup2 implements dup2(fd, newfd, buf, len). Whatever newfd referred to is
// closed.
func Dup2(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	newfd, err := handle(args[1])
	if err != nil {
		return 0, err
	}
	r, err := readRegion(t, args[2], args[3])
	if err != nil {
		return 0, err
	}
	return fileOpGenericExt(t, args[0], func(_ scheme.Scheme, _ uintptr, desc *kernel.FileDescription) (uintptr, error) {
		fd, err := dupDesc(t, r, desc)
		if err != nil {
			return 0, err
		}
		defer fd.DecRef()
		if err := t.FDTable().NewFDAt(newfd, fd, kernel.FDFlags{}); err != nil {
			return 0, err
		}
		return uintptr(newfd), nil
	})
}

// Sendfd implements sendfd(receiver, fd, flags, arg).
//
// The description behind fd is handed to the scheme behind receiver and fd
// is removed from the caller's table. If the scheme refuses it, fd is left
// in place.
func Sendfd(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	fd, err := handle(args[1])
	if err != nil {
		return 0, err
	}
	flags, arg := args[2].Value, args[3].Value
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		sent, _ := t.FDTable().Get(fd)
		if sent == nil {
			return 0, kerr.EBADF
		}
		v, err := s.SendFD(t, number, sent, flags, arg)
		if err != nil {
			sent.DecRef()
			return 0, err
		}
		// The scheme now owns the reference taken by Get. If fd was
		// replaced meanwhile, the replacement stays.
		t.FDTable().RemoveIfSame(fd, sent)
		return v, nil
	})
}

// Fcntl implements fcntl(fd, cmd, arg).
func Fcntl(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	fd, err := handle(args[0])
	if err != nil {
		return 0, err
	}
	cmd, arg := args[1].Value, args[2].Value
	desc, flags := t.FDTable().Get(fd)
	if desc == nil {
		return 0, kerr.EBADF
	}
	defer desc.DecRef()

	switch cmd {
	case sk.F_DUPFD, sk.F_DUPFD_CLOEXEC:
		from, err := handle(args[2])
		if err != nil {
			return 0, kerr.EINVAL
		}
		fds, err := t.FDTable().NewFDs(from, []*kernel.FileDescription{desc}, kernel.FDFlags{CloseOnExec: cmd == sk.F_DUPFD_CLOEXEC})
		if err != nil {
			return 0, err
		}
		return uintptr(fds[0]), nil
	case sk.F_GETFD:
		return uintptr(flags.ToFDFlags()), nil
	case sk.F_SETFD:
		return 0, t.FDTable().SetFlags(fd, kernel.FDFlags{CloseOnExec: arg&sk.FD_CLOEXEC != 0})
	case sk.F_GETFL:
		return uintptr(desc.Flags()), nil
	case sk.F_SETFL:
		desc.SetFlags(uint32(arg))
		return 0, nil
	default:
		return 0, kerr.EINVAL
	}
}

// Fevent implements fevent(fd, events). It returns the requested events
// that are ready now.
func Fevent(t *kernel.Task, sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	events := sk.EventFlags(args[1].Value) & sk.EVENT_ALL
	mask := waiter.FromEventFlags(events) | waiter.EventErr | waiter.EventHUp
	return fileOpGeneric(t, args[0], func(s scheme.Scheme, number uintptr) (uintptr, error) {
		ready := s.Readiness(number, mask)
		return uintptr(ready.ToEventFlags() & events), nil
	})
}
