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

// Package kerr contains the kernel's syscall error codes exported as error
// interface pointers. This allows for fast comparison and return operations
// comparable to unix.Errno constants.
package kerr

import (
	goerrors "errors"

	"golang.org/x/sys/unix"
	"kestrel.dev/kestrel/pkg/abi/errno"
	"kestrel.dev/kestrel/pkg/errors"
)

const maxErrno uint32 = uint32(errno.ENOTRECOVERABLE) + 1

// The following errors are semantically identical to the unix.Errno of the
// same name. Since the types are distinct (these are *errors.Error) they are
// not directly comparable; Errno returns a number such that
// unix.Errno(EPERM.Errno()) == unix.EPERM.
var (
	EPERM           = errors.New(errno.EPERM, "operation not permitted")
	ENOENT          = errors.New(errno.ENOENT, "no such file or directory")
	ESRCH           = errors.New(errno.ESRCH, "no such process")
	EINTR           = errors.New(errno.EINTR, "interrupted system call")
	EIO             = errors.New(errno.EIO, "I/O error")
	ENXIO           = errors.New(errno.ENXIO, "no such device or address")
	E2BIG           = errors.New(errno.E2BIG, "argument list too long")
	ENOEXEC         = errors.New(errno.ENOEXEC, "exec format error")
	EBADF           = errors.New(errno.EBADF, "bad file number")
	ECHILD          = errors.New(errno.ECHILD, "no child processes")
	EAGAIN          = errors.New(errno.EAGAIN, "try again")
	ENOMEM          = errors.New(errno.ENOMEM, "out of memory")
	EACCES          = errors.New(errno.EACCES, "permission denied")
	EFAULT          = errors.New(errno.EFAULT, "bad address")
	ENOTBLK         = errors.New(errno.ENOTBLK, "block device required")
	EBUSY           = errors.New(errno.EBUSY, "device or resource busy")
	EEXIST          = errors.New(errno.EEXIST, "file exists")
	EXDEV           = errors.New(errno.EXDEV, "cross-device link")
	ENODEV          = errors.New(errno.ENODEV, "no such device")
	ENOTDIR         = errors.New(errno.ENOTDIR, "not a directory")
	EISDIR          = errors.New(errno.EISDIR, "is a directory")
	EINVAL          = errors.New(errno.EINVAL, "invalid argument")
	ENFILE          = errors.New(errno.ENFILE, "file table overflow")
	EMFILE          = errors.New(errno.EMFILE, "too many open files")
	ENOTTY          = errors.New(errno.ENOTTY, "not a typewriter")
	ETXTBSY         = errors.New(errno.ETXTBSY, "text file busy")
	EFBIG           = errors.New(errno.EFBIG, "file too large")
	ENOSPC          = errors.New(errno.ENOSPC, "no space left on device")
	ESPIPE          = errors.New(errno.ESPIPE, "illegal seek")
	EROFS           = errors.New(errno.EROFS, "read-only file system")
	EMLINK          = errors.New(errno.EMLINK, "too many links")
	EPIPE           = errors.New(errno.EPIPE, "broken pipe")
	EDOM            = errors.New(errno.EDOM, "math argument out of domain of func")
	ERANGE          = errors.New(errno.ERANGE, "math result not representable")
	EDEADLK         = errors.New(errno.EDEADLK, "resource deadlock would occur")
	ENAMETOOLONG    = errors.New(errno.ENAMETOOLONG, "file name too long")
	ENOLCK          = errors.New(errno.ENOLCK, "no record locks available")
	ENOSYS          = errors.New(errno.ENOSYS, "invalid system call number")
	ENOTEMPTY       = errors.New(errno.ENOTEMPTY, "directory not empty")
	ELOOP           = errors.New(errno.ELOOP, "too many symbolic links encountered")
	ENOMSG          = errors.New(errno.ENOMSG, "no message of desired type")
	EOVERFLOW       = errors.New(errno.EOVERFLOW, "value too large for defined data type")
	EBADFD          = errors.New(errno.EBADFD, "file descriptor in bad state")
	EOPNOTSUPP      = errors.New(errno.EOPNOTSUPP, "operation not supported on transport endpoint")
	ETIMEDOUT       = errors.New(errno.ETIMEDOUT, "connection timed out")
	ECANCELED       = errors.New(errno.ECANCELED, "operation Canceled")
	EOWNERDEAD      = errors.New(errno.EOWNERDEAD, "owner died")
	ENOTRECOVERABLE = errors.New(errno.ENOTRECOVERABLE, "state not recoverable")

	// EWOULDBLOCK is the same error as EAGAIN.
	EWOULDBLOCK = EAGAIN
)

// errNotValidError is the placeholder for errno values that have no error
// defined above.
var errNotValidError = errors.New(errno.Errno(maxErrno), "not a valid error")

// errorSlice is indexed by errno.
var errorSlice = func() []*errors.Error {
	s := make([]*errors.Error, maxErrno)
	for i := range s {
		s[i] = errNotValidError
	}
	for _, e := range []*errors.Error{
		EPERM, ENOENT, ESRCH, EINTR, EIO, ENXIO, E2BIG, ENOEXEC, EBADF,
		ECHILD, EAGAIN, ENOMEM, EACCES, EFAULT, ENOTBLK, EBUSY, EEXIST,
		EXDEV, ENODEV, ENOTDIR, EISDIR, EINVAL, ENFILE, EMFILE, ENOTTY,
		ETXTBSY, EFBIG, ENOSPC, ESPIPE, EROFS, EMLINK, EPIPE, EDOM, ERANGE,
		EDEADLK, ENAMETOOLONG, ENOLCK, ENOSYS, ENOTEMPTY, ELOOP, ENOMSG,
		EOVERFLOW, EBADFD, EOPNOTSUPP, ETIMEDOUT, ECANCELED, EOWNERDEAD,
		ENOTRECOVERABLE,
	} {
		s[e.Errno()] = e
	}
	return s
}()

// FromErrno returns the *errors.Error for the given errno, or nil if the
// errno is not one the kernel defines.
func FromErrno(e errno.Errno) *errors.Error {
	if uint32(e) >= maxErrno {
		return nil
	}
	if err := errorSlice[e]; err != errNotValidError {
		return err
	}
	return nil
}

// ErrorFromUnix returns the error for a host errno, and false if err is not
// an error. Host errnos the kernel does not define are reported as EIO.
//
// Host errnos share the kernel's numbering.
func ErrorFromUnix(err unix.Errno) (*errors.Error, bool) {
	if err == 0 {
		return nil, false
	}
	if e := FromErrno(errno.Errno(err)); e != nil {
		return e, true
	}
	return EIO, true
}

// fromHost extracts a host errno from err, which may wrap it (as
// *os.PathError does).
func fromHost(err error) (*errors.Error, bool) {
	var e unix.Errno
	if !goerrors.As(err, &e) {
		return nil, false
	}
	return ErrorFromUnix(e)
}

func init() {
	AddErrorUnwrapper(fromHost)
}
