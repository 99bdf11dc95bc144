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

// Package scheme defines the interface between the kernel's syscall layer
// and the capability objects ("schemes") that back file handles.
//
// A scheme is addressed by name in a path of the form "name:rest". Every
// handle a scheme gives out is an opaque number that only the scheme
// interprets; the kernel never looks inside it.
package scheme

import (
	"context"

	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/refs"
	"kestrel.dev/kestrel/pkg/waiter"
)

// ID identifies a registered scheme.
type ID uint32

// Description is a kernel file description that can be handed to a scheme,
// for example by sendfd. A scheme holding a Description owns one reference
// on it.
type Description interface {
	refs.RefCounter
}

// OpenResult is returned by operations that produce a new handle.
type OpenResult struct {
	// Number is the scheme-local handle. It is ignored if External is set.
	Number uintptr

	// External, if not nil, is an existing description to install instead
	// of a new one. The caller receives the reference it carries.
	External Description
}

// Scheme is implemented by every capability object. Methods that a scheme
// does not support should be provided by embedding Unsupported.
type Scheme interface {
	// Open opens path, which is relative to the scheme root. An empty path
	// opens the root itself.
	Open(ctx context.Context, path string, flags uint32) (OpenResult, error)

	// OpenAt opens path relative to the handle number.
	OpenAt(ctx context.Context, number uintptr, path string, flags uint32) (OpenResult, error)

	// Rmdir removes the empty directory at path.
	Rmdir(ctx context.Context, path string) error

	// Unlink removes the non-directory at path.
	Unlink(ctx context.Context, path string) error

	// Dup returns a new handle derived from number. buf is a non-empty,
	// scheme-defined request.
	Dup(ctx context.Context, number uintptr, buf []byte) (OpenResult, error)

	// SendFD transfers d to the object behind number. On success the
	// scheme owns the reference carried by d.
	SendFD(ctx context.Context, number uintptr, d Description, flags, arg uintptr) (uintptr, error)

	// Read reads into dst at offset. flags are the effective open flags
	// for this call. It returns kerr.ErrWouldBlock if no data is available
	// yet.
	Read(ctx context.Context, number uintptr, dst []byte, offset int64, flags uint32) (int, error)

	// Write writes src at offset and returns the number of bytes written
	// and the offset just past them. With O_APPEND in flags, the write
	// goes to the end of the object. It returns kerr.ErrWouldBlock if the
	// object cannot accept data yet.
	Write(ctx context.Context, number uintptr, src []byte, offset int64, flags uint32) (int, int64, error)

	// Size returns the size of a seekable object, or ESPIPE.
	Size(ctx context.Context, number uintptr) (int64, error)

	// Fchmod changes the permission bits.
	Fchmod(ctx context.Context, number uintptr, mode uint16) error

	// Fchown changes the owner.
	Fchown(ctx context.Context, number uintptr, uid, gid uint32) error

	// Flink creates a new name for the object.
	Flink(ctx context.Context, number uintptr, path string) error

	// Frename moves the object to path.
	Frename(ctx context.Context, number uintptr, path string) error

	// Mmap returns the initial contents of a private mapping of length
	// bytes starting at offset.
	Mmap(ctx context.Context, number uintptr, offset, length uint64, flags sk.MapFlags) ([]byte, error)

	// Fpath returns the canonical "name:path" of the handle.
	Fpath(ctx context.Context, number uintptr) (string, error)

	// Fstat returns object metadata.
	Fstat(ctx context.Context, number uintptr) (sk.Stat, error)

	// Fstatvfs returns filesystem metadata.
	Fstatvfs(ctx context.Context, number uintptr) (sk.StatVfs, error)

	// Fsync flushes the object.
	Fsync(ctx context.Context, number uintptr) error

	// Ftruncate sets the object size.
	Ftruncate(ctx context.Context, number uintptr, length int64) error

	// Futimens sets access and modification times.
	Futimens(ctx context.Context, number uintptr, times []sk.Timespec) error

	// Getdents fills buf with directory entries starting at cursor and
	// returns the number of bytes used. Entries are encoded with
	// AppendDirent.
	Getdents(ctx context.Context, number uintptr, buf []byte, cursor uint64) (int, error)

	// Call performs a scheme-defined request. payload may be modified in
	// place; the returned value is passed back to the caller.
	Call(ctx context.Context, number uintptr, payload []byte, flags sk.CallFlags, metadata []uint64) (uintptr, error)

	// Readiness returns the subset of mask that is ready for number.
	Readiness(number uintptr, mask waiter.EventMask) waiter.EventMask

	// EventRegister registers e to be notified of events in mask on number.
	EventRegister(number uintptr, e *waiter.Entry, mask waiter.EventMask) error

	// EventUnregister removes e.
	EventUnregister(number uintptr, e *waiter.Entry)

	// Close releases number. It is called once, when the last reference
	// to the description holding number is dropped.
	Close(number uintptr) error
}

// Unsupported implements every Scheme method by failing with EOPNOTSUPP,
// except for readiness (always ready) and Close (no-op).
type Unsupported struct{}

// Open implements Scheme.Open.
func (Unsupported) Open(context.Context, string, uint32) (OpenResult, error) {
	return OpenResult{}, kerr.EOPNOTSUPP
}

// OpenAt implements Scheme.OpenAt.
func (Unsupported) OpenAt(context.Context, uintptr, string, uint32) (OpenResult, error) {
	return OpenResult{}, kerr.EOPNOTSUPP
}

// Rmdir implements Scheme.Rmdir.
func (Unsupported) Rmdir(context.Context, string) error {
	return kerr.EOPNOTSUPP
}

// Unlink implements Scheme.Unlink.
func (Unsupported) Unlink(context.Context, string) error {
	return kerr.EOPNOTSUPP
}

// Dup implements Scheme.Dup.
func (Unsupported) Dup(context.Context, uintptr, []byte) (OpenResult, error) {
	return OpenResult{}, kerr.EOPNOTSUPP
}

// SendFD implements Scheme.SendFD.
func (Unsupported) SendFD(context.Context, uintptr, Description, uintptr, uintptr) (uintptr, error) {
	return 0, kerr.EOPNOTSUPP
}

// Read implements Scheme.Read.
func (Unsupported) Read(context.Context, uintptr, []byte, int64, uint32) (int, error) {
	return 0, kerr.EOPNOTSUPP
}

// Write implements Scheme.Write.
func (Unsupported) Write(context.Context, uintptr, []byte, int64, uint32) (int, int64, error) {
	return 0, 0, kerr.EOPNOTSUPP
}

// Size implements Scheme.Size.
func (Unsupported) Size(context.Context, uintptr) (int64, error) {
	return 0, kerr.ESPIPE
}

// Fchmod implements Scheme.Fchmod.
func (Unsupported) Fchmod(context.Context, uintptr, uint16) error {
	return kerr.EOPNOTSUPP
}

// Fchown implements Scheme.Fchown.
func (Unsupported) Fchown(context.Context, uintptr, uint32, uint32) error {
	return kerr.EOPNOTSUPP
}

// Flink implements Scheme.Flink.
func (Unsupported) Flink(context.Context, uintptr, string) error {
	return kerr.EOPNOTSUPP
}

// Frename implements Scheme.Frename.
func (Unsupported) Frename(context.Context, uintptr, string) error {
	return kerr.EOPNOTSUPP
}

// Mmap implements Scheme.Mmap.
func (Unsupported) Mmap(context.Context, uintptr, uint64, uint64, sk.MapFlags) ([]byte, error) {
	return nil, kerr.ENODEV
}

// Fpath implements Scheme.Fpath.
func (Unsupported) Fpath(context.Context, uintptr) (string, error) {
	return "", kerr.EOPNOTSUPP
}

// Fstat implements Scheme.Fstat.
func (Unsupported) Fstat(context.Context, uintptr) (sk.Stat, error) {
	return sk.Stat{}, kerr.EOPNOTSUPP
}

// Fstatvfs implements Scheme.Fstatvfs.
func (Unsupported) Fstatvfs(context.Context, uintptr) (sk.StatVfs, error) {
	return sk.StatVfs{}, kerr.EOPNOTSUPP
}

// Fsync implements Scheme.Fsync.
func (Unsupported) Fsync(context.Context, uintptr) error {
	return nil
}

// Ftruncate implements Scheme.Ftruncate.
func (Unsupported) Ftruncate(context.Context, uintptr, int64) error {
	return kerr.EOPNOTSUPP
}

// Futimens implements Scheme.Futimens.
func (Unsupported) Futimens(context.Context, uintptr, []sk.Timespec) error {
	return kerr.EOPNOTSUPP
}

// Getdents implements Scheme.Getdents.
func (Unsupported) Getdents(context.Context, uintptr, []byte, uint64) (int, error) {
	return 0, kerr.ENOTDIR
}

// Call implements Scheme.Call.
func (Unsupported) Call(context.Context, uintptr, []byte, sk.CallFlags, []uint64) (uintptr, error) {
	return 0, kerr.EOPNOTSUPP
}

// Readiness implements Scheme.Readiness.
func (Unsupported) Readiness(_ uintptr, mask waiter.EventMask) waiter.EventMask {
	return mask
}

// EventRegister implements Scheme.EventRegister.
func (Unsupported) EventRegister(uintptr, *waiter.Entry, waiter.EventMask) error {
	return nil
}

// EventUnregister implements Scheme.EventUnregister.
func (Unsupported) EventUnregister(uintptr, *waiter.Entry) {}

// Close implements Scheme.Close.
func (Unsupported) Close(uintptr) error {
	return nil
}
