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

// Package ramfs provides an in-memory filesystem scheme.
//
// Lock order:
//
//	Filesystem.mu
//	  mm.MemoryManager.mappingMu (through callers copying file data)
package ramfs

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/google/btree"
	"kestrel.dev/kestrel/pkg/abi/sk"
	"kestrel.dev/kestrel/pkg/errors/kerr"
	"kestrel.dev/kestrel/pkg/hostarch"
	"kestrel.dev/kestrel/pkg/sentry/ktime"
	"kestrel.dev/kestrel/pkg/sentry/scheme"
)

const (
	// DefaultCapacity is the number of file bytes a Filesystem holds when
	// Options.Capacity is zero.
	DefaultCapacity = 64 << 20

	blockSize   = hostarch.PageSize
	childDegree = 8
)

// Options configures a Filesystem.
type Options struct {
	// Name is the scheme name reported by fpath. Defaults to "file".
	Name string

	// Clock stamps inode times. Defaults to the host realtime clock.
	Clock ktime.Clock

	// Capacity bounds the total size of regular files.
	Capacity uint64
}

// Filesystem is an in-memory tree of directories and regular files.
type Filesystem struct {
	scheme.Unsupported

	name     string
	clock    ktime.Clock
	capacity uint64

	mu sync.Mutex

	// The fields below are protected by mu.
	root       *inode
	nextIno    uint64
	used       uint64
	handles    map[uintptr]*handle
	nextHandle uintptr
}

var _ scheme.Scheme = (*Filesystem)(nil)

// New returns an empty Filesystem.
func New(opts Options) *Filesystem {
	if opts.Name == "" {
		opts.Name = scheme.DefaultScheme
	}
	if opts.Clock == nil {
		opts.Clock = ktime.NewRealtimeClock()
	}
	if opts.Capacity == 0 {
		opts.Capacity = DefaultCapacity
	}
	fs := &Filesystem{
		name:     opts.Name,
		clock:    opts.Clock,
		capacity: opts.Capacity,
		handles:  make(map[uintptr]*handle),
	}
	fs.root = fs.newInode(sk.MODE_DIR | 0o755)
	fs.root.nlink = 2
	return fs
}

// inode is a file or directory.
type inode struct {
	ino   uint64
	mode  uint32
	uid   uint32
	gid   uint32
	nlink uint32
	atime sk.Timespec
	mtime sk.Timespec
	ctime sk.Timespec

	// data holds the contents of a regular file.
	data []byte

	// children holds the entries of a directory, ordered by name.
	children *btree.BTreeG[*dentry]
}

// dentry names an inode within its parent directory.
type dentry struct {
	name  string
	inode *inode
}

func dentryLess(a, b *dentry) bool {
	return a.name < b.name
}

func (i *inode) isDir() bool {
	return i.mode&sk.MODE_TYPE == sk.MODE_DIR
}

// handle is an open file. path is kept up to date by frename.
type handle struct {
	inode *inode
	path  string
}

// Preconditions: fs.mu must be locked, or fs must be under construction.
func (fs *Filesystem) newInode(mode uint32) *inode {
	fs.nextIno++
	now := fs.clock.Now().Timespec()
	i := &inode{
		ino:   fs.nextIno,
		mode:  mode,
		nlink: 1,
		atime: now,
		mtime: now,
		ctime: now,
	}
	if i.isDir() {
		i.children = btree.NewG[*dentry](childDegree, dentryLess)
	}
	return i
}

// cleanPath returns the canonical form of p, relative to the root and
// without a leading slash.
func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// split returns the directory and final component of the canonical path p.
func split(p string) (string, string) {
	dir, name := path.Split(p)
	return strings.TrimSuffix(dir, "/"), name
}

// walkLocked resolves the canonical path p.
//
// Preconditions: fs.mu must be locked.
func (fs *Filesystem) walkLocked(p string) (*inode, error) {
	i := fs.root
	if p == "" {
		return i, nil
	}
	for _, name := range strings.Split(p, "/") {
		if !i.isDir() {
			return nil, kerr.ENOTDIR
		}
		d, ok := i.children.Get(&dentry{name: name})
		if !ok {
			return nil, kerr.ENOENT
		}
		i = d.inode
	}
	return i, nil
}

// parentLocked resolves the directory containing p and returns it with the
// final component of p.
//
// Preconditions: fs.mu must be locked.
func (fs *Filesystem) parentLocked(p string) (*inode, string, error) {
	if p == "" {
		return nil, "", kerr.EBUSY
	}
	dir, name := split(p)
	parent, err := fs.walkLocked(dir)
	if err != nil {
		return nil, "", err
	}
	if !parent.isDir() {
		return nil, "", kerr.ENOTDIR
	}
	return parent, name, nil
}

// Preconditions: fs.mu must be locked.
func (fs *Filesystem) handleLocked(number uintptr) (*handle, error) {
	h, ok := fs.handles[number]
	if !ok {
		return nil, kerr.EBADF
	}
	return h, nil
}

// Preconditions: fs.mu must be locked.
func (fs *Filesystem) touchLocked(i *inode) {
	now := fs.clock.Now().Timespec()
	i.mtime = now
	i.ctime = now
}

// resizeLocked sets the length of a regular file, charging the change
// against the capacity.
//
// Preconditions: fs.mu must be locked.
func (fs *Filesystem) resizeLocked(i *inode, size uint64) error {
	cur := uint64(len(i.data))
	if size > cur {
		if size-cur > fs.capacity-fs.used {
			return kerr.ENOSPC
		}
		fs.used += size - cur
		if size <= uint64(cap(i.data)) {
			i.data = i.data[:size]
			clear(i.data[cur:])
		} else {
			data := make([]byte, size, size+size/2)
			copy(data, i.data)
			i.data = data
		}
		return nil
	}
	fs.used -= cur - size
	i.data = i.data[:size]
	return nil
}

// Open implements scheme.Scheme.Open.
func (fs *Filesystem) Open(ctx context.Context, p string, flags uint32) (scheme.OpenResult, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.openLocked(cleanPath(p), flags)
}

// OpenAt implements scheme.Scheme.OpenAt.
func (fs *Filesystem) OpenAt(ctx context.Context, number uintptr, p string, flags uint32) (scheme.OpenResult, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return scheme.OpenResult{}, err
	}
	if !h.inode.isDir() {
		return scheme.OpenResult{}, kerr.ENOTDIR
	}
	if strings.HasPrefix(p, "/") {
		return fs.openLocked(cleanPath(p), flags)
	}
	return fs.openLocked(cleanPath(h.path+"/"+p), flags)
}

// Preconditions: fs.mu must be locked.
func (fs *Filesystem) openLocked(p string, flags uint32) (scheme.OpenResult, error) {
	i, err := fs.walkLocked(p)
	switch {
	case err == kerr.ENOENT && flags&sk.O_CREAT != 0:
		parent, name, err := fs.parentLocked(p)
		if err != nil {
			return scheme.OpenResult{}, err
		}
		mode := uint32(sk.MODE_FILE)
		if flags&sk.O_DIRECTORY != 0 {
			mode = sk.MODE_DIR
		}
		i = fs.newInode(mode | flags&sk.MODE_PERM)
		if i.isDir() {
			i.nlink = 2
			parent.nlink++
		}
		parent.children.ReplaceOrInsert(&dentry{name: name, inode: i})
		fs.touchLocked(parent)
	case err != nil:
		return scheme.OpenResult{}, err
	case flags&(sk.O_CREAT|sk.O_EXCL) == sk.O_CREAT|sk.O_EXCL:
		return scheme.OpenResult{}, kerr.EEXIST
	}

	if flags&sk.O_STAT == 0 {
		switch {
		case flags&sk.O_DIRECTORY != 0 && !i.isDir():
			return scheme.OpenResult{}, kerr.ENOTDIR
		case i.isDir() && flags&sk.O_ACCMODE&sk.O_WRONLY != 0:
			return scheme.OpenResult{}, kerr.EISDIR
		}
		if flags&sk.O_TRUNC != 0 && flags&sk.O_ACCMODE&sk.O_WRONLY != 0 && !i.isDir() {
			if err := fs.resizeLocked(i, 0); err != nil {
				return scheme.OpenResult{}, err
			}
			fs.touchLocked(i)
		}
	}

	fs.nextHandle++
	fs.handles[fs.nextHandle] = &handle{inode: i, path: p}
	return scheme.OpenResult{Number: fs.nextHandle}, nil
}

// Rmdir implements scheme.Scheme.Rmdir.
func (fs *Filesystem) Rmdir(ctx context.Context, p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, name, err := fs.parentLocked(cleanPath(p))
	if err != nil {
		return err
	}
	d, ok := parent.children.Get(&dentry{name: name})
	if !ok {
		return kerr.ENOENT
	}
	if !d.inode.isDir() {
		return kerr.ENOTDIR
	}
	if d.inode.children.Len() != 0 {
		return kerr.ENOTEMPTY
	}
	parent.children.Delete(d)
	parent.nlink--
	d.inode.nlink = 0
	fs.touchLocked(parent)
	return nil
}

// Unlink implements scheme.Scheme.Unlink.
func (fs *Filesystem) Unlink(ctx context.Context, p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	parent, name, err := fs.parentLocked(cleanPath(p))
	if err != nil {
		return err
	}
	d, ok := parent.children.Get(&dentry{name: name})
	if !ok {
		return kerr.ENOENT
	}
	if d.inode.isDir() {
		return kerr.EISDIR
	}
	parent.children.Delete(d)
	d.inode.nlink--
	fs.touchLocked(parent)
	fs.releaseLocked(d.inode)
	return nil
}

// releaseLocked frees the data of an inode with no names and no handles.
//
// Preconditions: fs.mu must be locked.
func (fs *Filesystem) releaseLocked(i *inode) {
	if i.nlink != 0 {
		return
	}
	for _, h := range fs.handles {
		if h.inode == i {
			return
		}
	}
	fs.used -= uint64(len(i.data))
	i.data = nil
}

// Dup implements scheme.Scheme.Dup. Non-empty dup requests are not
// meaningful for files.
func (fs *Filesystem) Dup(ctx context.Context, number uintptr, buf []byte) (scheme.OpenResult, error) {
	return scheme.OpenResult{}, kerr.EINVAL
}

// Read implements scheme.Scheme.Read.
func (fs *Filesystem) Read(ctx context.Context, number uintptr, dst []byte, offset int64, flags uint32) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return 0, err
	}
	if h.inode.isDir() {
		return 0, kerr.EISDIR
	}
	if offset >= int64(len(h.inode.data)) {
		return 0, nil
	}
	n := copy(dst, h.inode.data[offset:])
	h.inode.atime = fs.clock.Now().Timespec()
	return n, nil
}

// Write implements scheme.Scheme.Write.
func (fs *Filesystem) Write(ctx context.Context, number uintptr, src []byte, offset int64, flags uint32) (int, int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return 0, 0, err
	}
	i := h.inode
	if i.isDir() {
		return 0, 0, kerr.EISDIR
	}
	if flags&sk.O_APPEND != 0 {
		offset = int64(len(i.data))
	}
	end := uint64(offset) + uint64(len(src))
	if end > uint64(len(i.data)) {
		if err := fs.resizeLocked(i, end); err != nil {
			return 0, 0, err
		}
	}
	n := copy(i.data[offset:], src)
	fs.touchLocked(i)
	return n, offset + int64(n), nil
}

// Size implements scheme.Scheme.Size.
func (fs *Filesystem) Size(ctx context.Context, number uintptr) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return 0, err
	}
	return int64(len(h.inode.data)), nil
}

// Fchmod implements scheme.Scheme.Fchmod.
func (fs *Filesystem) Fchmod(ctx context.Context, number uintptr, mode uint16) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return err
	}
	h.inode.mode = h.inode.mode&sk.MODE_TYPE | uint32(mode)&sk.MODE_PERM
	h.inode.ctime = fs.clock.Now().Timespec()
	return nil
}

// Fchown implements scheme.Scheme.Fchown.
func (fs *Filesystem) Fchown(ctx context.Context, number uintptr, uid, gid uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return err
	}
	h.inode.uid = uid
	h.inode.gid = gid
	h.inode.ctime = fs.clock.Now().Timespec()
	return nil
}

// Flink implements scheme.Scheme.Flink.
func (fs *Filesystem) Flink(ctx context.Context, number uintptr, p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return err
	}
	if h.inode.isDir() {
		return kerr.EPERM
	}
	parent, name, err := fs.parentLocked(cleanPath(p))
	if err != nil {
		return err
	}
	if parent.children.Has(&dentry{name: name}) {
		return kerr.EEXIST
	}
	parent.children.ReplaceOrInsert(&dentry{name: name, inode: h.inode})
	h.inode.nlink++
	h.inode.ctime = fs.clock.Now().Timespec()
	fs.touchLocked(parent)
	return nil
}

// Frename implements scheme.Scheme.Frename.
func (fs *Filesystem) Frename(ctx context.Context, number uintptr, p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return err
	}
	oldParent, oldName, err := fs.parentLocked(h.path)
	if err != nil {
		return err
	}
	newPath := cleanPath(p)
	if newPath == h.path {
		return nil
	}
	if h.inode.isDir() && strings.HasPrefix(newPath, h.path+"/") {
		return kerr.EINVAL
	}
	newParent, newName, err := fs.parentLocked(newPath)
	if err != nil {
		return err
	}
	if old, ok := newParent.children.Get(&dentry{name: newName}); ok {
		switch {
		case old.inode.isDir() && !h.inode.isDir():
			return kerr.EISDIR
		case !old.inode.isDir() && h.inode.isDir():
			return kerr.ENOTDIR
		case old.inode.isDir() && old.inode.children.Len() != 0:
			return kerr.ENOTEMPTY
		}
		old.inode.nlink--
		defer fs.releaseLocked(old.inode)
	}
	oldParent.children.Delete(&dentry{name: oldName})
	newParent.children.ReplaceOrInsert(&dentry{name: newName, inode: h.inode})
	if h.inode.isDir() {
		oldParent.nlink--
		newParent.nlink++
	}
	fs.touchLocked(oldParent)
	fs.touchLocked(newParent)
	h.path = newPath
	return nil
}

// Mmap implements scheme.Scheme.Mmap. Only private mappings are supported;
// they receive a copy of the file contents.
func (fs *Filesystem) Mmap(ctx context.Context, number uintptr, offset, length uint64, flags sk.MapFlags) ([]byte, error) {
	if flags&sk.MAP_SHARED != 0 {
		return nil, kerr.EOPNOTSUPP
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return nil, err
	}
	if h.inode.isDir() {
		return nil, kerr.ENODEV
	}
	if offset >= uint64(len(h.inode.data)) {
		return nil, nil
	}
	end := uint64(len(h.inode.data))
	if length < end-offset {
		end = offset + length
	}
	return append([]byte(nil), h.inode.data[offset:end]...), nil
}

// Fpath implements scheme.Scheme.Fpath.
func (fs *Filesystem) Fpath(ctx context.Context, number uintptr) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return "", err
	}
	return fs.name + ":/" + h.path, nil
}

// Fstat implements scheme.Scheme.Fstat.
func (fs *Filesystem) Fstat(ctx context.Context, number uintptr) (sk.Stat, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return sk.Stat{}, err
	}
	i := h.inode
	size := uint64(len(i.data))
	return sk.Stat{
		Ino:     i.ino,
		Mode:    i.mode,
		Nlink:   i.nlink,
		UID:     i.uid,
		GID:     i.gid,
		Size:    size,
		Blocks:  (size + 511) / 512,
		Blksize: blockSize,
		Atime:   i.atime,
		Mtime:   i.mtime,
		Ctime:   i.ctime,
	}, nil
}

// Fstatvfs implements scheme.Scheme.Fstatvfs.
func (fs *Filesystem) Fstatvfs(ctx context.Context, number uintptr) (sk.StatVfs, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.handleLocked(number); err != nil {
		return sk.StatVfs{}, err
	}
	free := (fs.capacity - fs.used) / blockSize
	return sk.StatVfs{
		Bsize:  blockSize,
		Blocks: fs.capacity / blockSize,
		Bfree:  free,
		Bavail: free,
	}, nil
}

// Fsync implements scheme.Scheme.Fsync.
func (fs *Filesystem) Fsync(ctx context.Context, number uintptr) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, err := fs.handleLocked(number)
	return err
}

// Ftruncate implements scheme.Scheme.Ftruncate.
func (fs *Filesystem) Ftruncate(ctx context.Context, number uintptr, length int64) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return err
	}
	if h.inode.isDir() {
		return kerr.EISDIR
	}
	if err := fs.resizeLocked(h.inode, uint64(length)); err != nil {
		return err
	}
	fs.touchLocked(h.inode)
	return nil
}

// Futimens implements scheme.Scheme.Futimens. times holds the access time
// and then the modification time; missing entries are set to now.
func (fs *Filesystem) Futimens(ctx context.Context, number uintptr, times []sk.Timespec) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return err
	}
	now := fs.clock.Now().Timespec()
	stamps := [2]sk.Timespec{now, now}
	copy(stamps[:], times)
	h.inode.atime, h.inode.mtime = stamps[0], stamps[1]
	h.inode.ctime = now
	return nil
}

// Getdents implements scheme.Scheme.Getdents. The cursor is the index of
// the next entry in name order.
func (fs *Filesystem) Getdents(ctx context.Context, number uintptr, buf []byte, cursor uint64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return 0, err
	}
	if !h.inode.isDir() {
		return 0, kerr.ENOTDIR
	}
	var (
		n   int
		idx uint64
	)
	tooSmall := false
	h.inode.children.Ascend(func(d *dentry) bool {
		idx++
		if idx <= cursor {
			return true
		}
		kind := uint8(sk.DT_REG)
		if d.inode.isDir() {
			kind = sk.DT_DIR
		}
		m, ok := scheme.AppendDirent(buf[n:], d.inode.ino, idx, kind, d.name)
		if !ok {
			tooSmall = n == 0
			return false
		}
		n += m
		return true
	})
	if tooSmall {
		return 0, kerr.EINVAL
	}
	return n, nil
}

// Close implements scheme.Scheme.Close.
func (fs *Filesystem) Close(number uintptr) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, err := fs.handleLocked(number)
	if err != nil {
		return err
	}
	delete(fs.handles, number)
	fs.releaseLocked(h.inode)
	return nil
}
