// Package handle implements a process's open-file table: the File
// abstraction over a directory or paged-file dentry, the OpenFlags bits
// openat understands, and the fd-indexed table itself. Lives in its own leaf
// package (sibling to, not inside, internal/fs) because internal/syscall
// needs both internal/fs and this package at once, and a one-directional
// dependency from here into internal/fs keeps that acyclic — mirroring the
// internal/kerrno split for the same reason.
//
// Grounded on the fd_table/FileDescriptor/OpenFlags usage sites in
// original_source/crates/kernel/src/syscall/fs.rs (file.rs itself, which
// would define these types, was not present in the retrieval pack).
package handle

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/asynclear-go/asynclear/internal/fs"
	"github.com/asynclear-go/asynclear/internal/fs/inode"
	"github.com/asynclear-go/asynclear/internal/kerrno"
)

// OpenFlags mirrors the original's OpenFlags bitflags, reusing the real
// Linux open(2) bit values from golang.org/x/sys/unix rather than inventing
// a parallel constant set.
type OpenFlags uint32

const (
	AccModeMask OpenFlags = unix.O_ACCMODE
	RDONLY      OpenFlags = unix.O_RDONLY
	WRONLY      OpenFlags = unix.O_WRONLY
	RDWR        OpenFlags = unix.O_RDWR
	CREATE      OpenFlags = unix.O_CREAT
	EXCL        OpenFlags = unix.O_EXCL
	DIRECTORY   OpenFlags = unix.O_DIRECTORY
	CLOEXEC     OpenFlags = unix.O_CLOEXEC
	ASYNC       OpenFlags = unix.O_ASYNC
	DSYNC       OpenFlags = unix.O_DSYNC
	DIRECT      OpenFlags = unix.O_DIRECT
	LARGEFILE   OpenFlags = unix.O_LARGEFILE
	TRUNC       OpenFlags = unix.O_TRUNC
	APPEND      OpenFlags = unix.O_APPEND
)

// Contains reports whether every bit in want is set in f.
func (f OpenFlags) Contains(want OpenFlags) bool { return f&want == want }

// Intersects reports whether any bit in other is set in f.
func (f OpenFlags) Intersects(other OpenFlags) bool { return f&other != 0 }

// Readable reports whether the access-mode bits permit reads: O_RDONLY is
// zero-valued, so this is "anything but write-only".
func (f OpenFlags) Readable() bool { return f&AccModeMask != WRONLY }

// Writable reports whether the access-mode bits permit writes.
func (f OpenFlags) Writable() bool {
	mode := f & AccModeMask
	return mode == WRONLY || mode == RDWR
}

// File is the open-file object a descriptor refers to: exactly one of Dir or
// Paged is non-nil, mirroring the original's File::Dir/File::Paged enum.
type File struct {
	Name  string
	Dir   *fs.DEntryDir
	Paged *inode.Paged
}

// NewDirFile wraps a directory dentry as an open file.
func NewDirFile(d *fs.DEntryDir) *File {
	return &File{Name: d.Name, Dir: d}
}

// NewPagedFile wraps a paged-file inode as an open file.
func NewPagedFile(name string, p *inode.Paged) *File {
	return &File{Name: name, Paged: p}
}

// IsDir reports whether this file is a directory.
func (f *File) IsDir() bool { return f.Dir != nil }

// Meta returns the underlying inode's metadata.
func (f *File) Meta() *inode.Meta {
	if f.Dir != nil {
		return f.Dir.Inode.Meta
	}
	return f.Paged.Meta
}

// FileDescriptor is one process's view of an open File: the flags it was
// opened (or fcntl'd) with, and — for paged files — the byte offset the next
// read/write continues from.
type FileDescriptor struct {
	File  *File
	flags OpenFlags

	mu     sync.Mutex
	offset uint64
}

// NewFileDescriptor opens file with flags, offset 0.
func NewFileDescriptor(file *File, flags OpenFlags) *FileDescriptor {
	return &FileDescriptor{File: file, flags: flags}
}

// Clone duplicates the descriptor's flags/offset over the same File,
// matching dup3/fcntl's clone-then-adjust-flags pattern in the original.
func (fd *FileDescriptor) Clone() *FileDescriptor {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return &FileDescriptor{File: fd.File, flags: fd.flags, offset: fd.offset}
}

// Flags returns the descriptor's current OpenFlags.
func (fd *FileDescriptor) Flags() OpenFlags {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.flags
}

// SetCloseOnExec flips the CLOEXEC bit, used by F_SETFD/dup3's flags arg.
func (fd *FileDescriptor) SetCloseOnExec(set bool) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	if set {
		fd.flags |= CLOEXEC
	} else {
		fd.flags &^= CLOEXEC
	}
}

// Offset returns the descriptor's current byte offset.
func (fd *FileDescriptor) Offset() uint64 {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.offset
}

// Advance bumps the offset by n bytes, called after a successful read/write.
func (fd *FileDescriptor) Advance(n uint64) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.offset += n
}

// defaultMaxFDs caps a process's fd table the way gcsfuse's
// ChooseTempDirLimitNumFiles caps its temp-file count against
// RLIMIT_NOFILE: read the soft limit, fall back to a sane default if it
// can't be read or is absurdly large/unlimited.
const defaultMaxFDs = 1024

// FdTable is a process's fd-indexed table of open files, handing out the
// lowest unused non-negative fd on Add, matching POSIX's dup/open contract.
type FdTable struct {
	mu     sync.Mutex
	table  map[int]*FileDescriptor
	maxFDs int
}

// NewFdTable builds an empty fd table sized against RLIMIT_NOFILE.
func NewFdTable() *FdTable {
	max := defaultMaxFDs
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err == nil && rlim.Cur > 0 && rlim.Cur < 1<<20 {
		max = int(rlim.Cur)
	}
	return &FdTable{table: make(map[int]*FileDescriptor), maxFDs: max}
}

// Get looks up fd, returning kerrno.EBADF if it is not open.
func (t *FdTable) Get(fd int) (*FileDescriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	desc, ok := t.table[fd]
	if !ok {
		return nil, kerrno.EBADF
	}
	return desc, nil
}

// Add inserts desc at the lowest unused fd >= 0, matching the original's
// fd_table.add.
func (t *FdTable) Add(desc *FileDescriptor) (int, error) {
	return t.AddFrom(desc, 0)
}

// AddFrom inserts desc at the lowest unused fd >= min, the primitive behind
// both plain open (min=0) and F_DUPFD/F_DUPFD_CLOEXEC (min=arg).
func (t *FdTable) AddFrom(desc *FileDescriptor, min int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := min
	if fd < 0 {
		fd = 0
	}
	for {
		if fd >= t.maxFDs {
			return 0, kerrno.EMFILE
		}
		if _, taken := t.table[fd]; !taken {
			t.table[fd] = desc
			return fd, nil
		}
		fd++
	}
}

// Insert places desc at exactly fd, atomically closing whatever was already
// there — dup3's contract.
func (t *FdTable) Insert(fd int, desc *FileDescriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table[fd] = desc
}

// Remove closes fd, reporting whether it was open.
func (t *FdTable) Remove(fd int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.table[fd]; !ok {
		return false
	}
	delete(t.table, fd)
	return true
}

// CloseOnExec removes every fd carrying CLOEXEC, called when a process execs
// a new image.
func (t *FdTable) CloseOnExec() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for fd, desc := range t.table {
		if desc.Flags().Contains(CLOEXEC) {
			delete(t.table, fd)
		}
	}
}
