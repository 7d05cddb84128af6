// Package inode implements the kernel's two inode flavours — directory and
// paged — and the metadata they share. This mirrors the split in
// original_source/crates/kernel/src/fs/inode.rs, replacing its trait-object
// dyn dispatch with the tagged-variant/interface split spec §9 calls for at
// public boundaries while keeping an interface internally for backend
// plug-in (FAT32 today, others later).
package inode

import (
	"sync"
	"sync/atomic"

	"github.com/asynclear-go/asynclear/internal/clock"
)

// Mode classifies what an inode is, mirroring the original's InodeMode.
type Mode int

const (
	ModeFile Mode = iota
	ModeDir
)

var inodeCounter uint64

// nextIno assigns the next globally-unique inode number. Grounded on
// INODE_NUMBER's fetch_add(SeqCst) in the original; atomic.AddUint64 gives
// the same total order without a lock.
func nextIno() uint64 {
	return atomic.AddUint64(&inodeCounter, 1)
}

// Meta carries an inode's identity, classification, and mutable timestamp
// and size fields, mirroring InodeMeta/InodeMetaInner. Ino/Mode/Name are
// fixed at construction; the remaining fields are guarded by mu, matching
// the original's spinlock held only for O(1) field updates (spec §5).
type Meta struct {
	Ino  uint64
	Mode Mode
	Name string

	mu      sync.Mutex
	dataLen uint64
	atime   int64
	mtime   int64
	ctime   int64
}

// NewMeta constructs metadata for a freshly-minted inode, stamping all three
// times to now.
func NewMeta(mode Mode, name string, dataLen uint64, now clock.Clock) *Meta {
	ts := now.Now().UnixNano()
	return &Meta{
		Ino:     nextIno(),
		Mode:    mode,
		Name:    name,
		dataLen: dataLen,
		atime:   ts,
		mtime:   ts,
		ctime:   ts,
	}
}

// DataLen returns the authoritative file size for paged inodes.
func (m *Meta) DataLen() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dataLen
}

// Times returns the access/modify/change times as UnixNano values.
func (m *Meta) Times() (atime, mtime, ctime int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.atime, m.mtime, m.ctime
}

// SetCtime overwrites just the change time, used by the FAT32 backend to
// alias its on-disk creation time into ctime (spec §4.3, §9: "the kernel has
// no separate create time on inodes; this dual use is an explicit design
// decision").
func (m *Meta) SetCtime(ctime int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctime = ctime
}

// TouchAtime bumps the access time to now, called after a successful read.
func (m *Meta) TouchAtime(now clock.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.atime = now.Now().UnixNano()
}

// ExtendAndTouch grows dataLen to at least newLen and bumps atime/mtime/ctime
// to now, matching write_at step 4: "extend data_len := max(data_len,
// offset+len) and bump a/m/c times".
func (m *Meta) ExtendAndTouch(newLen uint64, now clock.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if newLen > m.dataLen {
		m.dataLen = newLen
	}
	ts := now.Now().UnixNano()
	m.atime = ts
	m.mtime = ts
	m.ctime = ts
}

// Dirent is one entry produced by a directory backend's ReadDir, enough to
// populate both a DEntry and a getdents64 record.
type Dirent struct {
	Name string
	Ino  uint64
	Mode Mode
}

// DirBackend is the capability a directory inode's storage backend must
// provide: lookup, creation of files and directories, enumeration, and a
// disk-space query. Mirrors the original's DirInodeBackend trait.
type DirBackend interface {
	// Lookup resolves name within this directory. Returns kerrno.ENOENT if
	// absent.
	Lookup(name string) (*Dir, *Paged, error)

	// Mkdir creates a new subdirectory named name.
	Mkdir(name string) (*Dir, error)

	// Mknod creates a new regular file named name.
	Mknod(name string) (*Paged, error)

	// ReadDir enumerates this directory's entries.
	ReadDir() ([]Dirent, error)

	// DiskSpace reports free/total space on the backing device, in bytes.
	DiskSpace() (free, total uint64, err error)
}

// PagedBackend is the capability a byte-addressable inode's storage backend
// must provide: a page-granularity read and write. Mirrors
// PagedInodeBackend's read_page/write_page.
type PagedBackend interface {
	// ReadPage fills frame with the contents of the page at pageID.
	ReadPage(pageID uint64, frame []byte) error

	// WritePage persists frame as the contents of the page at pageID.
	WritePage(pageID uint64, frame []byte) error
}

// Dir is a directory inode: metadata plus a pluggable backend. Children are
// discovered lazily through ReadDir (spec §3).
type Dir struct {
	Meta    *Meta
	Backend DirBackend
}

// NewDir wraps a backend as a directory inode with fresh metadata.
func NewDir(name string, backend DirBackend, now clock.Clock) *Dir {
	return &Dir{
		Meta:    NewMeta(ModeDir, name, 0, now),
		Backend: backend,
	}
}

// Paged is a byte-addressable inode: metadata, a page cache, and a pluggable
// backend. All user-visible reads/writes go through the page cache (spec
// §3); see page_cache.go for ReadAt/WriteAt.
type Paged struct {
	Meta    *Meta
	cache   *PageCache
	Backend PagedBackend
}

// NewPaged wraps a backend as a paged inode with fresh metadata, sized to
// dataLen.
func NewPaged(name string, dataLen uint64, backend PagedBackend, now clock.Clock) *Paged {
	return &Paged{
		Meta:    NewMeta(ModeFile, name, dataLen, now),
		cache:   NewPageCache(),
		Backend: backend,
	}
}
