package fs

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
	"golang.org/x/sys/unix"

	"github.com/asynclear-go/asynclear/internal/clock"
	"github.com/asynclear-go/asynclear/internal/fs/inode"
	"github.com/asynclear-go/asynclear/internal/kerrno"
	"github.com/asynclear-go/asynclear/internal/logger"
	"github.com/asynclear-go/asynclear/internal/memory"
)

// MountedFS is one mounted filesystem: its root dentry and the device path
// it came from. Only a single FAT32 root mount is supported (spec §6:
// "mount/unmount" is a Non-goal beyond the hard-coded root).
type MountedFS struct {
	RootDentry *DEntryDir
	DevicePath string
}

// VirtFileSystem is the VFS root: a dentry tree plus a mount table keyed by
// mount point. Mirrors the original's VirtFileSystem/mount_table.
type VirtFileSystem struct {
	VolumeID string

	mu          syncutil.InvariantMutex
	mountTable  map[string]*MountedFS
	root        *DEntryDir
}

// NewVirtFileSystem mounts root at "/" and returns a ready VFS, logging the
// mount the way gcsfuse logs its bucket name at mount time — here, the
// volume's device path and a generated identifier, since a kernel has no
// bucket name to log.
func NewVirtFileSystem(root *DEntryDir, devicePath string) *VirtFileSystem {
	vfs := &VirtFileSystem{
		VolumeID:   uuid.NewString(),
		mountTable: map[string]*MountedFS{"/": {RootDentry: root, DevicePath: devicePath}},
		root:       root,
	}
	vfs.mu = syncutil.NewInvariantMutex(vfs.checkInvariants)
	logger.Info("vfs: mounted %s at / (volume %s)", devicePath, vfs.VolumeID)
	return vfs
}

// checkInvariants is run by the InvariantMutex on every lock/unlock in
// race-detector builds, mirroring fs.go's checkInvariants in the teacher
// repo. The only invariant this VFS needs to hold continuously is that the
// root mount always exists.
func (v *VirtFileSystem) checkInvariants() {
	if _, ok := v.mountTable["/"]; !ok {
		panic("vfs: root mount missing from mount table")
	}
}

// Root returns the VFS root directory dentry.
func (v *VirtFileSystem) Root() *DEntryDir {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.root
}

// PathToInode is the result of a path walk: the directory holding the
// path's final component, and that component's name verbatim. Mirrors the
// original's PathToInode ("like Linux's struct nameidata").
type PathToInode struct {
	Dir            *DEntryDir
	LastComponent  string
}

// PathWalk implements spec §4.4's path_walk: strip one leading/trailing
// '/', split into components, descend through all but the last, and return
// the directory holding the last component plus its name verbatim.
func PathWalk(start *DEntryDir, path string) (PathToInode, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/")
	if trimmed == "" {
		return PathToInode{Dir: start, LastComponent: "."}, nil
	}

	components := strings.Split(trimmed, "/")
	dir := start
	for i := 0; i < len(components)-1; i++ {
		entry, err := dir.Lookup(components[i])
		if err != nil {
			return PathToInode{}, err
		}
		if !entry.IsDir() {
			return PathToInode{}, kerrno.ENOTDIR
		}
		dir = entry.AsDir()
	}
	return PathToInode{Dir: dir, LastComponent: components[len(components)-1]}, nil
}

// FindFile implements spec §4.4's find_file: walk to the parent, then look
// up the final component.
func FindFile(start *DEntryDir, path string) (*DEntry, error) {
	p2i, err := PathWalk(start, path)
	if err != nil {
		return nil, err
	}
	return p2i.Dir.Lookup(p2i.LastComponent)
}

// ReadFile reads a paged file's entire current contents from offset 0,
// mirroring the original's read_file (used by exec-style whole-file reads
// rather than the syscall read path, which reads through a file descriptor's
// offset instead).
func ReadFile(p *inode.Paged, now clock.Clock) ([]byte, error) {
	out := make([]byte, p.Meta.DataLen())
	n, err := p.ReadAt(out, 0, now)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// Stat mirrors the original's defines::fs::Stat: the subset of struct stat
// the kernel can meaningfully populate from an inode's metadata.
type Stat struct {
	Dev     uint64
	Ino     uint64
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint64
	Size    uint64
	Blksize uint32
	Blocks  uint64
	Atime   int64
	Mtime   int64
	Ctime   int64
}

// statDevPlaceholder is st_dev for every inode: the kernel has exactly one
// mounted volume, and no real device-id allocator, so the original hard
// codes an arbitrary constant rather than inventing one.
const statDevPlaceholder = 114514

// StatFromMeta implements spec §6's stat_from_meta: translate an inode's
// Meta into a populated Stat, field for field against the original.
func StatFromMeta(meta *inode.Meta) Stat {
	atime, mtime, ctime := meta.Times()
	size := meta.DataLen()
	blksize := uint32(memory.PageSize)

	modeBits := uint32(unix.S_IFREG)
	if meta.Mode == inode.ModeDir {
		modeBits = uint32(unix.S_IFDIR)
	}

	return Stat{
		Dev:     statDevPlaceholder,
		Ino:     meta.Ino,
		Mode:    modeBits,
		Nlink:   1,
		UID:     0,
		GID:     0,
		Rdev:    0,
		Size:    size,
		Blksize: blksize,
		Blocks:  (size + uint64(blksize) - 1) / uint64(blksize),
		Atime:   atime,
		Mtime:   mtime,
		Ctime:   ctime,
	}
}
