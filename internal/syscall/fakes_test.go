package syscall

import (
	"sync"
	"time"

	"github.com/asynclear-go/asynclear/internal/clock"
	"github.com/asynclear-go/asynclear/internal/fs"
	"github.com/asynclear-go/asynclear/internal/fs/handle"
	"github.com/asynclear-go/asynclear/internal/fs/inode"
	"github.com/asynclear-go/asynclear/internal/kerrno"
)

func testClock() clock.Clock {
	return clock.NewFakeClock(time.Unix(1700000000, 0))
}

// fakeAddressSpace backs user pointers with a plain byte arena: ptr is just
// an offset into it. Stands in for the real MMU/page-table module, which is
// out of scope here (see AddressSpace's doc comment).
type fakeAddressSpace struct {
	mu    sync.Mutex
	arena []byte
}

func newFakeAddressSpace(size int) *fakeAddressSpace {
	return &fakeAddressSpace{arena: make([]byte, size)}
}

func (a *fakeAddressSpace) CheckBytes(ptr uintptr, n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(ptr)+n > len(a.arena) {
		return nil, kerrno.EFAULT
	}
	out := make([]byte, n)
	copy(out, a.arena[ptr:int(ptr)+n])
	return out, nil
}

func (a *fakeAddressSpace) CheckBytesMut(ptr uintptr, n int) ([]byte, error) {
	return a.CheckBytes(ptr, n)
}

func (a *fakeAddressSpace) WriteBack(ptr uintptr, buf []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(ptr)+len(buf) > len(a.arena) {
		return kerrno.EFAULT
	}
	copy(a.arena[ptr:], buf)
	return nil
}

// putCString writes s plus a trailing NUL at ptr, returning the pointer for
// convenience in call sites that build one inline.
func (a *fakeAddressSpace) putCString(ptr uintptr, s string) uintptr {
	a.mu.Lock()
	defer a.mu.Unlock()
	copy(a.arena[ptr:], s)
	a.arena[int(ptr)+len(s)] = 0
	return ptr
}

// fakeProcess is a minimal Process: a real FdTable and cwd dentry, a
// terminated flag in place of actually tearing anything down.
type fakeProcess struct {
	pid        int
	name       string
	fdTable    *handle.FdTable
	cwd        *fs.DEntryDir
	terminated bool
	exitCode   int
}

func newFakeProcess(pid int, cwd *fs.DEntryDir) *fakeProcess {
	return &fakeProcess{pid: pid, name: "test", fdTable: handle.NewFdTable(), cwd: cwd}
}

func (p *fakeProcess) Pid() int                   { return p.pid }
func (p *fakeProcess) Name() string               { return p.name }
func (p *fakeProcess) FDTable() *handle.FdTable    { return p.fdTable }
func (p *fakeProcess) Cwd() *fs.DEntryDir          { return p.cwd }
func (p *fakeProcess) Terminate(exitCode int) {
	p.terminated = true
	p.exitCode = exitCode
}

// fakeDirBackend/fakePagedBackend duplicate the same small fakes internal/fs
// uses in its own tests; kept local since internal/fs's are unexported and
// this package cannot reach into another package's _test.go file.
type fakeDirBackend struct {
	mu    sync.Mutex
	dirs  map[string]*inode.Dir
	files map[string]*inode.Paged
	order []string
}

func newFakeDirBackend() *fakeDirBackend {
	return &fakeDirBackend{dirs: make(map[string]*inode.Dir), files: make(map[string]*inode.Paged)}
}

func (b *fakeDirBackend) Lookup(name string) (*inode.Dir, *inode.Paged, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.dirs[name]; ok {
		return d, nil, nil
	}
	if f, ok := b.files[name]; ok {
		return nil, f, nil
	}
	return nil, nil, kerrno.ENOENT
}

func (b *fakeDirBackend) Mkdir(name string) (*inode.Dir, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.dirs[name]; exists {
		return nil, kerrno.EEXIST
	}
	d := inode.NewDir(name, newFakeDirBackend(), testClock())
	b.dirs[name] = d
	b.order = append(b.order, name)
	return d, nil
}

func (b *fakeDirBackend) Mknod(name string) (*inode.Paged, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.files[name]; exists {
		return nil, kerrno.EEXIST
	}
	f := inode.NewPaged(name, 0, &fakePagedBackend{}, testClock())
	b.files[name] = f
	b.order = append(b.order, name)
	return f, nil
}

func (b *fakeDirBackend) ReadDir() ([]inode.Dirent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]inode.Dirent, 0, len(b.order))
	for _, name := range b.order {
		if d, ok := b.dirs[name]; ok {
			out = append(out, inode.Dirent{Name: name, Ino: d.Meta.Ino, Mode: inode.ModeDir})
			continue
		}
		f := b.files[name]
		out = append(out, inode.Dirent{Name: name, Ino: f.Meta.Ino, Mode: inode.ModeFile})
	}
	return out, nil
}

func (b *fakeDirBackend) DiskSpace() (free, total uint64, err error) {
	return 1 << 20, 1 << 30, nil
}

type fakePagedBackend struct{}

func (fakePagedBackend) ReadPage(pageID uint64, frame []byte) error  { return nil }
func (fakePagedBackend) WritePage(pageID uint64, frame []byte) error { return nil }

func newTestRoot() *fs.DEntryDir {
	return fs.NewRootDEntryDir(inode.NewDir("/", newFakeDirBackend(), testClock()))
}

func newTestDispatcher(root *fs.DEntryDir, space AddressSpace) *Dispatcher {
	vfs := fs.NewVirtFileSystem(root, "/dev/test0")
	return NewDispatcher(vfs, testClock(), space)
}
