package fs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asynclear-go/asynclear/internal/clock"
	"github.com/asynclear-go/asynclear/internal/fs/inode"
	"github.com/asynclear-go/asynclear/internal/kerrno"
)

func fixedClock() clock.Clock {
	return clock.NewFakeClock(time.Unix(1700000000, 0))
}

// fakeDirBackend is an in-memory inode.DirBackend, standing in for a real
// FAT32 directory the way fakePagedBackend stands in for a real FAT32 file
// in internal/fs/inode's own tests.
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
	d := inode.NewDir(name, newFakeDirBackend(), fixedClock())
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
	f := inode.NewPaged(name, 0, &fakePagedBackend{}, fixedClock())
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

// fakePagedBackend is a no-op PagedBackend; dentry/path-walk tests never
// need to actually read or write file contents.
type fakePagedBackend struct{}

func (fakePagedBackend) ReadPage(pageID uint64, frame []byte) error  { return nil }
func (fakePagedBackend) WritePage(pageID uint64, frame []byte) error { return nil }

func newTestRoot() *DEntryDir {
	return NewRootDEntryDir(inode.NewDir("/", newFakeDirBackend(), fixedClock()))
}

func TestRootParentIsItself(t *testing.T) {
	root := newTestRoot()
	assert.Same(t, root, root.Parent)
}

func TestMkdirThenLookupRoundTrips(t *testing.T) {
	root := newTestRoot()

	sub, err := root.Mkdir("etc")
	require.NoError(t, err)

	entry, err := root.Lookup("etc")
	require.NoError(t, err)
	assert.True(t, entry.IsDir())
	assert.Same(t, sub, entry.AsDir())
}

func TestMkdirDuplicateNameReturnsEEXIST(t *testing.T) {
	root := newTestRoot()
	_, err := root.Mkdir("etc")
	require.NoError(t, err)

	_, err = root.Mkdir("etc")
	assert.Equal(t, kerrno.EEXIST, err)
}

func TestMknodThenLookupRoundTrips(t *testing.T) {
	root := newTestRoot()
	paged, err := root.Mknod("passwd")
	require.NoError(t, err)

	entry, err := root.Lookup("passwd")
	require.NoError(t, err)
	assert.False(t, entry.IsDir())
	assert.Same(t, paged, entry.AsFile())
}

func TestLookupMissingNameReturnsENOENT(t *testing.T) {
	root := newTestRoot()
	_, err := root.Lookup("nope")
	assert.Equal(t, kerrno.ENOENT, err)
}

func TestReadDirListsAllChildrenOnce(t *testing.T) {
	root := newTestRoot()
	_, err := root.Mkdir("etc")
	require.NoError(t, err)
	_, err = root.Mknod("passwd")
	require.NoError(t, err)

	entries, err := root.ReadDir()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLookupDotReturnsSelf(t *testing.T) {
	root := newTestRoot()
	sub, err := root.Mkdir("etc")
	require.NoError(t, err)

	entry, err := sub.Lookup(".")
	require.NoError(t, err)
	assert.Same(t, sub, entry.AsDir())
}

func TestLookupDotDotReturnsParent(t *testing.T) {
	root := newTestRoot()
	sub, err := root.Mkdir("etc")
	require.NoError(t, err)

	entry, err := sub.Lookup("..")
	require.NoError(t, err)
	assert.Same(t, root, entry.AsDir())
}

func TestLookupPopulatesFromExistingBackendEntries(t *testing.T) {
	backend := newFakeDirBackend()
	_, err := backend.Mkdir("bin")
	require.NoError(t, err)

	root := NewRootDEntryDir(inode.NewDir("/", backend, fixedClock()))

	entry, err := root.Lookup("bin")
	require.NoError(t, err)
	assert.True(t, entry.IsDir())
}
