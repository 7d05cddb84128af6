package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asynclear-go/asynclear/internal/kerrno"
)

func newTestFile() *File {
	return &File{Name: "stub"}
}

func TestAddHandsOutLowestUnusedFD(t *testing.T) {
	table := NewFdTable()

	fd0, err := table.Add(NewFileDescriptor(newTestFile(), RDONLY))
	require.NoError(t, err)
	fd1, err := table.Add(NewFileDescriptor(newTestFile(), RDONLY))
	require.NoError(t, err)
	assert.Equal(t, 0, fd0)
	assert.Equal(t, 1, fd1)

	require.True(t, table.Remove(fd0))
	fd2, err := table.Add(NewFileDescriptor(newTestFile(), RDONLY))
	require.NoError(t, err)
	assert.Equal(t, 0, fd2, "the freed fd must be reused before a new high-water mark")
}

func TestGetUnopenedFDReturnsEBADF(t *testing.T) {
	table := NewFdTable()
	_, err := table.Get(7)
	assert.Equal(t, kerrno.EBADF, err)
}

func TestAddFromRespectsMinimum(t *testing.T) {
	table := NewFdTable()
	_, _ = table.Add(NewFileDescriptor(newTestFile(), RDONLY))

	fd, err := table.AddFrom(NewFileDescriptor(newTestFile(), RDONLY), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, fd)
}

func TestInsertReplacesWhateverWasAtFD(t *testing.T) {
	table := NewFdTable()
	first := NewFileDescriptor(newTestFile(), RDONLY)
	fd, err := table.Add(first)
	require.NoError(t, err)

	second := NewFileDescriptor(newTestFile(), WRONLY)
	table.Insert(fd, second)

	got, err := table.Get(fd)
	require.NoError(t, err)
	assert.Same(t, second, got)
}

func TestCloseOnExecRemovesFlaggedDescriptorsOnly(t *testing.T) {
	table := NewFdTable()
	keep, err := table.Add(NewFileDescriptor(newTestFile(), RDONLY))
	require.NoError(t, err)
	drop, err := table.Add(NewFileDescriptor(newTestFile(), RDONLY|CLOEXEC))
	require.NoError(t, err)

	table.CloseOnExec()

	_, err = table.Get(keep)
	assert.NoError(t, err)
	_, err = table.Get(drop)
	assert.Equal(t, kerrno.EBADF, err)
}

func TestOpenFlagsAccessMode(t *testing.T) {
	assert.True(t, RDONLY.Readable())
	assert.False(t, RDONLY.Writable())
	assert.True(t, WRONLY.Writable())
	assert.False(t, WRONLY.Readable())
	assert.True(t, RDWR.Readable())
	assert.True(t, RDWR.Writable())
}

func TestFileDescriptorCloneIsIndependent(t *testing.T) {
	fd := NewFileDescriptor(newTestFile(), RDONLY)
	fd.Advance(10)

	clone := fd.Clone()
	clone.Advance(5)

	assert.EqualValues(t, 10, fd.Offset())
	assert.EqualValues(t, 15, clone.Offset())
}
