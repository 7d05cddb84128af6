package inode

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asynclear-go/asynclear/internal/clock"
	"github.com/asynclear-go/asynclear/internal/memory"
)

// fakePagedBackend is an in-memory PagedBackend for exercising the page
// cache without a real FAT32 device underneath it.
type fakePagedBackend struct {
	mu     sync.Mutex
	pages  map[uint64][]byte
	reads  int
	writes int
}

func newFakePagedBackend() *fakePagedBackend {
	return &fakePagedBackend{pages: make(map[uint64][]byte)}
}

func (b *fakePagedBackend) ReadPage(pageID uint64, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	if data, ok := b.pages[pageID]; ok {
		copy(frame, data)
	}
	return nil
}

func (b *fakePagedBackend) WritePage(pageID uint64, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	cp := make([]byte, len(frame))
	copy(cp, frame)
	b.pages[pageID] = cp
	return nil
}

func fixedClock() clock.Clock {
	return clock.NewFakeClock(time.Unix(1700000000, 0))
}

func TestReadAtReturnsZeroPastEOF(t *testing.T) {
	backend := newFakePagedBackend()
	p := NewPaged("f", 10, backend, fixedClock())

	buf := make([]byte, 8)
	n, err := p.ReadAt(buf, 10, fixedClock())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestZeroByteReadDoesNotAdvanceState(t *testing.T) {
	backend := newFakePagedBackend()
	p := NewPaged("f", 10, backend, fixedClock())

	n, err := p.ReadAt(nil, 0, fixedClock())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, backend.reads)
}

func TestWriteThenImmediateReadBackRoundTrips(t *testing.T) {
	backend := newFakePagedBackend()
	p := NewPaged("f", 0, backend, fixedClock())

	n, err := p.WriteAt([]byte("world"), 0, fixedClock())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 8)
	n, err = p.ReadAt(buf, 0, fixedClock())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf[:5]))
}

func TestPageCrossingWritePreservesUntouchedBytes(t *testing.T) {
	backend := newFakePagedBackend()
	all := bytes.Repeat([]byte{'A'}, memory.PageSize)
	require.NoError(t, backend.WritePage(0, all))

	p := NewPaged("f", memory.PageSize, backend, fixedClock())

	_, err := p.WriteAt([]byte("XYZW"), memory.PageSize-2, fixedClock())
	require.NoError(t, err)

	buf := make([]byte, memory.PageSize+4)
	n, err := p.ReadAt(buf, 0, fixedClock())
	require.NoError(t, err)
	assert.Equal(t, memory.PageSize+2, n)

	want := append(bytes.Repeat([]byte{'A'}, memory.PageSize-2), []byte("XYZW")...)
	assert.Equal(t, want, buf[:n])
}

func TestWritePastEOFExtendsDataLen(t *testing.T) {
	backend := newFakePagedBackend()
	p := NewPaged("f", 10, backend, fixedClock())

	n, err := p.WriteAt([]byte("z"), 100, fixedClock())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 101, p.Meta.DataLen())
}

func TestConcurrentPageMissesCollapseToOneBackedPage(t *testing.T) {
	backend := newFakePagedBackend()
	p := NewPaged("f", memory.PageSize, backend, fixedClock())

	var wg sync.WaitGroup
	pages := make([]*BackedPage, 16)
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			pages[i] = p.cache.getOrInitPage(0)
		}()
	}
	wg.Wait()

	for i := 1; i < 16; i++ {
		assert.Same(t, pages[0], pages[i])
	}
}

func TestPageStateNeverRegressesToInvalid(t *testing.T) {
	backend := newFakePagedBackend()
	p := NewPaged("f", 0, backend, fixedClock())

	_, err := p.WriteAt([]byte("a"), 0, fixedClock())
	require.NoError(t, err)

	page := p.cache.getOrInitPage(0)
	assert.Equal(t, StateDirty, page.State())

	buf := make([]byte, 1)
	_, err = p.ReadAt(buf, 0, fixedClock())
	require.NoError(t, err)
	assert.NotEqual(t, StateInvalid, page.State())
}
