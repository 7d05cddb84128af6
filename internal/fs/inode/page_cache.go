package inode

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/asynclear-go/asynclear/internal/clock"
	"github.com/asynclear-go/asynclear/internal/memory"
)

// PageState is a BackedPage's load state, matching the original's
// {Invalid, Synced, Dirty} atomic enum (spec §3).
type PageState int32

const (
	// StateInvalid means the page's contents are undefined; it has never
	// been filled from the backend.
	StateInvalid PageState = iota
	// StateSynced means the page's contents match the backend.
	StateSynced
	// StateDirty means the page holds bytes not yet written back to the
	// backend (write-back is unimplemented, spec §1 Non-goals: dirty pages
	// are never flushed by this core).
	StateDirty
)

// BackedPage is one cached page of an inode: a Frame plus its load state.
// The original guards state transitions with an async mutex (state_guard)
// acquired via block_on from synchronous read_at/write_at; here that's a
// plain sync.Mutex, since Go's Mutex.Lock already blocks the calling
// goroutine exactly the way block_on busy-polls a single-hart future to
// completion (spec §5: block_on is reserved for exactly this path).
type BackedPage struct {
	frame *memory.Frame

	mu    sync.Mutex
	state PageState
}

func newBackedPage() *BackedPage {
	return &BackedPage{frame: memory.NewFrame(), state: StateInvalid}
}

// State returns the page's current load state.
func (p *BackedPage) State() PageState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PageCache maps page_id to a shared BackedPage. A page_id resolves to at
// most one BackedPage instance at any time (spec §3); concurrent first
// touches of the same page_id collapse onto one winner via sf, mirroring
// the original's "read under a shared lock, upgrade to exclusive on miss,
// last writer reuses the winner's page" algorithm (spec §4.2 step 3).
type PageCache struct {
	mu    sync.RWMutex
	pages map[uint64]*BackedPage
	sf    singleflight.Group
}

// NewPageCache returns an empty page cache.
func NewPageCache() *PageCache {
	return &PageCache{pages: make(map[uint64]*BackedPage)}
}

// getOrInitPage returns the BackedPage for pageID, creating it if absent.
// Two concurrent misses for the same pageID are collapsed by singleflight
// onto a single creator; every caller, winner or not, receives the same
// *BackedPage instance.
func (c *PageCache) getOrInitPage(pageID uint64) *BackedPage {
	c.mu.RLock()
	if p, ok := c.pages[pageID]; ok {
		c.mu.RUnlock()
		return p
	}
	c.mu.RUnlock()

	key := pageIDKey(pageID)
	v, _, _ := c.sf.Do(key, func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if p, ok := c.pages[pageID]; ok {
			return p, nil
		}
		p := newBackedPage()
		c.pages[pageID] = p
		return p, nil
	})
	return v.(*BackedPage)
}

func pageIDKey(pageID uint64) string {
	// singleflight keys on string; a page id fits without allocation-heavy
	// formatting tricks mattering at this scale.
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(pageID >> (8 * i))
	}
	return string(buf)
}

// ensureSynced brings p to at least StateSynced, reading pageID from backend
// if it is currently Invalid. Double-checks state after acquiring the lock,
// matching spec §4.2 step 4.
func ensureSynced(p *BackedPage, backend PagedBackend, pageID uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateInvalid {
		return nil
	}
	if err := backend.ReadPage(pageID, p.frame.Bytes()); err != nil {
		return err
	}
	p.state = StateSynced
	return nil
}

// ReadAt implements the page-cache read algorithm of spec §4.2. It copies
// into out starting at offset and returns the number of bytes copied. On a
// non-empty copy it bumps the inode's access time (step 6).
func (pg *Paged) ReadAt(out []byte, offset uint64, now clock.Clock) (int, error) {
	dataLen := pg.Meta.DataLen()
	if offset >= dataLen {
		return 0, nil
	}

	length := len(out)
	if remaining := dataLen - offset; uint64(length) > remaining {
		length = int(remaining)
	}
	if length == 0 {
		return 0, nil
	}

	n := 0
	for n < length {
		pos := offset + uint64(n)
		pageID := pos / memory.PageSize
		pageOff := pos % memory.PageSize

		page := pg.cache.getOrInitPage(pageID)
		if page.State() == StateInvalid {
			if err := ensureSynced(page, pg.Backend, pageID); err != nil {
				return n, err
			}
		}

		toCopy := length - n
		if avail := memory.PageSize - int(pageOff); toCopy > avail {
			toCopy = avail
		}

		page.mu.Lock()
		copy(out[n:n+toCopy], page.frame.Bytes()[pageOff:pageOff+uint64(toCopy)])
		page.mu.Unlock()

		n += toCopy
	}

	if n > 0 {
		pg.Meta.TouchAtime(now)
	}
	return n, nil
}

// WriteAt implements the page-cache write algorithm of spec §4.2. It copies
// from in starting at offset, extending the inode's data length as needed,
// and returns the number of bytes written.
func (pg *Paged) WriteAt(in []byte, offset uint64, now clock.Clock) (int, error) {
	length := len(in)
	if length == 0 {
		return 0, nil
	}

	dataLen := pg.Meta.DataLen()
	lastByte := offset + uint64(length) - 1
	// dataLen / PageSize, not (dataLen-1)/PageSize: the page holding the byte
	// just past the current end counts as inside the file, so a write landing
	// exactly on that boundary still takes the preserving-read path.
	lastPageID := dataLen / memory.PageSize

	n := 0
	for n < length {
		pos := offset + uint64(n)
		pageID := pos / memory.PageSize
		pageOff := pos % memory.PageSize

		toCopy := length - n
		if avail := memory.PageSize - int(pageOff); toCopy > avail {
			toCopy = avail
		}

		pageStart := pageID * memory.PageSize
		pageEnd := pageStart + memory.PageSize - 1
		fullyOverwritten := offset <= pageStart && pageEnd <= lastByte

		page := pg.cache.getOrInitPage(pageID)
		if err := writePageBytes(page, pg.Backend, pageID, dataLen, lastPageID, fullyOverwritten, in[n:n+toCopy], pageOff); err != nil {
			return n, err
		}

		n += toCopy
	}

	pg.Meta.ExtendAndTouch(offset+uint64(length), now)
	return n, nil
}

// writePageBytes implements one page's worth of spec §4.2's write algorithm
// step 2-3: preserve unmodified bytes with a backend read unless the page is
// fully overwritten or lies past EOF, then copy in and mark Dirty.
func writePageBytes(page *BackedPage, backend PagedBackend, pageID, dataLen, lastPageID uint64, fullyOverwritten bool, src []byte, pageOff uint64) error {
	page.mu.Lock()
	defer page.mu.Unlock()

	if page.state == StateInvalid {
		pastEOF := pageID > lastPageID || dataLen == 0
		if !fullyOverwritten && !pastEOF {
			if err := backend.ReadPage(pageID, page.frame.Bytes()); err != nil {
				return err
			}
		}
	}

	copy(page.frame.Bytes()[pageOff:pageOff+uint64(len(src))], src)
	page.state = StateDirty
	return nil
}
