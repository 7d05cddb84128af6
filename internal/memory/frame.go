// Package memory names the interfaces the core subsystems need from the
// physical frame allocator and block device, without designing either: both
// are explicitly external collaborators per the kernel's scope (the
// allocator, the MMU, the block device driver belong to other subsystems).
package memory

// PageSize is the size in bytes of one physical page frame, and therefore of
// one page-cache entry.
const PageSize = 4096

// SectorSize is the size in bytes of one block-device sector.
const SectorSize = 512

// SectorsPerPage is how many device sectors back one page.
const SectorsPerPage = PageSize / SectorSize

// Frame is exclusive ownership of one physical page. The real allocator
// hands these out and reclaims them on eviction; this core obtains a Frame
// only through NewFrame, the seam standing in for that allocator, and never
// frees one itself. Exactly one
// mutable view exists at a time, which the page cache enforces by gating all
// access to a BackedPage's Frame behind that page's state_guard.
type Frame struct {
	buf [PageSize]byte
}

// Bytes returns the frame's full backing storage for in-place reads/writes.
func (f *Frame) Bytes() []byte {
	return f.buf[:]
}

// NewFrame allocates a zeroed Frame. Standing in for the real physical frame
// allocator named in spec §2, which this core treats as an external
// collaborator; callers needing the real allocator's accounting (free list,
// PPN tracking) must substitute their own Frame source at this seam.
func NewFrame() *Frame {
	return &Frame{}
}
