// Package fat32 implements the paged-inode backend this kernel mounts at
// root: a read-mostly FAT32 filesystem sitting on a memory.BlockDevice.
// Grounded on original_source/crates/kernel/src/fs/fat32/{file.rs,fat.rs,
// dir_entry.rs} (fat.rs/dir_entry.rs themselves were not in the retrieval
// pack's kept-file list, so FileAllocTable/DirEntry below are authored fresh
// from the contract file.rs calls on them — sector_per_cluster,
// cluster_chain, cluster_sectors, alloc_cluster, block_device — rather than
// copied from a source that wasn't retrieved).
package fat32

import (
	"context"
	"sync"

	"github.com/asynclear-go/asynclear/internal/kerrno"
	"github.com/asynclear-go/asynclear/internal/memory"
)

// clusterFree, clusterEOCLo classify FAT32 cluster-chain entries. Values
// 0x0FFFFFF8-0x0FFFFFFF all mean "end of chain"; newly allocated clusters are
// marked with the highest, clusterEOC.
const (
	clusterFree  uint32 = 0x00000000
	clusterEOC   uint32 = 0x0FFFFFFF
	clusterEOCLo uint32 = 0x0FFFFFF8
	fatEntryMask uint32 = 0x0FFFFFFF
)

// Layout describes the on-disk geometry of a mounted FAT32 volume, the
// portion of the boot sector the backend actually needs.
type Layout struct {
	ReservedSectors   uint32
	NumFATs           uint32
	SectorsPerFAT     uint32
	SectorsPerCluster uint32
	RootCluster       uint32
}

// FileAllocTable holds the in-memory copy of a mounted volume's cluster
// chain table plus the block device it is backed by. Cluster allocation is
// single-writer (spec §3), enforced by mu.
type FileAllocTable struct {
	Device memory.BlockDevice
	layout Layout

	mu  sync.Mutex
	fat []uint32 // one entry per cluster, index 0 and 1 unused per FAT32 convention
}

// Load reads the FAT region of device into memory and returns a ready
// FileAllocTable.
func Load(ctx context.Context, device memory.BlockDevice, layout Layout) (*FileAllocTable, error) {
	entriesPerSector := memory.SectorSize / 4
	total := int(layout.SectorsPerFAT) * entriesPerSector
	fat := make([]uint32, total)

	buf := make([]byte, memory.SectorSize)
	for s := uint32(0); s < layout.SectorsPerFAT; s++ {
		if err := device.ReadSector(ctx, uint64(layout.ReservedSectors+s), buf); err != nil {
			return nil, err
		}
		for i := 0; i < entriesPerSector; i++ {
			off := i * 4
			fat[int(s)*entriesPerSector+i] = le32(buf[off : off+4])
		}
	}

	return &FileAllocTable{Device: device, layout: layout, fat: fat}, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// SectorsPerCluster reports the volume's cluster size in sectors.
func (t *FileAllocTable) SectorsPerCluster() uint32 { return t.layout.SectorsPerCluster }

// RootCluster reports the root directory's starting cluster.
func (t *FileAllocTable) RootCluster() uint32 { return t.layout.RootCluster }

// dataStartSector is the first sector of cluster 2, the lowest valid data
// cluster in FAT32.
func (t *FileAllocTable) dataStartSector() uint64 {
	fatSectors := uint64(t.layout.NumFATs) * uint64(t.layout.SectorsPerFAT)
	return uint64(t.layout.ReservedSectors) + fatSectors
}

// ClusterSectors returns the sector range backing clusterID.
func (t *FileAllocTable) ClusterSectors(clusterID uint32) (start uint64, count uint32) {
	start = t.dataStartSector() + uint64(clusterID-2)*uint64(t.layout.SectorsPerCluster)
	return start, t.layout.SectorsPerCluster
}

// ClusterChain walks the chain starting at startCluster and returns every
// cluster id in order, up to (and not including) the end-of-chain marker.
func (t *FileAllocTable) ClusterChain(startCluster uint32) []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var chain []uint32
	cluster := startCluster
	for cluster >= 2 && int(cluster) < len(t.fat) {
		chain = append(chain, cluster)
		next := t.fat[cluster] & fatEntryMask
		if next >= clusterEOCLo || next == clusterFree {
			break
		}
		cluster = next
	}
	return chain
}

// AllocCluster finds a free cluster, marks it end-of-chain, links prev to it
// if prev is non-zero, and persists both updated FAT entries to the device.
// Returns kerrno.ENOSPC if no free cluster remains, matching spec §7's
// "cluster allocation exhaustion -> ENOSPC".
func (t *FileAllocTable) AllocCluster(ctx context.Context, prev uint32) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	free := uint32(0)
	for i := 2; i < len(t.fat); i++ {
		if t.fat[i]&fatEntryMask == clusterFree {
			free = uint32(i)
			break
		}
	}
	if free == 0 {
		return 0, kerrno.ENOSPC
	}

	t.fat[free] = clusterEOC
	if err := t.writeFATEntry(ctx, free); err != nil {
		return 0, err
	}
	if prev != 0 {
		t.fat[prev] = free
		if err := t.writeFATEntry(ctx, prev); err != nil {
			return 0, err
		}
	}
	return free, nil
}

// writeFATEntry persists the current in-memory value of one FAT entry back
// to every FAT copy on disk (FAT32 volumes conventionally keep NumFATs
// identical mirrors).
func (t *FileAllocTable) writeFATEntry(ctx context.Context, cluster uint32) error {
	entriesPerSector := uint32(memory.SectorSize / 4)
	sectorInFAT := cluster / entriesPerSector
	offsetInSector := (cluster % entriesPerSector) * 4

	buf := make([]byte, memory.SectorSize)
	for fatIdx := uint32(0); fatIdx < t.layout.NumFATs; fatIdx++ {
		sector := uint64(t.layout.ReservedSectors) + uint64(fatIdx)*uint64(t.layout.SectorsPerFAT) + uint64(sectorInFAT)
		if err := t.Device.ReadSector(ctx, sector, buf); err != nil {
			return err
		}
		putLE32(buf[offsetInSector:offsetInSector+4], t.fat[cluster])
		if err := t.Device.WriteSector(ctx, sector, buf); err != nil {
			return err
		}
	}
	return nil
}
