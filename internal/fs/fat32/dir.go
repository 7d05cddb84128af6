package fat32

import (
	"context"

	"github.com/asynclear-go/asynclear/internal/clock"
	"github.com/asynclear-go/asynclear/internal/fs/inode"
	"github.com/asynclear-go/asynclear/internal/kerrno"
	"github.com/asynclear-go/asynclear/internal/memory"
)

// Fat32Dir is the inode.DirBackend for a FAT32 directory: its own cluster
// chain, read as a sequence of 32-byte entries. Lookup/ReadDir re-scan the
// chain on every call — DEntryDir above this layer owns the children cache
// (spec §4.4); this backend is deliberately dumb and re-entrant.
type Fat32Dir struct {
	fat     *FileAllocTable
	cluster uint32
	now     clock.Clock
}

// NewFat32Dir wraps the directory starting at cluster as a DirBackend.
func NewFat32Dir(fat *FileAllocTable, cluster uint32, now clock.Clock) *Fat32Dir {
	return &Fat32Dir{fat: fat, cluster: cluster, now: now}
}

func (d *Fat32Dir) entriesPerSector() int { return memory.SectorSize / rawDirEntrySize }

// scan reads every live (non-deleted, non-LFN, non-volume-ID) entry in the
// directory.
func (d *Fat32Dir) scan() ([]*DirEntry, error) {
	ctx := context.Background()
	chain := d.fat.ClusterChain(d.cluster)

	var entries []*DirEntry
	buf := make([]byte, memory.SectorSize)
	perSector := d.entriesPerSector()

outer:
	for _, clusterID := range chain {
		start, count := d.fat.ClusterSectors(clusterID)
		for s := uint32(0); s < count; s++ {
			if err := d.fat.Device.ReadSector(ctx, start+uint64(s), buf); err != nil {
				return nil, err
			}
			for i := 0; i < perSector; i++ {
				raw := buf[i*rawDirEntrySize : (i+1)*rawDirEntrySize]
				if raw[0] == 0x00 {
					break outer
				}
				entry, ok := parseDirEntry(raw)
				if !ok {
					continue
				}
				entries = append(entries, entry)
			}
		}
	}
	return entries, nil
}

// Lookup implements inode.DirBackend.
func (d *Fat32Dir) Lookup(name string) (*inode.Dir, *inode.Paged, error) {
	entries, err := d.scan()
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.Name() != name {
			continue
		}
		if e.IsDir() {
			return inode.NewDir(name, NewFat32Dir(d.fat, e.FirstClusterID(), d.now), d.now), nil, nil
		}
		return nil, FromDirEntry(d.fat, e, d.now), nil
	}
	return nil, nil, kerrno.ENOENT
}

// ReadDir implements inode.DirBackend.
func (d *Fat32Dir) ReadDir() ([]inode.Dirent, error) {
	entries, err := d.scan()
	if err != nil {
		return nil, err
	}
	out := make([]inode.Dirent, 0, len(entries))
	for _, e := range entries {
		mode := inode.ModeFile
		if e.IsDir() {
			mode = inode.ModeDir
		}
		// Ino is left zero here: FAT32 has no on-disk inode number, and a
		// real one is only minted once something (DEntryDir's children
		// cache) turns this raw entry into an actual inode.
		out = append(out, inode.Dirent{Name: e.Name(), Mode: mode})
	}
	return out, nil
}

// Mknod implements inode.DirBackend: allocates a cluster for a new regular
// file and appends its directory entry.
func (d *Fat32Dir) Mknod(name string) (*inode.Paged, error) {
	ctx := context.Background()
	if _, _, err := d.Lookup(name); err == nil {
		return nil, kerrno.EEXIST
	}

	paged, err := Create(ctx, d.fat, name, d.now)
	if err != nil {
		return nil, err
	}

	f := paged.Backend.(*FatFile)
	if err := d.appendEntry(name, f.clusters[0], false); err != nil {
		return nil, err
	}
	return paged, nil
}

// Mkdir implements inode.DirBackend: allocates a cluster for a new directory
// (left empty — a zeroed cluster already reads as "no entries" since its
// first byte is 0x00) and appends its directory entry.
func (d *Fat32Dir) Mkdir(name string) (*inode.Dir, error) {
	ctx := context.Background()
	if _, _, err := d.Lookup(name); err == nil {
		return nil, kerrno.EEXIST
	}

	cluster, err := d.fat.AllocCluster(ctx, 0)
	if err != nil {
		return nil, err
	}
	if err := d.zeroCluster(ctx, cluster); err != nil {
		return nil, err
	}
	if err := d.appendEntry(name, cluster, true); err != nil {
		return nil, err
	}
	return inode.NewDir(name, NewFat32Dir(d.fat, cluster, d.now), d.now), nil
}

func (d *Fat32Dir) zeroCluster(ctx context.Context, cluster uint32) error {
	start, count := d.fat.ClusterSectors(cluster)
	zero := make([]byte, memory.SectorSize)
	for s := uint32(0); s < count; s++ {
		if err := d.fat.Device.WriteSector(ctx, start+uint64(s), zero); err != nil {
			return err
		}
	}
	return nil
}

// appendEntry writes one new short-name directory entry into the first free
// slot of this directory's cluster chain, extending the chain if it is
// already full.
func (d *Fat32Dir) appendEntry(name string, firstCluster uint32, isDir bool) error {
	ctx := context.Background()
	chain := d.fat.ClusterChain(d.cluster)
	perSector := d.entriesPerSector()

	buf := make([]byte, memory.SectorSize)
	for _, clusterID := range chain {
		start, count := d.fat.ClusterSectors(clusterID)
		for s := uint32(0); s < count; s++ {
			if err := d.fat.Device.ReadSector(ctx, start+uint64(s), buf); err != nil {
				return err
			}
			for i := 0; i < perSector; i++ {
				raw := buf[i*rawDirEntrySize : (i+1)*rawDirEntrySize]
				if raw[0] == 0x00 || raw[0] == 0xE5 {
					encodeDirEntry(raw, name, firstCluster, isDir, d.now)
					return d.fat.Device.WriteSector(ctx, start+uint64(s), buf)
				}
			}
		}
	}

	// Chain is full: allocate a trailing cluster, zero it, and write the new
	// entry into its first slot.
	last := chain[len(chain)-1]
	next, err := d.fat.AllocCluster(ctx, last)
	if err != nil {
		return err
	}
	if err := d.zeroCluster(ctx, next); err != nil {
		return err
	}
	start, _ := d.fat.ClusterSectors(next)
	if err := d.fat.Device.ReadSector(ctx, start, buf); err != nil {
		return err
	}
	encodeDirEntry(buf[0:rawDirEntrySize], name, firstCluster, isDir, d.now)
	return d.fat.Device.WriteSector(ctx, start, buf)
}

// encodeDirEntry packs name/firstCluster/isDir/current time into a raw
// 32-byte short-name entry.
func encodeDirEntry(raw []byte, name string, firstCluster uint32, isDir bool, now clock.Clock) {
	encodeShortName(raw[0:11], name)
	attr := byte(attrArchive)
	if isDir {
		attr = attrDirectory
	}
	raw[11] = attr

	t := now.Now()
	date := timeToFATDate(t)
	clk := timeToFATTime(t)
	putLE16(raw[14:16], clk)
	putLE16(raw[16:18], date)
	putLE16(raw[18:20], date)
	putLE16(raw[20:22], uint16(firstCluster>>16))
	putLE16(raw[22:24], clk)
	putLE16(raw[24:26], date)
	putLE16(raw[26:28], uint16(firstCluster))
	putLE32(raw[28:32], 0)
}

// encodeShortName packs name (assumed already 8.3-shaped) into the 11-byte
// fixed field, space-padded. Unlike strict FAT8.3, the case given is kept
// verbatim rather than forced to uppercase: this backend never has to
// interoperate with DOS-era tooling that relies on the NT case-preservation
// bits, so preserving case directly (and decoding it back verbatim in
// decodeShortName) is simpler and round-trips exactly.
func encodeShortName(dst []byte, name string) {
	for i := range dst {
		dst[i] = ' '
	}
	base, ext := splitExt(name)
	copy(dst[0:8], base)
	copy(dst[8:11], ext)
}

func splitExt(name string) (base, ext string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}

// DiskSpace implements inode.DirBackend by scanning the in-memory FAT for
// free clusters. Acceptable for a read-mostly backend; a production
// implementation would keep a running free-cluster count instead.
func (d *Fat32Dir) DiskSpace() (free, total uint64, err error) {
	d.fat.mu.Lock()
	defer d.fat.mu.Unlock()

	clusterBytes := uint64(d.fat.SectorsPerCluster()) * memory.SectorSize
	for i := 2; i < len(d.fat.fat); i++ {
		total++
		if d.fat.fat[i]&fatEntryMask == clusterFree {
			free++
		}
	}
	return free * clusterBytes, total * clusterBytes, nil
}
