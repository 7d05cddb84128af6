package memory

import (
	"context"
	"fmt"
	"io"
	"os"
)

// FileBlockDevice is a BlockDevice backed by a real file or block special
// file (an SD card/virtio-blk node under Linux, or a flat disk image during
// development). Grounded on the same named-collaborator contract as
// BlockDevice itself: the original kernel never implements its own device
// driver either, instead expecting something virtio-blk-shaped to already
// satisfy the trait it reads sectors through.
type FileBlockDevice struct {
	f       *os.File
	sectors uint64
}

// OpenFileBlockDevice opens path read-write and reports its sector count
// from the underlying file's size, truncated down to a whole number of
// sectors.
func OpenFileBlockDevice(path string) (*FileBlockDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("memory: open block device %s: %w", path, err)
	}
	// Seeking to the end yields the size of a block special file too, where
	// Stat reports 0.
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("memory: size block device %s: %w", path, err)
	}
	return &FileBlockDevice{f: f, sectors: uint64(size) / SectorSize}, nil
}

func (d *FileBlockDevice) ReadSector(ctx context.Context, sector uint64, dst []byte) error {
	if sector >= d.sectors {
		return fmt.Errorf("memory: sector %d out of range (device has %d sectors)", sector, d.sectors)
	}
	_, err := d.f.ReadAt(dst[:SectorSize], int64(sector)*SectorSize)
	return err
}

func (d *FileBlockDevice) WriteSector(ctx context.Context, sector uint64, src []byte) error {
	if sector >= d.sectors {
		return fmt.Errorf("memory: sector %d out of range (device has %d sectors)", sector, d.sectors)
	}
	_, err := d.f.WriteAt(src[:SectorSize], int64(sector)*SectorSize)
	return err
}

func (d *FileBlockDevice) SectorCount() uint64 {
	return d.sectors
}

// Close releases the underlying file handle.
func (d *FileBlockDevice) Close() error {
	return d.f.Close()
}
