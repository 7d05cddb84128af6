package memory

import (
	"context"
	"fmt"
)

// FakeBlockDevice is an in-memory BlockDevice, used by fs/fat32 tests the way
// gcsfuse's internal/storage/fake package gives tests an in-memory gcs.Bucket
// instead of talking to real GCS.
type FakeBlockDevice struct {
	sectors [][SectorSize]byte
}

// NewFakeBlockDevice returns a zeroed device with the given sector count.
func NewFakeBlockDevice(sectorCount uint64) *FakeBlockDevice {
	return &FakeBlockDevice{sectors: make([][SectorSize]byte, sectorCount)}
}

func (d *FakeBlockDevice) ReadSector(ctx context.Context, sector uint64, dst []byte) error {
	if sector >= uint64(len(d.sectors)) {
		return fmt.Errorf("memory: sector %d out of range (device has %d sectors)", sector, len(d.sectors))
	}
	copy(dst, d.sectors[sector][:])
	return nil
}

func (d *FakeBlockDevice) WriteSector(ctx context.Context, sector uint64, src []byte) error {
	if sector >= uint64(len(d.sectors)) {
		return fmt.Errorf("memory: sector %d out of range (device has %d sectors)", sector, len(d.sectors))
	}
	copy(d.sectors[sector][:], src)
	return nil
}

func (d *FakeBlockDevice) SectorCount() uint64 {
	return uint64(len(d.sectors))
}
