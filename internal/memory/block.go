package memory

import "context"

// BlockDevice is the contract the FAT32 backend needs from the block device
// driver: fixed-size sector reads and writes. Named, not designed, per the
// kernel's scope — the driver that implements it (talking to virtio-blk, an
// SD card controller, or a RAM disk in tests) lives outside this core,
// exactly the way gcsfuse names a gcs.Bucket interface for the real bucket
// object its VFS layer never implements itself.
type BlockDevice interface {
	// ReadSector reads exactly SectorSize bytes starting at the given sector
	// index into dst. len(dst) must be >= SectorSize.
	ReadSector(ctx context.Context, sector uint64, dst []byte) error

	// WriteSector writes exactly SectorSize bytes from src to the given
	// sector index. len(src) must be >= SectorSize.
	WriteSector(ctx context.Context, sector uint64, src []byte) error

	// SectorCount reports the device's total capacity in sectors.
	SectorCount() uint64
}
