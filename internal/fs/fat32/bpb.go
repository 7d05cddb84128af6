package fat32

import (
	"context"
	"fmt"

	"github.com/asynclear-go/asynclear/internal/memory"
)

// ReadLayout reads sector 0 (the BIOS Parameter Block) off device and
// extracts the handful of FAT32 geometry fields this backend needs. Not
// grounded on original_source — fat.rs/dir_entry.rs, which would parse the
// BPB on the original side, were not in the retrieval pack — so this follows
// the standard FAT32 BPB field offsets instead (Microsoft's published
// "fatgen103" layout), the way any from-scratch FAT32 reader would.
func ReadLayout(ctx context.Context, device memory.BlockDevice) (Layout, error) {
	sector := make([]byte, memory.SectorSize)
	if err := device.ReadSector(ctx, 0, sector); err != nil {
		return Layout{}, fmt.Errorf("fat32: read boot sector: %w", err)
	}

	bytesPerSector := le16(sector[11:13])
	if bytesPerSector != memory.SectorSize {
		return Layout{}, fmt.Errorf("fat32: boot sector declares %d bytes/sector, want %d", bytesPerSector, memory.SectorSize)
	}

	return Layout{
		ReservedSectors:   uint32(le16(sector[14:16])),
		NumFATs:           uint32(sector[16]),
		SectorsPerFAT:     le32(sector[36:40]),
		SectorsPerCluster: uint32(sector[13]),
		RootCluster:       le32(sector[44:48]),
	}, nil
}
