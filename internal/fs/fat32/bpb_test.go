package fat32

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asynclear-go/asynclear/internal/memory"
)

// buildBootSector writes a minimal BPB with the given geometry at the byte
// offsets the FAT32 spec defines; every other byte stays zero, which is fine
// since ReadLayout only reads the fields it needs.
func buildBootSector(reservedSectors, numFATs, sectorsPerFAT, rootCluster uint32, sectorsPerCluster byte) []byte {
	b := make([]byte, memory.SectorSize)
	putLE16(b[11:13], memory.SectorSize)
	b[13] = sectorsPerCluster
	putLE16(b[14:16], uint16(reservedSectors))
	b[16] = byte(numFATs)
	putLE32(b[36:40], sectorsPerFAT)
	putLE32(b[44:48], rootCluster)
	return b
}

func TestReadLayoutParsesBootSectorFields(t *testing.T) {
	device := memory.NewFakeBlockDevice(8)
	require.NoError(t, device.WriteSector(context.Background(), 0, buildBootSector(32, 2, 16, 2, 8)))

	layout, err := ReadLayout(context.Background(), device)
	require.NoError(t, err)
	assert.EqualValues(t, 32, layout.ReservedSectors)
	assert.EqualValues(t, 2, layout.NumFATs)
	assert.EqualValues(t, 16, layout.SectorsPerFAT)
	assert.EqualValues(t, 8, layout.SectorsPerCluster)
	assert.EqualValues(t, 2, layout.RootCluster)
}

func TestReadLayoutWrongSectorSizeReturnsError(t *testing.T) {
	device := memory.NewFakeBlockDevice(1)
	sector := make([]byte, memory.SectorSize)
	putLE16(sector[11:13], 1024)
	require.NoError(t, device.WriteSector(context.Background(), 0, sector))

	_, err := ReadLayout(context.Background(), device)
	assert.Error(t, err)
}
