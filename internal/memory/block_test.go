package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeBlockDeviceRoundTrip(t *testing.T) {
	dev := NewFakeBlockDevice(4)
	ctx := context.Background()

	want := bytes.Repeat([]byte{0xAB}, SectorSize)
	require.NoError(t, dev.WriteSector(ctx, 2, want))

	got := make([]byte, SectorSize)
	require.NoError(t, dev.ReadSector(ctx, 2, got))
	assert.Equal(t, want, got)

	// Untouched sectors read back as zero.
	zero := make([]byte, SectorSize)
	got2 := make([]byte, SectorSize)
	require.NoError(t, dev.ReadSector(ctx, 0, got2))
	assert.Equal(t, zero, got2)
}

func TestFakeBlockDeviceOutOfRange(t *testing.T) {
	dev := NewFakeBlockDevice(1)
	ctx := context.Background()

	buf := make([]byte, SectorSize)
	assert.Error(t, dev.ReadSector(ctx, 5, buf))
	assert.Error(t, dev.WriteSector(ctx, 5, buf))
}

func TestFrameBytesLength(t *testing.T) {
	f := NewFrame()
	assert.Len(t, f.Bytes(), PageSize)
}
