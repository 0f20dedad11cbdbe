package device

import (
	"bytes"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseDevice(t *testing.T, dev common.BlockDevice) {
	t.Helper()
	ss := dev.SectorSize()

	out := bytes.Repeat([]byte{0xAB}, ss)
	require.NoError(t, dev.WriteSector(2, out))

	in := make([]byte, ss)
	require.NoError(t, dev.ReadSector(2, in))
	assert.Equal(t, out, in)

	require.NoError(t, dev.ReadSector(1, in))
	assert.Equal(t, make([]byte, ss), in, "untouched sectors read as zero")

	last := uint32(dev.SectorCount() - 1)
	assert.NoError(t, dev.WriteSector(last, out))
	assert.ErrorIs(t, dev.WriteSector(last+1, out), common.EINVAL)
	assert.ErrorIs(t, dev.ReadSector(0, make([]byte, ss-1)), common.EINVAL)

	require.NoError(t, dev.Close())
	assert.ErrorIs(t, dev.ReadSector(0, in), common.EBADF)
	assert.ErrorIs(t, dev.Close(), common.EBADF)
}

func TestRamdiskDevice(t *testing.T) {
	dev, err := NewRamdiskDevice(64, 16)
	require.NoError(t, err)
	assert.Equal(t, 64, dev.SectorSize())
	assert.Equal(t, 16, dev.SectorCount())
	exerciseDevice(t, dev)
}

func TestRamdiskGeometry(t *testing.T) {
	_, err := NewRamdiskDevice(30, 16)
	assert.ErrorIs(t, err, common.EINVAL)
	_, err = NewRamdiskDevice(64, 1)
	assert.ErrorIs(t, err, common.EINVAL)
}

func TestFileDevice(t *testing.T) {
	bfs := memfs.New()
	dev, err := NewFileDevice(bfs, "disk.img", 64, 16)
	require.NoError(t, err)

	fi, err := bfs.Stat("disk.img")
	require.NoError(t, err)
	assert.Equal(t, int64(64*16), fi.Size())

	exerciseDevice(t, dev)
}

func TestFileDevicePersists(t *testing.T) {
	bfs := memfs.New()
	dev, err := NewFileDevice(bfs, "disk.img", 32, 8)
	require.NoError(t, err)

	out := bytes.Repeat([]byte("sector05"), 4)
	require.NoError(t, dev.WriteSector(5, out))
	require.NoError(t, dev.Close())

	// reopen and take the geometry from the image size
	dev, err = NewFileDevice(bfs, "disk.img", 32, 0)
	require.NoError(t, err)
	defer dev.Close()
	assert.Equal(t, 8, dev.SectorCount())

	in := make([]byte, 32)
	require.NoError(t, dev.ReadSector(5, in))
	assert.Equal(t, out, in)
}

func TestFileDeviceNeedsCount(t *testing.T) {
	_, err := NewFileDevice(memfs.New(), "missing.img", 32, 0)
	assert.ErrorIs(t, err, common.EINVAL)
}
