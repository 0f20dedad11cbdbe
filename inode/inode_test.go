package inode

import (
	"testing"

	"github.com/jnwhiteh/sectorfs/alloctbl"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 32 byte sectors: two extents in the primary sector, seven per
// continuation sector.
func setup(test *testing.T, sectors int) (common.BlockDevice, *alloctbl.AllocTbl) {
	dev := testutils.NewBlankDevice(test, 32, sectors)
	alloc := alloctbl.NewAllocTbl(dev)
	alloc.Format()
	return dev, alloc
}

func TestContinuations(test *testing.T) {
	cases := []struct{ extents, want int }{
		{0, 0}, {2, 0}, {3, 1}, {9, 1}, {10, 2}, {16, 2}, {17, 3},
	}
	for _, c := range cases {
		assert.Equal(test, c.want, continuations(c.extents, 32), "%d extents", c.extents)
	}
}

func TestSaveLoadRoundTrip(test *testing.T) {
	dev, alloc := setup(test, 200)

	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)
	rip.Links = 3
	rip.Uses = 1
	require.NoError(test, rip.Resize(20*32+5))
	require.NoError(test, rip.Save())
	assert.Len(test, rip.Extents, 21)
	assert.Len(test, rip.chain, 3)

	got, err := Load(dev, alloc, rip.Addr)
	require.NoError(test, err)
	assert.Equal(test, rip.Size, got.Size)
	assert.Equal(test, rip.Type, got.Type)
	assert.Equal(test, rip.Links, got.Links)
	assert.Equal(test, rip.Uses, got.Uses)
	assert.Equal(test, rip.Extents, got.Extents)
	assert.Equal(test, rip.chain, got.chain)
}

func TestResizeIsIdempotent(test *testing.T) {
	dev, alloc := setup(test, 100)
	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)

	require.NoError(test, rip.Resize(100))
	extents := append([]uint32(nil), rip.Extents...)
	free := alloc.FreeCount()

	require.NoError(test, rip.Resize(100))
	assert.Equal(test, extents, rip.Extents)
	assert.Equal(test, uint32(100), rip.Size)
	assert.Equal(test, free, alloc.FreeCount())
}

func TestShrinkReleasesSectors(test *testing.T) {
	dev, alloc := setup(test, 100)
	start := alloc.FreeCount()

	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)
	require.NoError(test, rip.Resize(12*32))
	require.NoError(test, rip.Save())
	assert.Equal(test, start-1-12-2, alloc.FreeCount())

	require.NoError(test, rip.Resize(33))
	require.NoError(test, rip.Save())
	assert.Len(test, rip.Extents, 2)
	assert.Empty(test, rip.chain, "continuation sectors released on save")
	assert.Equal(test, start-1-2, alloc.FreeCount())

	for _, addr := range rip.Extents {
		assert.False(test, alloc.IsFree(addr))
	}
}

func TestResizeOutOfSpace(test *testing.T) {
	dev, alloc := setup(test, 10) // 8 free sectors
	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)
	require.NoError(test, rip.Resize(64))
	free := alloc.FreeCount()

	err = rip.Resize(32 * 20)
	assert.ErrorIs(test, err, common.ENOSPC)
	assert.Equal(test, uint32(64), rip.Size)
	assert.Len(test, rip.Extents, 2)
	assert.Equal(test, free, alloc.FreeCount())
}

func TestResizeReservesIndex(test *testing.T) {
	dev, alloc := setup(test, 10) // 8 free sectors
	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)

	// seven data sectors would leave nothing for the index sector
	assert.ErrorIs(test, rip.Resize(7*32), common.ENOSPC)
	assert.Empty(test, rip.Extents)
	assert.Empty(test, rip.chain)
	assert.Equal(test, 7, alloc.FreeCount())

	require.NoError(test, rip.Resize(6*32))
	assert.Equal(test, 0, alloc.FreeCount())
	require.NoError(test, rip.Save())
	assert.Len(test, rip.IndexSectors(), 2)
}

func TestSaveWriteFailureReleasesIndex(test *testing.T) {
	faulty := &testutils.FaultyDevice{BlockDevice: testutils.NewBlankDevice(test, 32, 50), WritesLeft: -1}
	alloc := alloctbl.NewAllocTbl(faulty)
	alloc.Format()
	rip, err := Create(faulty, alloc, common.File)
	require.NoError(test, err)

	// extents attached without Resize have no index sectors reserved
	for i := 0; i < 5; i++ {
		addr, err := alloc.Allocate()
		require.NoError(test, err)
		rip.Extents = append(rip.Extents, addr)
	}
	rip.Size = 5 * 32
	free := alloc.FreeCount()

	faulty.WritesLeft = 0
	assert.ErrorIs(test, rip.Save(), common.EIO)
	assert.Empty(test, rip.chain)
	assert.Equal(test, free, alloc.FreeCount())

	faulty.WritesLeft = 1
	assert.ErrorIs(test, rip.Save(), common.EIO)
	assert.Empty(test, rip.chain)
	assert.Equal(test, free, alloc.FreeCount())

	faulty.WritesLeft = -1
	require.NoError(test, rip.Save())
	assert.Len(test, rip.chain, 1)
	assert.Equal(test, free-1, alloc.FreeCount())
}

func TestSectorFor(test *testing.T) {
	dev, alloc := setup(test, 100)
	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)
	require.NoError(test, rip.Resize(70))

	assert.Equal(test, rip.Extents[0], rip.SectorFor(0))
	assert.Equal(test, rip.Extents[0], rip.SectorFor(31))
	assert.Equal(test, rip.Extents[1], rip.SectorFor(32))
	assert.Equal(test, rip.Extents[2], rip.SectorFor(69))
	assert.Equal(test, common.NoSector, rip.SectorFor(96))
}

func TestFreeReturnsEverything(test *testing.T) {
	dev, alloc := setup(test, 100)
	start := alloc.FreeCount()

	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)
	require.NoError(test, rip.Resize(15*32))
	require.NoError(test, rip.Save())

	rip.Free()
	assert.Equal(test, start, alloc.FreeCount())

	// the primary sector was released last, so it comes back first
	addr, err := alloc.Allocate()
	require.NoError(test, err)
	assert.Equal(test, rip.Addr, addr)
}

func TestFreeInUsePanics(test *testing.T) {
	dev, alloc := setup(test, 100)
	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)
	rip.Uses = 1
	assert.Panics(test, func() { rip.Free() })
}

func TestGrowZeroFills(test *testing.T) {
	dev, alloc := setup(test, 100)
	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)
	require.NoError(test, rip.Resize(32))

	full := make([]byte, 32)
	for i := range full {
		full[i] = 0xFF
	}
	require.NoError(test, dev.WriteSector(rip.Extents[0], full))

	require.NoError(test, rip.Resize(10))
	require.NoError(test, rip.Resize(64))

	buf := make([]byte, 32)
	require.NoError(test, dev.ReadSector(rip.Extents[0], buf))
	assert.Equal(test, full[:10], buf[:10])
	assert.Equal(test, make([]byte, 22), buf[10:])
	require.NoError(test, dev.ReadSector(rip.Extents[1], buf))
	assert.Equal(test, make([]byte, 32), buf)
}

func TestLoadDetectsCorruption(test *testing.T) {
	dev, alloc := setup(test, 100)
	rip, err := Create(dev, alloc, common.File)
	require.NoError(test, err)
	require.NoError(test, rip.Resize(5*32))
	require.NoError(test, rip.Save())

	// point the first continuation sector back at itself
	buf := make([]byte, 32)
	require.NoError(test, dev.ReadSector(rip.chain[0], buf))
	le.PutUint32(buf[0:], rip.chain[0])
	require.NoError(test, dev.WriteSector(rip.chain[0], buf))

	// three extents are in the first continuation, so the loop is only
	// noticed once the count asks for more; make it ask
	require.NoError(test, dev.ReadSector(rip.Addr, buf))
	le.PutUint32(buf[4:], 20*32)
	le.PutUint32(buf[20:], 20)
	require.NoError(test, dev.WriteSector(rip.Addr, buf))

	_, err = Load(dev, alloc, rip.Addr)
	assert.ErrorIs(test, err, common.ECORRUPT)

	_, err = Load(dev, alloc, 500)
	assert.ErrorIs(test, err, common.ECORRUPT)
}
