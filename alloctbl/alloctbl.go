package alloctbl

import (
	"fmt"

	"github.com/diskfs/go-diskfs/util/bitmap"
	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/common"
	"go.uber.org/zap"
)

// AllocTbl tracks which sectors of a device are in use. The in-memory form
// is a stack of free sector numbers, so allocation and release are O(1) and
// the sector freed last is the next one handed out. The on-disk form is a
// bitmap with one bit per sector, set when the sector is in use.
type AllocTbl struct {
	dev   common.BlockDevice
	count int // sectors on the device

	mapBytes   int      // bytes of bitmap
	mapSectors []uint32 // where the bitmap lives, in order

	used *bitmap.Bitmap
	free []uint32 // pop from the end
}

// NewAllocTbl prepares an allocation table for dev. Call Format or Load
// before using it.
func NewAllocTbl(dev common.BlockDevice) *AllocTbl {
	count := dev.SectorCount()
	ss := dev.SectorSize()
	mapBytes := (count + 7) / 8
	n := (mapBytes + ss - 1) / ss

	alloc := &AllocTbl{
		dev:        dev,
		count:      count,
		mapBytes:   mapBytes,
		mapSectors: make([]uint32, n),
	}
	for i := range alloc.mapSectors {
		alloc.mapSectors[i] = bitmapSector(i)
	}
	return alloc
}

// The first bitmap sector sits at BitmapAddr, the rest follow the root
// directory.
func bitmapSector(i int) uint32 {
	if i == 0 {
		return common.BitmapAddr
	}
	return common.RootAddr + uint32(i)
}

// MapSectors returns the sectors that hold the bitmap.
func (alloc *AllocTbl) MapSectors() []uint32 {
	out := make([]uint32, len(alloc.mapSectors))
	copy(out, alloc.mapSectors)
	return out
}

// Reserved reports whether addr belongs to the bitmap or the root
// directory. Reserved sectors are never free.
func (alloc *AllocTbl) Reserved(addr uint32) bool {
	if addr == common.RootAddr || addr == common.BitmapAddr {
		return true
	}
	return addr > common.RootAddr && int(addr-common.RootAddr) < len(alloc.mapSectors)
}

// Format marks every sector free except the reserved ones.
func (alloc *AllocTbl) Format() {
	alloc.used = bitmap.NewBits(alloc.mapBytes * 8)
	alloc.free = alloc.free[:0]
	for i := alloc.count - 1; i >= 0; i-- {
		addr := uint32(i)
		if alloc.Reserved(addr) {
			setBit(alloc.used, i)
			continue
		}
		alloc.free = append(alloc.free, addr)
	}
	alloc.markPadding()
}

// bits past the last sector are never handed out
func (alloc *AllocTbl) markPadding() {
	for i := alloc.count; i < alloc.mapBytes*8; i++ {
		setBit(alloc.used, i)
	}
}

// Load rebuilds the free stack from the on-disk bitmap.
func (alloc *AllocTbl) Load() error {
	ss := alloc.dev.SectorSize()
	data := make([]byte, len(alloc.mapSectors)*ss)
	for i, addr := range alloc.mapSectors {
		if err := alloc.dev.ReadSector(addr, data[i*ss:(i+1)*ss]); err != nil {
			return common.DeviceError(err, "read bitmap", addr)
		}
	}

	alloc.used = bitmap.NewBits(alloc.mapBytes * 8)
	alloc.used.FromBytes(data[:alloc.mapBytes])
	alloc.markPadding()

	alloc.free = alloc.free[:0]
	for i := alloc.count - 1; i >= 0; i-- {
		addr := uint32(i)
		if alloc.Reserved(addr) {
			setBit(alloc.used, i)
			continue
		}
		if !alloc.isSet(addr) {
			alloc.free = append(alloc.free, addr)
		}
	}

	common.Logger().Debug("loaded bitmap",
		zap.Int("sectors", alloc.count), zap.Int("free", len(alloc.free)))
	return nil
}

// Save derives the bitmap from the free stack and writes it out.
func (alloc *AllocTbl) Save() error {
	used := bitmap.NewBits(alloc.mapBytes * 8)
	for i := 0; i < alloc.mapBytes*8; i++ {
		setBit(used, i)
	}
	for _, addr := range alloc.free {
		clearBit(used, int(addr))
	}

	ss := alloc.dev.SectorSize()
	data := make([]byte, len(alloc.mapSectors)*ss)
	copy(data, used.ToBytes()[:alloc.mapBytes])
	for i, addr := range alloc.mapSectors {
		if err := alloc.dev.WriteSector(addr, data[i*ss:(i+1)*ss]); err != nil {
			return common.DeviceError(err, "write bitmap", addr)
		}
	}
	return nil
}

// Allocate takes one sector off the free stack.
func (alloc *AllocTbl) Allocate() (uint32, error) {
	n := len(alloc.free)
	if n == 0 {
		common.Logger().Warn("out of sectors", zap.Int("sectors", alloc.count))
		return common.NoSector, common.ENOSPC
	}
	addr := alloc.free[n-1]
	alloc.free = alloc.free[:n-1]
	setBit(alloc.used, int(addr))
	return addr, nil
}

// Deallocate returns addr to the free stack. Releasing a sector that is
// reserved, out of range or already free means the caller's bookkeeping is
// broken, and it panics.
func (alloc *AllocTbl) Deallocate(addr uint32) {
	if int64(addr) >= int64(alloc.count) || alloc.Reserved(addr) {
		panic(fmt.Sprintf("check file system: freeing sector %d", addr))
	}
	if !alloc.isSet(addr) {
		panic(fmt.Sprintf("check file system: sector %d freed twice", addr))
	}
	clearBit(alloc.used, int(addr))
	alloc.free = append(alloc.free, addr)
}

// IsFree reports whether addr is currently unallocated.
func (alloc *AllocTbl) IsFree(addr uint32) bool {
	if int64(addr) >= int64(alloc.count) {
		return false
	}
	return !alloc.isSet(addr)
}

func setBit(b *bitmap.Bitmap, i int) {
	if err := b.Set(i); err != nil {
		panic(errors.Wrapf(err, errors.CodeInternal, "check file system: setting bit %d", i))
	}
}

func clearBit(b *bitmap.Bitmap, i int) {
	if err := b.Clear(i); err != nil {
		panic(errors.Wrapf(err, errors.CodeInternal, "check file system: clearing bit %d", i))
	}
}

func (alloc *AllocTbl) isSet(addr uint32) bool {
	set, err := alloc.used.IsSet(int(addr))
	if err != nil {
		panic(errors.Wrapf(err, errors.CodeInternal, "check file system: bitmap lookup of sector %d", addr))
	}
	return set
}

// FreeCount is the number of unallocated sectors.
func (alloc *AllocTbl) FreeCount() int {
	return len(alloc.free)
}

// FreeBytes is the unallocated space in bytes.
func (alloc *AllocTbl) FreeBytes() uint32 {
	return uint32(len(alloc.free) * alloc.dev.SectorSize())
}

// FreeSet returns the free sectors in allocation order.
func (alloc *AllocTbl) FreeSet() []uint32 {
	out := make([]uint32, len(alloc.free))
	for i, addr := range alloc.free {
		out[len(out)-1-i] = addr
	}
	return out
}
