package testutils

import (
	"sync"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/device"
)

// NewTestDevice returns a ramdisk in which every byte of sector n holds the
// value byte(n), so misdirected reads are easy to spot.
func NewTestDevice(test testing.TB, ssize, sectors int) common.BlockDevice {
	dev, err := device.NewRamdiskDevice(ssize, sectors)
	if err != nil {
		FatalHere(test, "Failed when creating ramdisk device: %s", err)
	}
	buf := make([]byte, ssize)
	for i := 0; i < sectors; i++ {
		for j := range buf {
			buf[j] = byte(i)
		}
		if err := dev.WriteSector(uint32(i), buf); err != nil {
			FatalHere(test, "Failed when filling sector %d: %s", i, err)
		}
	}
	return dev
}

// NewBlankDevice returns a zero-filled ramdisk.
func NewBlankDevice(test testing.TB, ssize, sectors int) common.BlockDevice {
	dev, err := device.NewRamdiskDevice(ssize, sectors)
	if err != nil {
		FatalHere(test, "Failed when creating ramdisk device: %s", err)
	}
	return dev
}

// CountingDevice records the number of transfers that reach the wrapped
// device.
type CountingDevice struct {
	common.BlockDevice

	m      sync.Mutex
	Reads  int
	Writes int
}

func NewCountingDevice(dev common.BlockDevice) *CountingDevice {
	return &CountingDevice{BlockDevice: dev}
}

func (dev *CountingDevice) ReadSector(addr uint32, buf []byte) error {
	dev.m.Lock()
	dev.Reads++
	dev.m.Unlock()
	return dev.BlockDevice.ReadSector(addr, buf)
}

func (dev *CountingDevice) WriteSector(addr uint32, buf []byte) error {
	dev.m.Lock()
	dev.Writes++
	dev.m.Unlock()
	return dev.BlockDevice.WriteSector(addr, buf)
}

func (dev *CountingDevice) Counts() (reads, writes int) {
	dev.m.Lock()
	defer dev.m.Unlock()
	return dev.Reads, dev.Writes
}

// ErrInjected is returned by a FaultyDevice once its budget is spent.
var ErrInjected = errors.New(errors.CodeUnavailable, "injected device failure")

// FaultyDevice passes writes through until WritesLeft reaches zero, after
// which every write fails with ErrInjected. A negative budget never fails.
type FaultyDevice struct {
	common.BlockDevice
	WritesLeft int
}

func (dev *FaultyDevice) WriteSector(addr uint32, buf []byte) error {
	if dev.WritesLeft == 0 {
		return ErrInjected
	}
	if dev.WritesLeft > 0 {
		dev.WritesLeft--
	}
	return dev.BlockDevice.WriteSector(addr, buf)
}
