package device

import (
	"sync"

	"github.com/jnwhiteh/sectorfs/common"
)

type ramdiskDevice struct {
	geometry
	data   []byte
	closed bool
	m      sync.Mutex
}

// NewRamdiskDevice creates a zero-filled in-memory device.
func NewRamdiskDevice(sectorSize, count int) (common.BlockDevice, error) {
	if err := common.ValidGeometry(sectorSize, count); err != nil {
		return nil, err
	}
	return &ramdiskDevice{
		geometry: geometry{sectorSize, count},
		data:     make([]byte, sectorSize*count),
	}, nil
}

func (dev *ramdiskDevice) ReadSector(addr uint32, buf []byte) error {
	dev.m.Lock()
	defer dev.m.Unlock()

	if dev.closed {
		return common.EBADF
	}
	if err := dev.check(addr, buf); err != nil {
		return err
	}
	off := int(addr) * dev.sectorSize
	copy(buf, dev.data[off:off+dev.sectorSize])
	return nil
}

func (dev *ramdiskDevice) WriteSector(addr uint32, buf []byte) error {
	dev.m.Lock()
	defer dev.m.Unlock()

	if dev.closed {
		return common.EBADF
	}
	if err := dev.check(addr, buf); err != nil {
		return err
	}
	off := int(addr) * dev.sectorSize
	copy(dev.data[off:off+dev.sectorSize], buf)
	return nil
}

func (dev *ramdiskDevice) Close() error {
	dev.m.Lock()
	defer dev.m.Unlock()

	if dev.closed {
		return common.EBADF
	}
	dev.closed = true
	return nil
}
