package device

import (
	"io"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/common"
	"go.uber.org/zap"
)

type fileDevice struct {
	geometry
	file   billy.File
	closed bool
	m      sync.Mutex
}

// NewFileDevice opens the image called name on bfs, creating it when it
// does not exist. A count of zero takes the sector count from the size of
// an existing image. Images shorter than sectorSize*count are extended.
func NewFileDevice(bfs billy.Filesystem, name string, sectorSize, count int) (common.BlockDevice, error) {
	size := int64(-1)
	if fi, err := bfs.Stat(name); err == nil {
		size = fi.Size()
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, errors.CodeInternal, "stat image %s", name)
	}

	if count == 0 {
		if size <= 0 || sectorSize <= 0 {
			return nil, errors.Wrapf(common.EINVAL, errors.CodeInvalidInput, "cannot size image %s", name)
		}
		count = int(size / int64(sectorSize))
	}
	if err := common.ValidGeometry(sectorSize, count); err != nil {
		return nil, err
	}

	file, err := bfs.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInternal, "open image %s", name)
	}

	want := int64(sectorSize) * int64(count)
	if size < want {
		if err := file.Truncate(want); err != nil {
			file.Close()
			return nil, errors.Wrapf(err, errors.CodeInternal, "extend image %s", name)
		}
	}

	common.Logger().Debug("opened image",
		zap.String("name", name), zap.Int("sectorSize", sectorSize), zap.Int("sectors", count))

	return &fileDevice{geometry: geometry{sectorSize, count}, file: file}, nil
}

func (dev *fileDevice) seek(addr uint32) error {
	pos := int64(addr) * int64(dev.sectorSize)
	newPos, err := dev.file.Seek(pos, io.SeekStart)
	if err != nil {
		return err
	}
	if newPos != pos {
		return errors.Newf(errors.CodeInternal, "seek to %d landed at %d", pos, newPos)
	}
	return nil
}

func (dev *fileDevice) ReadSector(addr uint32, buf []byte) error {
	dev.m.Lock()
	defer dev.m.Unlock()

	if dev.closed {
		return common.EBADF
	}
	if err := dev.check(addr, buf); err != nil {
		return err
	}
	if err := dev.seek(addr); err != nil {
		return common.DeviceError(err, "read", addr)
	}
	if _, err := io.ReadFull(dev.file, buf); err != nil {
		return common.DeviceError(err, "read", addr)
	}
	return nil
}

func (dev *fileDevice) WriteSector(addr uint32, buf []byte) error {
	dev.m.Lock()
	defer dev.m.Unlock()

	if dev.closed {
		return common.EBADF
	}
	if err := dev.check(addr, buf); err != nil {
		return err
	}
	if err := dev.seek(addr); err != nil {
		return common.DeviceError(err, "write", addr)
	}
	n, err := dev.file.Write(buf)
	if err == nil && n != len(buf) {
		err = io.ErrShortWrite
	}
	return common.DeviceError(err, "write", addr)
}

func (dev *fileDevice) Close() error {
	dev.m.Lock()
	defer dev.m.Unlock()

	if dev.closed {
		return common.EBADF
	}
	dev.closed = true
	return dev.file.Close()
}
