package file

import (
	"io"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/inode"
)

// ReadAt copies up to len(b) bytes starting at pos out of the file. Reads
// are clipped at the end of the file; a short count is returned together
// with io.EOF.
func ReadAt(rip *inode.Inode, b []byte, pos int64) (int, error) {
	if pos < 0 {
		return 0, common.EINVAL
	}
	size := int64(rip.Size)
	if pos >= size {
		return 0, io.EOF
	}

	// Rather than getting fancy, just slice b to contain only enough space
	// for the data that is available
	want := len(b)
	if pos+int64(want) > size {
		b = b[:size-pos]
	}

	ss := int64(rip.SectorSize())
	dev := rip.Device()
	block := make([]byte, ss)
	n := 0
	for n < len(b) {
		cur := pos + int64(n)
		off := cur % ss
		addr := rip.SectorFor(uint32(cur))
		if addr == common.NoSector {
			return n, common.ECORRUPT
		}
		if err := dev.ReadSector(addr, block); err != nil {
			return n, common.DeviceError(err, "read", addr)
		}
		n += copy(b[n:], block[off:])
	}

	if n < want {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt copies data into the file at pos, growing the file first when the
// write extends past its end. Sectors that are only partly overwritten are
// read back first so their other bytes survive.
func WriteAt(rip *inode.Inode, data []byte, pos int64) (int, error) {
	if pos < 0 {
		return 0, common.EINVAL
	}
	if len(data) == 0 {
		return 0, nil
	}
	end := pos + int64(len(data))
	if end > int64(common.NoSector) {
		return 0, common.ENOSPC
	}
	if end > int64(rip.Size) {
		if err := rip.Resize(uint32(end)); err != nil {
			return 0, err
		}
	}

	ss := int64(rip.SectorSize())
	dev := rip.Device()
	block := make([]byte, ss)
	n := 0
	for n < len(data) {
		cur := pos + int64(n)
		off := cur % ss
		chunk := ss - off
		if rem := int64(len(data) - n); rem < chunk {
			chunk = rem
		}
		addr := rip.SectorFor(uint32(cur))
		if addr == common.NoSector {
			return n, common.ECORRUPT
		}

		if chunk != ss {
			if err := dev.ReadSector(addr, block); err != nil {
				return n, common.DeviceError(err, "read", addr)
			}
		}
		copy(block[off:off+chunk], data[n:])
		if err := dev.WriteSector(addr, block); err != nil {
			return n, common.DeviceError(err, "write", addr)
		}
		n += int(chunk)
	}
	return n, nil
}
