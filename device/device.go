package device

import (
	"github.com/jnwhiteh/sectorfs/common"
)

type geometry struct {
	sectorSize int
	count      int
}

func (g geometry) SectorSize() int  { return g.sectorSize }
func (g geometry) SectorCount() int { return g.count }

// check validates a transfer request against the device geometry.
func (g geometry) check(addr uint32, buf []byte) error {
	if int64(addr) >= int64(g.count) || len(buf) != g.sectorSize {
		return common.EINVAL
	}
	return nil
}
