package common

// BlockDevice is a fixed geometry device addressed by sector number. All
// transfers are whole sectors and complete before returning.
type BlockDevice interface {
	ReadSector(addr uint32, buf []byte) error
	WriteSector(addr uint32, buf []byte) error
	SectorSize() int
	SectorCount() int
	Close() error
}

// ValidGeometry checks a sector size and count against the limits of the
// on-disk format.
func ValidGeometry(sectorSize, count int) error {
	if sectorSize < MinSectorSize || sectorSize%ExtentSize != 0 {
		return EINVAL
	}
	// sector 0 holds the bitmap and sector 1 the root directory
	if count < 3 || int64(count) >= int64(NoSector) {
		return EINVAL
	}
	return nil
}

// SectorsFor returns the number of sectors needed to hold size bytes.
func SectorsFor(size uint32, sectorSize int) int {
	return int((uint64(size) + uint64(sectorSize) - 1) / uint64(sectorSize))
}
