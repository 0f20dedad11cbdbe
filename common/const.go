package common

import "math"

// Fixed sector addresses of the on-disk layout. The bitmap starts at sector
// 0 and, when it needs more than one sector, continues at BitmapAddr+2,
// BitmapAddr+3 and so on, skipping the root directory.
const (
	BitmapAddr uint32 = 0
	RootAddr   uint32 = 1
)

// NoSector terminates an inode's chain of index sectors.
const NoSector uint32 = math.MaxUint32

const (
	PrimaryHeaderSize      = 24 // next, size, type, links, uses, count
	ContinuationHeaderSize = 4  // next
	ExtentSize             = 4

	MinSectorSize = 32

	NameMax        = 255 // longest directory entry name
	MaxSymlinkHops = 8   // default bound on symlink resolution

	StatNameLen    = 256
	StatRecordSize = StatNameLen + 5*4
)

type FileType uint32

const (
	System FileType = iota
	Directory
	File
	FileDeleted
	Symlink
	DirectoryDeleted
)

var fileTypeNames = []string{"system", "directory", "file", "file-deleted", "symlink", "directory-deleted"}

func (t FileType) String() string {
	if int(t) < len(fileTypeNames) {
		return fileTypeNames[t]
	}
	return "unknown"
}

// IsDirectory reports whether the type describes a directory, live or
// pending removal.
func (t FileType) IsDirectory() bool {
	return t == Directory || t == DirectoryDeleted
}

func (t FileType) Valid() bool {
	return t <= DirectoryDeleted
}
