package file

import (
	"io"
	"sync"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/inode"
)

// A File is an open handle on an inode: a cursor plus the inode it reads
// and writes. Several handles may share one inode. Every operation takes
// the owner's lock, so handles stay safe to use from several goroutines
// while the filesystem itself mutates inodes under the same lock.
type File struct {
	rip     *inode.Inode
	pos     int64
	name    string
	owner   sync.Locker
	release func(*inode.Inode) error
}

// New returns a handle on rip. The handle calls release exactly once, on
// Close, while holding owner.
func New(rip *inode.Inode, name string, owner sync.Locker, release func(*inode.Inode) error) *File {
	if owner == nil {
		owner = new(sync.Mutex)
	}
	return &File{rip: rip, name: name, owner: owner, release: release}
}

func (f *File) Read(buf []byte) (int, error) {
	f.owner.Lock()
	defer f.owner.Unlock()

	if f.rip == nil {
		return 0, common.EBADF
	}

	n, err := ReadAt(f.rip, buf, f.pos)
	f.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (f *File) Write(buf []byte) (int, error) {
	f.owner.Lock()
	defer f.owner.Unlock()

	if f.rip == nil {
		return 0, common.EBADF
	}

	n, err := WriteAt(f.rip, buf, f.pos)
	f.pos += int64(n)
	return n, err
}

func (f *File) ReadAt(buf []byte, off int64) (int, error) {
	f.owner.Lock()
	defer f.owner.Unlock()

	if f.rip == nil {
		return 0, common.EBADF
	}
	return ReadAt(f.rip, buf, off)
}

func (f *File) WriteAt(buf []byte, off int64) (int, error) {
	f.owner.Lock()
	defer f.owner.Unlock()

	if f.rip == nil {
		return 0, common.EBADF
	}
	return WriteAt(f.rip, buf, off)
}

func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.owner.Lock()
	defer f.owner.Unlock()

	if f.rip == nil {
		return 0, common.EBADF
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.pos + offset
	case io.SeekEnd:
		pos = int64(f.rip.Size) + offset
	default:
		return f.pos, common.EINVAL
	}
	if pos < 0 {
		return f.pos, common.EINVAL
	}
	f.pos = pos
	return pos, nil
}

// Truncate changes the file length. The cursor is left where it is.
func (f *File) Truncate(length int64) error {
	f.owner.Lock()
	defer f.owner.Unlock()

	if f.rip == nil {
		return common.EBADF
	}
	if length < 0 || length > int64(common.NoSector) {
		return common.EINVAL
	}
	return f.rip.Resize(uint32(length))
}

// Length returns the current file size.
func (f *File) Length() int64 {
	f.owner.Lock()
	defer f.owner.Unlock()

	if f.rip == nil {
		return 0
	}
	return int64(f.rip.Size)
}

func (f *File) Stat() (*common.StatInfo, error) {
	f.owner.Lock()
	defer f.owner.Unlock()

	if f.rip == nil {
		return nil, common.EBADF
	}
	return &common.StatInfo{
		Name:    f.name,
		Size:    f.rip.Size,
		Sectors: uint32(len(f.rip.Extents)),
		Type:    f.rip.Type,
		Inode:   f.rip.Addr,
		Links:   f.rip.Links,
	}, nil
}

// Inode exposes the shared inode behind the handle.
func (f *File) Inode() *inode.Inode {
	f.owner.Lock()
	defer f.owner.Unlock()
	return f.rip
}

func (f *File) Close() error {
	f.owner.Lock()
	defer f.owner.Unlock()

	if f.rip == nil {
		return common.EBADF
	}
	rip := f.rip
	f.rip = nil
	if f.release != nil {
		return f.release(rip)
	}
	return nil
}

var (
	_ io.ReadWriteSeeker = &File{}
	_ io.ReaderAt        = &File{}
	_ io.WriterAt        = &File{}
	_ io.Closer          = &File{}
)
