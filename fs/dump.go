package fs

import (
	"io"

	"github.com/jnwhiteh/sectorfs/debug"
)

// Dump writes the inode at path to w, followed by the entry table when it
// is a directory. A final symlink is not followed.
func (fs *FileSystem) Dump(path string, w io.Writer) error {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return err
	}
	rip, err := fs.eatPath(path)
	if err != nil {
		return err
	}
	defer fs.putInode(rip)

	debug.PrintInode(w, rip)
	if d, ok := fs.dirs[rip.Addr]; ok {
		debug.PrintDirectory(w, d)
	}
	return nil
}

// DumpBitmap writes the allocation table to w.
func (fs *FileSystem) DumpBitmap(w io.Writer) error {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return err
	}
	debug.PrintBitmap(w, fs.alloc)
	return nil
}
