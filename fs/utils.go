package fs

import (
	"io"
	"strings"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/directory"
	"github.com/jnwhiteh/sectorfs/file"
	"github.com/jnwhiteh/sectorfs/inode"
	"go.uber.org/zap"
)

// parsePath splits a path into its components. A leading slash makes the
// path absolute. Empty and "." components are dropped; ".." is kept and
// resolved against the directory's parent pointer.
func parsePath(path string) (bool, []string) {
	abs := strings.HasPrefix(path, "/")
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part == "" || part == "." {
			continue
		}
		parts = append(parts, part)
	}
	return abs, parts
}

// getInode returns the resident inode at addr, loading it if needed. Every
// caller must hand it back with putInode.
func (fs *FileSystem) getInode(addr uint32) (*inode.Inode, error) {
	if d, ok := fs.dirs[addr]; ok {
		return d.Inode(), nil
	}
	if rip, ok := fs.files[addr]; ok {
		return rip, nil
	}

	rip, err := inode.Load(fs.dev, fs.alloc, addr)
	if err != nil {
		return nil, err
	}
	if rip.Uses != 0 {
		// left over from a run that was never shut down
		fs.log.Warn("resetting stale use count", zap.Uint32("inode", addr), zap.Uint32("uses", rip.Uses))
		rip.Uses = 0
	}

	if rip.IsDirectory() {
		d, err := directory.Load(rip)
		if err != nil {
			return nil, err
		}
		fs.dirs[addr] = d
		return rip, nil
	}
	fs.files[addr] = rip
	return rip, nil
}

// putInode releases a reference taken with getInode. File inodes that no
// handle uses leave the cache; directories stay resident while mounted.
func (fs *FileSystem) putInode(rip *inode.Inode) {
	if rip == nil || rip.IsDirectory() {
		return
	}
	if rip.Uses == 0 {
		delete(fs.files, rip.Addr)
	}
}

// getDir returns the resident directory at addr.
func (fs *FileSystem) getDir(addr uint32) (*directory.Directory, error) {
	if d, ok := fs.dirs[addr]; ok {
		return d, nil
	}
	rip, err := fs.getInode(addr)
	if err != nil {
		return nil, err
	}
	if d, ok := fs.dirs[addr]; ok {
		return d, nil
	}
	fs.putInode(rip)
	return nil, common.ENOTDIR
}

// advance moves from dirp through one path component, which must name a
// directory.
func (fs *FileSystem) advance(dirp *directory.Directory, name string) (*directory.Directory, error) {
	if name == ".." {
		parent, err := fs.getDir(dirp.Parent())
		if err != nil {
			fs.log.Warn("bad parent pointer",
				zap.Uint32("dir", dirp.Addr()), zap.Uint32("parent", dirp.Parent()), zap.Error(err))
			return nil, common.ENOENT
		}
		return parent, nil
	}
	addr, ok := dirp.Lookup(name)
	if !ok {
		return nil, common.ENOENT
	}
	return fs.getDir(addr)
}

// lastDir resolves every component but the last and returns the directory
// reached together with the final name. When the path names a directory
// without a final entry ("/", "..", "a/..") the name is empty and the
// directory is the one named.
func (fs *FileSystem) lastDir(path string) (*directory.Directory, string, error) {
	if path == "" {
		return nil, "", common.ENOENT
	}
	abs, parts := parsePath(path)
	dirp := fs.workdir
	if abs {
		dirp = fs.root
	}
	if len(parts) == 0 {
		return dirp, "", nil
	}

	last := parts[len(parts)-1]
	walk := parts[:len(parts)-1]
	if last == ".." {
		walk = parts
		last = ""
	}
	for _, part := range walk {
		next, err := fs.advance(dirp, part)
		if err != nil {
			return nil, "", err
		}
		dirp = next
	}
	return dirp, last, nil
}

// eatPath resolves a whole path to its inode without following a final
// symlink. The caller must putInode the result.
func (fs *FileSystem) eatPath(path string) (*inode.Inode, error) {
	dirp, name, err := fs.lastDir(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return dirp.Inode(), nil
	}
	addr, ok := dirp.Lookup(name)
	if !ok {
		return nil, common.ENOENT
	}
	return fs.getInode(addr)
}

// readLink returns the target text stored in a symlink.
func readLink(rip *inode.Inode) (string, error) {
	buf := make([]byte, rip.Size)
	if _, err := file.ReadAt(rip, buf, 0); err != nil && err != io.EOF {
		return "", err
	}
	return string(buf), nil
}
