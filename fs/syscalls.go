package fs

import (
	"fmt"
	"path"
	"strings"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/directory"
	"github.com/jnwhiteh/sectorfs/file"
	"github.com/jnwhiteh/sectorfs/inode"
	"go.uber.org/zap"
)

// Open returns a handle on the file at path. A final symlink is followed,
// up to the configured number of hops. With create set, a missing file is
// created and an existing one is truncated. Directories cannot be opened.
func (fs *FileSystem) Open(path string, create bool) (*file.File, error) {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return nil, err
	}
	return fs.do_open(path, create, 0)
}

func (fs *FileSystem) do_open(path string, create bool, hops int) (*file.File, error) {
	dirp, name, err := fs.lastDir(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, common.EISDIR
	}

	var rip *inode.Inode
	if addr, ok := dirp.Lookup(name); ok {
		if rip, err = fs.getInode(addr); err != nil {
			return nil, err
		}
		switch rip.Type {
		case common.Symlink:
			target, err := readLink(rip)
			fs.putInode(rip)
			if err != nil {
				return nil, err
			}
			if hops >= fs.opts.maxHops {
				return nil, common.ELOOP
			}
			return fs.do_open(target, create, hops+1)
		case common.File:
			if create && rip.Size > 0 {
				if err := fs.truncate(rip); err != nil {
					fs.putInode(rip)
					return nil, err
				}
			}
		default:
			fs.putInode(rip)
			return nil, common.EISDIR
		}
	} else {
		if !create {
			return nil, common.ENOENT
		}
		if rip, err = dirp.CreateFile(name); err != nil {
			return nil, err
		}
		if err := fs.saveDir(dirp, name); err != nil {
			rip.Free()
			return nil, err
		}
		fs.files[rip.Addr] = rip
		fs.log.Debug("created file", zap.String("path", path), zap.Uint32("inode", rip.Addr))
	}

	rip.Uses++
	var h *file.File
	h = file.New(rip, name, &fs.m, func(rip *inode.Inode) error {
		delete(fs.handles, h)
		return fs.release(rip)
	})
	fs.handles[h] = struct{}{}
	return h, nil
}

func (fs *FileSystem) truncate(rip *inode.Inode) error {
	if err := rip.Resize(0); err != nil {
		return err
	}
	return rip.Save()
}

// release drops one use of rip when a handle closes. The last use of an
// unlinked file frees it.
func (fs *FileSystem) release(rip *inode.Inode) error {
	if rip.Uses == 0 {
		panic(fmt.Sprintf("check file system: releasing unused %s", rip))
	}
	rip.Uses--
	if rip.Uses > 0 {
		return nil
	}
	if rip.Links == 0 {
		rip.Free()
		delete(fs.files, rip.Addr)
		return nil
	}
	err := rip.Save()
	fs.putInode(rip)
	return err
}

// saveDir writes dirp after name was entered into it. If the write fails
// the entry is taken out again so the table matches the disk.
func (fs *FileSystem) saveDir(dirp *directory.Directory, name string) error {
	err := dirp.Save()
	if err != nil {
		dirp.RemoveEntry(name)
		if err2 := dirp.Save(); err2 != nil {
			fs.log.Error("could not restore directory", zap.Uint32("dir", dirp.Addr()), zap.Error(err2))
		}
	}
	return err
}

// Remove deletes the directory entry at path and drops one link from its
// inode. The content is freed once no link and no handle is left.
func (fs *FileSystem) Remove(path string) error {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return err
	}

	dirp, rip, name, err := fs.unlink_prep(path)
	if err != nil {
		return err
	}
	defer fs.putInode(rip)

	if rip.IsDirectory() {
		return common.EISDIR
	}
	if err := fs.removeEntry(dirp, name, rip.Addr); err != nil {
		return err
	}
	return fs.unlink(rip)
}

// unlink drops one link from a file inode.
func (fs *FileSystem) unlink(rip *inode.Inode) error {
	if rip.Links == 0 {
		panic(fmt.Sprintf("check file system: unlinking %s", rip))
	}
	rip.Links--
	if rip.Links > 0 {
		return rip.Save()
	}
	if rip.Uses > 0 {
		// the last handle to close frees it
		rip.Type = common.FileDeleted
		return rip.Save()
	}
	rip.Free()
	delete(fs.files, rip.Addr)
	return nil
}

func (fs *FileSystem) removeEntry(dirp *directory.Directory, name string, addr uint32) error {
	if err := dirp.RemoveEntry(name); err != nil {
		return err
	}
	if err := dirp.Save(); err != nil {
		dirp.AddEntry(name, addr)
		return err
	}
	return nil
}

// Mkdir creates an empty directory at path.
func (fs *FileSystem) Mkdir(path string) error {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return err
	}

	dirp, name, err := fs.new_node(path)
	if err != nil {
		return err
	}
	sub, err := dirp.CreateSubdirectory(name)
	if err != nil {
		return err
	}
	if err := fs.saveDir(dirp, name); err != nil {
		sub.Inode().Free()
		return err
	}
	fs.dirs[sub.Addr()] = sub
	fs.log.Debug("created directory", zap.String("path", path), zap.Uint32("inode", sub.Addr()))
	return nil
}

// Rmdir removes the empty directory at path. The root and the current
// directory cannot be removed.
func (fs *FileSystem) Rmdir(path string) error {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return err
	}

	dirp, name, err := fs.lastDir(path)
	if err != nil {
		return err
	}
	if name == "" {
		// "/", "." or a path ending in ".."
		return common.EBUSY
	}
	addr, ok := dirp.Lookup(name)
	if !ok {
		return common.ENOENT
	}
	sub, err := fs.getDir(addr)
	if err != nil {
		return err
	}
	if sub == fs.root || sub == fs.workdir {
		return common.EBUSY
	}
	if !sub.IsEmpty() {
		return common.ENOTEMPTY
	}

	if err := fs.removeEntry(dirp, name, addr); err != nil {
		return err
	}
	rip := sub.Inode()
	rip.Links--
	if rip.Links > 0 {
		return rip.Save()
	}
	rip.Free()
	delete(fs.dirs, addr)
	return nil
}

// Chdir changes the current directory.
func (fs *FileSystem) Chdir(path string) error {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return err
	}

	dirp, name, err := fs.lastDir(path)
	if err != nil {
		return err
	}
	if name != "" {
		if dirp, err = fs.advance(dirp, name); err != nil {
			return err
		}
	}

	abs, parts := parsePath(path)
	cwd := fs.cwd
	if abs {
		cwd = nil
	}
	cwd = append([]string(nil), cwd...)
	for _, part := range parts {
		if part == ".." {
			if len(cwd) > 0 {
				cwd = cwd[:len(cwd)-1]
			}
			continue
		}
		cwd = append(cwd, part)
	}

	fs.workdir = dirp
	fs.cwd = cwd
	return nil
}

// CurrentPath returns the absolute path of the current directory.
func (fs *FileSystem) CurrentPath() string {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fs.currentPath()
}

func (fs *FileSystem) currentPath() string {
	return "/" + strings.Join(fs.cwd, "/")
}

// ReadDir lists the names in the directory at path, or in the current
// directory when path is empty. Names come back sorted.
func (fs *FileSystem) ReadDir(path string) ([]string, error) {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return nil, err
	}
	if path == "" {
		return fs.workdir.Names(), nil
	}

	dirp, name, err := fs.lastDir(path)
	if err != nil {
		return nil, err
	}
	if name != "" {
		if dirp, err = fs.advance(dirp, name); err != nil {
			return nil, err
		}
	}
	return dirp.Names(), nil
}

// Stat describes the entry at path without following a final symlink. An
// empty path describes the current directory.
func (fs *FileSystem) Stat(path string) (*common.StatInfo, error) {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return nil, err
	}
	if path == "" {
		path = "."
	}

	rip, err := fs.eatPath(path)
	if err != nil {
		return nil, err
	}
	defer fs.putInode(rip)

	return &common.StatInfo{
		Name:    fs.baseName(path),
		Size:    rip.Size,
		Sectors: uint32(len(rip.Extents)),
		Type:    rip.Type,
		Inode:   rip.Addr,
		Links:   rip.Links,
	}, nil
}

// baseName is the last component of path as the user would see it.
func (fs *FileSystem) baseName(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(fs.currentPath(), p)
	}
	return path.Base(path.Clean(p))
}

// Link adds a new entry at newpath for the file at oldpath.
func (fs *FileSystem) Link(oldpath, newpath string) error {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return err
	}

	rip, err := fs.eatPath(oldpath)
	if err != nil {
		return err
	}
	defer fs.putInode(rip)
	if rip.IsDirectory() {
		return common.EISDIR
	}

	dirp, name, err := fs.new_node(newpath)
	if err != nil {
		return err
	}
	if err := dirp.AddEntry(name, rip.Addr); err != nil {
		return err
	}
	if err := fs.saveDir(dirp, name); err != nil {
		return err
	}

	rip.Links++
	if err := rip.Save(); err != nil {
		rip.Links--
		fs.removeEntry(dirp, name, rip.Addr)
		return err
	}
	return nil
}

// Symlink creates a symlink at linkpath holding target. A relative target
// is made absolute against the current directory; it need not exist.
func (fs *FileSystem) Symlink(target, linkpath string) error {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return err
	}
	if target == "" {
		return common.EINVAL
	}
	if !strings.HasPrefix(target, "/") {
		target = path.Join(fs.currentPath(), target)
	}

	dirp, name, err := fs.new_node(linkpath)
	if err != nil {
		return err
	}
	rip, err := dirp.CreateSymlink(name, target)
	if err != nil {
		return err
	}
	if err := fs.saveDir(dirp, name); err != nil {
		rip.Free()
		return err
	}
	return nil
}

// Readlink returns the target stored in the symlink at path.
func (fs *FileSystem) Readlink(path string) (string, error) {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return "", err
	}
	rip, err := fs.eatPath(path)
	if err != nil {
		return "", err
	}
	defer fs.putInode(rip)
	if rip.Type != common.Symlink {
		return "", common.EINVAL
	}
	return readLink(rip)
}

// new_node finds the directory a new entry at path goes into and checks
// that the name is free.
func (fs *FileSystem) new_node(path string) (*directory.Directory, string, error) {
	dirp, name, err := fs.lastDir(path)
	if err != nil {
		return nil, "", err
	}
	if name == "" {
		return nil, "", common.EEXIST
	}
	if _, ok := dirp.Lookup(name); ok {
		return nil, "", common.EEXIST
	}
	if err := directory.ValidName(name); err != nil {
		return nil, "", err
	}
	return dirp, name, nil
}

// Given a path, fetch the parent directory of the final entry and the inode
// of the final entry itself, together with the final name.
func (fs *FileSystem) unlink_prep(path string) (*directory.Directory, *inode.Inode, string, error) {
	dirp, name, err := fs.lastDir(path)
	if err != nil {
		return nil, nil, "", err
	}
	if name == "" {
		return nil, nil, "", common.EISDIR
	}
	addr, ok := dirp.Lookup(name)
	if !ok {
		return nil, nil, "", common.ENOENT
	}
	rip, err := fs.getInode(addr)
	if err != nil {
		return nil, nil, "", err
	}
	return dirp, rip, name, nil
}
