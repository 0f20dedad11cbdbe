package fs

import (
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/common"
	"go.uber.org/zap"
)

// Import copies the tree under from in src into the directory to, merging
// with whatever is already there. Files are overwritten; symlinks that
// already exist are left alone. Relative symlink targets are resolved
// against the link's own directory.
func (fs *FileSystem) Import(src billy.Filesystem, from, to string) error {
	infos, err := src.ReadDir(from)
	if err != nil {
		return errors.Wrapf(err, errors.CodeNotFound, "reading %s", from)
	}
	for _, info := range infos {
		srcPath := path.Join(from, info.Name())
		dstPath := path.Join(to, info.Name())
		if info, err = src.Lstat(srcPath); err != nil {
			return errors.Wrapf(err, errors.CodeNotFound, "stat %s", srcPath)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := src.Readlink(srcPath)
			if err != nil {
				return errors.Wrapf(err, errors.CodeInternal, "reading link %s", srcPath)
			}
			if !path.IsAbs(target) {
				target = path.Join(to, target)
			}
			if err := fs.Symlink(target, dstPath); err != nil {
				if !errors.Is(err, common.EEXIST) {
					return err
				}
				fs.log.Debug("keeping existing entry", zap.String("path", dstPath))
			}
		case info.IsDir():
			if err := fs.Mkdir(dstPath); err != nil && !errors.Is(err, common.EEXIST) {
				return err
			}
			if err := fs.Import(src, srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := fs.importFile(src, srcPath, dstPath); err != nil {
				return err
			}
		}
	}
	fs.log.Debug("imported directory", zap.String("from", from), zap.String("to", to), zap.Int("entries", len(infos)))
	return nil
}

func (fs *FileSystem) importFile(src billy.Filesystem, srcPath, dstPath string) error {
	in, err := src.Open(srcPath)
	if err != nil {
		return errors.Wrapf(err, errors.CodeNotFound, "opening %s", srcPath)
	}
	defer in.Close()

	out, err := fs.Open(dstPath, true)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Export copies the tree under from into the directory to of dst, creating
// it as needed. Symlinks are recreated with the stored target.
func (fs *FileSystem) Export(dst billy.Filesystem, from, to string) error {
	if err := dst.MkdirAll(to, 0o755); err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "creating %s", to)
	}
	names, err := fs.ReadDir(from)
	if err != nil {
		return err
	}
	for _, name := range names {
		srcPath := path.Join(from, name)
		dstPath := path.Join(to, name)

		st, err := fs.Stat(srcPath)
		if err != nil {
			return err
		}
		switch st.Type {
		case common.Directory:
			if err := fs.Export(dst, srcPath, dstPath); err != nil {
				return err
			}
		case common.Symlink:
			target, err := fs.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := dst.Symlink(target, dstPath); err != nil {
				return errors.Wrapf(err, errors.CodeInternal, "linking %s", dstPath)
			}
		default:
			if err := fs.exportFile(dst, srcPath, dstPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fs *FileSystem) exportFile(dst billy.Filesystem, srcPath, dstPath string) error {
	in, err := fs.Open(srcPath, false)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := dst.Create(dstPath)
	if err != nil {
		return errors.Wrapf(err, errors.CodeInternal, "creating %s", dstPath)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, errors.CodeInternal, "writing %s", dstPath)
	}
	return out.Close()
}
