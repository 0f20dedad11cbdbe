package main

import (
	"fmt"
	"io"
	"path"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/fs"
)

// list prints one line per entry of dir: type, links, size and name.
func list(fsys *fs.FileSystem, w io.Writer, dir string) error {
	names, err := fsys.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, name := range names {
		p := path.Join(dir, name)
		st, err := fsys.Stat(p)
		if err != nil {
			return err
		}
		display := name
		switch st.Type {
		case common.Directory:
			display = dirStyle.Render(name + "/")
		case common.Symlink:
			target, err := fsys.Readlink(p)
			if err != nil {
				return err
			}
			display = linkStyle.Render(name) + " -> " + target
		}
		fmt.Fprintf(w, "%-10s %3d %8d %s\n", st.Type, st.Links, st.Size, display)
	}
	return nil
}

func cat(fsys *fs.FileSystem, w io.Writer, p string) error {
	file, err := fsys.Open(p, false)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func stat(fsys *fs.FileSystem, w io.Writer, p string) error {
	st, err := fsys.Stat(p)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  Name: %s\n", st.Name)
	fmt.Fprintf(w, "  Type: %s\n", st.Type)
	fmt.Fprintf(w, " Inode: %d\n", st.Inode)
	fmt.Fprintf(w, " Links: %d\n", st.Links)
	fmt.Fprintf(w, "  Size: %d\n", st.Size)
	fmt.Fprintf(w, "Blocks: %d\n", st.Sectors)
	return nil
}

func df(fsys *fs.FileSystem, w io.Writer) error {
	free, err := fsys.FreeSpace()
	if err != nil {
		return err
	}
	total := fsys.Capacity()
	fmt.Fprintf(w, "%12s %12s %12s\n", "SIZE", "USED", "FREE")
	fmt.Fprintf(w, "%12d %12d %12d\n", total, total-uint64(free), free)
	return nil
}

func link(fsys *fs.FileSystem, symbolic bool, oldpath, newpath string) error {
	if symbolic {
		return fsys.Symlink(oldpath, newpath)
	}
	return fsys.Link(oldpath, newpath)
}

// writeText replaces the content of p with text.
func writeText(fsys *fs.FileSystem, p, text string) error {
	file, err := fsys.Open(p, true)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(file, text); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
