package directory

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/file"
	"github.com/jnwhiteh/sectorfs/inode"
)

const headerSize = 8 // entry count, parent address

// A Directory is an inode whose content is a table of names and inode
// addresses, plus the address of the parent directory. The root is its own
// parent.
type Directory struct {
	ip      *inode.Inode
	parent  uint32
	entries map[string]uint32
}

// New wraps a freshly created directory inode. The table starts empty.
func New(ip *inode.Inode, parent uint32) *Directory {
	return &Directory{ip: ip, parent: parent, entries: make(map[string]uint32)}
}

// Load parses the table stored in ip.
func Load(ip *inode.Inode) (*Directory, error) {
	if !ip.IsDirectory() {
		return nil, common.ENOTDIR
	}
	data := make([]byte, ip.Size)
	if _, err := file.ReadAt(ip, data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	parent, entries, err := Decode(data)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInternal, "bad directory",
			map[string]interface{}{"inode": ip.Addr})
	}
	return &Directory{ip: ip, parent: parent, entries: entries}, nil
}

// Decode parses a serialized table.
func Decode(data []byte) (uint32, map[string]uint32, error) {
	if len(data) < headerSize {
		return 0, nil, common.ECORRUPT
	}
	le := binary.LittleEndian
	count := le.Uint32(data[0:])
	parent := le.Uint32(data[4:])

	// every entry takes at least 9 bytes, so a larger count cannot be real
	if uint64(count)*9 > uint64(len(data)-headerSize) {
		return 0, nil, common.ECORRUPT
	}

	entries := make(map[string]uint32, count)
	off := headerSize
	for i := uint32(0); i < count; i++ {
		if off+8 > len(data) {
			return 0, nil, common.ECORRUPT
		}
		addr := le.Uint32(data[off:])
		n := int(le.Uint32(data[off+4:]))
		off += 8
		if n > len(data)-off {
			return 0, nil, common.ECORRUPT
		}
		name := string(data[off : off+n])
		off += n
		if ValidName(name) != nil {
			return 0, nil, common.ECORRUPT
		}
		if _, dup := entries[name]; dup {
			return 0, nil, common.ECORRUPT
		}
		entries[name] = addr
	}
	return parent, entries, nil
}

// Encode serializes the table. Entries are written in name order.
func (d *Directory) Encode() []byte {
	names := d.Names()
	size := headerSize
	for _, name := range names {
		size += 8 + len(name)
	}

	le := binary.LittleEndian
	data := make([]byte, size)
	le.PutUint32(data[0:], uint32(len(names)))
	le.PutUint32(data[4:], d.parent)
	off := headerSize
	for _, name := range names {
		le.PutUint32(data[off:], d.entries[name])
		le.PutUint32(data[off+4:], uint32(len(name)))
		off += 8
		off += copy(data[off:], name)
	}
	return data
}

// ValidName checks that name can be stored as a single entry.
func ValidName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return common.EINVAL
	case len(name) > common.NameMax:
		return common.ENAMETOOLONG
	case strings.ContainsAny(name, "/\x00"):
		return common.EINVAL
	}
	return nil
}

func (d *Directory) Inode() *inode.Inode { return d.ip }
func (d *Directory) Addr() uint32        { return d.ip.Addr }
func (d *Directory) Parent() uint32      { return d.parent }
func (d *Directory) Len() int            { return len(d.entries) }
func (d *Directory) IsEmpty() bool       { return len(d.entries) == 0 }

// SetParent changes the parent pointer. The change reaches disk on the
// next Save.
func (d *Directory) SetParent(addr uint32) { d.parent = addr }

func (d *Directory) Lookup(name string) (uint32, bool) {
	addr, ok := d.entries[name]
	return addr, ok
}

// Names returns the entry names in sorted order.
func (d *Directory) Names() []string {
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddEntry maps name to addr, replacing any existing entry. Link counts are
// the caller's business.
func (d *Directory) AddEntry(name string, addr uint32) error {
	if err := ValidName(name); err != nil {
		return err
	}
	d.entries[name] = addr
	return nil
}

// RemoveEntry deletes name from the table. Link counts are the caller's
// business.
func (d *Directory) RemoveEntry(name string) error {
	if _, ok := d.entries[name]; !ok {
		return common.ENOENT
	}
	delete(d.entries, name)
	return nil
}

// CreateFile makes a new empty file inode, saves it and enters it under
// name. The directory itself is not saved.
func (d *Directory) CreateFile(name string) (*inode.Inode, error) {
	return d.create(name, common.File)
}

// CreateSymlink makes a file of type Symlink holding target.
func (d *Directory) CreateSymlink(name, target string) (*inode.Inode, error) {
	ip, err := d.newInode(name, common.Symlink)
	if err != nil {
		return nil, err
	}
	if _, err := file.WriteAt(ip, []byte(target), 0); err != nil {
		ip.Free()
		return nil, err
	}
	if err := d.enter(name, ip); err != nil {
		return nil, err
	}
	return ip, nil
}

// CreateSubdirectory makes a new empty directory whose parent is d, saves
// it and enters it under name. The directory itself is not saved.
func (d *Directory) CreateSubdirectory(name string) (*Directory, error) {
	ip, err := d.newInode(name, common.Directory)
	if err != nil {
		return nil, err
	}
	sub := New(ip, d.Addr())
	if err := sub.writeTable(); err != nil {
		ip.Free()
		return nil, err
	}
	if err := d.enter(name, ip); err != nil {
		return nil, err
	}
	return sub, nil
}

func (d *Directory) create(name string, ftype common.FileType) (*inode.Inode, error) {
	ip, err := d.newInode(name, ftype)
	if err != nil {
		return nil, err
	}
	if err := d.enter(name, ip); err != nil {
		return nil, err
	}
	return ip, nil
}

func (d *Directory) newInode(name string, ftype common.FileType) (*inode.Inode, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	ip, err := inode.Create(d.ip.Device(), d.ip.Allocator(), ftype)
	if err != nil {
		return nil, err
	}
	ip.Links = 1
	return ip, nil
}

// enter saves ip and records it under name, freeing ip if the save fails.
func (d *Directory) enter(name string, ip *inode.Inode) error {
	if err := ip.Save(); err != nil {
		ip.Free()
		return err
	}
	d.entries[name] = ip.Addr
	return nil
}

// writeTable stores the encoded table in the inode content, shrinking the
// content when the table got smaller.
func (d *Directory) writeTable() error {
	data := d.Encode()
	if err := d.ip.Resize(uint32(len(data))); err != nil {
		return err
	}
	if _, err := file.WriteAt(d.ip, data, 0); err != nil {
		return err
	}
	return nil
}

// Save writes the table, then the inode.
func (d *Directory) Save() error {
	if err := d.writeTable(); err != nil {
		return err
	}
	return d.ip.Save()
}

func (d *Directory) String() string {
	return fmt.Sprintf("directory %d (parent %d, %d entries)", d.Addr(), d.parent, len(d.entries))
}
