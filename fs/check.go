package fs

import (
	"fmt"

	"github.com/diskfs/go-diskfs/util/bitmap"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/inode"
	"go.uber.org/zap"
)

// A Problem is one inconsistency found by Check.
type Problem struct {
	Addr uint32
	Msg  string
}

func (p Problem) String() string {
	return fmt.Sprintf("sector %d: %s", p.Addr, p.Msg)
}

type checker struct {
	claimed  *bitmap.Bitmap
	count    int
	problems []Problem
}

func (c *checker) report(addr uint32, format string, args ...interface{}) {
	c.problems = append(c.problems, Problem{Addr: addr, Msg: fmt.Sprintf(format, args...)})
}

// claim records that owner uses addr.
func (c *checker) claim(addr, owner uint32) {
	if int64(addr) >= int64(c.count) {
		c.report(owner, "sector %d out of range", addr)
		return
	}
	set, _ := c.claimed.IsSet(int(addr))
	if set {
		c.report(addr, "claimed twice, again by inode %d", owner)
		return
	}
	c.claimed.Set(int(addr))
}

func (c *checker) claimInode(rip *inode.Inode) {
	for _, addr := range rip.IndexSectors() {
		c.claim(addr, rip.Addr)
	}
	for _, addr := range rip.Extents {
		c.claim(addr, rip.Addr)
	}
}

// Check walks the tree from the root and compares what it reaches with the
// allocation table. It flushes nothing and changes nothing on disk.
func (fs *FileSystem) Check() ([]Problem, error) {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return nil, err
	}

	count := fs.dev.SectorCount()
	c := &checker{claimed: bitmap.NewBits((count + 7) / 8 * 8), count: count}
	for _, addr := range fs.alloc.MapSectors() {
		c.claim(addr, common.BitmapAddr)
	}

	refs := make(map[uint32]int)
	links := make(map[uint32]uint32)
	c.claimInode(fs.root.Inode())
	visited := map[uint32]bool{common.RootAddr: true}
	if fs.root.Parent() != common.RootAddr {
		c.report(common.RootAddr, "root names parent %d", fs.root.Parent())
	}

	queue := []uint32{common.RootAddr}
	for len(queue) > 0 {
		dirp := fs.dirs[queue[0]]
		queue = queue[1:]

		for _, name := range dirp.Names() {
			addr, _ := dirp.Lookup(name)
			refs[addr]++
			if visited[addr] {
				continue
			}
			visited[addr] = true

			rip, err := fs.getInode(addr)
			if err != nil {
				c.report(addr, "entry %q in directory %d: %v", name, dirp.Addr(), err)
				continue
			}
			c.claimInode(rip)
			links[addr] = rip.Links
			if rip.IsDirectory() {
				if sub := fs.dirs[addr]; sub.Parent() != dirp.Addr() {
					c.report(addr, "directory %q names parent %d, found in %d", name, sub.Parent(), dirp.Addr())
				}
				queue = append(queue, addr)
			}
			fs.putInode(rip)
		}
	}

	for _, addr := range sortedKeys(refs) {
		if addr == common.RootAddr {
			c.report(addr, "root directory has an entry")
			continue
		}
		if n, ok := links[addr]; ok && uint32(refs[addr]) != n {
			c.report(addr, "link count %d, %d entries", n, refs[addr])
		}
	}

	// unlinked files kept alive by open handles
	for _, addr := range sortedKeys(fs.files) {
		if rip := fs.files[addr]; !visited[addr] && rip.Links == 0 && rip.Uses > 0 {
			c.claimInode(rip)
		}
	}

	for i := 0; i < count; i++ {
		addr := uint32(i)
		claimed, _ := c.claimed.IsSet(i)
		free := fs.alloc.IsFree(addr)
		switch {
		case claimed && free:
			c.report(addr, "in use but marked free")
		case !claimed && !free:
			c.report(addr, "allocated but unreachable")
		}
	}

	if len(c.problems) > 0 {
		fs.log.Warn("check found problems", zap.Int("count", len(c.problems)))
	}
	return c.problems, nil
}
