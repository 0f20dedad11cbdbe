package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/alloctbl"
	"github.com/jnwhiteh/sectorfs/common"
	"go.uber.org/zap"
)

var le = binary.LittleEndian

// An Inode describes one file or directory. It lives in a primary sector
// whose address identifies it, and lists the sectors holding its content in
// order. When the list does not fit in the primary sector it continues in a
// chain of index sectors.
//
// Primary sector:      next, size, type, links, uses, count, extents...
// Continuation sector: next, extents...
type Inode struct {
	Addr    uint32
	Size    uint32
	Type    common.FileType
	Links   uint32
	Uses    uint32
	Extents []uint32

	chain []uint32 // continuation sectors as last written

	dev   common.BlockDevice
	alloc *alloctbl.AllocTbl
}

// New returns an empty in-memory inode with its primary sector at addr.
// Nothing is written until Save.
func New(dev common.BlockDevice, alloc *alloctbl.AllocTbl, addr uint32, ftype common.FileType) *Inode {
	return &Inode{Addr: addr, Type: ftype, dev: dev, alloc: alloc}
}

// Create allocates a primary sector for a new inode and returns it unsaved.
func Create(dev common.BlockDevice, alloc *alloctbl.AllocTbl, ftype common.FileType) (*Inode, error) {
	addr, err := alloc.Allocate()
	if err != nil {
		return nil, err
	}
	return New(dev, alloc, addr, ftype), nil
}

func (rip *Inode) Device() common.BlockDevice    { return rip.dev }
func (rip *Inode) Allocator() *alloctbl.AllocTbl { return rip.alloc }
func (rip *Inode) SectorSize() int               { return rip.dev.SectorSize() }

// IndexSectors returns the primary sector followed by the continuation
// chain.
func (rip *Inode) IndexSectors() []uint32 {
	return append([]uint32{rip.Addr}, rip.chain...)
}

func (rip *Inode) IsDirectory() bool { return rip.Type.IsDirectory() }

func (rip *Inode) String() string {
	return fmt.Sprintf("inode %d (%s, %d bytes, %d links, %d uses)", rip.Addr, rip.Type, rip.Size, rip.Links, rip.Uses)
}

func primaryCap(ss int) int      { return (ss - common.PrimaryHeaderSize) / common.ExtentSize }
func continuationCap(ss int) int { return (ss - common.ContinuationHeaderSize) / common.ExtentSize }

// continuations returns how many index sectors beyond the primary are
// needed to hold n extents.
func continuations(n, ss int) int {
	p := primaryCap(ss)
	if n <= p {
		return 0
	}
	c := continuationCap(ss)
	return (n - p + c - 1) / c
}

// Load reads the inode whose primary sector is addr.
func Load(dev common.BlockDevice, alloc *alloctbl.AllocTbl, addr uint32) (*Inode, error) {
	ss := dev.SectorSize()
	total := uint32(dev.SectorCount())
	if addr >= total {
		return nil, corrupt(addr, "primary sector out of range")
	}

	buf := make([]byte, ss)
	if err := dev.ReadSector(addr, buf); err != nil {
		return nil, common.DeviceError(err, "read inode", addr)
	}

	rip := New(dev, alloc, addr, common.FileType(le.Uint32(buf[8:])))
	next := le.Uint32(buf[0:])
	rip.Size = le.Uint32(buf[4:])
	rip.Links = le.Uint32(buf[12:])
	rip.Uses = le.Uint32(buf[16:])
	count := int(le.Uint32(buf[20:]))

	if !rip.Type.Valid() {
		return nil, corrupt(addr, fmt.Sprintf("bad type %d", rip.Type))
	}
	if need := common.SectorsFor(rip.Size, ss); count != need && count != need+1 {
		return nil, corrupt(addr, fmt.Sprintf("%d extents for %d bytes", count, rip.Size))
	}

	rip.Extents = make([]uint32, 0, count)
	seen := map[uint32]bool{addr: true}
	off := common.PrimaryHeaderSize
	for len(rip.Extents) < count {
		if off+common.ExtentSize > ss {
			if next == common.NoSector {
				return nil, corrupt(addr, "index chain ends early")
			}
			if next >= total || seen[next] {
				return nil, corrupt(addr, fmt.Sprintf("bad index sector %d", next))
			}
			seen[next] = true
			rip.chain = append(rip.chain, next)
			if err := dev.ReadSector(next, buf); err != nil {
				return nil, common.DeviceError(err, "read index", next)
			}
			next = le.Uint32(buf[0:])
			off = common.ContinuationHeaderSize
		}
		ext := le.Uint32(buf[off:])
		if ext >= total {
			return nil, corrupt(addr, fmt.Sprintf("extent %d out of range", ext))
		}
		rip.Extents = append(rip.Extents, ext)
		off += common.ExtentSize
	}
	if next != common.NoSector {
		return nil, corrupt(addr, "index chain longer than its extents")
	}
	return rip, nil
}

func corrupt(addr uint32, msg string) error {
	return errors.WrapWithContext(common.ECORRUPT, errors.CodeInternal, msg,
		map[string]interface{}{"inode": addr})
}

// Save writes the inode and its index chain. The chain is rebuilt from the
// extent list: existing continuation sectors are reused in order, missing
// ones are allocated and surplus ones are released once the new chain is on
// disk.
func (rip *Inode) Save() error {
	ss := rip.dev.SectorSize()
	need := continuations(len(rip.Extents), ss)

	chain := make([]uint32, need)
	n := copy(chain, rip.chain)
	for i := n; i < need; i++ {
		addr, err := rip.alloc.Allocate()
		if err != nil {
			for j := i - 1; j >= n; j-- {
				rip.alloc.Deallocate(chain[j])
			}
			return err
		}
		chain[i] = addr
	}
	// sectors taken above go back if a write fails
	fail := func(err error) error {
		for j := need - 1; j >= n; j-- {
			rip.alloc.Deallocate(chain[j])
		}
		return err
	}

	buf := make([]byte, ss)
	nextOf := func(i int) uint32 {
		if i < len(chain) {
			return chain[i]
		}
		return common.NoSector
	}

	le.PutUint32(buf[0:], nextOf(0))
	le.PutUint32(buf[4:], rip.Size)
	le.PutUint32(buf[8:], uint32(rip.Type))
	le.PutUint32(buf[12:], rip.Links)
	le.PutUint32(buf[16:], rip.Uses)
	le.PutUint32(buf[20:], uint32(len(rip.Extents)))
	rest := rip.putExtents(buf[common.PrimaryHeaderSize:], rip.Extents)
	if err := rip.dev.WriteSector(rip.Addr, buf); err != nil {
		return fail(common.DeviceError(err, "write inode", rip.Addr))
	}

	for i, addr := range chain {
		for j := range buf {
			buf[j] = 0
		}
		le.PutUint32(buf[0:], nextOf(i+1))
		rest = rip.putExtents(buf[common.ContinuationHeaderSize:], rest)
		if err := rip.dev.WriteSector(addr, buf); err != nil {
			return fail(common.DeviceError(err, "write index", addr))
		}
	}

	for _, addr := range rip.chain[n:] {
		rip.alloc.Deallocate(addr)
	}
	rip.chain = chain
	return nil
}

// putExtents fills buf with as many extents as fit and returns the rest.
func (rip *Inode) putExtents(buf []byte, extents []uint32) []uint32 {
	i := 0
	for ; i < len(extents) && (i+1)*common.ExtentSize <= len(buf); i++ {
		le.PutUint32(buf[i*common.ExtentSize:], extents[i])
	}
	return extents[i:]
}

// Resize grows or shrinks the extent list to exactly cover size bytes and
// records the new size. Newly covered bytes read as zero. Growing also
// reserves any index sectors the longer list needs; shrinking leaves surplus
// ones for Save to release. If the device runs out of sectors the inode is
// left as it was and ENOSPC is returned.
func (rip *Inode) Resize(size uint32) error {
	ss := rip.dev.SectorSize()
	need := common.SectorsFor(size, ss)
	have := len(rip.Extents)

	if size > rip.Size {
		if err := rip.zeroTail(); err != nil {
			return err
		}
	}

	if need > have {
		zero := make([]byte, ss)
		for len(rip.Extents) < need {
			addr, err := rip.alloc.Allocate()
			if err == nil {
				err = common.DeviceError(rip.dev.WriteSector(addr, zero), "clear", addr)
				if err != nil {
					rip.alloc.Deallocate(addr)
				}
			}
			if err != nil {
				for len(rip.Extents) > have {
					last := len(rip.Extents) - 1
					rip.alloc.Deallocate(rip.Extents[last])
					rip.Extents = rip.Extents[:last]
				}
				return err
			}
			rip.Extents = append(rip.Extents, addr)
		}
		if err := rip.reserveIndex(have); err != nil {
			return err
		}
		common.Logger().Debug("grew inode",
			zap.Uint32("inode", rip.Addr), zap.Int("from", have), zap.Int("to", need))
	}

	for len(rip.Extents) > need {
		last := len(rip.Extents) - 1
		rip.alloc.Deallocate(rip.Extents[last])
		rip.Extents = rip.Extents[:last]
	}

	rip.Size = size
	return nil
}

// reserveIndex allocates the continuation sectors the grown extent list
// will need, so a later Save does not run out of space. On failure the
// extents past have are released as well.
func (rip *Inode) reserveIndex(have int) error {
	want := continuations(len(rip.Extents), rip.dev.SectorSize())
	start := len(rip.chain)
	for len(rip.chain) < want {
		addr, err := rip.alloc.Allocate()
		if err != nil {
			for len(rip.chain) > start {
				last := len(rip.chain) - 1
				rip.alloc.Deallocate(rip.chain[last])
				rip.chain = rip.chain[:last]
			}
			for len(rip.Extents) > have {
				last := len(rip.Extents) - 1
				rip.alloc.Deallocate(rip.Extents[last])
				rip.Extents = rip.Extents[:last]
			}
			return err
		}
		rip.chain = append(rip.chain, addr)
	}
	return nil
}

// zeroTail clears the bytes past the end of file in the last sector, so a
// later extension does not expose data left behind by a shrink.
func (rip *Inode) zeroTail() error {
	ss := rip.dev.SectorSize()
	tail := int(rip.Size % uint32(ss))
	idx := int(rip.Size / uint32(ss))
	if tail == 0 || idx >= len(rip.Extents) {
		return nil
	}
	addr := rip.Extents[idx]
	buf := make([]byte, ss)
	if err := rip.dev.ReadSector(addr, buf); err != nil {
		return common.DeviceError(err, "read", addr)
	}
	for i := tail; i < ss; i++ {
		buf[i] = 0
	}
	return common.DeviceError(rip.dev.WriteSector(addr, buf), "write", addr)
}

// SectorFor maps a byte offset to the sector holding it, or NoSector when
// the offset lies beyond the extent list.
func (rip *Inode) SectorFor(pos uint32) uint32 {
	idx := int(pos / uint32(rip.dev.SectorSize()))
	if idx >= len(rip.Extents) {
		return common.NoSector
	}
	return rip.Extents[idx]
}

// Free releases the content sectors, the continuation sectors and the
// primary sector, in that order. The inode must not be in use.
func (rip *Inode) Free() {
	if rip.Uses > 0 {
		panic(fmt.Sprintf("check file system: freeing %s", rip))
	}
	for _, addr := range rip.Extents {
		rip.alloc.Deallocate(addr)
	}
	for _, addr := range rip.chain {
		rip.alloc.Deallocate(addr)
	}
	rip.alloc.Deallocate(rip.Addr)

	common.Logger().Debug("freed inode",
		zap.Uint32("inode", rip.Addr), zap.Int("extents", len(rip.Extents)), zap.Int("index", len(rip.chain)))

	rip.Extents = nil
	rip.chain = nil
	rip.Size = 0
}
