package bcache

import (
	"sync"

	"github.com/jnwhiteh/sectorfs/common"
	"go.uber.org/zap"
)

// An lru_buf is one slot in the cache, linked into the LRU chain.
type lru_buf struct {
	addr  uint32
	data  []byte
	valid bool

	next *lru_buf // towards the most recently used end
	prev *lru_buf // towards the least recently used end
}

// LRUCache keeps recently used sectors of a device in memory. Writes go
// straight through to the device and refresh the cached copy, so the cache
// never holds dirty data and needs no flush.
type LRUCache struct {
	dev common.BlockDevice

	buf   []*lru_buf          // static list of cache slots
	index map[uint32]*lru_buf // resident sectors by address
	front *lru_buf            // least recently used slot
	rear  *lru_buf            // most recently used slot

	hits   int
	misses int

	m sync.Mutex
}

// NewLRUCache wraps dev with a cache of numslots sectors. A cache needs at
// least two slots.
func NewLRUCache(dev common.BlockDevice, numslots int) *LRUCache {
	if numslots < 2 {
		numslots = 2
	}
	cache := &LRUCache{
		dev:   dev,
		buf:   make([]*lru_buf, numslots),
		index: make(map[uint32]*lru_buf, numslots),
	}

	// Create all of the entries in buf ahead of time
	for i := 0; i < numslots; i++ {
		cache.buf[i] = &lru_buf{data: make([]byte, dev.SectorSize())}
	}
	for i := 1; i < numslots-1; i++ {
		cache.buf[i].prev = cache.buf[i-1]
		cache.buf[i].next = cache.buf[i+1]
	}
	cache.front = cache.buf[0]
	cache.front.next = cache.buf[1]
	cache.rear = cache.buf[numslots-1]
	cache.rear.prev = cache.buf[numslots-2]

	return cache
}

func (c *LRUCache) SectorSize() int  { return c.dev.SectorSize() }
func (c *LRUCache) SectorCount() int { return c.dev.SectorCount() }

func (c *LRUCache) ReadSector(addr uint32, buf []byte) error {
	c.m.Lock()
	defer c.m.Unlock()

	if bp, ok := c.index[addr]; ok && len(buf) == len(bp.data) {
		c.hits++
		copy(buf, bp.data)
		c.touch(bp)
		return nil
	}

	c.misses++
	if err := c.dev.ReadSector(addr, buf); err != nil {
		return err
	}
	c.fill(addr, buf)
	return nil
}

func (c *LRUCache) WriteSector(addr uint32, buf []byte) error {
	c.m.Lock()
	defer c.m.Unlock()

	if err := c.dev.WriteSector(addr, buf); err != nil {
		// the device may have taken part of the write, drop our copy
		c.drop(addr)
		return err
	}
	c.fill(addr, buf)
	return nil
}

// Close invalidates the cache and closes the device underneath.
func (c *LRUCache) Close() error {
	c.Invalidate()
	return c.dev.Close()
}

// Invalidate forgets every cached sector.
func (c *LRUCache) Invalidate() {
	c.m.Lock()
	defer c.m.Unlock()

	for addr := range c.index {
		c.drop(addr)
	}
}

// Stats reports how many reads were served from memory and how many went
// to the device.
func (c *LRUCache) Stats() (hits, misses int) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.hits, c.misses
}

// fill copies data into the slot for addr, evicting the least recently used
// sector when addr is not resident.
func (c *LRUCache) fill(addr uint32, data []byte) {
	bp, ok := c.index[addr]
	if !ok {
		bp = c.front
		if bp.valid {
			delete(c.index, bp.addr)
			common.Logger().Debug("evicting sector", zap.Uint32("sector", bp.addr))
		}
		bp.addr = addr
		bp.valid = true
		c.index[addr] = bp
	}
	copy(bp.data, data)
	c.touch(bp)
}

// drop releases the slot holding addr and puts it at the front of the
// chain, where it is reused first.
func (c *LRUCache) drop(addr uint32) {
	bp, ok := c.index[addr]
	if !ok {
		return
	}
	delete(c.index, addr)
	bp.valid = false
	c.rm_lru(bp)
	bp.next = c.front
	bp.prev = nil
	c.front.prev = bp
	c.front = bp
}

// touch moves bp to the most recently used end of the chain.
func (c *LRUCache) touch(bp *lru_buf) {
	if bp == c.rear {
		return
	}
	c.rm_lru(bp)
	bp.prev = c.rear
	bp.next = nil
	c.rear.next = bp
	c.rear = bp
}

// Remove a slot from its LRU chain
func (c *LRUCache) rm_lru(bp *lru_buf) {
	next_ptr := bp.next // successor on LRU chain
	prev_ptr := bp.prev // predecessor on LRU chain
	if prev_ptr != nil {
		prev_ptr.next = next_ptr
	} else {
		c.front = next_ptr
	}

	if next_ptr != nil {
		next_ptr.prev = prev_ptr
	} else {
		c.rear = prev_ptr
	}
	bp.next = nil
	bp.prev = nil
}

var _ common.BlockDevice = &LRUCache{}
