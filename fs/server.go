package fs

import (
	"sort"
	"sync"

	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/alloctbl"
	"github.com/jnwhiteh/sectorfs/bcache"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/directory"
	"github.com/jnwhiteh/sectorfs/file"
	"github.com/jnwhiteh/sectorfs/inode"
	"go.uber.org/zap"
)

// FileSystem is a mounted volume. It owns the device, the allocation table,
// the resident directories and inodes, and the current directory. All
// operations take fs.m, which also guards every open handle.
type FileSystem struct {
	m sync.Mutex

	dev   common.BlockDevice
	cache *bcache.LRUCache // nil when caching is off
	alloc *alloctbl.AllocTbl

	root    *directory.Directory
	workdir *directory.Directory
	cwd     []string // path components of workdir

	dirs  map[uint32]*directory.Directory // resident directories
	files map[uint32]*inode.Inode         // resident non-directory inodes

	handles map[*file.File]struct{}

	opts   options
	log    *zap.Logger
	closed bool
}

type options struct {
	cacheSectors int
	swapFile     string
	maxHops      int
	logger       *zap.Logger
}

// An Option adjusts how a filesystem is formatted or mounted.
type Option func(*options)

// WithCache puts an LRU cache of n sectors in front of the device. Zero
// disables the cache.
func WithCache(n int) Option {
	return func(o *options) { o.cacheSectors = n }
}

// WithSwapFile names a file whose sectors FreeSpace counts as available,
// because a pager owns and recycles them.
func WithSwapFile(path string) Option {
	return func(o *options) { o.swapFile = path }
}

// WithMaxSymlinkHops bounds how many symlinks Open follows.
func WithMaxSymlinkHops(n int) Option {
	return func(o *options) { o.maxHops = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newFileSystem(dev common.BlockDevice, opts []Option) (*FileSystem, error) {
	if err := common.ValidGeometry(dev.SectorSize(), dev.SectorCount()); err != nil {
		return nil, err
	}

	fs := &FileSystem{
		dirs:    make(map[uint32]*directory.Directory),
		files:   make(map[uint32]*inode.Inode),
		handles: make(map[*file.File]struct{}),
		opts:    options{maxHops: common.MaxSymlinkHops},
	}
	for _, opt := range opts {
		opt(&fs.opts)
	}

	fs.log = fs.opts.logger
	if fs.log == nil {
		fs.log = common.Logger()
	}
	fs.log = fs.log.Named("fs")

	fs.dev = dev
	if fs.opts.cacheSectors > 0 {
		fs.cache = bcache.NewLRUCache(dev, fs.opts.cacheSectors)
		fs.dev = fs.cache
	}
	fs.alloc = alloctbl.NewAllocTbl(fs.dev)
	return fs, nil
}

// Format writes an empty filesystem onto dev and returns it mounted.
func Format(dev common.BlockDevice, opts ...Option) (*FileSystem, error) {
	fs, err := newFileSystem(dev, opts)
	if err != nil {
		return nil, err
	}

	fs.alloc.Format()
	rip := inode.New(fs.dev, fs.alloc, common.RootAddr, common.Directory)
	rip.Links = 1
	fs.root = directory.New(rip, common.RootAddr)
	if err := fs.root.Save(); err != nil {
		return nil, err
	}
	if err := fs.alloc.Save(); err != nil {
		return nil, err
	}

	fs.dirs[common.RootAddr] = fs.root
	fs.workdir = fs.root
	fs.log.Info("formatted",
		zap.Int("sectorSize", fs.dev.SectorSize()),
		zap.Int("sectors", fs.dev.SectorCount()),
		zap.Uint32("free", fs.alloc.FreeBytes()))
	return fs, nil
}

// Mount loads an existing filesystem from dev.
func Mount(dev common.BlockDevice, opts ...Option) (*FileSystem, error) {
	fs, err := newFileSystem(dev, opts)
	if err != nil {
		return nil, err
	}

	if err := fs.alloc.Load(); err != nil {
		return nil, err
	}
	root, err := fs.getDir(common.RootAddr)
	if err != nil {
		fs.log.Error("could not load root directory", zap.Error(err))
		return nil, errors.Wrap(common.ECORRUPT, errors.CodeInternal, "root directory")
	}
	if root.Parent() != common.RootAddr {
		return nil, errors.Wrapf(common.ECORRUPT, errors.CodeInternal,
			"root directory claims parent %d", root.Parent())
	}

	fs.root = root
	fs.workdir = root
	fs.log.Info("mounted",
		zap.Int("sectorSize", fs.dev.SectorSize()),
		zap.Int("sectors", fs.dev.SectorCount()),
		zap.Uint32("free", fs.alloc.FreeBytes()))
	return fs, nil
}

func (fs *FileSystem) checkOpen() error {
	if fs.closed {
		return common.EBADF
	}
	return nil
}

// Sync writes every resident directory (table, then inode), then every
// resident file inode, then the bitmap.
func (fs *FileSystem) Sync() error {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return err
	}
	return fs.do_sync()
}

func (fs *FileSystem) do_sync() error {
	for _, addr := range sortedKeys(fs.dirs) {
		if err := fs.dirs[addr].Save(); err != nil {
			return err
		}
	}
	for _, addr := range sortedKeys(fs.files) {
		if err := fs.files[addr].Save(); err != nil {
			return err
		}
	}
	return fs.alloc.Save()
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Shutdown closes any handles still open, flushes everything and closes the
// device. The filesystem is unusable afterwards.
func (fs *FileSystem) Shutdown() error {
	fs.m.Lock()
	if err := fs.checkOpen(); err != nil {
		fs.m.Unlock()
		return err
	}
	open := make([]*file.File, 0, len(fs.handles))
	for h := range fs.handles {
		open = append(open, h)
	}
	fs.m.Unlock()

	if len(open) > 0 {
		fs.log.Warn("closing files left open at shutdown", zap.Int("count", len(open)))
	}
	for _, h := range open {
		if err := h.Close(); err != nil && !errors.Is(err, common.EBADF) {
			fs.log.Warn("failed when closing file", zap.Error(err))
		}
	}

	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.do_sync(); err != nil {
		return err
	}
	fs.closed = true
	fs.dirs = nil
	fs.files = nil
	fs.log.Info("shut down")
	return fs.dev.Close()
}

// FreeSpace returns the unallocated bytes, counting the swap file's
// sectors as free when one is configured.
func (fs *FileSystem) FreeSpace() (uint32, error) {
	fs.m.Lock()
	defer fs.m.Unlock()

	if err := fs.checkOpen(); err != nil {
		return 0, err
	}
	free := fs.alloc.FreeBytes()
	if fs.opts.swapFile != "" {
		if rip, err := fs.eatPath(fs.opts.swapFile); err == nil {
			free += uint32(len(rip.Extents) * fs.dev.SectorSize())
			fs.putInode(rip)
		}
	}
	return free, nil
}

// Capacity is the size of the device in bytes.
func (fs *FileSystem) Capacity() uint64 {
	return uint64(fs.dev.SectorSize()) * uint64(fs.dev.SectorCount())
}

// CacheStats reports sector cache hits and misses. Both are zero when the
// cache is off.
func (fs *FileSystem) CacheStats() (hits, misses int) {
	if fs.cache == nil {
		return 0, 0
	}
	return fs.cache.Stats()
}
