package fs

import (
	"testing"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Make a directory, check its entries and parent, then remove it so the
// allocator ends up where it started.
func TestMkdirRmdir(test *testing.T) {
	fs := newTestFS(test)
	free := fs.alloc.FreeCount()

	require.NoError(test, fs.Mkdir("/tmp"))
	require.NoError(test, fs.Mkdir("/tmp/nested"))

	names, err := fs.ReadDir("/")
	require.NoError(test, err)
	assert.Equal(test, []string{"tmp"}, names)
	names, err = fs.ReadDir("/tmp")
	require.NoError(test, err)
	assert.Equal(test, []string{"nested"}, names)

	st, err := fs.Stat("/tmp/nested")
	require.NoError(test, err)
	assert.Equal(test, common.Directory, st.Type)
	assert.Equal(test, uint32(1), st.Links)
	tmp := fs.dirs[mustLookup(test, fs.root, "tmp")]
	assert.Equal(test, tmp.Addr(), fs.dirs[st.Inode].Parent())
	assertConsistent(test, fs)

	require.NoError(test, fs.Rmdir("/tmp/nested"))
	require.NoError(test, fs.Rmdir("/tmp"))
	assert.Equal(test, free, fs.alloc.FreeCount())

	names, err = fs.ReadDir("/")
	require.NoError(test, err)
	assert.Empty(test, names)
	assertConsistent(test, fs)
}

func TestMkdirErrors(test *testing.T) {
	fs := newTestFS(test)
	require.NoError(test, fs.Mkdir("/tmp"))
	writeFile(test, fs, "/file", "x")

	assert.ErrorIs(test, fs.Mkdir("/tmp"), common.EEXIST)
	assert.ErrorIs(test, fs.Mkdir("/file"), common.EEXIST)
	assert.ErrorIs(test, fs.Mkdir("/"), common.EEXIST)
	assert.ErrorIs(test, fs.Mkdir("/missing/dir"), common.ENOENT)
	assert.ErrorIs(test, fs.Mkdir("/file/dir"), common.ENOTDIR)
	assertConsistent(test, fs)
}

func TestRmdirErrors(test *testing.T) {
	fs := newTestFS(test)
	require.NoError(test, fs.Mkdir("/full"))
	require.NoError(test, fs.Mkdir("/full/child"))
	require.NoError(test, fs.Mkdir("/cwd"))
	writeFile(test, fs, "/file", "x")

	assert.ErrorIs(test, fs.Rmdir("/"), common.EBUSY)
	assert.ErrorIs(test, fs.Rmdir("/full/child/.."), common.EBUSY)
	assert.ErrorIs(test, fs.Rmdir("/full"), common.ENOTEMPTY)
	assert.ErrorIs(test, fs.Rmdir("/missing"), common.ENOENT)
	assert.ErrorIs(test, fs.Rmdir("/file"), common.ENOTDIR)

	require.NoError(test, fs.Chdir("/cwd"))
	assert.ErrorIs(test, fs.Rmdir("/cwd"), common.EBUSY)
	assert.ErrorIs(test, fs.Rmdir("."), common.EBUSY)

	require.NoError(test, fs.Chdir("/"))
	require.NoError(test, fs.Rmdir("/cwd"))
	assertConsistent(test, fs)
}

func TestDirectoryGrowsAndShrinks(test *testing.T) {
	fs := newTestFS(test)
	require.NoError(test, fs.Mkdir("/many"))
	free := fs.alloc.FreeCount()

	var want []string
	for i := 0; i < 40; i++ {
		name := string(rune('a'+i%26)) + string(rune('a'+i/26)) + "-entry"
		want = append(want, name)
		writeFile(test, fs, "/many/"+name, name)
	}
	names, err := fs.ReadDir("/many")
	require.NoError(test, err)
	assert.ElementsMatch(test, want, names)

	st, err := fs.Stat("/many")
	require.NoError(test, err)
	assert.Greater(test, st.Sectors, uint32(1))
	assertConsistent(test, fs)

	for _, name := range want {
		require.NoError(test, fs.Remove("/many/"+name))
	}
	assert.Equal(test, free, fs.alloc.FreeCount())
	assertConsistent(test, fs)
}
