package fs

import (
	"testing"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChdir(test *testing.T) {
	fs := newTestFS(test)
	require.NoError(test, fs.Mkdir("/usr"))
	require.NoError(test, fs.Mkdir("/usr/lib"))
	writeFile(test, fs, "/usr/lib/libc.a", "archive")
	assert.Equal(test, "/", fs.CurrentPath())

	cases := []struct {
		dir  string
		want string
	}{
		{"usr", "/usr"},
		{"lib", "/usr/lib"},
		{"..", "/usr"},
		{"./lib/../lib", "/usr/lib"},
		{"/", "/"},
		{"..", "/"},
		{"/usr/lib/", "/usr/lib"},
	}
	for _, c := range cases {
		require.NoError(test, fs.Chdir(c.dir), c.dir)
		assert.Equal(test, c.want, fs.CurrentPath(), c.dir)
	}

	// relative paths resolve against the new directory
	assert.Equal(test, "archive", readFile(test, fs, "libc.a"))
	assert.Equal(test, "archive", readFile(test, fs, "../lib/libc.a"))

	assert.ErrorIs(test, fs.Chdir("libc.a"), common.ENOTDIR)
	assert.ErrorIs(test, fs.Chdir("/nowhere"), common.ENOENT)
	assert.Equal(test, "/usr/lib", fs.CurrentPath())
}

func TestStatNames(test *testing.T) {
	fs := newTestFS(test)
	require.NoError(test, fs.Mkdir("/usr"))

	st, err := fs.Stat("/")
	require.NoError(test, err)
	assert.Equal(test, "/", st.Name)
	assert.Equal(test, common.RootAddr, st.Inode)
	assert.Equal(test, common.Directory, st.Type)

	require.NoError(test, fs.Chdir("/usr"))
	for _, path := range []string{"", ".", "/usr", "../usr/"} {
		st, err = fs.Stat(path)
		require.NoError(test, err, path)
		assert.Equal(test, "usr", st.Name, path)
	}

	st, err = fs.Stat("..")
	require.NoError(test, err)
	assert.Equal(test, "/", st.Name)
	assert.Equal(test, common.RootAddr, st.Inode)
}

func TestReadDirErrors(test *testing.T) {
	fs := newTestFS(test)
	writeFile(test, fs, "/file", "x")

	_, err := fs.ReadDir("/file")
	assert.ErrorIs(test, err, common.ENOTDIR)
	_, err = fs.ReadDir("/missing")
	assert.ErrorIs(test, err, common.ENOENT)

	names, err := fs.ReadDir("")
	require.NoError(test, err)
	assert.Equal(test, []string{"file"}, names)
}

func TestNameTooLong(test *testing.T) {
	fs := newTestFS(test)
	long := make([]byte, common.NameMax+1)
	for i := range long {
		long[i] = 'n'
	}
	_, err := fs.Open("/"+string(long), true)
	assert.ErrorIs(test, err, common.ENAMETOOLONG)
	assert.ErrorIs(test, fs.Mkdir("/"+string(long)), common.ENAMETOOLONG)
	assertConsistent(test, fs)
}

func TestDotDotThroughBadParent(test *testing.T) {
	fs := newTestFS(test)
	require.NoError(test, fs.Mkdir("/a"))
	writeFile(test, fs, "/f.txt", "plain")
	a := fs.dirs[mustLookup(test, fs.root, "a")]

	// never handed out, so the sector still holds the device's fill pattern
	unused := uint32(testSectors - 1)
	require.True(test, fs.alloc.IsFree(unused))

	parents := map[string]uint32{
		"out of range": 99999,
		"free sector":  unused,
		"plain file":   mustLookup(test, fs.root, "f.txt"),
	}
	for what, parent := range parents {
		a.SetParent(parent)

		_, err := fs.ReadDir("/a/..")
		assert.ErrorIs(test, err, common.ENOENT, what)
		assert.ErrorIs(test, fs.Chdir("/a/.."), common.ENOENT, what)
		assert.Equal(test, "/", fs.CurrentPath(), what)

		require.NoError(test, fs.Chdir("/a"), what)
		assert.ErrorIs(test, fs.Chdir(".."), common.ENOENT, what)
		assert.Equal(test, "/a", fs.CurrentPath(), what)
		require.NoError(test, fs.Chdir("/"), what)
	}

	a.SetParent(common.RootAddr)
	names, err := fs.ReadDir("/a/..")
	require.NoError(test, err)
	assert.ElementsMatch(test, []string{"a", "f.txt"}, names)
	assert.Equal(test, "plain", readFile(test, fs, "/f.txt"))
}
