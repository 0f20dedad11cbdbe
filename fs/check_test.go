package fs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCleanTree(test *testing.T) {
	fs := newTestFS(test)
	require.NoError(test, fs.Mkdir("/a"))
	require.NoError(test, fs.Mkdir("/a/b"))
	writeFile(test, fs, "/a/b/f", string(make([]byte, 40*testSectorSize)))
	require.NoError(test, fs.Link("/a/b/f", "/a/g"))
	require.NoError(test, fs.Symlink("/a/g", "/s"))
	assertConsistent(test, fs)
}

func TestCheckFindsLeak(test *testing.T) {
	fs := newTestFS(test)
	addr, err := fs.alloc.Allocate()
	require.NoError(test, err)

	problems, err := fs.Check()
	require.NoError(test, err)
	require.Len(test, problems, 1)
	assert.Equal(test, addr, problems[0].Addr)
	assert.Contains(test, problems[0].String(), "unreachable")
}

func TestCheckFindsFreedContent(test *testing.T) {
	fs := newTestFS(test)
	writeFile(test, fs, "/f", "data")
	rip, err := fs.eatPath("/f")
	require.NoError(test, err)
	addr := rip.Extents[0]
	fs.putInode(rip)
	fs.alloc.Deallocate(addr)

	problems, err := fs.Check()
	require.NoError(test, err)
	require.Len(test, problems, 1)
	assert.Equal(test, addr, problems[0].Addr)
	assert.Contains(test, problems[0].Msg, "marked free")
}

func TestCheckFindsLinkMismatch(test *testing.T) {
	fs := newTestFS(test)
	writeFile(test, fs, "/f", "data")
	rip, err := fs.eatPath("/f")
	require.NoError(test, err)
	rip.Links = 3
	require.NoError(test, rip.Save())
	fs.putInode(rip)

	problems, err := fs.Check()
	require.NoError(test, err)
	require.Len(test, problems, 1)
	assert.Equal(test, rip.Addr, problems[0].Addr)
	assert.Contains(test, problems[0].Msg, "link count 3")
}

func TestDump(test *testing.T) {
	fs := newTestFS(test)
	require.NoError(test, fs.Mkdir("/docs"))
	writeFile(test, fs, "/docs/a.txt", "hello")

	var buf bytes.Buffer
	require.NoError(test, fs.Dump("/docs", &buf))
	assert.Contains(test, buf.String(), "directory")
	assert.Contains(test, buf.String(), `"a.txt"`)

	buf.Reset()
	require.NoError(test, fs.DumpBitmap(&buf))
	assert.Contains(test, buf.String(), "bitmap sectors [0]")

	assert.Error(test, fs.Dump("/missing", &buf))
}
