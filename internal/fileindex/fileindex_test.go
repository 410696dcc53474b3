package fileindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", "<h1>hi</h1>")
	writeFile(t, dir, "api/users.js", "handler")
	writeFile(t, dir, "node_modules/pkg/index.js", "dep")
	writeFile(t, dir, ".env", "SECRET=1")

	idx := NewIndex(dir)
	require.NoError(t, idx.Scan(NewIgnoreFilter()))

	assert.True(t, idx.Has("index.html"))
	assert.True(t, idx.Has("api/users.js"))
	assert.False(t, idx.Has("node_modules/pkg/index.js"), "node_modules is always ignored")
	assert.False(t, idx.Has(".env"), "env files are always ignored")
	assert.Equal(t, 2, idx.Len())
}

func TestScanReplacesPreviousState(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "a")

	idx := NewIndex(dir)
	require.NoError(t, idx.Scan(nil))
	require.True(t, idx.Has("a.txt"))

	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	writeFile(t, dir, "b.txt", "b")

	require.NoError(t, idx.Scan(nil))
	assert.False(t, idx.Has("a.txt"))
	assert.True(t, idx.Has("b.txt"))
}

func TestSetRemoveGet(t *testing.T) {
	idx := NewIndex(t.TempDir())

	idx.Set(FileRef{RelPath: "x.txt", FsPath: "/tmp/x.txt"})
	ref, ok := idx.Get("x.txt")
	require.True(t, ok)
	assert.Equal(t, "/tmp/x.txt", ref.FsPath)

	idx.Remove("x.txt")
	assert.False(t, idx.Has("x.txt"))

	// Removing an absent path is a no-op.
	idx.Remove("x.txt")
}

func TestStat(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "f.txt", "data")

	idx := NewIndex(dir)

	ref, err := idx.Stat("f.txt")
	require.NoError(t, err)
	assert.Equal(t, "f.txt", ref.RelPath)
	assert.Equal(t, filepath.Join(dir, "f.txt"), ref.FsPath)

	_, err = idx.Stat("missing.txt")
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestSnapshotIsIndependent(t *testing.T) {
	idx := NewIndex(t.TempDir())
	idx.Set(FileRef{RelPath: "a.txt"})

	snap := idx.Snapshot()
	idx.Remove("a.txt")

	_, ok := snap["a.txt"]
	assert.True(t, ok, "snapshot must not see later mutations")
}

func TestPathsSorted(t *testing.T) {
	idx := NewIndex(t.TempDir())
	idx.Set(FileRef{RelPath: "z.txt"})
	idx.Set(FileRef{RelPath: "a.txt"})
	idx.Set(FileRef{RelPath: "m/n.txt"})

	assert.Equal(t, []string{"a.txt", "m/n.txt", "z.txt"}, idx.Paths())
}

func TestIgnoreFilter(t *testing.T) {
	f := NewIgnoreFilter("dist", "*.log")

	assert.True(t, f.Ignores(".git/HEAD"))
	assert.True(t, f.Ignores("node_modules/x/y.js"))
	assert.True(t, f.Ignores("dist"))
	assert.True(t, f.Ignores("dist/bundle.js"))
	assert.True(t, f.Ignores("debug.log"))
	assert.False(t, f.Ignores("src/main.go"))
	assert.False(t, f.Ignores("index.html"))
}

func TestLoadIgnoreFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, IgnoreFile, "# comment\n\nbuild/\n*.tmp\n")

	f, err := LoadIgnoreFilter(dir)
	require.NoError(t, err)

	assert.True(t, f.Ignores("build/out.js"))
	assert.True(t, f.Ignores("scratch.tmp"))
	assert.False(t, f.Ignores("main.go"))
}

func TestLoadIgnoreFilterMissingFile(t *testing.T) {
	f, err := LoadIgnoreFilter(t.TempDir())
	require.NoError(t, err)
	assert.True(t, f.Ignores(".git/config"))
}
