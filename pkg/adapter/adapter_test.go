package adapter

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/require"

	"github.com/nmsu-cs/bbfs/pkg/buffer"
	"github.com/nmsu-cs/bbfs/pkg/engine"
)

func TestInoIsStableAndDistinct(t *testing.T) {
	a := ino("/foo")
	b := ino("/foo")
	c := ino("/bar")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestHostPathFor(t *testing.T) {
	require.Equal(t, "/root", hostPathFor("/root", "/"))
	require.Equal(t, filepath.Join("/root", "a", "b"), hostPathFor("/root", "/a/b"))
}

func TestLengthAndExtendFunc(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	length := LengthFunc(dir)
	extend := ExtendFunc(dir)

	n, err := length("/file")
	require.NoError(t, err)
	require.EqualValues(t, 5, n)

	require.NoError(t, extend("/file", 10))
	n, err = length("/file")
	require.NoError(t, err)
	require.EqualValues(t, 10, n)
}

func TestNewRootRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := NewRoot(path, nil)
	require.Error(t, err)
}

func TestNewRootRejectsMissingDir(t *testing.T) {
	_, err := NewRoot(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
}

func TestErrnoOfMapsNotExist(t *testing.T) {
	_, err := os.Stat(filepath.Join(t.TempDir(), "missing"))
	require.Equal(t, syscall.ENOENT, errnoOf(err))
}

func TestErrnoOfMapsEngineSentinels(t *testing.T) {
	require.Equal(t, syscall.EIO, errnoOf(engine.ErrTooFewEndpoints))
	require.Equal(t, syscall.EIO, errnoOf(engine.ErrInsufficientFragments))
	require.Equal(t, syscall.EIO, errnoOf(engine.ErrNodeRequestFailed))
	require.Equal(t, syscall.EFBIG, errnoOf(&buffer.ErrTooLarge{Len: 10, Capacity: 5}))
}

func TestAttrFromFileInfo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	fi, err := os.Stat(path)
	require.NoError(t, err)

	var a fuse.Attr
	attrFromFileInfo(&a, fi, 42)
	require.EqualValues(t, 42, a.Ino)
	require.EqualValues(t, 5, a.Size)
	require.NotZero(t, a.Mode&syscall.S_IFREG)
}
