package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileHandlerWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	wfh := newFileHandler(dir)
	require.NoError(t, wfh.open(1, 'w'))
	require.NoError(t, wfh.write([]byte("hello world")))
	require.NoError(t, wfh.sync())

	size, err := wfh.fileSize()
	require.NoError(t, err)
	require.EqualValues(t, 11, size)
	require.NoError(t, wfh.close())

	exists, fsize, err := segmentExists(dir, 1)
	require.NoError(t, err)
	require.True(t, exists)
	require.EqualValues(t, 11, fsize)

	rfh := newFileHandler(dir)
	require.NoError(t, rfh.open(1, 'r'))
	dst := make([]byte, 11)
	n, err := rfh.load(dst)
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, "hello world", string(dst))
	require.NoError(t, rfh.close())
}

func TestFileHandlerLoadAt(t *testing.T) {
	dir := t.TempDir()

	fh := newFileHandler(dir)
	require.NoError(t, fh.open(1, 'w'))
	require.NoError(t, fh.write([]byte("0123456789")))
	require.NoError(t, fh.close())

	rfh := newFileHandler(dir)
	require.NoError(t, rfh.open(1, 'r'))
	dst := make([]byte, 4)
	n, err := rfh.loadAt(dst, 3, 4)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "3456", string(dst))
	require.NoError(t, rfh.close())
}

func TestFileHandlerDeleteAndReborn(t *testing.T) {
	dir := t.TempDir()

	fh := newFileHandler(dir)
	require.NoError(t, fh.open(1, 'w'))
	require.NoError(t, fh.write([]byte("segment one")))

	require.NoError(t, fh.reborn(2))
	require.NoError(t, fh.write([]byte("segment two")))
	require.NoError(t, fh.close())

	_, err := os.Stat(filepath.Join(dir, "1.wal"))
	require.NoError(t, err, "segment 1 should still exist; reborn does not delete the old file")

	rfh := newFileHandler(dir)
	require.NoError(t, rfh.open(2, 'r'))
	require.NoError(t, rfh.delete())

	exists, _, err := segmentExists(dir, 2)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFileHandlerLoadTooSmallDestination(t *testing.T) {
	dir := t.TempDir()

	fh := newFileHandler(dir)
	require.NoError(t, fh.open(1, 'w'))
	require.NoError(t, fh.write([]byte("this does not fit")))
	require.NoError(t, fh.close())

	rfh := newFileHandler(dir)
	require.NoError(t, rfh.open(1, 'r'))
	_, err := rfh.load(make([]byte, 4))
	require.Error(t, err)
}
