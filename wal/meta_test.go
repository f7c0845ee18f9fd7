package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemMetaHandler(t *testing.T) {
	var m MemMetaHandler

	_, ok, err := m.Get()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Set(MakeLSN(3, 100)))
	lsn, ok, err := m.Get()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MakeLSN(3, 100), lsn)
}

func TestFileMetaHandlerGetSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint")
	m := NewFileMetaHandler(path, nil)

	_, ok, err := m.Get()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Set(MakeLSN(2, 4096)))

	lsn, ok, err := m.Get()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, MakeLSN(2, 4096), lsn)

	// The value set must survive a second handler instance reading the
	// same path (simulating a process restart).
	m2 := NewFileMetaHandler(path, nil)
	lsn2, ok2, err := m2.Get()
	require.NoError(t, err)
	require.True(t, ok2)
	require.Equal(t, lsn, lsn2)
}

func TestFileMetaHandlerCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	m := NewFileMetaHandler(path, nil)
	_, _, err := m.Get()
	require.Error(t, err)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	require.Equal(t, KindCorrupt, werr.Kind)
}
