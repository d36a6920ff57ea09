package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "a.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("first")))
	require.NoError(t, WriteFileAtomic(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	in := map[string]any{"name": "folio", "n": float64(3)}
	require.NoError(t, WriteJSON(path, in))

	var out map[string]any
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)

	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out)
	assert.True(t, IsNotExist(err))
}

func TestCopyDirWithTransform(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "css"), DirPerm))
	require.NoError(t, os.WriteFile(filepath.Join(src, "css", "site.css"), []byte("body{}"), FilePerm))
	require.NoError(t, os.WriteFile(filepath.Join(src, "logo.svg"), []byte("<svg/>"), FilePerm))

	dst := filepath.Join(t.TempDir(), "out")
	err := CopyDir(src, dst, func(rel string, data []byte) ([]byte, error) {
		if strings.HasSuffix(rel, ".css") {
			return append([]byte("/*x*/"), data...), nil
		}
		return data, nil
	})
	require.NoError(t, err)

	css, err := os.ReadFile(filepath.Join(dst, "css", "site.css"))
	require.NoError(t, err)
	assert.Equal(t, "/*x*/body{}", string(css))
	assert.True(t, Exists(filepath.Join(dst, "logo.svg")))
}

func TestWithin(t *testing.T) {
	root := filepath.Join("/srv", "themes")
	assert.True(t, Within(root, filepath.Join(root, "a", "b")))
	assert.False(t, Within(root, filepath.Join(root, "..", "etc")))
	assert.False(t, Within(root, "/etc/passwd"))
}

func TestLockDirIsExclusive(t *testing.T) {
	dir := t.TempDir()
	l, err := LockDir(dir, ".lock")
	require.NoError(t, err)

	_, err = LockDir(dir, ".lock")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Release())
	l2, err := LockDir(dir, ".lock")
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
