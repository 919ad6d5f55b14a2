package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriteDelete(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, d.Write("a/b/c.txt", []byte("hi")))
	assert.True(t, d.FileExists("a/b/c.txt"))
	assert.False(t, d.FileExists("a/b"))

	data, err := d.Read("a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	require.NoError(t, d.Delete("a/b/c.txt"))
	require.NoError(t, d.Delete("a/b/c.txt"))
	_, err = d.Read("a/b/c.txt")
	require.ErrorIs(t, err, ErrFileNotFound)
}

func TestAbs_RejectsEscapes(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = d.Abs("../outside.txt")
	require.Error(t, err)
	require.Error(t, d.Write("x/../../outside.txt", nil))
}

func TestChangedSince(t *testing.T) {
	root := t.TempDir()
	d, err := New(root)
	require.NoError(t, err)

	require.NoError(t, d.Write("keep.txt", []byte("same")))
	require.NoError(t, d.Write("edit.txt", []byte("old")))
	require.NoError(t, d.Write(".git/HEAD", []byte("ref")))

	before, err := d.Snapshot()
	require.NoError(t, err)
	assert.NotContains(t, before, ".git/HEAD")

	require.NoError(t, d.Write("edit.txt", []byte("newer content")))
	require.NoError(t, os.Chtimes(filepath.Join(root, "edit.txt"), time.Now(), time.Now().Add(time.Hour)))
	require.NoError(t, d.Write("out/plot.png", []byte("png")))
	require.NoError(t, d.Write(".git/index", []byte("idx")))

	changed, err := d.ChangedSince(before)
	require.NoError(t, err)
	assert.Equal(t, []string{"edit.txt", "out/plot.png"}, changed)
}
