package index

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissing(t *testing.T) {
	dir := t.TempDir()
	idx, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, idx.Sources())
	assert.Equal(t, dir, idx.BasePath())
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	idx, err := Load(dir)
	require.NoError(t, err)

	idx.Set("gh:mesa/mesa@main", "mesa_mesa_main")
	idx.Set("gh:madler/zlib", "madler_zlib")
	require.NoError(t, idx.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"gh:madler/zlib", "gh:mesa/mesa@main"}, loaded.Sources())
	path, ok := loaded.Path("gh:madler/zlib")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "madler_zlib"), path)
	assert.True(t, loaded.Has("gh:mesa/mesa@main"))
	assert.False(t, loaded.Has("gh:nope/nope"))
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	checkout := filepath.Join(dir, "zlib")
	require.NoError(t, os.MkdirAll(checkout, 0o755))

	idx := &Index{basePath: dir}
	idx.Set("gh:madler/zlib", "zlib")

	removed, err := idx.Remove("gh:madler/zlib")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoDirExists(t, checkout)

	removed, err = idx.Remove("gh:madler/zlib")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse(strings.NewReader("{not json"), t.TempDir())
	assert.Error(t, err)
}
