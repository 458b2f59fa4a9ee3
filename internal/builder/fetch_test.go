package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qobs-build/hermetic/internal/index"
)

func TestParseGitURL(t *testing.T) {
	tests := []struct {
		raw  string
		want gitURL
	}{
		{"https://github.com/madler/zlib", gitURL{cleanURL: "https://github.com/madler/zlib.git"}},
		{"https://github.com/madler/zlib.git#v1.3", gitURL{cleanURL: "https://github.com/madler/zlib.git", commitOrTag: "v1.3"}},
		{"https://gitlab.freedesktop.org/mesa/mesa@main", gitURL{cleanURL: "https://gitlab.freedesktop.org/mesa/mesa.git", branch: "main"}},
		{"https://github.com/a/b@dev#12345abc", gitURL{cleanURL: "https://github.com/a/b.git", branch: "dev", commitOrTag: "12345abc"}},
		{"ssh://git@github.com/a/b", gitURL{cleanURL: "ssh://git@github.com/a/b.git"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseGitURL(tt.raw))
		})
	}
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("gh:madler/zlib"))
	assert.True(t, IsRemote("cb:someone/thing@main"))
	assert.True(t, IsRemote("git:https://example.com/x.git"))
	assert.False(t, IsRemote("./external/zlib"))
	assert.False(t, IsRemote("/src/mesa"))
}

func TestRemoteURL(t *testing.T) {
	url, err := remoteURL("gh:madler/zlib#v1.3")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/madler/zlib#v1.3", url)

	url, err = remoteURL("git:https://example.com/x.git")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x.git", url)

	_, err = remoteURL("gh:")
	assert.ErrorIs(t, err, errIllegalSource)
}

func TestResolveLocalProjectDir(t *testing.T) {
	dir := t.TempDir()
	idx, err := index.Load(t.TempDir())
	require.NoError(t, err)

	got, err := ResolveProjectDir(dir, idx, false)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.Empty(t, idx.Sources())

	_, err = ResolveProjectDir("", idx, false)
	assert.ErrorIs(t, err, errIllegalSource)
}

func TestCacheDirName(t *testing.T) {
	assert.Equal(t, "gh_madler_zlib_main_v1.3", cacheDirName("gh:madler/zlib@main#v1.3"))
	assert.Equal(t, "git_https___x_y", cacheDirName("git:https://x/y"))
}
