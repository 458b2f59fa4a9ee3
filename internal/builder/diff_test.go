package builder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDiffSame(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, writeDiff(&sb, "Android.bp", "a\nb\n", "a\nb\n"))
	assert.Empty(t, sb.String())
}

func TestWriteDiff(t *testing.T) {
	old := "1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n"
	new := "1\n2\n3\n4\n5\n6\n7\n8\nnine\n10\n"

	var sb strings.Builder
	require.NoError(t, writeDiff(&sb, "BUILD.bazel", old, new))
	assert.Equal(t, "--- a/BUILD.bazel\n+++ b/BUILD.bazel\n@@\n 6\n 7\n 8\n-9\n+nine\n 10\n", sb.String())
}

func TestWriteDiffNewFile(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, writeDiff(&sb, "x", "", "a\n\nb\n"))
	assert.Equal(t, "--- a/x\n+++ b/x\n+a\n+\n+b\n", sb.String())
}
