package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorFlag(t *testing.T) {
	var g generatorFlag
	assert.Equal(t, "soong", g.String())

	require.NoError(t, g.Set("bazel"))
	assert.Equal(t, "bazel", g.String())

	err := g.Set("ninja")
	require.Error(t, err)
	assert.Equal(t, "must be one of bazel, soong", err.Error())
	assert.Equal(t, "bazel", g.String())
}

func TestCompleteGenerator(t *testing.T) {
	items, directive := completeGenerator(nil, nil, "s")
	assert.Equal(t, []string{"soong\tGenerates Android.bp files (default)"}, items)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	items, _ = completeGenerator(nil, nil, "")
	assert.Len(t, items, 2)
}
