package builder

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qobs-build/hermetic/internal/builder/gen"
	"github.com/qobs-build/hermetic/internal/config"
	"github.com/qobs-build/hermetic/internal/msg"
)

const zlibConfig = `
[project]
name = "zlib"
soong_name_prefix = "z_"
copyright = "Copyright 2024 The zlib Authors"

[[custom_selects]]
namespace = "zlib"
name = "backend"
possible_values = ["asm", "plain"]
default_value = "plain"

[configurations.default.toolchains]
host_toolchains = ["linux_x86_64", "android_arm64"]
build_toolchains = ["linux_x86_64"]

[configurations.default.variable_options]
backend = [
  { value = "asm", select = "zlib.backend:asm" },
  { value = "plain", select = "zlib.backend:plain" },
]
`

const zlibToolchains = `
[toolchains.linux_x86_64]
c = "clang"
host_machine = { system = "linux", cpu_family = "x86_64", cpu = "x86_64", endian = "little" }

[toolchains.android_arm64]
c = "clang"
host_machine = { system = "android", cpu_family = "aarch64", cpu = "armv8", endian = "little" }
`

const zlibDescription = `
[static_library.libz]
sources = ["adler32.c"]

[static_library.libz.'target_os == "linux"']
sources = ["linux.c"]

[static_library.libz.'option.backend == "asm"']
sources = ["asm.c"]
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func quiet(t *testing.T) {
	t.Helper()
	out := msg.Out
	msg.Out = io.Discard
	t.Cleanup(func() { msg.Out = out })
}

func newBuilder(t *testing.T, generator string) *Builder {
	t.Helper()
	configs := writeTree(t, map[string]string{
		"zlib/config.toml":       zlibConfig,
		"zlib/toolchains.toml":   zlibToolchains,
		"zlib/dependencies.toml": "",
	})
	project := writeTree(t, map[string]string{
		"hermetic.toml": zlibDescription,
		"adler32.c":     "",
		"linux.c":       "",
		"asm.c":         "",
	})
	b, err := Load(Options{
		Files:      config.ResolveShortcut(configs, "zlib"),
		ProjectDir: project,
		OutputDir:  t.TempDir(),
		Generator:  generator,
		Jobs:       2,
	})
	require.NoError(t, err)
	return b
}

func fileMap(files []gen.File) map[string]string {
	m := make(map[string]string, len(files))
	for _, f := range files {
		m[f.Path] = f.Content
	}
	return m
}

func TestGenerateSoong(t *testing.T) {
	quiet(t)
	b := newBuilder(t, GeneratorSoong)

	configs, err := b.Configurations()
	require.NoError(t, err)
	require.Len(t, configs, 4)

	files, diags, err := b.Generate(context.Background(), configs)
	require.NoError(t, err)
	assert.Empty(t, diags)

	got := fileMap(files)
	require.Contains(t, got, "Android.bp")
	bp := got["Android.bp"]
	assert.Contains(t, bp, "// This file was generated by hermetic from zlib. DO NOT EDIT.")
	assert.Contains(t, bp, "// Copyright 2024 The zlib Authors")
	assert.Contains(t, bp, "cc_library_static {")
	assert.Contains(t, bp, `name: "z_libz",`)
	assert.Contains(t, bp, `"adler32.c"`)
	assert.Contains(t, bp, `soong_config_variable("zlib", "backend")`)
	assert.Contains(t, bp, `"asm.c"`)
	assert.Contains(t, bp, `"linux.c"`)
	assert.Contains(t, bp, "default: [],")
}

func TestGenerateBazel(t *testing.T) {
	quiet(t)
	b := newBuilder(t, GeneratorBazel)

	configs, err := b.Configurations()
	require.NoError(t, err)
	files, _, err := b.Generate(context.Background(), configs)
	require.NoError(t, err)

	got := fileMap(files)
	require.Contains(t, got, "BUILD.bazel")
	assert.Contains(t, got, "hermetic_flags.bzl")
	assert.Contains(t, got, "hermetic_config/BUILD.bazel")
	assert.Contains(t, got["BUILD.bazel"], `name = "libz",`)
	assert.Contains(t, got["BUILD.bazel"], "select(")
	assert.Contains(t, got["BUILD.bazel"], "//conditions:default")
}

func TestGenerateOrderIndependent(t *testing.T) {
	quiet(t)
	for _, generator := range []string{GeneratorSoong, GeneratorBazel} {
		t.Run(generator, func(t *testing.T) {
			b := newBuilder(t, generator)
			configs, err := b.Configurations()
			require.NoError(t, err)

			forward, _, err := b.Generate(context.Background(), configs)
			require.NoError(t, err)

			shuffled := slices.Clone(configs)
			slices.Reverse(shuffled)
			shuffled[0], shuffled[2] = shuffled[2], shuffled[0]
			backward, _, err := b.Generate(context.Background(), shuffled)
			require.NoError(t, err)

			if diff := cmp.Diff(forward, backward); diff != "" {
				t.Errorf("output depends on configuration order (-forward +shuffled):\n%s", diff)
			}
		})
	}
}

func TestUnsupportedGenerator(t *testing.T) {
	quiet(t)
	b := newBuilder(t, "ninja")
	err := b.Build(context.Background())
	assert.ErrorIs(t, err, gen.ErrUnsupportedGenerator)
}

func TestUnknownConfiguration(t *testing.T) {
	quiet(t)
	b := newBuilder(t, GeneratorSoong)
	b.opts.Configurations = []string{"nope"}
	_, err := b.Configurations()
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBuildWritesAndDiffs(t *testing.T) {
	quiet(t)
	b := newBuilder(t, GeneratorSoong)
	require.NoError(t, b.Build(context.Background()))

	written := filepath.Join(b.opts.OutputDir, "Android.bp")
	require.FileExists(t, written)

	var out bytes.Buffer
	b.opts.Diff = true
	b.opts.DiffOut = &out
	require.NoError(t, b.Build(context.Background()))
	assert.Empty(t, out.String(), "nothing changed")

	require.NoError(t, os.WriteFile(written, []byte("stale\n"), 0o644))
	require.NoError(t, b.Build(context.Background()))
	assert.Contains(t, out.String(), "--- a/Android.bp\n+++ b/Android.bp\n")
	assert.Contains(t, out.String(), "-stale\n")

	content, err := os.ReadFile(written)
	require.NoError(t, err)
	assert.Equal(t, "stale\n", string(content), "diff mode leaves files alone")
}
